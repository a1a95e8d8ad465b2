// Package fpga talks to the NCO/PPS-counter gateware over SPI.
package fpga

import (
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"
)

// WordSize is the only accepted SPI write length.
const WordSize = 4

// ppsCountCommand asks the gateware to return the 32-bit PPS counter in
// bytes 1..4 of the reply.
var ppsCountCommand = [5]byte{0x80, 0x00, 0x00, 0x00, 0x00}

// Connection is a full-duplex SPI transfer endpoint.
type Connection interface {
	Tx(w, r []byte) error
	Close() error
}

// FPGA is a wrapper of Connection.
type FPGA struct {
	conn Connection
}

// New wraps an open Connection.
func New(conn Connection) *FPGA {
	return &FPGA{conn: conn}
}

// Close closes the connection.
func (f *FPGA) Close() error {
	return f.conn.Close()
}

// Write writes a 4-byte tuning word frame. Frames of any other length are
// silently ignored.
func (f *FPGA) Write(b []byte) error {
	if len(b) != WordSize {
		logrus.WithField("len", len(b)).Trace("Ignoring FPGA write with wrong length")
		return nil
	}

	logrus.WithField("val", b).Trace("Trying to write to FPGA")

	if err := f.conn.Tx(b, nil); err != nil {
		return err
	}

	logrus.WithField("val", b).Trace("Write to FPGA succeed")

	return nil
}

// WriteTuningWord writes w big-endian.
func (f *FPGA) WriteTuningWord(w uint32) error {
	var b [WordSize]byte
	binary.BigEndian.PutUint32(b[:], w)
	return f.Write(b[:])
}

// ReadPPSCount returns the number of system-clock cycles counted between
// the last two PPS edges.
func (f *FPGA) ReadPPSCount() (uint32, error) {
	logrus.Trace("Trying to read PPS count from FPGA")

	w := ppsCountCommand
	var r [len(ppsCountCommand)]byte
	if err := f.conn.Tx(w[:], r[:]); err != nil {
		return 0, fmt.Errorf("failed to read PPS count: %w", err)
	}

	v := binary.BigEndian.Uint32(r[1:])
	logrus.WithField("count", v).Trace("Read PPS count from FPGA succeed")

	return v, nil
}
