package fpga

import (
	"encoding/binary"
	"sync"
)

// MockConnection records written tuning words and answers PPS count reads
// with a settable value.
type MockConnection struct {
	mu       sync.Mutex
	words    []uint32
	ppsCount uint32
	failNext int
	err      error
}

var _ Connection = &MockConnection{}

// NewMock returns an FPGA backed by a MockConnection that reports ppsCount.
func NewMock(ppsCount uint32) (*FPGA, *MockConnection) {
	m := &MockConnection{ppsCount: ppsCount}
	return New(m), m
}

func (m *MockConnection) Tx(w, r []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failNext > 0 {
		m.failNext--
		return m.err
	}

	if len(w) == len(ppsCountCommand) && w[0] == ppsCountCommand[0] {
		if len(r) == len(ppsCountCommand) {
			binary.BigEndian.PutUint32(r[1:], m.ppsCount)
		}
		return nil
	}

	if len(w) == WordSize {
		m.words = append(m.words, binary.BigEndian.Uint32(w))
	}

	return nil
}

func (m *MockConnection) Close() error {
	return nil
}

// Words returns a copy of all tuning words written so far.
func (m *MockConnection) Words() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint32(nil), m.words...)
}

// SetPPSCount changes the value returned by the next PPS count reads.
func (m *MockConnection) SetPPSCount(v uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ppsCount = v
}

// FailNext makes the next n transfers return err.
func (m *MockConnection) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
	m.err = err
}
