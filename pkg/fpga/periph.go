package fpga

import (
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// DefaultSpeedHz is the SPI clock used when none is configured.
const DefaultSpeedHz = 4_000_000

type periphConn struct {
	port spi.PortCloser
	conn spi.Conn
}

func (c *periphConn) Tx(w, r []byte) error {
	return c.conn.Tx(w, r)
}

func (c *periphConn) Close() error {
	return c.port.Close()
}

// OpenPeriph initializes the host drivers and opens an SPI port by name. An
// empty name selects the first port found.
func OpenPeriph(port string, speedHz int64) (*FPGA, error) {
	if _, err := host.Init(); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to initialize periph host drivers")
	}

	p, err := spireg.Open(port)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open SPI port %q", port)
	}

	if speedHz <= 0 {
		speedHz = DefaultSpeedHz
	}

	conn, err := p.Connect(physic.Frequency(speedHz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		_ = p.Close()
		return nil, pkgerrors.Wrapf(err, "failed to configure SPI port %q", port)
	}

	logrus.WithFields(logrus.Fields{
		"port":  p.String(),
		"speed": physic.Frequency(speedHz) * physic.Hertz,
	}).Info("opened FPGA SPI connection")

	return New(&periphConn{port: p, conn: conn}), nil
}
