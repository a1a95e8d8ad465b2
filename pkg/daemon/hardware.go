package daemon

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/wsprd/pkg/calibration"
	"github.com/charlie0129/wsprd/pkg/clock"
	"github.com/charlie0129/wsprd/pkg/config"
	"github.com/charlie0129/wsprd/pkg/fpga"
	"github.com/charlie0129/wsprd/pkg/pps"
)

// Replaced in tests.
var (
	openDevice = func(conf config.Config, simulate bool) (device, error) {
		if simulate {
			logrus.Warn("simulation mode: no SPI traffic, the FPGA is mocked")
			dev, _ := fpga.NewMock(calibration.NominalCounts)
			return dev, nil
		}
		return fpga.OpenPeriph(conf.SPIPort(), conf.SPISpeedHz())
	}

	openEdgeSource = func(conf config.Config, sink pps.EdgeSink, simulate bool) (edgeSource, error) {
		if simulate {
			return newSimulatedPPS(sink, time.Second), nil
		}
		return pps.Open(conf.PPSChip(), conf.PPSLine(), sink)
	}

	setRealtime calibration.ClockSetter = clock.SetRealtime
)

// simulatedPPS signals an edge every period from a ticker.
type simulatedPPS struct {
	edges atomic.Uint64
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func newSimulatedPPS(sink pps.EdgeSink, period time.Duration) *simulatedPPS {
	s := &simulatedPPS{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.edges.Add(1)
				sink.SignalEdge()
			}
		}
	}()

	return s
}

func (s *simulatedPPS) Edges() uint64 {
	return s.edges.Load()
}

func (s *simulatedPPS) Close() error {
	s.once.Do(func() { close(s.stop) })
	<-s.done
	return nil
}
