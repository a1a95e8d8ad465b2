// Package pps delivers GNSS pulse-per-second edges from a GPIO line.
package pps

import (
	"sync/atomic"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/warthog618/go-gpiocdev"
)

// Consumer is the label shown for the requested line in gpioinfo.
const Consumer = "wsprd-pps"

// EdgeSink receives PPS edges. SignalEdge must not block.
type EdgeSink interface {
	SignalEdge()
}

// Source watches one GPIO line for rising edges.
type Source struct {
	sink  EdgeSink
	line  *gpiocdev.Line
	edges atomic.Uint64
	last  atomic.Int64
}

// Open requests offset on chip (e.g. "gpiochip0") as an input with rising
// edge detection and forwards every edge to sink.
func Open(chip string, offset int, sink EdgeSink) (*Source, error) {
	s := &Source{sink: sink}

	l, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.WithConsumer(Consumer),
		gpiocdev.AsInput,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithEventHandler(s.onEvent),
	)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to request PPS line %s:%d", chip, offset)
	}
	s.line = l

	logrus.WithFields(logrus.Fields{
		"chip": chip,
		"line": offset,
	}).Info("watching PPS line")

	return s, nil
}

// onEvent runs on the gpiocdev watcher goroutine.
func (s *Source) onEvent(evt gpiocdev.LineEvent) {
	if evt.Type != gpiocdev.LineEventRisingEdge {
		return
	}
	s.edges.Add(1)
	s.last.Store(int64(evt.Timestamp))
	s.sink.SignalEdge()
}

// Edges returns the number of rising edges seen.
func (s *Source) Edges() uint64 {
	return s.edges.Load()
}

// LastEdge returns the kernel timestamp of the most recent edge.
func (s *Source) LastEdge() time.Duration {
	return time.Duration(s.last.Load())
}

// Close releases the line.
func (s *Source) Close() error {
	if s.line == nil {
		return nil
	}
	return s.line.Close()
}
