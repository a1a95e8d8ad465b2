package pps

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/warthog618/go-gpiocdev"
)

type countingSink struct{ n int }

func (c *countingSink) SignalEdge() { c.n++ }

func TestOnEventForwardsRisingEdges(t *testing.T) {
	sink := &countingSink{}
	s := &Source{sink: sink}

	s.onEvent(gpiocdev.LineEvent{Type: gpiocdev.LineEventRisingEdge, Timestamp: time.Second})
	s.onEvent(gpiocdev.LineEvent{Type: gpiocdev.LineEventFallingEdge, Timestamp: 2 * time.Second})
	s.onEvent(gpiocdev.LineEvent{Type: gpiocdev.LineEventRisingEdge, Timestamp: 3 * time.Second})

	require.Equal(t, 2, sink.n)
	require.Equal(t, uint64(2), s.Edges())
	require.Equal(t, 3*time.Second, s.LastEdge())
}

func TestCloseWithoutLine(t *testing.T) {
	require.NoError(t, (&Source{}).Close())
}
