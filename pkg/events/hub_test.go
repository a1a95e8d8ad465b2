package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	h.Publish(TxState, TxStateEvent{From: "Idle", To: "Transmitting", Ts: 1})

	ev := <-ch
	require.Equal(t, TxState, ev.Name)
	payload, err := DecodeAs[TxStateEvent](ev)
	require.NoError(t, err)
	require.Equal(t, "Transmitting", payload.To)
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()

	for i := 0; i < 100; i++ {
		h.Publish(TxSkipped, TxSkippedEvent{Reason: "disabled"})
	}
	require.Len(t, ch, cap(ch))

	h.Unsubscribe(ch)
	_, ok := <-ch
	require.True(t, ok)
}

func TestNilHubPublish(t *testing.T) {
	var h *EventHub
	require.NotPanics(t, func() { h.Publish(TxState, nil) })
}

func TestDecodeEmpty(t *testing.T) {
	v, err := DecodeAs[CalibrationLockEvent](Event{Name: CalibrationLock})
	require.NoError(t, err)
	require.False(t, v.Locked)
}
