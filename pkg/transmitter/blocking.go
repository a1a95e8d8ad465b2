package transmitter

import (
	"context"

	"github.com/charlie0129/wsprd/pkg/clock"
)

// RunBlocking owns a started transmission until it is done or aborted,
// sleeping until each deadline. w must share the transmitter's time base.
// Cancelling ctx aborts the transmission.
func RunBlocking(ctx context.Context, t *Transmitter, w clock.Waiter) error {
	for {
		deadline, stopped, ok := t.wait()
		if !ok {
			return nil
		}

		select {
		case <-ctx.Done():
			t.Abort()
			return ctx.Err()
		case <-stopped:
		case <-w.WaitUntil(deadline):
			t.Tick()
		}
	}
}
