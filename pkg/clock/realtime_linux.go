//go:build linux

package clock

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// SetRealtime steps CLOCK_REALTIME to t. It needs CAP_SYS_TIME.
func SetRealtime(t time.Time) error {
	ts := unix.NsecToTimespec(t.UnixNano())
	if err := unix.ClockSettime(unix.CLOCK_REALTIME, &ts); err != nil {
		return fmt.Errorf("failed to set realtime clock to %s: %w", t.UTC().Format(time.RFC3339Nano), err)
	}
	return nil
}
