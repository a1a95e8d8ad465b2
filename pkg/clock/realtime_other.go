//go:build !linux

package clock

import (
	"errors"
	"time"
)

// SetRealtime is only implemented on Linux.
func SetRealtime(time.Time) error {
	return errors.New("setting the realtime clock is not supported on this platform")
}
