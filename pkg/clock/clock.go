// Package clock provides the monotonic picosecond time base used to schedule
// WSPR symbols.
package clock

import (
	"runtime"
	"time"
)

// Picoseconds per common unit.
const (
	Nanosecond  int64 = 1_000
	Microsecond       = 1_000 * Nanosecond
	Millisecond       = 1_000 * Microsecond
	Second            = 1_000 * Millisecond
)

// Timer is a monotonic time source with picosecond resolution. It must not
// wrap during a transmission.
type Timer interface {
	NowPicoseconds() int64
}

// Waiter is a Timer that a dedicated context can block on.
type Waiter interface {
	Timer
	// WaitUntil returns a channel that is closed once NowPicoseconds has
	// reached deadline.
	WaitUntil(deadline int64) <-chan struct{}
}

// spinMargin is how early the sleeping goroutine wakes up before it starts
// polling the clock. Timer wake-up jitter on Linux is well below this.
const spinMargin = 2 * time.Millisecond

// Monotonic reads Go's monotonic clock relative to its creation.
type Monotonic struct {
	base time.Time
}

var _ Waiter = &Monotonic{}

// NewMonotonic returns a Monotonic whose zero is now.
func NewMonotonic() *Monotonic {
	return &Monotonic{base: time.Now()}
}

func (m *Monotonic) NowPicoseconds() int64 {
	return int64(time.Since(m.base)) * Nanosecond
}

// WaitUntil sleeps until shortly before deadline and then spins, so the
// channel closes within a few microseconds of the deadline.
func (m *Monotonic) WaitUntil(deadline int64) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		remaining := time.Duration((deadline - m.NowPicoseconds()) / Nanosecond)
		if remaining > spinMargin {
			time.Sleep(remaining - spinMargin)
		}
		for deadline-m.NowPicoseconds() > 0 {
			runtime.Gosched()
		}
	}()
	return ch
}

// ToDuration converts picoseconds to a time.Duration, truncating.
func ToDuration(ps int64) time.Duration {
	return time.Duration(ps / Nanosecond)
}

// FromDuration converts a time.Duration to picoseconds.
func FromDuration(d time.Duration) int64 {
	return int64(d) * Nanosecond
}
