package clock

import "sync"

// Fake is a manually driven clock for tests and simulation. WaitUntil jumps
// the clock straight to the deadline.
type Fake struct {
	mu  sync.Mutex
	now int64
}

var _ Waiter = &Fake{}

// NewFake returns a Fake starting at start picoseconds.
func NewFake(start int64) *Fake {
	return &Fake{now: start}
}

func (f *Fake) NowPicoseconds() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set moves the clock to ps.
func (f *Fake) Set(ps int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = ps
}

// Advance moves the clock forward by ps.
func (f *Fake) Advance(ps int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now += ps
}

func (f *Fake) WaitUntil(deadline int64) <-chan struct{} {
	f.mu.Lock()
	if deadline-f.now > 0 {
		f.now = deadline
	}
	f.mu.Unlock()

	ch := make(chan struct{})
	close(ch)
	return ch
}
