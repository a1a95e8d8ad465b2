package transmitter

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/charlie0129/wsprd/pkg/clock"
	"github.com/charlie0129/wsprd/pkg/fpga"
	"github.com/charlie0129/wsprd/pkg/nco"
	"github.com/charlie0129/wsprd/pkg/wspr"
)

const (
	testDialHz = 14_097_000
	testCall   = "W1ABC"
	testGrid   = "FN42"
	testPower  = 23
)

type factor struct{ v float64 }

func (f *factor) CorrectionFactor() float64 { return f.v }

type recorder struct {
	clk   clock.Timer
	words []uint32
	times []int64
	fail  map[int]bool
}

func (r *recorder) WriteTuningWord(w uint32) error {
	n := len(r.words)
	r.words = append(r.words, w)
	r.times = append(r.times, r.clk.NowPicoseconds())
	if r.fail[n] {
		return errors.New("spi busy")
	}
	return nil
}

func newTest(t require.TestingT, start int64) (*Transmitter, *recorder, *clock.Fake, *factor) {
	clk := clock.NewFake(start)
	rec := &recorder{clk: clk}
	f := &factor{v: 1.0}
	tx, err := New(rec, clk, f)
	require.NoError(t, err)
	require.NoError(t, tx.Prepare(testDialHz, testCall, testGrid, testPower))
	return tx, rec, clk, f
}

func expectedWords(t require.TestingT, k float64) []uint32 {
	symbols, err := wspr.Encode(testCall, testGrid, testPower)
	require.NoError(t, err)
	tones := nco.ToneWords(testDialHz, k)

	words := make([]uint32, 0, Boundaries)
	for _, s := range symbols {
		words = append(words, tones[s])
	}
	return append(words, 0)
}

func TestNewRequiresDependencies(t *testing.T) {
	clk := clock.NewFake(0)
	f := &factor{v: 1}
	rec := &recorder{clk: clk}

	_, err := New(nil, clk, f)
	require.ErrorIs(t, err, ErrMissingDependency)
	_, err = New(rec, nil, f)
	require.ErrorIs(t, err, ErrMissingDependency)
	_, err = New(rec, clk, nil)
	require.ErrorIs(t, err, ErrMissingDependency)
}

func TestBoundaryOffset(t *testing.T) {
	require.Equal(t, int64(682_666_666_666), BoundaryOffset(0))
	require.Equal(t, int64(162*8192)*clock.Second/12000, BoundaryOffset(161))
	require.Equal(t, SymbolPeriodPs, BoundaryOffset(0))
	// 162 symbols take about 110.6 s.
	require.InDelta(t, 110.592, float64(BoundaryOffset(161))/float64(clock.Second), 1e-9)
	// Slots start at second 1, so the first tone begins about 1.68 s past
	// the even minute.
	require.InDelta(t, 1.683, float64(clock.Second+BoundaryOffset(0))/float64(clock.Second), 1e-3)
}

func TestEndToEnd(t *testing.T) {
	const t0 = 5 * clock.Second
	tx, rec, clk, _ := newTest(t, t0)
	require.Equal(t, StateIdle, tx.State())

	require.NoError(t, tx.Start())
	require.Equal(t, StateTransmitting, tx.State())

	require.Equal(t, StateTransmitting, tx.Tick())
	clk.Set(t0 + BoundaryOffset(0) - 1)
	tx.Tick()
	require.Empty(t, rec.words)

	want := expectedWords(t, 1.0)
	for n := 0; n < Boundaries; n++ {
		clk.Set(t0 + BoundaryOffset(n))
		state := tx.Tick()
		require.Len(t, rec.words, n+1)
		require.Equal(t, want[n], rec.words[n], "boundary %d", n)

		// A second tick at the same instant never writes again.
		tx.Tick()
		require.Len(t, rec.words, n+1)

		if n < Boundaries-1 {
			require.Equal(t, StateTransmitting, state)
		} else {
			require.Equal(t, StateDone, state)
		}
	}

	require.Len(t, rec.words, 163)
	require.Zero(t, rec.words[162])

	st := tx.Status()
	require.Equal(t, StateDone, st.State)
	require.Equal(t, 163, st.Writes)
	require.Zero(t, st.MissedWrites)
	require.Equal(t, 162, st.SymbolIndex)
	require.False(t, st.Prepared)

	// Done ignores further ticks.
	clk.Advance(10 * clock.Second)
	require.Equal(t, StateDone, tx.Tick())
	require.Len(t, rec.words, 163)
}

func TestElapsedBoundariesAreNotCoalesced(t *testing.T) {
	tx, rec, clk, _ := newTest(t, 0)
	require.NoError(t, tx.Start())

	clk.Set(BoundaryOffset(4))
	for i := 1; i <= 5; i++ {
		tx.Tick()
		require.Len(t, rec.words, i)
	}
	tx.Tick()
	require.Len(t, rec.words, 5)
}

func TestDriftFreeUnderIrregularTicks(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		maxStep := rapid.Int64Range(10*clock.Millisecond, 100*clock.Millisecond).Draw(rt, "maxStep")
		steps := rapid.SliceOfN(rapid.Int64Range(1, maxStep), 1, 64).Draw(rt, "steps")
		t0 := rapid.Int64Range(0, 1<<40).Draw(rt, "t0")

		tx, rec, clk, _ := newTest(rt, t0)
		require.NoError(rt, tx.Start())

		for i := 0; tx.Tick() == StateTransmitting; i++ {
			clk.Advance(steps[i%len(steps)])
		}

		require.Len(rt, rec.times, Boundaries)
		for n, at := range rec.times {
			slack := at - (t0 + BoundaryOffset(n))
			if slack < 0 || slack >= maxStep {
				rt.Fatalf("boundary %d written %d ps off schedule (max step %d)", n, slack, maxStep)
			}
		}
	})
}

func TestBlockingMatchesPolling(t *testing.T) {
	const t0 = 42 * clock.Second

	polling, pollRec, pollClk, _ := newTest(t, t0)
	require.NoError(t, polling.Start())
	for polling.Tick() == StateTransmitting {
		pollClk.Advance(10 * clock.Millisecond)
	}

	blocking, blockRec, blockClk, _ := newTest(t, t0)
	require.NoError(t, blocking.Start())
	require.NoError(t, RunBlocking(context.Background(), blocking, blockClk))

	require.Equal(t, StateDone, blocking.State())
	require.Equal(t, pollRec.words, blockRec.words)
	require.Equal(t, expectedWords(t, 1.0), blockRec.words)

	for n := range blockRec.times {
		deadline := t0 + BoundaryOffset(n)
		require.Equal(t, deadline, blockRec.times[n])
		require.GreaterOrEqual(t, pollRec.times[n], deadline)
		require.Less(t, pollRec.times[n]-deadline, 10*clock.Millisecond)
	}
}

func TestAbort(t *testing.T) {
	tx, rec, clk, _ := newTest(t, 0)

	require.False(t, tx.Abort())
	require.Empty(t, rec.words)

	require.NoError(t, tx.Start())
	for n := 0; n < 3; n++ {
		clk.Set(BoundaryOffset(n))
		tx.Tick()
	}

	require.True(t, tx.Abort())
	require.Equal(t, StateIdle, tx.State())
	require.Len(t, rec.words, 4)
	require.Zero(t, rec.words[3])

	_, ok := tx.NextDeadline()
	require.False(t, ok)

	// Nothing more is written after an abort.
	clk.Set(BoundaryOffset(10))
	tx.Tick()
	require.Len(t, rec.words, 4)

	// The prepared message is kept.
	require.True(t, tx.Status().Prepared)
	require.NoError(t, tx.Start())
	require.Equal(t, StateTransmitting, tx.State())
}

func TestPrepareAndStartPreconditions(t *testing.T) {
	clk := clock.NewFake(0)
	tx, err := New(&recorder{clk: clk}, clk, &factor{v: 1})
	require.NoError(t, err)

	require.ErrorIs(t, tx.Start(), ErrNotPrepared)

	require.ErrorIs(t, tx.Prepare(testDialHz, testCall, testGrid, 61), wspr.ErrInvalidPower)
	require.ErrorIs(t, tx.Prepare(testDialHz, "1", testGrid, 10), wspr.ErrInvalidCallsign)
	require.ErrorIs(t, tx.Prepare(testDialHz, testCall, "ZZ99", 10), wspr.ErrInvalidGrid)
	require.ErrorIs(t, tx.Prepare(0, testCall, testGrid, 10), ErrFrequencyOutOfRange)
	require.ErrorIs(t, tx.Prepare(math.NaN(), testCall, testGrid, 10), ErrFrequencyOutOfRange)
	require.ErrorIs(t, tx.Prepare(40_000_000, testCall, testGrid, 10), ErrFrequencyOutOfRange)
	require.ErrorIs(t, tx.Start(), ErrNotPrepared)

	require.NoError(t, tx.Prepare(testDialHz, "w1abc", "fn42", testPower))
	require.Equal(t, "W1ABC", tx.Status().Callsign)
	require.NoError(t, tx.Start())

	require.ErrorIs(t, tx.Prepare(testDialHz, testCall, testGrid, 10), ErrTransmissionInProgress)
	require.ErrorIs(t, tx.Start(), ErrTransmissionInProgress)
}

func TestDoneRequiresPrepare(t *testing.T) {
	tx, _, clk, _ := newTest(t, 0)
	require.NoError(t, tx.Start())
	clk.Set(BoundaryOffset(Boundaries))
	for tx.Tick() == StateTransmitting {
	}

	require.ErrorIs(t, tx.Start(), ErrNotPrepared)
	require.NoError(t, tx.Prepare(testDialHz, testCall, testGrid, testPower))
	require.Equal(t, StateIdle, tx.State())
	require.NoError(t, tx.Start())
}

func TestMissedWritesDoNotStall(t *testing.T) {
	tx, rec, clk, _ := newTest(t, 0)
	rec.fail = map[int]bool{0: true, 10: true, 162: true}

	require.NoError(t, tx.Start())
	for n := 0; n < Boundaries; n++ {
		clk.Set(BoundaryOffset(n))
		tx.Tick()
	}

	st := tx.Status()
	require.Equal(t, StateDone, st.State)
	require.Equal(t, 3, st.MissedWrites)
	require.Equal(t, 163, st.Writes)
	require.Equal(t, expectedWords(t, 1.0), rec.words)
}

func TestFactorSnapshotAtStart(t *testing.T) {
	tx, rec, clk, f := newTest(t, 0)
	f.v = 1.00001

	require.NoError(t, tx.Start())
	f.v = 0.99

	for n := 0; n < Boundaries; n++ {
		clk.Set(BoundaryOffset(n))
		tx.Tick()
	}

	require.Equal(t, expectedWords(t, 1.00001), rec.words)
	require.Equal(t, 1.00001, tx.Status().CorrectionFactor)
}

func TestWrapSafeElapsed(t *testing.T) {
	start := int64(math.MaxInt64) - BoundaryOffset(0)/2
	tx, rec, clk, _ := newTest(t, start)
	require.NoError(t, tx.Start())

	// Overflows into negative values before the first boundary.
	clk.Advance(BoundaryOffset(0) - 1)
	tx.Tick()
	require.Empty(t, rec.words)

	clk.Advance(1)
	tx.Tick()
	require.Len(t, rec.words, 1)
}

func TestNextDeadline(t *testing.T) {
	tx, _, clk, _ := newTest(t, 7)

	_, ok := tx.NextDeadline()
	require.False(t, ok)

	require.NoError(t, tx.Start())
	d, ok := tx.NextDeadline()
	require.True(t, ok)
	require.Equal(t, 7+BoundaryOffset(0), d)

	clk.Set(d)
	tx.Tick()
	d, _ = tx.NextDeadline()
	require.Equal(t, 7+BoundaryOffset(1), d)
}

// never is a waiter whose deadlines never arrive.
type never struct{ clock.Timer }

func (never) WaitUntil(int64) <-chan struct{} { return make(chan struct{}) }

func TestRunBlockingCancel(t *testing.T) {
	tx, rec, _, _ := newTest(t, 0)
	require.NoError(t, tx.Start())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunBlocking(ctx, tx, never{}) }()

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	require.Equal(t, StateIdle, tx.State())
	require.Equal(t, []uint32{0}, rec.words)
}

func TestRunBlockingStopsOnAbort(t *testing.T) {
	tx, _, _, _ := newTest(t, 0)
	require.NoError(t, tx.Start())

	done := make(chan error, 1)
	go func() { done <- RunBlocking(context.Background(), tx, never{}) }()

	require.True(t, tx.Abort())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("RunBlocking did not return after abort")
	}
}

func TestRunBlockingNotTransmitting(t *testing.T) {
	tx, rec, clk, _ := newTest(t, 0)
	require.NoError(t, RunBlocking(context.Background(), tx, clk))
	require.Empty(t, rec.words)
}

func TestWithFPGAMock(t *testing.T) {
	clk := clock.NewFake(0)
	dev, mock := fpga.NewMock(0)
	tx, err := New(dev, clk, &factor{v: 1})
	require.NoError(t, err)

	require.NoError(t, tx.Prepare(testDialHz, testCall, testGrid, testPower))
	require.NoError(t, tx.Start())
	require.NoError(t, RunBlocking(context.Background(), tx, clk))

	require.Equal(t, expectedWords(t, 1.0), mock.Words())
}
