package calibration

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/wsprd/pkg/nco"
)

var (
	ErrMissingCounter = errors.New("calibration: counter reader is required")
	ErrOutOfRange     = errors.New("calibration: sample outside accepted range")
)

// Engine turns PPS edges into a smoothed correction factor.
type Engine struct {
	counter CounterReader
	opts    Options

	factorBits atomic.Uint64
	pendingUTC atomic.Int64
	dropped    atomic.Uint64
	edges      chan edge

	mu     sync.RWMutex
	stats  Stats
	streak int
}

// edge is one PPS edge handed from SignalEdge to the worker.
type edge struct {
	utc int64
	at  time.Time
}

// New returns an engine with correction factor 1.0.
func New(counter CounterReader, opts Options) (*Engine, error) {
	if counter == nil {
		return nil, ErrMissingCounter
	}
	if opts.LockThresholdPPM <= 0 {
		opts.LockThresholdPPM = DefaultLockThresholdPPM
	}
	if opts.LockSamples <= 0 {
		opts.LockSamples = DefaultLockSamples
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	e := &Engine{
		counter: counter,
		opts:    opts,
		edges:   make(chan edge, 1),
		stats:   Stats{Phase: PhaseAcquiring, CorrectionFactor: 1.0},
	}
	e.factorBits.Store(math.Float64bits(1.0))

	return e, nil
}

// SignalEdge is called on every PPS rising edge. It never blocks. If the
// worker has not picked up the previous edge yet, this one is dropped.
func (e *Engine) SignalEdge() {
	ev := edge{utc: e.pendingUTC.Swap(0), at: e.opts.Now()}
	select {
	case e.edges <- ev:
	default:
		e.dropped.Add(1)
	}
}

// SetNextPPSTime announces the UTC second the next PPS edge marks. It is
// consumed by exactly one edge. Zero clears it.
func (e *Engine) SetNextPPSTime(utcSeconds int64) {
	e.pendingUTC.Store(utcSeconds)
}

// SetLockParams changes the lock criteria. Values <= 0 select the
// defaults. The current streak is kept and judged by the new criteria from
// the next sample on.
func (e *Engine) SetLockParams(thresholdPPM float64, samples int) {
	if thresholdPPM <= 0 {
		thresholdPPM = DefaultLockThresholdPPM
	}
	if samples <= 0 {
		samples = DefaultLockSamples
	}

	e.mu.Lock()
	e.opts.LockThresholdPPM = thresholdPPM
	e.opts.LockSamples = samples
	e.mu.Unlock()
}

// LockParams returns the lock threshold in ppm and the number of
// consecutive samples required.
func (e *Engine) LockParams() (float64, int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.opts.LockThresholdPPM, e.opts.LockSamples
}

// CorrectionFactor returns the current smoothed factor.
func (e *Engine) CorrectionFactor() float64 {
	return math.Float64frombits(e.factorBits.Load())
}

// CorrectedTuningWord returns the tuning word for freqHz with the current
// correction applied.
func (e *Engine) CorrectedTuningWord(freqHz float64) uint32 {
	return nco.TuningWord(freqHz, e.CorrectionFactor())
}

// Stats returns a snapshot of the engine state.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	s := e.stats
	e.mu.RUnlock()

	s.CorrectionFactor = e.CorrectionFactor()
	s.DroppedEdges = e.dropped.Load()

	return s
}

// Run processes edges until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	threshold, samples := e.LockParams()
	logrus.WithFields(logrus.Fields{
		"lockThresholdPpm": threshold,
		"lockSamples":      samples,
	}).Info("calibration worker started")

	for {
		select {
		case <-ctx.Done():
			logrus.Info("calibration worker stopped")
			return ctx.Err()
		case ev := <-e.edges:
			e.processEdge(ev)
		}
	}
}

func (e *Engine) processEdge(ev edge) {
	if ev.utc != 0 && e.opts.SetClock != nil {
		// The edge marked ev.utc exactly; time has moved on since.
		t := time.Unix(ev.utc, 0).Add(e.opts.Now().Sub(ev.at))
		if err := e.opts.SetClock(t); err != nil {
			logrus.WithError(err).WithField("utc", ev.utc).Warn("failed to set system clock")
		} else {
			e.mu.Lock()
			e.stats.LastClockSetUTC = ev.utc
			e.mu.Unlock()
		}
	}

	count, err := e.counter.ReadPPSCount()
	if err != nil {
		e.reject(0, err)
		return
	}

	e.apply(Sample{MeasuredCounts: count, Timestamp: e.opts.Now()})
}

// apply feeds one measurement through validation and the EMA.
func (e *Engine) apply(s Sample) {
	if s.MeasuredCounts < MinValidCounts || s.MeasuredCounts > MaxValidCounts {
		e.reject(s.MeasuredCounts, fmt.Errorf("%w: %d not in [%d, %d]",
			ErrOutOfRange, s.MeasuredCounts, MinValidCounts, MaxValidCounts))
		return
	}

	instant := float64(NominalCounts) / float64(s.MeasuredCounts)
	prev := e.CorrectionFactor()
	next := (1-emaAlpha)*prev + emaAlpha*instant
	e.factorBits.Store(math.Float64bits(next))

	deviationPPM := math.Abs(instant-next) / next * 1e6

	e.mu.Lock()
	wasLocked := e.stats.IsLocked
	if deviationPPM < e.opts.LockThresholdPPM {
		e.streak++
	} else {
		e.streak = 0
	}
	e.stats.IsLocked = e.streak >= e.opts.LockSamples
	e.stats.LockStreak = e.streak
	e.stats.Phase = phaseOf(e.stats.IsLocked)
	e.stats.AcceptedSamples++
	e.stats.LastFPGACount = s.MeasuredCounts
	e.stats.LastSampleAt = s.Timestamp
	e.stats.FrequencyErrorPPM = (1/next - 1) * 1e6
	e.stats.CorrectionFactor = next
	changed := wasLocked != e.stats.IsLocked
	snapshot := e.stats
	e.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"count":        s.MeasuredCounts,
		"factor":       next,
		"deviationPpm": deviationPPM,
		"streak":       snapshot.LockStreak,
	}).Debug("calibration sample accepted")

	if changed {
		e.lockChanged(snapshot)
	}
}

func (e *Engine) reject(count uint32, reason error) {
	e.mu.Lock()
	wasLocked := e.stats.IsLocked
	e.streak = 0
	e.stats.LockStreak = 0
	e.stats.IsLocked = false
	e.stats.Phase = PhaseAcquiring
	e.stats.RejectedSamples++
	e.stats.LastRejectReason = reason.Error()
	if count != 0 {
		e.stats.LastFPGACount = count
	}
	snapshot := e.stats
	e.mu.Unlock()

	logrus.WithError(reason).WithField("count", count).Warn("calibration sample rejected")

	if wasLocked {
		e.lockChanged(snapshot)
	}
}

func (e *Engine) lockChanged(s Stats) {
	s.CorrectionFactor = e.CorrectionFactor()
	s.DroppedEdges = e.dropped.Load()

	logrus.WithFields(logrus.Fields{
		"locked":   s.IsLocked,
		"factor":   s.CorrectionFactor,
		"errorPpm": s.FrequencyErrorPPM,
	}).Info("calibration lock state changed")

	if e.opts.OnLockChange != nil {
		e.opts.OnLockChange(s)
	}
}

func phaseOf(locked bool) Phase {
	if locked {
		return PhaseLocked
	}
	return PhaseAcquiring
}
