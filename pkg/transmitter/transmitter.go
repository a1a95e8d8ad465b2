// Package transmitter sequences the 162 WSPR symbols onto the NCO.
//
// A Transmitter is driven either by repeated Tick calls from a shared
// polling loop or by RunBlocking from a dedicated goroutine. Both produce
// the same SPI writes at the same deadlines.
package transmitter

import (
	"errors"
	"math"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/wsprd/pkg/clock"
	"github.com/charlie0129/wsprd/pkg/nco"
	"github.com/charlie0129/wsprd/pkg/wspr"
)

// State of a transmitter.
type State string

const (
	StateIdle         State = "Idle"
	StateTransmitting State = "Transmitting"
	StateDone         State = "Done"
)

var (
	ErrMissingDependency      = errors.New("transmitter: spi, timer and factor source are required")
	ErrTransmissionInProgress = errors.New("transmitter: transmission in progress")
	ErrNotPrepared            = errors.New("transmitter: no message prepared")
	ErrFrequencyOutOfRange    = errors.New("transmitter: dial frequency out of NCO range")
)

// Symbol timing. One symbol lasts 8192/12000 s; the boundary offsets are
// evaluated exactly in integer picoseconds.
const (
	symbolPeriodNum = 8192 * clock.Second
	symbolPeriodDen = 12000

	// Boundaries is the number of scheduled writes: one per symbol plus the
	// terminal zero word.
	Boundaries = wspr.SymbolCount + 1
)

// SymbolPeriodPs is the symbol period rounded down to a picosecond. Use
// BoundaryOffset for scheduling.
const SymbolPeriodPs = symbolPeriodNum / symbolPeriodDen

// BoundaryOffset returns the time from start to boundary n (0-based). The
// first write is due one full symbol period after start.
func BoundaryOffset(n int) int64 {
	return int64(n+1) * symbolPeriodNum / symbolPeriodDen
}

// Writer is the SPI boundary. Only 4-byte writes are issued.
type Writer interface {
	WriteTuningWord(w uint32) error
}

// FactorSource provides the live correction factor.
type FactorSource interface {
	CorrectionFactor() float64
}

// Status is a snapshot for diagnostics.
type Status struct {
	State            State     `json:"state"`
	Callsign         string    `json:"callsign,omitempty"`
	Grid             string    `json:"grid,omitempty"`
	PowerDbm         int       `json:"powerDbm"`
	DialFrequencyHz  float64   `json:"dialFrequencyHz"`
	Prepared         bool      `json:"prepared"`
	SymbolIndex      int       `json:"symbolIndex"`
	TotalSymbols     int       `json:"totalSymbols"`
	Writes           int       `json:"writes"`
	MissedWrites     int       `json:"missedWrites"`
	MaxLatenessPs    int64     `json:"maxLatenessPs"`
	CorrectionFactor float64   `json:"correctionFactor"`
	ToneWords        [4]uint32 `json:"toneWords"`
	StartedAtPs      int64     `json:"startedAtPs"`
}

// Transmitter is safe for concurrent use.
type Transmitter struct {
	mu sync.Mutex

	spi    Writer
	timer  clock.Timer
	factor FactorSource

	state    State
	prepared bool
	symbols  wspr.Symbols
	dialHz   float64
	callsign string
	grid     string
	powerDbm int

	t0             int64
	next           int
	tones          [nco.ToneCount]uint32
	factorSnapshot float64
	writes         int
	missed         int
	maxLateness    int64
	stopped        chan struct{}
}

// New returns an idle transmitter. All dependencies are mandatory.
func New(spi Writer, timer clock.Timer, factor FactorSource) (*Transmitter, error) {
	if spi == nil || timer == nil || factor == nil {
		return nil, ErrMissingDependency
	}
	return &Transmitter{
		spi:    spi,
		timer:  timer,
		factor: factor,
		state:  StateIdle,
	}, nil
}

// Prepare encodes a message for the next Start. The clock is not touched.
func (t *Transmitter) Prepare(dialHz float64, callsign, grid string, powerDbm int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateTransmitting {
		return ErrTransmissionInProgress
	}

	top := nco.ToneFrequency(dialHz, nco.ToneCount-1)
	if math.IsNaN(dialHz) || dialHz <= 0 || top >= nco.MaxFrequencyHz(1.0) {
		return ErrFrequencyOutOfRange
	}

	symbols, err := wspr.Encode(callsign, grid, powerDbm)
	if err != nil {
		return err
	}

	t.symbols = symbols
	t.dialHz = dialHz
	t.callsign = strings.ToUpper(strings.TrimSpace(callsign))
	t.grid = strings.ToUpper(grid)
	t.powerDbm = powerDbm
	t.prepared = true
	t.state = StateIdle

	logrus.WithFields(logrus.Fields{
		"dialHz":   dialHz,
		"callsign": callsign,
		"grid":     grid,
		"powerDbm": powerDbm,
	}).Debug("message prepared")

	return nil
}

// Start begins a transmission now. The correction factor is read once and
// the four tone words are fixed for the whole transmission.
func (t *Transmitter) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateTransmitting {
		return ErrTransmissionInProgress
	}
	if !t.prepared {
		return ErrNotPrepared
	}

	t.factorSnapshot = t.factor.CorrectionFactor()
	t.tones = nco.ToneWords(t.dialHz, t.factorSnapshot)
	t.next = 0
	t.writes = 0
	t.missed = 0
	t.maxLateness = 0
	t.stopped = make(chan struct{})
	t.state = StateTransmitting
	t.t0 = t.timer.NowPicoseconds()

	logrus.WithFields(logrus.Fields{
		"dialHz": t.dialHz,
		"factor": t.factorSnapshot,
		"tones":  t.tones,
	}).Info("transmission started")

	return nil
}

// Tick writes at most one tuning word if the next boundary is due and
// returns the resulting state. It never waits.
func (t *Transmitter) Tick() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateTransmitting {
		return t.state
	}

	elapsed := t.timer.NowPicoseconds() - t.t0
	due := BoundaryOffset(t.next)
	if elapsed < due {
		return t.state
	}

	var word uint32
	if t.next < wspr.SymbolCount {
		word = t.tones[t.symbols[t.next]]
	}
	t.write(word)

	if late := elapsed - due; late > t.maxLateness {
		t.maxLateness = late
	}

	t.next++
	if t.next >= Boundaries {
		t.finish(StateDone)
		t.prepared = false

		logrus.WithFields(logrus.Fields{
			"writes":        t.writes,
			"missedWrites":  t.missed,
			"maxLatenessUs": t.maxLateness / clock.Microsecond,
		}).Info("transmission complete")
	}

	return t.state
}

// Abort stops an in-flight transmission, silences the NCO and returns to
// Idle keeping the prepared message. It reports whether anything was
// stopped.
func (t *Transmitter) Abort() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateTransmitting {
		return false
	}

	t.write(0)
	t.finish(StateIdle)

	logrus.WithField("symbolIndex", t.next).Warn("transmission aborted")

	return true
}

// State returns the current state.
func (t *Transmitter) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// NextDeadline returns the absolute time of the next boundary. ok is false
// when no transmission is in flight.
func (t *Transmitter) NextDeadline() (deadline int64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateTransmitting {
		return 0, false
	}
	return t.t0 + BoundaryOffset(t.next), true
}

// Status returns a snapshot for diagnostics.
func (t *Transmitter) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.next
	if idx > wspr.SymbolCount {
		idx = wspr.SymbolCount
	}

	return Status{
		State:            t.state,
		Callsign:         t.callsign,
		Grid:             t.grid,
		PowerDbm:         t.powerDbm,
		DialFrequencyHz:  t.dialHz,
		Prepared:         t.prepared,
		SymbolIndex:      idx,
		TotalSymbols:     wspr.SymbolCount,
		Writes:           t.writes,
		MissedWrites:     t.missed,
		MaxLatenessPs:    t.maxLateness,
		CorrectionFactor: t.factorSnapshot,
		ToneWords:        t.tones,
		StartedAtPs:      t.t0,
	}
}

// wait returns what a dedicated runner needs to block on.
func (t *Transmitter) wait() (deadline int64, stopped <-chan struct{}, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateTransmitting {
		return 0, nil, false
	}
	return t.t0 + BoundaryOffset(t.next), t.stopped, true
}

// write must be called with mu held. Failures are counted and the schedule
// continues.
func (t *Transmitter) write(word uint32) {
	t.writes++
	if err := t.spi.WriteTuningWord(word); err != nil {
		t.missed++
		logrus.WithError(err).WithFields(logrus.Fields{
			"boundary": t.next,
			"word":     word,
		}).Warn("tuning word write failed")
	}
}

func (t *Transmitter) finish(s State) {
	t.state = s
	if t.stopped != nil {
		close(t.stopped)
		t.stopped = nil
	}
}
