package calibration

import "time"

// Counts per PPS period of a perfect 25 MHz reference, and the accepted band
// around it.
const (
	NominalCounts  uint32 = 25_000_000
	MinValidCounts        = NominalCounts / 100 * 96
	MaxValidCounts        = NominalCounts / 100 * 104
)

// Defaults for the lock detector.
const (
	DefaultLockThresholdPPM = 1.0
	DefaultLockSamples      = 10
)

// Smoothing weight of a new sample.
const emaAlpha = 0.1

// Phase is the coarse state of the lock detector.
type Phase string

const (
	PhaseAcquiring Phase = "Acquiring"
	PhaseLocked    Phase = "Locked"
)

// Sample is one PPS-period measurement.
type Sample struct {
	MeasuredCounts uint32    `json:"measuredCounts"`
	Timestamp      time.Time `json:"timestamp"`
}

// Stats is a snapshot of the engine for diagnostics.
type Stats struct {
	Phase             Phase     `json:"phase"`
	CorrectionFactor  float64   `json:"correctionFactor"`
	FrequencyErrorPPM float64   `json:"frequencyErrorPpm"`
	LastFPGACount     uint32    `json:"lastFpgaCount"`
	LastSampleAt      time.Time `json:"lastSampleAt"`
	IsLocked          bool      `json:"isLocked"`
	LockStreak        int       `json:"lockStreak"`
	AcceptedSamples   uint64    `json:"acceptedSamples"`
	RejectedSamples   uint64    `json:"rejectedSamples"`
	DroppedEdges      uint64    `json:"droppedEdges"`
	LastRejectReason  string    `json:"lastRejectReason,omitempty"`
	LastClockSetUTC   int64     `json:"lastClockSetUtc,omitempty"`
}

// CounterReader returns the number of system-clock cycles counted between
// the two most recent PPS edges.
type CounterReader interface {
	ReadPPSCount() (uint32, error)
}

// ClockSetter steps the system clock to t.
type ClockSetter func(t time.Time) error

// Options tune the engine. Zero values select defaults.
type Options struct {
	LockThresholdPPM float64
	LockSamples      int
	// SetClock is called from the worker with the UTC second announced
	// through SetNextPPSTime for the edge being processed, plus the time
	// elapsed since that edge.
	SetClock ClockSetter
	// OnLockChange is called from the worker when IsLocked flips.
	OnLockChange func(Stats)
	// Now defaults to time.Now.
	Now func() time.Time
}
