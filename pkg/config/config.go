package config

import "time"

// TxMode selects who drives the transmitter.
type TxMode string

const (
	// TxModePolling ticks the transmitter from the daemon's shared loop.
	TxModePolling TxMode = "polling"
	// TxModeBlocking gives every transmission its own goroutine that sleeps
	// until each symbol deadline.
	TxModeBlocking TxMode = "blocking"
)

type Config interface {
	Callsign() string
	Grid() string
	PowerDbm() int
	Band() string
	DialFrequencyHz() float64
	TxMode() TxMode
	SlotSchedule() string
	TickInterval() time.Duration
	LockThresholdPPM() float64
	LockSamples() int
	SPIPort() string
	SPISpeedHz() int64
	PPSChip() string
	PPSLine() int
	SetSystemClock() bool
	Enabled() bool
	AllowNonRootAccess() bool

	SetCallsign(string)
	SetGrid(string)
	SetPowerDbm(int)
	SetDialFrequencyHz(float64)
	SetEnabled(bool)
	SetAllowNonRootAccess(bool)

	// Validate checks the values a transmission depends on.
	Validate() error
	// Load reads the configuration from the source.
	Load() error
	// Reload reads the source and adopts it only if it validates. On error
	// the current values are kept.
	Reload() error
	// Save saves the configuration to the source.
	Save() error
}
