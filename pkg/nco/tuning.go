// Package nco converts carrier frequencies into FPGA NCO tuning words.
package nco

import (
	"math"
)

const (
	// SystemClockHz is the nominal FPGA system clock.
	SystemClockHz = 180_000_000
	// ToneMultiplier is the number of phase steps the NCO takes per output
	// cycle relative to the system clock.
	ToneMultiplier = 6
	// ToneCount is the number of WSPR FSK tones.
	ToneCount = 4
	// ToneSpacingHz is 12000/8192 Hz, fixed by the WSPR symbol rate.
	ToneSpacingHz = 12000.0 / 8192.0
)

const phaseSteps = 1 << 32

// TuningWord returns floor(freqHz * 6 * factor * 2^32 / 180 MHz).
//
// Non-positive (or NaN) results map to 0 and results beyond the 32-bit range
// saturate, so the word never decreases as freqHz grows.
func TuningWord(freqHz, correctionFactor float64) uint32 {
	w := freqHz * ToneMultiplier * correctionFactor * phaseSteps / SystemClockHz
	if !(w > 0) {
		return 0
	}
	if w >= phaseSteps {
		return math.MaxUint32
	}
	return uint32(w)
}

// MaxFrequencyHz is the highest frequency whose tuning word does not
// saturate for the given correction factor.
func MaxFrequencyHz(correctionFactor float64) float64 {
	if !(correctionFactor > 0) {
		return 0
	}
	return (phaseSteps - 1) * SystemClockHz / (ToneMultiplier * correctionFactor * phaseSteps)
}

// ToneFrequency returns the frequency of FSK tone index above baseHz.
func ToneFrequency(baseHz float64, index int) float64 {
	return baseHz + float64(index)*ToneSpacingHz
}

// ToneWords precomputes the tuning words of all four tones.
func ToneWords(baseHz, correctionFactor float64) (words [ToneCount]uint32) {
	for i := range words {
		words[i] = TuningWord(ToneFrequency(baseHz, i), correctionFactor)
	}
	return
}
