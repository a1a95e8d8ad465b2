// Package calibration measures the FPGA system clock against the GNSS PPS
// signal and maintains the correction factor applied to every tuning word.
//
// Work is split between two contexts:
//
//   - the edge context calls SignalEdge on every PPS rising edge; it only
//     stamps the edge and hands it over a one-slot channel
//   - the worker goroutine (Run) reads the cycle counter over SPI, validates
//     the sample and updates the smoothed factor
//
// Readers (the transmitter, the diagnostics API) load the factor lock-free.
package calibration
