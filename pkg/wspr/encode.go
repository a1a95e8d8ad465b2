package wspr

import (
	"errors"
	"fmt"
	"strings"
)

// SymbolCount is the number of channel symbols in one WSPR transmission.
const SymbolCount = 162

const (
	MinPowerDbm = 0
	MaxPowerDbm = 60
)

// Symbols is a complete WSPR channel-symbol sequence. Every element is a
// tone index in 0..3.
type Symbols [SymbolCount]uint8

var (
	// ErrInvalidCallsign is returned when a callsign cannot be packed into a
	// Type-1 message.
	ErrInvalidCallsign = errors.New("invalid callsign")

	// ErrInvalidGrid is returned when the locator is not a 4-character
	// Maidenhead square.
	ErrInvalidGrid = errors.New("invalid grid locator")

	// ErrInvalidPower is returned when the power is outside 0..60 dBm.
	ErrInvalidPower = errors.New("invalid power")
)

// Encode turns a Type-1 message into its 162 channel symbols.
//
// Lower-case input is accepted. The result depends only on the arguments.
func Encode(callsign, grid string, powerDbm int) (Symbols, error) {
	n, err := packCallsign(callsign)
	if err != nil {
		return Symbols{}, err
	}

	m, err := packGrid(grid)
	if err != nil {
		return Symbols{}, err
	}

	if powerDbm < MinPowerDbm || powerDbm > MaxPowerDbm {
		return Symbols{}, fmt.Errorf("%w: %d dBm is outside %d..%d", ErrInvalidPower, powerDbm, MinPowerDbm, MaxPowerDbm)
	}
	m = m*128 + uint32(powerDbm) + 64

	return mergeSync(interleave(convolve(packMessage(n, m)))), nil
}

// StandardPower reports whether dbm is one of the levels WSPR decoders
// display, i.e. it ends in 0, 3 or 7.
func StandardPower(dbm int) bool {
	if dbm < MinPowerDbm || dbm > MaxPowerDbm {
		return false
	}
	switch dbm % 10 {
	case 0, 3, 7:
		return true
	}
	return false
}

// NormalizeCallsign aligns a callsign so that its digit lands in the third
// position and pads it to six characters.
func NormalizeCallsign(callsign string) (string, error) {
	call := strings.ToUpper(strings.TrimSpace(callsign))
	if len(call) < 2 {
		return "", fmt.Errorf("%w: %q is too short", ErrInvalidCallsign, callsign)
	}

	if isDigit(call[1]) {
		call = " " + call
	}
	if len(call) > 6 {
		return "", fmt.Errorf("%w: %q is too long", ErrInvalidCallsign, callsign)
	}
	call += strings.Repeat(" ", 6-len(call))

	switch {
	case !(isDigit(call[0]) || isLetter(call[0]) || call[0] == ' '):
		return "", fmt.Errorf("%w: %q has an invalid first character", ErrInvalidCallsign, callsign)
	case !(isDigit(call[1]) || isLetter(call[1])):
		return "", fmt.Errorf("%w: %q needs a letter or digit in the prefix", ErrInvalidCallsign, callsign)
	case !isDigit(call[2]):
		return "", fmt.Errorf("%w: %q needs a digit in the second or third position", ErrInvalidCallsign, callsign)
	}
	for i := 3; i < 6; i++ {
		if !(isLetter(call[i]) || call[i] == ' ') {
			return "", fmt.Errorf("%w: %q may only have letters in the suffix", ErrInvalidCallsign, callsign)
		}
	}
	// Trailing spaces only: "K1 A B" is not a callsign.
	if strings.Contains(strings.TrimRight(call[3:], " "), " ") {
		return "", fmt.Errorf("%w: %q has a gap in the suffix", ErrInvalidCallsign, callsign)
	}

	return call, nil
}

// packCallsign returns the 28-bit callsign field.
func packCallsign(callsign string) (uint32, error) {
	call, err := NormalizeCallsign(callsign)
	if err != nil {
		return 0, err
	}

	n := charValue(call[0])
	n = n*36 + charValue(call[1])
	n = n*10 + charValue(call[2])
	n = n*27 + charValue(call[3]) - 10
	n = n*27 + charValue(call[4]) - 10
	n = n*27 + charValue(call[5]) - 10

	return n & 0x0FFFFFFF, nil
}

// packGrid returns the 15-bit locator field, before power is folded in.
func packGrid(grid string) (uint32, error) {
	if len(grid) != 4 {
		return 0, fmt.Errorf("%w: %q must have exactly 4 characters", ErrInvalidGrid, grid)
	}
	g := strings.ToUpper(grid)
	if g[0] < 'A' || g[0] > 'R' || g[1] < 'A' || g[1] > 'R' {
		return 0, fmt.Errorf("%w: %q field must be A-R", ErrInvalidGrid, grid)
	}
	if !isDigit(g[2]) || !isDigit(g[3]) {
		return 0, fmt.Errorf("%w: %q square must be 0-9", ErrInvalidGrid, grid)
	}

	lon1 := uint32(g[0] - 'A')
	lat1 := uint32(g[1] - 'A')
	lon2 := uint32(g[2] - '0')
	lat2 := uint32(g[3] - '0')

	return ((179-10*lon1-lon2)*180 + 10*lat1 + lat2) & 0x7FFF, nil
}

// packMessage lays the 28-bit callsign and 22-bit locator/power fields out
// MSB first. The trailing zero bits are the encoder tail.
func packMessage(n, m uint32) (c [11]byte) {
	c[0] = byte(n >> 20)
	c[1] = byte(n >> 12)
	c[2] = byte(n >> 4)
	c[3] = byte(n&0x0F)<<4 | byte(m>>18&0x0F)
	c[4] = byte(m >> 10)
	c[5] = byte(m >> 2)
	c[6] = byte(m&0x03) << 6
	return
}

func isDigit(b byte) bool  { return b >= '0' && b <= '9' }
func isLetter(b byte) bool { return b >= 'A' && b <= 'Z' }

func charValue(b byte) uint32 {
	switch {
	case isDigit(b):
		return uint32(b - '0')
	case b == ' ':
		return 36
	default:
		return uint32(b-'A') + 10
	}
}
