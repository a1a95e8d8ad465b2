package nco

import (
	"fmt"
	"strings"
)

// Band is an amateur band with its conventional WSPR dial frequency.
type Band struct {
	Name   string
	DialHz uint32
}

// Bands lists the WSPR dial frequencies, lowest first.
var Bands = []Band{
	{"160m", 1_836_600},
	{"80m", 3_568_600},
	{"60m", 5_287_200},
	{"40m", 7_038_600},
	{"30m", 10_138_700},
	{"20m", 14_095_600},
	{"17m", 18_104_600},
	{"15m", 21_094_600},
	{"12m", 24_924_600},
	{"10m", 28_124_600},
	{"6m", 50_293_000},
}

// WSPR signals sit in a 200 Hz window 1400..1600 Hz above the dial.
const (
	AudioOffsetMinHz = 1400
	AudioOffsetMaxHz = 1600
)

// BandByName looks a band up case-insensitively, e.g. "20m".
func BandByName(name string) (Band, error) {
	for _, b := range Bands {
		if strings.EqualFold(b.Name, name) {
			return b, nil
		}
	}
	return Band{}, fmt.Errorf("unknown band %q", name)
}
