// Package gnss holds the position and time handed over by an external GNSS
// receiver. NMEA parsing lives outside the daemon.
package gnss

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultMaxAge is how long a fix is trusted after it was received.
const DefaultMaxAge = 5 * time.Second

var (
	ErrInvalidPosition = errors.New("gnss: position out of range")
	ErrNoGrid          = errors.New("gnss: no grid configured and no valid fix")
)

// Fix is the latest receiver state.
type Fix struct {
	HasFix     bool      `json:"hasFix"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	UTCTime    time.Time `json:"utcTime"`
	Satellites int       `json:"satellites"`
	HDOP       float64   `json:"hdop"`
	AltitudeM  float64   `json:"altitudeM"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// IsStale reports whether the fix is older than maxAge at now.
func (f Fix) IsStale(now time.Time, maxAge time.Duration) bool {
	return f.ReceivedAt.IsZero() || now.Sub(f.ReceivedAt) > maxAge
}

// LatLonToGrid returns the 4-character Maidenhead locator for a position.
func LatLonToGrid(lat, lon float64) (string, error) {
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return "", fmt.Errorf("%w: %f,%f", ErrInvalidPosition, lat, lon)
	}

	// The north pole and the antimeridian fold into the last square.
	adjLon := math.Min(lon+180, 360-1e-9)
	adjLat := math.Min(lat+90, 180-1e-9)

	b := []byte{
		'A' + byte(adjLon/20),
		'A' + byte(adjLat/10),
		'0' + byte(math.Mod(adjLon, 20)/2),
		'0' + byte(math.Mod(adjLat, 10)),
	}
	return string(b), nil
}

// EffectiveGrid picks the locator to transmit: the configured one, or the
// one derived from a fresh fix.
func EffectiveGrid(configured string, fix Fix, now time.Time) (string, error) {
	if g := strings.TrimSpace(configured); g != "" {
		return strings.ToUpper(g), nil
	}
	if !fix.HasFix || fix.IsStale(now, DefaultMaxAge) {
		return "", ErrNoGrid
	}
	return LatLonToGrid(fix.Latitude, fix.Longitude)
}

// TimeSink accepts the UTC second of the next PPS edge.
type TimeSink interface {
	SetNextPPSTime(utcSeconds int64)
}

// Tracker keeps the latest fix and forwards time to the calibration engine.
type Tracker struct {
	mu   sync.RWMutex
	fix  Fix
	sink TimeSink
	now  func() time.Time
}

// NewTracker returns a Tracker. sink may be nil.
func NewTracker(sink TimeSink) *Tracker {
	return &Tracker{sink: sink, now: time.Now}
}

// Update records a fix. A fix with time announces the following second as
// the time of the next PPS edge.
func (t *Tracker) Update(f Fix) {
	f.ReceivedAt = t.now()

	t.mu.Lock()
	t.fix = f
	t.mu.Unlock()

	if f.HasFix && !f.UTCTime.IsZero() && t.sink != nil {
		t.sink.SetNextPPSTime(f.UTCTime.Unix() + 1)
	}

	logrus.WithFields(logrus.Fields{
		"hasFix":     f.HasFix,
		"lat":        f.Latitude,
		"lon":        f.Longitude,
		"satellites": f.Satellites,
		"utc":        f.UTCTime,
	}).Debug("gnss fix updated")
}

// Fix returns the latest fix.
func (t *Tracker) Fix() Fix {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fix
}

// Grid returns the effective grid for configured.
func (t *Tracker) Grid(configured string) (string, error) {
	return EffectiveGrid(configured, t.Fix(), t.now())
}
