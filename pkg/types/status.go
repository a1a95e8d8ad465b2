package types

import (
	"time"

	"github.com/charlie0129/wsprd/pkg/calibration"
	"github.com/charlie0129/wsprd/pkg/gnss"
	"github.com/charlie0129/wsprd/pkg/transmitter"
)

// Status is the daemon's combined view of the beacon.
// This struct is shared between the daemon and client packages.
type Status struct {
	Enabled           bool               `json:"enabled"`
	TxMode            string             `json:"txMode"`
	Transmitter       transmitter.Status `json:"transmitter"`
	Calibration       calibration.Stats  `json:"calibration"`
	GNSS              gnss.Fix           `json:"gnss"`
	Grid              string             `json:"grid,omitempty"`
	GridError         string             `json:"gridError,omitempty"`
	NextSlot          time.Time          `json:"nextSlot"`
	SchedulerRunning  bool               `json:"schedulerRunning"`
	CompletedLastHour int                `json:"completedLastHour"`
	PPSEdges          uint64             `json:"ppsEdges"`
}

// Skip is returned after skipping the next slot.
type Skip struct {
	NextSlot time.Time `json:"nextSlot"`
}
