package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/wsprd/pkg/config"
	"github.com/charlie0129/wsprd/pkg/events"
	"github.com/charlie0129/wsprd/pkg/transmitter"
)

// Results recorded in the transmission history.
const (
	ResultCompleted = "completed"
	ResultAborted   = "aborted"
)

// TxRecord describes one finished transmission.
type TxRecord struct {
	StartedAt        time.Time `json:"startedAt"`
	FinishedAt       time.Time `json:"finishedAt"`
	Result           string    `json:"result"`
	Callsign         string    `json:"callsign"`
	Grid             string    `json:"grid"`
	PowerDbm         int       `json:"powerDbm"`
	DialFrequencyHz  float64   `json:"dialFrequencyHz"`
	MissedWrites     int       `json:"missedWrites"`
	MaxLatenessUs    int64     `json:"maxLatenessUs"`
	CorrectionFactor float64   `json:"correctionFactor"`
}

// History records the last N finished transmissions.
type History struct {
	MaxRecordCount int
	Records        []TxRecord
	mu             *sync.Mutex
}

// NewHistory returns a new History.
func NewHistory(maxRecordCount int) *History {
	return &History{
		MaxRecordCount: maxRecordCount,
		Records:        make([]TxRecord, 0),
		mu:             &sync.Mutex{},
	}
}

// Add appends a record, evicting the oldest when full.
func (h *History) Add(r TxRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Strip monotonic clock readings.
	r.StartedAt = r.StartedAt.Round(0)
	r.FinishedAt = r.FinishedAt.Round(0)

	if len(h.Records) >= h.MaxRecordCount {
		h.Records = h.Records[1:]
	}
	h.Records = append(h.Records, r)
}

// Get returns a copy of the records, oldest first.
func (h *History) Get() []TxRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]TxRecord(nil), h.Records...)
}

// CompletedIn returns the number of transmissions that completed within
// the last duration before now.
func (h *History) CompletedIn(last time.Duration, now time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	count := 0
	for i := len(h.Records) - 1; i >= 0; i-- {
		r := h.Records[i]
		if now.Sub(r.FinishedAt) > last {
			break
		}
		if r.Result == ResultCompleted {
			count++
		}
	}

	return count
}

// loop is the cooperative control loop. In polling mode it drives the
// transmitter; in both modes it watches for state changes.
func (d *Daemon) loop(ctx context.Context) {
	interval := d.conf.TickInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logrus.WithField("interval", interval).Debug("control loop started")

	for {
		select {
		case <-ctx.Done():
			logrus.Debug("control loop stopped")
			return
		case <-ticker.C:
			d.loopOnce()
		}
	}
}

func (d *Daemon) loopOnce() {
	d.mu.Lock()
	mode := d.activeMode
	d.mu.Unlock()

	if mode == config.TxModePolling {
		d.tx.Tick()
	}
	d.observe()
}

// observe publishes transmitter state transitions. It is called from the
// control loop, the blocking worker and request handlers; each transition is
// reported once.
func (d *Daemon) observe() {
	d.mu.Lock()
	st := d.tx.Status()
	prev := d.lastState
	d.lastState = st.State
	startedAt := d.txStartedAt
	d.mu.Unlock()

	if prev == st.State {
		return
	}

	d.metrics.setState(st.State)

	d.hub.Publish(events.TxState, events.TxStateEvent{
		From:         string(prev),
		To:           string(st.State),
		DialHz:       st.DialFrequencyHz,
		MissedWrites: st.MissedWrites,
		Ts:           time.Now().Unix(),
	})

	if prev != transmitter.StateTransmitting {
		return
	}

	result := ResultCompleted
	if st.State != transmitter.StateDone {
		result = ResultAborted
	}

	rec := TxRecord{
		StartedAt:        startedAt,
		FinishedAt:       time.Now(),
		Result:           result,
		Callsign:         st.Callsign,
		Grid:             st.Grid,
		PowerDbm:         st.PowerDbm,
		DialFrequencyHz:  st.DialFrequencyHz,
		MissedWrites:     st.MissedWrites,
		MaxLatenessUs:    st.MaxLatenessPs / 1_000_000,
		CorrectionFactor: st.CorrectionFactor,
	}
	d.history.Add(rec)
	d.metrics.transmissionFinished(rec)

	logrus.WithFields(logrus.Fields{
		"result":        result,
		"missedWrites":  rec.MissedWrites,
		"maxLatenessUs": rec.MaxLatenessUs,
	}).Info("transmission finished")
}
