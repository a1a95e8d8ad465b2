package daemon

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/wsprd/pkg/calibration"
	"github.com/charlie0129/wsprd/pkg/config"
	"github.com/charlie0129/wsprd/pkg/events"
	"github.com/charlie0129/wsprd/pkg/gnss"
	"github.com/charlie0129/wsprd/pkg/transmitter"
	"github.com/charlie0129/wsprd/pkg/wspr"
)

var (
	ErrDisabled = errors.New("beacon is disabled")
	ErrBusy     = errors.New("a transmission is already in progress")
)

// Skip reasons, used as metric labels and in tx.skipped events.
const (
	skipDisabled = "disabled"
	skipBusy     = "busy"
	skipNoGrid   = "no-grid"
	skipMissed   = "missed"
	skipError    = "error"
)

func (d *Daemon) preCheck() error {
	if !d.conf.Enabled() {
		return ErrDisabled
	}
	if d.tx.State() == transmitter.StateTransmitting {
		return ErrBusy
	}
	return nil
}

// transmitSlot prepares the configured message and starts it. It runs on
// the scheduler goroutine at the slot start.
func (d *Daemon) transmitSlot() error {
	grid, err := d.gnss.Grid(d.conf.Grid())
	if err != nil {
		return err
	}

	callsign := d.conf.Callsign()
	power := d.conf.PowerDbm()
	dialHz := d.conf.DialFrequencyHz()

	if err := d.tx.Prepare(dialHz, callsign, grid, power); err != nil {
		return pkgerrors.Wrap(err, "failed to prepare message")
	}

	mode := d.conf.TxMode()
	d.mu.Lock()
	d.activeMode = mode
	d.txStartedAt = time.Now()
	d.mu.Unlock()

	if err := d.tx.Start(); err != nil {
		return pkgerrors.Wrap(err, "failed to start transmission")
	}

	logrus.WithFields(logrus.Fields{
		"callsign":         callsign,
		"grid":             grid,
		"powerDbm":         power,
		"dialHz":           dialHz,
		"mode":             mode,
		"correctionFactor": d.tx.Status().CorrectionFactor,
	}).Info("transmission started")

	d.observe()

	if mode == config.TxModeBlocking {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			err := transmitter.RunBlocking(d.ctx, d.tx, d.timer)
			if err != nil && !errors.Is(err, context.Canceled) {
				logrus.WithError(err).Error("blocking transmission failed")
			}
			d.observe()
		}()
	}

	return nil
}

func (d *Daemon) onUpcoming(data any) {
	runAt, ok := data.(time.Time)
	if !ok {
		return
	}

	entry := logrus.WithField("slot", runAt.Format(time.DateTime))
	if !d.conf.Enabled() {
		entry.Debug("upcoming slot, beacon disabled")
		return
	}
	entry.Info("upcoming slot")

	if !d.engine.Stats().IsLocked {
		entry.Warn("calibration is not locked, frequency may be off")
	}
	if p := d.conf.PowerDbm(); !wspr.StandardPower(p) {
		entry.WithField("powerDbm", p).Warn("power is not a standard WSPR level, decoders may round it")
	}
}

func (d *Daemon) onSlotError(data any) {
	err, ok := data.(error)
	if !ok {
		return
	}

	reason := skipReason(err)
	d.metrics.slotSkipped(reason)
	d.hub.Publish(events.TxSkipped, events.TxSkippedEvent{
		Reason: reason,
		Ts:     time.Now().Unix(),
	})

	entry := logrus.WithError(err).WithField("reason", reason)
	if reason == skipDisabled {
		entry.Debug("slot skipped")
		return
	}
	entry.Warn("slot skipped")
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, ErrDisabled):
		return skipDisabled
	case errors.Is(err, ErrBusy):
		return skipBusy
	case errors.Is(err, gnss.ErrNoGrid):
		return skipNoGrid
	case errors.Is(err, ErrMissedSlot):
		return skipMissed
	default:
		return skipError
	}
}

func (d *Daemon) onLockChange(s calibration.Stats) {
	d.hub.Publish(events.CalibrationLock, events.CalibrationLockEvent{
		Locked:            s.IsLocked,
		CorrectionFactor:  s.CorrectionFactor,
		FrequencyErrorPPM: s.FrequencyErrorPPM,
		Ts:                time.Now().Unix(),
	})
}
