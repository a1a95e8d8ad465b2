package daemon

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/wsprd/pkg/config"
	"github.com/charlie0129/wsprd/pkg/gnss"
	"github.com/charlie0129/wsprd/pkg/nco"
	"github.com/charlie0129/wsprd/pkg/types"
	"github.com/charlie0129/wsprd/pkg/version"
	"github.com/charlie0129/wsprd/pkg/wspr"
)

// Message is the body of PUT /message. An empty grid means the grid is
// taken from GNSS.
type Message struct {
	Callsign string `json:"callsign"`
	Grid     string `json:"grid"`
	PowerDbm int    `json:"powerDbm"`
}

func badRequest(c *gin.Context, err error) {
	c.IndentedJSON(http.StatusBadRequest, err.Error())
	_ = c.AbortWithError(http.StatusBadRequest, err)
}

func internalError(c *gin.Context, err error) {
	c.IndentedJSON(http.StatusInternalServerError, err.Error())
	_ = c.AbortWithError(http.StatusInternalServerError, err)
}

func (d *Daemon) status() types.Status {
	next, running := d.sched.Status()

	d.mu.Lock()
	mode := d.activeMode
	src := d.pps
	d.mu.Unlock()

	st := types.Status{
		Enabled:           d.conf.Enabled(),
		TxMode:            string(mode),
		Transmitter:       d.tx.Status(),
		Calibration:       d.engine.Stats(),
		GNSS:              d.gnss.Fix(),
		NextSlot:          next,
		SchedulerRunning:  running,
		CompletedLastHour: d.history.CompletedIn(time.Hour, time.Now()),
	}
	if src != nil {
		st.PPSEdges = src.Edges()
	}

	grid, err := d.gnss.Grid(d.conf.Grid())
	if err != nil {
		st.GridError = err.Error()
	} else {
		st.Grid = grid
	}

	return st
}

func (d *Daemon) getStatus(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, d.status())
}

func (d *Daemon) getCalibration(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, d.engine.Stats())
}

func (d *Daemon) getHistory(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, d.history.Get())
}

func (d *Daemon) getGNSS(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, d.gnss.Fix())
}

func (d *Daemon) putGNSS(c *gin.Context) {
	var fix gnss.Fix
	if err := c.BindJSON(&fix); err != nil {
		badRequest(c, err)
		return
	}

	if fix.HasFix {
		if _, err := gnss.LatLonToGrid(fix.Latitude, fix.Longitude); err != nil {
			badRequest(c, err)
			return
		}
	}

	d.gnss.Update(fix)

	c.IndentedJSON(http.StatusCreated, "gnss fix updated")
}

func (d *Daemon) postAbort(c *gin.Context) {
	if !d.tx.Abort() {
		c.IndentedJSON(http.StatusOK, "no transmission in progress")
		return
	}
	d.observe()

	logrus.Info("transmission aborted by request")
	c.IndentedJSON(http.StatusCreated, "transmission aborted, carrier off")
}

func (d *Daemon) postSkip(c *gin.Context) {
	if err := d.sched.Skip(); err != nil {
		badRequest(c, err)
		return
	}

	next, _ := d.sched.Status()
	logrus.WithField("nextSlot", next.Format(time.DateTime)).Info("next slot skipped")
	c.IndentedJSON(http.StatusCreated, types.Skip{NextSlot: next})
}

func (d *Daemon) putEnabled(c *gin.Context) {
	var enabled bool
	if err := c.BindJSON(&enabled); err != nil {
		badRequest(c, err)
		return
	}

	d.conf.SetEnabled(enabled)
	if err := d.conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		internalError(c, err)
		return
	}

	if enabled {
		logrus.Info("beacon enabled")
		c.IndentedJSON(http.StatusCreated, "beacon enabled, transmitting from the next slot")
		return
	}

	logrus.Info("beacon disabled")
	c.IndentedJSON(http.StatusCreated, "beacon disabled, a transmission in progress will finish")
}

func (d *Daemon) putMessage(c *gin.Context) {
	var m Message
	if err := c.BindJSON(&m); err != nil {
		badRequest(c, err)
		return
	}

	m.Callsign = strings.ToUpper(strings.TrimSpace(m.Callsign))
	m.Grid = strings.ToUpper(strings.TrimSpace(m.Grid))

	if m.PowerDbm < wspr.MinPowerDbm || m.PowerDbm > wspr.MaxPowerDbm {
		badRequest(c, fmt.Errorf("%w: %d dBm, must be between %d and %d", wspr.ErrInvalidPower, m.PowerDbm, wspr.MinPowerDbm, wspr.MaxPowerDbm))
		return
	}
	if _, err := wspr.NormalizeCallsign(m.Callsign); err != nil {
		badRequest(c, err)
		return
	}
	if m.Grid != "" {
		if _, err := wspr.Encode(m.Callsign, m.Grid, m.PowerDbm); err != nil {
			badRequest(c, err)
			return
		}
	}

	d.conf.SetCallsign(m.Callsign)
	d.conf.SetGrid(m.Grid)
	d.conf.SetPowerDbm(m.PowerDbm)
	if err := d.conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		internalError(c, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"callsign": m.Callsign,
		"grid":     m.Grid,
		"powerDbm": m.PowerDbm,
	}).Info("message updated")

	msg := fmt.Sprintf("message set to %s %s %d", m.Callsign, m.Grid, m.PowerDbm)
	if m.Grid == "" {
		msg = fmt.Sprintf("message set to %s <gnss grid> %d", m.Callsign, m.PowerDbm)
	}
	if !wspr.StandardPower(m.PowerDbm) {
		msg += ". This is not a standard WSPR power level."
	}
	c.IndentedJSON(http.StatusCreated, msg)
}

func (d *Daemon) putFrequency(c *gin.Context) {
	var hz float64
	if err := c.BindJSON(&hz); err != nil {
		badRequest(c, err)
		return
	}

	if math.IsNaN(hz) || hz <= 0 || hz >= nco.MaxFrequencyHz(1.0) {
		badRequest(c, fmt.Errorf("dial frequency must be between 0 and %.0f Hz, got %.0f", nco.MaxFrequencyHz(1.0), hz))
		return
	}

	d.conf.SetDialFrequencyHz(hz)
	if err := d.conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		internalError(c, err)
		return
	}

	logrus.WithField("dialHz", hz).Info("dial frequency updated")
	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("dial frequency set to %.0f Hz, effective from the next slot", hz))
}

func (d *Daemon) getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(d.conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

// getEvents streams hub events as server-sent events until the client
// goes away.
func (d *Daemon) getEvents(c *gin.Context) {
	ch := d.hub.Subscribe()
	defer d.hub.Unsubscribe(ch)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		}
	})
}

func (d *Daemon) getMetrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(d.metrics.registry, promhttp.HandlerOpts{
		ErrorLog: logrus.StandardLogger(),
	}))
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}
