package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/wsprd/pkg/calibration"
	"github.com/charlie0129/wsprd/pkg/clock"
	"github.com/charlie0129/wsprd/pkg/config"
	"github.com/charlie0129/wsprd/pkg/events"
	"github.com/charlie0129/wsprd/pkg/gnss"
	"github.com/charlie0129/wsprd/pkg/transmitter"
)

// historySize keeps one day of two-minute slots.
const historySize = 720

// device is the FPGA as seen by the daemon.
type device interface {
	transmitter.Writer
	calibration.CounterReader
	Close() error
}

// edgeSource delivers PPS edges to the calibration engine.
type edgeSource interface {
	Edges() uint64
	Close() error
}

// Daemon owns the beacon: one calibration engine, one transmitter and the
// scheduler that starts a transmission at every slot.
type Daemon struct {
	conf  config.Config
	dev   device
	timer clock.Waiter

	engine  *calibration.Engine
	tx      *transmitter.Transmitter
	gnss    *gnss.Tracker
	hub     *events.EventHub
	sched   *Scheduler
	history *History
	metrics *metrics
	pps     edgeSource

	mu          sync.Mutex
	activeMode  config.TxMode
	lastState   transmitter.State
	txStartedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires a daemon around dev. setClock may be nil to leave the system
// clock alone.
func New(conf config.Config, dev device, timer clock.Waiter, setClock calibration.ClockSetter) (*Daemon, error) {
	if conf == nil || dev == nil || timer == nil {
		return nil, errors.New("daemon: config, device and timer are required")
	}

	d := &Daemon{
		conf:       conf,
		dev:        dev,
		timer:      timer,
		hub:        events.NewEventHub(),
		history:    NewHistory(historySize),
		activeMode: conf.TxMode(),
		lastState:  transmitter.StateIdle,
	}

	engine, err := calibration.New(dev, calibration.Options{
		LockThresholdPPM: conf.LockThresholdPPM(),
		LockSamples:      conf.LockSamples(),
		SetClock:         setClock,
		OnLockChange:     d.onLockChange,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create calibration engine")
	}
	d.engine = engine

	tx, err := transmitter.New(dev, timer, engine)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create transmitter")
	}
	d.tx = tx

	d.gnss = gnss.NewTracker(engine)
	d.metrics = newMetrics(engine, d.hub)
	d.sched = NewScheduler(d.transmitSlot, d.preCheck, d.onUpcoming, d.onSlotError)

	return d, nil
}

// Engine returns the calibration engine, the sink for PPS edges.
func (d *Daemon) Engine() *calibration.Engine {
	return d.engine
}

// AttachPPS records the edge source so it is reported and closed with the
// daemon.
func (d *Daemon) AttachPPS(src edgeSource) {
	d.mu.Lock()
	d.pps = src
	d.mu.Unlock()
}

// Start schedules slots and starts the calibration worker and control loop.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.sched.Schedule(d.conf.SlotSchedule()); err != nil {
		return pkgerrors.Wrapf(err, "invalid slot schedule %q", d.conf.SlotSchedule())
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		if err := d.engine.Run(d.ctx); err != nil && !errors.Is(err, context.Canceled) {
			logrus.WithError(err).Error("calibration worker exited")
		}
	}()
	go func() {
		defer d.wg.Done()
		d.loop(d.ctx)
	}()

	d.sched.Start()

	next, _ := d.sched.Status()
	logrus.WithField("nextSlot", next.Format(time.DateTime)).Info("beacon started")

	return nil
}

// Stop aborts any transmission and waits for all workers to exit.
func (d *Daemon) Stop() {
	d.sched.Stop()

	if d.tx.Abort() {
		logrus.Info("aborted transmission in progress")
	}

	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	d.observe()
}

// Reload re-reads the configuration and applies the slot schedule and the
// lock criteria. An invalid file leaves the running configuration as it
// was. A transmission in progress keeps the settings it started with.
func (d *Daemon) Reload() error {
	if err := d.conf.Reload(); err != nil {
		return pkgerrors.Wrap(err, "config not reloaded")
	}
	d.engine.SetLockParams(d.conf.LockThresholdPPM(), d.conf.LockSamples())
	if err := d.sched.Schedule(d.conf.SlotSchedule()); err != nil {
		return pkgerrors.Wrap(err, "failed to reschedule")
	}
	return nil
}

func (d *Daemon) setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/status", d.getStatus)
	router.GET("/calibration", d.getCalibration)
	router.GET("/history", d.getHistory)
	router.GET("/gnss", d.getGNSS)
	router.PUT("/gnss", d.putGNSS)
	router.POST("/abort", d.postAbort)
	router.POST("/skip", d.postSkip)
	router.PUT("/enabled", d.putEnabled)
	router.PUT("/message", d.putMessage)
	router.PUT("/frequency", d.putFrequency)
	router.GET("/config", d.getConfig)
	router.GET("/events", d.getEvents)
	router.GET("/metrics", d.getMetrics())
	router.GET("/version", getVersion)

	return router
}

// Run starts the daemon from configPath and serves its API on
// unixSocketPath until SIGINT or SIGTERM.
func Run(configPath string, unixSocketPath string, allowNonRoot bool, simulate bool) error {
	conf, err := config.NewFile(configPath)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to parse config during startup")
	}
	if err := conf.Validate(); err != nil {
		return err
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	dev, err := openDevice(conf, simulate)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to open fpga")
	}

	var setClock calibration.ClockSetter
	if conf.SetSystemClock() && !simulate {
		setClock = setRealtime
	}

	d, err := New(conf, dev, clock.NewMonotonic(), setClock)
	if err != nil {
		_ = dev.Close()
		return err
	}

	src, err := openEdgeSource(conf, d.Engine(), simulate)
	if err != nil {
		_ = dev.Close()
		return pkgerrors.Wrap(err, "failed to open pps input")
	}
	d.AttachPPS(src)

	if err := d.Start(context.Background()); err != nil {
		_ = src.Close()
		_ = dev.Close()
		return err
	}

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			if err := d.Reload(); err != nil {
				logrus.Errorf("%v", err)
				continue
			}
			logrus.Infof("config reloaded")
		}
	}()

	srv := &http.Server{
		Handler:           d.setupRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Create the socket to listen on:
	_ = os.Remove(unixSocketPath)
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		d.shutdown()
		return pkgerrors.Wrapf(err, "failed to listen on %s", unixSocketPath)
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		if err := os.Chmod(unixSocketPath, 0777); err != nil {
			d.shutdown()
			return err
		}
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	logrus.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	d.shutdown()

	logrus.Info("exiting")
	return nil
}

// shutdown stops the daemon and releases the hardware.
func (d *Daemon) shutdown() {
	logrus.Info("stopping beacon")
	d.Stop()

	d.mu.Lock()
	src := d.pps
	d.mu.Unlock()
	if src != nil {
		logrus.Info("closing pps input")
		if err := src.Close(); err != nil {
			logrus.Errorf("failed to close pps input: %v", err)
		}
	}

	logrus.Info("closing fpga connection")
	if err := d.dev.Close(); err != nil {
		logrus.Errorf("failed to close fpga connection: %v", err)
	}
}
