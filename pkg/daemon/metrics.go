package daemon

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/charlie0129/wsprd/pkg/calibration"
	"github.com/charlie0129/wsprd/pkg/events"
	"github.com/charlie0129/wsprd/pkg/transmitter"
)

const metricsNamespace = "wsprd"

// metrics holds the daemon's collectors on a private registry.
type metrics struct {
	registry *prometheus.Registry

	transmissions *prometheus.CounterVec // finished transmissions (by result)
	missedWrites  prometheus.Counter     // failed tuning word writes
	lateness      prometheus.Histogram   // worst symbol lateness per transmission
	state         *prometheus.GaugeVec   // 1 for the current transmitter state
	skippedSlots  *prometheus.CounterVec // slots not transmitted (by reason)
}

func newMetrics(engine *calibration.Engine, hub *events.EventHub) *metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	m := &metrics{
		registry: reg,
		transmissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "transmissions_total",
			Help:      "Finished WSPR transmissions by result.",
		}, []string{"result"}),
		missedWrites: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "missed_writes_total",
			Help:      "Tuning word writes that failed on the SPI bus.",
		}),
		lateness: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "symbol_max_lateness_seconds",
			Help:      "Worst symbol write lateness of each transmission.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		state: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "transmitter_state",
			Help:      "1 for the current transmitter state.",
		}, []string{"state"}),
		skippedSlots: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "skipped_slots_total",
			Help:      "Slots that fired without a transmission.",
		}, []string{"reason"}),
	}

	stat := func(f func(calibration.Stats) float64) func() float64 {
		return func() float64 { return f(engine.Stats()) }
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "calibration",
		Name:      "correction_factor",
		Help:      "Smoothed oscillator correction factor.",
	}, engine.CorrectionFactor)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "calibration",
		Name:      "frequency_error_ppm",
		Help:      "Estimated system clock error in ppm.",
	}, stat(func(s calibration.Stats) float64 { return s.FrequencyErrorPPM }))
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "calibration",
		Name:      "locked",
		Help:      "1 when the calibration loop is locked to PPS.",
	}, stat(func(s calibration.Stats) float64 { return boolFloat(s.IsLocked) }))
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "calibration",
		Name:      "last_count",
		Help:      "Last PPS counter reading.",
	}, stat(func(s calibration.Stats) float64 { return float64(s.LastFPGACount) }))
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "calibration",
		Name:      "accepted_samples_total",
		Help:      "PPS samples inside the accepted range.",
	}, stat(func(s calibration.Stats) float64 { return float64(s.AcceptedSamples) }))
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "calibration",
		Name:      "rejected_samples_total",
		Help:      "PPS samples rejected as out of range or unreadable.",
	}, stat(func(s calibration.Stats) float64 { return float64(s.RejectedSamples) }))
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "calibration",
		Name:      "dropped_edges_total",
		Help:      "PPS edges dropped because the worker was busy.",
	}, stat(func(s calibration.Stats) float64 { return float64(s.DroppedEdges) }))
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "event_subscribers",
		Help:      "Connected event stream clients.",
	}, func() float64 { return float64(hub.Subscribers()) })

	m.setState(transmitter.StateIdle)

	return m
}

func (m *metrics) setState(s transmitter.State) {
	for _, st := range []transmitter.State{transmitter.StateIdle, transmitter.StateTransmitting, transmitter.StateDone} {
		m.state.WithLabelValues(string(st)).Set(boolFloat(st == s))
	}
}

func (m *metrics) transmissionFinished(r TxRecord) {
	m.transmissions.WithLabelValues(r.Result).Inc()
	m.missedWrites.Add(float64(r.MissedWrites))
	m.lateness.Observe(float64(r.MaxLatenessUs) / 1e6)
}

func (m *metrics) slotSkipped(reason string) {
	m.skippedSlots.WithLabelValues(reason).Inc()
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
