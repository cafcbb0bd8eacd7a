package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rjboer/GoSonar/internal/dsp"
	"github.com/rjboer/GoSonar/internal/sim"
)

const namespace = "sonarsim"

// Metrics holds the Prometheus collectors of a session. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Ticks          prometheus.Counter
	TickDuration   prometheus.Histogram
	Targets        prometheus.Gauge
	Detected       prometheus.Gauge
	Promotions     prometheus.Counter
	Losses         prometheus.Counter
	BearingSamples prometheus.Counter
	Analyses       prometheus.Counter
	BladeRate      prometheus.Gauge
	Confidence     prometheus.Gauge
	Commands       *prometheus.CounterVec
	Subscribers    prometheus.Gauge
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total",
			Help: "Simulation ticks executed.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "tick_duration_seconds",
			Help:    "Wall time spent in one simulation step.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		Targets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "targets",
			Help: "Targets in the simulation.",
		}),
		Detected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "targets_detected",
			Help: "Targets currently above the detection threshold.",
		}),
		Promotions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "detections_total",
			Help: "Targets promoted from UNDETECTED to DETECTED.",
		}),
		Losses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "detection_losses_total",
			Help: "Targets that dropped below the detection threshold.",
		}),
		BearingSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bearing_readings_total",
			Help: "Bearing readings appended to target histories.",
		}),
		Analyses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "analyses_total",
			Help: "DEMON/LOFAR analysis cycles.",
		}),
		BladeRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "demon_blade_rate_hz",
			Help: "Last DEMON blade-rate estimate of the selected target.",
		}),
		Confidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "demon_confidence",
			Help: "Last DEMON confidence of the selected target.",
		}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "commands_total",
			Help: "Operator commands applied, by type and result.",
		}, []string{"type", "result"}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "live_subscribers",
			Help: "Connected SSE and WebSocket clients.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Ticks, m.TickDuration, m.Targets, m.Detected, m.Promotions,
			m.Losses, m.BearingSamples, m.Analyses, m.BladeRate, m.Confidence, m.Commands, m.Subscribers)
	}
	return m
}

// ObserveTick records one simulation step.
func (m *Metrics) ObserveTick(d time.Duration, report sim.TickReport, targets []sim.Target) {
	if m == nil {
		return
	}
	m.Ticks.Inc()
	m.TickDuration.Observe(d.Seconds())
	m.Promotions.Add(float64(len(report.Promoted)))
	m.Losses.Add(float64(len(report.Lost)))
	m.BearingSamples.Add(float64(report.Readings))
	detected := 0
	for _, t := range targets {
		if t.Detected {
			detected++
		}
	}
	m.Targets.Set(float64(len(targets)))
	m.Detected.Set(float64(detected))
}

// ObserveAnalysis records one analysis cycle.
func (m *Metrics) ObserveAnalysis(res dsp.DemonResult) {
	if m == nil {
		return
	}
	m.Analyses.Inc()
	m.BladeRate.Set(res.BladeRateHz)
	m.Confidence.Set(res.Confidence)
}

// ObserveCommand records an applied command.
func (m *Metrics) ObserveCommand(kind sim.CommandKind, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	m.Commands.WithLabelValues(string(kind), result).Inc()
}

func (m *Metrics) subscriberDelta(n int) {
	if m == nil {
		return
	}
	m.Subscribers.Add(float64(n))
}
