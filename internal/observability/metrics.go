package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danielpatrickdp/fall-detect/go-engine/internal/state"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/update"
)

// DetectorCollector bundles Prometheus metrics for the detection loop.
type DetectorCollector struct {
	gatherer prometheus.Gatherer

	Samples         *prometheus.CounterVec
	Events          *prometheus.CounterVec
	Phase           *prometheus.GaugeVec
	Confidence      prometheus.Gauge
	SinkFailures    *prometheus.CounterVec
	AnalyzeDuration prometheus.Histogram
}

// NewDetectorCollector registers detector metrics against reg, defaulting to
// the global Prometheus registry when nil.
func NewDetectorCollector(reg prometheus.Registerer) (*DetectorCollector, error) {
	reg, gatherer := resolve(reg)

	samples, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "falldetect_samples_total",
		Help: "Samples consumed by the detection loop, labeled by step result.",
	}, []string{"result"}), "falldetect_samples_total")
	if err != nil {
		return nil, err
	}
	events, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "falldetect_events_total",
		Help: "Fall events emitted, labeled by detection mode and origin.",
	}, []string{"mode", "origin"}), "falldetect_events_total")
	if err != nil {
		return nil, err
	}
	phase, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "falldetect_phase",
		Help: "Current detection phase (1 for the active phase, 0 otherwise).",
	}, []string{"phase"}), "falldetect_phase")
	if err != nil {
		return nil, err
	}
	conf, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "falldetect_confidence",
		Help: "Blended fall confidence after the latest sample.",
	}), "falldetect_confidence")
	if err != nil {
		return nil, err
	}
	failures, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "falldetect_sink_failures_total",
		Help: "Failed deliveries of events or decisions to a sink.",
	}, []string{"sink"}), "falldetect_sink_failures_total")
	if err != nil {
		return nil, err
	}
	duration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "falldetect_analyze_duration_seconds",
		Help:    "Time spent in one engine step.",
		Buckets: []float64{1e-6, 5e-6, 1e-5, 5e-5, 1e-4, 5e-4, 1e-3, 5e-3},
	}), "falldetect_analyze_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &DetectorCollector{
		gatherer:        gatherer,
		Samples:         samples,
		Events:          events,
		Phase:           phase,
		Confidence:      conf,
		SinkFailures:    failures,
		AnalyzeDuration: duration,
	}, nil
}

// ObserveStep records one engine step.
func (c *DetectorCollector) ObserveStep(r update.Result, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Samples.WithLabelValues(string(r.Decision.Action)).Inc()
	c.AnalyzeDuration.Observe(elapsed.Seconds())
	if r.Err != nil {
		return
	}
	c.SetPhase(r.Session.Phase)
	c.Confidence.Set(r.Session.Confidence.Value())
}

// SetPhase marks p as the active phase.
func (c *DetectorCollector) SetPhase(p state.Phase) {
	if c == nil {
		return
	}
	for _, ph := range state.Phases() {
		v := 0.0
		if ph == p {
			v = 1
		}
		c.Phase.WithLabelValues(string(ph)).Set(v)
	}
}

// ObserveEvent counts an emitted event.
func (c *DetectorCollector) ObserveEvent(ev state.FallEvent) {
	if c == nil {
		return
	}
	c.Events.WithLabelValues(string(ev.Mode), string(ev.Origin)).Inc()
}

// SinkFailure counts a failed delivery to sink.
func (c *DetectorCollector) SinkFailure(sink string) {
	if c == nil {
		return
	}
	c.SinkFailures.WithLabelValues(sink).Inc()
}

// Handler exposes a ready-to-use /metrics handler.
func (c *DetectorCollector) Handler() http.Handler {
	return handlerFor(c.gatherer)
}

func resolve(reg prometheus.Registerer) (prometheus.Registerer, prometheus.Gatherer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	return reg, gatherer
}

func handlerFor(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// register adds c to reg, returning the already registered collector of the
// same type when one exists.
func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return c, nil
}
