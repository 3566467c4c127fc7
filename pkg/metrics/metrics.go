package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "loanrisk"

// Recorder holds the scoring metrics on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	rows      *prometheus.CounterVec
	decisions *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	threshold prometheus.Gauge
}

// NewRecorder creates and registers the scoring collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scored_rows_total",
			Help:      "Applicant rows scored.",
		}, []string{"mode"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Decisions by outcome.",
		}, []string{"mode", "decision"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scoring_failures_total",
			Help:      "Scoring calls that returned an error.",
		}, []string{"mode"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scoring_duration_seconds",
			Help:      "Time spent in a scoring call.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"mode"}),
		threshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_threshold",
			Help:      "Decision threshold saved with the loaded model.",
		}),
	}

	r.registry.MustRegister(
		r.rows,
		r.decisions,
		r.failures,
		r.duration,
		r.threshold,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Observe records a successful scoring call.
func (r *Recorder) Observe(mode string, rows, defaults int, took time.Duration) {
	r.rows.WithLabelValues(mode).Add(float64(rows))
	r.decisions.WithLabelValues(mode, "default").Add(float64(defaults))
	r.decisions.WithLabelValues(mode, "no_default").Add(float64(rows - defaults))
	r.duration.WithLabelValues(mode).Observe(took.Seconds())
}

// Fail records a failed scoring call.
func (r *Recorder) Fail(mode string) {
	r.failures.WithLabelValues(mode).Inc()
}

// SetThreshold publishes the model's saved threshold.
func (r *Recorder) SetThreshold(t float64) {
	r.threshold.Set(t)
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
