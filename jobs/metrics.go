package jobs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for reconciliation jobs.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the job metrics against the provided registerer.
// When the registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "novamedika_reconcile_runs_total",
			Help: "Reconciliation runs per pharmacy chain.",
		}, []string{"chain"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "novamedika_reconcile_failures_total",
			Help: "Failed reconciliation runs per pharmacy chain.",
		}, []string{"chain"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "novamedika_reconcile_duration_seconds",
			Help:    "Reconciliation run duration per pharmacy chain.",
			Buckets: prometheus.DefBuckets,
		}, []string{"chain"}),
	}
	registerer.MustRegister(m.runs, m.failures, m.duration)
	return m
}

// Tracker instruments the lifecycle of a single run.
type Tracker struct {
	metrics *Metrics
	chain   string
	start   time.Time
}

// Track spawns a tracker for one run.
func (m *Metrics) Track(chain string) *Tracker {
	return &Tracker{metrics: m, chain: chain, start: time.Now()}
}

// Done records the run outcome.
func (t *Tracker) Done(err error) {
	if t == nil || t.metrics == nil {
		return
	}
	t.metrics.runs.WithLabelValues(t.chain).Inc()
	t.metrics.duration.WithLabelValues(t.chain).Observe(time.Since(t.start).Seconds())
	if err != nil {
		t.metrics.failures.WithLabelValues(t.chain).Inc()
	}
}
