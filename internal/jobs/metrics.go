package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lowStock    prometheus.Counter
	ledgerDrift prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer.
// When the registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration and success/failure
// counts, and returns the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddLowStockAlerts bumps the low stock alert counter.
func (m *Metrics) AddLowStockAlerts(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.lowStock.Add(float64(count))
}

// AddLedgerDrift bumps the ledger drift counter for records whose
// quantity disagrees with their movement history.
func (m *Metrics) AddLedgerDrift(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.ledgerDrift.Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "steelforge_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "steelforge_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "steelforge_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	lowStock := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "steelforge_low_stock_alerts_total",
		Help: "Materials reported below their minimum stock level.",
	})
	ledgerDrift := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "steelforge_ledger_drift_records_total",
		Help: "Stock records whose quantity deviates from the movement ledger.",
	})
	registerer.MustRegister(runs, failures, duration, lowStock, ledgerDrift)
	return &Metrics{runs: runs, failures: failures, duration: duration, lowStock: lowStock, ledgerDrift: ledgerDrift}
}
