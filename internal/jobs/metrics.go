package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for recognition runs and batch jobs.
type Metrics struct {
	runs      *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	entries   *prometheus.CounterVec
	contracts *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single run.
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

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
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

// AddEntries counts ledger entries written, by event kind.
func (m *Metrics) AddEntries(kind string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.entries.WithLabelValues(kind).Add(float64(count))
}

// AddBatch records the outcome tally of a batch recalculation.
func (m *Metrics) AddBatch(processed, failed int) {
	if m == nil {
		return
	}
	if processed > 0 {
		m.contracts.WithLabelValues("processed").Add(float64(processed))
	}
	if failed > 0 {
		m.contracts.WithLabelValues("failed").Add(float64(failed))
	}
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "revrec_runs_total",
		Help: "Total recognition runs and jobs partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "revrec_runs_failures_total",
		Help: "Total failures observed for recognition runs and jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "revrec_run_duration_seconds",
		Help:    "Duration in seconds of recognition runs and jobs.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	entries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "revrec_ledger_entries_total",
		Help: "Ledger entries written grouped by event kind.",
	}, []string{"kind"})
	contracts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "revrec_batch_contracts_total",
		Help: "Contracts visited by batch recalculation grouped by outcome.",
	}, []string{"outcome"})
	registerer.MustRegister(runs, failures, duration, entries, contracts)
	return &Metrics{runs: runs, failures: failures, duration: duration, entries: entries, contracts: contracts}
}
