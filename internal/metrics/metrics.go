// Package metrics exposes prometheus collectors for append passes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pass results.
const (
	ResultCommitted = "committed"
	ResultConflict  = "conflict"
	ResultFailed    = "failed"
)

type Metrics struct {
	PassesTotal       *prometheus.CounterVec
	ConflictsTotal    *prometheus.CounterVec
	StoreRetryTotal   *prometheus.CounterVec
	FiguresTotal      *prometheus.CounterVec
	NotifyFailures    prometheus.Counter
	MergeDuration     *prometheus.HistogramVec
	CommitDuration    *prometheus.HistogramVec
	LatestVersion     *prometheus.GaugeVec
	ContributionsRead *prometheus.CounterVec
}

// New registers the collectors on reg. A nil reg creates a private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		PassesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sosappend_passes_total",
			Help: "Append passes by continent, run type and result.",
		}, []string{"continent", "run_type", "result"}),
		ConflictsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sosappend_version_conflicts_total",
			Help: "Commits that lost the race for the next version.",
		}, []string{"continent", "run_type"}),
		StoreRetryTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sosappend_store_retries_total",
			Help: "Retried blob store operations after transient failures.",
		}, []string{"operation"}),
		FiguresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sosappend_figures_uploaded_total",
			Help: "Validation figures uploaded next to a committed version.",
		}, []string{"continent", "run_type"}),
		NotifyFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "sosappend_notify_failures_total",
			Help: "Commit announcements that could not be delivered.",
		}),
		MergeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sosappend_merge_duration_seconds",
			Help:    "Time spent reading contributions and merging them.",
			Buckets: prometheus.DefBuckets,
		}, []string{"continent", "run_type"}),
		CommitDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sosappend_commit_duration_seconds",
			Help:    "Time spent writing a version and swapping the pointer.",
			Buckets: prometheus.DefBuckets,
		}, []string{"continent", "run_type"}),
		LatestVersion: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sosappend_latest_version",
			Help: "Last version committed by this process.",
		}, []string{"continent", "run_type"}),
		ContributionsRead: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sosappend_contributions_read_total",
			Help: "Stage contributions read, by module.",
		}, []string{"module"}),
	}
}

// ObservePass records the outcome of one append pass.
func (m *Metrics) ObservePass(continent, runType, result string) {
	m.PassesTotal.WithLabelValues(continent, runType, result).Inc()
	if result == ResultConflict {
		m.ConflictsTotal.WithLabelValues(continent, runType).Inc()
	}
}

// Committed records a successful commit of version.
func (m *Metrics) Committed(continent, runType string, version uint64, took time.Duration) {
	m.CommitDuration.WithLabelValues(continent, runType).Observe(took.Seconds())
	m.LatestVersion.WithLabelValues(continent, runType).Set(float64(version))
}

// Merged records the read-and-merge phase of a pass.
func (m *Metrics) Merged(continent, runType string, took time.Duration) {
	m.MergeDuration.WithLabelValues(continent, runType).Observe(took.Seconds())
}

// Retry is shaped to serve as a versioning.Config OnRetry hook.
func (m *Metrics) Retry(operation string) {
	m.StoreRetryTotal.WithLabelValues(operation).Inc()
}
