package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	// CSV import metrics
	ImportRuns        *prometheus.CounterVec
	ImportIgnoredRows prometheus.Counter
	ImportDuration    prometheus.Histogram
	MergeAppended     prometheus.Counter

	// LINE metrics
	LinePushes *prometheus.CounterVec
	LineSynced *prometheus.CounterVec
}

var globalMetrics *Metrics

// InitMetrics registers the application metrics. Call once at startup.
func InitMetrics() *Metrics {
	metrics := &Metrics{
		// mode: csv|override, outcome: preview|inserted|merged|error
		ImportRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tcmclinic_import_runs_total",
			Help: "Total number of LINE CSV import runs",
		}, []string{"mode", "outcome"}),

		ImportIgnoredRows: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tcmclinic_import_ignored_rows_total",
			Help: "Rows skipped because their date or time could not be resolved",
		}),

		ImportDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tcmclinic_import_duration_seconds",
			Help:    "Import run latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		MergeAppended: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tcmclinic_merge_appended_records_total",
			Help: "Weekly history records appended to existing patients",
		}),

		LinePushes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tcmclinic_line_pushes_total",
			Help: "LINE push messages by result",
		}, []string{"result"}),

		LineSynced: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tcmclinic_line_sync_users_total",
			Help: "LINE users processed by the sync job, by status",
		}, []string{"status"}),
	}

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance, nil before InitMetrics
func GetMetrics() *Metrics {
	return globalMetrics
}

// RecordImport records one finished import run
func (m *Metrics) RecordImport(mode, outcome string, ignored int, seconds float64) {
	if m == nil {
		return
	}
	m.ImportRuns.WithLabelValues(mode, outcome).Inc()
	m.ImportIgnoredRows.Add(float64(ignored))
	m.ImportDuration.Observe(seconds)
}

// RecordAppended records history records appended by a merge
func (m *Metrics) RecordAppended(n int) {
	if m == nil {
		return
	}
	m.MergeAppended.Add(float64(n))
}

// RecordPush records one LINE push attempt
func (m *Metrics) RecordPush(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.LinePushes.WithLabelValues(result).Inc()
}

// RecordSync records one LINE sync outcome
func (m *Metrics) RecordSync(status string) {
	if m == nil {
		return
	}
	m.LineSynced.WithLabelValues(status).Inc()
}
