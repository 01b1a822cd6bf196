// Package metrics exposes coordinator operation metrics to Prometheus.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the registered collectors.
type Metrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	JobRuns           *prometheus.CounterVec
	StatisticsRepairs prometheus.Counter
	ExportsWritten    prometheus.Counter
}

// New registers the collectors with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dzinza_operations_total",
			Help: "Coordinator operations by name and outcome",
		}, []string{"operation", "outcome"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dzinza_operation_duration_seconds",
			Help:    "Coordinator operation latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		JobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dzinza_job_runs_total",
			Help: "Scheduled job runs by job and outcome",
		}, []string{"job", "outcome"}),
		StatisticsRepairs: f.NewCounter(prometheus.CounterOpts{
			Name: "dzinza_statistics_repairs_total",
			Help: "Family trees whose counters were repaired by reconciliation",
		}),
		ExportsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "dzinza_exports_written_total",
			Help: "Tree export documents written to blob storage",
		}),
	}
}

// Observe implements core.MetricsRecorder.
func (m *Metrics) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	m.Operations.WithLabelValues(operation, outcome(success)).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// JobRun records one scheduled job execution.
func (m *Metrics) JobRun(job string, success bool) {
	m.JobRuns.WithLabelValues(job, outcome(success)).Inc()
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// ExportWritten counts one stored tree export.
func (m *Metrics) ExportWritten() {
	m.ExportsWritten.Inc()
}

// StatisticsRepaired counts one tree whose counters were corrected.
func (m *Metrics) StatisticsRepaired() {
	m.StatisticsRepairs.Inc()
}
