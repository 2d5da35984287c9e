// Package metrics provides observability for the resolution pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks pipeline throughput and outcomes. A nil *Metrics is a valid
// no-op receiver so tests and local runs can skip registration.
type Metrics struct {
	// Decision outcomes by type and source system
	DecisionOutcome *prometheus.CounterVec

	// Per-record processing failures by source system
	RecordErrors *prometheus.CounterVec

	// Full batch duration
	BatchDuration prometheus.Histogram

	// Blocked candidate counts per scored record
	CandidatesBlocked prometheus.Histogram
}

// New registers and returns the pipeline metrics.
func New() *Metrics {
	return &Metrics{
		DecisionOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trapper_decision_outcomes_total",
			Help: "Total match decision outcomes by type and source system",
		}, []string{"decision", "source_system"}),

		RecordErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trapper_record_errors_total",
			Help: "Raw records that failed processing, by source system",
		}, []string{"source_system"}),

		BatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "trapper_batch_duration_seconds",
			Help:    "Duration of full batch runs",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),

		CandidatesBlocked: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "trapper_candidates_blocked",
			Help:    "Number of entities blocked for comparison per record",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),
	}
}

// IncrementOutcome records one decision outcome.
func (m *Metrics) IncrementOutcome(decisionType, sourceSystem string) {
	if m != nil {
		m.DecisionOutcome.WithLabelValues(decisionType, sourceSystem).Inc()
	}
}

// IncrementError records one failed record.
func (m *Metrics) IncrementError(sourceSystem string) {
	if m != nil {
		m.RecordErrors.WithLabelValues(sourceSystem).Inc()
	}
}

// ObserveBatchDuration records how long a batch run took.
func (m *Metrics) ObserveBatchDuration(d time.Duration) {
	if m != nil {
		m.BatchDuration.Observe(d.Seconds())
	}
}

// ObserveCandidates records the blocked candidate count for one record.
func (m *Metrics) ObserveCandidates(n int) {
	if m != nil {
		m.CandidatesBlocked.Observe(float64(n))
	}
}
