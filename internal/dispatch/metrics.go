package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// batchesTotal counts dispatcher invocations by kind and result.
	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_dispatch_batches_total",
		Help: "Total number of dispatcher invocations by kind and result",
	}, []string{"kind", "result"}) // result: claimed, busy, empty, error

	// entriesTotal counts per-entry outcomes.
	entriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_dispatch_entries_total",
		Help: "Total number of queue entries handled by kind and outcome",
	}, []string{"kind", "outcome"})

	// batchDuration tracks how long one invocation takes.
	batchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "queue_dispatch_batch_duration_seconds",
		Help:    "Time taken by one dispatcher invocation",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 30, 120, 300},
	}, []string{"kind"})

	// rollbacksTotal counts compensations by result.
	rollbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_dispatch_rollbacks_total",
		Help: "Total number of dispatch rollbacks by result",
	}, []string{"result"})

	// technologyRequestDuration tracks fired technology requests until their response.
	technologyRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "queue_technology_request_duration_seconds",
		Help:    "Time until a technology endpoint answered a fired request",
		Buckets: []float64{0.1, 1, 10, 60, 600, 3600, 14400},
	}, []string{"technology", "result"})

	// inFlightOutcomes tracks fired requests still awaiting a response.
	inFlightOutcomes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "queue_technology_requests_in_flight",
		Help: "Number of fired technology requests awaiting a response",
	})
)

// Dispatcher kinds used as metric labels
const (
	kindRun        = "run"
	kindNext       = "next"
	kindTechnology = "technology"
)

// MetricsRecorder provides methods to record dispatcher metrics.
type MetricsRecorder struct{}

// NewMetricsRecorder creates a new metrics recorder.
func NewMetricsRecorder() *MetricsRecorder {
	return &MetricsRecorder{}
}

// RecordBatch records one dispatcher invocation.
func (m *MetricsRecorder) RecordBatch(kind, result string, d time.Duration) {
	batchesTotal.WithLabelValues(kind, result).Inc()
	batchDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordEntry records an entry outcome.
func (m *MetricsRecorder) RecordEntry(kind string, outcome Outcome) {
	entriesTotal.WithLabelValues(kind, string(outcome)).Inc()
}

// RecordRollback records a compensation.
func (m *MetricsRecorder) RecordRollback(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	rollbacksTotal.WithLabelValues(result).Inc()
}

// TechnologyFired marks a request as awaiting its response.
func (m *MetricsRecorder) TechnologyFired() {
	inFlightOutcomes.Inc()
}

// TechnologyAnswered records the eventual response of a fired request.
func (m *MetricsRecorder) TechnologyAnswered(technology string, d time.Duration, err error) {
	inFlightOutcomes.Dec()
	result := "ok"
	if err != nil {
		result = "error"
	}
	technologyRequestDuration.WithLabelValues(technology, result).Observe(d.Seconds())
}
