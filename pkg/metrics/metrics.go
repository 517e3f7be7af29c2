// Package metrics provides Prometheus metrics for the import pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BatchesTotal tracks imported batches by status
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bynight",
			Subsystem: "import",
			Name:      "batches_total",
			Help:      "Total number of import batches by status",
		},
		[]string{"source", "status"},
	)

	// BatchDuration tracks batch processing duration in seconds
	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bynight",
			Subsystem: "import",
			Name:      "batch_duration_seconds",
			Help:      "Duration of import batches in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"source"},
	)

	// RecordsTotal tracks records by import outcome
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bynight",
			Subsystem: "import",
			Name:      "records_total",
			Help:      "Total number of imported records by outcome",
		},
		[]string{"source", "outcome"},
	)

	// RejectReasonsTotal tracks the rejection flags raised on records
	RejectReasonsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bynight",
			Subsystem: "import",
			Name:      "reject_reasons_total",
			Help:      "Total number of rejection flags raised, by reason",
		},
		[]string{"source", "reason"},
	)

	// StepDuration tracks the duration of the benched import steps
	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bynight",
			Subsystem: "import",
			Name:      "step_duration_seconds",
			Help:      "Duration of import steps in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"step"},
	)

	// PlaceCandidates tracks how many candidate places a record is compared with
	PlaceCandidates = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bynight",
			Subsystem: "echantillon",
			Name:      "place_candidates",
			Help:      "Number of candidate places per record",
			Buckets:   []float64{0, 1, 5, 10, 50, 100, 500, 1000},
		},
		[]string{"source"},
	)

	// MessagesConsumedTotal tracks messages read from the intake transports
	MessagesConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bynight",
			Subsystem: "intake",
			Name:      "messages_consumed_total",
			Help:      "Total number of intake messages consumed by status",
		},
		[]string{"transport", "status"},
	)

	// KafkaMessagesPublished tracks outcome messages published to Kafka
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bynight",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of outcome messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// LockWaitsTotal tracks lock attempts that had to wait for another holder
	LockWaitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bynight",
			Subsystem: "redis",
			Name:      "lock_not_acquired_total",
			Help:      "Total number of lock attempts that found the lock held",
		},
		[]string{"key"},
	)
)

// RecordBatch records a finished batch
func RecordBatch(source, status string, durationSeconds float64) {
	BatchesTotal.WithLabelValues(source, status).Inc()
	BatchDuration.WithLabelValues(source).Observe(durationSeconds)
}

// RecordOutcome records the outcome of one record and its rejection flags
func RecordOutcome(source, outcome string, reasons []string) {
	RecordsTotal.WithLabelValues(source, outcome).Inc()
	for _, reason := range reasons {
		RejectReasonsTotal.WithLabelValues(source, reason).Inc()
	}
}

// RecordMessage records a consumed intake message
func RecordMessage(transport, status string) {
	MessagesConsumedTotal.WithLabelValues(transport, status).Inc()
}

// RecordKafkaPublish records a published outcome message
func RecordKafkaPublish(topic, status string) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
}
