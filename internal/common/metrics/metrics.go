// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SubmissionsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submission_tasks_completed_total",
			Help: "Total number of submission tasks completed",
		},
		[]string{"servicer", "channel"},
	)

	SubmissionsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submission_tasks_failed_total",
			Help: "Total number of submission tasks terminally failed",
		},
		[]string{"servicer", "error_code"},
	)

	SubmissionsEscalated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submission_tasks_escalated_total",
			Help: "Total number of submission tasks escalated to manual handling",
		},
		[]string{"servicer"},
	)

	SubmissionRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submission_task_retries_total",
			Help: "Total number of retry attempts scheduled",
		},
		[]string{"servicer"},
	)

	AttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "submission_attempt_duration_seconds",
			Help: "Duration of a single submission attempt in seconds",
		},
		[]string{"servicer", "channel"},
	)

	TasksPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "submission_tasks_pending",
			Help: "Number of tasks currently pending",
		},
	)

	OldestPendingAge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "submission_oldest_pending_age_seconds",
			Help: "Age of the oldest pending task's last attempt in seconds",
		},
	)

	PersistenceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submission_persistence_failures_total",
			Help: "Total number of failed task state writes to the store",
		},
		[]string{"operation"},
	)

	CircuitBreakerOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "submission_circuit_breaker_open",
			Help: "Whether the circuit breaker for a servicer is open (1) or not (0)",
		},
		[]string{"servicer"},
	)
)
