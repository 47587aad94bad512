package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes recorded for benefit operations.
const (
	OutcomeSuccess      = "success"
	OutcomeRetry        = "retry"
	OutcomePrecondition = "precondition"
	OutcomeFailed       = "failed"
	OutcomeSkipped      = "skipped"
)

var (
	BenefitOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanbase_benefit_operations_total",
			Help: "Benefit grant and revoke attempts by action, benefit type and outcome",
		},
		[]string{"action", "type", "outcome"},
	)

	BenefitOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fanbase_benefit_operation_duration_seconds",
			Help:    "Time spent inside benefit grant and revoke calls",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"action", "type"},
	)

	BenefitRetriesScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanbase_benefit_retries_scheduled_total",
			Help: "Benefit operations rescheduled after a retriable error",
		},
		[]string{"action", "type"},
	)

	QueueTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanbase_queue_tasks_total",
			Help: "Deferred tasks executed by task name and outcome",
		},
		[]string{"task", "outcome"},
	)
)

// RecordBenefitOperation counts one grant or revoke attempt and its duration.
func RecordBenefitOperation(action, benefitType, outcome string, elapsed time.Duration) {
	BenefitOperationsTotal.WithLabelValues(action, benefitType, outcome).Inc()
	BenefitOperationDuration.WithLabelValues(action, benefitType).Observe(elapsed.Seconds())
}

// RecordRetryScheduled counts a rescheduled benefit operation.
func RecordRetryScheduled(action, benefitType string) {
	BenefitRetriesScheduled.WithLabelValues(action, benefitType).Inc()
}

// RecordQueueTask counts one executed queue task.
func RecordQueueTask(task, outcome string) {
	QueueTasksTotal.WithLabelValues(task, outcome).Inc()
}
