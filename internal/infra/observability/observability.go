// Package observability exposes the engine's Prometheus metrics.
//
// Metrics are registered once on the default registry via promauto and
// served by the ops API's /metrics endpoint. Ledgers and the scheduler
// increment them directly; nothing here blocks or allocates per call.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Ledger Metrics ─────────────────────────────────────────────────────────

var (
	// GoalsCreated counts goal creations.
	GoalsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "akiba_goals_created_total",
		Help: "Savings goals created.",
	})

	// GoalsCompleted counts goals reaching their target.
	GoalsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "akiba_goals_completed_total",
		Help: "Savings goals completed.",
	})

	// ChamasCreated counts chama creations.
	ChamasCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "akiba_chamas_created_total",
		Help: "Chamas created.",
	})

	// Contributions counts accepted contributions by ledger.
	Contributions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "akiba_contributions_total",
		Help: "Accepted contributions by ledger.",
	}, []string{"ledger"}) // "goal" | "chama"

	// ContributedKes accumulates accepted contribution amounts by ledger.
	ContributedKes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "akiba_contributed_kes_total",
		Help: "Sum of accepted contribution amounts in KES by ledger.",
	}, []string{"ledger"})

	// LateContributions counts chama contributions flagged late.
	LateContributions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "akiba_late_contributions_total",
		Help: "Chama contributions flagged late.",
	})
)

// ─── Reminder Metrics ───────────────────────────────────────────────────────

var (
	// RemindersEnqueued counts reminders produced by the ledgers, by kind.
	RemindersEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "akiba_reminders_enqueued_total",
		Help: "Reminders enqueued by kind.",
	}, []string{"kind"})

	// RemindersDelivered counts reminders handed to the messenger.
	RemindersDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "akiba_reminders_delivered_total",
		Help: "Reminders successfully handed to the messaging collaborator.",
	})

	// RemindersFailed counts reminders whose hand-off errored. Delivery is
	// at-most-once; these are never retried.
	RemindersFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "akiba_reminders_failed_total",
		Help: "Reminder hand-offs that errored.",
	})
)

// ─── Scheduler Metrics ──────────────────────────────────────────────────────

var (
	// TaskExecutions counts task runs by terminal status.
	TaskExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "akiba_task_executions_total",
		Help: "Recurring task executions by status.",
	}, []string{"task", "status"}) // status: completed | failed | timed_out | skipped

	// TaskDuration observes task run durations.
	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "akiba_task_duration_seconds",
		Help:    "Recurring task execution duration.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"task"})

	// TasksDisabled counts auto-disable events (error budget exhausted).
	TasksDisabled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "akiba_tasks_disabled_total",
		Help: "Tasks auto-disabled after repeated failures.",
	})
)
