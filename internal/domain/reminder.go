package domain

import (
	"time"

	"github.com/google/uuid"
)

// ─── Reminder Types ─────────────────────────────────────────────────────────

// ReminderKind classifies what a reminder is about.
type ReminderKind string

const (
	ReminderProgress     ReminderKind = "progress"
	ReminderMilestone    ReminderKind = "milestone"
	ReminderDeadline     ReminderKind = "deadline"
	ReminderContribution ReminderKind = "contribution"
)

// Reminder is a scheduled, at-most-once notification destined for a user.
// Ledgers produce reminders; only the scheduler's drain step consumes and
// mutates them — ownership transfers to the queue at enqueue time.
type Reminder struct {
	ID          uuid.UUID    `json:"id"`
	EntityID    uuid.UUID    `json:"entity_id"` // owning goal or chama
	UserID      string       `json:"user_id"`
	Phone       string       `json:"phone"`
	Kind        ReminderKind `json:"kind"`
	Message     string       `json:"message"`
	ScheduledAt time.Time    `json:"scheduled_at"`
	Processed   bool         `json:"processed"`
	ProcessedAt *time.Time   `json:"processed_at,omitempty"`
	Error       string       `json:"error,omitempty"`
}
