// Package reminders implements the time-ordered notification queue.
//
// Ledgers enqueue reminder records; the orchestrator's reminder-processing
// job drains everything that has come due and hands each record to the
// messaging collaborator. Delivery is at-most-once and best-effort: a
// reminder whose hand-off errors is stamped with the error and dropped,
// never re-enqueued.
package reminders

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/akiba-network/akiba/internal/domain"
	"github.com/akiba-network/akiba/internal/infra/observability"
)

// Queue is the reminder queue over a pluggable repository.
type Queue struct {
	repo domain.ReminderRepository
	now  func() time.Time
}

// New creates a queue. now may be nil (defaults to time.Now).
func New(repo domain.ReminderRepository, now func() time.Time) *Queue {
	if now == nil {
		now = time.Now
	}
	return &Queue{repo: repo, now: now}
}

// Enqueue stores a reminder, assigning its id if unset. Ownership of the
// record transfers to the queue here.
func (q *Queue) Enqueue(r *domain.Reminder) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if err := q.repo.Insert(r); err != nil {
		return err
	}
	observability.RemindersEnqueued.WithLabelValues(string(r.Kind)).Inc()
	return nil
}

// Pending returns all undrained reminders in scheduled order.
func (q *Queue) Pending() ([]*domain.Reminder, error) {
	return q.repo.Pending()
}

// Drain processes every reminder due at or before now: each is marked
// processed, removed from the pending queue, and handed to the messenger.
// Returns the number of successful hand-offs.
func (q *Queue) Drain(ctx context.Context, m domain.Messenger) (int, error) {
	now := q.now()
	due, err := q.repo.Due(now)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, r := range due {
		handoffErr := ""
		if err := m.Send(ctx, r.Phone, r.Message); err != nil {
			handoffErr = err.Error()
			observability.RemindersFailed.Inc()
			log.Printf("[reminders] hand-off failed for %s (%s): %v", r.ID, r.Kind, err)
		} else {
			delivered++
			observability.RemindersDelivered.Inc()
		}
		if err := q.repo.MarkProcessed(r.ID, now, handoffErr); err != nil {
			return delivered, err
		}
	}
	return delivered, nil
}
