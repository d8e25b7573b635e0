package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ─── Repositories ───────────────────────────────────────────────────────────
// The default deployment keeps all state in process memory; these
// interfaces let a durable store swap in without touching the ledgers.
// Get methods return (nil, nil) for an unknown id — absence is not an
// error at the storage layer.

// GoalRepository stores savings goals.
type GoalRepository interface {
	Insert(g *Goal) error
	Get(id uuid.UUID) (*Goal, error)
	Update(g *Goal) error
	ByUser(userID string) ([]*Goal, error) // newest-created first
	All() ([]*Goal, error)
}

// ChamaRepository stores group savings accounts and their contribution
// history.
type ChamaRepository interface {
	Insert(c *Chama) error
	Get(id uuid.UUID) (*Chama, error)
	Update(c *Chama) error
	ByMember(userID string) ([]*Chama, error) // active membership, newest first
	Active() ([]*Chama, error)
	All() ([]*Chama, error)
	AddContribution(con *Contribution) error
	Contributions(chamaID uuid.UUID) ([]*Contribution, error)
}

// ReminderRepository stores the pending notification queue.
type ReminderRepository interface {
	Insert(r *Reminder) error
	Pending() ([]*Reminder, error)
	Due(now time.Time) ([]*Reminder, error) // scheduled_at <= now, unprocessed
	MarkProcessed(id uuid.UUID, at time.Time, handoffErr string) error
}

// ─── Collaborators ──────────────────────────────────────────────────────────
// Everything beyond the engine boundary (transport, auth, price feed) is
// consumed as a capability.

// Messenger delivers a drained reminder to a user. Failures are logged and
// stamped on the reminder; the engine never retries delivery.
type Messenger interface {
	Send(ctx context.Context, phone, text string) error
}

// SessionCleaner is the auth collaborator hook invoked by the scheduled
// session-cleanup job.
type SessionCleaner interface {
	CleanupExpiredSessions(ctx context.Context) (removed int, err error)
}

// RateSource supplies the KES-per-BTC conversion rate. Rate reads are cached;
// Refresh is driven by the price-refresh job.
type RateSource interface {
	Rate() float64
	Refresh(ctx context.Context) error
}
