package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/akiba-network/akiba/internal/domain"
)

// ─── Reminder Repository ────────────────────────────────────────────────────

// ReminderStore is the SQLite-backed domain.ReminderRepository. Processed
// reminders stay in the table for inspection; the pending queue is the set
// of unprocessed rows ordered by schedule.
type ReminderStore struct {
	db *DB
}

// NewReminderStore creates a reminder repository over db.
func NewReminderStore(db *DB) *ReminderStore {
	return &ReminderStore{db: db}
}

// Insert enqueues a reminder.
func (s *ReminderStore) Insert(r *domain.Reminder) error {
	_, err := s.db.db.Exec(`
		INSERT INTO reminders (id, entity_id, user_id, phone, kind, message,
			scheduled_at, processed, processed_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID.String(), r.EntityID.String(), r.UserID, r.Phone, string(r.Kind),
		r.Message, encodeTime(r.ScheduledAt), boolInt(r.Processed),
		encodeTimePtr(r.ProcessedAt), r.Error)
	if err != nil {
		return fmt.Errorf("insert reminder: %w", err)
	}
	return nil
}

// Pending returns all unprocessed reminders in scheduled order.
func (s *ReminderStore) Pending() ([]*domain.Reminder, error) {
	return s.query(`WHERE processed = 0 ORDER BY scheduled_at`)
}

// Due returns unprocessed reminders scheduled at or before now.
func (s *ReminderStore) Due(now time.Time) ([]*domain.Reminder, error) {
	return s.query(`WHERE processed = 0 AND scheduled_at <= ? ORDER BY scheduled_at`, encodeTime(now))
}

// MarkProcessed stamps a reminder processed. Already-processed rows are
// left untouched (idempotent drain).
func (s *ReminderStore) MarkProcessed(id uuid.UUID, at time.Time, handoffErr string) error {
	_, err := s.db.db.Exec(`
		UPDATE reminders SET processed = 1, processed_at = ?, error = ?
		WHERE id = ? AND processed = 0
	`, encodeTime(at), handoffErr, id.String())
	if err != nil {
		return fmt.Errorf("mark reminder processed: %w", err)
	}
	return nil
}

func (s *ReminderStore) query(where string, args ...any) ([]*domain.Reminder, error) {
	rows, err := s.db.db.Query(`
		SELECT id, entity_id, user_id, phone, kind, message,
			scheduled_at, processed, processed_at, error
		FROM reminders `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query reminders: %w", err)
	}
	defer rows.Close()

	var out []*domain.Reminder
	for rows.Next() {
		var (
			r                          domain.Reminder
			id, entityID, kind, sched  string
			processed                  int
			processedAt                sql.NullString
		)
		if err := rows.Scan(&id, &entityID, &r.UserID, &r.Phone, &kind,
			&r.Message, &sched, &processed, &processedAt, &r.Error); err != nil {
			return nil, err
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse reminder id: %w", err)
		}
		if r.EntityID, err = uuid.Parse(entityID); err != nil {
			return nil, fmt.Errorf("parse entity id: %w", err)
		}
		r.Kind = domain.ReminderKind(kind)
		if r.ScheduledAt, err = decodeTime(sched); err != nil {
			return nil, fmt.Errorf("parse scheduled_at: %w", err)
		}
		r.Processed = processed == 1
		if r.ProcessedAt, err = decodeTimePtr(processedAt); err != nil {
			return nil, fmt.Errorf("parse processed_at: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
