// Package sqlite provides the durable repositories behind the domain's
// repository interfaces: same invariants as the in-memory stores, state
// survives restart.
//
// Uses modernc.org/sqlite (cgo-free). Nested structures (milestones,
// members, rules, stats) are stored as JSON columns; contributions and
// reminders get their own tables so history queries stay cheap.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is how timestamps are stored (UTC, RFC 3339 with nanoseconds).
const timeLayout = time.RFC3339Nano

// DB wraps the SQLite handle and owns the schema.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies migrations.
// Use ":memory:" for an ephemeral database in tests.
func Open(path string) (*DB, error) {
	handle, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite allows one writer; serialize access through a single conn.
	handle.SetMaxOpenConns(1)

	db := &DB{db: handle}
	if err := db.migrate(); err != nil {
		handle.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the underlying handle.
func (db *DB) Close() error {
	return db.db.Close()
}

// Migrations returns the schema statements, one per string.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS goals (
			id              TEXT PRIMARY KEY,
			user_id         TEXT NOT NULL,
			phone           TEXT NOT NULL,
			name            TEXT NOT NULL,
			description     TEXT NOT NULL DEFAULT '',
			target_kes      REAL NOT NULL,
			current_kes     REAL NOT NULL DEFAULT 0,
			target_btc      REAL NOT NULL DEFAULT 0,
			current_btc     REAL NOT NULL DEFAULT 0,
			rate_kes_btc    REAL NOT NULL DEFAULT 0,
			target_date     TEXT NOT NULL,
			category        TEXT NOT NULL,
			active          INTEGER NOT NULL DEFAULT 1,
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL,
			completed_at    TEXT,
			milestones_json TEXT NOT NULL DEFAULT '[]'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_goals_user ON goals(user_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS chamas (
			id               TEXT PRIMARY KEY,
			admin_user_id    TEXT NOT NULL,
			admin_phone      TEXT NOT NULL,
			name             TEXT NOT NULL,
			description      TEXT NOT NULL DEFAULT '',
			min_contribution REAL NOT NULL,
			frequency        TEXT NOT NULL,
			max_members      INTEGER NOT NULL,
			target_kes       REAL NOT NULL DEFAULT 0,
			current_kes      REAL NOT NULL DEFAULT 0,
			active           INTEGER NOT NULL DEFAULT 1,
			created_at       TEXT NOT NULL,
			updated_at       TEXT NOT NULL,
			end_date         TEXT,
			completed_at     TEXT,
			members_json     TEXT NOT NULL DEFAULT '[]',
			rules_json       TEXT NOT NULL DEFAULT '{}',
			stats_json       TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chamas_active ON chamas(active, created_at)`,

		`CREATE TABLE IF NOT EXISTS contributions (
			id          TEXT PRIMARY KEY,
			chama_id    TEXT NOT NULL,
			user_id     TEXT NOT NULL,
			phone       TEXT NOT NULL,
			amount_kes  REAL NOT NULL,
			date        TEXT NOT NULL,
			late        INTEGER NOT NULL DEFAULT 0,
			penalty_kes REAL NOT NULL DEFAULT 0,
			tx_ref      TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_contributions_chama ON contributions(chama_id, date)`,

		`CREATE TABLE IF NOT EXISTS reminders (
			id           TEXT PRIMARY KEY,
			entity_id    TEXT NOT NULL,
			user_id      TEXT NOT NULL,
			phone        TEXT NOT NULL,
			kind         TEXT NOT NULL,
			message      TEXT NOT NULL,
			scheduled_at TEXT NOT NULL,
			processed    INTEGER NOT NULL DEFAULT 0,
			processed_at TEXT,
			error        TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_pending ON reminders(processed, scheduled_at)`,
	}
}

func (db *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// ─── Time Helpers ───────────────────────────────────────────────────────────

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func decodeTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func encodeTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return encodeTime(*t)
}

func decodeTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := decodeTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
