package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/akiba-network/akiba/internal/domain"
)

// ─── Goal Repository ────────────────────────────────────────────────────────

// GoalStore is the SQLite-backed domain.GoalRepository.
type GoalStore struct {
	db *DB
}

// NewGoalStore creates a goal repository over db.
func NewGoalStore(db *DB) *GoalStore {
	return &GoalStore{db: db}
}

// Insert stores a new goal.
func (s *GoalStore) Insert(g *domain.Goal) error {
	milestones, err := json.Marshal(g.Milestones)
	if err != nil {
		return fmt.Errorf("encode milestones: %w", err)
	}
	_, err = s.db.db.Exec(`
		INSERT INTO goals (id, user_id, phone, name, description,
			target_kes, current_kes, target_btc, current_btc, rate_kes_btc,
			target_date, category, active, created_at, updated_at,
			completed_at, milestones_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, g.ID.String(), g.UserID, g.Phone, g.Name, g.Description,
		g.TargetKes, g.CurrentKes, g.TargetBtc, g.CurrentBtc, g.RateKesBtc,
		encodeTime(g.TargetDate), string(g.Category), boolInt(g.Active),
		encodeTime(g.CreatedAt), encodeTime(g.UpdatedAt),
		encodeTimePtr(g.CompletedAt), string(milestones))
	if err != nil {
		return fmt.Errorf("insert goal: %w", err)
	}
	return nil
}

// Get returns the goal for id, or (nil, nil) if unknown.
func (s *GoalStore) Get(id uuid.UUID) (*domain.Goal, error) {
	row := s.db.db.QueryRow(goalSelect+` WHERE id = ?`, id.String())
	g, err := scanGoal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return g, err
}

// Update replaces a stored goal.
func (s *GoalStore) Update(g *domain.Goal) error {
	milestones, err := json.Marshal(g.Milestones)
	if err != nil {
		return fmt.Errorf("encode milestones: %w", err)
	}
	res, err := s.db.db.Exec(`
		UPDATE goals SET
			current_kes = ?, current_btc = ?, active = ?, updated_at = ?,
			completed_at = ?, milestones_json = ?, name = ?, description = ?
		WHERE id = ?
	`, g.CurrentKes, g.CurrentBtc, boolInt(g.Active), encodeTime(g.UpdatedAt),
		encodeTimePtr(g.CompletedAt), string(milestones), g.Name, g.Description,
		g.ID.String())
	if err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrGoalNotFound
	}
	return nil
}

// ByUser returns a user's goals, newest-created first.
func (s *GoalStore) ByUser(userID string) ([]*domain.Goal, error) {
	rows, err := s.db.db.Query(goalSelect+` WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user goals: %w", err)
	}
	defer rows.Close()
	return collectGoals(rows)
}

// All returns every goal, newest-created first.
func (s *GoalStore) All() ([]*domain.Goal, error) {
	rows, err := s.db.db.Query(goalSelect + ` ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query goals: %w", err)
	}
	defer rows.Close()
	return collectGoals(rows)
}

// ─── Scanning ───────────────────────────────────────────────────────────────

const goalSelect = `
	SELECT id, user_id, phone, name, description,
		target_kes, current_kes, target_btc, current_btc, rate_kes_btc,
		target_date, category, active, created_at, updated_at,
		completed_at, milestones_json
	FROM goals`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGoal(row rowScanner) (*domain.Goal, error) {
	var (
		g                                            domain.Goal
		id, targetDate, category, createdAt, updated string
		active                                       int
		completedAt                                  sql.NullString
		milestones                                   string
	)
	err := row.Scan(&id, &g.UserID, &g.Phone, &g.Name, &g.Description,
		&g.TargetKes, &g.CurrentKes, &g.TargetBtc, &g.CurrentBtc, &g.RateKesBtc,
		&targetDate, &category, &active, &createdAt, &updated,
		&completedAt, &milestones)
	if err != nil {
		return nil, err
	}

	if g.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse goal id: %w", err)
	}
	g.Category = domain.GoalCategory(category)
	g.Active = active == 1
	if g.TargetDate, err = decodeTime(targetDate); err != nil {
		return nil, fmt.Errorf("parse target_date: %w", err)
	}
	if g.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if g.UpdatedAt, err = decodeTime(updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if g.CompletedAt, err = decodeTimePtr(completedAt); err != nil {
		return nil, fmt.Errorf("parse completed_at: %w", err)
	}
	if err := json.Unmarshal([]byte(milestones), &g.Milestones); err != nil {
		return nil, fmt.Errorf("decode milestones: %w", err)
	}
	return &g, nil
}

func collectGoals(rows *sql.Rows) ([]*domain.Goal, error) {
	var out []*domain.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
