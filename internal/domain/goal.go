// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture — it depends on nothing.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ─── Goal Types ─────────────────────────────────────────────────────────────

// GoalCategory classifies what a member is saving toward.
type GoalCategory string

const (
	CategoryEmergency  GoalCategory = "emergency"
	CategoryVacation   GoalCategory = "vacation"
	CategoryInvestment GoalCategory = "investment"
	CategoryPurchase   GoalCategory = "purchase"
	CategoryOther      GoalCategory = "other"
)

// Valid reports whether the category is one of the known values.
func (c GoalCategory) Valid() bool {
	switch c {
	case CategoryEmergency, CategoryVacation, CategoryInvestment, CategoryPurchase, CategoryOther:
		return true
	}
	return false
}

// MinTargetKes is the smallest goal target accepted at creation.
const MinTargetKes = 100.0

// Goal is a member's named savings target.
//
// The BTC target is derived once, from the exchange rate captured at
// creation time. Contributions accumulate both the KES running total and
// an independent BTC running total converted at that same captured rate —
// the rate is never refreshed for the life of the goal.
type Goal struct {
	ID          uuid.UUID    `json:"id"`
	UserID      string       `json:"user_id"`
	Phone       string       `json:"phone"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	TargetKes   float64      `json:"target_amount_kes"`
	CurrentKes  float64      `json:"current_amount_kes"`
	TargetBtc   float64      `json:"target_amount_btc"`
	CurrentBtc  float64      `json:"current_amount_btc"`
	RateKesBtc  float64      `json:"rate_kes_btc"` // KES per BTC, captured at creation
	TargetDate  time.Time    `json:"target_date"`
	Category    GoalCategory `json:"category"`
	Active      bool         `json:"is_active"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Milestones  []Milestone  `json:"milestones"`
}

// ProgressPct returns the goal's completion percentage, clamped to [0, 100].
// Over-contribution is allowed; only the displayed percentage is clamped.
func (g *Goal) ProgressPct() float64 {
	if g.TargetKes <= 0 {
		return 0
	}
	pct := g.CurrentKes / g.TargetKes * 100
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}

// ─── Milestones ─────────────────────────────────────────────────────────────

// MilestoneSchedule is the fixed percentage checkpoints generated for every
// goal at creation time.
var MilestoneSchedule = []float64{25, 50, 75, 100}

// Milestone is one percentage checkpoint of a goal. Reached flips false→true
// at most once; re-checking an already-reached milestone is a no-op.
type Milestone struct {
	ID        uuid.UUID  `json:"id"`
	GoalID    uuid.UUID  `json:"goal_id"`
	Pct       float64    `json:"percentage"`
	AmountKes float64    `json:"amount_kes"`
	Reached   bool       `json:"reached"`
	ReachedAt *time.Time `json:"reached_at,omitempty"`
}

// NewMilestones builds the four-checkpoint schedule for a goal target.
func NewMilestones(goalID uuid.UUID, targetKes float64) []Milestone {
	ms := make([]Milestone, 0, len(MilestoneSchedule))
	for _, pct := range MilestoneSchedule {
		ms = append(ms, Milestone{
			ID:        uuid.New(),
			GoalID:    goalID,
			Pct:       pct,
			AmountKes: targetKes * pct / 100,
		})
	}
	return ms
}

// ─── Aggregate Stats ────────────────────────────────────────────────────────

// GoalStats is an operational roll-up across all goals in the ledger.
type GoalStats struct {
	TotalGoals     int     `json:"total_goals"`
	ActiveGoals    int     `json:"active_goals"`
	CompletedGoals int     `json:"completed_goals"`
	TotalTargetKes float64 `json:"total_target_kes"`
	TotalSavedKes  float64 `json:"total_saved_kes"`
	AvgProgressPct float64 `json:"avg_progress_pct"`
}
