// Package goals implements the savings-goal ledger.
//
// A goal is created with a KES target and a four-checkpoint milestone
// schedule (25/50/75/100%). Contributions monotonically increase the
// running totals; milestone and completion evaluation happens synchronously
// inside the same mutation, so callers always observe a consistent
// (amount, percentage, milestones, active-flag) snapshot. Each milestone
// fires its celebration reminder exactly once.
//
// The BTC target uses the exchange rate captured at creation; it is never
// refreshed for later contributions.
package goals

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akiba-network/akiba/internal/app/reminders"
	"github.com/akiba-network/akiba/internal/domain"
	"github.com/akiba-network/akiba/internal/infra/observability"
)

// ─── Configuration ──────────────────────────────────────────────────────────

// Config controls ledger behavior.
type Config struct {
	// MinNameLen is the minimum trimmed goal-name length.
	MinNameLen int

	// ReminderLead is how far out the creation "progress" reminder is
	// scheduled.
	ReminderLead time.Duration

	// DeadlineWindow is how close a target date must be before the
	// progress sweep enqueues a deadline reminder.
	DeadlineWindow time.Duration

	// Now is an injectable clock for testing.
	Now func() time.Time
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MinNameLen:     2,
		ReminderLead:   time.Minute,
		DeadlineWindow: 7 * 24 * time.Hour,
		Now:            time.Now,
	}
}

// ─── Service ────────────────────────────────────────────────────────────────

// Service is the goal ledger. It owns every goal it creates; milestones have
// no lifecycle outside their parent goal.
type Service struct {
	mu    sync.Mutex
	cfg   Config
	repo  domain.GoalRepository
	queue *reminders.Queue
	rates domain.RateSource

	// Per-user result cache, invalidated on every write for that user and
	// cleared wholesale by the periodic cache-cleanup job.
	cache map[string][]*domain.Goal
}

// New creates a goal ledger.
func New(repo domain.GoalRepository, queue *reminders.Queue, rates domain.RateSource, cfg Config) *Service {
	if cfg.MinNameLen <= 0 {
		cfg.MinNameLen = 2
	}
	if cfg.ReminderLead <= 0 {
		cfg.ReminderLead = time.Minute
	}
	if cfg.DeadlineWindow <= 0 {
		cfg.DeadlineWindow = 7 * 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		cfg:   cfg,
		repo:  repo,
		queue: queue,
		rates: rates,
		cache: make(map[string][]*domain.Goal),
	}
}

// CreateParams holds the user-supplied fields for a new goal.
type CreateParams struct {
	Name        string
	Description string
	TargetKes   float64
	TargetDate  time.Time
	Category    domain.GoalCategory
}

// CreateGoal validates the request, derives the BTC target from the current
// cached rate, generates the milestone schedule, and enqueues the initial
// progress reminder.
func (s *Service) CreateGoal(userID, phone string, p CreateParams) (*domain.Goal, error) {
	now := s.cfg.Now()

	name := strings.TrimSpace(p.Name)
	if len(name) < s.cfg.MinNameLen {
		return nil, domain.Invalid("name", "must be at least %d characters", s.cfg.MinNameLen)
	}
	if p.TargetKes < domain.MinTargetKes {
		return nil, domain.Invalid("target_amount", "must be at least KES %.0f", domain.MinTargetKes)
	}
	if !p.TargetDate.After(now) {
		return nil, domain.Invalid("target_date", "must be in the future")
	}
	category := p.Category
	if category == "" {
		category = domain.CategoryOther
	}
	if !category.Valid() {
		return nil, domain.Invalid("category", "unknown category %q", string(p.Category))
	}

	rate := s.rates.Rate()
	g := &domain.Goal{
		ID:          uuid.New(),
		UserID:      userID,
		Phone:       phone,
		Name:        name,
		Description: strings.TrimSpace(p.Description),
		TargetKes:   p.TargetKes,
		RateKesBtc:  rate,
		TargetDate:  p.TargetDate,
		Category:    category,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if rate > 0 {
		g.TargetBtc = p.TargetKes / rate
	}
	g.Milestones = domain.NewMilestones(g.ID, p.TargetKes)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Insert(g); err != nil {
		return nil, fmt.Errorf("insert goal: %w", err)
	}
	delete(s.cache, userID)
	observability.GoalsCreated.Inc()

	if err := s.queue.Enqueue(&domain.Reminder{
		EntityID:    g.ID,
		UserID:      userID,
		Phone:       phone,
		Kind:        domain.ReminderProgress,
		Message:     fmt.Sprintf("New goal %q created. Target: KES %.0f by %s. Small regular deposits add up fast.", g.Name, g.TargetKes, g.TargetDate.Format("02 Jan 2006")),
		ScheduledAt: now.Add(s.cfg.ReminderLead),
	}); err != nil {
		return nil, fmt.Errorf("enqueue creation reminder: %w", err)
	}

	return g, nil
}

// Contribute records a deposit against a goal. Milestone checks run
// ascending by percentage; every threshold crossed by this contribution
// fires its own reminder. Reaching the target completes the goal exactly
// once, after which further contributions fail with ErrGoalInactive.
func (s *Service) Contribute(goalID uuid.UUID, amountKes float64) (*domain.Goal, error) {
	if amountKes <= 0 {
		return nil, domain.Invalid("amount", "must be greater than zero")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.repo.Get(goalID)
	if err != nil {
		return nil, fmt.Errorf("load goal: %w", err)
	}
	if g == nil {
		return nil, domain.ErrGoalNotFound
	}
	if !g.Active {
		return nil, domain.ErrGoalInactive
	}

	now := s.cfg.Now()
	g.CurrentKes += amountKes
	if g.RateKesBtc > 0 {
		g.CurrentBtc += amountKes / g.RateKesBtc
	}
	g.UpdatedAt = now

	// Milestone evaluation, ascending. Reached flips false→true at most once.
	for i := range g.Milestones {
		m := &g.Milestones[i]
		if m.Reached || g.CurrentKes < m.AmountKes {
			continue
		}
		m.Reached = true
		t := now
		m.ReachedAt = &t
		if err := s.queue.Enqueue(&domain.Reminder{
			EntityID:    g.ID,
			UserID:      g.UserID,
			Phone:       g.Phone,
			Kind:        domain.ReminderMilestone,
			Message:     fmt.Sprintf("Milestone reached: %.0f%% of %q. KES %.0f saved of %.0f. Keep going!", m.Pct, g.Name, g.CurrentKes, g.TargetKes),
			ScheduledAt: now,
		}); err != nil {
			return nil, fmt.Errorf("enqueue milestone reminder: %w", err)
		}
	}

	// Completion fires exactly once: the active flag flips here and a
	// subsequent contribution is rejected before reaching this point.
	if g.CurrentKes >= g.TargetKes {
		g.Active = false
		t := now
		g.CompletedAt = &t
		observability.GoalsCompleted.Inc()
		if err := s.queue.Enqueue(&domain.Reminder{
			EntityID:    g.ID,
			UserID:      g.UserID,
			Phone:       g.Phone,
			Kind:        domain.ReminderProgress,
			Message:     fmt.Sprintf("Goal %q completed! You saved KES %.0f. Time to set the next one?", g.Name, g.CurrentKes),
			ScheduledAt: now,
		}); err != nil {
			return nil, fmt.Errorf("enqueue completion reminder: %w", err)
		}
	}

	if err := s.repo.Update(g); err != nil {
		return nil, fmt.Errorf("update goal: %w", err)
	}
	delete(s.cache, g.UserID)
	observability.Contributions.WithLabelValues("goal").Inc()
	observability.ContributedKes.WithLabelValues("goal").Add(amountKes)

	return g, nil
}

// UserGoals returns a user's goals, newest-created first. Results may be
// served from the per-user cache.
func (s *Service) UserGoals(userID string) ([]*domain.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.cache[userID]; ok {
		return cached, nil
	}
	gs, err := s.repo.ByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("load user goals: %w", err)
	}
	s.cache[userID] = gs
	return gs, nil
}

// Get returns a single goal.
func (s *Service) Get(goalID uuid.UUID) (*domain.Goal, error) {
	g, err := s.repo.Get(goalID)
	if err != nil {
		return nil, fmt.Errorf("load goal: %w", err)
	}
	if g == nil {
		return nil, domain.ErrGoalNotFound
	}
	return g, nil
}

// ClearCache drops the entire per-user cache. Invoked by the periodic
// cache-cleanup job.
func (s *Service) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string][]*domain.Goal)
}

// Stats aggregates counts, totals, and average progress across all goals.
func (s *Service) Stats() (domain.GoalStats, error) {
	gs, err := s.repo.All()
	if err != nil {
		return domain.GoalStats{}, fmt.Errorf("load goals: %w", err)
	}

	var st domain.GoalStats
	var pctSum float64
	for _, g := range gs {
		st.TotalGoals++
		if g.Active {
			st.ActiveGoals++
		}
		if g.CompletedAt != nil {
			st.CompletedGoals++
		}
		st.TotalTargetKes += g.TargetKes
		st.TotalSavedKes += g.CurrentKes
		pctSum += g.ProgressPct()
	}
	if st.TotalGoals > 0 {
		st.AvgProgressPct = pctSum / float64(st.TotalGoals)
	}
	return st, nil
}

// UserRef identifies a user with at least one active goal.
type UserRef struct {
	UserID string
	Phone  string
}

// ActiveUsers returns the distinct owners of active goals. Used by the
// daily-tips and weekly-report jobs.
func (s *Service) ActiveUsers() ([]UserRef, error) {
	gs, err := s.repo.All()
	if err != nil {
		return nil, fmt.Errorf("load goals: %w", err)
	}
	seen := make(map[string]bool)
	var out []UserRef
	for _, g := range gs {
		if !g.Active || seen[g.UserID] {
			continue
		}
		seen[g.UserID] = true
		out = append(out, UserRef{UserID: g.UserID, Phone: g.Phone})
	}
	return out, nil
}

// SweepProgress enqueues a deadline reminder for every active goal whose
// target date falls inside the deadline window. Run by the six-hour
// goal-progress job; returns the number of reminders enqueued.
func (s *Service) SweepProgress() (int, error) {
	now := s.cfg.Now()
	gs, err := s.repo.All()
	if err != nil {
		return 0, fmt.Errorf("load goals: %w", err)
	}

	enqueued := 0
	for _, g := range gs {
		if !g.Active {
			continue
		}
		until := g.TargetDate.Sub(now)
		if until < 0 || until > s.cfg.DeadlineWindow {
			continue
		}
		remaining := g.TargetKes - g.CurrentKes
		if remaining < 0 {
			remaining = 0
		}
		if err := s.queue.Enqueue(&domain.Reminder{
			EntityID:    g.ID,
			UserID:      g.UserID,
			Phone:       g.Phone,
			Kind:        domain.ReminderDeadline,
			Message:     fmt.Sprintf("Goal %q is due on %s. You are at %.0f%% with KES %.0f to go.", g.Name, g.TargetDate.Format("02 Jan"), g.ProgressPct(), remaining),
			ScheduledAt: now,
		}); err != nil {
			return enqueued, fmt.Errorf("enqueue deadline reminder: %w", err)
		}
		enqueued++
	}
	return enqueued, nil
}
