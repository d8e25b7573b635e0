// Package memstore provides the in-memory default repositories.
//
// All ledgers and the reminder queue live in process memory and are lost
// on restart. The sqlite package is the durable alternative behind the
// same interfaces.
package memstore

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akiba-network/akiba/internal/domain"
)

// ─── Goal Store ─────────────────────────────────────────────────────────────

// GoalStore is an in-memory domain.GoalRepository.
type GoalStore struct {
	mu    sync.RWMutex
	goals map[uuid.UUID]*domain.Goal
}

// NewGoalStore creates an empty goal store.
func NewGoalStore() *GoalStore {
	return &GoalStore{goals: make(map[uuid.UUID]*domain.Goal)}
}

// Insert stores a new goal.
func (s *GoalStore) Insert(g *domain.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneGoal(g)
	s.goals[g.ID] = cp
	return nil
}

// Get returns the goal for id, or (nil, nil) if unknown.
func (s *GoalStore) Get(id uuid.UUID) (*domain.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.goals[id]
	if !ok {
		return nil, nil
	}
	return cloneGoal(g), nil
}

// Update replaces a stored goal.
func (s *GoalStore) Update(g *domain.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.goals[g.ID]; !ok {
		return domain.ErrGoalNotFound
	}
	s.goals[g.ID] = cloneGoal(g)
	return nil
}

// ByUser returns a user's goals, newest-created first.
func (s *GoalStore) ByUser(userID string) ([]*domain.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Goal
	for _, g := range s.goals {
		if g.UserID == userID {
			out = append(out, cloneGoal(g))
		}
	}
	sortGoalsNewestFirst(out)
	return out, nil
}

// All returns every goal, newest-created first.
func (s *GoalStore) All() ([]*domain.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Goal, 0, len(s.goals))
	for _, g := range s.goals {
		out = append(out, cloneGoal(g))
	}
	sortGoalsNewestFirst(out)
	return out, nil
}

func sortGoalsNewestFirst(gs []*domain.Goal) {
	sort.Slice(gs, func(i, j int) bool {
		return gs[i].CreatedAt.After(gs[j].CreatedAt)
	})
}

// cloneGoal deep-copies a goal so callers never alias store-internal state.
func cloneGoal(g *domain.Goal) *domain.Goal {
	cp := *g
	cp.Milestones = append([]domain.Milestone(nil), g.Milestones...)
	if g.CompletedAt != nil {
		t := *g.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// ─── Chama Store ────────────────────────────────────────────────────────────

// ChamaStore is an in-memory domain.ChamaRepository.
type ChamaStore struct {
	mu            sync.RWMutex
	chamas        map[uuid.UUID]*domain.Chama
	contributions map[uuid.UUID][]*domain.Contribution
}

// NewChamaStore creates an empty chama store.
func NewChamaStore() *ChamaStore {
	return &ChamaStore{
		chamas:        make(map[uuid.UUID]*domain.Chama),
		contributions: make(map[uuid.UUID][]*domain.Contribution),
	}
}

// Insert stores a new chama.
func (s *ChamaStore) Insert(c *domain.Chama) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chamas[c.ID] = cloneChama(c)
	return nil
}

// Get returns the chama for id, or (nil, nil) if unknown.
func (s *ChamaStore) Get(id uuid.UUID) (*domain.Chama, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chamas[id]
	if !ok {
		return nil, nil
	}
	return cloneChama(c), nil
}

// Update replaces a stored chama.
func (s *ChamaStore) Update(c *domain.Chama) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chamas[c.ID]; !ok {
		return domain.ErrChamaNotFound
	}
	s.chamas[c.ID] = cloneChama(c)
	return nil
}

// ByMember returns chamas where the user is an active member, newest first.
func (s *ChamaStore) ByMember(userID string) ([]*domain.Chama, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Chama
	for _, c := range s.chamas {
		m := c.FindMember(userID)
		if m != nil && m.Active {
			out = append(out, cloneChama(c))
		}
	}
	sortChamasNewestFirst(out)
	return out, nil
}

// Active returns all active chamas, newest first.
func (s *ChamaStore) Active() ([]*domain.Chama, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Chama
	for _, c := range s.chamas {
		if c.Active {
			out = append(out, cloneChama(c))
		}
	}
	sortChamasNewestFirst(out)
	return out, nil
}

// All returns every chama, newest first.
func (s *ChamaStore) All() ([]*domain.Chama, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Chama, 0, len(s.chamas))
	for _, c := range s.chamas {
		out = append(out, cloneChama(c))
	}
	sortChamasNewestFirst(out)
	return out, nil
}

// AddContribution appends a contribution to a chama's history.
func (s *ChamaStore) AddContribution(con *domain.Contribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *con
	s.contributions[con.ChamaID] = append(s.contributions[con.ChamaID], &cp)
	return nil
}

// Contributions returns a chama's full contribution history, oldest first.
func (s *ChamaStore) Contributions(chamaID uuid.UUID) ([]*domain.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hist := s.contributions[chamaID]
	out := make([]*domain.Contribution, len(hist))
	for i, c := range hist {
		cp := *c
		out[i] = &cp
	}
	return out, nil
}

func sortChamasNewestFirst(cs []*domain.Chama) {
	sort.Slice(cs, func(i, j int) bool {
		return cs[i].CreatedAt.After(cs[j].CreatedAt)
	})
}

func cloneChama(c *domain.Chama) *domain.Chama {
	cp := *c
	cp.Members = make([]domain.Member, len(c.Members))
	for i, m := range c.Members {
		cp.Members[i] = m
		if m.LastContributionAt != nil {
			t := *m.LastContributionAt
			cp.Members[i].LastContributionAt = &t
		}
	}
	if c.EndDate != nil {
		t := *c.EndDate
		cp.EndDate = &t
	}
	if c.CompletedAt != nil {
		t := *c.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// ─── Reminder Store ─────────────────────────────────────────────────────────

// ReminderStore is an in-memory domain.ReminderRepository. Pending reminders
// are kept in scheduled order; processed ones are retained for inspection.
type ReminderStore struct {
	mu        sync.RWMutex
	pending   []*domain.Reminder
	processed []*domain.Reminder
}

// NewReminderStore creates an empty reminder store.
func NewReminderStore() *ReminderStore {
	return &ReminderStore{}
}

// Insert enqueues a reminder in scheduled-time order.
func (s *ReminderStore) Insert(r *domain.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	i := sort.Search(len(s.pending), func(i int) bool {
		return s.pending[i].ScheduledAt.After(cp.ScheduledAt)
	})
	s.pending = append(s.pending, nil)
	copy(s.pending[i+1:], s.pending[i:])
	s.pending[i] = &cp
	return nil
}

// Pending returns all unprocessed reminders in scheduled order.
func (s *ReminderStore) Pending() ([]*domain.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Reminder, len(s.pending))
	for i, r := range s.pending {
		cp := *r
		out[i] = &cp
	}
	return out, nil
}

// Due returns unprocessed reminders scheduled at or before now.
func (s *ReminderStore) Due(now time.Time) ([]*domain.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Reminder
	for _, r := range s.pending {
		if r.ScheduledAt.After(now) {
			break // pending is sorted
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

// MarkProcessed stamps a reminder processed and moves it off the pending
// queue. handoffErr records a failed delivery; the reminder is not retried.
func (s *ReminderStore) MarkProcessed(id uuid.UUID, at time.Time, handoffErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.pending {
		if r.ID == id {
			r.Processed = true
			r.ProcessedAt = &at
			r.Error = handoffErr
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			s.processed = append(s.processed, r)
			return nil
		}
	}
	return nil // already drained — idempotent
}

// Processed returns reminders that have been drained, oldest first.
func (s *ReminderStore) Processed() []*domain.Reminder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Reminder, len(s.processed))
	for i, r := range s.processed {
		cp := *r
		out[i] = &cp
	}
	return out
}
