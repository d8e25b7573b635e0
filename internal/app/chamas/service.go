// Package chamas implements the group-savings (chama) ledger.
//
// A chama pools member contributions toward an optional shared target.
// Rules are fixed at creation. Lateness uses a fixed 32-day window
// regardless of the configured contribution frequency. Late penalties are
// recorded on the member and in stats but are never deducted from the
// pooled balance.
package chamas

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
	// MinNameLen is the minimum trimmed chama-name length.
	MinNameLen int

	// LateAfter is the fixed lateness window: a contribution is flagged
	// late when the member's previous contribution is older than this.
	LateAfter time.Duration

	// DefaultMaxMembers applies when a creation request leaves the member
	// cap unset.
	DefaultMaxMembers int

	// Now is an injectable clock for testing.
	Now func() time.Time
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MinNameLen:        3,
		LateAfter:         32 * 24 * time.Hour,
		DefaultMaxMembers: 10,
		Now:               time.Now,
	}
}

// ─── Service ────────────────────────────────────────────────────────────────

// Service is the chama ledger.
type Service struct {
	mu    sync.Mutex
	cfg   Config
	repo  domain.ChamaRepository
	queue *reminders.Queue

	// memberCache maps chama id → set of active member ids. Populated on
	// membership checks, invalidated on join/leave, and cleared wholesale
	// by the periodic cache-cleanup job.
	memberCache map[uuid.UUID]map[string]bool
}

// New creates a chama ledger.
func New(repo domain.ChamaRepository, queue *reminders.Queue, cfg Config) *Service {
	if cfg.MinNameLen <= 0 {
		cfg.MinNameLen = 3
	}
	if cfg.LateAfter <= 0 {
		cfg.LateAfter = 32 * 24 * time.Hour
	}
	if cfg.DefaultMaxMembers <= 0 {
		cfg.DefaultMaxMembers = 10
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		cfg:         cfg,
		repo:        repo,
		queue:       queue,
		memberCache: make(map[uuid.UUID]map[string]bool),
	}
}

// CreateParams holds the user-supplied fields for a new chama.
type CreateParams struct {
	Name            string
	Description     string
	MinContribution float64 // 0 = use the floor
	Frequency       domain.ContributionFrequency
	MaxMembers      int // 0 = default
	TargetKes       float64
	EndDate         *time.Time
}

// CreateChama validates the request and creates the chama with the admin
// pre-seeded as its sole, admin-role member. Default rules apply: penalty
// 50, missed-payment limit 3, majority-vote withdrawal, 60% threshold,
// auto-kick after 90 days.
func (s *Service) CreateChama(adminUserID, adminPhone string, p CreateParams) (*domain.Chama, error) {
	now := s.cfg.Now()

	name := strings.TrimSpace(p.Name)
	if len(name) < s.cfg.MinNameLen {
		return nil, domain.Invalid("name", "must be at least %d characters", s.cfg.MinNameLen)
	}
	minContribution := p.MinContribution
	if minContribution == 0 {
		minContribution = domain.MinChamaContribution
	}
	if minContribution < domain.MinChamaContribution {
		return nil, domain.Invalid("min_contribution", "must be at least KES %.0f", domain.MinChamaContribution)
	}
	frequency := p.Frequency
	if frequency == "" {
		frequency = domain.FrequencyMonthly
	}
	if frequency != domain.FrequencyWeekly && frequency != domain.FrequencyMonthly {
		return nil, domain.Invalid("contribution_frequency", "must be weekly or monthly")
	}
	maxMembers := p.MaxMembers
	if maxMembers == 0 {
		maxMembers = s.cfg.DefaultMaxMembers
	}
	if maxMembers < 1 {
		return nil, domain.Invalid("max_members", "must be at least 1")
	}

	c := &domain.Chama{
		ID:              uuid.New(),
		AdminUserID:     adminUserID,
		AdminPhone:      adminPhone,
		Name:            name,
		Description:     strings.TrimSpace(p.Description),
		MinContribution: minContribution,
		Frequency:       frequency,
		MaxMembers:      maxMembers,
		TargetKes:       p.TargetKes,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
		EndDate:         p.EndDate,
		Rules:           domain.DefaultChamaRules(),
		Members: []domain.Member{{
			UserID:   adminUserID,
			Phone:    adminPhone,
			Name:     "Admin",
			JoinedAt: now,
			Active:   true,
			Role:     domain.RoleAdmin,
		}},
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Insert(c); err != nil {
		return nil, fmt.Errorf("insert chama: %w", err)
	}
	observability.ChamasCreated.Inc()
	return c, nil
}

// Join appends a member-role member. Fails when the chama is unknown,
// inactive, at capacity, or the user is already an active member.
func (s *Service) Join(chamaID uuid.UUID, userID, phone, displayName string) (*domain.Chama, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.repo.Get(chamaID)
	if err != nil {
		return nil, fmt.Errorf("load chama: %w", err)
	}
	if c == nil {
		return nil, domain.ErrChamaNotFound
	}
	if !c.Active {
		return nil, domain.ErrChamaInactive
	}
	if c.MemberCount() >= c.MaxMembers {
		return nil, domain.ErrChamaFull
	}

	now := s.cfg.Now()
	if m := c.FindMember(userID); m != nil {
		if m.Active {
			return nil, domain.ErrAlreadyMember
		}
		// A lapsed member rejoins on their existing record.
		m.Active = true
		m.JoinedAt = now
	} else {
		c.Members = append(c.Members, domain.Member{
			UserID:   userID,
			Phone:    phone,
			Name:     displayName,
			JoinedAt: now,
			Active:   true,
			Role:     domain.RoleMember,
		})
	}
	c.UpdatedAt = now

	if err := s.repo.Update(c); err != nil {
		return nil, fmt.Errorf("update chama: %w", err)
	}
	delete(s.memberCache, chamaID)
	return c, nil
}

// Contribute records a member's deposit. The contribution is flagged late
// when the member's previous contribution is older than the lateness
// window (no prior contribution is never late); a late contribution
// attaches the configured penalty, recorded but not deducted. Stats are
// recomputed from the full contribution history. Reaching the target (if
// set) completes the chama exactly once.
func (s *Service) Contribute(chamaID uuid.UUID, userID string, amountKes float64, txRef string) (*domain.Contribution, *domain.Chama, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.repo.Get(chamaID)
	if err != nil {
		return nil, nil, fmt.Errorf("load chama: %w", err)
	}
	if c == nil {
		return nil, nil, domain.ErrChamaNotFound
	}
	if !c.Active {
		return nil, nil, domain.ErrChamaInactive
	}
	if !s.isActiveMember(c, userID) {
		return nil, nil, domain.ErrNotMember
	}
	if amountKes < c.MinContribution {
		return nil, nil, domain.Invalid("amount", "below the chama minimum of KES %.0f", c.MinContribution)
	}

	now := s.cfg.Now()
	m := c.FindMember(userID)

	late := m.LastContributionAt != nil && now.Sub(*m.LastContributionAt) > s.cfg.LateAfter
	var penalty float64
	if late {
		penalty = c.Rules.LatePenaltyKes
		m.PenaltiesKes += penalty
		observability.LateContributions.Inc()
	}

	con := &domain.Contribution{
		ID:         uuid.New(),
		ChamaID:    c.ID,
		UserID:     userID,
		Phone:      m.Phone,
		AmountKes:  amountKes,
		Date:       now,
		Late:       late,
		PenaltyKes: penalty,
		TxRef:      txRef,
	}

	m.TotalKes += amountKes
	m.ContributionCount++
	t := now
	m.LastContributionAt = &t
	c.CurrentKes += amountKes
	c.UpdatedAt = now

	if err := s.repo.AddContribution(con); err != nil {
		return nil, nil, fmt.Errorf("record contribution: %w", err)
	}

	hist, err := s.repo.Contributions(c.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("load contribution history: %w", err)
	}
	c.Stats = s.computeStats(c, hist)

	// Target completion mirrors the goal rule: fires exactly once.
	if c.TargetKes > 0 && c.CurrentKes >= c.TargetKes && c.CompletedAt == nil {
		c.Active = false
		done := now
		c.CompletedAt = &done
		for i := range c.Members {
			mem := &c.Members[i]
			if !mem.Active {
				continue
			}
			if err := s.queue.Enqueue(&domain.Reminder{
				EntityID:    c.ID,
				UserID:      mem.UserID,
				Phone:       mem.Phone,
				Kind:        domain.ReminderMilestone,
				Message:     fmt.Sprintf("Chama %q reached its target of KES %.0f! Total pooled: KES %.0f.", c.Name, c.TargetKes, c.CurrentKes),
				ScheduledAt: now,
			}); err != nil {
				return nil, nil, fmt.Errorf("enqueue completion reminder: %w", err)
			}
		}
	}

	if err := s.repo.Update(c); err != nil {
		return nil, nil, fmt.Errorf("update chama: %w", err)
	}
	observability.Contributions.WithLabelValues("chama").Inc()
	observability.ContributedKes.WithLabelValues("chama").Add(amountKes)

	return con, c, nil
}

// isActiveMember consults the membership cache before falling back to a
// scan of the member list.
func (s *Service) isActiveMember(c *domain.Chama, userID string) bool {
	if set, ok := s.memberCache[c.ID]; ok {
		return set[userID]
	}
	set := make(map[string]bool, len(c.Members))
	for i := range c.Members {
		if c.Members[i].Active {
			set[c.Members[i].UserID] = true
		}
	}
	s.memberCache[c.ID] = set
	return set[userID]
}

// computeStats derives the stats block from the full contribution history.
func (s *Service) computeStats(c *domain.Chama, hist []*domain.Contribution) domain.ChamaStats {
	st := domain.ChamaStats{TotalDisbursedKes: c.Stats.TotalDisbursedKes}

	onTime := 0
	for _, con := range hist {
		st.TotalCollectedKes += con.AmountKes
		if !con.Late {
			onTime++
		}
	}
	if n := len(hist); n > 0 {
		st.AvgContributionKes = st.TotalCollectedKes / float64(n)
		st.OnTimeRatePct = float64(onTime) / float64(n) * 100
	}

	if total := len(c.Members); total > 0 {
		st.RetentionRatePct = float64(c.MemberCount()) / float64(total) * 100
	}

	// Compliance: active members whose latest contribution falls inside
	// the chama's configured frequency period.
	period := 30 * 24 * time.Hour
	if c.Frequency == domain.FrequencyWeekly {
		period = 7 * 24 * time.Hour
	}
	now := s.cfg.Now()
	active, compliant := 0, 0
	for i := range c.Members {
		m := &c.Members[i]
		if !m.Active {
			continue
		}
		active++
		if m.LastContributionAt != nil && now.Sub(*m.LastContributionAt) <= period {
			compliant++
		}
	}
	if active > 0 {
		st.CompliancePct = float64(compliant) / float64(active) * 100
	}
	return st
}

// UserChamas returns chamas where the user is an active member, newest
// first.
func (s *Service) UserChamas(userID string) ([]*domain.Chama, error) {
	return s.repo.ByMember(userID)
}

// ByID returns a single chama.
func (s *Service) ByID(chamaID uuid.UUID) (*domain.Chama, error) {
	c, err := s.repo.Get(chamaID)
	if err != nil {
		return nil, fmt.Errorf("load chama: %w", err)
	}
	if c == nil {
		return nil, domain.ErrChamaNotFound
	}
	return c, nil
}

// ClearCaches drops the membership cache. Invoked by the periodic
// cache-cleanup job.
func (s *Service) ClearCaches() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberCache = make(map[uuid.UUID]map[string]bool)
}

// SweepExpired marks chamas inactive once their end date has passed while
// still active, stamping the completion time. Returns how many were closed.
func (s *Service) SweepExpired() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.cfg.Now()
	active, err := s.repo.Active()
	if err != nil {
		return 0, fmt.Errorf("load active chamas: %w", err)
	}

	closed := 0
	for _, c := range active {
		if c.EndDate == nil || c.EndDate.After(now) {
			continue
		}
		c.Active = false
		t := now
		c.CompletedAt = &t
		c.UpdatedAt = now
		if err := s.repo.Update(c); err != nil {
			return closed, fmt.Errorf("close chama %s: %w", c.ID, err)
		}
		closed++
	}
	return closed, nil
}

// SweepReminders enqueues a contribution reminder for every active member
// of an active chama whose latest contribution (or join date, if they have
// never contributed) is older than the chama's frequency period. Run by
// the twelve-hour chama-reminders job.
func (s *Service) SweepReminders() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.cfg.Now()
	active, err := s.repo.Active()
	if err != nil {
		return 0, fmt.Errorf("load active chamas: %w", err)
	}

	enqueued := 0
	for _, c := range active {
		period := 30 * 24 * time.Hour
		if c.Frequency == domain.FrequencyWeekly {
			period = 7 * 24 * time.Hour
		}
		for i := range c.Members {
			m := &c.Members[i]
			if !m.Active {
				continue
			}
			ref := m.JoinedAt
			if m.LastContributionAt != nil {
				ref = *m.LastContributionAt
			}
			if now.Sub(ref) <= period {
				continue
			}
			if err := s.queue.Enqueue(&domain.Reminder{
				EntityID:    c.ID,
				UserID:      m.UserID,
				Phone:       m.Phone,
				Kind:        domain.ReminderContribution,
				Message:     fmt.Sprintf("Your %s contribution to chama %q is due. Minimum: KES %.0f.", c.Frequency, c.Name, c.MinContribution),
				ScheduledAt: now,
			}); err != nil {
				return enqueued, fmt.Errorf("enqueue contribution reminder: %w", err)
			}
			enqueued++
		}
	}
	return enqueued, nil
}

// ─── Ledger Stats ───────────────────────────────────────────────────────────

// LedgerStats is an operational roll-up across all chamas.
type LedgerStats struct {
	TotalChamas    int     `json:"total_chamas"`
	ActiveChamas   int     `json:"active_chamas"`
	TotalMembers   int     `json:"total_members"`
	TotalPooledKes float64 `json:"total_pooled_kes"`
}

// Stats aggregates counts and pooled totals across all chamas.
func (s *Service) Stats() (LedgerStats, error) {
	all, err := s.repo.All()
	if err != nil {
		return LedgerStats{}, fmt.Errorf("load chamas: %w", err)
	}
	var st LedgerStats
	for _, c := range all {
		st.TotalChamas++
		if c.Active {
			st.ActiveChamas++
		}
		st.TotalMembers += c.MemberCount()
		st.TotalPooledKes += c.CurrentKes
	}
	return st, nil
}
