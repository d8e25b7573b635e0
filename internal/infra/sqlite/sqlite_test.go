package sqlite

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/akiba-network/akiba/internal/domain"
)

var base = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// ─── Goals ──────────────────────────────────────────────────────────────────

func sampleGoal() *domain.Goal {
	id := uuid.New()
	completed := base.Add(48 * time.Hour)
	g := &domain.Goal{
		ID:          id,
		UserID:      "user-1",
		Phone:       "+254700000001",
		Name:        "Emergency fund",
		Description: "three months of expenses",
		TargetKes:   30000,
		CurrentKes:  7500,
		TargetBtc:   0.00375,
		CurrentBtc:  0.0009375,
		RateKesBtc:  8_000_000,
		TargetDate:  base.AddDate(0, 6, 0),
		Category:    domain.CategoryEmergency,
		Active:      true,
		CreatedAt:   base,
		UpdatedAt:   base.Add(time.Hour),
		Milestones:  domain.NewMilestones(id, 30000),
	}
	g.Milestones[0].Reached = true
	g.Milestones[0].ReachedAt = &completed
	return g
}

func TestGoalStore_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	store := NewGoalStore(db)
	g := sampleGoal()

	if err := store.Insert(g); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := store.Get(g.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("Get returned nil for a stored goal")
	}
	if got.Name != g.Name || got.Category != g.Category || got.CurrentKes != g.CurrentKes {
		t.Errorf("got %+v, want the stored fields back", got)
	}
	if !got.TargetDate.Equal(g.TargetDate) || !got.CreatedAt.Equal(g.CreatedAt) {
		t.Error("timestamps should survive the round trip")
	}
	if got.CompletedAt != nil {
		t.Error("CompletedAt should stay nil")
	}
	if len(got.Milestones) != 4 || !got.Milestones[0].Reached {
		t.Errorf("milestones = %+v, want the JSON blob restored", got.Milestones)
	}
}

func TestGoalStore_GetUnknown(t *testing.T) {
	store := NewGoalStore(openTestDB(t))
	g, err := store.Get(uuid.New())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if g != nil {
		t.Errorf("got %+v, want nil for unknown id", g)
	}
}

func TestGoalStore_Update(t *testing.T) {
	store := NewGoalStore(openTestDB(t))
	g := sampleGoal()
	if err := store.Insert(g); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	done := base.Add(72 * time.Hour)
	g.CurrentKes = 30000
	g.Active = false
	g.CompletedAt = &done
	for i := range g.Milestones {
		g.Milestones[i].Reached = true
	}
	if err := store.Update(g); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := store.Get(g.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Active || got.CurrentKes != 30000 {
		t.Errorf("got %+v, want the completed state", got)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(done) {
		t.Errorf("CompletedAt = %v, want %v", got.CompletedAt, done)
	}
}

func TestGoalStore_UpdateUnknown(t *testing.T) {
	store := NewGoalStore(openTestDB(t))
	if err := store.Update(sampleGoal()); err != domain.ErrGoalNotFound {
		t.Errorf("err = %v, want ErrGoalNotFound", err)
	}
}

func TestGoalStore_ByUserOrdering(t *testing.T) {
	store := NewGoalStore(openTestDB(t))

	old := sampleGoal()
	recent := sampleGoal()
	recent.CreatedAt = base.Add(time.Hour)
	other := sampleGoal()
	other.UserID = "user-2"
	for _, g := range []*domain.Goal{old, recent, other} {
		if err := store.Insert(g); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	gs, err := store.ByUser("user-1")
	if err != nil {
		t.Fatalf("ByUser: %v", err)
	}
	if len(gs) != 2 {
		t.Fatalf("len = %d, want 2", len(gs))
	}
	if gs[0].ID != recent.ID || gs[1].ID != old.ID {
		t.Error("ByUser should order newest first")
	}

	all, err := store.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("All = %d, want 3", len(all))
	}
}

// ─── Chamas ─────────────────────────────────────────────────────────────────

func sampleChama() *domain.Chama {
	lastContribution := base.Add(time.Hour)
	return &domain.Chama{
		ID:              uuid.New(),
		AdminUserID:     "admin-1",
		AdminPhone:      "+254700000001",
		Name:            "Pamoja",
		MinContribution: 1000,
		Frequency:       domain.FrequencyMonthly,
		MaxMembers:      10,
		TargetKes:       100000,
		CurrentKes:      2500,
		Active:          true,
		CreatedAt:       base,
		UpdatedAt:       base,
		Rules:           domain.DefaultChamaRules(),
		Members: []domain.Member{
			{
				UserID: "admin-1", Phone: "+254700000001", Name: "Admin",
				JoinedAt: base, Active: true, Role: domain.RoleAdmin,
				TotalKes: 2500, ContributionCount: 2,
				LastContributionAt: &lastContribution,
			},
			{
				UserID: "user-2", Phone: "+254700000002", Name: "Wanjiku",
				JoinedAt: base, Active: true, Role: domain.RoleMember,
			},
		},
	}
}

func TestChamaStore_RoundTrip(t *testing.T) {
	store := NewChamaStore(openTestDB(t))
	c := sampleChama()

	if err := store.Insert(c); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := store.Get(c.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("Get returned nil for a stored chama")
	}
	if got.Name != c.Name || got.MinContribution != 1000 || got.Frequency != domain.FrequencyMonthly {
		t.Errorf("got %+v, want the stored fields back", got)
	}
	if len(got.Members) != 2 {
		t.Fatalf("members = %d, want 2", len(got.Members))
	}
	m := got.FindMember("admin-1")
	if m == nil || m.TotalKes != 2500 || m.LastContributionAt == nil {
		t.Errorf("admin member = %+v, want JSON fields restored", m)
	}
	if got.Rules.LatePenaltyKes != 50 {
		t.Errorf("rules = %+v, want the default rules restored", got.Rules)
	}
}

func TestChamaStore_ByMemberAndActive(t *testing.T) {
	store := NewChamaStore(openTestDB(t))
	c := sampleChama()
	c.Members[1].Active = false
	closed := sampleChama()
	closed.Active = false
	closed.CreatedAt = base.Add(time.Hour)
	for _, ch := range []*domain.Chama{c, closed} {
		if err := store.Insert(ch); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	if cs, _ := store.ByMember("admin-1"); len(cs) != 2 {
		t.Errorf("ByMember(admin) = %d, want 2", len(cs))
	}
	if cs, _ := store.ByMember("user-2"); len(cs) != 1 {
		t.Errorf("ByMember(inactive in one) = %d, want 1", len(cs))
	}
	active, err := store.Active()
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if len(active) != 1 || active[0].ID != c.ID {
		t.Errorf("Active = %d, want only the open chama", len(active))
	}
}

func TestChamaStore_Contributions(t *testing.T) {
	store := NewChamaStore(openTestDB(t))
	c := sampleChama()
	if err := store.Insert(c); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	for i := 0; i < 3; i++ {
		con := &domain.Contribution{
			ID:        uuid.New(),
			ChamaID:   c.ID,
			UserID:    "admin-1",
			Phone:     "+254700000001",
			AmountKes: 1000,
			Date:      base.Add(time.Duration(i) * time.Hour),
			Late:      i == 2,
			TxRef:     "tx",
		}
		if i == 2 {
			con.PenaltyKes = 50
		}
		if err := store.AddContribution(con); err != nil {
			t.Fatalf("AddContribution: %v", err)
		}
	}

	hist, err := store.Contributions(c.ID)
	if err != nil {
		t.Fatalf("Contributions: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("history = %d, want 3", len(hist))
	}
	for i := 1; i < len(hist); i++ {
		if hist[i].Date.Before(hist[i-1].Date) {
			t.Fatal("history should be oldest first")
		}
	}
	last := hist[2]
	if !last.Late || last.PenaltyKes != 50 {
		t.Errorf("late record = %+v, want late with penalty 50", last)
	}
}

// ─── Reminders ──────────────────────────────────────────────────────────────

func TestReminderStore_PendingAndDue(t *testing.T) {
	store := NewReminderStore(openTestDB(t))

	mk := func(at time.Time) *domain.Reminder {
		return &domain.Reminder{
			ID:          uuid.New(),
			EntityID:    uuid.New(),
			UserID:      "user-1",
			Phone:       "+254700000001",
			Kind:        domain.ReminderMilestone,
			Message:     "m",
			ScheduledAt: at,
		}
	}
	past := mk(base.Add(-time.Hour))
	now := mk(base)
	future := mk(base.Add(time.Hour))
	for _, r := range []*domain.Reminder{future, past, now} {
		if err := store.Insert(r); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	pending, err := store.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 3 || pending[0].ID != past.ID || pending[2].ID != future.ID {
		t.Errorf("pending = %+v, want scheduled order", pending)
	}

	due, err := store.Due(base)
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("due = %d, want 2 (at-or-before now)", len(due))
	}
}

func TestReminderStore_MarkProcessedIdempotent(t *testing.T) {
	store := NewReminderStore(openTestDB(t))
	r := &domain.Reminder{
		ID:          uuid.New(),
		EntityID:    uuid.New(),
		UserID:      "user-1",
		Phone:       "+254700000001",
		Kind:        domain.ReminderProgress,
		Message:     "m",
		ScheduledAt: base,
	}
	if err := store.Insert(r); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	at := base.Add(time.Minute)
	if err := store.MarkProcessed(r.ID, at, "send failed"); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	if pending, _ := store.Pending(); len(pending) != 0 {
		t.Errorf("pending = %d, want 0 after processing", len(pending))
	}

	// A second stamp must not overwrite the first.
	if err := store.MarkProcessed(r.ID, at.Add(time.Hour), ""); err != nil {
		t.Fatalf("second MarkProcessed: %v", err)
	}
	got, err := store.query(`WHERE id = ?`, r.ID.String())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("rows = %d, want 1", len(got))
	}
	if !got[0].Processed || got[0].Error != "send failed" {
		t.Errorf("record = %+v, want the original stamp preserved", got[0])
	}
	if got[0].ProcessedAt == nil || !got[0].ProcessedAt.Equal(at) {
		t.Errorf("ProcessedAt = %v, want %v", got[0].ProcessedAt, at)
	}
}
