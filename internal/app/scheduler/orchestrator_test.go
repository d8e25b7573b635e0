package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/akiba-network/akiba/internal/app/chamas"
	"github.com/akiba-network/akiba/internal/app/goals"
	"github.com/akiba-network/akiba/internal/app/reminders"
	"github.com/akiba-network/akiba/internal/domain"
	"github.com/akiba-network/akiba/internal/infra/memstore"
	"github.com/akiba-network/akiba/internal/infra/rates"
)

// captureMessenger records every hand-off.
type captureMessenger struct {
	mu   sync.Mutex
	sent []string
}

func (m *captureMessenger) Send(ctx context.Context, phone, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, text)
	return nil
}

func (m *captureMessenger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type countingCleaner struct{ calls int }

func (c *countingCleaner) CleanupExpiredSessions(ctx context.Context) (int, error) {
	c.calls++
	return 2, nil
}

type orchFixture struct {
	orch      *Orchestrator
	runner    *Runner
	queue     *reminders.Queue
	goals     *goals.Service
	messenger *captureMessenger
	cleaner   *countingCleaner
}

func newOrchFixture(t *testing.T) *orchFixture {
	t.Helper()
	queue := reminders.New(memstore.NewReminderStore(), nil)
	rateSource := rates.New(8_000_000, nil)

	goalCfg := goals.DefaultConfig()
	goalSvc := goals.New(memstore.NewGoalStore(), queue, rateSource, goalCfg)
	chamaSvc := chamas.New(memstore.NewChamaStore(), queue, chamas.DefaultConfig())

	runner := New(DefaultConfig())
	messenger := &captureMessenger{}
	cleaner := &countingCleaner{}
	orch := NewOrchestrator(runner, queue, goalSvc, chamaSvc, messenger, cleaner, rateSource, Intervals{})
	return &orchFixture{
		orch:      orch,
		runner:    runner,
		queue:     queue,
		goals:     goalSvc,
		messenger: messenger,
		cleaner:   cleaner,
	}
}

func TestStart_RegistersAllJobs(t *testing.T) {
	f := newOrchFixture(t)
	if err := f.orch.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.orch.Stop()

	infos := f.runner.Tasks()
	if len(infos) != 8 {
		t.Fatalf("registered = %d jobs, want 8", len(infos))
	}
	want := map[string]time.Duration{
		JobReminderProcessing: 5 * time.Minute,
		JobSessionCleanup:     30 * time.Minute,
		JobCacheCleanup:       time.Hour,
		JobDailyTips:          24 * time.Hour,
		JobWeeklyReports:      7 * 24 * time.Hour,
		JobPriceRefresh:       time.Minute,
		JobGoalProgress:       6 * time.Hour,
		JobChamaReminders:     12 * time.Hour,
	}
	for _, ti := range infos {
		interval, ok := want[ti.ID]
		if !ok {
			t.Errorf("unexpected job %s", ti.ID)
			continue
		}
		if ti.Interval != interval {
			t.Errorf("%s interval = %s, want %s", ti.ID, ti.Interval, interval)
		}
		if !ti.Active {
			t.Errorf("%s should start active", ti.ID)
		}
	}

	// A second start collides with the existing registrations.
	if err := f.orch.Start(); err == nil {
		t.Error("second Start should fail on duplicate jobs")
	}
}

func TestRunJob_ReminderProcessingDrainsDue(t *testing.T) {
	f := newOrchFixture(t)
	if err := f.orch.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.orch.Stop()

	if err := f.queue.Enqueue(&domain.Reminder{
		UserID:      "user-1",
		Phone:       "+254700000001",
		Kind:        domain.ReminderProgress,
		Message:     "keep saving",
		ScheduledAt: time.Now().Add(-time.Minute),
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if err := f.orch.RunJob(JobReminderProcessing); err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if got := f.messenger.count(); got != 1 {
		t.Errorf("deliveries = %d, want 1", got)
	}

	pending, err := f.queue.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d, want drained", len(pending))
	}
}

func TestRunJob_SessionCleanup(t *testing.T) {
	f := newOrchFixture(t)
	if err := f.orch.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.orch.Stop()

	if err := f.orch.RunJob(JobSessionCleanup); err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if f.cleaner.calls != 1 {
		t.Errorf("cleaner calls = %d, want 1", f.cleaner.calls)
	}
}

func TestRunJob_DailyTipsReachActiveUsers(t *testing.T) {
	f := newOrchFixture(t)
	if err := f.orch.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.orch.Stop()

	if _, err := f.goals.CreateGoal("user-1", "+254700000001", goals.CreateParams{
		Name:       "Shamba",
		TargetKes:  50000,
		TargetDate: time.Now().AddDate(1, 0, 0),
	}); err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}

	before, _ := f.queue.Pending()
	if err := f.orch.RunJob(JobDailyTips); err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	after, err := f.queue.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(after) != len(before)+1 {
		t.Errorf("pending grew by %d, want 1 tip enqueued", len(after)-len(before))
	}
}

func TestRunJob_UnknownJob(t *testing.T) {
	f := newOrchFixture(t)
	if err := f.orch.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.orch.Stop()

	if err := f.orch.RunJob("ghost_job"); err == nil {
		t.Error("unknown job should error")
	}
}

func TestStats_ReflectsRuns(t *testing.T) {
	f := newOrchFixture(t)
	if err := f.orch.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.orch.Stop()

	if err := f.orch.RunJob(JobCacheCleanup); err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	st := f.orch.Stats()
	if st.TotalTasks != 8 {
		t.Errorf("TotalTasks = %d, want 8", st.TotalTasks)
	}
	if st.TotalRuns < 1 {
		t.Errorf("TotalRuns = %d, want at least the manual run", st.TotalRuns)
	}
}
