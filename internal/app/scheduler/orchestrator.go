package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/akiba-network/akiba/internal/app/chamas"
	"github.com/akiba-network/akiba/internal/app/goals"
	"github.com/akiba-network/akiba/internal/app/reminders"
	"github.com/akiba-network/akiba/internal/domain"
)

// ─── Job Names ──────────────────────────────────────────────────────────────

// The orchestrator registers this fixed set of recurring jobs.
const (
	JobReminderProcessing = "reminder_processing" // 5 min
	JobSessionCleanup     = "session_cleanup"     // 30 min
	JobCacheCleanup       = "cache_cleanup"       // 1 h
	JobDailyTips          = "daily_tips"          // 24 h
	JobWeeklyReports      = "weekly_reports"      // 7 d
	JobPriceRefresh       = "price_refresh"       // 1 min
	JobGoalProgress       = "goal_progress_check" // 6 h
	JobChamaReminders     = "chama_reminders"     // 12 h
)

// Intervals holds the cadence of each fixed job. Zero fields fall back to
// the production defaults.
type Intervals struct {
	Reminders      time.Duration
	SessionCleanup time.Duration
	CacheCleanup   time.Duration
	DailyTips      time.Duration
	WeeklyReports  time.Duration
	PriceRefresh   time.Duration
	GoalProgress   time.Duration
	ChamaReminders time.Duration
}

// DefaultIntervals returns the production cadences.
func DefaultIntervals() Intervals {
	return Intervals{
		Reminders:      5 * time.Minute,
		SessionCleanup: 30 * time.Minute,
		CacheCleanup:   time.Hour,
		DailyTips:      24 * time.Hour,
		WeeklyReports:  7 * 24 * time.Hour,
		PriceRefresh:   time.Minute,
		GoalProgress:   6 * time.Hour,
		ChamaReminders: 12 * time.Hour,
	}
}

func (iv Intervals) normalized() Intervals {
	def := DefaultIntervals()
	if iv.Reminders <= 0 {
		iv.Reminders = def.Reminders
	}
	if iv.SessionCleanup <= 0 {
		iv.SessionCleanup = def.SessionCleanup
	}
	if iv.CacheCleanup <= 0 {
		iv.CacheCleanup = def.CacheCleanup
	}
	if iv.DailyTips <= 0 {
		iv.DailyTips = def.DailyTips
	}
	if iv.WeeklyReports <= 0 {
		iv.WeeklyReports = def.WeeklyReports
	}
	if iv.PriceRefresh <= 0 {
		iv.PriceRefresh = def.PriceRefresh
	}
	if iv.GoalProgress <= 0 {
		iv.GoalProgress = def.GoalProgress
	}
	if iv.ChamaReminders <= 0 {
		iv.ChamaReminders = def.ChamaReminders
	}
	return iv
}

// ─── Orchestrator ───────────────────────────────────────────────────────────

// savingsTips rotate through the daily-tips job, one per day.
var savingsTips = []string{
	"Tip: automate a small deposit right after payday — you won't miss what you never saw.",
	"Tip: review your goals weekly. Goals you look at are goals you fund.",
	"Tip: round up everyday purchases and save the difference.",
	"Tip: a chama keeps you accountable. Contribute before the deadline, not on it.",
	"Tip: Bitcoin is volatile — save toward targets you can hold through dips.",
	"Tip: an emergency fund of three months' expenses comes before everything else.",
	"Tip: celebrate milestones, then raise the target.",
}

// Orchestrator wires the engine's fixed jobs onto the runner.
type Orchestrator struct {
	runner    *Runner
	queue     *reminders.Queue
	goals     *goals.Service
	chamas    *chamas.Service
	messenger domain.Messenger
	sessions  domain.SessionCleaner
	rates     domain.RateSource
	intervals Intervals
	now       func() time.Time
}

// NewOrchestrator builds an orchestrator. sessions may be nil when no auth
// collaborator is attached; its job then runs as a no-op.
func NewOrchestrator(
	runner *Runner,
	queue *reminders.Queue,
	goalSvc *goals.Service,
	chamaSvc *chamas.Service,
	messenger domain.Messenger,
	sessions domain.SessionCleaner,
	rates domain.RateSource,
	intervals Intervals,
) *Orchestrator {
	return &Orchestrator{
		runner:    runner,
		queue:     queue,
		goals:     goalSvc,
		chamas:    chamaSvc,
		messenger: messenger,
		sessions:  sessions,
		rates:     rates,
		intervals: intervals.normalized(),
		now:       time.Now,
	}
}

// Start registers the eight fixed jobs.
func (o *Orchestrator) Start() error {
	jobs := []struct {
		id       string
		interval time.Duration
		fn       TaskFunc
		opts     Options
	}{
		{JobReminderProcessing, o.intervals.Reminders, o.processReminders, DefaultOptions()},
		{JobSessionCleanup, o.intervals.SessionCleanup, o.cleanupSessions, DefaultOptions()},
		{JobCacheCleanup, o.intervals.CacheCleanup, o.cleanupCaches, DefaultOptions()},
		{JobDailyTips, o.intervals.DailyTips, o.sendDailyTips, DefaultOptions()},
		{JobWeeklyReports, o.intervals.WeeklyReports, o.sendWeeklyReports, DefaultOptions()},
		{JobPriceRefresh, o.intervals.PriceRefresh, o.refreshPrice, Options{RetryCount: 5, RetryDelay: 10 * time.Second, Timeout: 15 * time.Second, RunImmediately: true}},
		{JobGoalProgress, o.intervals.GoalProgress, o.checkGoalProgress, DefaultOptions()},
		{JobChamaReminders, o.intervals.ChamaReminders, o.sweepChamas, DefaultOptions()},
	}
	for _, j := range jobs {
		if err := o.runner.Schedule(j.id, j.fn, j.interval, j.opts); err != nil {
			return fmt.Errorf("register %s: %w", j.id, err)
		}
	}
	log.Printf("[orchestrator] registered %d jobs", len(jobs))
	return nil
}

// Stop cancels every job.
func (o *Orchestrator) Stop() {
	o.runner.Stop()
}

// Stats exposes the runner's operational snapshot.
func (o *Orchestrator) Stats() Stats {
	return o.runner.Stats()
}

// RunJob triggers one job immediately (ops surface).
func (o *Orchestrator) RunJob(id string) error {
	return o.runner.RunNow(id)
}

// ─── Job Functions ──────────────────────────────────────────────────────────

func (o *Orchestrator) processReminders(ctx context.Context) error {
	delivered, err := o.queue.Drain(ctx, o.messenger)
	if err != nil {
		return fmt.Errorf("drain reminders: %w", err)
	}
	if delivered > 0 {
		log.Printf("[orchestrator] delivered %d reminders", delivered)
	}
	return nil
}

func (o *Orchestrator) cleanupSessions(ctx context.Context) error {
	if o.sessions == nil {
		return nil
	}
	removed, err := o.sessions.CleanupExpiredSessions(ctx)
	if err != nil {
		return fmt.Errorf("cleanup sessions: %w", err)
	}
	if removed > 0 {
		log.Printf("[orchestrator] removed %d expired sessions", removed)
	}
	return nil
}

func (o *Orchestrator) cleanupCaches(ctx context.Context) error {
	o.goals.ClearCache()
	o.chamas.ClearCaches()
	return nil
}

func (o *Orchestrator) sendDailyTips(ctx context.Context) error {
	users, err := o.goals.ActiveUsers()
	if err != nil {
		return fmt.Errorf("list active users: %w", err)
	}
	now := o.now()
	tip := savingsTips[now.YearDay()%len(savingsTips)]
	for _, u := range users {
		if err := o.queue.Enqueue(&domain.Reminder{
			UserID:      u.UserID,
			Phone:       u.Phone,
			Kind:        domain.ReminderProgress,
			Message:     tip,
			ScheduledAt: now,
		}); err != nil {
			return fmt.Errorf("enqueue tip: %w", err)
		}
	}
	return nil
}

func (o *Orchestrator) sendWeeklyReports(ctx context.Context) error {
	users, err := o.goals.ActiveUsers()
	if err != nil {
		return fmt.Errorf("list active users: %w", err)
	}
	now := o.now()
	for _, u := range users {
		gs, err := o.goals.UserGoals(u.UserID)
		if err != nil {
			return fmt.Errorf("load goals for %s: %w", u.UserID, err)
		}
		var saved, target float64
		active := 0
		for _, g := range gs {
			saved += g.CurrentKes
			target += g.TargetKes
			if g.Active {
				active++
			}
		}
		if err := o.queue.Enqueue(&domain.Reminder{
			UserID:      u.UserID,
			Phone:       u.Phone,
			Kind:        domain.ReminderProgress,
			Message:     fmt.Sprintf("Weekly report: KES %.0f saved across %d active goals (target KES %.0f).", saved, active, target),
			ScheduledAt: now,
		}); err != nil {
			return fmt.Errorf("enqueue weekly report: %w", err)
		}
	}
	return nil
}

func (o *Orchestrator) refreshPrice(ctx context.Context) error {
	if err := o.rates.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh rate: %w", err)
	}
	return nil
}

func (o *Orchestrator) checkGoalProgress(ctx context.Context) error {
	n, err := o.goals.SweepProgress()
	if err != nil {
		return fmt.Errorf("goal progress sweep: %w", err)
	}
	if n > 0 {
		log.Printf("[orchestrator] enqueued %d deadline reminders", n)
	}
	return nil
}

func (o *Orchestrator) sweepChamas(ctx context.Context) error {
	closed, err := o.chamas.SweepExpired()
	if err != nil {
		return fmt.Errorf("chama expiry sweep: %w", err)
	}
	if closed > 0 {
		log.Printf("[orchestrator] closed %d expired chamas", closed)
	}
	n, err := o.chamas.SweepReminders()
	if err != nil {
		return fmt.Errorf("chama reminder sweep: %w", err)
	}
	if n > 0 {
		log.Printf("[orchestrator] enqueued %d chama contribution reminders", n)
	}
	return nil
}
