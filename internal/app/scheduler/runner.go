// Package scheduler implements the recurring-task runner and the
// orchestrator that registers the engine's fixed jobs on it.
//
// The runner is a named-task registry. Each task carries a work function,
// a fixed interval, and retry/timeout options. Per task the state machine
// is scheduled → running → {completed | failed | timed-out}:
//
//   - A task already running is never re-entered — an overlapping tick is
//     skipped with a warning, not queued. This guard is the sole
//     concurrency control preventing two executions of the same task.
//   - Each run races the work function against its timeout.
//   - A failure increments the task's error count and delays the next
//     attempt by RetryDelay; once the error count reaches RetryCount the
//     task flips inactive and stays disabled until explicitly re-enabled,
//     which also resets the error count to zero.
//   - Cancelling a task stops its ticker and clears any in-flight timeout
//     watchdog without awaiting the work function. A cancelled-but-still-
//     running function may still mutate ledger state afterwards.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/akiba-network/akiba/internal/domain"
	"github.com/akiba-network/akiba/internal/infra/observability"
)

// ─── Options ────────────────────────────────────────────────────────────────

// TaskFunc is the unit of work a task executes on each tick.
type TaskFunc func(ctx context.Context) error

// Options controls a task's retry and timeout behavior.
type Options struct {
	RetryCount     int           // failures tolerated before auto-disable (default 3)
	RetryDelay     time.Duration // wait after a failure before the next attempt (default 5s)
	Timeout        time.Duration // per-run watchdog (default 30s)
	RunImmediately bool          // run once at schedule time instead of waiting a full interval
}

// DefaultOptions returns the runner defaults.
func DefaultOptions() Options {
	return Options{
		RetryCount: 3,
		RetryDelay: 5 * time.Second,
		Timeout:    30 * time.Second,
	}
}

func (o Options) normalized() Options {
	if o.RetryCount <= 0 {
		o.RetryCount = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 5 * time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	return o
}

// ─── Execution Records ──────────────────────────────────────────────────────

// ExecStatus is the terminal status of one task run.
type ExecStatus string

const (
	StatusCompleted ExecStatus = "completed"
	StatusFailed    ExecStatus = "failed"
	StatusTimedOut  ExecStatus = "timed-out"
)

// Execution records one run of a task.
type Execution struct {
	TaskID    string        `json:"task_id"`
	Status    ExecStatus    `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// ─── Task State ─────────────────────────────────────────────────────────────

type task struct {
	id       string
	fn       TaskFunc
	interval time.Duration
	opts     Options

	active  bool
	running bool
	runs    int
	errs    int
	lastRun time.Time
	retryAt time.Time // earliest next attempt after a failure

	cancelRun context.CancelFunc // in-flight timeout watchdog, nil when idle
	stop      chan struct{}
	stopped   bool
}

// TaskInfo is a point-in-time snapshot of one registered task.
type TaskInfo struct {
	ID        string        `json:"id"`
	Interval  time.Duration `json:"interval"`
	Active    bool          `json:"active"`
	Running   bool          `json:"running"`
	Runs      int           `json:"runs"`
	Errors    int           `json:"errors"`
	LastRunAt time.Time     `json:"last_run_at"`
}

// ─── Runner ─────────────────────────────────────────────────────────────────

// Config configures the runner.
type Config struct {
	// HistorySize bounds the execution history ring (default 100).
	HistorySize int

	// RecentSize is how many executions Stats reports (default 10).
	RecentSize int

	// Now is an injectable clock for testing.
	Now func() time.Time
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		HistorySize: 100,
		RecentSize:  10,
		Now:         time.Now,
	}
}

// Runner executes named recurring tasks, one timer goroutine per task.
type Runner struct {
	mu        sync.Mutex
	cfg       Config
	tasks     map[string]*task
	history   []Execution // bounded, oldest first
	startedAt time.Time
}

// New creates a runner.
func New(cfg Config) *Runner {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	if cfg.RecentSize <= 0 {
		cfg.RecentSize = 10
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Runner{
		cfg:       cfg,
		tasks:     make(map[string]*task),
		startedAt: cfg.Now(),
	}
}

// Schedule registers a task and starts its ticker.
func (r *Runner) Schedule(id string, fn TaskFunc, interval time.Duration, opts Options) error {
	if id == "" {
		return domain.Invalid("task_id", "must not be empty")
	}
	if fn == nil {
		return domain.Invalid("task_fn", "must not be nil")
	}
	if interval <= 0 {
		return domain.Invalid("interval", "must be positive")
	}

	r.mu.Lock()
	if _, exists := r.tasks[id]; exists {
		r.mu.Unlock()
		return fmt.Errorf("schedule %q: %w", id, domain.ErrTaskExists)
	}
	t := &task{
		id:       id,
		fn:       fn,
		interval: interval,
		opts:     opts.normalized(),
		active:   true,
		stop:     make(chan struct{}),
	}
	r.tasks[id] = t
	r.mu.Unlock()

	go r.loop(t)
	log.Printf("[scheduler] scheduled task %s every %s", id, interval)
	return nil
}

// loop drives one task's ticks until the task is cancelled.
func (r *Runner) loop(t *task) {
	if t.opts.RunImmediately {
		r.runTask(t)
	}
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			r.runTask(t)
		}
	}
}

// runTask executes one tick of a task, honoring the skip-if-running guard,
// the post-failure retry delay, and the timeout watchdog.
func (r *Runner) runTask(t *task) {
	r.mu.Lock()
	now := r.cfg.Now()
	if !t.active {
		r.mu.Unlock()
		return
	}
	if t.running {
		r.mu.Unlock()
		log.Printf("[scheduler] task %s still running, skipping tick", t.id)
		observability.TaskExecutions.WithLabelValues(t.id, "skipped").Inc()
		return
	}
	if !t.retryAt.IsZero() && now.Before(t.retryAt) {
		r.mu.Unlock()
		return
	}
	t.running = true
	ctx, cancel := context.WithTimeout(context.Background(), t.opts.Timeout)
	t.cancelRun = cancel
	r.mu.Unlock()

	start := now
	done := make(chan error, 1)
	go func() {
		done <- runSafe(ctx, t.fn)
	}()

	var status ExecStatus
	var errMsg string
	select {
	case err := <-done:
		if err != nil {
			status = StatusFailed
			errMsg = err.Error()
		} else {
			status = StatusCompleted
		}
	case <-ctx.Done():
		if ctx.Err() == context.Canceled {
			// Cancelled mid-flight. The work function may still complete
			// on its own goroutine; nothing is recorded.
			cancel()
			return
		}
		status = StatusTimedOut
		errMsg = domain.ErrTaskTimeout.Error()
	}
	cancel()

	end := r.cfg.Now()
	duration := end.Sub(start) // timed-out runs measure from the original start

	r.mu.Lock()
	t.running = false
	t.cancelRun = nil
	switch status {
	case StatusCompleted:
		t.runs++
		t.lastRun = end
		t.retryAt = time.Time{}
	case StatusFailed:
		t.errs++
		t.retryAt = end.Add(t.opts.RetryDelay)
		log.Printf("[scheduler] task %s failed (%d/%d): %s", t.id, t.errs, t.opts.RetryCount, errMsg)
		if t.errs >= t.opts.RetryCount {
			t.active = false
			observability.TasksDisabled.Inc()
			log.Printf("[scheduler] task %s disabled after %d failures", t.id, t.errs)
		}
	case StatusTimedOut:
		log.Printf("[scheduler] task %s timed out after %s", t.id, duration)
	}
	r.appendHistory(Execution{
		TaskID:    t.id,
		Status:    status,
		StartedAt: start,
		Duration:  duration,
		Error:     errMsg,
	})
	r.mu.Unlock()

	observability.TaskExecutions.WithLabelValues(t.id, statusLabel(status)).Inc()
	observability.TaskDuration.WithLabelValues(t.id).Observe(duration.Seconds())
}

// runSafe converts a panic inside a task function into an error.
func runSafe(ctx context.Context, fn TaskFunc) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task panicked: %v", rec)
		}
	}()
	return fn(ctx)
}

func statusLabel(s ExecStatus) string {
	if s == StatusTimedOut {
		return "timed_out"
	}
	return string(s)
}

// appendHistory records an execution, evicting the oldest past capacity.
// Caller holds r.mu.
func (r *Runner) appendHistory(e Execution) {
	if len(r.history) >= r.cfg.HistorySize {
		r.history = r.history[1:]
	}
	r.history = append(r.history, e)
}

// ─── Public Operations ──────────────────────────────────────────────────────

// RunNow triggers one tick of a task immediately, synchronously, honoring
// the same guards as a timer tick. Used operationally and by the
// orchestrator's manual-trigger surface.
func (r *Runner) RunNow(id string) error {
	r.mu.Lock()
	t, ok := r.tasks[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("run %q: %w", id, domain.ErrTaskNotFound)
	}
	r.runTask(t)
	return nil
}

// Cancel stops a task's ticker, clears any in-flight timeout watchdog, and
// removes the task from the registry. It does not await an in-flight run.
func (r *Runner) Cancel(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("cancel %q: %w", id, domain.ErrTaskNotFound)
	}
	if !t.stopped {
		t.stopped = true
		close(t.stop)
	}
	if t.cancelRun != nil {
		t.cancelRun()
		t.cancelRun = nil
		t.running = false
	}
	delete(r.tasks, id)
	log.Printf("[scheduler] cancelled task %s", id)
	return nil
}

// Disable deactivates a task without removing it; ticks become no-ops.
func (r *Runner) Disable(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("disable %q: %w", id, domain.ErrTaskNotFound)
	}
	t.active = false
	return nil
}

// Enable reactivates a disabled task and resets its error count to zero.
func (r *Runner) Enable(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("enable %q: %w", id, domain.ErrTaskNotFound)
	}
	t.active = true
	t.errs = 0
	t.retryAt = time.Time{}
	return nil
}

// Stop cancels every registered task. Used at shutdown.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.tasks {
		if !t.stopped {
			t.stopped = true
			close(t.stop)
		}
		if t.cancelRun != nil {
			t.cancelRun()
			t.cancelRun = nil
		}
		delete(r.tasks, id)
	}
}

// Tasks returns a snapshot of every registered task.
func (r *Runner) Tasks() []TaskInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TaskInfo, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, TaskInfo{
			ID:        t.id,
			Interval:  t.interval,
			Active:    t.active,
			Running:   t.running,
			Runs:      t.runs,
			Errors:    t.errs,
			LastRunAt: t.lastRun,
		})
	}
	return out
}

// History returns up to limit most-recent executions, newest first.
func (r *Runner) History(limit int) []Execution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recentLocked(limit)
}

// recentLocked returns the newest executions first. Caller holds r.mu.
func (r *Runner) recentLocked(limit int) []Execution {
	n := len(r.history)
	if limit > n {
		limit = n
	}
	if limit <= 0 {
		return nil
	}
	out := make([]Execution, limit)
	for i := 0; i < limit; i++ {
		out[i] = r.history[n-1-i]
	}
	return out
}

// ─── Stats ──────────────────────────────────────────────────────────────────

// Stats is the runner's operational snapshot.
type Stats struct {
	TotalTasks     int           `json:"total_tasks"`
	ActiveTasks    int           `json:"active_tasks"`
	RunningTasks   int           `json:"running_tasks"`
	TotalRuns      int           `json:"total_runs"`
	TotalFailures  int           `json:"total_failures"`
	SuccessRatePct float64       `json:"success_rate_pct"` // over retained history
	Recent         []Execution   `json:"recent"`
	Uptime         time.Duration `json:"uptime"`
}

// Stats returns task counts, the rolling success rate over the retained
// history, the most recent executions, and process uptime.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Stats{
		TotalTasks: len(r.tasks),
		Uptime:     r.cfg.Now().Sub(r.startedAt),
	}
	for _, t := range r.tasks {
		if t.active {
			st.ActiveTasks++
		}
		if t.running {
			st.RunningTasks++
		}
		st.TotalRuns += t.runs
		st.TotalFailures += t.errs
	}
	if n := len(r.history); n > 0 {
		completed := 0
		for _, e := range r.history {
			if e.Status == StatusCompleted {
				completed++
			}
		}
		st.SuccessRatePct = float64(completed) / float64(n) * 100
	}
	st.Recent = r.recentLocked(r.cfg.RecentSize)
	return st
}
