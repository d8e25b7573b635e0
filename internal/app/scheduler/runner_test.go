package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/akiba-network/akiba/internal/domain"
)

func noopTask(ctx context.Context) error { return nil }

// quickOpts keeps the retry gate out of the way so back-to-back RunNow
// calls are not skipped.
func quickOpts() Options {
	return Options{RetryCount: 3, RetryDelay: time.Nanosecond, Timeout: 30 * time.Second}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func findTask(infos []TaskInfo, id string) (TaskInfo, bool) {
	for _, ti := range infos {
		if ti.ID == id {
			return ti, true
		}
	}
	return TaskInfo{}, false
}

// ─── Scheduling ─────────────────────────────────────────────────────────────

func TestSchedule_Validation(t *testing.T) {
	r := New(DefaultConfig())
	defer r.Stop()

	tests := []struct {
		name     string
		id       string
		fn       TaskFunc
		interval time.Duration
	}{
		{"empty id", "", noopTask, time.Hour},
		{"nil fn", "job", nil, time.Hour},
		{"zero interval", "job", noopTask, 0},
		{"negative interval", "job", noopTask, -time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.Schedule(tt.id, tt.fn, tt.interval, DefaultOptions()); !domain.IsValidation(err) {
				t.Errorf("err = %v, want ValidationError", err)
			}
		})
	}
}

func TestSchedule_DuplicateRejected(t *testing.T) {
	r := New(DefaultConfig())
	defer r.Stop()

	if err := r.Schedule("job", noopTask, time.Hour, DefaultOptions()); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := r.Schedule("job", noopTask, time.Hour, DefaultOptions()); !errors.Is(err, domain.ErrTaskExists) {
		t.Errorf("err = %v, want ErrTaskExists", err)
	}
}

func TestSchedule_RunImmediately(t *testing.T) {
	r := New(DefaultConfig())
	defer r.Stop()

	opts := DefaultOptions()
	opts.RunImmediately = true
	if err := r.Schedule("job", noopTask, time.Hour, opts); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	waitFor(t, func() bool {
		ti, ok := findTask(r.Tasks(), "job")
		return ok && ti.Runs == 1
	}, "immediate run never recorded")
}

// ─── Execution ──────────────────────────────────────────────────────────────

func TestRunNow_RecordsCompletion(t *testing.T) {
	r := New(DefaultConfig())
	defer r.Stop()

	if err := r.Schedule("job", noopTask, time.Hour, DefaultOptions()); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := r.RunNow("job"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}

	hist := r.History(10)
	if len(hist) != 1 {
		t.Fatalf("history = %d entries, want 1", len(hist))
	}
	if hist[0].Status != StatusCompleted || hist[0].TaskID != "job" {
		t.Errorf("record = %+v, want completed job", hist[0])
	}
	ti, _ := findTask(r.Tasks(), "job")
	if ti.Runs != 1 || ti.Errors != 0 {
		t.Errorf("runs/errors = %d/%d, want 1/0", ti.Runs, ti.Errors)
	}
}

func TestRunNow_UnknownTask(t *testing.T) {
	r := New(DefaultConfig())
	defer r.Stop()
	if err := r.RunNow("ghost"); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Errorf("err = %v, want ErrTaskNotFound", err)
	}
}

func TestFailures_AutoDisableAfterRetryCount(t *testing.T) {
	r := New(DefaultConfig())
	defer r.Stop()

	failing := func(ctx context.Context) error { return errors.New("boom") }
	if err := r.Schedule("job", failing, time.Hour, quickOpts()); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	// First two failures leave the task active.
	for i := 0; i < 2; i++ {
		if err := r.RunNow("job"); err != nil {
			t.Fatalf("RunNow %d: %v", i, err)
		}
	}
	ti, _ := findTask(r.Tasks(), "job")
	if !ti.Active || ti.Errors != 2 {
		t.Fatalf("after 2 failures: active=%v errors=%d, want active with 2", ti.Active, ti.Errors)
	}

	// The third failure reaches the retry limit and disables the task.
	if err := r.RunNow("job"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	ti, _ = findTask(r.Tasks(), "job")
	if ti.Active {
		t.Error("task should be auto-disabled at the retry limit")
	}
	if ti.Errors != 3 {
		t.Errorf("errors = %d, want 3", ti.Errors)
	}

	// Ticks on a disabled task are no-ops: no new history.
	if err := r.RunNow("job"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if got := len(r.History(10)); got != 3 {
		t.Errorf("history = %d entries, want still 3", got)
	}

	hist := r.History(10)
	for _, e := range hist {
		if e.Status != StatusFailed || e.Error != "boom" {
			t.Errorf("record = %+v, want failed with error boom", e)
		}
	}
}

func TestEnable_ResetsErrorCount(t *testing.T) {
	r := New(DefaultConfig())
	defer r.Stop()

	shouldFail := true
	fn := func(ctx context.Context) error {
		if shouldFail {
			return errors.New("boom")
		}
		return nil
	}
	if err := r.Schedule("job", fn, time.Hour, quickOpts()); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := r.RunNow("job"); err != nil {
			t.Fatalf("RunNow: %v", err)
		}
	}
	if ti, _ := findTask(r.Tasks(), "job"); ti.Active {
		t.Fatal("task should be disabled")
	}

	if err := r.Enable("job"); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	ti, _ := findTask(r.Tasks(), "job")
	if !ti.Active || ti.Errors != 0 {
		t.Fatalf("after enable: active=%v errors=%d, want active with 0", ti.Active, ti.Errors)
	}

	shouldFail = false
	if err := r.RunNow("job"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if ti, _ := findTask(r.Tasks(), "job"); ti.Runs != 1 {
		t.Errorf("runs = %d, want 1 after recovery", ti.Runs)
	}
}

func TestSuccess_DoesNotResetErrorCount(t *testing.T) {
	r := New(DefaultConfig())
	defer r.Stop()

	shouldFail := true
	fn := func(ctx context.Context) error {
		if shouldFail {
			return errors.New("boom")
		}
		return nil
	}
	if err := r.Schedule("job", fn, time.Hour, quickOpts()); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := r.RunNow("job"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}

	shouldFail = false
	time.Sleep(time.Millisecond) // clear the retry gate
	if err := r.RunNow("job"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}

	ti, _ := findTask(r.Tasks(), "job")
	if ti.Errors != 1 {
		t.Errorf("errors = %d, want the failure retained after success", ti.Errors)
	}
	if ti.Runs != 1 {
		t.Errorf("runs = %d, want 1", ti.Runs)
	}
}

func TestTimeout_RecordsTimedOutWithoutErrorIncrement(t *testing.T) {
	r := New(DefaultConfig())
	defer r.Stop()

	slow := func(ctx context.Context) error {
		time.Sleep(500 * time.Millisecond)
		return nil
	}
	opts := Options{RetryCount: 3, RetryDelay: time.Second, Timeout: 100 * time.Millisecond}
	if err := r.Schedule("job", slow, time.Hour, opts); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := r.RunNow("job"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}

	hist := r.History(10)
	if len(hist) != 1 {
		t.Fatalf("history = %d entries, want 1", len(hist))
	}
	e := hist[0]
	if e.Status != StatusTimedOut {
		t.Errorf("status = %s, want timed-out", e.Status)
	}
	if e.Error != domain.ErrTaskTimeout.Error() {
		t.Errorf("error = %q, want %q", e.Error, domain.ErrTaskTimeout.Error())
	}
	if e.Duration < 100*time.Millisecond {
		t.Errorf("duration = %s, want at least the timeout", e.Duration)
	}

	// A timeout is not a failure: no error increment, task stays active.
	ti, _ := findTask(r.Tasks(), "job")
	if ti.Errors != 0 || !ti.Active {
		t.Errorf("errors=%d active=%v, want 0/true", ti.Errors, ti.Active)
	}
}

func TestSkipWhileRunning(t *testing.T) {
	r := New(DefaultConfig())
	defer r.Stop()

	release := make(chan struct{})
	blocking := func(ctx context.Context) error {
		<-release
		return nil
	}
	if err := r.Schedule("job", blocking, time.Hour, DefaultOptions()); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	go r.RunNow("job")
	waitFor(t, func() bool {
		ti, ok := findTask(r.Tasks(), "job")
		return ok && ti.Running
	}, "task never reported running")

	// The overlapping tick is skipped: it returns without a record.
	if err := r.RunNow("job"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if got := len(r.History(10)); got != 0 {
		t.Fatalf("history = %d entries, want 0 while first run is in flight", got)
	}

	close(release)
	waitFor(t, func() bool { return len(r.History(10)) == 1 }, "first run never completed")
	if hist := r.History(10); hist[0].Status != StatusCompleted {
		t.Errorf("status = %s, want completed", hist[0].Status)
	}
}

func TestPanicRecordedAsFailure(t *testing.T) {
	r := New(DefaultConfig())
	defer r.Stop()

	panicking := func(ctx context.Context) error { panic("kaboom") }
	if err := r.Schedule("job", panicking, time.Hour, quickOpts()); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := r.RunNow("job"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}

	hist := r.History(10)
	if len(hist) != 1 || hist[0].Status != StatusFailed {
		t.Fatalf("history = %+v, want one failed record", hist)
	}
}

// ─── Lifecycle ──────────────────────────────────────────────────────────────

func TestCancel_RemovesTask(t *testing.T) {
	r := New(DefaultConfig())
	defer r.Stop()

	if err := r.Schedule("job", noopTask, time.Hour, DefaultOptions()); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := r.Cancel("job"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := r.RunNow("job"); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Errorf("err = %v, want ErrTaskNotFound after cancel", err)
	}
	if err := r.Cancel("job"); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Errorf("double cancel: err = %v, want ErrTaskNotFound", err)
	}
}

func TestDisable_SkipsTicks(t *testing.T) {
	r := New(DefaultConfig())
	defer r.Stop()

	if err := r.Schedule("job", noopTask, time.Hour, DefaultOptions()); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := r.Disable("job"); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if err := r.RunNow("job"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if got := len(r.History(10)); got != 0 {
		t.Errorf("history = %d entries, want 0 for a disabled task", got)
	}
}

// ─── History & Stats ────────────────────────────────────────────────────────

func TestHistory_BoundedNewestFirst(t *testing.T) {
	r := New(Config{HistorySize: 5, RecentSize: 10})
	defer r.Stop()

	if err := r.Schedule("job", noopTask, time.Hour, DefaultOptions()); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	for i := 0; i < 8; i++ {
		if err := r.RunNow("job"); err != nil {
			t.Fatalf("RunNow: %v", err)
		}
	}

	hist := r.History(100)
	if len(hist) != 5 {
		t.Fatalf("history = %d entries, want bounded to 5", len(hist))
	}
	if got := r.History(2); len(got) != 2 {
		t.Errorf("History(2) = %d entries, want 2", len(got))
	}
	for i := 1; i < len(hist); i++ {
		if hist[i].StartedAt.After(hist[i-1].StartedAt) {
			t.Fatal("history should be newest first")
		}
	}
}

func TestStats(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	current := start
	cfg := Config{HistorySize: 100, RecentSize: 2, Now: func() time.Time {
		current = current.Add(time.Second)
		return current
	}}
	r := New(cfg)
	defer r.Stop()

	if err := r.Schedule("good", noopTask, time.Hour, DefaultOptions()); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	failing := func(ctx context.Context) error { return errors.New("boom") }
	if err := r.Schedule("bad", failing, time.Hour, quickOpts()); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	r.RunNow("good")
	r.RunNow("good")
	r.RunNow("bad")

	st := r.Stats()
	if st.TotalTasks != 2 || st.ActiveTasks != 2 {
		t.Errorf("tasks = %d/%d active, want 2/2", st.TotalTasks, st.ActiveTasks)
	}
	if st.TotalRuns != 2 || st.TotalFailures != 1 {
		t.Errorf("runs/failures = %d/%d, want 2/1", st.TotalRuns, st.TotalFailures)
	}
	if want := 2.0 / 3.0 * 100; st.SuccessRatePct != want {
		t.Errorf("SuccessRatePct = %v, want %v", st.SuccessRatePct, want)
	}
	if len(st.Recent) != 2 {
		t.Errorf("recent = %d entries, want capped at RecentSize 2", len(st.Recent))
	}
	if st.Uptime <= 0 {
		t.Errorf("Uptime = %s, want positive", st.Uptime)
	}
}
