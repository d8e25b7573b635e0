package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/akiba-network/akiba/internal/api"
	"github.com/akiba-network/akiba/internal/app/chamas"
	"github.com/akiba-network/akiba/internal/app/goals"
	"github.com/akiba-network/akiba/internal/app/reminders"
	"github.com/akiba-network/akiba/internal/app/scheduler"
	"github.com/akiba-network/akiba/internal/daemon"
	"github.com/akiba-network/akiba/internal/domain"
	"github.com/akiba-network/akiba/internal/infra/memstore"
	"github.com/akiba-network/akiba/internal/infra/rates"
	"github.com/akiba-network/akiba/internal/infra/sqlite"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine and its ops API",
	Long: `Start the savings engine: repositories, ledgers, the reminder queue,
the recurring-job scheduler, and the operational HTTP API.`,
	RunE: runServe,
}

// logMessenger is the default messaging collaborator: it logs deliveries.
// The WhatsApp transport attaches here in the full deployment.
type logMessenger struct{}

func (logMessenger) Send(ctx context.Context, phone, text string) error {
	log.Printf("[messenger] -> %s: %s", phone, text)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.Load(configPath)
	if err != nil {
		return err
	}

	var (
		goalRepo     domain.GoalRepository
		chamaRepo    domain.ChamaRepository
		reminderRepo domain.ReminderRepository
	)
	switch cfg.Storage.Backend {
	case "sqlite":
		db, err := sqlite.Open(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer db.Close()
		goalRepo = sqlite.NewGoalStore(db)
		chamaRepo = sqlite.NewChamaStore(db)
		reminderRepo = sqlite.NewReminderStore(db)
		log.Printf("[akiba] sqlite storage at %s", cfg.Storage.Path)
	default:
		goalRepo = memstore.NewGoalStore()
		chamaRepo = memstore.NewChamaStore()
		reminderRepo = memstore.NewReminderStore()
		log.Printf("[akiba] in-memory storage (state is lost on restart)")
	}

	rateSource := rates.New(cfg.Rates.SeedKesBtc, nil)
	queue := reminders.New(reminderRepo, nil)
	goalSvc := goals.New(goalRepo, queue, rateSource, goals.DefaultConfig())
	chamaSvc := chamas.New(chamaRepo, queue, chamas.DefaultConfig())

	runner := scheduler.New(scheduler.DefaultConfig())
	orch := scheduler.NewOrchestrator(runner, queue, goalSvc, chamaSvc,
		logMessenger{}, nil, rateSource, scheduler.Intervals{
			Reminders:      cfg.Scheduler.ReminderInterval.Duration,
			SessionCleanup: cfg.Scheduler.SessionCleanup.Duration,
			CacheCleanup:   cfg.Scheduler.CacheCleanup.Duration,
			DailyTips:      cfg.Scheduler.DailyTips.Duration,
			WeeklyReports:  cfg.Scheduler.WeeklyReports.Duration,
			PriceRefresh:   cfg.Scheduler.PriceRefresh.Duration,
			GoalProgress:   cfg.Scheduler.GoalProgress.Duration,
			ChamaReminders: cfg.Scheduler.ChamaReminders.Duration,
		})
	if err := orch.Start(); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}
	defer orch.Stop()

	server := api.NewServer(goalSvc, chamaSvc, queue, orch, rateSource)
	if cfg.API.Metrics {
		server.EnableMetrics()
	}

	httpServer := &http.Server{
		Addr:    cfg.API.Addr(),
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[akiba] ops API listening on %s", cfg.API.Addr())
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Printf("[akiba] received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
