// Package api provides the engine's operational HTTP surface.
//
// The core has no user-facing network API — the conversational front end
// calls it in process. These endpoints exist for health checks, the admin
// dashboard, and metrics scraping, and are read-only apart from the
// manual job trigger.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akiba-network/akiba/internal/app/chamas"
	"github.com/akiba-network/akiba/internal/app/goals"
	"github.com/akiba-network/akiba/internal/app/reminders"
	"github.com/akiba-network/akiba/internal/app/scheduler"
	"github.com/akiba-network/akiba/internal/domain"
)

// Server is the ops HTTP server.
type Server struct {
	goals          *goals.Service
	chamas         *chamas.Service
	queue          *reminders.Queue
	orch           *scheduler.Orchestrator
	rates          domain.RateSource
	metricsEnabled bool
	startedAt      time.Time
}

// NewServer creates an ops server.
func NewServer(goalSvc *goals.Service, chamaSvc *chamas.Service, queue *reminders.Queue, orch *scheduler.Orchestrator, rates domain.RateSource) *Server {
	return &Server{
		goals:     goalSvc,
		chamas:    chamaSvc,
		queue:     queue,
		orch:      orch,
		rates:     rates,
		startedAt: time.Now(),
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	r.Get("/api/status", s.handleStatus)

	r.Route("/api/scheduler", func(r chi.Router) {
		r.Get("/stats", s.handleSchedulerStats)
		r.Post("/jobs/{id}/run", s.handleRunJob)
	})

	r.Route("/api/goals", func(r chi.Router) {
		r.Get("/stats", s.handleGoalStats)
	})

	r.Route("/api/chamas", func(r chi.Router) {
		r.Get("/stats", s.handleChamaStats)
		r.Get("/{id}", s.handleChamaByID)
	})

	r.Route("/api/users/{id}", func(r chi.Router) {
		r.Get("/goals", s.handleUserGoals)
		r.Get("/chamas", s.handleUserChamas)
	})

	r.Get("/api/reminders/pending", s.handlePendingReminders)

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Handlers ───────────────────────────────────────────────────────────────

// handleStatus returns an uptime/component snapshot.
// GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.orch.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "akiba engine running",
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"rate_kes_btc":   s.rates.Rate(),
		"scheduler": map[string]any{
			"total_tasks":  st.TotalTasks,
			"active_tasks": st.ActiveTasks,
		},
	})
}

// handleSchedulerStats returns the full runner snapshot.
// GET /api/scheduler/stats
func (s *Server) handleSchedulerStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Stats())
}

// handleRunJob triggers one job immediately.
// POST /api/scheduler/jobs/{id}/run
func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.orch.RunJob(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "job": id})
}

// handleGoalStats returns the aggregate goal roll-up.
// GET /api/goals/stats
func (s *Server) handleGoalStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.goals.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleChamaStats returns the aggregate chama roll-up.
// GET /api/chamas/stats
func (s *Server) handleChamaStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.chamas.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleChamaByID returns one chama.
// GET /api/chamas/{id}
func (s *Server) handleChamaByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chama id")
		return
	}
	c, err := s.chamas.ByID(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleUserGoals returns a user's goals, newest first.
// GET /api/users/{id}/goals
func (s *Server) handleUserGoals(w http.ResponseWriter, r *http.Request) {
	gs, err := s.goals.UserGoals(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"goals": gs})
}

// handleUserChamas returns chamas where the user is an active member.
// GET /api/users/{id}/chamas
func (s *Server) handleUserChamas(w http.ResponseWriter, r *http.Request) {
	cs, err := s.chamas.UserChamas(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chamas": cs})
}

// handlePendingReminders returns the undrained reminder queue.
// GET /api/reminders/pending
func (s *Server) handlePendingReminders(w http.ResponseWriter, r *http.Request) {
	pending, err := s.queue.Pending()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reminders": pending})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
