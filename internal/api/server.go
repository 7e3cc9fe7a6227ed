// Package api exposes the execution engine over HTTP. Handlers are thin:
// validation and JSON shaping here, every state decision in the store.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/agentiq/crm-engine/internal/store"
)

// Sweeper runs one recovery pass. Satisfied by *runner.Sweeper.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Server holds handler dependencies.
type Server struct {
	store   store.Store
	sweeper Sweeper
}

// NewServer creates the API server around a store. sweeper may be nil,
// in which case /health skips the recovery pass.
func NewServer(st store.Store, sweeper Sweeper) *Server {
	return &Server{store: st, sweeper: sweeper}
}

// Routes builds the HTTP handler tree.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.handleCreateJob)
			r.Get("/", s.handleListJobs)
			r.Get("/{jobID}", s.handleGetJob)
			r.Post("/{jobID}/cancel", s.handleCancelJob)
			r.Get("/{jobID}/results", s.handleListResults)
			r.Get("/{jobID}/export", s.handleExportResults)
		})
		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", s.handleCreateCampaign)
			r.Get("/{campaignID}", s.handleGetCampaign)
			r.Post("/{campaignID}/leads", s.handleAddCampaignLeads)
			r.Post("/{campaignID}/send", s.handleStartCampaign)
			r.Post("/{campaignID}/pause", s.handlePauseCampaign)
			r.Post("/{campaignID}/resume", s.handleStartCampaign)
		})
		r.Route("/leads", func(r chi.Router) {
			r.Post("/", s.handleCreateLead)
			r.Get("/", s.handleListLeads)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	depth, err := s.store.GetQueueDepth(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "queue depth unavailable")
		return
	}

	body := map[string]any{
		"status":      "ok",
		"queue_depth": depth,
	}
	if s.sweeper != nil {
		// Piggyback a recovery pass on the health probe so stale runs
		// are noticed even when no worker is polling.
		swept, err := s.sweeper.Sweep(r.Context())
		if err != nil {
			zap.L().Error("health sweep failed", zap.Error(err))
		} else {
			body["swept"] = swept
		}
	}
	respondJSON(w, http.StatusOK, body)
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Error("encode response failed", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
