// Package api exposes the screening engine over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/pipeline"
	"github.com/opensource-finance/harrier/internal/refdata"
	"github.com/opensource-finance/harrier/internal/registry"
	"github.com/opensource-finance/harrier/internal/rules"
	"github.com/opensource-finance/harrier/internal/scoring"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, scoringSvc *scoring.Service, registrySvc *registry.Service, pipelineSvc *pipeline.Service, engine *rules.Engine, ref *refdata.Store, version string) *Server {
	handler := NewHandler(repo, cache, scoringSvc, registrySvc, pipelineSvc, engine, ref, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	// Health endpoints (no organization required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (organization required)
	router.Route("/", func(r chi.Router) {
		r.Use(OrgMiddleware)

		// Risk scoring
		r.Post("/score/address", handler.ScoreAddress)
		r.Post("/score/transaction", handler.ScoreTransaction)

		// Monitored address registry
		r.Get("/addresses", handler.ListAddresses)
		r.Post("/addresses", handler.RegisterAddress)
		r.Post("/addresses/bulk", handler.BulkUploadAddresses)
		r.Get("/addresses/{id}", handler.GetAddress)
		r.Put("/addresses/{id}", handler.UpdateAddress)
		r.Delete("/addresses/{id}", handler.DeactivateAddress)
		r.Get("/addresses/{id}/history", handler.GetAddressHistory)

		// Compliance cases
		r.Get("/cases", handler.ListCases)
		r.Get("/cases/{id}", handler.GetCase)
		r.Post("/cases/{id}/status", handler.UpdateCaseStatus)
		r.Post("/cases/{id}/assignee", handler.AssignCase)
		r.Post("/cases/assignees", handler.BulkAssignCases)

		// Transaction scan
		r.Post("/scan", handler.TriggerScan)

		// Risk rule management
		r.Get("/rules", handler.ListRules)
		r.Post("/rules", handler.CreateRule)
		r.Post("/rules/reload", handler.ReloadRules)

		// Reference data
		r.Post("/refdata/reload", handler.ReloadRefData)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
