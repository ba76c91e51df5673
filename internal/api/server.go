// Package api is the admin HTTP surface: the payment log, manual archive,
// on-demand reconcile/reminder triggers, and the real-time event stream.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lpgagnon/passtrack-backend/internal/api/handlers"
	"github.com/lpgagnon/passtrack-backend/internal/api/middleware"
	"github.com/lpgagnon/passtrack-backend/internal/infrastructure/storage"
)

// Config holds API server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
	}
}

// Engine bundles the operations the API triggers on the reconciliation side.
type Engine interface {
	handlers.Reconciler
	handlers.ManualArchiver
}

// Server is the admin HTTP server.
type Server struct {
	config     Config
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
	repo       storage.Repository
	engine     Engine
	reminders  handlers.ReminderSweeper
	broker     *Broker
}

// NewServer creates the admin server. broker may be shared with the
// notifier so matched payments stream to connected dashboards.
func NewServer(cfg Config, repo storage.Repository, engine Engine, reminders handlers.ReminderSweeper, broker *Broker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if broker == nil {
		broker = NewBroker(logger)
	}

	s := &Server{
		config:    cfg,
		router:    chi.NewRouter(),
		logger:    logger,
		repo:      repo,
		engine:    engine,
		reminders: reminders,
		broker:    broker,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	corsConfig := middleware.CORSConfig{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}
	s.router.Use(middleware.CORS(corsConfig))
	s.router.Use(middleware.Logging(s.logger))
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check (no /api prefix - for load balancers)
	healthHandler := handlers.NewHealthHandler()
	s.router.Get("/health", healthHandler.ServeHTTP)

	s.router.Route("/api", func(r chi.Router) {
		paymentsHandler := handlers.NewPaymentsHandler(s.repo, s.engine)
		r.Get("/payments", paymentsHandler.List)
		r.Post("/payments/archive", paymentsHandler.Archive)

		reconcileHandler := handlers.NewReconcileHandler(s.engine, s.reminders)
		r.Post("/reconcile", reconcileHandler.Run)
		r.Post("/reminders", reconcileHandler.Reminders)

		// Real-time payment events for dashboards
		r.Get("/events", s.broker.ServeHTTP)
	})
}

// Broker returns the event broker, for wiring into the notifier.
func (s *Server) Broker() *Broker {
	return s.broker
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// No write timeout: /api/events holds its connection open
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("starting admin API server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down admin API server")

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}
