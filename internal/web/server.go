package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/photo-variants/internal/archive"
	"github.com/kozaktomas/photo-variants/internal/config"
	"github.com/kozaktomas/photo-variants/internal/database"
	"github.com/kozaktomas/photo-variants/internal/job"
	"github.com/kozaktomas/photo-variants/internal/orchestrator"
	"github.com/kozaktomas/photo-variants/internal/textgen"
	"github.com/kozaktomas/photo-variants/internal/web/handlers"
	"github.com/kozaktomas/photo-variants/internal/web/middleware"
)

// Server represents the web server
type Server struct {
	config         *config.Config
	router         *chi.Mux
	httpServer     *http.Server
	jobManager     *handlers.JobManager
	sessionManager *middleware.SessionManager
	orchestrator   *orchestrator.Orchestrator
	store          database.ProfileStore
	text           textgen.Generator
	logger         *slog.Logger
}

// NewServer creates a new web server. text may be nil, in which case job
// descriptions are always templated from the base description.
func NewServer(cfg *config.Config, store database.ProfileStore, text textgen.Generator, logger *slog.Logger) *Server {
	r := chi.NewRouter()

	s := &Server{
		config:         cfg,
		router:         r,
		jobManager:     handlers.NewJobManager(),
		sessionManager: middleware.NewSessionManager(cfg.Web.SessionSecret),
		orchestrator: orchestrator.New(orchestrator.Config{
			Text:    text,
			Packer:  archive.NewFromConfig(cfg.Packer),
			Workers: cfg.Limits.Workers,
			Limits:  job.LimitsFromConfig(cfg.Limits),
		}),
		store:  store,
		text:   text,
		logger: logger,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Web.AllowedOrigins))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Handler:     r,
		ReadTimeout: 5 * time.Minute, // large photo uploads
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting web server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and asks running jobs to stop. Jobs stop
// at the next unit boundary and keep what they wrote.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down web server")

	if n := s.jobManager.CancelAll(); n > 0 {
		s.logger.Info("stopping running jobs", "count", n)
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
