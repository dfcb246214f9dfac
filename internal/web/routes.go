package web

import (
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/photo-variants/internal/web/handlers"
	"github.com/kozaktomas/photo-variants/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	jobsHandler := handlers.NewJobsHandler(s.config, s.jobManager, s.orchestrator, s.store, s.logger)
	watermarkHandler := handlers.NewWatermarkHandler(s.config, s.store, s.logger)
	zipHandler := handlers.NewZipHandler(s.logger)
	textsHandler := handlers.NewTextsHandler(s.text, s.logger)

	// Health check (no session required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Service endpoints used by remote packers and text providers
		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(5 * time.Minute))
			r.Post("/zip/create", zipHandler.Create)
			r.Post("/texts/generate", textsHandler.Generate)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.WithSession(s.sessionManager))

			// Event streams live as long as the job
			r.Get("/jobs/{jobId}/events", jobsHandler.Events)

			r.Group(func(r chi.Router) {
				r.Use(chiMiddleware.Timeout(5 * time.Minute))

				// Jobs
				r.Post("/jobs", jobsHandler.Start)
				r.Get("/jobs", jobsHandler.List)
				r.Get("/jobs/{jobId}", jobsHandler.Status)
				r.Delete("/jobs/{jobId}", jobsHandler.Cancel)
				r.Post("/jobs/{jobId}/rerun", jobsHandler.Rerun)
				r.Get("/jobs/{jobId}/archive", jobsHandler.Archive)

				// Watermark profiles
				r.Get("/watermark/{userId}", watermarkHandler.Get)
				r.Post("/watermark", watermarkHandler.Set)
				r.Post("/watermark/{userId}/asset", watermarkHandler.Upload)
				r.Get("/watermark/{userId}/preview", watermarkHandler.Preview)
			})
		})
	})
}
