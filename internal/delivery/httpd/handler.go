// Package httpd exposes the template management and student-facing HTTP API.
package httpd

import (
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/danubeai/flexquiz-service/internal/config"
	"github.com/danubeai/flexquiz-service/internal/engine"
	"github.com/danubeai/flexquiz-service/internal/repository"
	"github.com/danubeai/flexquiz-service/internal/worker"
)

type Handler struct {
	engine        *engine.Engine
	templates     repository.TemplateRepository
	stats         repository.StatsRepository
	db            *repository.PostgresRepository
	attemptWorker worker.AttemptWorker
	config        *config.Config
	logger        zerolog.Logger
}

func NewHandler(
	eng *engine.Engine,
	templates repository.TemplateRepository,
	stats repository.StatsRepository,
	db *repository.PostgresRepository,
	attemptWorker worker.AttemptWorker,
	cfg *config.Config,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		engine:        eng,
		templates:     templates,
		stats:         stats,
		db:            db,
		attemptWorker: attemptWorker,
		config:        cfg,
		logger:        logger,
	}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/health", h.HealthCheck)
	router.Get("/stats", h.GetEngineStats)

	router.Route("/api/v1", func(api chi.Router) {
		api.Route("/templates", func(r chi.Router) {
			r.Post("/", h.CreateTemplate)
			r.Get("/{template_id}", h.GetTemplate)
			r.Post("/{template_id}/publish", h.PublishTemplate)
			r.Post("/{template_id}/disable", h.DisableTemplate)
			r.Get("/{template_id}/students/{student_id}", h.GetStudentView)
		})

		api.Route("/students", func(r chi.Router) {
			r.Get("/{student_id}/stats", h.GetStudentStats)
		})

		api.Post("/attempts", h.SubmitAttempt)
	})
}
