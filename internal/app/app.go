// Package app wires configuration, storage, broker, integration clients and
// the engine into a runnable service.
package app

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/danubeai/flexquiz-service/internal/config"
	"github.com/danubeai/flexquiz-service/internal/delivery/httpd"
	"github.com/danubeai/flexquiz-service/internal/engine"
	"github.com/danubeai/flexquiz-service/internal/integration"
	"github.com/danubeai/flexquiz-service/internal/repository"
	"github.com/danubeai/flexquiz-service/internal/worker"
	"github.com/danubeai/flexquiz-service/internal/worker/queue"
)

type App struct {
	server        *http.Server
	logger        zerolog.Logger
	config        *config.Config
	db            *sql.DB
	attemptWorker worker.AttemptWorker
	sweeper       *worker.Sweeper
	rabbitMQRepo  repository.RabbitMQRepository

	workerCtx    context.Context
	workerCancel context.CancelFunc
}

func New(cfg *config.Config, log zerolog.Logger, db *sql.DB) (*App, error) {
	rabbitMQRepo, err := repository.NewRabbitMQRepository(cfg.RabbitMQ.URL, log)
	if err != nil {
		return nil, err
	}

	if err := rabbitMQRepo.SetupQueue(
		cfg.RabbitMQ.Exchange,
		cfg.RabbitMQ.AttemptQueue,
		cfg.RabbitMQ.AttemptKey,
	); err != nil {
		return nil, err
	}

	pgRepo := repository.NewPostgresRepository(db, log)
	templateRepo := repository.NewTemplateRepository(db, log)
	progressRepo := repository.NewProgressRepository(db, log)
	performanceRepo := repository.NewPerformanceRepository(db, log)
	childRepo := repository.NewChildQuizRepository(db, log)
	stashRepo := repository.NewStashRepository(db, log)
	statsRepo := repository.NewStatsRepository(db, log)

	quizClient := integration.NewQuizClient(
		cfg.Services.QuizDelivery.URL,
		cfg.Services.QuizDelivery.Timeout,
		cfg.Services.QuizDelivery.RetryCount,
		cfg.Services.QuizDelivery.RetryDelay,
		log,
	)

	gradebookClient := integration.NewGradebookClient(
		cfg.Services.Gradebook.URL,
		cfg.Services.Gradebook.Timeout,
		cfg.Services.Gradebook.RetryCount,
		cfg.Services.Gradebook.RetryDelay,
		log,
	)

	selectorClient := integration.NewSelectorClient(
		cfg.Selector.URL,
		cfg.Selector.APIKey,
		cfg.Selector.Timeout,
		log,
	)

	publisher := queue.NewEventPublisher(rabbitMQRepo, cfg.RabbitMQ, log)

	eng := engine.New(engine.Deps{
		Templates:   templateRepo,
		Progress:    progressRepo,
		Performance: performanceRepo,
		Children:    childRepo,
		Stash:       stashRepo,
		Stats:       statsRepo,
		Quizzes:     quizClient,
		Gradebook:   gradebookClient,
		Selector:    selectorClient,
		Publisher:   publisher,
		StashOnFail: cfg.Selector.StashOnFail,
		Logger:      log,
	})

	workerPool := worker.NewWorkerPool(cfg.Sweep.MaxWorkers, log)
	attemptWorker := worker.NewAttemptWorker(workerPool, rabbitMQRepo, eng, cfg.RabbitMQ, log)
	sweeper := worker.NewSweeper(eng, cfg.Sweep.Interval, log)

	handler := httpd.NewHandler(eng, templateRepo, statsRepo, pgRepo, attemptWorker, cfg, log)

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}))

	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())

	return &App{
		server:        server,
		logger:        log,
		config:        cfg,
		db:            db,
		attemptWorker: attemptWorker,
		sweeper:       sweeper,
		rabbitMQRepo:  rabbitMQRepo,
		workerCtx:     workerCtx,
		workerCancel:  workerCancel,
	}, nil
}

func (a *App) Run() error {
	if err := a.attemptWorker.Start(a.workerCtx); err != nil {
		a.logger.Error().Err(err).Msg("Failed to start attempt worker")
		return err
	}

	a.sweeper.Start(a.workerCtx)

	a.logger.Info().Msgf("Starting flexquiz service on %s", a.config.Server.Address)
	return a.server.ListenAndServe()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info().Msg("Shutting down flexquiz service...")

	a.workerCancel()
	a.sweeper.Stop()

	if err := a.attemptWorker.Stop(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to stop attempt worker")
	}

	if a.rabbitMQRepo != nil {
		if err := a.rabbitMQRepo.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close RabbitMQ connection")
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close database connection")
		}
	}

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Failed to shutdown HTTP server")
		return err
	}

	a.logger.Info().Msg("Flexquiz service stopped")
	return nil
}
