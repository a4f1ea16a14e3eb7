// Package server provides the HTTP server and routing for skewcast.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/skewcast/skewcast/internal/config"
	"github.com/skewcast/skewcast/internal/database"
	"github.com/skewcast/skewcast/internal/marketdata"
	"github.com/skewcast/skewcast/internal/modules/charts"
	"github.com/skewcast/skewcast/internal/modules/forecast"
	"github.com/skewcast/skewcast/internal/modules/model"
	"github.com/skewcast/skewcast/internal/modules/training"
	"github.com/skewcast/skewcast/internal/reliability"
	"github.com/skewcast/skewcast/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Port    int
	Log     zerolog.Logger
	DB      *database.DB
	History *marketdata.HistoryDB
	Config  *config.Config
	DevMode bool

	Scheduler *scheduler.Scheduler

	DataHandler     *marketdata.Handler
	TrainingHandler *training.Handler
	ModelHandler    *model.Handler
	ForecastHandler *forecast.Handler
	ChartsHandler   *charts.Handler
	BackupHandler   *reliability.Handler // nil when backups are disabled
}

// Server represents the HTTP server
type Server struct {
	router          *chi.Mux
	server          *http.Server
	log             zerolog.Logger
	db              *database.DB
	cfg             *config.Config
	systemHandlers  *SystemHandlers
	dataHandler     *marketdata.Handler
	trainingHandler *training.Handler
	modelHandler    *model.Handler
	forecastHandler *forecast.Handler
	chartsHandler   *charts.Handler
	backupHandler   *reliability.Handler
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	systemHandlers := NewSystemHandlers(
		cfg.Log,
		cfg.Config.DataDir,
		cfg.DB,
		cfg.History,
		cfg.Scheduler,
	)

	s := &Server{
		router:          chi.NewRouter(),
		log:             cfg.Log.With().Str("component", "server").Logger(),
		db:              cfg.DB,
		cfg:             cfg.Config,
		systemHandlers:  systemHandlers,
		dataHandler:     cfg.DataHandler,
		trainingHandler: cfg.TrainingHandler,
		modelHandler:    cfg.ModelHandler,
		forecastHandler: cfg.ForecastHandler,
		chartsHandler:   cfg.ChartsHandler,
		backupHandler:   cfg.BackupHandler,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// SetJobs registers job instances for manual triggering via API
// Called after jobs are registered in main.go
func (s *Server) SetJobs(retrain, healthCheck, backup scheduler.Job) {
	s.systemHandlers.SetJobs(retrain, healthCheck, backup)
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.Get("/health", s.handleHealth)

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		// System monitoring and job triggers
		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Get("/jobs", s.systemHandlers.HandleJobsStatus)
			r.Get("/database/stats", s.systemHandlers.HandleDatabaseStats)
			r.Get("/disk", s.systemHandlers.HandleDiskUsage)

			// Manual job triggers
			r.Post("/jobs/retrain", s.systemHandlers.HandleTriggerRetrain)
			r.Post("/jobs/health-check", s.systemHandlers.HandleTriggerHealthCheck)
			r.Post("/jobs/backup", s.systemHandlers.HandleTriggerBackup)
		})

		// Price history
		r.Route("/data", func(r chi.Router) {
			r.Get("/", s.dataHandler.HandleListSymbols)
			r.Post("/import", s.dataHandler.HandleImport)
			r.Post("/synthetic", s.dataHandler.HandleSynthetic)
			r.Get("/{symbol}/summary", s.dataHandler.HandleSummary)
		})

		// Training runs
		r.Post("/train", s.trainingHandler.HandleStartTraining)
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.trainingHandler.HandleListRuns)
			r.Get("/{id}", s.trainingHandler.HandleGetRun)
			r.Get("/{id}/epochs", s.trainingHandler.HandleGetEpochs)
		})

		// Model snapshots
		r.Route("/model", func(r chi.Router) {
			r.Get("/", s.modelHandler.HandleList)
			r.Get("/active", s.modelHandler.HandleActive)
		})

		// Forecasts
		r.Route("/forecasts", func(r chi.Router) {
			r.Post("/generate", s.forecastHandler.HandleGenerate)
			r.Get("/{symbol}/latest", s.forecastHandler.HandleLatest)
			r.Get("/{symbol}/horizon", s.forecastHandler.HandleHorizon)
			r.Get("/{symbol}", s.forecastHandler.HandleRange)
		})

		// Chart data
		r.Route("/charts", func(r chi.Router) {
			r.Get("/loss/{id}", s.chartsHandler.HandleLossCurve)
			r.Get("/fan/{symbol}", s.chartsHandler.HandleFanChart)
			r.Get("/pit/{symbol}", s.chartsHandler.HandlePITChart)
		})

		// Remote backups (only when configured)
		if s.backupHandler != nil {
			r.Route("/backups", func(r chi.Router) {
				r.Get("/", s.backupHandler.HandleListBackups)
				r.Post("/run", s.backupHandler.HandleRunBackup)
			})
		}
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
