// Package main is the entry point for the skewcast forecasting service.
// It wires the price history stores, the training and forecast services,
// the background jobs and the HTTP API, then runs until interrupted.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/skewcast/skewcast/internal/config"
	"github.com/skewcast/skewcast/internal/database"
	"github.com/skewcast/skewcast/internal/events"
	"github.com/skewcast/skewcast/internal/marketdata"
	"github.com/skewcast/skewcast/internal/modules/charts"
	"github.com/skewcast/skewcast/internal/modules/forecast"
	"github.com/skewcast/skewcast/internal/modules/model"
	"github.com/skewcast/skewcast/internal/modules/training"
	"github.com/skewcast/skewcast/internal/reliability"
	"github.com/skewcast/skewcast/internal/scheduler"
	"github.com/skewcast/skewcast/internal/server"
	"github.com/skewcast/skewcast/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	log.Info().Msg("Starting skewcast")

	// Main database holds training runs, model snapshots and forecasts
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := db.InitSchemas(training.InitSchema, model.InitSchema, forecast.InitSchema); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize schemas")
	}

	// Per-symbol price history databases
	history, err := marketdata.NewHistoryDB(filepath.Join(cfg.DataDir, "history"), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history databases")
	}

	eventManager := events.NewManager(log)

	// Repositories
	models := model.NewRepository(db.Conn(), log)
	runs := training.NewRepository(db.Conn(), log)
	forecastRepo := forecast.NewRepository(db.Conn(), log)

	// Feature and training settings, optionally overridden from TOML
	fileCfg := training.DefaultFileConfig()
	if cfg.ModelConfigPath != "" {
		fileCfg, err = training.LoadFileConfig(cfg.ModelConfigPath, log)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.ModelConfigPath).Msg("Failed to load model config")
		}
	}

	// Services
	trainingService := training.NewService(history, runs, models, eventManager, fileCfg, log)
	forecastService := forecast.NewService(history, models, forecastRepo, eventManager, log)
	chartService := charts.NewService(history, models, runs, log)

	// Remote backups are optional; without an endpoint the service runs
	// with local databases only
	var backupService *reliability.BackupService
	var backupHandler *reliability.Handler
	if cfg.Backup.Enabled {
		s3Client, err := reliability.NewS3Client(context.Background(), reliability.S3Config{
			Endpoint:        cfg.Backup.Endpoint,
			Bucket:          cfg.Backup.Bucket,
			AccessKeyID:     cfg.Backup.AccessKeyID,
			SecretAccessKey: cfg.Backup.SecretAccessKey,
			Prefix:          cfg.Backup.Prefix,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize S3 client")
		}
		backupService = reliability.NewBackupService(db, history, s3Client, eventManager,
			cfg.DataDir, cfg.Backup.Keep, log)
		backupHandler = reliability.NewHandler(backupService, log)
		log.Info().Str("bucket", cfg.Backup.Bucket).Msg("Remote backups enabled")
	}

	// Scheduler and background jobs
	sched := scheduler.New(log)

	retrainJob := scheduler.NewRetrainJob(trainingService, forecastService, cfg.Symbols, log)
	if err := sched.AddJob(cfg.RetrainSchedule, retrainJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register retrain job")
	}

	healthJob := scheduler.NewHealthCheckJob(db, history, eventManager, log)
	if err := sched.AddJob(cfg.HealthSchedule, healthJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register health check job")
	}

	var backupJob scheduler.Job
	if backupService != nil {
		job := reliability.NewBackupJob(backupService, log)
		if err := sched.AddJob(cfg.BackupSchedule, job); err != nil {
			log.Fatal().Err(err).Msg("Failed to register backup job")
		}
		backupJob = job
	}

	sched.Start()
	defer sched.Stop()

	// HTTP server
	srv := server.New(server.Config{
		Port:            cfg.Port,
		Log:             log,
		DB:              db,
		History:         history,
		Config:          cfg,
		DevMode:         cfg.DevMode,
		Scheduler:       sched,
		DataHandler:     marketdata.NewHandler(history, eventManager, log),
		TrainingHandler: training.NewHandler(trainingService, runs, log),
		ModelHandler:    model.NewHandler(models, log),
		ForecastHandler: forecast.NewHandler(forecastService, forecastRepo, log),
		ChartsHandler:   charts.NewHandler(chartService, log),
		BackupHandler:   backupHandler,
	})
	srv.SetJobs(retrainJob, healthJob, backupJob)

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
