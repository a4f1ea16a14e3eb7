// Package main is the skewcast command line interface. It drives the same
// stores and services as the HTTP binary, so a model trained here is
// immediately served by the API.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/skewcast/skewcast/internal/config"
	"github.com/skewcast/skewcast/internal/database"
	"github.com/skewcast/skewcast/internal/events"
	"github.com/skewcast/skewcast/internal/marketdata"
	"github.com/skewcast/skewcast/internal/modules/charts"
	"github.com/skewcast/skewcast/internal/modules/forecast"
	"github.com/skewcast/skewcast/internal/modules/model"
	"github.com/skewcast/skewcast/internal/modules/training"
	"github.com/skewcast/skewcast/pkg/logger"
)

var (
	rootDataDir  string
	rootLogLevel string
)

// rootCmd is the base command for the skewcast CLI
var rootCmd = &cobra.Command{
	Use:   "skewcast",
	Short: "Next-session price density forecaster for commodity futures",
	Long: `skewcast trains a small density network on daily closes and publishes
the next session's price distribution as a quantile fan.

Subcommands operate on the same databases as the skewcast service under
the configured data directory.

Examples:
  skewcast import --csv data/cl.csv --symbol CL
  skewcast train --symbol CL --plots figures/
  skewcast forecast --symbol CL
  skewcast diagnose --symbol CL --out figures/`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDataDir, "data-dir", "",
		"Data directory (default: DATA_DIR env or ./data)")
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "",
		"Log level (default: LOG_LEVEL env or info)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment configuration and applies flag overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if rootDataDir != "" {
		cfg.DataDir = rootDataDir
		cfg.DatabasePath = filepath.Join(rootDataDir, "skewcast.db")
	}
	if rootLogLevel != "" {
		cfg.LogLevel = rootLogLevel
	}
	return cfg, nil
}

// stack bundles the stores and services the subcommands share
type stack struct {
	cfg       *config.Config
	log       zerolog.Logger
	db        *database.DB
	history   *marketdata.HistoryDB
	events    *events.Manager
	models    *model.Repository
	runs      *training.Repository
	forecasts *forecast.Repository
	charts    *charts.Service
}

// openStack opens the databases and wires the repositories on top of them
func openStack() (*stack, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchemas(training.InitSchema, model.InitSchema, forecast.InitSchema); err != nil {
		db.Close()
		return nil, err
	}

	history, err := marketdata.NewHistoryDB(filepath.Join(cfg.DataDir, "history"), log)
	if err != nil {
		db.Close()
		return nil, err
	}

	eventManager := events.NewManager(log)
	models := model.NewRepository(db.Conn(), log)
	runs := training.NewRepository(db.Conn(), log)
	forecasts := forecast.NewRepository(db.Conn(), log)

	return &stack{
		cfg:       cfg,
		log:       log,
		db:        db,
		history:   history,
		events:    eventManager,
		models:    models,
		runs:      runs,
		forecasts: forecasts,
		charts:    charts.NewService(history, models, runs, log),
	}, nil
}

func (s *stack) close() {
	if err := s.db.Close(); err != nil {
		s.log.Error().Err(err).Msg("Failed to close database")
	}
}

// trainingService builds a training service with the given file config
func (s *stack) trainingService(fileCfg training.FileConfig) *training.Service {
	return training.NewService(s.history, s.runs, s.models, s.events, fileCfg, s.log)
}

// forecastService builds a forecast service on the shared stores
func (s *stack) forecastService() *forecast.Service {
	return forecast.NewService(s.history, s.models, s.forecasts, s.events, s.log)
}
