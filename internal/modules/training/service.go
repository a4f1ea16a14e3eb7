package training

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skewcast/skewcast/internal/domain"
	"github.com/skewcast/skewcast/internal/events"
	"github.com/skewcast/skewcast/internal/marketdata"
	"github.com/skewcast/skewcast/internal/modules/features"
	"github.com/skewcast/skewcast/internal/modules/model"
)

// ErrTrainingBusy signals that another run is already in flight
var ErrTrainingBusy = errors.New("training already in progress")

// Synthetic fallback series used when a symbol has too little history.
// The seed is fixed so the fallback dataset is reproducible.
const (
	syntheticDays = 750
	syntheticSeed = 42
)

// Service coordinates dataset assembly, training and snapshot activation.
// Only one run may be in flight at a time.
type Service struct {
	history *marketdata.HistoryDB
	repo    *Repository
	models  *model.Repository
	events  *events.Manager
	fileCfg FileConfig
	log     zerolog.Logger
	mu      sync.Mutex
}

// NewService creates a new training service
func NewService(history *marketdata.HistoryDB, repo *Repository, models *model.Repository,
	eventManager *events.Manager, fileCfg FileConfig, log zerolog.Logger) *Service {
	return &Service{
		history: history,
		repo:    repo,
		models:  models,
		events:  eventManager,
		fileCfg: fileCfg,
		log:     log.With().Str("service", "training").Logger(),
	}
}

// Result bundles the persisted run, the activated snapshot and the
// training report.
type Result struct {
	Run      *Run
	Snapshot *model.Snapshot
	Report   *Report
}

// Train runs synchronously and returns once the new model is active
func (s *Service) Train(symbol string) (*Result, error) {
	if !s.mu.TryLock() {
		return nil, ErrTrainingBusy
	}
	defer s.mu.Unlock()

	run, err := s.createRun(symbol)
	if err != nil {
		return nil, err
	}
	return s.execute(run)
}

// StartTraining launches a run in the background and returns its ID
// immediately. Progress is tracked on the run row.
func (s *Service) StartTraining(symbol string) (string, error) {
	if !s.mu.TryLock() {
		return "", ErrTrainingBusy
	}

	run, err := s.createRun(symbol)
	if err != nil {
		s.mu.Unlock()
		return "", err
	}

	go func() {
		defer s.mu.Unlock()
		// Failures are recorded on the run row and emitted as events
		_, _ = s.execute(run)
	}()

	return run.ID, nil
}

func (s *Service) createRun(symbol string) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Symbol:    symbol,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateRun(run); err != nil {
		return nil, err
	}

	s.events.Emit(events.TrainingStarted, "training", map[string]interface{}{
		"run_id": run.ID,
		"symbol": run.Symbol,
	})
	return run, nil
}

func (s *Service) execute(run *Run) (*Result, error) {
	started := time.Now()

	closes, synthetic, err := s.loadCloses(run.Symbol)
	if err != nil {
		return nil, s.fail(run, err)
	}

	matrix, err := features.BuildMatrix(closes, s.fileCfg.Features)
	if err != nil {
		return nil, s.fail(run, fmt.Errorf("failed to build feature matrix: %w", err))
	}

	rng := rand.New(rand.NewSource(s.fileCfg.Training.Seed))
	net := model.NewNetwork(features.FeatureCount, s.fileCfg.Network.HiddenSizes, rng)

	report, err := NewTrainer(s.fileCfg.Training, s.log).Fit(net, matrix.X, matrix.Targets)
	if err != nil {
		return nil, s.fail(run, err)
	}

	snapshot := &model.Snapshot{
		ID:            uuid.New().String(),
		Symbol:        run.Symbol,
		RunID:         run.ID,
		CreatedAt:     time.Now().UTC(),
		BestValNLL:    report.BestValNLL,
		FeatureConfig: s.fileCfg.Features,
		FeatureScaler: report.FeatureScaler,
		TargetScaler:  report.TargetScaler,
		Net:           net,
	}
	if err := s.models.Save(snapshot); err != nil {
		return nil, s.fail(run, err)
	}
	if err := s.models.Activate(snapshot.ID); err != nil {
		return nil, s.fail(run, err)
	}

	if err := s.repo.SaveEpochStats(run.ID, report.History); err != nil {
		s.log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to save epoch losses")
	}
	if err := s.repo.MarkCompleted(run.ID, report); err != nil {
		s.log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to mark run completed")
	}

	now := time.Now().UTC()
	run.Status = StatusCompleted
	run.FinishedAt = &now
	run.SampleCount = report.SampleCount
	run.TrainSamples = report.TrainSamples
	run.ValSamples = report.ValSamples
	run.EpochsRun = report.EpochsRun
	run.BestEpoch = report.BestEpoch
	run.BestValNLL = &report.BestValNLL
	run.FinalTrainNLL = &report.FinalTrainNLL
	run.StoppedEarly = report.StoppedEarly

	s.events.Emit(events.TrainingCompleted, "training", map[string]interface{}{
		"run_id":       run.ID,
		"symbol":       run.Symbol,
		"best_val_nll": report.BestValNLL,
		"epochs_run":   report.EpochsRun,
		"synthetic":    synthetic,
		"duration_sec": time.Since(started).Seconds(),
	})
	s.events.Emit(events.ModelActivated, "training", map[string]interface{}{
		"snapshot_id": snapshot.ID,
		"symbol":      run.Symbol,
	})

	return &Result{Run: run, Snapshot: snapshot, Report: report}, nil
}

// loadCloses returns the symbol's history, or a deterministic synthetic
// random walk when too few rows exist to survive warmup.
func (s *Service) loadCloses(symbol string) ([]domain.DailyClose, bool, error) {
	closes, err := s.history.GetDailyCloses(symbol, 0)
	if err != nil && !errors.Is(err, marketdata.ErrNoData) {
		return nil, false, fmt.Errorf("failed to load history: %w", err)
	}

	needed := features.MinSamples + s.fileCfg.Features.Warmup() + 1
	if len(closes) >= needed {
		return closes, false, nil
	}

	s.log.Warn().
		Str("symbol", symbol).
		Int("rows", len(closes)).
		Int("needed", needed).
		Msg("Insufficient price history, training on a synthetic random walk")
	s.events.Emit(events.SyntheticGenerated, "training", map[string]interface{}{
		"symbol": symbol,
		"days":   syntheticDays,
	})

	return marketdata.GenerateSyntheticCloses(syntheticDays, syntheticSeed), true, nil
}

func (s *Service) fail(run *Run, cause error) error {
	if err := s.repo.MarkFailed(run.ID, cause); err != nil {
		s.log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to mark run failed")
	}
	run.Status = StatusFailed
	run.Error = cause.Error()

	s.events.Emit(events.TrainingFailed, "training", map[string]interface{}{
		"run_id": run.ID,
		"symbol": run.Symbol,
		"error":  cause.Error(),
	})
	s.log.Error().Err(cause).Str("run_id", run.ID).Str("symbol", run.Symbol).Msg("Training run failed")
	return cause
}
