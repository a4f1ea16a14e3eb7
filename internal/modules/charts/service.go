// Package charts assembles chart-ready JSON from training runs and the
// active model: loss curves, quantile fans and PIT calibration plots.
package charts

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/skewcast/skewcast/internal/domain"
	"github.com/skewcast/skewcast/internal/marketdata"
	"github.com/skewcast/skewcast/internal/modules/evaluation"
	"github.com/skewcast/skewcast/internal/modules/features"
	"github.com/skewcast/skewcast/internal/modules/model"
	"github.com/skewcast/skewcast/internal/modules/training"
)

// DefaultFanDays is how much trailing history the fan chart shows
const DefaultFanDays = 120

// LossCurve is the per-epoch training diagnostic of one run
type LossCurve struct {
	RunID     string    `json:"run_id"`
	Symbol    string    `json:"symbol"`
	BestEpoch int       `json:"best_epoch"`
	Epochs    []int     `json:"epochs"`
	Train     []float64 `json:"train_nll"`
	Val       []float64 `json:"val_nll"`
}

// FanChart overlays predicted next-session price bands on realized closes
type FanChart struct {
	Symbol   string      `json:"symbol"`
	Probs    []float64   `json:"probs"`
	Dates    []string    `json:"dates"`
	Closes   []float64   `json:"closes"`
	Bands    [][]float64 `json:"bands"` // bands[i][j] = price quantile probs[j] on dates[i]
	Realized []float64   `json:"realized"`
}

// PITChart is the calibration report of the active model
type PITChart struct {
	Symbol    string                        `json:"symbol"`
	Rows      int                           `json:"rows"`
	MeanPIT   float64                       `json:"mean_pit"`
	MeanNLL   float64                       `json:"mean_nll"`
	Histogram evaluation.Histogram          `json:"histogram"`
	Coverage  []evaluation.IntervalCoverage `json:"coverage"`
}

// Service provides chart data operations
type Service struct {
	history *marketdata.HistoryDB
	models  *model.Repository
	runs    *training.Repository
	log     zerolog.Logger
}

// NewService creates a new charts service
func NewService(history *marketdata.HistoryDB, models *model.Repository,
	runs *training.Repository, log zerolog.Logger) *Service {
	return &Service{
		history: history,
		models:  models,
		runs:    runs,
		log:     log.With().Str("service", "charts").Logger(),
	}
}

// LossCurve returns the loss history of a training run
func (s *Service) LossCurve(runID string) (*LossCurve, error) {
	run, err := s.runs.GetRun(runID)
	if err != nil {
		return nil, err
	}

	history, err := s.runs.GetEpochStats(runID)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("run %s has no recorded epochs", runID)
	}

	curve := &LossCurve{
		RunID:     run.ID,
		Symbol:    run.Symbol,
		BestEpoch: run.BestEpoch,
		Epochs:    make([]int, len(history)),
		Train:     make([]float64, len(history)),
		Val:       make([]float64, len(history)),
	}
	for i, e := range history {
		curve.Epochs[i] = e.Epoch
		curve.Train[i] = e.TrainNLL
		curve.Val[i] = e.ValNLL
	}
	return curve, nil
}

// FanChart evaluates the active model over the trailing window and pairs
// its price bands with the closes that followed.
func (s *Service) FanChart(symbol string, days int) (*FanChart, error) {
	if days <= 0 {
		days = DefaultFanDays
	}

	snap, m, err := s.activeMatrix(symbol)
	if err != nil {
		return nil, err
	}

	points := evaluation.Fan(snap, m, domain.FanProbabilities, days)
	chart := &FanChart{
		Symbol:   symbol,
		Probs:    domain.FanProbabilities,
		Dates:    make([]string, len(points)),
		Closes:   make([]float64, len(points)),
		Bands:    make([][]float64, len(points)),
		Realized: make([]float64, len(points)),
	}
	for i, pt := range points {
		chart.Dates[i] = pt.Date
		chart.Closes[i] = pt.Close
		chart.Bands[i] = pt.Bands
		chart.Realized[i] = pt.Realized
	}
	return chart, nil
}

// PITChart diagnoses the active model's calibration over its full history
func (s *Service) PITChart(symbol string) (*PITChart, error) {
	snap, m, err := s.activeMatrix(symbol)
	if err != nil {
		return nil, err
	}

	d, err := evaluation.Diagnose(snap, m)
	if err != nil {
		return nil, err
	}

	return &PITChart{
		Symbol:    symbol,
		Rows:      d.Rows,
		MeanPIT:   d.MeanPIT,
		MeanNLL:   d.MeanNLL,
		Histogram: d.Histogram,
		Coverage:  d.Coverage,
	}, nil
}

// activeMatrix loads the active snapshot and rebuilds its feature matrix
// from stored history
func (s *Service) activeMatrix(symbol string) (*model.Snapshot, *features.Matrix, error) {
	snap, err := s.models.ActiveSnapshot(symbol)
	if err != nil {
		return nil, nil, err
	}

	closes, err := s.history.GetDailyCloses(symbol, 0)
	if err != nil {
		return nil, nil, err
	}

	m, err := features.BuildMatrix(closes, snap.FeatureConfig)
	if err != nil {
		return nil, nil, err
	}
	return snap, m, nil
}
