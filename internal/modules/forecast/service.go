package forecast

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skewcast/skewcast/internal/domain"
	"github.com/skewcast/skewcast/internal/events"
	"github.com/skewcast/skewcast/internal/marketdata"
	"github.com/skewcast/skewcast/internal/modules/density"
	"github.com/skewcast/skewcast/internal/modules/evaluation"
	"github.com/skewcast/skewcast/internal/modules/features"
	"github.com/skewcast/skewcast/internal/modules/model"
)

// Service turns the active model and the latest closes into published
// next-day densities.
type Service struct {
	history *marketdata.HistoryDB
	models  *model.Repository
	repo    *Repository
	events  *events.Manager
	log     zerolog.Logger
}

// NewService creates a new forecast service
func NewService(history *marketdata.HistoryDB, models *model.Repository, repo *Repository,
	eventManager *events.Manager, log zerolog.Logger) *Service {
	return &Service{
		history: history,
		models:  models,
		repo:    repo,
		events:  eventManager,
		log:     log.With().Str("service", "forecast").Logger(),
	}
}

// Generate builds, persists and returns a forecast conditioned on the most
// recent close of the symbol. It requires an active model snapshot and
// enough history to fill the indicator windows.
func (s *Service) Generate(symbol string) (*Forecast, error) {
	snap, err := s.models.ActiveSnapshot(symbol)
	if err != nil {
		return nil, err
	}

	// The latest vector only needs the warmup window plus the base day
	closes, err := s.history.GetDailyCloses(symbol, snap.FeatureConfig.Warmup()+1)
	if err != nil {
		return nil, err
	}

	vec, base, err := features.LatestVector(closes, snap.FeatureConfig)
	if err != nil {
		return nil, err
	}

	raw := snap.Net.Outputs(snap.FeatureScaler.Transform(vec))
	std := density.ParamsFromRaw(raw)

	// The net predicts on the standardized return scale. Mapping back is
	// affine, which the distribution family is closed under: shift the
	// location and stretch the scale, skew and tail stay put.
	params := density.Params{
		Loc:   snap.TargetScaler.Invert(std.Loc),
		Scale: std.Scale * snap.TargetScaler.Std,
		Skew:  std.Skew,
		Tail:  std.Tail,
	}

	targetDate, err := domain.NextTradingDay(base.Date)
	if err != nil {
		return nil, fmt.Errorf("failed to derive target date: %w", err)
	}

	f := &Forecast{
		ID:         uuid.New().String(),
		Symbol:     symbol,
		SnapshotID: snap.ID,
		BaseDate:   base.Date,
		TargetDate: targetDate,
		BaseClose:  base.Close,
		Params:     params,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.repo.Save(f); err != nil {
		return nil, err
	}

	s.events.Emit(events.ForecastPublished, "forecast", map[string]interface{}{
		"symbol":      symbol,
		"base_date":   f.BaseDate,
		"target_date": f.TargetDate,
		"snapshot_id": snap.ID,
	})
	s.log.Info().
		Str("symbol", symbol).
		Str("base_date", f.BaseDate).
		Float64("median_price", f.PriceQuantile(0.5)).
		Msg("Forecast generated")

	return f, nil
}

// GenerateAll runs Generate for each symbol, keeping going on per-symbol
// failures so one stale symbol cannot block the rest.
func (s *Service) GenerateAll(symbols []string) map[string]error {
	failures := make(map[string]error)
	for _, symbol := range symbols {
		if _, err := s.Generate(symbol); err != nil {
			s.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to generate forecast")
			failures[symbol] = err
		}
	}
	return failures
}

// Horizon extends the one-day model into a multi-day price fan by Monte
// Carlo resampling. A zero seed picks a fresh one from the clock.
func (s *Service) Horizon(symbol string, days, paths int, seed int64) (*evaluation.HorizonFan, error) {
	snap, err := s.models.ActiveSnapshot(symbol)
	if err != nil {
		return nil, err
	}

	closes, err := s.history.GetDailyCloses(symbol, snap.FeatureConfig.Warmup()+1)
	if err != nil {
		return nil, err
	}

	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return evaluation.SimulateHorizon(snap, closes, days, paths, seed)
}
