package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/skewcast/skewcast/internal/modules/forecast"
	"github.com/skewcast/skewcast/internal/modules/training"
)

// RetrainJob retrains every configured symbol after the close and
// publishes a fresh next-day forecast from the model that wins
type RetrainJob struct {
	training  *training.Service
	forecasts *forecast.Service
	symbols   []string
	log       zerolog.Logger
}

// NewRetrainJob creates a new nightly retrain job
func NewRetrainJob(trainingService *training.Service, forecastService *forecast.Service,
	symbols []string, log zerolog.Logger) *RetrainJob {
	return &RetrainJob{
		training:  trainingService,
		forecasts: forecastService,
		symbols:   symbols,
		log:       log.With().Str("job", "retrain").Logger(),
	}
}

// Name returns the job name
func (j *RetrainJob) Name() string {
	return "retrain"
}

// Run trains and forecasts each symbol in turn. One symbol failing must
// not starve the others, so failures are collected instead of returned
// early.
func (j *RetrainJob) Run() error {
	j.log.Info().Strs("symbols", j.symbols).Msg("Starting nightly retrain")
	startTime := time.Now()

	failed := 0
	for _, symbol := range j.symbols {
		result, err := j.training.Train(symbol)
		if errors.Is(err, training.ErrTrainingBusy) {
			j.log.Warn().Str("symbol", symbol).Msg("Training already in progress, skipping")
			continue
		}
		if err != nil {
			failed++
			j.log.Error().Err(err).Str("symbol", symbol).Msg("Retrain failed")
			continue
		}

		j.log.Info().
			Str("symbol", symbol).
			Str("run_id", result.Run.ID).
			Int("best_epoch", result.Run.BestEpoch).
			Msg("Retrain completed")

		if _, err := j.forecasts.Generate(symbol); err != nil {
			failed++
			j.log.Error().Err(err).Str("symbol", symbol).Msg("Post-retrain forecast failed")
		}
	}

	j.log.Info().
		Dur("duration", time.Since(startTime)).
		Int("symbols", len(j.symbols)).
		Int("failed", failed).
		Msg("Nightly retrain finished")

	if failed > 0 {
		return fmt.Errorf("retrain failed for %d of %d symbols", failed, len(j.symbols))
	}
	return nil
}
