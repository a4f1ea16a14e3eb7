package training

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/skewcast/skewcast/internal/modules/density"
	"github.com/skewcast/skewcast/internal/modules/features"
	"github.com/skewcast/skewcast/internal/modules/model"
)

// EpochStats records the losses of one epoch
type EpochStats struct {
	Epoch    int     `json:"epoch"`
	TrainNLL float64 `json:"train_nll"`
	ValNLL   float64 `json:"val_nll"`
	GradNorm float64 `json:"grad_norm"`
}

// Report summarizes a finished fit, including the normalization state the
// snapshot has to carry so serving matches training.
type Report struct {
	SampleCount   int
	TrainSamples  int
	ValSamples    int
	EpochsRun     int
	BestEpoch     int
	BestValNLL    float64
	FinalTrainNLL float64
	StoppedEarly  bool
	History       []EpochStats

	FeatureScaler *features.Scaler
	TargetScaler  *features.TargetScaler
}

// Trainer fits the density network by minimizing the negative log
// likelihood of the observed next-day returns under the predicted
// distributions.
type Trainer struct {
	cfg Config
	log zerolog.Logger
}

// NewTrainer creates a trainer with the given schedule
func NewTrainer(cfg Config, log zerolog.Logger) *Trainer {
	return &Trainer{
		cfg: cfg,
		log: log.With().Str("service", "trainer").Logger(),
	}
}

// Fit trains net in place on the feature matrix and raw targets. The rows
// must be in date order: the validation block is the most recent rows, and
// both scalers are fitted on the training prefix only. On success the
// network holds the weights of the best validation epoch.
func (t *Trainer) Fit(net *model.Network, x [][]float64, y []float64) (*Report, error) {
	n := len(x)
	if n == 0 || n != len(y) {
		return nil, fmt.Errorf("invalid training set: %d feature rows, %d targets", n, len(y))
	}

	valRows := int(float64(n) * t.cfg.ValFraction)
	trainRows := n - valRows
	if trainRows < 2 || valRows < 1 {
		return nil, fmt.Errorf("cannot split %d rows with val_fraction %.2f", n, t.cfg.ValFraction)
	}

	scaler, err := features.FitScaler(x, trainRows)
	if err != nil {
		return nil, fmt.Errorf("failed to fit feature scaler: %w", err)
	}
	targetScaler, err := features.FitTargetScaler(y, trainRows)
	if err != nil {
		return nil, fmt.Errorf("failed to fit target scaler: %w", err)
	}

	xs := scaler.TransformAll(x)
	ys := make([]float64, n)
	for i, v := range y {
		ys[i] = targetScaler.Apply(v)
	}

	report := &Report{
		SampleCount:   n,
		TrainSamples:  trainRows,
		ValSamples:    valRows,
		BestValNLL:    math.Inf(1),
		FeatureScaler: scaler,
		TargetScaler:  targetScaler,
	}

	t.log.Info().
		Int("samples", n).
		Int("train", trainRows).
		Int("val", valRows).
		Int("params", net.ParamCount()).
		Msg("Starting training")

	rng := rand.New(rand.NewSource(t.cfg.Seed))
	opt := newAdam(net, t.cfg.LearningRate)
	grads := model.NewGradients(net)

	var bestNet *model.Network
	sinceBest := 0

	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		perm := rng.Perm(trainRows)
		epochLoss := 0.0
		normSum := 0.0
		batches := 0

		for start := 0; start < trainRows; start += t.cfg.BatchSize {
			end := start + t.cfg.BatchSize
			if end > trainRows {
				end = trainRows
			}

			grads.Zero()
			for _, i := range perm[start:end] {
				nll, err := t.accumulate(net, grads, xs[i], ys[i])
				if err != nil {
					return nil, fmt.Errorf("epoch %d: %w", epoch, err)
				}
				epochLoss += nll
			}

			grads.Scale(1 / float64(end-start))
			normSum += clipGradients(grads, t.cfg.ClipNorm)
			batches++
			opt.Step(net, grads)
		}

		trainNLL := epochLoss / float64(trainRows)
		valNLL := t.meanNLL(net, xs[trainRows:], ys[trainRows:])
		if math.IsNaN(valNLL) || math.IsInf(valNLL, 0) {
			return nil, fmt.Errorf("epoch %d: validation loss is not finite", epoch)
		}

		report.EpochsRun = epoch
		report.FinalTrainNLL = trainNLL
		report.History = append(report.History, EpochStats{
			Epoch:    epoch,
			TrainNLL: trainNLL,
			ValNLL:   valNLL,
			GradNorm: normSum / float64(batches),
		})

		t.log.Info().
			Int("epoch", epoch).
			Float64("train_nll", trainNLL).
			Float64("val_nll", valNLL).
			Msg("Epoch complete")

		if valNLL < report.BestValNLL {
			report.BestValNLL = valNLL
			report.BestEpoch = epoch
			bestNet = net.Clone()
			sinceBest = 0
			continue
		}

		sinceBest++
		if t.cfg.Patience > 0 && sinceBest >= t.cfg.Patience {
			report.StoppedEarly = true
			t.log.Info().
				Int("epoch", epoch).
				Int("best_epoch", report.BestEpoch).
				Msg("Early stopping, validation loss stopped improving")
			break
		}
	}

	// Hand back the weights of the best validation epoch
	if bestNet != nil {
		*net = *bestNet
	}

	t.log.Info().
		Int("epochs_run", report.EpochsRun).
		Int("best_epoch", report.BestEpoch).
		Float64("best_val_nll", report.BestValNLL).
		Bool("stopped_early", report.StoppedEarly).
		Msg("Training finished")

	return report, nil
}

// accumulate runs one sample forward and backward, adding its parameter
// gradients into grads and returning the sample's negative log likelihood.
func (t *Trainer) accumulate(net *model.Network, grads *model.Gradients, x []float64, y float64) (float64, error) {
	raw, cache := net.Forward(x)
	params := density.ParamsFromRaw(raw)
	dist := density.New(params)

	nll := -dist.LogProb(y)
	if math.IsNaN(nll) || math.IsInf(nll, 0) {
		return 0, fmt.Errorf("loss is not finite (loc=%.4g scale=%.4g skew=%.4g tail=%.4g y=%.4g)",
			params.Loc, params.Scale, params.Skew, params.Tail, y)
	}

	// Loss is -log p, so flip the sign of the log-density gradient
	dRaw := params.RawGradient(dist.LogProbGrad(y))
	for k := range dRaw {
		dRaw[k] = -dRaw[k]
	}
	net.Backward(cache, dRaw, grads)

	return nll, nil
}

// meanNLL evaluates the average negative log likelihood on a hold-out set
func (t *Trainer) meanNLL(net *model.Network, xs [][]float64, ys []float64) float64 {
	total := 0.0
	for i := range xs {
		raw, _ := net.Forward(xs[i])
		dist := density.New(density.ParamsFromRaw(raw))
		total += -dist.LogProb(ys[i])
	}
	return total / float64(len(xs))
}

// clipGradients rescales grads in place when their global norm exceeds
// maxNorm, and returns the norm measured before clipping.
func clipGradients(grads *model.Gradients, maxNorm float64) float64 {
	norm := grads.GlobalNorm()
	if maxNorm > 0 && norm > maxNorm {
		grads.Scale(maxNorm / norm)
	}
	return norm
}
