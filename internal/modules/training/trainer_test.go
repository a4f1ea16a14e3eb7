package training

import (
	"math"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skewcast/skewcast/internal/marketdata"
	"github.com/skewcast/skewcast/internal/modules/density"
	"github.com/skewcast/skewcast/internal/modules/features"
	"github.com/skewcast/skewcast/internal/modules/model"
)

func newSeededRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// testDataset builds a realistic feature matrix from a synthetic walk
func testDataset(t *testing.T) ([][]float64, []float64) {
	t.Helper()

	closes := marketdata.GenerateSyntheticCloses(400, 7)
	matrix, err := features.BuildMatrix(closes, features.DefaultConfig())
	require.NoError(t, err)
	return matrix.X, matrix.Targets
}

func testConfig() Config {
	return Config{
		Epochs:       30,
		BatchSize:    32,
		LearningRate: 0.01,
		ClipNorm:     5.0,
		ValFraction:  0.2,
		Patience:     0,
		Seed:         42,
	}
}

func newTestNetwork(seed int64, hidden ...int) *model.Network {
	if len(hidden) == 0 {
		hidden = []int{16, 8}
	}
	rng := newSeededRand(seed)
	return model.NewNetwork(features.FeatureCount, hidden, rng)
}

func TestFitReducesLoss(t *testing.T) {
	x, y := testDataset(t)
	net := newTestNetwork(1)

	report, err := NewTrainer(testConfig(), zerolog.Nop()).Fit(net, x, y)
	require.NoError(t, err)

	require.Len(t, report.History, report.EpochsRun)
	first := report.History[0]
	last := report.History[len(report.History)-1]
	assert.Less(t, last.TrainNLL, first.TrainNLL, "training loss should decrease")
	assert.False(t, math.IsInf(report.BestValNLL, 0))
	assert.False(t, math.IsNaN(report.BestValNLL))

	assert.Equal(t, len(x), report.SampleCount)
	assert.Equal(t, report.SampleCount, report.TrainSamples+report.ValSamples)
	require.NotNil(t, report.FeatureScaler)
	require.NotNil(t, report.TargetScaler)
}

func TestFitIsDeterministic(t *testing.T) {
	x, y := testDataset(t)

	netA := newTestNetwork(1)
	netB := newTestNetwork(1)

	reportA, err := NewTrainer(testConfig(), zerolog.Nop()).Fit(netA, x, y)
	require.NoError(t, err)
	reportB, err := NewTrainer(testConfig(), zerolog.Nop()).Fit(netB, x, y)
	require.NoError(t, err)

	assert.Equal(t, reportA.History, reportB.History)
	assert.Equal(t, netA.Weights, netB.Weights)
	assert.Equal(t, netA.Biases, netB.Biases)
}

func TestFitEarlyStopsWithoutImprovement(t *testing.T) {
	x, y := testDataset(t)
	net := newTestNetwork(1)

	// A zero learning rate freezes the weights, so validation loss never
	// improves after the first epoch and patience must trigger.
	cfg := testConfig()
	cfg.Epochs = 100
	cfg.LearningRate = 0
	cfg.Patience = 3

	report, err := NewTrainer(cfg, zerolog.Nop()).Fit(net, x, y)
	require.NoError(t, err)

	assert.True(t, report.StoppedEarly)
	assert.Equal(t, 1, report.BestEpoch)
	assert.Equal(t, 1+cfg.Patience, report.EpochsRun)
}

func TestFitRestoresBestWeights(t *testing.T) {
	x, y := testDataset(t)
	net := newTestNetwork(1)

	cfg := testConfig()
	cfg.Epochs = 50
	report, err := NewTrainer(cfg, zerolog.Nop()).Fit(net, x, y)
	require.NoError(t, err)

	// Re-evaluating the returned network on the validation block has to
	// reproduce the reported best loss exactly.
	xs := report.FeatureScaler.TransformAll(x)
	total := 0.0
	for i := report.TrainSamples; i < len(xs); i++ {
		dist := density.New(density.ParamsFromRaw(net.Outputs(xs[i])))
		total += -dist.LogProb(report.TargetScaler.Apply(y[i]))
	}
	valNLL := total / float64(report.ValSamples)

	assert.InDelta(t, report.BestValNLL, valNLL, 1e-9)
}

func TestFitRejectsBadInput(t *testing.T) {
	trainer := NewTrainer(testConfig(), zerolog.Nop())

	_, err := trainer.Fit(newTestNetwork(1), nil, nil)
	assert.Error(t, err)

	x, y := testDataset(t)
	_, err = trainer.Fit(newTestNetwork(1), x, y[:len(y)-1])
	assert.Error(t, err)
}

func TestFitAbortsOnNonFiniteTarget(t *testing.T) {
	x, y := testDataset(t)
	y[10] = math.NaN()

	_, err := NewTrainer(testConfig(), zerolog.Nop()).Fit(newTestNetwork(1), x, y)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not finite")
}

func TestClipGradients(t *testing.T) {
	net := model.NewNetwork(1, nil, newSeededRand(3))
	grads := model.NewGradients(net)

	// One weight of 3 and one bias of 4 give a global norm of 5
	grads.Weights[0][0][0] = 3
	grads.Biases[0][0] = 4

	norm := clipGradients(grads, 10)
	assert.InDelta(t, 5.0, norm, 1e-12)
	assert.InDelta(t, 3.0, grads.Weights[0][0][0], 1e-12, "below the limit nothing changes")

	norm = clipGradients(grads, 1)
	assert.InDelta(t, 5.0, norm, 1e-12, "returns the pre-clip norm")
	assert.InDelta(t, 0.6, grads.Weights[0][0][0], 1e-12)
	assert.InDelta(t, 0.8, grads.Biases[0][0], 1e-12)
	assert.InDelta(t, 1.0, grads.GlobalNorm(), 1e-12)
}
