package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skewcast/skewcast/pkg/formulas"
)

func TestFitScalerStandardizesTrainingPrefix(t *testing.T) {
	x := [][]float64{
		{1, 10},
		{2, 20},
		{3, 30},
		{4, 40},
		{100, -500}, // validation row, must not influence the fit
	}

	s, err := FitScaler(x, 4)
	require.NoError(t, err)

	assert.InDelta(t, 2.5, s.Means[0], 1e-9)
	assert.InDelta(t, 25.0, s.Means[1], 1e-9)

	// Transformed training prefix has zero mean and unit deviation
	transformed := s.TransformAll(x[:4])
	for f := 0; f < 2; f++ {
		col := make([]float64, 4)
		for i := range transformed {
			col[i] = transformed[i][f]
		}
		assert.InDelta(t, 0.0, formulas.Mean(col), 1e-9)
		assert.InDelta(t, 1.0, formulas.StdDev(col), 1e-9)
	}
}

func TestFitScalerConstantColumn(t *testing.T) {
	x := [][]float64{{7, 1}, {7, 2}, {7, 3}}

	s, err := FitScaler(x, 3)
	require.NoError(t, err)

	out := s.Transform([]float64{7, 2})
	assert.InDelta(t, 0.0, out[0], 1e-9) // centered, not exploded
}

func TestFitScalerRejectsBadRowCount(t *testing.T) {
	x := [][]float64{{1}, {2}}

	_, err := FitScaler(x, 1)
	assert.Error(t, err)

	_, err = FitScaler(x, 3)
	assert.Error(t, err)
}

func TestScalerValidateWidth(t *testing.T) {
	s := &Scaler{Means: []float64{0, 0}, Stds: []float64{1, 1}}

	assert.NoError(t, s.Validate(2))
	assert.Error(t, s.Validate(6))
}

func TestTargetScalerRoundTrip(t *testing.T) {
	targets := []float64{0.01, -0.02, 0.005, 0.015, -0.01}

	s, err := FitTargetScaler(targets, 5)
	require.NoError(t, err)

	for _, v := range targets {
		assert.InDelta(t, v, s.Invert(s.Apply(v)), 1e-12)
	}
}

func TestTargetScalerFlatTargets(t *testing.T) {
	s, err := FitTargetScaler([]float64{0.01, 0.01, 0.01}, 3)
	require.NoError(t, err)

	assert.Equal(t, 1.0, s.Std)
	assert.InDelta(t, 0.0, s.Apply(0.01), 1e-12)
}
