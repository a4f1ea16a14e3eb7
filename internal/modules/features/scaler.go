package features

import (
	"fmt"

	"github.com/skewcast/skewcast/pkg/formulas"
)

// Scaler standardizes feature vectors using moments fitted on the
// training prefix only, so validation rows never leak into the fit.
// The fitted state travels with the model snapshot.
type Scaler struct {
	Means []float64 `json:"means" msgpack:"means"`
	Stds  []float64 `json:"stds" msgpack:"stds"`
}

// FitScaler fits per-column moments on the first `rows` rows of X
func FitScaler(x [][]float64, rows int) (*Scaler, error) {
	if rows < 2 || rows > len(x) {
		return nil, fmt.Errorf("cannot fit scaler on %d of %d rows", rows, len(x))
	}

	width := len(x[0])
	s := &Scaler{
		Means: make([]float64, width),
		Stds:  make([]float64, width),
	}

	column := make([]float64, rows)
	for f := 0; f < width; f++ {
		for i := 0; i < rows; i++ {
			column[i] = x[i][f]
		}
		s.Means[f] = formulas.Mean(column)
		s.Stds[f] = formulas.StdDev(column)
		if s.Stds[f] <= 0 {
			s.Stds[f] = 1 // constant column, pass through centered
		}
	}

	return s, nil
}

// Transform standardizes one feature vector
func (s *Scaler) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		out[i] = (x[i] - s.Means[i]) / s.Stds[i]
	}
	return out
}

// TransformAll standardizes every row of a matrix
func (s *Scaler) TransformAll(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i := range x {
		out[i] = s.Transform(x[i])
	}
	return out
}

// Validate checks the scaler against an expected width
func (s *Scaler) Validate(width int) error {
	if len(s.Means) != width || len(s.Stds) != width {
		return fmt.Errorf("scaler width %d/%d does not match %d features",
			len(s.Means), len(s.Stds), width)
	}
	return nil
}

// TargetScaler standardizes the next-day log-return target. The network
// fits the standardized value; forecasts invert the mapping before any
// price-scale output.
type TargetScaler struct {
	Mean float64 `json:"mean" msgpack:"mean"`
	Std  float64 `json:"std" msgpack:"std"`
}

// FitTargetScaler fits on the first `rows` targets
func FitTargetScaler(targets []float64, rows int) (*TargetScaler, error) {
	if rows < 2 || rows > len(targets) {
		return nil, fmt.Errorf("cannot fit target scaler on %d of %d rows", rows, len(targets))
	}

	window := targets[:rows]
	s := &TargetScaler{
		Mean: formulas.Mean(window),
		Std:  formulas.StdDev(window),
	}
	if s.Std <= 0 {
		s.Std = 1
	}
	return s, nil
}

// Apply standardizes a raw log return
func (s *TargetScaler) Apply(v float64) float64 {
	return (v - s.Mean) / s.Std
}

// Invert maps a standardized value back to the log-return scale
func (s *TargetScaler) Invert(v float64) float64 {
	return v*s.Std + s.Mean
}
