package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// CalculateBollingerPositionSeries calculates where each close sits inside
// its Bollinger band, scaled to [0, 1].
//
//   0.0 = at or below the lower band
//   0.5 = at the middle band
//   1.0 = at or above the upper band
//
// When the band has zero width (flat prices) the position is 0.5.
// Positions before the first complete window are NaN.
func CalculateBollingerPositionSeries(closes []float64, period int, stdDevMult float64) []float64 {
	out := make([]float64, len(closes))
	if period < 2 || len(closes) < period {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	upper, _, lower := talib.BBands(closes, period, stdDevMult, stdDevMult, talib.SMA)

	for i := range closes {
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}

		width := upper[i] - lower[i]
		if width <= 0 {
			out[i] = 0.5
			continue
		}

		position := (closes[i] - lower[i]) / width
		if position < 0 {
			position = 0
		} else if position > 1 {
			position = 1
		}
		out[i] = position
	}

	return out
}
