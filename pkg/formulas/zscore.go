package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// CalculateRollingZScoreSeries calculates how many rolling standard
// deviations each close sits away from its rolling mean.
//
//   z[i] = (close[i] - SMA(window)[i]) / StdDev(window)[i]
//
// A flat window (zero deviation) yields 0. Positions before the first
// complete window are NaN.
func CalculateRollingZScoreSeries(closes []float64, window int) []float64 {
	out := make([]float64, len(closes))
	if window < 2 || len(closes) < window {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	mean := talib.Sma(closes, window)
	std := talib.StdDev(closes, window, 1.0)

	for i := range closes {
		if i < window-1 {
			out[i] = math.NaN()
			continue
		}
		if std[i] <= 0 {
			out[i] = 0
			continue
		}
		out[i] = (closes[i] - mean[i]) / std[i]
	}

	return out
}
