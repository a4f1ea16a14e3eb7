package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// CalculateSMASeries calculates the simple moving average for every bar.
// Positions before the first complete window (index < period-1) are NaN.
func CalculateSMASeries(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	if period < 1 || len(closes) < period {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	sma := talib.Sma(closes, period)
	copy(out, sma)

	for i := 0; i < period-1 && i < len(out); i++ {
		out[i] = math.NaN()
	}

	return out
}
