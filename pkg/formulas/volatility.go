package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// CalculateVolatilitySeries calculates the rolling standard deviation of
// daily log returns, aligned to the closing-price series.
//
// The value at index i is the standard deviation of the `window` most recent
// log returns ending at bar i. The first `window` positions are NaN because
// a return needs two bars and the window needs `window` returns.
func CalculateVolatilitySeries(closes []float64, window int) []float64 {
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = math.NaN()
	}
	if window < 2 || len(closes) < window+1 {
		return out
	}

	returns := CalculateLogReturns(closes)
	stdRet := talib.StdDev(returns, window, 1.0)

	// returns[k] covers closes[k] -> closes[k+1], so the window ending at
	// returns index k maps to closes index k+1
	for k := window - 1; k < len(stdRet); k++ {
		out[k+1] = stdRet[k]
	}

	return out
}
