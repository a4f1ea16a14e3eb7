package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// CalculateRSISeries calculates the Relative Strength Index for every bar.
//
// RSI Formula:
//   RSI = 100 - (100 / (1 + RS))
//   where RS = Average Gain / Average Loss over N periods
//
// The result has the same length as closes. Positions before the first
// complete period (index < length) are NaN.
func CalculateRSISeries(closes []float64, length int) []float64 {
	out := make([]float64, len(closes))
	if len(closes) < length+1 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	rsi := talib.Rsi(closes, length)
	copy(out, rsi)

	// talib fills the warmup region with zeros; mark it unusable instead
	for i := 0; i < length && i < len(out); i++ {
		out[i] = math.NaN()
	}

	return out
}
