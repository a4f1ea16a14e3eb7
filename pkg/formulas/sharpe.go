package formulas

import "math"

// CalculateSharpeRatio calculates the annualized Sharpe ratio from daily
// returns. Formula: (mean excess return / std dev) * sqrt(252), with the
// risk-free rate given annually. Returns 0 when the series is too short
// or has no variance.
func CalculateSharpeRatio(dailyReturns []float64, riskFreeRate float64) float64 {
	if len(dailyReturns) < 2 {
		return 0
	}

	stdDev := StdDev(dailyReturns)
	if stdDev == 0 {
		return 0
	}

	dailyRiskFree := riskFreeRate / 252
	sharpe := (Mean(dailyReturns) - dailyRiskFree) / stdDev

	return sharpe * math.Sqrt(252)
}
