package formulas

// CalculateMaxDrawdown calculates the largest peak-to-trough loss in a
// price series, as a positive fraction (0.25 = 25% below the peak).
func CalculateMaxDrawdown(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}

	maxDrawdown := 0.0
	peak := prices[0]

	for _, price := range prices {
		if price > peak {
			peak = price
		}
		if peak > 0 {
			drawdown := (peak - price) / peak
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}

	return maxDrawdown
}

// CalculateCurrentDrawdown calculates how far the last price sits below
// the running peak of the series, as a positive fraction. Zero when the
// series closed at a new high.
func CalculateCurrentDrawdown(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}

	peak := prices[0]
	for _, price := range prices {
		if price > peak {
			peak = price
		}
	}
	if peak <= 0 {
		return 0
	}

	return (peak - prices[len(prices)-1]) / peak
}
