package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMean(t *testing.T) {
	tests := []struct {
		name     string
		data     []float64
		expected float64
	}{
		{
			name:     "simple average",
			data:     []float64{1, 2, 3, 4, 5},
			expected: 3.0,
		},
		{
			name:     "single value",
			data:     []float64{42},
			expected: 42.0,
		},
		{
			name:     "empty slice returns zero",
			data:     []float64{},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Mean(tt.data), 1e-9)
		})
	}
}

func TestStdDev(t *testing.T) {
	// Sample standard deviation (n-1 denominator)
	data := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 2.13809, StdDev(data), 1e-4)
	assert.Equal(t, 0.0, StdDev(nil))
}

func TestCalculateReturns(t *testing.T) {
	prices := []float64{100, 110, 99}
	returns := CalculateReturns(prices)

	assert.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0], 1e-9)
	assert.InDelta(t, -0.10, returns[1], 1e-9)

	assert.Empty(t, CalculateReturns([]float64{100}))
}

func TestCalculateLogReturns(t *testing.T) {
	prices := []float64{100, 110, 99}
	returns := CalculateLogReturns(prices)

	assert.Len(t, returns, 2)
	assert.InDelta(t, math.Log(1.10), returns[0], 1e-12)
	assert.InDelta(t, math.Log(0.90), returns[1], 1e-12)
}

func TestAnnualizedVolatility(t *testing.T) {
	returns := []float64{0.01, -0.01, 0.01, -0.01}

	expected := StdDev(returns) * math.Sqrt(252)
	assert.InDelta(t, expected, AnnualizedVolatility(returns), 1e-12)
	assert.Equal(t, 0.0, AnnualizedVolatility(nil))
}
