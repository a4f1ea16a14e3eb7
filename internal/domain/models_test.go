package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextTradingDay(t *testing.T) {
	tests := []struct {
		name     string
		date     string
		expected string
	}{
		{
			name:     "midweek advances one day",
			date:     "2026-08-18", // Tuesday
			expected: "2026-08-19",
		},
		{
			name:     "friday skips the weekend",
			date:     "2026-08-21", // Friday
			expected: "2026-08-24", // Monday
		},
		{
			name:     "saturday lands on monday",
			date:     "2026-08-22",
			expected: "2026-08-24",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := NextTradingDay(tt.date)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, next)
		})
	}
}

func TestNextTradingDayRejectsGarbage(t *testing.T) {
	_, err := NextTradingDay("21/08/2026")
	assert.Error(t, err)
}

func TestFanProbabilitiesOrdered(t *testing.T) {
	for i := 1; i < len(FanProbabilities); i++ {
		assert.Less(t, FanProbabilities[i-1], FanProbabilities[i])
	}
}
