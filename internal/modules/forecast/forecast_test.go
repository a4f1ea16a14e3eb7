package forecast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skewcast/skewcast/internal/domain"
	"github.com/skewcast/skewcast/internal/modules/density"
)

func testForecast(symbol string) *Forecast {
	return &Forecast{
		ID:         "f-1",
		Symbol:     symbol,
		SnapshotID: "snap-1",
		BaseDate:   "2026-08-21",
		TargetDate: "2026-08-24",
		BaseClose:  74.30,
		Params: density.Params{
			Loc:   0.0004,
			Scale: 0.0185,
			Skew:  -0.35,
			Tail:  1.08,
		},
		CreatedAt: time.Date(2026, 8, 21, 23, 30, 0, 0, time.UTC),
	}
}

func TestQuantilesAreMonotone(t *testing.T) {
	f := testForecast("CL")
	points := f.Quantiles(domain.FanProbabilities)

	require.Len(t, points, len(domain.FanProbabilities))
	for i, pt := range points {
		assert.Equal(t, domain.FanProbabilities[i], pt.P)
		assert.Greater(t, pt.Price, 0.0)
		if i > 0 {
			assert.Greater(t, pt.Return, points[i-1].Return)
			assert.Greater(t, pt.Price, points[i-1].Price)
		}
	}
}

func TestQuantilesMatchPriceQuantile(t *testing.T) {
	f := testForecast("CL")
	points := f.Quantiles([]float64{0.05, 0.5, 0.95})

	for _, pt := range points {
		assert.InDelta(t, f.PriceQuantile(pt.P), pt.Price, 1e-12)
	}
}

func TestMedianPriceAtZeroLocation(t *testing.T) {
	f := testForecast("CL")
	f.Params = density.Params{Loc: 0, Scale: 0.02, Skew: 0, Tail: 1}

	// With a symmetric density centered at zero return, the median price
	// is the base close itself
	assert.InDelta(t, f.BaseClose, f.PriceQuantile(0.5), 1e-9)
}

func TestPricesBracketBaseCloseForSmallReturns(t *testing.T) {
	f := testForecast("CL")
	points := f.Quantiles(domain.FanProbabilities)

	// Daily return quantiles are a few percent, so the fan straddles the
	// base close within a narrow band
	low, high := points[0].Price, points[len(points)-1].Price
	assert.Less(t, low, f.BaseClose)
	assert.Greater(t, high, f.BaseClose)
	assert.Greater(t, low, f.BaseClose*0.8)
	assert.Less(t, high, f.BaseClose*1.2)
}
