package forecast

import (
	"math"
	"time"

	"github.com/skewcast/skewcast/internal/modules/density"
)

// Forecast is one published next-day density. The parameters live on the
// log-return scale; price-level output is derived from them against the
// base close they condition on.
type Forecast struct {
	ID         string         `json:"id"`
	Symbol     string         `json:"symbol"`
	SnapshotID string         `json:"snapshot_id"`
	BaseDate   string         `json:"base_date"`
	TargetDate string         `json:"target_date"`
	BaseClose  float64        `json:"base_close"`
	Params     density.Params `json:"params"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Dist returns the return-scale distribution of the forecast
func (f *Forecast) Dist() density.SkewT {
	return density.New(f.Params)
}

// QuantilePoint pairs one probability level with its log return and the
// implied price
type QuantilePoint struct {
	P      float64 `json:"p"`
	Return float64 `json:"return"`
	Price  float64 `json:"price"`
}

// Quantiles evaluates the forecast at the given probability levels. Prices
// inherit strict monotonicity from the return quantiles because exp is
// increasing.
func (f *Forecast) Quantiles(probs []float64) []QuantilePoint {
	dist := f.Dist()
	points := make([]QuantilePoint, len(probs))
	for i, p := range probs {
		r := dist.Quantile(p)
		points[i] = QuantilePoint{
			P:      p,
			Return: r,
			Price:  f.BaseClose * math.Exp(r),
		}
	}
	return points
}

// PriceQuantile returns the price level with P(price <= x) = p
func (f *Forecast) PriceQuantile(p float64) float64 {
	return f.BaseClose * math.Exp(f.Dist().Quantile(p))
}
