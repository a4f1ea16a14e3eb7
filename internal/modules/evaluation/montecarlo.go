package evaluation

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/skewcast/skewcast/internal/domain"
	"github.com/skewcast/skewcast/internal/modules/density"
	"github.com/skewcast/skewcast/internal/modules/features"
	"github.com/skewcast/skewcast/internal/modules/model"
)

// DefaultPaths is the number of simulated price paths when the caller
// does not ask for a specific count
const DefaultPaths = 200

// HorizonFan is a multi-day price fan built by resampling the model
// day by day along simulated paths
type HorizonFan struct {
	Symbol     string      `json:"symbol"`
	SnapshotID string      `json:"snapshot_id"`
	BaseDate   string      `json:"base_date"`
	BaseClose  float64     `json:"base_close"`
	Horizon    int         `json:"horizon"`
	Paths      int         `json:"paths"`
	Probs      []float64   `json:"probs"`
	Dates      []string    `json:"dates"`
	Bands      [][]float64 `json:"bands"`
	Mean       []float64   `json:"mean"`
}

// SimulateHorizon rolls the one-day model forward over several trading
// days. Each path repeatedly samples a return from the predicted density,
// appends the implied close and re-derives the indicators from the grown
// series, so tomorrow's forecast conditions on today's simulated close.
// Per-day price quantiles across paths form the fan.
func SimulateHorizon(snap *model.Snapshot, closes []domain.DailyClose, horizon, paths int, seed int64) (*HorizonFan, error) {
	if horizon < 1 {
		return nil, fmt.Errorf("horizon must be at least 1, got %d", horizon)
	}
	if paths <= 0 {
		paths = DefaultPaths
	}

	// Fail fast if the history cannot even fill the indicator windows
	if _, _, err := features.LatestVector(closes, snap.FeatureConfig); err != nil {
		return nil, err
	}

	base := closes[len(closes)-1]
	dates := make([]string, horizon)
	day := base.Date
	for i := 0; i < horizon; i++ {
		next, err := domain.NextTradingDay(day)
		if err != nil {
			return nil, fmt.Errorf("failed to derive horizon dates: %w", err)
		}
		dates[i] = next
		day = next
	}

	// Each path only needs the warmup window plus room to grow
	window := snap.FeatureConfig.Warmup() + 1
	tail := closes
	if len(tail) > window {
		tail = tail[len(tail)-window:]
	}

	type pathResult struct {
		pathIdx int
		prices  []float64
		err     error
	}
	results := make(chan pathResult, paths)

	for i := 0; i < paths; i++ {
		go func(pathIdx int) {
			rng := rand.New(rand.NewSource(seed + int64(pathIdx)))

			sim := make([]domain.DailyClose, len(tail), len(tail)+horizon)
			copy(sim, tail)

			prices := make([]float64, horizon)
			for d := 0; d < horizon; d++ {
				vec, last, err := features.LatestVector(sim, snap.FeatureConfig)
				if err != nil {
					results <- pathResult{pathIdx: pathIdx, err: err}
					return
				}

				std := density.ParamsFromRaw(snap.Net.Outputs(snap.FeatureScaler.Transform(vec)))
				dist := density.New(density.Params{
					Loc:   snap.TargetScaler.Invert(std.Loc),
					Scale: std.Scale * snap.TargetScaler.Std,
					Skew:  std.Skew,
					Tail:  std.Tail,
				})

				price := last.Close * math.Exp(dist.Rand(rng))
				prices[d] = price
				sim = append(sim, domain.DailyClose{Date: dates[d], Close: price})
			}

			results <- pathResult{pathIdx: pathIdx, prices: prices}
		}(i)
	}

	// paths x horizon, collected by index so the channel order is irrelevant
	byPath := make([][]float64, paths)
	for i := 0; i < paths; i++ {
		res := <-results
		if res.err != nil {
			return nil, res.err
		}
		byPath[res.pathIdx] = res.prices
	}
	close(results)

	probs := domain.FanProbabilities
	bands := make([][]float64, horizon)
	mean := make([]float64, horizon)
	dayPrices := make([]float64, paths)
	for d := 0; d < horizon; d++ {
		for p := 0; p < paths; p++ {
			dayPrices[p] = byPath[p][d]
		}
		sort.Float64s(dayPrices)

		mean[d] = stat.Mean(dayPrices, nil)
		bands[d] = make([]float64, len(probs))
		for j, prob := range probs {
			bands[d][j] = stat.Quantile(prob, stat.Empirical, dayPrices, nil)
		}
	}

	return &HorizonFan{
		Symbol:     snap.Symbol,
		SnapshotID: snap.ID,
		BaseDate:   base.Date,
		BaseClose:  base.Close,
		Horizon:    horizon,
		Paths:      paths,
		Probs:      probs,
		Dates:      dates,
		Bands:      bands,
		Mean:       mean,
	}, nil
}
