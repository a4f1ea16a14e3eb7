package features

import (
	"errors"
	"fmt"
	"math"

	"github.com/skewcast/skewcast/internal/domain"
	"github.com/skewcast/skewcast/pkg/formulas"
)

// FeatureCount is the width of every feature vector
const FeatureCount = 6

// MinSamples is the smallest usable row count worth training on
const MinSamples = 120

// FeatureNames labels the columns of the feature matrix, in order
var FeatureNames = [FeatureCount]string{
	"ma_fast_ratio",
	"ma_slow_ratio",
	"rsi_centered",
	"return_vol",
	"boll_position",
	"zscore",
}

// ErrInsufficientData signals that too few rows survive warmup to train on
var ErrInsufficientData = errors.New("insufficient usable rows")

// Matrix is a causal training set: the vector in row i is built from
// closes up to its date, and the target is the next day's log return.
type Matrix struct {
	Dates      []string    // feature date per row
	X          [][]float64 // n x FeatureCount
	Targets    []float64   // next-day log return per row
	BaseCloses []float64   // close on the feature date
	Dropped    int         // rows discarded for NaN/Inf values
}

// Rows returns the number of usable samples
func (m *Matrix) Rows() int {
	return len(m.X)
}

// BuildMatrix turns a close series into aligned feature vectors and
// next-day targets. Warmup rows and the final row (which has no next day)
// are dropped, as is any row containing a non-finite value.
func BuildMatrix(closes []domain.DailyClose, cfg Config) (*Matrix, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	prices := make([]float64, len(closes))
	for i, c := range closes {
		prices[i] = c.Close
	}

	columns, err := featureColumns(prices, cfg)
	if err != nil {
		return nil, err
	}

	m := &Matrix{}
	for t := cfg.Warmup(); t < len(closes)-1; t++ {
		row := make([]float64, FeatureCount)
		finite := true
		for f := 0; f < FeatureCount; f++ {
			row[f] = columns[f][t]
			if math.IsNaN(row[f]) || math.IsInf(row[f], 0) {
				finite = false
			}
		}

		target := math.Log(prices[t+1] / prices[t])
		if !finite || math.IsNaN(target) || math.IsInf(target, 0) {
			m.Dropped++
			continue
		}

		m.Dates = append(m.Dates, closes[t].Date)
		m.X = append(m.X, row)
		m.Targets = append(m.Targets, target)
		m.BaseCloses = append(m.BaseCloses, prices[t])
	}

	if m.Rows() < MinSamples {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientData, m.Rows(), MinSamples)
	}

	return m, nil
}

// LatestVector builds the feature vector for the most recent day, the one
// a next-day forecast conditions on.
func LatestVector(closes []domain.DailyClose, cfg Config) ([]float64, domain.DailyClose, error) {
	if err := cfg.Validate(); err != nil {
		return nil, domain.DailyClose{}, err
	}
	if len(closes) <= cfg.Warmup() {
		return nil, domain.DailyClose{}, fmt.Errorf("%w: have %d, warmup needs %d",
			ErrInsufficientData, len(closes), cfg.Warmup()+1)
	}

	prices := make([]float64, len(closes))
	for i, c := range closes {
		prices[i] = c.Close
	}

	columns, err := featureColumns(prices, cfg)
	if err != nil {
		return nil, domain.DailyClose{}, err
	}

	last := len(closes) - 1
	row := make([]float64, FeatureCount)
	for f := 0; f < FeatureCount; f++ {
		row[f] = columns[f][last]
		if math.IsNaN(row[f]) || math.IsInf(row[f], 0) {
			return nil, domain.DailyClose{}, fmt.Errorf("feature %s is not finite on %s",
				FeatureNames[f], closes[last].Date)
		}
	}

	return row, closes[last], nil
}

// featureColumns computes the six indicator series, each aligned to the
// close series
func featureColumns(prices []float64, cfg Config) ([FeatureCount][]float64, error) {
	var cols [FeatureCount][]float64

	smaFast := formulas.CalculateSMASeries(prices, cfg.FastMAPeriod)
	smaSlow := formulas.CalculateSMASeries(prices, cfg.SlowMAPeriod)
	rsi := formulas.CalculateRSISeries(prices, cfg.RSIPeriod)
	vol := formulas.CalculateVolatilitySeries(prices, cfg.VolWindow)
	boll := formulas.CalculateBollingerPositionSeries(prices, cfg.BollPeriod, cfg.BollStdDev)
	zscore := formulas.CalculateRollingZScoreSeries(prices, cfg.ZScoreWindow)

	n := len(prices)
	for f := range cols {
		cols[f] = make([]float64, n)
	}

	for t := 0; t < n; t++ {
		cols[0][t] = prices[t]/smaFast[t] - 1
		cols[1][t] = prices[t]/smaSlow[t] - 1
		cols[2][t] = rsi[t]/100 - 0.5
		cols[3][t] = vol[t]
		cols[4][t] = boll[t] - 0.5
		cols[5][t] = zscore[t]
	}

	return cols, nil
}
