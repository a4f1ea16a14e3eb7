package evaluation

import (
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skewcast/skewcast/internal/domain"
	"github.com/skewcast/skewcast/internal/marketdata"
	"github.com/skewcast/skewcast/internal/modules/features"
	"github.com/skewcast/skewcast/internal/modules/model"
)

func testSnapshot(symbol string) *model.Snapshot {
	stds := make([]float64, features.FeatureCount)
	for i := range stds {
		stds[i] = 1
	}

	return &model.Snapshot{
		ID:            uuid.New().String(),
		Symbol:        symbol,
		RunID:         uuid.New().String(),
		CreatedAt:     time.Now().UTC(),
		BestValNLL:    1.4,
		FeatureConfig: features.DefaultConfig(),
		FeatureScaler: &features.Scaler{Means: make([]float64, features.FeatureCount), Stds: stds},
		TargetScaler:  &features.TargetScaler{Mean: 0.0002, Std: 0.018},
		Net:           model.NewNetwork(features.FeatureCount, []int{8}, rand.New(rand.NewSource(3))),
	}
}

func testMatrix(t *testing.T) *features.Matrix {
	t.Helper()

	closes := marketdata.GenerateSyntheticCloses(400, 17)
	m, err := features.BuildMatrix(closes, features.DefaultConfig())
	require.NoError(t, err)
	return m
}

// calibratedMatrix samples each target from the snapshot's own predicted
// density, so the PIT values are uniform by construction.
func calibratedMatrix(snap *model.Snapshot, rows int, seed int64) *features.Matrix {
	rng := rand.New(rand.NewSource(seed))
	m := &features.Matrix{}

	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < rows; i++ {
		x := make([]float64, features.FeatureCount)
		for f := range x {
			x[f] = rng.NormFloat64()
		}

		dist := rowDist(snap, x)
		target := snap.TargetScaler.Invert(dist.Rand(rng))

		m.Dates = append(m.Dates, day.AddDate(0, 0, i).Format(domain.DayFormat))
		m.X = append(m.X, x)
		m.Targets = append(m.Targets, target)
		m.BaseCloses = append(m.BaseCloses, 75.0)
	}
	return m
}

func TestPITSeriesStaysInUnitInterval(t *testing.T) {
	snap := testSnapshot("CL")
	m := testMatrix(t)

	points := PITSeries(snap, m)
	require.Len(t, points, m.Rows())
	for _, p := range points {
		assert.GreaterOrEqual(t, p.U, 0.0)
		assert.LessOrEqual(t, p.U, 1.0)
		assert.NotEmpty(t, p.Date)
	}
}

func TestPITHistogramOnExactUniform(t *testing.T) {
	n := 200
	us := make([]float64, n)
	for i := range us {
		us[i] = (float64(i) + 0.5) / float64(n)
	}

	h := PITHistogram(us, DefaultBins)
	require.Len(t, h.Counts, DefaultBins)
	for _, c := range h.Counts {
		assert.Equal(t, 10, c, "an even grid fills every bin equally")
	}
	assert.InDelta(t, 10.0, h.Expected, 1e-12)
	assert.True(t, h.Uniform)
	assert.Less(t, h.KSStat, 0.01)
	assert.InDelta(t, 1.36/math.Sqrt(float64(n)), h.KSCritical, 1e-12)
}

func TestPITHistogramRejectsClusteredSample(t *testing.T) {
	us := make([]float64, 200)
	for i := range us {
		us[i] = 0.85 + 0.1*float64(i)/200
	}

	h := PITHistogram(us, DefaultBins)
	assert.False(t, h.Uniform)
	assert.Greater(t, h.KSStat, 0.5)
}

func TestPITHistogramEdgeValues(t *testing.T) {
	h := PITHistogram([]float64{0, 1, 0.5}, 4)
	assert.Equal(t, 1, h.Counts[0])
	assert.Equal(t, 1, h.Counts[3], "u = 1 lands in the last bin")
	assert.Equal(t, 1, h.Counts[2])

	empty := PITHistogram(nil, 4)
	assert.Equal(t, 0.0, empty.KSStat)
}

func TestDiagnoseOnCalibratedModel(t *testing.T) {
	snap := testSnapshot("CL")
	m := calibratedMatrix(snap, 400, 11)

	d, err := Diagnose(snap, m)
	require.NoError(t, err)

	assert.Equal(t, 400, d.Rows)
	assert.InDelta(t, 0.5, d.MeanPIT, 0.05, "calibrated PIT centers at one half")

	// A sample drawn from the model's own density passes the KS check
	// with room to spare
	assert.Less(t, d.Histogram.KSStat*math.Sqrt(400), 1.95)

	for _, c := range d.Coverage {
		assert.InDelta(t, c.Nominal, c.Observed, 0.08,
			"observed coverage tracks nominal for interval [%v, %v]", c.Lo, c.Hi)
		assert.Equal(t, 400, c.Samples)
	}
}

func TestDiagnoseDetectsMiscalibratedScale(t *testing.T) {
	snap := testSnapshot("CL")
	m := calibratedMatrix(snap, 400, 11)

	// Shrink the scaler std after sampling: the model now believes returns
	// are half as volatile as the data it is scored on, so its intervals
	// must under-cover.
	snap.TargetScaler = &features.TargetScaler{Mean: snap.TargetScaler.Mean, Std: snap.TargetScaler.Std / 2}

	d, err := Diagnose(snap, m)
	require.NoError(t, err)
	for _, c := range d.Coverage {
		assert.Less(t, c.Observed, c.Nominal, "overconfident model under-covers [%v, %v]", c.Lo, c.Hi)
	}
	assert.False(t, d.Histogram.Uniform)
}

func TestFanBandsAreMonotone(t *testing.T) {
	snap := testSnapshot("CL")
	m := testMatrix(t)

	points := Fan(snap, m, domain.FanProbabilities, 0)
	require.Len(t, points, m.Rows())

	for _, pt := range points {
		require.Len(t, pt.Bands, len(domain.FanProbabilities))
		for j := 1; j < len(pt.Bands); j++ {
			assert.Greater(t, pt.Bands[j], pt.Bands[j-1],
				"bands must rise with probability on %s", pt.Date)
		}
		assert.Greater(t, pt.Close, 0.0)
	}
}

func TestFanRealizedMatchesNextClose(t *testing.T) {
	snap := testSnapshot("CL")
	m := testMatrix(t)

	points := Fan(snap, m, domain.FanProbabilities, 0)
	for i, pt := range points {
		want := m.BaseCloses[i] * math.Exp(m.Targets[i])
		assert.InDelta(t, want, pt.Realized, 1e-9)
	}
}

func TestFanLastNTruncates(t *testing.T) {
	snap := testSnapshot("CL")
	m := testMatrix(t)

	points := Fan(snap, m, domain.FanProbabilities, 30)
	require.Len(t, points, 30)
	assert.Equal(t, m.Dates[m.Rows()-30], points[0].Date)
	assert.Equal(t, m.Dates[m.Rows()-1], points[len(points)-1].Date)
}

func TestDiagnoseRejectsEmptyMatrix(t *testing.T) {
	_, err := Diagnose(testSnapshot("CL"), &features.Matrix{})
	assert.Error(t, err)
}

func TestCoverageIntervalWidths(t *testing.T) {
	snap := testSnapshot("CL")
	m := testMatrix(t)

	coverage := Coverage(snap, m)
	require.Len(t, coverage, 3)
	for i, c := range coverage {
		assert.InDelta(t, c.Hi-c.Lo, c.Nominal, 1e-12, fmt.Sprintf("interval %d", i))
		assert.GreaterOrEqual(t, c.Observed, 0.0)
		assert.LessOrEqual(t, c.Observed, 1.0)
	}
}
