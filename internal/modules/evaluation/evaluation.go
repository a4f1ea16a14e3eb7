// Package evaluation scores a trained snapshot against historical rows:
// probability integral transforms, interval coverage and quantile fans.
// A well calibrated density pushes its realized targets through their own
// CDF into a uniform sample, so most checks here reduce to checks on that
// uniformity.
package evaluation

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/skewcast/skewcast/internal/modules/density"
	"github.com/skewcast/skewcast/internal/modules/features"
	"github.com/skewcast/skewcast/internal/modules/model"
)

// DefaultBins is the PIT histogram resolution
const DefaultBins = 20

// PITPoint is one probability integral transform value
type PITPoint struct {
	Date string  `json:"date"`
	U    float64 `json:"u"`
}

// Histogram summarizes PIT uniformity with a Kolmogorov-Smirnov check
// against the uniform distribution at the 5% level.
type Histogram struct {
	Bins       int     `json:"bins"`
	Counts     []int   `json:"counts"`
	Expected   float64 `json:"expected"`
	KSStat     float64 `json:"ks_stat"`
	KSCritical float64 `json:"ks_critical"`
	Uniform    bool    `json:"uniform"`
}

// IntervalCoverage compares nominal and observed coverage of one central
// prediction interval
type IntervalCoverage struct {
	Nominal  float64 `json:"nominal"`
	Lo       float64 `json:"lo"`
	Hi       float64 `json:"hi"`
	Observed float64 `json:"observed"`
	Samples  int     `json:"samples"`
}

// FanPoint is one day of the historical quantile fan: the price bands the
// model predicted for the next session and the close it actually printed.
type FanPoint struct {
	Date     string    `json:"date"`
	Close    float64   `json:"close"`
	Bands    []float64 `json:"bands"`
	Realized float64   `json:"realized"`
}

// Diagnostics bundles the calibration report of one snapshot
type Diagnostics struct {
	Symbol    string             `json:"symbol"`
	Rows      int                `json:"rows"`
	MeanNLL   float64            `json:"mean_nll"`
	MeanPIT   float64            `json:"mean_pit"`
	PIT       []PITPoint         `json:"pit"`
	Histogram Histogram          `json:"histogram"`
	Coverage  []IntervalCoverage `json:"coverage"`
}

// coverageIntervals are the central intervals reported by Diagnose,
// the pairs behind the published fan levels
var coverageIntervals = [][2]float64{
	{0.25, 0.75},
	{0.10, 0.90},
	{0.05, 0.95},
}

// rowDist evaluates the snapshot's network on one raw feature row and
// returns the standardized-scale distribution.
func rowDist(snap *model.Snapshot, x []float64) density.SkewT {
	raw := snap.Net.Outputs(snap.FeatureScaler.Transform(x))
	return density.New(density.ParamsFromRaw(raw))
}

// PITSeries pushes every realized target through its forecast CDF
func PITSeries(snap *model.Snapshot, m *features.Matrix) []PITPoint {
	points := make([]PITPoint, m.Rows())
	for i := range m.X {
		dist := rowDist(snap, m.X[i])
		points[i] = PITPoint{
			Date: m.Dates[i],
			U:    dist.CDF(snap.TargetScaler.Apply(m.Targets[i])),
		}
	}
	return points
}

// PITHistogram bins PIT values and runs the KS uniformity check
func PITHistogram(us []float64, bins int) Histogram {
	n := len(us)
	h := Histogram{
		Bins:     bins,
		Counts:   make([]int, bins),
		Expected: float64(n) / float64(bins),
	}
	if n == 0 {
		return h
	}

	for _, u := range us {
		idx := int(u * float64(bins))
		if idx >= bins {
			idx = bins - 1
		}
		if idx < 0 {
			idx = 0
		}
		h.Counts[idx]++
	}

	sorted := append([]float64{}, us...)
	sort.Float64s(sorted)

	d := 0.0
	for i, u := range sorted {
		if upper := float64(i+1)/float64(n) - u; upper > d {
			d = upper
		}
		if lower := u - float64(i)/float64(n); lower > d {
			d = lower
		}
	}

	h.KSStat = d
	h.KSCritical = 1.36 / math.Sqrt(float64(n))
	h.Uniform = d < h.KSCritical
	return h
}

// Coverage measures how often realized targets land inside the central
// prediction intervals
func Coverage(snap *model.Snapshot, m *features.Matrix) []IntervalCoverage {
	out := make([]IntervalCoverage, len(coverageIntervals))
	for k, iv := range coverageIntervals {
		lo, hi := iv[0], iv[1]
		inside := 0
		for i := range m.X {
			dist := rowDist(snap, m.X[i])
			y := snap.TargetScaler.Apply(m.Targets[i])
			if y >= dist.Quantile(lo) && y <= dist.Quantile(hi) {
				inside++
			}
		}
		out[k] = IntervalCoverage{
			Nominal:  hi - lo,
			Lo:       lo,
			Hi:       hi,
			Observed: float64(inside) / float64(m.Rows()),
			Samples:  m.Rows(),
		}
	}
	return out
}

// Fan builds the trailing quantile fan: one point per row, with the price
// bands for the next session evaluated at probs. With lastN > 0 only the
// most recent rows are returned.
func Fan(snap *model.Snapshot, m *features.Matrix, probs []float64, lastN int) []FanPoint {
	start := 0
	if lastN > 0 && m.Rows() > lastN {
		start = m.Rows() - lastN
	}

	points := make([]FanPoint, 0, m.Rows()-start)
	for i := start; i < m.Rows(); i++ {
		dist := rowDist(snap, m.X[i])
		base := m.BaseCloses[i]

		bands := make([]float64, len(probs))
		for j, p := range probs {
			r := snap.TargetScaler.Invert(dist.Quantile(p))
			bands[j] = base * math.Exp(r)
		}

		points = append(points, FanPoint{
			Date:     m.Dates[i],
			Close:    base,
			Bands:    bands,
			Realized: base * math.Exp(m.Targets[i]),
		})
	}
	return points
}

// Diagnose assembles the full calibration report for a snapshot
func Diagnose(snap *model.Snapshot, m *features.Matrix) (*Diagnostics, error) {
	if m.Rows() == 0 {
		return nil, fmt.Errorf("cannot diagnose on an empty matrix")
	}
	if err := snap.FeatureScaler.Validate(features.FeatureCount); err != nil {
		return nil, err
	}

	d := &Diagnostics{Symbol: snap.Symbol, Rows: m.Rows()}

	totalNLL := 0.0
	for i := range m.X {
		dist := rowDist(snap, m.X[i])
		totalNLL += -dist.LogProb(snap.TargetScaler.Apply(m.Targets[i]))
	}
	d.MeanNLL = totalNLL / float64(m.Rows())

	d.PIT = PITSeries(snap, m)
	us := make([]float64, len(d.PIT))
	for i, p := range d.PIT {
		us[i] = p.U
	}
	d.MeanPIT = stat.Mean(us, nil)
	d.Histogram = PITHistogram(us, DefaultBins)
	d.Coverage = Coverage(snap, m)

	return d, nil
}
