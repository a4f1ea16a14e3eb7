// Package plotting renders training and calibration charts to PNG files.
// It draws the chart payloads assembled by the charts service, so the CLI
// and the HTTP API share one source of chart data.
package plotting

import (
	"fmt"
	"image/color"
	"math"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/skewcast/skewcast/internal/domain"
	"github.com/skewcast/skewcast/internal/modules/charts"
)

var (
	trainColor    = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	valColor      = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	realizedColor = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	expectedColor = color.RGBA{R: 120, G: 120, B: 120, A: 255}
	barColor      = color.RGBA{R: 100, G: 120, B: 200, A: 255}
)

// bandColor fades the fan lines toward the tails so the median stands out
func bandColor(p float64) color.Color {
	d := math.Abs(p-0.5) * 2
	v := uint8(110 + 120*d)
	return color.RGBA{R: v, G: v, B: 255, A: 255}
}

func newPlot(title, xLabel, yLabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.Add(plotter.NewGrid())
	return p
}

// SaveLossCurve writes the per-epoch train/validation NLL of one run,
// marking the epoch whose weights the snapshot kept.
func SaveLossCurve(curve *charts.LossCurve, path string) error {
	p := newPlot(fmt.Sprintf("%s training loss (run %s)", curve.Symbol, curve.RunID),
		"epoch", "NLL")

	train := make(plotter.XYs, len(curve.Epochs))
	val := make(plotter.XYs, len(curve.Epochs))
	for i, ep := range curve.Epochs {
		train[i].X = float64(ep)
		train[i].Y = curve.Train[i]
		val[i].X = float64(ep)
		val[i].Y = curve.Val[i]
	}

	trainLine, err := plotter.NewLine(train)
	if err != nil {
		return fmt.Errorf("failed to build train line: %w", err)
	}
	trainLine.Color = trainColor

	valLine, err := plotter.NewLine(val)
	if err != nil {
		return fmt.Errorf("failed to build validation line: %w", err)
	}
	valLine.Color = valColor

	p.Add(trainLine, valLine)
	p.Legend.Add("train", trainLine)
	p.Legend.Add("val", valLine)
	p.Legend.Top = true

	bestVal := math.NaN()
	for i, ep := range curve.Epochs {
		if ep == curve.BestEpoch {
			bestVal = curve.Val[i]
			break
		}
	}
	if !math.IsNaN(bestVal) {
		best, err := plotter.NewScatter(plotter.XYs{{X: float64(curve.BestEpoch), Y: bestVal}})
		if err != nil {
			return fmt.Errorf("failed to build best-epoch marker: %w", err)
		}
		best.GlyphStyle.Shape = draw.CircleGlyph{}
		best.GlyphStyle.Radius = vg.Points(4)
		best.GlyphStyle.Color = valColor
		p.Add(best)
		p.Legend.Add("best epoch", best)
	}

	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}

// SaveFanChart writes the trailing quantile fan: one line per published
// probability level plus the closes that actually printed.
func SaveFanChart(fan *charts.FanChart, path string) error {
	if len(fan.Dates) == 0 {
		return fmt.Errorf("fan chart for %s has no points", fan.Symbol)
	}

	xs := make([]float64, len(fan.Dates))
	for i, d := range fan.Dates {
		t, err := time.Parse(domain.DayFormat, d)
		if err != nil {
			return fmt.Errorf("bad fan date %q: %w", d, err)
		}
		xs[i] = float64(t.Unix())
	}

	p := newPlot(fmt.Sprintf("%s next-session quantile fan", fan.Symbol), "", "price")
	p.X.Tick.Marker = plot.TimeTicks{Format: domain.DayFormat}

	for j, prob := range fan.Probs {
		band := make(plotter.XYs, len(xs))
		for i := range xs {
			band[i].X = xs[i]
			band[i].Y = fan.Bands[i][j]
		}
		line, err := plotter.NewLine(band)
		if err != nil {
			return fmt.Errorf("failed to build band line: %w", err)
		}
		line.Color = bandColor(prob)
		if prob == 0.5 {
			line.Width = vg.Points(1.5)
		}
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("q%02.0f", prob*100), line)
	}

	realized := make(plotter.XYs, len(xs))
	for i := range xs {
		realized[i].X = xs[i]
		realized[i].Y = fan.Realized[i]
	}
	realLine, err := plotter.NewLine(realized)
	if err != nil {
		return fmt.Errorf("failed to build realized line: %w", err)
	}
	realLine.Color = realizedColor
	p.Add(realLine)
	p.Legend.Add("realized", realLine)
	p.Legend.Top = true
	p.Legend.Left = true

	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}

// SavePITChart writes the PIT histogram with the uniform-expected count
// overlaid as a dashed line.
func SavePITChart(pit *charts.PITChart, path string) error {
	bins := pit.Histogram.Bins
	if bins == 0 || len(pit.Histogram.Counts) != bins {
		return fmt.Errorf("PIT histogram for %s is empty", pit.Symbol)
	}

	counts := make(plotter.Values, bins)
	for i, c := range pit.Histogram.Counts {
		counts[i] = float64(c)
	}

	p := newPlot(fmt.Sprintf("%s PIT histogram (%d rows)", pit.Symbol, pit.Rows),
		"PIT bin", "count")

	bars, err := plotter.NewBarChart(counts, vg.Points(18))
	if err != nil {
		return fmt.Errorf("failed to build histogram bars: %w", err)
	}
	bars.Color = barColor
	bars.LineStyle.Width = 0
	p.Add(bars)

	labels := make([]string, bins)
	for i := range labels {
		labels[i] = fmt.Sprintf("%.2f", (float64(i)+0.5)/float64(bins))
	}
	p.NominalX(labels...)

	expected, err := plotter.NewLine(plotter.XYs{
		{X: -0.5, Y: pit.Histogram.Expected},
		{X: float64(bins) - 0.5, Y: pit.Histogram.Expected},
	})
	if err != nil {
		return fmt.Errorf("failed to build expected line: %w", err)
	}
	expected.Color = expectedColor
	expected.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
	p.Add(expected)
	p.Legend.Add("uniform", expected)
	p.Legend.Top = true

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
