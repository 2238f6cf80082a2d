// Package charts renders the dashboard charts as SVG with gonum/plot.
package charts

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// ErrNoData is returned when no finite value is left to plot.
var ErrNoData = errors.New("no plottable values")

// DefaultBins is the histogram bin count.
const DefaultBins = 30

var (
	barColor   = color.RGBA{R: 70, G: 130, B: 180, A: 255}
	lineColor  = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	pointColor = color.RGBA{R: 31, G: 119, B: 180, A: 160}
)

// Options are shared by every chart.
type Options struct {
	Title  string
	XLabel string
	YLabel string
	Width  vg.Length
	Height vg.Length
}

func (o Options) size() (vg.Length, vg.Length) {
	w, h := o.Width, o.Height
	if w <= 0 {
		w = 8 * vg.Inch
	}
	if h <= 0 {
		h = 4 * vg.Inch
	}
	return w, h
}

func newPlot(o Options) *plot.Plot {
	p := plot.New()
	p.Title.Text = o.Title
	p.Title.TextStyle.Font.Size = vg.Points(14)
	p.X.Label.Text = o.XLabel
	p.Y.Label.Text = o.YLabel
	p.Add(plotter.NewGrid())
	return p
}

func render(p *plot.Plot, o Options) ([]byte, error) {
	w, h := o.size()
	wt, err := p.WriterTo(w, h, "svg")
	if err != nil {
		return nil, fmt.Errorf("failed to create svg canvas: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to render svg: %w", err)
	}
	return buf.Bytes(), nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// nominal keeps the label/value pairs whose value is finite.
func nominal(labels []string, values []float64) ([]string, plotter.Values) {
	var keptLabels []string
	var kept plotter.Values
	for i, v := range values {
		if i >= len(labels) || !finite(v) {
			continue
		}
		keptLabels = append(keptLabels, labels[i])
		kept = append(kept, v)
	}
	return keptLabels, kept
}

func rotateTicks(p *plot.Plot, n int) {
	if n > 6 {
		p.X.Tick.Label.Rotation = math.Pi / 4
		p.X.Tick.Label.XAlign = draw.XRight
		p.X.Tick.Label.YAlign = draw.YCenter
	}
}

// Bar draws one bar per label.
func Bar(labels []string, values []float64, o Options) ([]byte, error) {
	names, vals := nominal(labels, values)
	if len(vals) == 0 {
		return nil, ErrNoData
	}

	p := newPlot(o)
	bars, err := plotter.NewBarChart(vals, vg.Points(18))
	if err != nil {
		return nil, fmt.Errorf("failed to build bar chart: %w", err)
	}
	bars.Color = barColor
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalX(names...)
	rotateTicks(p, len(names))
	return render(p, o)
}

// Line draws the values as a line with point markers, one point per label.
func Line(labels []string, values []float64, o Options) ([]byte, error) {
	names, vals := nominal(labels, values)
	if len(vals) == 0 {
		return nil, ErrNoData
	}

	pts := make(plotter.XYs, len(vals))
	for i, v := range vals {
		pts[i] = plotter.XY{X: float64(i), Y: v}
	}

	p := newPlot(o)
	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return nil, fmt.Errorf("failed to build line chart: %w", err)
	}
	line.Color = lineColor
	line.Width = vg.Points(2)
	points.Color = lineColor
	points.Shape = draw.CircleGlyph{}
	points.Radius = vg.Points(3)
	p.Add(line, points)
	p.NominalX(names...)
	rotateTicks(p, len(names))
	return render(p, o)
}

// Scatter draws one point per (x, y) pair; pairs with a missing side are skipped.
func Scatter(x, y []float64, o Options) ([]byte, error) {
	var pts plotter.XYs
	for i := range x {
		if i >= len(y) || !finite(x[i]) || !finite(y[i]) {
			continue
		}
		pts = append(pts, plotter.XY{X: x[i], Y: y[i]})
	}
	if len(pts) == 0 {
		return nil, ErrNoData
	}

	p := newPlot(o)
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, fmt.Errorf("failed to build scatter: %w", err)
	}
	s.GlyphStyle.Color = pointColor
	s.GlyphStyle.Shape = draw.CircleGlyph{}
	s.GlyphStyle.Radius = vg.Points(2.5)
	p.Add(s)
	return render(p, o)
}

// GroupedMeanBar draws one bar per group at the mean of its finite values.
// Groups without finite values are left out.
func GroupedMeanBar(groups []string, values [][]float64, o Options) ([]byte, error) {
	means := make([]float64, len(groups))
	for i := range groups {
		means[i] = math.NaN()
		if i >= len(values) {
			continue
		}
		var kept []float64
		for _, v := range values[i] {
			if finite(v) {
				kept = append(kept, v)
			}
		}
		if len(kept) > 0 {
			means[i] = stat.Mean(kept, nil)
		}
	}
	return Bar(groups, means, o)
}

// Box draws one box per group. Groups with no finite value are dropped.
func Box(groups []string, values [][]float64, o Options) ([]byte, error) {
	p := newPlot(o)
	var names []string
	for i, vs := range values {
		if i >= len(groups) {
			break
		}
		var kept plotter.Values
		for _, v := range vs {
			if finite(v) {
				kept = append(kept, v)
			}
		}
		if len(kept) == 0 {
			continue
		}
		box, err := plotter.NewBoxPlot(vg.Points(20), float64(len(names)), kept)
		if err != nil {
			return nil, fmt.Errorf("failed to build box for %q: %w", groups[i], err)
		}
		box.FillColor = barColor
		p.Add(box)
		names = append(names, groups[i])
	}
	if len(names) == 0 {
		return nil, ErrNoData
	}
	p.NominalX(names...)
	rotateTicks(p, len(names))
	return render(p, o)
}

// Histogram draws the distribution of values in bins equal-width bins
// (DefaultBins when bins <= 0).
func Histogram(values []float64, bins int, o Options) ([]byte, error) {
	var kept plotter.Values
	for _, v := range values {
		if finite(v) {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return nil, ErrNoData
	}
	if bins <= 0 {
		bins = DefaultBins
	}

	p := newPlot(o)
	h, err := plotter.NewHist(kept, bins)
	if err != nil {
		return nil, fmt.Errorf("failed to build histogram: %w", err)
	}
	h.FillColor = barColor
	p.Add(h)
	return render(p, o)
}
