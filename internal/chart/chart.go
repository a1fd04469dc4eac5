// Package chart renders dashboard series as PNG images with gonum/plot.
package chart

import (
	"bytes"
	"fmt"
	"image/color"
	"math"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"finboard/internal/core"
)

// Labels are the title and axis captions of a chart.
type Labels struct {
	Title string
	X     string
	Y     string
}

var (
	Width  = 10 * vg.Inch
	Height = 5 * vg.Inch

	blue   = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	purple = color.RGBA{R: 128, G: 0, B: 128, A: 255}
	steel  = color.RGBA{R: 70, G: 130, B: 180, A: 255}

	shareColors = []color.Color{
		color.RGBA{R: 0xff, G: 0x99, B: 0x99, A: 255},
		color.RGBA{R: 0x66, G: 0xb3, B: 0xff, A: 255},
		color.RGBA{R: 0x99, G: 0xff, B: 0x99, A: 255},
	}
)

func newPlot(l Labels) *plot.Plot {
	p := plot.New()
	p.Title.Text = l.Title
	p.Title.TextStyle.Font.Size = vg.Points(14)
	p.X.Label.Text = l.X
	p.Y.Label.Text = l.Y
	return p
}

func render(p *plot.Plot) ([]byte, error) {
	wt, err := p.WriterTo(Width, Height, "png")
	if err != nil {
		return nil, fmt.Errorf("render %q: %w", p.Title.Text, err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode %q: %w", p.Title.Text, err)
	}
	return buf.Bytes(), nil
}

// NoData renders an empty plot carrying only the title and a notice.
func NoData(title string) ([]byte, error) {
	p := plot.New()
	p.Title.Text = title
	p.HideAxes()
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1

	notice, err := plotter.NewLabels(plotter.XYLabels{
		XYs:    []plotter.XY{{X: 0.5, Y: 0.5}},
		Labels: []string{"no data"},
	})
	if err != nil {
		return nil, err
	}
	notice.TextStyle[0].XAlign = draw.XCenter
	notice.TextStyle[0].Font.Size = vg.Points(18)
	p.Add(notice)
	return render(p)
}

// Line plots a time series with point markers and dated ticks.
func Line(l Labels, points []core.TimePoint) ([]byte, error) {
	if len(points) == 0 {
		return NoData(l.Title)
	}
	p := newPlot(l)
	p.X.Tick.Marker = plot.TimeTicks{Format: time.DateOnly}

	xys := make(plotter.XYs, len(points))
	for i, pt := range points {
		xys[i].X = float64(pt.Date.Unix())
		xys[i].Y = pt.Value
	}
	line, marks, err := plotter.NewLinePoints(xys)
	if err != nil {
		return nil, err
	}
	line.Color = blue
	line.Width = vg.Points(1.5)
	marks.GlyphStyle.Color = blue
	marks.GlyphStyle.Shape = draw.CircleGlyph{}

	p.Add(plotter.NewGrid(), line, marks)
	return render(p)
}

// GroupLine joins grouped values in their given order, one tick per key.
func GroupLine(l Labels, groups []core.GroupValue) ([]byte, error) {
	if len(groups) == 0 {
		return NoData(l.Title)
	}
	p := newPlot(l)
	xys := make(plotter.XYs, len(groups))
	keys := make([]string, len(groups))
	for i, g := range groups {
		xys[i].X = float64(i)
		xys[i].Y = g.Value.Number
		keys[i] = g.Key
	}
	line, marks, err := plotter.NewLinePoints(xys)
	if err != nil {
		return nil, err
	}
	line.Color = blue
	marks.GlyphStyle.Shape = draw.CircleGlyph{}
	p.Add(plotter.NewGrid(), line, marks)
	p.NominalX(keys...)
	return render(p)
}

// Bar draws one bar per group. Horizontal bars put the keys on the Y axis.
func Bar(l Labels, groups []core.GroupValue, horizontal bool) ([]byte, error) {
	if len(groups) == 0 {
		return NoData(l.Title)
	}
	p := newPlot(l)
	values := make(plotter.Values, len(groups))
	keys := make([]string, len(groups))
	for i, g := range groups {
		values[i] = g.Value.Number
		keys[i] = g.Key
	}
	bars, err := plotter.NewBarChart(values, vg.Points(20))
	if err != nil {
		return nil, err
	}
	bars.Color = steel
	bars.LineStyle.Width = vg.Length(0)
	bars.Horizontal = horizontal

	p.Add(bars)
	if horizontal {
		p.NominalY(keys...)
	} else {
		p.NominalX(keys...)
	}
	return render(p)
}

// Histogram draws precomputed bins.
func Histogram(l Labels, bins []core.Bin) ([]byte, error) {
	if len(bins) == 0 {
		return NoData(l.Title)
	}
	p := newPlot(l)
	h := &plotter.Histogram{
		Bins:      make([]plotter.HistogramBin, len(bins)),
		Width:     bins[0].Upper - bins[0].Lower,
		FillColor: purple,
		LineStyle: plotter.DefaultLineStyle,
	}
	for i, b := range bins {
		h.Bins[i] = plotter.HistogramBin{Min: b.Lower, Max: b.Upper, Weight: float64(b.Count)}
	}
	p.Add(plotter.NewGrid(), h)
	return render(p)
}

// Scatter draws one series per point label and style. Labels pick the
// colour and styles pick the marker shape, so both stay readable in the
// legend.
func Scatter(l Labels, points []core.Point) ([]byte, error) {
	if len(points) == 0 {
		return NoData(l.Title)
	}
	p := newPlot(l)
	p.Add(plotter.NewGrid())

	for _, g := range groupPoints(points) {
		s, err := plotter.NewScatter(g.xys)
		if err != nil {
			return nil, err
		}
		s.GlyphStyle.Color = plotutil.Color(g.color)
		s.GlyphStyle.Shape = plotutil.Shape(g.shape)
		s.GlyphStyle.Radius = vg.Points(3)
		p.Add(s)
		p.Legend.Add(g.name, s)
	}
	p.Legend.Top = true
	return render(p)
}

type pointGroup struct {
	name         string
	color, shape int
	xys          plotter.XYs
}

// groupPoints splits points by (Label, Style) in order of first appearance.
func groupPoints(points []core.Point) []pointGroup {
	var (
		groups []pointGroup
		index  = make(map[[2]string]int)
		colors = make(map[string]int)
		shapes = make(map[string]int)
	)
	for _, pt := range points {
		key := [2]string{pt.Label, pt.Style}
		i, ok := index[key]
		if !ok {
			if _, seen := colors[pt.Label]; !seen {
				colors[pt.Label] = len(colors)
			}
			if _, seen := shapes[pt.Style]; !seen {
				shapes[pt.Style] = len(shapes)
			}
			name := pt.Label
			if pt.Style != "" {
				name += " / " + pt.Style
			}
			i = len(groups)
			index[key] = i
			groups = append(groups, pointGroup{name: name, color: colors[pt.Label], shape: shapes[pt.Style]})
		}
		groups[i].xys = append(groups[i].xys, plotter.XY{X: pt.X, Y: pt.Y})
	}
	return groups
}

// Breakdown draws each share as a bar labelled with its percentage.
func Breakdown(l Labels, shares []core.Share) ([]byte, error) {
	var total float64
	for _, s := range shares {
		total += math.Abs(s.Value)
	}
	if len(shares) == 0 || total == 0 {
		return NoData(l.Title)
	}
	p := newPlot(l)
	p.Y.Label.Text = "%"
	p.Y.Min = 0
	p.Y.Max = 110

	keys := make([]string, len(shares))
	xys := make(plotter.XYs, len(shares))
	texts := make([]string, len(shares))
	for i, s := range shares {
		bars, err := plotter.NewBarChart(plotter.Values{s.Percent}, vg.Points(40))
		if err != nil {
			return nil, err
		}
		bars.XMin = float64(i)
		bars.Color = shareColors[i%len(shareColors)]
		bars.LineStyle.Color = color.Black
		p.Add(bars)

		keys[i] = s.Label
		xys[i] = plotter.XY{X: float64(i), Y: s.Percent + 3}
		texts[i] = core.FormatPercent(s.Percent)
	}
	labels, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: texts})
	if err != nil {
		return nil, err
	}
	for i := range labels.TextStyle {
		labels.TextStyle[i].XAlign = draw.XCenter
	}
	p.Add(labels)
	p.NominalX(keys...)
	return render(p)
}
