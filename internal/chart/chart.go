// Package chart renders the dashboard charts as SVG.
package chart

import (
	"bytes"
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"expensedash/internal/core"
)

// ContentType is the media type of every rendered chart.
const ContentType = "image/svg+xml"

const (
	width  = 6 * vg.Inch
	height = 4 * vg.Inch
)

// Palette is cycled over pie wedges in category order.
var Palette = []color.Color{
	mustHex("#0088FE"),
	mustHex("#00C49F"),
	mustHex("#FFBB28"),
	mustHex("#FF8042"),
	mustHex("#9C27B0"),
	mustHex("#E91E63"),
}

// ColorAt returns the palette entry for the i-th category.
func ColorAt(i int) color.Color {
	return Palette[i%len(Palette)]
}

// CategoryPie draws one wedge per category with a legend.
func CategoryPie(totals []core.CategoryTotal) ([]byte, error) {
	if len(totals) == 0 || allZero(totals) {
		return placeholder("Expenses by Category")
	}

	p := plot.New()
	p.Title.Text = "Expenses by Category"
	p.HideAxes()
	p.Legend.Top = true
	p.Legend.Left = false

	pie := &pieChart{}
	for i, t := range totals {
		v := t.Value.InexactFloat64()
		pie.values = append(pie.values, v)
		pie.colors = append(pie.colors, ColorAt(i))
		p.Legend.Add(fmt.Sprintf("%s %s", t.Name, core.FormatCurrency(t.Value)), swatch{ColorAt(i)})
	}
	p.Add(pie)

	return render(p)
}

// MonthlyBar draws one bar per month label in the given order.
func MonthlyBar(totals []core.MonthTotal) ([]byte, error) {
	if len(totals) == 0 {
		return placeholder("Monthly Spending")
	}

	p := plot.New()
	p.Title.Text = "Monthly Spending"
	p.Y.Label.Text = "Amount"
	p.Y.Min = 0

	values := make(plotter.Values, len(totals))
	labels := make([]string, len(totals))
	for i, t := range totals {
		values[i] = t.Amount.InexactFloat64()
		labels[i] = t.Month
	}

	bars, err := plotter.NewBarChart(values, vg.Points(28))
	if err != nil {
		return nil, fmt.Errorf("bar chart: %w", err)
	}
	bars.Color = Palette[0]
	bars.LineStyle.Width = 0
	p.Add(bars, plotter.NewGrid())
	p.NominalX(labels...)

	return render(p)
}

func placeholder(title string) ([]byte, error) {
	p := plot.New()
	p.Title.Text = title
	p.HideAxes()
	p.Add(message{text: "No data"})
	return render(p)
}

func render(p *plot.Plot) ([]byte, error) {
	wt, err := p.WriterTo(width, height, "svg")
	if err != nil {
		return nil, fmt.Errorf("svg writer: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("render svg: %w", err)
	}
	return buf.Bytes(), nil
}

func allZero(totals []core.CategoryTotal) bool {
	for _, t := range totals {
		if !t.Value.IsZero() {
			return false
		}
	}
	return true
}

// pieChart is a plot.Plotter drawing filled wedges around the canvas centre.
type pieChart struct {
	values []float64
	colors []color.Color
}

func (pc *pieChart) Plot(c draw.Canvas, _ *plot.Plot) {
	total := 0.0
	for _, v := range pc.values {
		if v > 0 {
			total += v
		}
	}
	if total == 0 {
		return
	}

	center := vg.Point{
		X: (c.Min.X + c.Max.X) / 2,
		Y: (c.Min.Y + c.Max.Y) / 2,
	}
	radius := vg.Length(math.Min(float64(c.Max.X-c.Min.X), float64(c.Max.Y-c.Min.Y))) * 0.42

	start := math.Pi / 2
	for i, v := range pc.values {
		if v <= 0 {
			continue
		}
		sweep := -2 * math.Pi * v / total

		var path vg.Path
		path.Move(center)
		path.Arc(center, radius, start, sweep)
		path.Close()

		c.SetColor(pc.colors[i])
		c.Fill(path)

		c.SetColor(color.White)
		c.SetLineWidth(vg.Points(1))
		c.Stroke(path)

		start += sweep
	}
}

// swatch is a legend thumbnail filled with one colour.
type swatch struct {
	color color.Color
}

func (s swatch) Thumbnail(c *draw.Canvas) {
	pts := []vg.Point{
		{X: c.Min.X, Y: c.Min.Y},
		{X: c.Min.X, Y: c.Max.Y},
		{X: c.Max.X, Y: c.Max.Y},
		{X: c.Max.X, Y: c.Min.Y},
	}
	poly := c.ClipPolygonY(pts)
	c.FillPolygon(s.color, poly)
}

// message draws centred text in place of a chart.
type message struct {
	text string
}

func (m message) Plot(c draw.Canvas, p *plot.Plot) {
	sty := p.Title.TextStyle
	sty.Color = color.Gray{Y: 0x80}
	sty.XAlign = draw.XCenter
	sty.YAlign = draw.YCenter
	c.FillText(sty, vg.Point{
		X: (c.Min.X + c.Max.X) / 2,
		Y: (c.Min.Y + c.Max.Y) / 2,
	}, m.text)
}

func mustHex(s string) color.Color {
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b); err != nil {
		panic(fmt.Sprintf("chart: bad colour %q", s))
	}
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}
