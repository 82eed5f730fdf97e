// Package charts renders the dashboard's bar, line and horizontal bar charts
// as SVG. Empty inputs render a "No data" placeholder instead of failing.
package charts

import (
	"fmt"
	"io"
	"math"
	"strings"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	width        = 640
	height       = 360
	barWidth     = 40
	barSpacing   = 20
	maxLabelLen  = 18
	hbarRow      = 26
	hbarLabelCol = 110
	hbarTop      = 48
)

// ContentType is the MIME type of everything this package writes.
const ContentType = "image/svg+xml"

var barColor = drawing.Color{R: 31, G: 119, B: 180, A: 255}

// Bar is one labelled value.
type Bar struct {
	Label string
	Value float64
}

// Point is one (x, y) sample of a line chart.
type Point struct {
	X float64
	Y float64
}

// Bars renders a vertical bar chart.
func Bars(w io.Writer, title string, bars []Bar) error {
	if len(bars) == 0 {
		return Placeholder(w, title)
	}

	values := make([]chart.Value, len(bars))
	lo, hi := 0.0, 0.0
	for i, b := range bars {
		values[i] = chart.Value{
			Label: label(b.Label),
			Value: b.Value,
			Style: chart.Style{FillColor: barColor, StrokeColor: barColor},
		}
		lo, hi = math.Min(lo, b.Value), math.Max(hi, b.Value)
	}

	bc := chart.BarChart{
		Title:      title,
		Width:      max(width, len(bars)*(barWidth+barSpacing)+160),
		Height:     height,
		BarWidth:   barWidth,
		BarSpacing: barSpacing,
		Background: chart.Style{Padding: chart.Box{Top: 48, Left: 16, Right: 16, Bottom: 16}},
		YAxis:      chart.YAxis{Range: paddedRange(lo, hi)},
		Bars:       values,
	}
	return bc.Render(chart.SVG, w)
}

// Line renders a single line series over a fixed x range.
func Line(w io.Writer, title, xName, yName string, xMin, xMax float64, ticks []chart.Tick, points []Point) error {
	if len(points) == 0 {
		return Placeholder(w, title)
	}

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	hi := 0.0
	for i, p := range points {
		xs[i], ys[i] = p.X, p.Y
		hi = math.Max(hi, p.Y)
	}

	graph := chart.Chart{
		Title:      title,
		Width:      width,
		Height:     height,
		Background: chart.Style{Padding: chart.Box{Top: 48, Left: 16, Right: 24, Bottom: 16}},
		XAxis: chart.XAxis{
			Name:  xName,
			Range: &chart.ContinuousRange{Min: xMin, Max: xMax},
			Ticks: ticks,
		},
		YAxis: chart.YAxis{
			Name:  yName,
			Range: paddedRange(0, hi),
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    title,
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeColor: barColor,
					StrokeWidth: 2,
					DotColor:    barColor,
					DotWidth:    4,
				},
			},
		},
	}
	return graph.Render(chart.SVG, w)
}

// MonthTicks labels a 1..12 axis with month abbreviations.
func MonthTicks() []chart.Tick {
	names := []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}
	ticks := make([]chart.Tick, len(names))
	for i, n := range names {
		ticks[i] = chart.Tick{Value: float64(i + 1), Label: n}
	}
	return ticks
}

// HorizontalBars renders one bar per row, largest first as given, with the
// category on the y axis and valueName along x.
func HorizontalBars(w io.Writer, title, valueName, categoryName string, bars []Bar) error {
	if len(bars) == 0 {
		return Placeholder(w, title)
	}

	h := hbarTop + len(bars)*hbarRow + 48
	r, err := chart.SVG(width, h)
	if err != nil {
		return err
	}
	font, err := chart.GetDefaultFont()
	if err != nil {
		return err
	}
	text := chart.Style{Font: font, FontSize: 10, FontColor: chart.ColorBlack}
	heading := chart.Style{Font: font, FontSize: 14, FontColor: chart.ColorBlack}

	chart.Draw.Text(r, title, 16, 24, heading)
	chart.Draw.Text(r, categoryName, 16, hbarTop-8, text)

	hi := 0.0
	for _, b := range bars {
		hi = math.Max(hi, b.Value)
	}
	if hi <= 0 {
		hi = 1
	}

	left := hbarLabelCol
	span := width - left - 64
	fill := chart.Style{FillColor: barColor, StrokeColor: barColor, StrokeWidth: 1}
	for i, b := range bars {
		top := hbarTop + i*hbarRow
		length := int(math.Round(math.Max(b.Value, 0) / hi * float64(span)))
		chart.Draw.Text(r, label(b.Label), 16, top+hbarRow/2+4, text)
		if length > 0 {
			chart.Draw.Box(r, chart.Box{Top: top + 4, Left: left, Right: left + length, Bottom: top + hbarRow - 4}, fill)
		}
		chart.Draw.Text(r, formatValue(b.Value), left+length+6, top+hbarRow/2+4, text)
	}

	axisY := hbarTop + len(bars)*hbarRow + 8
	axis := chart.Style{StrokeColor: chart.ColorBlack, StrokeWidth: 1}
	chart.Draw.Box(r, chart.Box{Top: axisY, Left: left, Right: left + span, Bottom: axisY + 1}, axis)
	chart.Draw.Text(r, valueName, left+span/2-20, axisY+24, text)

	return r.Save(w)
}

// Placeholder renders an empty chart frame saying there is no data.
func Placeholder(w io.Writer, title string) error {
	r, err := chart.SVG(width, height/2)
	if err != nil {
		return err
	}
	font, err := chart.GetDefaultFont()
	if err != nil {
		return err
	}
	chart.Draw.Text(r, title, 16, 24, chart.Style{Font: font, FontSize: 14, FontColor: chart.ColorBlack})
	chart.Draw.Text(r, "No data", width/2-30, height/4+8, chart.Style{Font: font, FontSize: 12, FontColor: chart.ColorAlternateGray})
	return r.Save(w)
}

// paddedRange returns a y range covering [lo, hi] with 10% headroom and never
// of zero width.
func paddedRange(lo, hi float64) *chart.ContinuousRange {
	if hi == lo {
		hi = lo + 1
	}
	pad := (hi - lo) * 0.1
	if lo < 0 {
		lo -= pad
	}
	return &chart.ContinuousRange{Min: lo, Max: hi + pad}
}

// label shortens category names and drops characters that are markup in SVG.
func label(s string) string {
	s = strings.NewReplacer("&", "+", "<", "", ">", "").Replace(s)
	if r := []rune(s); len(r) > maxLabelLen {
		return string(r[:maxLabelLen-1]) + "…"
	}
	return s
}

func formatValue(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.1f", v)
}
