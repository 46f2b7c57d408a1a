// Package chart renders the dashboard trend charts in a terminal.
package chart

import (
	"math"
	"strconv"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/maumcare/companion/internal/page"
)

// Tick is a labelled axis value
type Tick struct {
	Value float64
	Label string
}

// Axis is the fixed value range of a chart
type Axis struct {
	Min   float64
	Max   float64
	Ticks []Tick
}

// Label returns the tick label for v, or v itself when it is not a tick
func (a Axis) Label(v float64) string {
	for _, t := range a.Ticks {
		if t.Value == v {
			return t.Label
		}
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Spec describes how one chart is drawn
type Spec struct {
	Title string
	Axis  Axis
	Color string
}

// MoodChart plots recorded moods on the -2..2 scale
var MoodChart = Spec{
	Title: "감정 상태",
	Color: "#5e72e4",
	Axis: Axis{
		Min: -2,
		Max: 2,
		Ticks: []Tick{
			{-2, "매우 나쁨"},
			{-1, "나쁨"},
			{0, "보통"},
			{1, "좋음"},
			{2, "매우 좋음"},
		},
	},
}

// SentimentChart plots conversation sentiment on the -1..1 scale
var SentimentChart = Spec{
	Title: "대화 감정 분석",
	Color: "#11cdef",
	Axis: Axis{
		Min: -1,
		Max: 1,
		Ticks: []Tick{
			{-1, "매우 부정적"},
			{-0.5, "부정적"},
			{0, "중립"},
			{0.5, "긍정적"},
			{1, "매우 긍정적"},
		},
	},
}

// SpecFor returns the chart layout for a known canvas id
func SpecFor(id string) (Spec, bool) {
	switch id {
	case page.MoodChartID:
		return MoodChart, true
	case page.SentimentChartID:
		return SentimentChart, true
	}
	return Spec{}, false
}

// Options controls rendering
type Options struct {
	// Width is the number of cells of the plot area
	Width  int
	Styled bool
	NoData string
}

// Render draws one row per data point with a marker placed on the axis.
// Values outside the axis are clamped the way the y-axis bounds clip them.
func Render(spec Spec, data page.ChartData, opts Options) string {
	if opts.Width < 5 {
		opts.Width = 41
	}
	if opts.NoData == "" {
		opts.NoData = "-"
	}

	var b strings.Builder
	title := spec.Title
	if opts.Styled {
		title = lipgloss.NewStyle().Bold(true).Render(title)
	}
	b.WriteString(title)
	b.WriteByte('\n')

	rows := len(data.Values)
	if len(data.Labels) > rows {
		rows = len(data.Labels)
	}
	if rows == 0 {
		b.WriteString(opts.NoData)
		b.WriteByte('\n')
		return b.String()
	}

	labelWidth := 0
	for _, l := range data.Labels {
		labelWidth = max(labelWidth, lipgloss.Width(l))
	}

	marker := "●"
	if opts.Styled {
		marker = lipgloss.NewStyle().Foreground(lipgloss.Color(spec.Color)).Render(marker)
	}

	for i := 0; i < rows; i++ {
		label := ""
		if i < len(data.Labels) {
			label = data.Labels[i]
		}
		b.WriteString(pad(label, labelWidth))
		b.WriteString(" │")

		if i >= len(data.Values) {
			b.WriteString(strings.Repeat(" ", opts.Width))
			b.WriteString("│\n")
			continue
		}

		v := data.Values[i]
		pos := position(spec.Axis, v, opts.Width)
		b.WriteString(strings.Repeat("─", pos))
		b.WriteString(marker)
		b.WriteString(strings.Repeat(" ", opts.Width-pos-1))
		b.WriteString("│ ")
		b.WriteString(spec.Axis.Label(v))
		b.WriteByte('\n')
	}

	legend := make([]string, 0, len(spec.Axis.Ticks))
	for _, t := range spec.Axis.Ticks {
		legend = append(legend, strconv.FormatFloat(t.Value, 'g', -1, 64)+" "+t.Label)
	}
	b.WriteString(strings.Join(legend, " · "))
	b.WriteByte('\n')
	return b.String()
}

// position maps v onto [0, width-1]
func position(axis Axis, v float64, width int) int {
	span := axis.Max - axis.Min
	if span <= 0 || math.IsNaN(v) {
		return 0
	}
	v = math.Max(axis.Min, math.Min(axis.Max, v))
	return int(math.Round((v - axis.Min) / span * float64(width-1)))
}

func pad(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}
