package chart

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maumcare/companion/internal/page"
)

func TestAxisLabel(t *testing.T) {
	tests := []struct {
		axis Axis
		v    float64
		want string
	}{
		{MoodChart.Axis, -2, "매우 나쁨"},
		{MoodChart.Axis, 0, "보통"},
		{MoodChart.Axis, 2, "매우 좋음"},
		{MoodChart.Axis, 1.5, "1.5"},
		{SentimentChart.Axis, -0.5, "부정적"},
		{SentimentChart.Axis, 0.5, "긍정적"},
		{SentimentChart.Axis, 0.25, "0.25"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.axis.Label(tt.v))
	}
}

func TestPosition(t *testing.T) {
	axis := MoodChart.Axis
	assert.Equal(t, 0, position(axis, -2, 5))
	assert.Equal(t, 2, position(axis, 0, 5))
	assert.Equal(t, 4, position(axis, 2, 5))
	assert.Equal(t, 4, position(axis, 9, 5), "clamped to max")
	assert.Equal(t, 0, position(axis, -9, 5), "clamped to min")
}

func TestRender(t *testing.T) {
	data := page.ChartData{
		ID:     page.MoodChartID,
		Labels: []string{"05-01", "05-02", "05-03"},
		Values: []float64{-2, 1},
	}

	out := Render(MoodChart, data, Options{Width: 5})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 5)

	assert.Equal(t, "감정 상태", lines[0])
	assert.Equal(t, "05-01 │●    │ 매우 나쁨", lines[1])
	assert.Equal(t, "05-02 │───● │ 좋음", lines[2])
	assert.Equal(t, "05-03 │     │", lines[3], "a label without a value has no point")
	assert.Equal(t, "-2 매우 나쁨 · -1 나쁨 · 0 보통 · 1 좋음 · 2 매우 좋음", lines[4])
}

func TestRenderEmpty(t *testing.T) {
	out := Render(SentimentChart, page.ChartData{}, Options{NoData: "기록 없음"})
	assert.Equal(t, "대화 감정 분석\n기록 없음\n", out)
}

func TestSpecFor(t *testing.T) {
	spec, ok := SpecFor(page.SentimentChartID)
	require.True(t, ok)
	assert.Equal(t, SentimentChart.Title, spec.Title)

	_, ok = SpecFor("other")
	assert.False(t, ok)
}
