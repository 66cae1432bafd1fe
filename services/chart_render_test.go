package services

import (
	"bytes"
	"fmt"
	"image/png"
	"math"
	"testing"
	"time"

	"databoard/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func sampleChart(chartType string, n int) *models.Chart {
	rows := make(models.Rows, n)
	for i := range rows {
		rows[i] = models.NewRow("month", string(rune('A'+i)), "total", float64(i+1)*3)
	}
	return &models.Chart{
		Title:     "Totals",
		ChartType: chartType,
		XAxis:     "month",
		YAxis:     "total",
		Data:      rows,
		Columns:   []string{"month", "total"},
	}
}

func decodeSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	b := img.Bounds()
	return b.Dx(), b.Dy()
}

func TestRenderEmptyDataIsBlankImageOfRequestedSize(t *testing.T) {
	r := NewChartRenderer()

	out, err := r.RenderChart(sampleChart("bar", 0), 320, 200)
	require.NoError(t, err)

	w, h := decodeSize(t, out)
	assert.Equal(t, 320, w)
	assert.Equal(t, 200, h)
}

func TestRenderEveryChartType(t *testing.T) {
	r := NewChartRenderer()
	for _, chartType := range append(models.ChartTypes, "unknown") {
		t.Run(chartType, func(t *testing.T) {
			out, err := r.RenderChart(sampleChart(chartType, 8), DefaultChartWidth, DefaultChartHeight)
			require.NoError(t, err)

			w, h := decodeSize(t, out)
			assert.Equal(t, DefaultChartWidth, w)
			assert.Equal(t, DefaultChartHeight, h)
		})
	}
}

func TestRenderSinglePointFallsBack(t *testing.T) {
	r := NewChartRenderer()
	for _, chartType := range []string{"line", "scatter", "pie"} {
		out, err := r.RenderChart(sampleChart(chartType, 1), 300, 200)
		require.NoError(t, err, chartType)
		w, _ := decodeSize(t, out)
		assert.Equal(t, 300, w)
	}
}

func TestRenderAllZeroValues(t *testing.T) {
	c := sampleChart("bar", 3)
	for i := range c.Data {
		c.Data[i].Set("total", 0)
	}
	out, err := NewChartRenderer().RenderChart(c, 300, 200)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestBuildChartConfigTruncatesRadialCharts(t *testing.T) {
	for _, chartType := range []string{"polarArea", "radar"} {
		cfg := BuildChartConfig(sampleChart(chartType, 9))
		assert.Len(t, cfg.Labels, 5, chartType)
		assert.Len(t, cfg.Values, 5, chartType)
		assert.Equal(t, []string{"A", "B", "C", "D", "E"}, cfg.Labels)
	}

	cfg := BuildChartConfig(sampleChart("bar", 9))
	assert.Len(t, cfg.Labels, 9)
}

func TestBuildChartConfigDefaultsAndStyle(t *testing.T) {
	c := sampleChart("histogram", 2)
	c.StyleOptions = datatypes.JSONMap{"borderWidth": 3, "borderColor": "#ff0000"}

	cfg := BuildChartConfig(c)
	assert.Equal(t, "bar", cfg.Type)
	assert.True(t, cfg.BeginAtZero)
	assert.Equal(t, float64(3), cfg.BorderWidth)
	assert.Equal(t, uint8(255), cfg.Border.R)
	assert.Equal(t, uint8(0), cfg.Border.G)

	line := BuildChartConfig(sampleChart("line", 2))
	assert.InDelta(t, 0.1, line.Tension, 1e-9)
	assert.False(t, line.Fill)
}

func TestBuildChartConfigLenientValues(t *testing.T) {
	c := &models.Chart{
		ChartType: "bar",
		XAxis:     "k",
		YAxis:     "v",
		Data: models.Rows{
			models.NewRow("k", "a", "v", "12.5"),
			models.NewRow("k", "b", "v", "n/a"),
			models.NewRow("k", "c"),
		},
	}
	cfg := BuildChartConfig(c)
	assert.Equal(t, []float64{12.5, 0, 0}, cfg.Values)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Labels)
}

func TestBuildChartConfigNonFiniteCellsAreZero(t *testing.T) {
	c := &models.Chart{
		ChartType: "bar",
		XAxis:     "k",
		YAxis:     "v",
		Data: models.Rows{
			models.NewRow("k", "a", "v", "NaN"),
			models.NewRow("k", "b", "v", "Inf"),
			models.NewRow("k", "c", "v", "-Infinity"),
			models.NewRow("k", "d", "v", math.NaN()),
			models.NewRow("k", "e", "v", math.Inf(1)),
			models.NewRow("k", "f", "v", "7"),
		},
	}
	cfg := BuildChartConfig(c)
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 7}, cfg.Values)
}

// renderWithin renders c and decodes the PNG, failing if it takes over 10s.
func renderWithin(t *testing.T, r *ChartRenderer, c *models.Chart, desc string) {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		out, err := r.RenderChart(c, 300, 200)
		if err == nil {
			_, err = png.Decode(bytes.NewReader(out))
		}
		done <- err
	}()
	select {
	case err := <-done:
		assert.NoError(t, err, desc)
	case <-time.After(10 * time.Second):
		t.Fatalf("%s did not finish rendering", desc)
	}
}

func TestRenderNonFiniteCellsEveryChartType(t *testing.T) {
	r := NewChartRenderer()
	for _, bad := range []any{"NaN", "Inf", "-Infinity", math.NaN(), math.Inf(-1)} {
		for _, chartType := range models.ChartTypes {
			c := sampleChart(chartType, 4)
			c.Data[1].Set("total", bad)
			renderWithin(t, r, c, fmt.Sprintf("%s with %v", chartType, bad))
		}
	}
}

func TestBuildChartConfigClampsExtremeCells(t *testing.T) {
	c := &models.Chart{
		ChartType: "bar",
		XAxis:     "k",
		YAxis:     "v",
		Data: models.Rows{
			models.NewRow("k", "a", "v", "1e307"),
			models.NewRow("k", "b", "v", "-1.7976931348623157e308"),
			models.NewRow("k", "c", "v", math.MaxFloat64),
			models.NewRow("k", "d", "v", "1e299"),
		},
	}
	cfg := BuildChartConfig(c)
	assert.Equal(t, []float64{maxPlotValue, -maxPlotValue, maxPlotValue, 1e299}, cfg.Values)
}

func TestRenderExtremeCellsEveryChartType(t *testing.T) {
	cases := map[string][]any{
		"one huge cell":  {"3", "1e307", "9", "12"},
		"max float":      {"1.7976931348623157e308", "1", "2"},
		"opposite signs": {1e308, -1e308, 1e308},
		"flat and large": {5e20, 5e20, 5e20},
	}
	chartTypes := append([]string{"unknown"}, models.ChartTypes...)
	r := NewChartRenderer()
	for name, cells := range cases {
		for _, chartType := range chartTypes {
			c := sampleChart(chartType, len(cells))
			for i, cell := range cells {
				c.Data[i].Set("total", cell)
			}
			renderWithin(t, r, c, fmt.Sprintf("%s: %s", chartType, name))
		}
	}
}

func TestValueRangeStaysFinite(t *testing.T) {
	for _, values := range [][]float64{
		{maxPlotValue, 1, 2},
		{maxPlotValue, -maxPlotValue},
		{5e20, 5e20},
		{-maxPlotValue},
	} {
		for _, fromZero := range []bool{true, false} {
			rng := valueRange(values, fromZero)
			assert.False(t, math.IsInf(rng.Min, 0) || math.IsNaN(rng.Min), "%v", values)
			assert.False(t, math.IsInf(rng.Max, 0) || math.IsNaN(rng.Max), "%v", values)
			assert.Greater(t, rng.Max-rng.Min, 0.0, "%v", values)
			assert.False(t, math.IsInf(rng.Max-rng.Min, 0), "%v", values)
		}
	}
}

func TestRenderScatterNonFiniteLabelsUseIndexAxis(t *testing.T) {
	c := sampleChart("scatter", 3)
	c.Data[0].Set("month", "1")
	c.Data[1].Set("month", "NaN")
	c.Data[2].Set("month", "3")

	out, err := NewChartRenderer().RenderChart(c, 300, 200)
	require.NoError(t, err)
	w, h := decodeSize(t, out)
	assert.Equal(t, 300, w)
	assert.Equal(t, 200, h)
}

func TestNumberOptionRejectsNonFinite(t *testing.T) {
	opts := datatypes.JSONMap{"a": "NaN", "b": math.Inf(1), "c": "2.5", "d": 4}

	_, ok := numberOption(opts, "a")
	assert.False(t, ok)
	_, ok = numberOption(opts, "b")
	assert.False(t, ok)
	v, ok := numberOption(opts, "c")
	assert.True(t, ok)
	assert.Equal(t, 2.5, v)
	v, ok = numberOption(opts, "d")
	assert.True(t, ok)
	assert.Equal(t, float64(4), v)
}
