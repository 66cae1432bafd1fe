package services

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"strings"

	"databoard/metrics"
	"databoard/models"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"gorm.io/datatypes"
)

const (
	DefaultChartWidth  = 600
	DefaultChartHeight = 400

	// polarArea and radar charts only show the leading entries.
	radialChartLimit = 5

	maxBorderWidth = 20
)

const (
	defaultChartBackground = "rgba(78, 115, 223, 0.2)"
	defaultChartBorder     = "rgba(78, 115, 223, 1)"
	primaryColor           = "#4e73df"
)

var radialPalette = []string{"#4e73df", "#1cc88a", "#36b9cc", "#f6c23e", "#e74a3b"}

// RenderError reports a chart that could not be rasterized.
type RenderError struct {
	ChartType string
	Err       error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s chart: %v", e.ChartType, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// ChartStyle is the resolved form of a chart's styleOptions bag.
type ChartStyle struct {
	BackgroundColor string
	BorderColor     string
	BorderWidth     float64
}

// ResolveChartStyle reads the recognized styleOptions keys, falling back to defaults.
func ResolveChartStyle(opts datatypes.JSONMap) ChartStyle {
	style := ChartStyle{
		BackgroundColor: defaultChartBackground,
		BorderColor:     defaultChartBorder,
		BorderWidth:     1,
	}
	if v := stringOption(opts, "backgroundColor"); v != "" {
		style.BackgroundColor = v
	}
	if v := stringOption(opts, "borderColor"); v != "" {
		style.BorderColor = v
	}
	if v, ok := numberOption(opts, "borderWidth"); ok && v > 0 {
		style.BorderWidth = math.Min(v, maxBorderWidth)
	}
	return style
}

// ChartConfig is everything the renderer needs to draw one chart.
type ChartConfig struct {
	Type        string
	Label       string
	Labels      []string
	Values      []float64
	Fill        bool
	Tension     float64
	BeginAtZero bool
	Background  drawing.Color
	Border      drawing.Color
	BorderWidth float64
	Palette     []drawing.Color
}

// BuildChartConfig shapes a chart's snapshot into drawable series: labels from
// the x-axis column and values from the y-axis column.
func BuildChartConfig(c *models.Chart) ChartConfig {
	labels := make([]string, 0, len(c.Data))
	values := make([]float64, 0, len(c.Data))
	for _, row := range c.Data {
		x, _ := row.Get(c.XAxis)
		y, _ := row.Get(c.YAxis)
		labels = append(labels, CellText(x))
		values = append(values, toFloat(y))
	}

	style := ResolveChartStyle(c.StyleOptions)
	cfg := ChartConfig{
		Type:        c.ChartType,
		Label:       c.YAxis,
		Labels:      labels,
		Values:      values,
		Background:  parseColor(style.BackgroundColor, defaultChartBackground),
		Border:      parseColor(style.BorderColor, defaultChartBorder),
		BorderWidth: style.BorderWidth,
	}

	switch c.ChartType {
	case "line":
		cfg.Fill = false
		cfg.Tension = 0.1
		cfg.BeginAtZero = true
		cfg.Border = parseColor(primaryColor, defaultChartBorder)
	case "polarArea":
		cfg.Labels, cfg.Values = truncate(labels, values, radialChartLimit)
		for _, hex := range radialPalette {
			cfg.Palette = append(cfg.Palette, parseColor(hex, primaryColor))
		}
	case "radar":
		cfg.Labels, cfg.Values = truncate(labels, values, radialChartLimit)
		cfg.Fill = true
		cfg.Background = parseColor(defaultChartBackground, defaultChartBackground)
		cfg.Border = parseColor(primaryColor, defaultChartBorder)
	case "pie", "doughnut":
		for _, hex := range radialPalette {
			cfg.Palette = append(cfg.Palette, parseColor(hex, primaryColor))
		}
	case "scatter", "bubble":
	default:
		cfg.Type = "bar"
		cfg.BeginAtZero = true
	}
	return cfg
}

func truncate(labels []string, values []float64, n int) ([]string, []float64) {
	if len(labels) > n {
		labels = labels[:n]
	}
	if len(values) > n {
		values = values[:n]
	}
	return labels, values
}

// ChartRenderer rasterizes chart configurations to PNG.
type ChartRenderer struct{}

func NewChartRenderer() *ChartRenderer {
	return &ChartRenderer{}
}

// Render draws cfg into a PNG of exactly width x height. An empty data set
// yields a blank image of that size.
func (cr *ChartRenderer) Render(cfg ChartConfig, width, height int) ([]byte, error) {
	if width <= 0 {
		width = DefaultChartWidth
	}
	if height <= 0 {
		height = DefaultChartHeight
	}

	var (
		out []byte
		err error
	)
	switch {
	case len(cfg.Values) == 0:
		out, err = blankPNG(width, height)
	case cfg.Type == "line":
		out, err = renderLine(cfg, width, height)
	case cfg.Type == "pie" || cfg.Type == "doughnut":
		out, err = renderSlices(cfg, width, height)
	case cfg.Type == "scatter" || cfg.Type == "bubble":
		out, err = renderPoints(cfg, width, height)
	case cfg.Type == "polarArea":
		out, err = renderPolarArea(cfg, width, height)
	case cfg.Type == "radar":
		out, err = renderRadar(cfg, width, height)
	default:
		out, err = renderBar(cfg, width, height)
	}
	if err != nil {
		metrics.ChartRenders.WithLabelValues(cfg.Type, "error").Inc()
		return nil, &RenderError{ChartType: cfg.Type, Err: err}
	}
	metrics.ChartRenders.WithLabelValues(cfg.Type, "ok").Inc()
	return out, nil
}

// RenderChart builds the config for c and renders it.
func (cr *ChartRenderer) RenderChart(c *models.Chart, width, height int) ([]byte, error) {
	return cr.Render(BuildChartConfig(c), width, height)
}

func renderBar(cfg ChartConfig, width, height int) ([]byte, error) {
	bars := make([]chart.Value, len(cfg.Values))
	for i, v := range cfg.Values {
		bars[i] = chart.Value{
			Label: cfg.Labels[i],
			Value: v,
			Style: chart.Style{
				FillColor:   cfg.Background,
				StrokeColor: cfg.Border,
				StrokeWidth: cfg.BorderWidth,
			},
		}
	}

	bc := chart.BarChart{
		Width:      width,
		Height:     height,
		Background: chart.Style{Padding: chart.Box{Top: 20, Left: 10, Right: 10, Bottom: 10}},
		BarWidth:   barWidth(width, len(bars)),
		BarSpacing: 4,
		XAxis:      chart.Shown(),
		YAxis: chart.YAxis{
			Style: chart.Shown(),
			Range: valueRange(cfg.Values, true),
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := bc.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderLine(cfg ChartConfig, width, height int) ([]byte, error) {
	// a single point has no x extent
	if len(cfg.Values) < 2 {
		return renderBar(cfg, width, height)
	}

	xs := make([]float64, len(cfg.Values))
	for i := range xs {
		xs[i] = float64(i)
	}

	c := chart.Chart{
		Width:  width,
		Height: height,
		Background: chart.Style{
			Padding: chart.Box{Top: 20, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			Ticks: indexTicks(cfg.Labels, 12),
		},
		YAxis: chart.YAxis{
			Range: valueRange(cfg.Values, cfg.BeginAtZero),
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name: cfg.Label,
				Style: chart.Style{
					StrokeColor: cfg.Border,
					StrokeWidth: math.Max(cfg.BorderWidth, 2),
					DotColor:    cfg.Border,
					DotWidth:    3,
				},
				XValues: xs,
				YValues: cfg.Values,
			},
		},
	}

	var buf bytes.Buffer
	if err := c.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderPoints(cfg ChartConfig, width, height int) ([]byte, error) {
	if len(cfg.Values) < 2 {
		return renderBar(cfg, width, height)
	}

	xs := make([]float64, len(cfg.Values))
	numericX := true
	for i, l := range cfg.Labels {
		f, ok := parseNumber(strings.TrimSpace(l))
		if !ok {
			numericX = false
			break
		}
		xs[i] = f
	}
	var ticks []chart.Tick
	if !numericX {
		for i := range xs {
			xs[i] = float64(i)
		}
		ticks = indexTicks(cfg.Labels, 12)
	}

	style := chart.Style{
		StrokeWidth: chart.Disabled,
		DotColor:    cfg.Border,
		DotWidth:    4,
	}
	if cfg.Type == "bubble" {
		maxAbs := 0.0
		for _, v := range cfg.Values {
			maxAbs = math.Max(maxAbs, math.Abs(v))
		}
		values := cfg.Values
		style.DotWidthProvider = func(_ chart.Range, _ chart.Range, index int, _, _ float64) float64 {
			if maxAbs == 0 {
				return 4
			}
			return 3 + 12*math.Abs(values[index])/maxAbs
		}
		style.DotColor = cfg.Background
	}

	c := chart.Chart{
		Width:  width,
		Height: height,
		Background: chart.Style{
			Padding: chart.Box{Top: 20, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{Ticks: ticks},
		YAxis: chart.YAxis{Range: valueRange(cfg.Values, false)},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    cfg.Label,
				Style:   style,
				XValues: xs,
				YValues: cfg.Values,
			},
		},
	}

	var buf bytes.Buffer
	if err := c.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderSlices(cfg ChartConfig, width, height int) ([]byte, error) {
	values := make([]chart.Value, 0, len(cfg.Values))
	for i, v := range cfg.Values {
		if v <= 0 {
			continue
		}
		values = append(values, chart.Value{
			Label: cfg.Labels[i],
			Value: v,
			Style: chart.Style{
				FillColor:   cfg.Palette[i%len(cfg.Palette)],
				StrokeColor: drawing.ColorWhite,
				StrokeWidth: 1,
			},
		})
	}
	if len(values) == 0 {
		return renderBar(cfg, width, height)
	}

	var buf bytes.Buffer
	var err error
	if cfg.Type == "doughnut" {
		err = chart.DonutChart{Width: width, Height: height, Values: values}.Render(chart.PNG, &buf)
	} else {
		err = chart.PieChart{Width: width, Height: height, Values: values}.Render(chart.PNG, &buf)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// renderPolarArea draws equal-angle wedges whose radius follows the value.
func renderPolarArea(cfg ChartConfig, width, height int) ([]byte, error) {
	r, err := newCanvas(width, height)
	if err != nil {
		return nil, err
	}

	cx, cy := width/2, height/2
	maxRadius := float64(min(width, height))/2 - 30
	maxValue := maxOf(cfg.Values)
	n := len(cfg.Values)
	step := 2 * math.Pi / float64(n)

	for i, v := range cfg.Values {
		radius := 0.0
		if maxValue > 0 && v > 0 {
			radius = maxRadius * (v / maxValue)
		}
		if radius < 1 {
			continue
		}
		fill := cfg.Palette[i%len(cfg.Palette)].WithAlpha(160)
		r.SetFillColor(fill)
		r.SetStrokeColor(drawing.ColorWhite)
		r.SetStrokeWidth(1)
		r.MoveTo(cx, cy)
		r.ArcTo(cx, cy, radius, radius, -math.Pi/2+float64(i)*step, step)
		r.LineTo(cx, cy)
		r.Close()
		r.FillStroke()
	}

	drawRadialLabels(r, cfg.Labels, cx, cy, maxRadius+14, step, step/2)
	return saveCanvas(r)
}

// renderRadar draws a web of n spokes and the filled value polygon.
func renderRadar(cfg ChartConfig, width, height int) ([]byte, error) {
	r, err := newCanvas(width, height)
	if err != nil {
		return nil, err
	}

	cx, cy := width/2, height/2
	maxRadius := float64(min(width, height))/2 - 40
	lo, hi := 0.0, maxOf(cfg.Values)
	if hi <= lo {
		hi = lo + 1
	}
	n := len(cfg.Values)
	step := 2 * math.Pi / float64(n)

	grid := drawing.Color{R: 220, G: 220, B: 220, A: 255}
	r.SetStrokeColor(grid)
	r.SetStrokeWidth(1)
	for level := 1; level <= 4; level++ {
		radius := maxRadius * float64(level) / 4
		for i := 0; i <= n; i++ {
			x, y := polar(cx, cy, radius, -math.Pi/2+float64(i%n)*step)
			if i == 0 {
				r.MoveTo(x, y)
			} else {
				r.LineTo(x, y)
			}
		}
		r.Stroke()
	}
	for i := 0; i < n; i++ {
		x, y := polar(cx, cy, maxRadius, -math.Pi/2+float64(i)*step)
		r.MoveTo(cx, cy)
		r.LineTo(x, y)
		r.Stroke()
	}

	r.SetFillColor(cfg.Background)
	r.SetStrokeColor(cfg.Border)
	r.SetStrokeWidth(2)
	for i, v := range cfg.Values {
		radius := maxRadius * ((math.Max(v, lo) - lo) / (hi - lo))
		x, y := polar(cx, cy, radius, -math.Pi/2+float64(i)*step)
		if i == 0 {
			r.MoveTo(x, y)
		} else {
			r.LineTo(x, y)
		}
	}
	r.Close()
	if cfg.Fill {
		r.FillStroke()
	} else {
		r.Stroke()
	}

	drawRadialLabels(r, cfg.Labels, cx, cy, maxRadius+16, step, 0)
	return saveCanvas(r)
}

func newCanvas(width, height int) (chart.Renderer, error) {
	r, err := chart.PNG(width, height)
	if err != nil {
		return nil, err
	}
	r.SetFillColor(drawing.ColorWhite)
	r.MoveTo(0, 0)
	r.LineTo(width, 0)
	r.LineTo(width, height)
	r.LineTo(0, height)
	r.Close()
	r.Fill()

	font, err := chart.GetDefaultFont()
	if err != nil {
		return nil, err
	}
	r.SetFont(font)
	r.SetFontSize(10)
	r.SetFontColor(drawing.Color{R: 80, G: 80, B: 80, A: 255})
	return r, nil
}

func drawRadialLabels(r chart.Renderer, labels []string, cx, cy int, radius, step, offset float64) {
	for i, label := range labels {
		if label == "" {
			continue
		}
		x, y := polar(cx, cy, radius, -math.Pi/2+float64(i)*step+offset)
		box := r.MeasureText(label)
		r.Text(label, x-box.Width()/2, y+box.Height()/2)
	}
}

func saveCanvas(r chart.Renderer) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Save(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func polar(cx, cy int, radius, angle float64) (int, int) {
	return cx + int(math.Round(radius*math.Cos(angle))), cy + int(math.Round(radius*math.Sin(angle)))
}

// blankPNG encodes a white image; go-chart refuses to draw series without data.
func blankPNG(width, height int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func barWidth(width, n int) int {
	if n == 0 {
		return 0
	}
	w := (width - 100) / n * 7 / 10
	return max(2, min(w, 60))
}

// valueRange pins the y range so flat or all-zero data still renders.
func valueRange(values []float64, fromZero bool) *chart.ContinuousRange {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if fromZero {
		lo = math.Min(lo, 0)
		hi = math.Max(hi, 0)
	}
	if hi-lo == 0 {
		// lo+1 rounds back to lo once |lo| passes 2^53
		hi = lo + math.Max(1, math.Abs(lo)*0.1)
	}
	return &chart.ContinuousRange{Min: lo, Max: hi + (hi*0.05 - lo*0.05)}
}

// indexTicks labels x positions 0..n-1, thinning to at most limit ticks.
func indexTicks(labels []string, limit int) []chart.Tick {
	every := 1
	if len(labels) > limit {
		every = int(math.Ceil(float64(len(labels)) / float64(limit)))
	}
	ticks := make([]chart.Tick, 0, len(labels)/every+1)
	for i := 0; i < len(labels); i += every {
		ticks = append(ticks, chart.Tick{Value: float64(i), Label: labels[i]})
	}
	return ticks
}

func maxOf(values []float64) float64 {
	m := 0.0
	for _, v := range values {
		m = math.Max(m, v)
	}
	return m
}

// parseColor accepts css rgba(), rgb(), #hex and named colors.
func parseColor(raw, fallback string) drawing.Color {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "#") {
		// ColorFromHex panics on unexpected lengths
		if l := len(raw) - 1; l != 3 && l != 6 {
			raw = fallback
		}
	}
	c := drawing.ParseColor(raw)
	if c.IsZero() && raw != fallback {
		return drawing.ParseColor(fallback)
	}
	return c
}
