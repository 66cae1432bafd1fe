package services

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gorm.io/datatypes"
)

// CellText renders a cell for display. Missing values come back empty.
func CellText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// maxPlotValue bounds cell magnitudes so range and radius arithmetic in the
// renderer stays finite.
const maxPlotValue = 1e300

// finite maps NaN and the infinities to 0 and clamps everything else to
// ±maxPlotValue.
func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return math.Max(-maxPlotValue, math.Min(f, maxPlotValue))
}

// parseNumber accepts plain decimal text only. ParseFloat also takes "NaN"
// and "Inf", which are not numbers a chart can plot.
func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return finite(f), true
}

// toFloat reads a numeric cell leniently; anything unparseable or non-finite
// is 0.
func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return finite(t)
	case float32:
		return finite(float64(t))
	case int:
		return finite(float64(t))
	case int64:
		return finite(float64(t))
	case bool:
		if t {
			return 1
		}
		return 0
	case interface{ Float64() (float64, error) }:
		f, err := t.Float64()
		if err != nil {
			return 0
		}
		return finite(f)
	case string:
		f, _ := parseNumber(strings.ReplaceAll(strings.TrimSpace(t), ",", ""))
		return f
	default:
		return 0
	}
}

func stringOption(opts datatypes.JSONMap, key string) string {
	if opts == nil {
		return ""
	}
	if s, ok := opts[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func numberOption(opts datatypes.JSONMap, key string) (float64, bool) {
	if opts == nil {
		return 0, false
	}
	switch v := opts[key].(type) {
	case nil:
		return 0, false
	case string:
		return parseNumber(strings.TrimSpace(v))
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	default:
		return toFloat(v), true
	}
}
