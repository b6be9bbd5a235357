package choropleth

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// DefaultTransparency is the fill opacity used when none is given.
const DefaultTransparency = 0.9

var ErrUnknownPreset = errors.New("invalid preset selected")

// Preset is a named palette.
type Preset struct {
	Key    string   `json:"key" koanf:"key"`
	Name   string   `json:"name" koanf:"name"`
	Colors []string `json:"colors" koanf:"colors"`
}

// Palette validates the preset colors.
func (p Preset) Palette() (Palette, error) {
	return ParsePalette(p.Colors)
}

// Paint is the fill styling of one rendered feature.
type Paint struct {
	FillColor   string  `json:"fillColor"`
	FillOpacity float64 `json:"fillOpacity"`
}

// Layer is one rendered feature inside a Group. Properties returns nil when
// the layer carries no feature data.
type Layer interface {
	Properties() map[string]any
	SetPaint(Paint)
}

// Group is a restylable collection of rendered features.
type Group interface {
	EachLayer(fn func(Layer))
}

// Stats reports what ApplyPreset touched.
type Stats struct {
	Painted int `json:"painted"`
	Skipped int `json:"skipped"`
}

// ResolveTransparency parses a user supplied transparency. Empty or
// unparseable input yields DefaultTransparency; parsed values are clamped to
// [0, 1].
func ResolveTransparency(input string) float64 {
	input = strings.TrimSpace(input)
	if input == "" {
		return DefaultTransparency
	}
	t, err := strconv.ParseFloat(input, 64)
	if err != nil || math.IsNaN(t) {
		return DefaultTransparency
	}
	return math.Max(0, math.Min(1, t))
}

// ApplyPreset repaints every feature of group with p over [min, max] and
// rebuilds the legend.
//
// A non-empty variantKey means the group belongs to one data layer: the
// legend is laid out as a column and each feature's "value" property is
// classified. Otherwise the legend is a row and "availableCount" is used.
func ApplyPreset(p Palette, legend LegendContainer, transparency string, min, max float64, group Group, variantKey string) Stats {
	layout := LayoutRow
	prop := "availableCount"
	if variantKey != "" {
		layout = LayoutColumn
		prop = "value"
	}
	RenderLegend(legend, p, layout)

	opacity := ResolveTransparency(transparency)

	var stats Stats
	if group == nil {
		return stats
	}
	group.EachLayer(func(l Layer) {
		props := l.Properties()
		if props == nil {
			zap.L().Warn("Sub-layer lacks feature or properties", zap.String("variant", variantKey))
			stats.Skipped++
			return
		}
		l.SetPaint(Paint{
			FillColor:   Classify(NumericValue(props[prop]), min, max, p),
			FillOpacity: opacity,
		})
		stats.Painted++
	})
	return stats
}

// NumericValue converts a decoded property value to float64. Anything that
// is not a number, or a string holding one, yields NaN.
func NumericValue(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	}
	return math.NaN()
}
