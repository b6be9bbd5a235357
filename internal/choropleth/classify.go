// Package choropleth maps numeric values onto a five-class color palette and
// keeps legends and overlay paint consistent with the chosen palette.
package choropleth

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Classes is the number of colors in a palette.
const Classes = 5

var ErrInvalidPalette = errors.New("invalid palette")

// Palette is an ordered set of colors, index 0 being the lowest class.
type Palette [Classes]string

// ParsePalette validates colors and normalizes them to lowercase #rrggbb.
func ParsePalette(colors []string) (Palette, error) {
	var p Palette
	if len(colors) != Classes {
		return p, fmt.Errorf("%w: need %d colors, got %d", ErrInvalidPalette, Classes, len(colors))
	}
	for i, c := range colors {
		parsed, err := colorful.Hex(strings.TrimSpace(c))
		if err != nil {
			return p, fmt.Errorf("%w: color %d %q: %v", ErrInvalidPalette, i, c, err)
		}
		p[i] = parsed.Hex()
	}
	return p, nil
}

// Colors returns the palette as a slice.
func (p Palette) Colors() []string {
	return p[:]
}

// Classify returns the palette color for value within [min, max].
//
// Thresholds are checked from the top down with strict comparisons, so a
// value sitting exactly on a threshold lands in the lower class. NaN values
// and a degenerate domain (min == max) always get palette[0].
func Classify(value, min, max float64, p Palette) string {
	norm := (value - min) / (max - min)
	if math.IsNaN(norm) || math.IsInf(norm, 0) {
		return p[0]
	}
	switch {
	case norm > 0.8:
		return p[4]
	case norm > 0.6:
		return p[3]
	case norm > 0.4:
		return p[2]
	case norm > 0.2:
		return p[1]
	}
	return p[0]
}
