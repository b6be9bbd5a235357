package choropleth

import "sync"

// Layout is the orientation of a legend bar.
type Layout string

const (
	LayoutRow    Layout = "row"
	LayoutColumn Layout = "column"
)

// Swatch is one colored cell of a legend bar.
type Swatch struct {
	Color  string `json:"color"`
	Width  string `json:"width"`
	Height string `json:"height"`
}

// Legend is a rendered legend bar.
type Legend struct {
	Layout   Layout   `json:"layout"`
	Swatches []Swatch `json:"swatches"`
}

// Direction returns the flex direction class used by the legend template.
func (l Legend) Direction() string {
	if l.Layout == LayoutRow {
		return "flex-row"
	}
	return "flex-column"
}

// LegendContainer receives a freshly built legend, discarding whatever it
// showed before.
type LegendContainer interface {
	ReplaceLegend(Legend)
}

// BuildLegend builds one swatch per palette color. A row legend has short,
// flexible-width swatches; any other layout is a column of narrow swatches.
func BuildLegend(p Palette, layout Layout) Legend {
	if layout != LayoutRow {
		layout = LayoutColumn
	}
	l := Legend{Layout: layout, Swatches: make([]Swatch, 0, Classes)}
	for _, c := range p {
		s := Swatch{Color: c, Width: "10px", Height: "20px"}
		if layout == LayoutRow {
			s = Swatch{Color: c, Width: "auto", Height: "10px"}
		}
		l.Swatches = append(l.Swatches, s)
	}
	return l
}

// RenderLegend clears container and fills it with a legend for p.
func RenderLegend(container LegendContainer, p Palette, layout Layout) {
	if container == nil {
		return
	}
	container.ReplaceLegend(BuildLegend(p, layout))
}

// LegendBar is an in-memory LegendContainer that also carries the domain
// labels shown at either end of the bar.
type LegendBar struct {
	mu     sync.RWMutex
	legend Legend
	min    float64
	max    float64
}

// ReplaceLegend implements LegendContainer.
func (b *LegendBar) ReplaceLegend(l Legend) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.legend = l
}

// SetDomain sets the min/max labels.
func (b *LegendBar) SetDomain(min, max float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.min, b.max = min, max
}

// Legend returns the current legend.
func (b *LegendBar) Legend() Legend {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.legend
}

// Domain returns the min/max labels.
func (b *LegendBar) Domain() (float64, float64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.min, b.max
}
