// Package mapstate models the state of a vector map engine: the active style
// document with its sources and ordered layers, the viewport, and the event
// emitter the engine uses to announce style loads.
//
// The browser runs the real renderer; this package is the server-side mirror
// that overlays, style swaps and visibility toggles operate on.
package mapstate

// Source is a style source definition, kept verbatim as it appears in a
// style document (type, url, tiles, data, ...).
type Source map[string]any

// Layer is a style layer definition.
type Layer struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Source      string         `json:"source,omitempty"`
	SourceLayer string         `json:"source-layer,omitempty"`
	MinZoom     float64        `json:"minzoom,omitempty"`
	MaxZoom     float64        `json:"maxzoom,omitempty"`
	Filter      any            `json:"filter,omitempty"`
	Layout      map[string]any `json:"layout,omitempty"`
	Paint       map[string]any `json:"paint,omitempty"`
}

// Style is a style document: the basemap sources and layers plus anything
// added at runtime.
type Style struct {
	Version int               `json:"version"`
	Name    string            `json:"name,omitempty"`
	Sprite  string            `json:"sprite,omitempty"`
	Glyphs  string            `json:"glyphs,omitempty"`
	Sources map[string]Source `json:"sources"`
	Layers  []Layer           `json:"layers"`
}

// NewStyle returns an empty version 8 style document.
func NewStyle(name string) *Style {
	return &Style{
		Version: 8,
		Name:    name,
		Sources: make(map[string]Source),
		Layers:  []Layer{},
	}
}

// Clone returns a deep copy of the style. Nested maps and slices are copied;
// other values (for example decoded GeoJSON payloads) are shared.
func (s *Style) Clone() *Style {
	if s == nil {
		return nil
	}
	c := &Style{
		Version: s.Version,
		Name:    s.Name,
		Sprite:  s.Sprite,
		Glyphs:  s.Glyphs,
		Sources: make(map[string]Source, len(s.Sources)),
		Layers:  make([]Layer, len(s.Layers)),
	}
	for id, src := range s.Sources {
		c.Sources[id] = src.Clone()
	}
	for i, l := range s.Layers {
		c.Layers[i] = l.Clone()
	}
	return c
}

// Clone returns a deep copy of the source definition.
func (s Source) Clone() Source {
	if s == nil {
		return nil
	}
	return Source(cloneMap(s))
}

// Clone returns a deep copy of the layer definition.
func (l Layer) Clone() Layer {
	c := l
	c.Filter = cloneValue(l.Filter)
	if l.Layout != nil {
		c.Layout = cloneMap(l.Layout)
	}
	if l.Paint != nil {
		c.Paint = cloneMap(l.Paint)
	}
	return c
}

func cloneMap(m map[string]any) map[string]any {
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = cloneValue(v)
	}
	return c
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case Source:
		return t.Clone()
	case []any:
		c := make([]any, len(t))
		for i, e := range t {
			c[i] = cloneValue(e)
		}
		return c
	default:
		return v
	}
}

// layerIndex returns the position of the layer with the given ID, or -1.
func (s *Style) layerIndex(id string) int {
	for i, l := range s.Layers {
		if l.ID == id {
			return i
		}
	}
	return -1
}
