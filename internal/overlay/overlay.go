package overlay

import (
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-overlay/internal/choropleth"
)

// Default paint of freshly loaded overlays.
var (
	shapePaint     = choropleth.Paint{FillColor: "#3388ff", FillOpacity: 0.2}
	dataLayerPaint = choropleth.Paint{FillColor: "#ff0000", FillOpacity: 0.2}
)

// Feature is one rendered feature of an overlay together with its popup and
// current paint.
type Feature struct {
	Feature *geojson.Feature
	Popup   Popup
	paint   choropleth.Paint
}

// Properties implements choropleth.Layer.
func (f *Feature) Properties() map[string]any {
	if f.Feature == nil || f.Feature.Properties == nil {
		return nil
	}
	return f.Feature.Properties
}

// SetPaint implements choropleth.Layer.
func (f *Feature) SetPaint(p choropleth.Paint) {
	f.paint = p
}

// Overlay is a rendered feature collection. It is a choropleth.Group, so
// presets can restyle it in place.
type Overlay struct {
	Key        Key
	Kind       Kind
	Label      string
	Collection *geojson.FeatureCollection
	Bound      orb.Bound

	mu       sync.RWMutex
	features []*Feature
}

func newOverlay(key Key, req Request, fc *geojson.FeatureCollection) *Overlay {
	popup := req.Format
	if popup == nil || req.Kind != KindDataLayer {
		popup = popupFor(req.Kind)
	}
	paint := shapePaint
	if req.Kind == KindDataLayer {
		paint = dataLayerPaint
	}

	o := &Overlay{
		Key:        key,
		Kind:       req.Kind,
		Label:      req.Label(),
		Collection: fc,
		features:   make([]*Feature, 0, len(fc.Features)),
	}

	first := true
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		o.features = append(o.features, &Feature{Feature: f, Popup: popup(f), paint: paint})
		if f.Geometry == nil {
			continue
		}
		if first {
			o.Bound = f.Geometry.Bound()
			first = false
		} else {
			o.Bound = o.Bound.Union(f.Geometry.Bound())
		}
	}
	return o
}

// HasGeometry reports whether at least one feature has a geometry.
func (o *Overlay) HasGeometry() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, f := range o.features {
		if f.Feature != nil && f.Feature.Geometry != nil {
			return true
		}
	}
	return false
}

// Len returns the number of features.
func (o *Overlay) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.features)
}

// EachLayer implements choropleth.Group. Features are visited under the
// overlay's write lock.
func (o *Overlay) EachLayer(fn func(choropleth.Layer)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, f := range o.features {
		fn(f)
	}
}

// Popups returns the popup of every feature, in feature order.
func (o *Overlay) Popups() []Popup {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]Popup, len(o.features))
	for i, f := range o.features {
		out[i] = f.Popup
	}
	return out
}

// Paints returns the current paint of every feature, in feature order.
func (o *Overlay) Paints() []choropleth.Paint {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]choropleth.Paint, len(o.features))
	for i, f := range o.features {
		out[i] = f.paint
	}
	return out
}

// Styled returns a copy of the collection whose features carry their paint
// as "fill" and "fill-opacity" properties, ready to be used as GeoJSON
// source data with data-driven paint.
func (o *Overlay) Styled() *geojson.FeatureCollection {
	o.mu.RLock()
	defer o.mu.RUnlock()

	fc := geojson.NewFeatureCollection()
	for _, f := range o.features {
		if f.Feature == nil || f.Feature.Geometry == nil {
			continue
		}
		c := geojson.NewFeature(f.Feature.Geometry)
		c.ID = f.Feature.ID
		for k, v := range f.Feature.Properties {
			c.Properties[k] = v
		}
		c.Properties["fill"] = f.paint.FillColor
		c.Properties["fill-opacity"] = f.paint.FillOpacity
		fc.Append(c)
	}
	return fc
}
