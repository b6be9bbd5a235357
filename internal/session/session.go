// Package session holds the per-user map controllers. A session owns one
// headless map with its style preserver, overlay loader, layer control and
// legend, and reports what happens to it on the event bus.
package session

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-overlay/internal/basemap"
	"github.com/joeblew999/plat-overlay/internal/choropleth"
	"github.com/joeblew999/plat-overlay/internal/mapstate"
	"github.com/joeblew999/plat-overlay/internal/overlay"
	"github.com/joeblew999/plat-overlay/internal/service"
)

var ErrOverlayNotLoaded = errors.New("overlay not loaded")

// Session is one map and everything drawn on it.
type Session struct {
	ID      string
	Created time.Time

	Map       *mapstate.Map
	Preserver *basemap.Preserver
	Loader    *overlay.Loader
	Control   *overlay.Control
	Sources   *basemap.SourcesControl
	Legend    *choropleth.LegendBar

	prefix       string
	transparency float64
	bus          *service.EventBus
	log          *zap.Logger

	mu       sync.RWMutex
	sourceOf map[overlay.Key]string
	alerts   []string
}

// SourceID returns the map source ID of an overlay key.
func (s *Session) SourceID(key overlay.Key) string {
	sum := sha1.Sum([]byte(key))
	return s.prefix + hex.EncodeToString(sum[:6])
}

// AddOverlay implements overlay.Target. The overlay becomes a GeoJSON source
// with fill, outline and point layers whose paint is driven by the "fill" and
// "fill-opacity" feature properties.
func (s *Session) AddOverlay(o *overlay.Overlay) error {
	id := s.SourceID(o.Key)
	src := mapstate.Source{"type": "geojson", "data": o.Styled()}
	err := s.Preserver.Add(id, src, overlayLayers(id)...)
	if err != nil {
		return fmt.Errorf("adding overlay %s: %w", o.Key, err)
	}

	s.mu.Lock()
	s.sourceOf[o.Key] = id
	s.mu.Unlock()
	return nil
}

func overlayLayers(source string) []mapstate.Layer {
	return []mapstate.Layer{
		{
			ID:     source + "-fill",
			Type:   "fill",
			Source: source,
			Filter: []any{"==", []any{"geometry-type"}, "Polygon"},
			Paint: map[string]any{
				"fill-color":   []any{"get", "fill"},
				"fill-opacity": []any{"get", "fill-opacity"},
			},
		},
		{
			ID:     source + "-line",
			Type:   "line",
			Source: source,
			Paint:  map[string]any{"line-color": []any{"get", "fill"}, "line-width": 1},
		},
		{
			ID:     source + "-point",
			Type:   "circle",
			Source: source,
			Filter: []any{"==", []any{"geometry-type"}, "Point"},
			Paint: map[string]any{
				"circle-color":   []any{"get", "fill"},
				"circle-opacity": []any{"get", "fill-opacity"},
				"circle-radius":  5,
			},
		},
	}
}

// FitBounds implements overlay.Target.
func (s *Session) FitBounds(b orb.Bound) {
	s.Map.FitBounds(b)
}

// Alert implements overlay.Notifier.
func (s *Session) Alert(msg string) {
	s.mu.Lock()
	s.alerts = append(s.alerts, msg)
	s.mu.Unlock()

	s.log.Info("Alert", zap.String("message", msg))
	s.publish(service.EventAlert, "", msg)
}

// Alerts returns the alerts shown so far.
func (s *Session) Alerts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.alerts...)
}

func (s *Session) publish(typ, key, msg string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(service.Event{Session: s.ID, Type: typ, Key: key, Message: msg})
}

// LoadOverlay loads an overlay into the session.
func (s *Session) LoadOverlay(ctx context.Context, req overlay.Request) (*overlay.Entry, error) {
	return s.Loader.Load(ctx, req)
}

// SwitchStyle swaps the basemap, keeping every overlay.
func (s *Session) SwitchStyle(ctx context.Context, code string) error {
	b, ok := s.Preserver.Catalog().Lookup(code)
	if !ok {
		return fmt.Errorf("%w: %s", basemap.ErrUnknownStyle, code)
	}
	if err := s.Preserver.Switch(ctx, code); err != nil {
		return err
	}
	if err := s.Control.SelectBase(b.Title); err != nil {
		s.log.Debug("Basemap not in layer control", zap.String("title", b.Title))
	}
	s.publish(service.EventStyle, code, "")
	return nil
}

// SetOverlayVisible shows or hides a loaded overlay. The layer control only
// changes once the map, or the pending backup during a style swap, took the
// new visibility.
func (s *Session) SetOverlayVisible(key overlay.Key, visible bool) error {
	id, ok := s.source(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrOverlayNotLoaded, key)
	}
	if err := s.Sources.SetVisible(id, visible); err != nil {
		return err
	}
	return s.Control.SetVisible(key, visible)
}

func (s *Session) source(key overlay.Key) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.sourceOf[key]
	return id, ok
}

// PresetRequest describes one repaint of an overlay.
type PresetRequest struct {
	Key          overlay.Key
	Palette      choropleth.Palette
	Transparency string
	Min, Max     float64
	VariantKey   string
}

// ApplyPreset recolors a loaded overlay, rebuilds the legend and pushes the
// new paint to the map source.
func (s *Session) ApplyPreset(req PresetRequest) (choropleth.Stats, error) {
	entry, ok := s.Loader.Get(req.Key)
	if !ok {
		return choropleth.Stats{}, fmt.Errorf("%w: %s", ErrOverlayNotLoaded, req.Key)
	}
	transparency := req.Transparency
	if transparency == "" {
		transparency = strconv.FormatFloat(s.transparency, 'f', -1, 64)
	}

	stats := choropleth.ApplyPreset(req.Palette, s.Legend, transparency, req.Min, req.Max, entry.Overlay, req.VariantKey)
	s.Legend.SetDomain(req.Min, req.Max)

	if id, ok := s.source(req.Key); ok {
		if err := s.Preserver.SetSourceData(id, entry.Overlay.Styled()); err != nil {
			s.log.Warn("Repaint failed", zap.String("source", id), zap.Error(err))
		}
	}

	s.log.Debug("Preset applied",
		zap.String("key", string(req.Key)),
		zap.Int("painted", stats.Painted),
		zap.Int("skipped", stats.Skipped),
	)
	s.publish(service.EventRepaint, string(req.Key), "")
	return stats, nil
}

// Domain returns the smallest and largest classified value of a loaded
// overlay, reading the same property ApplyPreset classifies. ok is false when
// no feature carries a number.
func (s *Session) Domain(key overlay.Key, variantKey string) (min, max float64, ok bool) {
	entry, found := s.Loader.Get(key)
	if !found {
		return 0, 0, false
	}
	prop := "availableCount"
	if variantKey != "" {
		prop = "value"
	}
	entry.Overlay.EachLayer(func(l choropleth.Layer) {
		v := choropleth.NumericValue(l.Properties()[prop])
		if math.IsNaN(v) {
			return
		}
		if !ok || v < min {
			min = v
		}
		if !ok || v > max {
			max = v
		}
		ok = true
	})
	return min, max, ok
}

// ResolveDomain picks the [min, max] of a repaint. Explicit bounds win; a
// missing bound comes from the stored data layer range when values, variant
// and shape type are known, otherwise from the overlay's own values.
func (s *Session) ResolveDomain(ctx context.Context, values *service.ValueStore, key overlay.Key, variantKey, shapeType string, min, max *float64) (float64, float64) {
	if min != nil && max != nil {
		return *min, *max
	}

	var lo, hi float64
	found := false
	if values != nil && variantKey != "" && shapeType != "" {
		r, err := values.Range(ctx, variantKey, shapeType)
		if err == nil {
			lo, hi, found = r.Min, r.Max, true
		} else {
			s.log.Debug("No stored value range", zap.String("datalayer", variantKey), zap.Error(err))
		}
	}
	if !found {
		lo, hi, _ = s.Domain(key, variantKey)
	}
	if min != nil {
		lo = *min
	}
	if max != nil {
		hi = *max
	}
	return lo, hi
}
