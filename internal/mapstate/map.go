package mapstate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

// Events emitted by a Map.
const (
	EventStyleLoad = "style.load"
	EventError     = "error"
	EventMoveEnd   = "moveend"
)

var (
	ErrStyleNotLoaded = errors.New("style is not loaded")
	ErrSourceExists   = errors.New("source already exists")
	ErrSourceNotFound = errors.New("source not found")
	ErrLayerExists    = errors.New("layer already exists")
	ErrLayerNotFound  = errors.New("layer not found")
)

// Event is passed to listeners registered with On or Once.
type Event struct {
	Type string
	Err  error
	Data any
}

// Listener handles a map event.
type Listener func(Event)

type listener struct {
	id   int
	fn   Listener
	once bool
}

// Viewport is the visible area of the map.
type Viewport struct {
	Center orb.Point `json:"center"`
	Zoom   float64   `json:"zoom"`
	Bound  orb.Bound `json:"bound"`
}

// Map is a headless map engine instance.
//
// Style replacement is always a full replacement: SetStyle drops the current
// document and additions are rejected with ErrStyleNotLoaded until the new
// document has loaded and EventStyleLoad has fired.
type Map struct {
	loader StyleLoader
	log    *zap.Logger

	mu        sync.Mutex
	style     *Style
	styleURL  string
	loaded    bool
	gen       uint64
	viewport  Viewport
	nextID    int
	listeners map[string][]*listener
}

// New creates a map that resolves style URLs with loader.
func New(loader StyleLoader, log *zap.Logger) *Map {
	if log == nil {
		log = zap.NewNop()
	}
	return &Map{
		loader:    loader,
		log:       log,
		style:     NewStyle(""),
		listeners: make(map[string][]*listener),
	}
}

// On registers fn for every event of the given type. The returned function
// removes the registration.
func (m *Map) On(event string, fn Listener) func() {
	return m.register(event, fn, false)
}

// Once registers fn for the next event of the given type only.
func (m *Map) Once(event string, fn Listener) func() {
	return m.register(event, fn, true)
}

func (m *Map) register(event string, fn Listener, once bool) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	l := &listener{id: m.nextID, fn: fn, once: once}
	m.listeners[event] = append(m.listeners[event], l)

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.removeLocked(event, l.id)
	}
}

func (m *Map) removeLocked(event string, id int) {
	ls := m.listeners[event]
	for i, l := range ls {
		if l.id == id {
			m.listeners[event] = append(ls[:i:i], ls[i+1:]...)
			return
		}
	}
}

// Fire dispatches an event to its listeners. Listeners run outside the map
// lock, so they may call back into the map.
func (m *Map) Fire(ev Event) {
	m.mu.Lock()
	ls := m.listeners[ev.Type]
	calls := make([]Listener, 0, len(ls))
	kept := ls[:0:0]
	for _, l := range ls {
		calls = append(calls, l.fn)
		if !l.once {
			kept = append(kept, l)
		}
	}
	m.listeners[ev.Type] = kept
	m.mu.Unlock()

	for _, fn := range calls {
		fn(ev)
	}
}

// SetStyle replaces the active style with the document behind url. The
// current document is dropped immediately; the new one is fetched in the
// background and EventStyleLoad fires once it is applied. If another
// SetStyle call happens first, the older load is discarded.
func (m *Map) SetStyle(ctx context.Context, url string) {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.style = NewStyle("")
	m.styleURL = url
	m.loaded = false
	m.mu.Unlock()

	go m.loadStyle(context.WithoutCancel(ctx), gen, url)
}

func (m *Map) loadStyle(ctx context.Context, gen uint64, url string) {
	style, err := m.loader.Load(ctx, url)

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		m.log.Debug("Discarding superseded style", zap.String("url", url))
		return
	}
	if err != nil {
		m.mu.Unlock()
		m.log.Warn("Style failed to load", zap.String("url", url), zap.Error(err))
		m.Fire(Event{Type: EventError, Err: fmt.Errorf("loading style %s: %w", url, err)})
		return
	}
	m.style = style.Clone()
	m.loaded = true
	m.mu.Unlock()

	m.log.Debug("Style loaded", zap.String("url", url), zap.Int("layers", len(style.Layers)))
	m.Fire(Event{Type: EventStyleLoad, Data: url})
}

// SetStyleDocument replaces the active style with an already resolved
// document and fires EventStyleLoad synchronously.
func (m *Map) SetStyleDocument(style *Style) {
	m.mu.Lock()
	m.gen++
	m.style = style.Clone()
	m.styleURL = ""
	m.loaded = true
	m.mu.Unlock()

	m.Fire(Event{Type: EventStyleLoad})
}

// Style returns a snapshot of the active style document.
func (m *Map) Style() *Style {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.style.Clone()
}

// StyleURL returns the URL of the most recently requested style.
func (m *Map) StyleURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.styleURL
}

// IsStyleLoaded reports whether the active style has finished loading.
func (m *Map) IsStyleLoaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

// AddSource adds a source to the active style.
func (m *Map) AddSource(id string, src Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		return ErrStyleNotLoaded
	}
	if _, ok := m.style.Sources[id]; ok {
		return fmt.Errorf("%w: %s", ErrSourceExists, id)
	}
	m.style.Sources[id] = src.Clone()
	return nil
}

// Source returns the source with the given ID.
func (m *Map) Source(id string) (Source, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.style.Sources[id]
	if !ok {
		return nil, false
	}
	return src.Clone(), true
}

// SetSourceData replaces the data of a GeoJSON source.
func (m *Map) SetSourceData(id string, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.style.Sources[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, id)
	}
	src["data"] = data
	return nil
}

// AddLayer appends a layer on top of the active style.
func (m *Map) AddLayer(l Layer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		return ErrStyleNotLoaded
	}
	if m.style.layerIndex(l.ID) >= 0 {
		return fmt.Errorf("%w: %s", ErrLayerExists, l.ID)
	}
	if l.Source != "" {
		if _, ok := m.style.Sources[l.Source]; !ok {
			return fmt.Errorf("%w: %s", ErrSourceNotFound, l.Source)
		}
	}
	m.style.Layers = append(m.style.Layers, l.Clone())
	return nil
}

// Layer returns the layer with the given ID.
func (m *Map) Layer(id string) (Layer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.style.layerIndex(id)
	if i < 0 {
		return Layer{}, false
	}
	return m.style.Layers[i].Clone(), true
}

// SetLayoutProperty sets a layout property (for example "visibility").
func (m *Map) SetLayoutProperty(layerID, name string, value any) error {
	return m.setProperty(layerID, func(l *Layer) {
		if l.Layout == nil {
			l.Layout = make(map[string]any)
		}
		l.Layout[name] = value
	})
}

// SetPaintProperty sets a paint property (for example "fill-opacity").
func (m *Map) SetPaintProperty(layerID, name string, value any) error {
	return m.setProperty(layerID, func(l *Layer) {
		if l.Paint == nil {
			l.Paint = make(map[string]any)
		}
		l.Paint[name] = value
	})
}

func (m *Map) setProperty(layerID string, fn func(*Layer)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.style.layerIndex(layerID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrLayerNotFound, layerID)
	}
	fn(&m.style.Layers[i])
	return nil
}

// FitBounds moves the viewport to the bound and fires EventMoveEnd.
func (m *Map) FitBounds(b orb.Bound) {
	m.mu.Lock()
	m.viewport.Bound = b
	m.viewport.Center = b.Center()
	m.mu.Unlock()

	m.Fire(Event{Type: EventMoveEnd, Data: b})
}

// SetView centers the map on a point at the given zoom.
func (m *Map) SetView(center orb.Point, zoom float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.viewport.Center = center
	m.viewport.Zoom = zoom
}

// Viewport returns the current viewport.
func (m *Map) Viewport() Viewport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewport
}
