package basemap

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/joeblew999/plat-overlay/internal/mapstate"
)

// Backup holds the custom sources and layers of a style, captured right
// before the style is replaced.
type Backup struct {
	Sources map[string]mapstate.Source `json:"sources"`
	Layers  []mapstate.Layer           `json:"layers"`
}

// Empty reports whether the backup holds nothing.
func (b *Backup) Empty() bool {
	return b == nil || (len(b.Sources) == 0 && len(b.Layers) == 0)
}

// SourceIDs returns the backed up source IDs in sorted order.
func (b *Backup) SourceIDs() []string {
	ids := make([]string, 0, len(b.Sources))
	for id := range b.Sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// merge folds the newer capture into b. Layers keep b's order; layers only
// present in newer are appended in their captured order.
func (b *Backup) merge(newer *Backup) *Backup {
	out := &Backup{Sources: make(map[string]mapstate.Source, len(b.Sources)+len(newer.Sources))}
	for id, src := range b.Sources {
		out.Sources[id] = src
	}
	for id, src := range newer.Sources {
		out.Sources[id] = src
	}

	replaced := make(map[string]mapstate.Layer, len(newer.Layers))
	for _, l := range newer.Layers {
		replaced[l.ID] = l
	}
	seen := make(map[string]bool, len(b.Layers))
	for _, l := range b.Layers {
		if r, ok := replaced[l.ID]; ok {
			l = r
		}
		out.Layers = append(out.Layers, l)
		seen[l.ID] = true
	}
	for _, l := range newer.Layers {
		if !seen[l.ID] {
			out.Layers = append(out.Layers, l)
		}
	}
	return out
}

// RestoreResult counts what a restoration re-added.
type RestoreResult struct {
	Sources int `json:"sources"`
	Layers  int `json:"layers"`
}

// Option configures a Preserver.
type Option func(*Preserver)

// WithPrefix also treats sources whose ID starts with prefix as custom, for
// sources added to the map without going through the preserver.
func WithPrefix(prefix string) Option {
	return func(p *Preserver) { p.prefix = prefix }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Preserver) { p.log = log }
}

// WithRestoreHook registers fn to run after every successful restoration.
func WithRestoreHook(fn func(RestoreResult)) Option {
	return func(p *Preserver) { p.onRestore = fn }
}

// Preserver replaces the basemap style of a map and restores the custom
// sources and layers afterwards.
//
// Custom sources are the ones registered through AddSource or Track. A swap
// captures them with their layers, replaces the whole style and re-adds them
// once the new style has loaded. If the load fails the backup stays pending
// and is restored by the next style that loads. A second swap before the
// first restoration merges both backups, so no overlay is dropped.
type Preserver struct {
	m         *mapstate.Map
	catalog   Catalog
	prefix    string
	log       *zap.Logger
	onRestore func(RestoreResult)

	mu       sync.Mutex
	tracked  map[string]struct{}
	pending  *Backup
	unlisten func()
	current  string

	restoreMu sync.Mutex
}

// NewPreserver creates a preserver for m with the given style catalog.
func NewPreserver(m *mapstate.Map, catalog Catalog, opts ...Option) *Preserver {
	p := &Preserver{
		m:       m,
		catalog: catalog,
		log:     zap.NewNop(),
		tracked: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Catalog returns the style catalog.
func (p *Preserver) Catalog() Catalog {
	return p.catalog
}

// Current returns the code of the last requested basemap.
func (p *Preserver) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Track marks a source ID as custom.
func (p *Preserver) Track(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracked[id] = struct{}{}
}

// AddSource adds src to the map and tracks it as custom.
func (p *Preserver) AddSource(id string, src mapstate.Source) error {
	if err := p.m.AddSource(id, src); err != nil {
		return err
	}
	p.Track(id)
	return nil
}

// Add adds a custom source together with its layers. While a style swap is
// in progress the map rejects additions, so they are queued on the pending
// backup and appear with the restoration.
func (p *Preserver) Add(id string, src mapstate.Source, layers ...mapstate.Layer) error {
	err := p.add(id, src, layers)
	if errors.Is(err, mapstate.ErrStyleNotLoaded) {
		return p.queue(id, src, layers)
	}
	return err
}

func (p *Preserver) add(id string, src mapstate.Source, layers []mapstate.Layer) error {
	if err := p.m.AddSource(id, src); err != nil {
		return err
	}
	p.Track(id)
	for _, l := range layers {
		if err := p.m.AddLayer(l); err != nil {
			return err
		}
	}
	return nil
}

func (p *Preserver) queue(id string, src mapstate.Source, layers []mapstate.Layer) error {
	p.mu.Lock()
	if p.pending == nil {
		p.mu.Unlock()
		// The restoration may have finished between the rejected add and here.
		if p.m.IsStyleLoaded() {
			return p.add(id, src, layers)
		}
		return mapstate.ErrStyleNotLoaded
	}
	p.pending = p.pending.merge(&Backup{
		Sources: map[string]mapstate.Source{id: src},
		Layers:  layers,
	})
	p.tracked[id] = struct{}{}
	p.mu.Unlock()

	p.log.Debug("Queued source for restoration", zap.String("source", id))
	// The style may have finished loading while we queued.
	if p.m.IsStyleLoaded() {
		if _, err := p.Restore(); err != nil {
			return err
		}
	}
	return nil
}

// SetSourceData replaces the data of a custom GeoJSON source. During a style
// swap the source only exists in the pending backup, so the backup is
// updated and the new data arrives with the restoration.
func (p *Preserver) SetSourceData(id string, data any) error {
	err := p.m.SetSourceData(id, data)
	if !errors.Is(err, mapstate.ErrSourceNotFound) {
		return err
	}

	p.mu.Lock()
	if p.pending == nil {
		p.mu.Unlock()
		return err
	}
	src, ok := p.pending.Sources[id]
	if !ok {
		p.mu.Unlock()
		return err
	}
	src = src.Clone()
	src["data"] = data
	p.pending = p.pending.merge(&Backup{Sources: map[string]mapstate.Source{id: src}})
	p.mu.Unlock()

	if p.m.IsStyleLoaded() {
		if _, err := p.Restore(); err != nil {
			return err
		}
		return p.m.SetSourceData(id, data)
	}
	return nil
}

// SetLayoutProperty sets a layout property on every layer drawing from a
// custom source. During a style swap those layers only exist in the pending
// backup, so the backup is updated and the value arrives with the
// restoration.
func (p *Preserver) SetLayoutProperty(sourceID, name string, value any) error {
	err := p.setLayout(sourceID, name, value)
	if !errors.Is(err, mapstate.ErrSourceNotFound) {
		return err
	}

	p.mu.Lock()
	if p.pending == nil {
		p.mu.Unlock()
		if p.m.IsStyleLoaded() {
			return p.setLayout(sourceID, name, value)
		}
		return err
	}
	if _, ok := p.pending.Sources[sourceID]; !ok {
		p.mu.Unlock()
		return err
	}
	var layers []mapstate.Layer
	for _, l := range p.pending.Layers {
		if l.Source != sourceID {
			continue
		}
		l = l.Clone()
		if l.Layout == nil {
			l.Layout = make(map[string]any)
		}
		l.Layout[name] = value
		layers = append(layers, l)
	}
	p.pending = p.pending.merge(&Backup{Layers: layers})
	p.mu.Unlock()

	if p.m.IsStyleLoaded() {
		if _, err := p.Restore(); err != nil {
			return err
		}
		return p.setLayout(sourceID, name, value)
	}
	return nil
}

func (p *Preserver) setLayout(sourceID, name string, value any) error {
	if _, ok := p.m.Source(sourceID); !ok {
		return fmt.Errorf("%w: %s", mapstate.ErrSourceNotFound, sourceID)
	}
	for _, l := range p.m.Style().Layers {
		if l.Source != sourceID {
			continue
		}
		if err := p.m.SetLayoutProperty(l.ID, name, value); err != nil {
			return err
		}
	}
	return nil
}

// IsCustom reports whether the source with the given ID survives style swaps.
func (p *Preserver) IsCustom(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isCustomLocked(id)
}

func (p *Preserver) isCustomLocked(id string) bool {
	if _, ok := p.tracked[id]; ok {
		return true
	}
	return p.prefix != "" && strings.HasPrefix(id, p.prefix)
}

// Capture copies the custom sources of the active style and every layer
// drawing from them, in draw order.
func (p *Preserver) Capture() *Backup {
	style := p.m.Style()

	p.mu.Lock()
	defer p.mu.Unlock()

	b := &Backup{Sources: make(map[string]mapstate.Source)}
	for id, src := range style.Sources {
		if p.isCustomLocked(id) {
			b.Sources[id] = src
		}
	}
	for _, l := range style.Layers {
		if _, ok := b.Sources[l.Source]; ok {
			b.Layers = append(b.Layers, l)
		}
	}
	return b
}

// Pending returns the backup waiting for restoration, or nil.
func (p *Preserver) Pending() *Backup {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// Switch replaces the style with the catalog entry code.
func (p *Preserver) Switch(ctx context.Context, code string) error {
	b, ok := p.catalog.Lookup(code)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStyle, code)
	}
	p.switchTo(ctx, b.Code, b.URL)
	return nil
}

// SwitchURL replaces the style with the document at url.
func (p *Preserver) SwitchURL(ctx context.Context, url string) {
	p.switchTo(ctx, "", url)
}

func (p *Preserver) switchTo(ctx context.Context, code, url string) {
	backup := p.Capture()

	p.mu.Lock()
	if p.pending != nil {
		backup = p.pending.merge(backup)
	}
	p.pending = backup
	p.current = code
	if p.unlisten != nil {
		p.unlisten()
	}
	// Registered before the swap starts, the load may finish at any time.
	p.unlisten = p.m.Once(mapstate.EventStyleLoad, p.handleStyleLoad)
	p.mu.Unlock()

	p.log.Info("Switching basemap style",
		zap.String("code", code),
		zap.String("url", url),
		zap.Int("sources", len(backup.Sources)),
		zap.Int("layers", len(backup.Layers)),
	)
	p.m.SetStyle(ctx, url)
}

func (p *Preserver) handleStyleLoad(mapstate.Event) {
	p.mu.Lock()
	p.unlisten = nil
	p.mu.Unlock()

	if _, err := p.Restore(); err != nil {
		p.log.Warn("Restoring custom layers failed", zap.Error(err))
	}
}

// Restore re-adds the pending backup to the active style. Sources and layers
// that already exist are skipped, so calling Restore more than once is
// harmless. The backup is cleared only after everything was re-added.
func (p *Preserver) Restore() (RestoreResult, error) {
	p.restoreMu.Lock()
	defer p.restoreMu.Unlock()

	p.mu.Lock()
	b := p.pending
	p.mu.Unlock()

	var res RestoreResult
	if b == nil {
		return res, nil
	}

	for _, id := range b.SourceIDs() {
		if _, ok := p.m.Source(id); ok {
			continue
		}
		err := p.m.AddSource(id, b.Sources[id])
		if errors.Is(err, mapstate.ErrSourceExists) {
			continue
		}
		if err != nil {
			return res, fmt.Errorf("restoring source %s: %w", id, err)
		}
		res.Sources++
	}
	for _, l := range b.Layers {
		if _, ok := p.m.Layer(l.ID); ok {
			continue
		}
		err := p.m.AddLayer(l)
		if errors.Is(err, mapstate.ErrLayerExists) {
			continue
		}
		if err != nil {
			return res, fmt.Errorf("restoring layer %s: %w", l.ID, err)
		}
		res.Layers++
	}

	p.mu.Lock()
	for id := range b.Sources {
		p.tracked[id] = struct{}{}
	}
	// A swap that started meanwhile merged b into a new backup; keep that one.
	if p.pending == b {
		p.pending = nil
	}
	p.mu.Unlock()

	p.log.Debug("Restored custom layers",
		zap.Int("sources", res.Sources),
		zap.Int("layers", res.Layers),
	)
	if p.onRestore != nil {
		p.onRestore(res)
	}
	return res, nil
}
