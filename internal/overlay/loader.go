package overlay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var ErrUnknownKind = errors.New("unknown overlay kind")

// Signal is a loading notification.
type Signal string

const (
	SignalLoading Signal = "dataloading"
	SignalLoaded  Signal = "dataload"
)

// Event is delivered to observers. Every SignalLoading event is followed by
// exactly one SignalLoaded event for the same key, whether the load
// succeeded or not.
type Event struct {
	Signal Signal
	Key    Key
	Err    error
}

// Observer receives loading events.
type Observer func(Event)

// Notifier shows a message to the user.
type Notifier interface {
	Alert(msg string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(msg string)

// Alert implements Notifier.
func (f NotifierFunc) Alert(msg string) { f(msg) }

// Target is where loaded overlays are drawn.
type Target interface {
	AddOverlay(o *Overlay) error
	FitBounds(b orb.Bound)
}

// Entry is a cached overlay.
type Entry struct {
	Key     Key
	Overlay *Overlay
	Bound   orb.Bound
}

// Config holds the collaborators of a Loader.
type Config struct {
	Fetcher  Fetcher
	Target   Target
	Control  *Control
	Notifier Notifier
	Logger   *zap.Logger
}

// Loader fetches overlays on demand and caches them by key for the lifetime
// of one map. Concurrent loads of the same key share a single fetch; a key
// that is already cached is never fetched again.
type Loader struct {
	fetcher  Fetcher
	target   Target
	control  *Control
	notifier Notifier
	log      *zap.Logger

	flights singleflight.Group

	mu    sync.RWMutex
	cache map[Key]*Entry

	obsMu     sync.RWMutex
	obsNext   int
	observers map[int]Observer
}

// NewLoader creates a loader.
func NewLoader(cfg Config) *Loader {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Control == nil {
		cfg.Control = NewControl()
	}
	return &Loader{
		fetcher:   cfg.Fetcher,
		target:    cfg.Target,
		control:   cfg.Control,
		notifier:  cfg.Notifier,
		log:       cfg.Logger,
		cache:     make(map[Key]*Entry),
		observers: make(map[int]Observer),
	}
}

// Control returns the layer control overlays are registered with.
func (l *Loader) Control() *Control {
	return l.control
}

// Subscribe registers an observer for loading events. The returned function
// removes it.
func (l *Loader) Subscribe(obs Observer) func() {
	l.obsMu.Lock()
	defer l.obsMu.Unlock()
	l.obsNext++
	id := l.obsNext
	l.observers[id] = obs
	return func() {
		l.obsMu.Lock()
		defer l.obsMu.Unlock()
		delete(l.observers, id)
	}
}

func (l *Loader) emit(ev Event) {
	l.obsMu.RLock()
	ids := make([]int, 0, len(l.observers))
	for id := range l.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	obs := make([]Observer, 0, len(ids))
	for _, id := range ids {
		obs = append(obs, l.observers[id])
	}
	l.obsMu.RUnlock()

	for _, o := range obs {
		o(ev)
	}
}

// Get returns the cached entry for key.
func (l *Loader) Get(key Key) (*Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.cache[key]
	return e, ok
}

// Entries returns all cached entries sorted by key.
func (l *Loader) Entries() []*Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Entry, 0, len(l.cache))
	for _, e := range l.cache {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Load makes sure the overlay behind req is loaded.
//
// A cached key returns the existing entry without fetching, erroring or
// touching visibility. Otherwise one fetch is issued, shared with any
// concurrent caller for the same key. On failure the user is alerted, the
// cache stays empty for the key and a later call fetches again.
func (l *Loader) Load(ctx context.Context, req Request) (*Entry, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, req.Kind)
	}
	key := req.Key()

	if e, ok := l.Get(key); ok {
		l.log.Debug("Overlay already loaded", zap.String("key", string(key)))
		return e, nil
	}

	// In-flight fetches are never aborted by the caller going away.
	ctx = context.WithoutCancel(ctx)

	v, err, shared := l.flights.Do(string(key), func() (any, error) {
		// A flight that finished between Get and Do already filled the cache.
		if e, ok := l.Get(key); ok {
			return e, nil
		}
		return l.fetchAndStore(ctx, key, req)
	})
	if shared {
		l.log.Debug("Joined in-flight overlay load", zap.String("key", string(key)))
	}
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

func (l *Loader) fetchAndStore(ctx context.Context, key Key, req Request) (entry *Entry, err error) {
	l.emit(Event{Signal: SignalLoading, Key: key})
	defer func() {
		l.emit(Event{Signal: SignalLoaded, Key: key, Err: err})
	}()

	fc, err := l.fetcher.Fetch(ctx, req.Kind, req.Query)
	if err != nil {
		l.fail(key, req.Kind, err)
		return nil, err
	}

	o := newOverlay(key, req, fc)
	if l.target != nil {
		if err := l.target.AddOverlay(o); err != nil {
			l.fail(key, req.Kind, err)
			return nil, fmt.Errorf("adding overlay %s: %w", key, err)
		}
		if req.Kind.FitsBounds() && o.HasGeometry() {
			l.target.FitBounds(o.Bound)
		}
	}

	entry = &Entry{Key: key, Overlay: o, Bound: o.Bound}
	l.mu.Lock()
	l.cache[key] = entry
	l.mu.Unlock()
	l.control.AddOverlay(key, req.Label())

	l.log.Info("Overlay loaded",
		zap.String("key", string(key)),
		zap.String("kind", string(req.Kind)),
		zap.Int("features", o.Len()),
	)
	return entry, nil
}

func (l *Loader) fail(key Key, kind Kind, err error) {
	l.log.Warn("Overlay load failed",
		zap.String("key", string(key)),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
	if l.notifier != nil {
		l.notifier.Alert(alertMessage(kind))
	}
}

func alertMessage(kind Kind) string {
	if kind == KindDataLayer {
		return "Something went wrong during loading the data."
	}
	return "Something went wrong during loading the geometry of the shape."
}
