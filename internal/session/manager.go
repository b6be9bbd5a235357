package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-overlay/internal/basemap"
	"github.com/joeblew999/plat-overlay/internal/choropleth"
	"github.com/joeblew999/plat-overlay/internal/mapstate"
	"github.com/joeblew999/plat-overlay/internal/overlay"
	"github.com/joeblew999/plat-overlay/internal/service"
)

var ErrSessionNotFound = errors.New("session not found")

// Options configures the sessions created by a Manager.
type Options struct {
	Styles       basemap.Catalog
	StyleLoader  mapstate.StyleLoader
	Fetcher      overlay.Fetcher
	Prefix       string
	Transparency float64
	Bus          *service.EventBus
	Logger       *zap.Logger
}

// Manager creates and tracks map sessions.
type Manager struct {
	opts Options
	log  *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager.
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Transparency == 0 {
		opts.Transparency = choropleth.DefaultTransparency
	}
	return &Manager{
		opts:     opts,
		log:      opts.Logger,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session on the default basemap. The style loads in the
// background; overlays added meanwhile are queued and drawn once it is ready.
func (mg *Manager) Create(ctx context.Context) (*Session, error) {
	id := uuid.NewString()
	log := mg.log.With(zap.String("session", id))

	s := &Session{
		ID:           id,
		Created:      time.Now(),
		Legend:       &choropleth.LegendBar{},
		prefix:       mg.opts.Prefix,
		transparency: mg.opts.Transparency,
		bus:          mg.opts.Bus,
		log:          log,
		sourceOf:     make(map[overlay.Key]string),
	}

	s.Map = mapstate.New(mg.opts.StyleLoader, log)
	s.Preserver = basemap.NewPreserver(s.Map, mg.opts.Styles,
		basemap.WithPrefix(mg.opts.Prefix),
		basemap.WithLogger(log),
		basemap.WithRestoreHook(func(res basemap.RestoreResult) {
			s.publish(service.EventRestored, s.Preserver.Current(), "")
		}),
	)
	s.Sources = s.Preserver.SourcesControl()

	s.Control = overlay.NewControl()
	for _, b := range mg.opts.Styles {
		s.Control.AddBaseLayer(b.Title)
	}

	s.Loader = overlay.NewLoader(overlay.Config{
		Fetcher:  mg.opts.Fetcher,
		Target:   s,
		Control:  s.Control,
		Notifier: s,
		Logger:   log,
	})
	s.Loader.Subscribe(func(ev overlay.Event) {
		s.publish(string(ev.Signal), string(ev.Key), "")
	})

	if b, ok := mg.opts.Styles.Default(); ok {
		if err := s.SwitchStyle(ctx, b.Code); err != nil {
			return nil, err
		}
	}

	mg.mu.Lock()
	mg.sessions[id] = s
	mg.mu.Unlock()

	log.Info("Session created")
	return s, nil
}

// Get returns a session by ID.
func (mg *Manager) Get(id string) (*Session, error) {
	mg.mu.RLock()
	defer mg.mu.RUnlock()
	s, ok := mg.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// List returns all sessions, oldest first.
func (mg *Manager) List() []*Session {
	mg.mu.RLock()
	defer mg.mu.RUnlock()
	out := make([]*Session, 0, len(mg.sessions))
	for _, s := range mg.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID < out[j].ID
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out
}

// Delete removes a session.
func (mg *Manager) Delete(id string) error {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	if _, ok := mg.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(mg.sessions, id)
	mg.log.Info("Session deleted", zap.String("session", id))
	return nil
}
