package mapstate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// StyleLoader resolves a style URL to a style document.
type StyleLoader interface {
	Load(ctx context.Context, url string) (*Style, error)
}

// HTTPLoader fetches style documents over HTTP(S) and reads anything else
// from disk, relative to Dir.
type HTTPLoader struct {
	Client *http.Client
	Dir    string
}

// Load implements StyleLoader.
func (l *HTTPLoader) Load(ctx context.Context, url string) (*Style, error) {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return l.fetch(ctx, url)
	}

	path := strings.TrimPrefix(url, "file://")
	if !filepath.IsAbs(path) && l.Dir != "" {
		path = filepath.Join(l.Dir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading style: %w", err)
	}
	return ParseStyle(data)
}

func (l *HTTPLoader) fetch(ctx context.Context, url string) (*Style, error) {
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching style: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching style: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading style body: %w", err)
	}
	return ParseStyle(data)
}

// ParseStyle decodes a style document.
func ParseStyle(data []byte) (*Style, error) {
	var s Style
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing style: %w", err)
	}
	if s.Sources == nil {
		s.Sources = make(map[string]Source)
	}
	if s.Layers == nil {
		s.Layers = []Layer{}
	}
	return &s, nil
}

// StaticLoader serves style documents from memory, keyed by URL.
type StaticLoader struct {
	mu     sync.RWMutex
	styles map[string]*Style
}

// NewStaticLoader creates a loader preloaded with styles.
func NewStaticLoader(styles map[string]*Style) *StaticLoader {
	l := &StaticLoader{styles: make(map[string]*Style, len(styles))}
	for url, s := range styles {
		l.styles[url] = s
	}
	return l
}

// Put registers a style under url.
func (l *StaticLoader) Put(url string, s *Style) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.styles[url] = s
}

// Load implements StyleLoader.
func (l *StaticLoader) Load(ctx context.Context, url string) (*Style, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s, ok := l.styles[url]
	if !ok {
		return nil, fmt.Errorf("style %q not found", url)
	}
	return s.Clone(), nil
}
