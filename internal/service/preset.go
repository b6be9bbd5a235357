package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/joeblew999/plat-overlay/internal/choropleth"
)

var (
	ErrPresetExists   = errors.New("preset already exists")
	ErrPresetNotFound = errors.New("preset not found")
)

// PresetService manages the palette presets offered to the map page.
type PresetService struct {
	dataDir string
	presets map[string]choropleth.Preset
	mu      sync.RWMutex
}

// NewPresetService creates a preset service. Presets saved in the data
// directory win over seed presets with the same key.
func NewPresetService(dataDir string, seed []choropleth.Preset) *PresetService {
	s := &PresetService{
		dataDir: dataDir,
		presets: make(map[string]choropleth.Preset, len(seed)),
	}
	for _, p := range seed {
		s.presets[p.Key] = p
	}
	s.loadFromDisk()
	return s
}

// List returns all presets sorted by key.
func (s *PresetService) List() []choropleth.Preset {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]choropleth.Preset, 0, len(s.presets))
	for _, p := range s.presets {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result
}

// Get returns a preset by key.
func (s *PresetService) Get(key string) (choropleth.Preset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.presets[key]
	return p, ok
}

// Resolve returns the palette of the preset with the given key.
func (s *PresetService) Resolve(key string) (choropleth.Palette, error) {
	p, ok := s.Get(key)
	if !ok {
		return choropleth.Palette{}, fmt.Errorf("%w: %q", choropleth.ErrUnknownPreset, key)
	}
	return p.Palette()
}

// Create adds a new preset.
func (s *PresetService) Create(p choropleth.Preset) (choropleth.Preset, error) {
	palette, err := p.Palette()
	if err != nil {
		return choropleth.Preset{}, err
	}
	p.Colors = palette.Colors()

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Key == "" {
		p.Key = generateID(p.Name)
	}
	if _, exists := s.presets[p.Key]; exists {
		return choropleth.Preset{}, fmt.Errorf("%w: %q", ErrPresetExists, p.Key)
	}

	s.presets[p.Key] = p
	if err := s.saveToDisk(); err != nil {
		return choropleth.Preset{}, err
	}
	return p, nil
}

// Update replaces a preset by key.
func (s *PresetService) Update(key string, p choropleth.Preset) (choropleth.Preset, error) {
	palette, err := p.Palette()
	if err != nil {
		return choropleth.Preset{}, err
	}
	p.Colors = palette.Colors()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.presets[key]; !exists {
		return choropleth.Preset{}, fmt.Errorf("%w: %q", ErrPresetNotFound, key)
	}

	p.Key = key
	s.presets[key] = p
	if err := s.saveToDisk(); err != nil {
		return choropleth.Preset{}, err
	}
	return p, nil
}

// Delete removes a preset by key.
func (s *PresetService) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.presets[key]; !exists {
		return fmt.Errorf("%w: %q", ErrPresetNotFound, key)
	}

	delete(s.presets, key)
	return s.saveToDisk()
}

func (s *PresetService) configFile() string {
	return filepath.Join(s.dataDir, "presets.json")
}

func (s *PresetService) loadFromDisk() {
	data, err := os.ReadFile(s.configFile())
	if err != nil {
		return // not saved yet, keep the seed
	}

	var presets map[string]choropleth.Preset
	if err := json.Unmarshal(data, &presets); err != nil {
		zap.L().Warn("Ignoring invalid presets file", zap.String("path", s.configFile()), zap.Error(err))
		return
	}
	for k, p := range presets {
		s.presets[k] = p
	}
}

func (s *PresetService) saveToDisk() error {
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s.presets, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.configFile(), data, 0644)
}

// generateID creates a URL-safe ID from a name.
func generateID(name string) string {
	id := strings.ToLower(name)
	id = strings.ReplaceAll(id, " ", "_")
	var result strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			result.WriteRune(r)
		}
	}
	return result.String()
}
