// Package config loads the domain configuration of the overlay server: the
// basemap style catalog, the palette presets and where geometry comes from.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-overlay/internal/basemap"
	"github.com/joeblew999/plat-overlay/internal/choropleth"
)

// EnvPrefix prefixes environment overrides, e.g. OVERLAY_GEOMETRY_URL.
const EnvPrefix = "OVERLAY_"

// Config is the domain configuration.
type Config struct {
	// GeometryURL is the base URL overlays are fetched from. Empty means the
	// server's own shape and data layer endpoints.
	GeometryURL string `koanf:"geometry_url" yaml:"geometry_url"`
	// SiteURL prefixes the shape page links in popups.
	SiteURL string `koanf:"site_url" yaml:"site_url"`
	// CustomSourcePrefix marks sources that survive basemap swaps even when
	// they were not added through a session. Empty disables the fallback.
	CustomSourcePrefix  string  `koanf:"custom_source_prefix" yaml:"custom_source_prefix"`
	DefaultTransparency float64 `koanf:"default_transparency" yaml:"default_transparency"`
	// Simplify is the default Douglas-Peucker tolerance of shape geometry.
	Simplify float64 `koanf:"simplify" yaml:"simplify"`
	// QueryAPI enables the read-only SQL route over the value store.
	QueryAPI bool `koanf:"query_api" yaml:"query_api"`

	Styles  basemap.Catalog     `koanf:"styles" yaml:"styles"`
	Presets []choropleth.Preset `koanf:"presets" yaml:"presets"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		CustomSourcePrefix:  "dh-",
		DefaultTransparency: choropleth.DefaultTransparency,
		Simplify:            0.001,
		Styles: basemap.Catalog{
			{Code: "light", Title: "Light", URL: "https://basemaps.cartocdn.com/gl/positron-gl-style/style.json"},
			{Code: "dark", Title: "Dark", URL: "https://basemaps.cartocdn.com/gl/dark-matter-gl-style/style.json"},
			{Code: "liberty", Title: "OpenStreetMap", URL: "https://tiles.openfreemap.org/styles/liberty"},
		},
		Presets: []choropleth.Preset{
			{Key: "blues", Name: "Blues", Colors: []string{"#eff3ff", "#bdd7e7", "#6baed6", "#3182bd", "#08519c"}},
			{Key: "greens", Name: "Greens", Colors: []string{"#edf8e9", "#bae4b3", "#74c476", "#31a354", "#006d2c"}},
			{Key: "heat", Name: "Heat", Colors: []string{"#ffffb2", "#fecc5c", "#fd8d3c", "#f03b20", "#bd0026"}},
			{Key: "purples", Name: "Purples", Colors: []string{"#f2f0f7", "#cbc9e2", "#9e9ac8", "#756bb1", "#54278f"}},
		},
	}
}

// Load reads the YAML file at path on top of the defaults, then applies
// OVERLAY_* environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Validate checks the style catalog and presets.
func (c *Config) Validate() error {
	if len(c.Styles) == 0 {
		return errors.New("at least one style is required")
	}
	codes := make(map[string]bool, len(c.Styles))
	for _, s := range c.Styles {
		if s.Code == "" || s.URL == "" {
			return fmt.Errorf("style %q needs a code and a url", s.Title)
		}
		if codes[s.Code] {
			return fmt.Errorf("duplicate style code %q", s.Code)
		}
		codes[s.Code] = true
	}

	keys := make(map[string]bool, len(c.Presets))
	for _, p := range c.Presets {
		if p.Key == "" {
			return fmt.Errorf("preset %q needs a key", p.Name)
		}
		if keys[p.Key] {
			return fmt.Errorf("duplicate preset key %q", p.Key)
		}
		keys[p.Key] = true
		if _, err := p.Palette(); err != nil {
			return fmt.Errorf("preset %q: %w", p.Key, err)
		}
	}

	if c.DefaultTransparency < 0 || c.DefaultTransparency > 1 {
		return fmt.Errorf("default_transparency must be within [0, 1], got %v", c.DefaultTransparency)
	}
	if c.Simplify < 0 {
		return errors.New("simplify must be non-negative")
	}
	return nil
}
