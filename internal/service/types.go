// Package service contains the data services behind the overlay API: the
// shape catalog, data layer vectors and values, palette presets and the
// event bus feeding the map page.
package service

import "github.com/joeblew999/plat-overlay/internal/choropleth"

// PresetConfig is a palette preset as exposed through the API.
// Huma reads the tags for OpenAPI and validation.
type PresetConfig struct {
	Key    string   `json:"key,omitempty" doc:"Unique preset key" example:"blues"`
	Name   string   `json:"name" required:"true" minLength:"1" maxLength:"100" doc:"Display name" example:"Blues"`
	Colors []string `json:"colors" required:"true" minItems:"5" maxItems:"5" doc:"Five colors, lowest class first" example:"[\"#eff3ff\",\"#bdd7e7\",\"#6baed6\",\"#3182bd\",\"#08519c\"]"`
}

// Preset converts the config to its classifier form.
func (c PresetConfig) Preset() choropleth.Preset {
	return choropleth.Preset{Key: c.Key, Name: c.Name, Colors: c.Colors}
}

// PresetConfigFrom converts a classifier preset to its API form.
func PresetConfigFrom(p choropleth.Preset) PresetConfig {
	return PresetConfig{Key: p.Key, Name: p.Name, Colors: p.Colors}
}

// ShapeInfo summarizes one shape of the catalog.
type ShapeInfo struct {
	ID       int64  `json:"id" doc:"Shape ID" example:"11"`
	ParentID int64  `json:"parentId,omitempty" doc:"Parent shape ID" example:"1"`
	Key      string `json:"key" doc:"Shape key" example:"berlin"`
	Name     string `json:"name" doc:"Shape name" example:"Berlin"`
	TypeKey  string `json:"typeKey" doc:"Shape type key" example:"state"`
}

// DataLayerFile is a data layer with vector data on disk.
type DataLayerFile struct {
	ID   string `json:"id" doc:"Data layer ID" example:"weather_stations"`
	Size string `json:"size" doc:"Human-readable file size" example:"1.2 MB"`
}

// SearchResult is one hit of the search endpoint.
type SearchResult struct {
	Type  string `json:"type" enum:"shape,datalayer" doc:"Kind of result"`
	Label string `json:"label" doc:"Text shown in the result list" example:"Berlin (state)"`
	Key   string `json:"key" doc:"Key usable as overlay query" example:"11"`
	URL   string `json:"url" doc:"Geometry URL" example:"/api/shapes/geometry/?shape_id=11&format=geojson"`
}

// ValueRange is the domain of a data layer's values.
type ValueRange struct {
	Min   float64 `json:"min" doc:"Smallest value"`
	Max   float64 `json:"max" doc:"Largest value"`
	Count int64   `json:"count" doc:"Number of values"`
}
