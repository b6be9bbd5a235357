// Package basemap switches the basemap style of a map while keeping the
// overlays that were added on top of it.
package basemap

import "errors"

var ErrUnknownStyle = errors.New("unknown basemap style")

// Basemap is one entry of the style catalog.
type Basemap struct {
	Code  string `json:"code" koanf:"code" doc:"Short identifier"`
	Title string `json:"title" koanf:"title" doc:"Label shown in the style switcher"`
	Image string `json:"image,omitempty" koanf:"image" doc:"Thumbnail URL"`
	URL   string `json:"url" koanf:"url" doc:"Style document URL"`
}

// Catalog is an ordered list of basemaps. The first entry is the default.
type Catalog []Basemap

// Lookup returns the basemap with the given code.
func (c Catalog) Lookup(code string) (Basemap, bool) {
	for _, b := range c {
		if b.Code == code {
			return b, true
		}
	}
	return Basemap{}, false
}

// Default returns the first basemap.
func (c Catalog) Default() (Basemap, bool) {
	if len(c) == 0 {
		return Basemap{}, false
	}
	return c[0], true
}
