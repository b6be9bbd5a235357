// Package overlay loads overlay geometry on demand and keeps a per-map cache
// of rendered overlays keyed by a logical layer key.
package overlay

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
)

// Key identifies one logical overlay within a map.
type Key string

// Kind selects the geometry endpoint an overlay is loaded from.
type Kind string

const (
	// KindShape loads shapes by filter query and fits the viewport.
	KindShape Kind = "shape"
	// KindBBox loads the bounding box features of a shape and fits the viewport.
	KindBBox Kind = "bbox"
	// KindDataLayer loads the raw vector data of a data layer.
	KindDataLayer Kind = "datalayer"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindShape, KindBBox, KindDataLayer:
		return true
	}
	return false
}

// FitsBounds reports whether a successful load moves the viewport.
func (k Kind) FitsBounds() bool {
	return k == KindShape || k == KindBBox
}

// Query is a set of filter parameters, optionally carrying a "name".
type Query map[string]string

// Key returns the explicit name if present, otherwise a canonical
// serialization of the whole query. Keys are sorted, so equal queries always
// produce equal keys regardless of insertion order.
func (q Query) Key() Key {
	if name, ok := q["name"]; ok {
		return Key(name)
	}
	// encoding/json writes map keys in sorted order.
	b, err := json.Marshal(map[string]string(q))
	if err != nil {
		return Key(fmt.Sprint(map[string]string(q)))
	}
	return Key(b)
}

// Values encodes the query as URL parameters, defaulting format to geojson.
// The name is a client-side label and is not sent.
func (q Query) Values() url.Values {
	v := url.Values{}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == "name" {
			continue
		}
		v.Set(k, q[k])
	}
	if v.Get("format") == "" {
		v.Set("format", "geojson")
	}
	return v
}

// Request describes one overlay to load.
type Request struct {
	Kind  Kind
	Query Query

	// Format, when set, builds popups for data layer features instead of the
	// default property table.
	Format PopupFunc
}

// Key returns the cache key of the request. Data layers without an explicit
// name are keyed by their identifier so that two data layers never share a
// cache entry. Unnamed bbox requests are prefixed by kind since they take
// the same filters as shape requests.
func (r Request) Key() Key {
	switch r.Kind {
	case KindDataLayer:
		if name, ok := r.Query["name"]; ok {
			return Key(name)
		}
		return Key("datalayer:" + r.Query["datalayer_id"])
	case KindBBox:
		if _, ok := r.Query["name"]; !ok {
			return "bbox:" + r.Query.Key()
		}
	}
	return r.Query.Key()
}

// Label is the text shown in the layer control.
func (r Request) Label() string {
	return string(r.Key())
}
