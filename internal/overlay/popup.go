package overlay

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"
)

// Popup is the structured content of a feature popup. Turning it into markup
// is left to the rendering layer.
type Popup struct {
	Title    string `json:"title,omitempty"`
	Subtitle string `json:"subtitle,omitempty"`
	Link     *Link  `json:"link,omitempty"`
	Rows     []Row  `json:"rows,omitempty"`
}

// Link is a labelled hyperlink.
type Link struct {
	Label string `json:"label"`
	Href  string `json:"href"`
}

// Row is one property of a popup table. Href is set for values linked to an
// external lookup service.
type Row struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Href  string `json:"href,omitempty"`
}

// Empty reports whether the popup has nothing to show.
func (p Popup) Empty() bool {
	return p.Title == "" && p.Subtitle == "" && p.Link == nil && len(p.Rows) == 0
}

// PopupFunc builds the popup of one feature.
type PopupFunc func(f *geojson.Feature) Popup

// lookupLinks maps property keys to external lookup URL patterns.
var lookupLinks = map[string]string{
	"wikidata":     "https://www.wikidata.org/wiki/%s",
	"meteostat_id": "https://meteostat.net/de/station/%s",
}

// truncated lists properties holding long lists of identifiers.
var truncated = map[string]int{
	"nodes": 20,
}

const ellipsis = "…"

// ShapePopup shows name, type and a details link of a shape.
func ShapePopup(f *geojson.Feature) Popup {
	p := f.Properties
	popup := Popup{
		Title:    firstString(p, "name", "shape_name"),
		Subtitle: firstString(p, "type", "type_key"),
	}
	if u := formatValue(p["url"]); u != "" {
		popup.Link = &Link{Label: "Details", Href: u}
	}
	return popup
}

// BBoxPopup titles the popup with the feature name and lists the remaining
// properties. Features without properties get no popup.
func BBoxPopup(f *geojson.Feature) Popup {
	if len(f.Properties) == 0 {
		return Popup{}
	}
	popup := Popup{Title: formatValue(f.Properties["name"])}
	for _, key := range sortedKeys(f.Properties) {
		if key == "name" {
			continue
		}
		if v := formatValue(f.Properties[key]); v != "" {
			popup.Rows = append(popup.Rows, Row{Label: key, Value: v})
		}
	}
	return popup
}

// DataLayerPopup lists every non-empty property, linking identifiers to
// their lookup services and shortening long identifier lists.
func DataLayerPopup(f *geojson.Feature) Popup {
	var popup Popup
	for _, key := range sortedKeys(f.Properties) {
		v := formatValue(f.Properties[key])
		if v == "" {
			continue
		}
		row := Row{Label: key, Value: v}
		if pattern, ok := lookupLinks[key]; ok {
			row.Href = fmt.Sprintf(pattern, v)
		}
		if n, ok := truncated[key]; ok {
			row.Value = truncate(v, n)
		}
		popup.Rows = append(popup.Rows, row)
	}
	return popup
}

func popupFor(kind Kind) PopupFunc {
	switch kind {
	case KindShape:
		return ShapePopup
	case KindBBox:
		return BBoxPopup
	default:
		return DataLayerPopup
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + ellipsis
}

func firstString(p geojson.Properties, keys ...string) string {
	for _, k := range keys {
		if v := formatValue(p[k]); v != "" {
			return v
		}
	}
	return ""
}

func sortedKeys(p geojson.Properties) []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatValue renders a decoded JSON value as text; nil becomes "".
func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, formatValue(e))
		}
		return strings.Join(parts, ",")
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+formatValue(t[k]))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(t)
	}
}
