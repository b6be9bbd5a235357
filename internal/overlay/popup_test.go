package overlay

import (
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func featureWith(props map[string]any) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{13.4, 52.5})
	for k, v := range props {
		f.Properties[k] = v
	}
	return f
}

func TestDataLayerPopupSkipsEmptyValues(t *testing.T) {
	p := DataLayerPopup(featureWith(map[string]any{"a": 1.0, "b": nil, "c": ""}))
	if len(p.Rows) != 1 || p.Rows[0].Label != "a" || p.Rows[0].Value != "1" {
		t.Fatalf("rows = %+v, want only a", p.Rows)
	}
}

func TestDataLayerPopupLinksAndTruncation(t *testing.T) {
	p := DataLayerPopup(featureWith(map[string]any{
		"wikidata":     "Q64",
		"meteostat_id": "10384",
		"nodes":        "1,2,3,4,5,6,7,8,9,10,11,12",
	}))
	rows := map[string]Row{}
	for _, r := range p.Rows {
		rows[r.Label] = r
	}

	if got := rows["wikidata"].Href; got != "https://www.wikidata.org/wiki/Q64" {
		t.Errorf("wikidata href = %q", got)
	}
	if got := rows["meteostat_id"].Href; got != "https://meteostat.net/de/station/10384" {
		t.Errorf("meteostat href = %q", got)
	}
	nodes := rows["nodes"].Value
	if !strings.HasSuffix(nodes, ellipsis) || len([]rune(nodes)) != 21 {
		t.Errorf("nodes = %q, want 20 runes plus ellipsis", nodes)
	}
}

func TestShapePopup(t *testing.T) {
	p := ShapePopup(featureWith(map[string]any{
		"shape_name": "Bayern",
		"type_key":   "state",
		"url":        "https://example.org/shape/9",
	}))
	if p.Title != "Bayern" || p.Subtitle != "state" {
		t.Errorf("popup = %+v", p)
	}
	if p.Link == nil || p.Link.Label != "Details" || p.Link.Href != "https://example.org/shape/9" {
		t.Errorf("link = %+v", p.Link)
	}
}

func TestBBoxPopup(t *testing.T) {
	if !BBoxPopup(featureWith(nil)).Empty() {
		t.Error("feature without properties should have no popup")
	}
	p := BBoxPopup(featureWith(map[string]any{"name": "north-east", "lat": 55.1}))
	if p.Title != "north-east" || len(p.Rows) != 1 || p.Rows[0].Value != "55.1" {
		t.Errorf("popup = %+v", p)
	}
}

func TestCustomDataLayerFormat(t *testing.T) {
	format := func(f *geojson.Feature) Popup {
		return Popup{Title: "custom"}
	}
	fc := squareCollection(map[string]any{"x": 1.0})

	o := newOverlay("d", Request{Kind: KindDataLayer, Query: Query{"datalayer_id": "1"}, Format: format}, fc)
	if got := o.Popups()[0].Title; got != "custom" {
		t.Errorf("data layer popup title = %q, want custom", got)
	}

	o = newOverlay("s", Request{Kind: KindShape, Query: Query{"shape_id": "1"}, Format: format}, fc)
	if got := o.Popups()[0].Title; got == "custom" {
		t.Error("shape overlays ignore custom formatters")
	}
}
