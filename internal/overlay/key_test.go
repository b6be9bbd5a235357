package overlay

import "testing"

func TestQueryKey(t *testing.T) {
	a := Query{"shape_type": "state", "shape_parent_id": "1"}
	b := Query{"shape_parent_id": "1", "shape_type": "state"}
	if a.Key() != b.Key() {
		t.Errorf("equal queries produced %q and %q", a.Key(), b.Key())
	}
	if got, want := a.Key(), Key(`{"shape_parent_id":"1","shape_type":"state"}`); got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}

	named := Query{"name": "States", "shape_type": "state"}
	if got := named.Key(); got != "States" {
		t.Errorf("named Key() = %q, want States", got)
	}
}

func TestQueryValues(t *testing.T) {
	v := Query{"name": "States", "shape_type": "state"}.Values()
	if v.Has("name") {
		t.Error("name should not be sent")
	}
	if v.Get("format") != "geojson" {
		t.Errorf("format = %q, want geojson", v.Get("format"))
	}
	if v.Get("shape_type") != "state" {
		t.Errorf("shape_type = %q", v.Get("shape_type"))
	}

	v = Query{"format": "topojson"}.Values()
	if v.Get("format") != "topojson" {
		t.Errorf("explicit format overwritten: %q", v.Get("format"))
	}
}

func TestRequestKey(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want Key
	}{
		{"named shape", Request{Kind: KindShape, Query: Query{"name": "Berlin"}}, "Berlin"},
		{"unnamed data layer", Request{Kind: KindDataLayer, Query: Query{"datalayer_id": "12"}}, "datalayer:12"},
		{"named data layer", Request{Kind: KindDataLayer, Query: Query{"datalayer_id": "12", "name": "Stations"}}, "Stations"},
		{"bbox", Request{Kind: KindBBox, Query: Query{"shape_id": "4"}}, `bbox:{"shape_id":"4"}`},
		{"named bbox", Request{Kind: KindBBox, Query: Query{"shape_id": "4", "name": "Frame"}}, "Frame"},
		{"unnamed shape", Request{Kind: KindShape, Query: Query{"shape_id": "4"}}, `{"shape_id":"4"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.Key(); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKindFitsBounds(t *testing.T) {
	if !KindShape.FitsBounds() || !KindBBox.FitsBounds() {
		t.Error("shape and bbox should fit bounds")
	}
	if KindDataLayer.FitsBounds() {
		t.Error("data layer should not fit bounds")
	}
	if Kind("tiles").Valid() {
		t.Error("unknown kind reported valid")
	}
}
