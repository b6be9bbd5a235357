package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-overlay/internal/overlay"
)

// ParseShapeQuery reads the shape filter parameters of an overlay query.
// A missing or unparseable simplify falls back to defaultSimplify.
func ParseShapeQuery(q map[string]string, defaultSimplify float64) (ShapeQuery, error) {
	var sq ShapeQuery
	var err error
	if v := q["shape_id"]; v != "" {
		if sq.ShapeID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return sq, fmt.Errorf("invalid shape_id %q", v)
		}
	}
	if v := q["shape_parent_id"]; v != "" {
		if sq.ParentID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return sq, fmt.Errorf("invalid shape_parent_id %q", v)
		}
	}
	sq.Type = q["shape_type"]
	sq.Simplify = defaultSimplify
	if v, ok := q["simplify"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			sq.Simplify = f
		}
	}
	return sq, nil
}

// LocalFetcher serves overlay geometry straight from the services, without
// an HTTP round trip. It is used when no remote geometry service is set.
type LocalFetcher struct {
	Shapes     *ShapeService
	DataLayers *DataLayerService
	Simplify   float64
}

// Fetch implements overlay.Fetcher.
func (f *LocalFetcher) Fetch(ctx context.Context, kind overlay.Kind, q overlay.Query) (*geojson.FeatureCollection, error) {
	switch kind {
	case overlay.KindShape:
		sq, err := ParseShapeQuery(q, f.Simplify)
		if err != nil {
			return nil, err
		}
		return f.Shapes.Geometry(sq)
	case overlay.KindBBox:
		id, err := strconv.ParseInt(q["shape_id"], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid shape_id %q", q["shape_id"])
		}
		return f.Shapes.BBox(id)
	case overlay.KindDataLayer:
		return f.DataLayers.Vector(q["datalayer_id"])
	}
	return nil, fmt.Errorf("%w: %q", overlay.ErrUnknownKind, kind)
}
