package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
	"go.uber.org/zap"
)

var (
	ErrShapeNotFound     = errors.New("shape not found")
	ErrShapeTypeNotFound = errors.New("shape type not found")
)

// Shape is one administrative area of the catalog.
type Shape struct {
	ShapeInfo
	Geometry orb.Geometry
}

// ShapeQuery selects shapes. ShapeID wins over the other filters; ShapeType
// and ParentID together select siblings.
type ShapeQuery struct {
	ShapeID  int64
	Type     string
	ParentID int64
	Simplify float64
}

// ShapeService serves the shape catalog. Shapes are read from the GeoJSON
// files in <data-dir>/shapes; every feature needs an "id", a "type" and a
// "name" property and may carry "parent_id" and "key".
type ShapeService struct {
	shapesDir string
	baseURL   string

	mu     sync.RWMutex
	shapes map[int64]*Shape
	order  []int64
}

// NewShapeService creates a shape service and loads the catalog. Missing or
// unreadable files leave the catalog empty.
func NewShapeService(dataDir, baseURL string) *ShapeService {
	s := &ShapeService{
		shapesDir: filepath.Join(dataDir, "shapes"),
		baseURL:   strings.TrimRight(baseURL, "/"),
		shapes:    make(map[int64]*Shape),
	}
	if err := s.Reload(); err != nil {
		zap.L().Warn("Loading shapes failed", zap.String("dir", s.shapesDir), zap.Error(err))
	}
	return s
}

// ShapesDir returns the path to the shapes directory.
func (s *ShapeService) ShapesDir() string {
	return s.shapesDir
}

// Reload re-reads the catalog from disk.
func (s *ShapeService) Reload() error {
	entries, err := os.ReadDir(s.shapesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	shapes := make(map[int64]*Shape)
	for _, entry := range entries {
		if entry.IsDir() || strings.ToLower(filepath.Ext(entry.Name())) != ".geojson" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.shapesDir, entry.Name()))
		if err != nil {
			return err
		}
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", entry.Name(), err)
		}
		for _, f := range fc.Features {
			shape, ok := shapeFromFeature(f)
			if !ok {
				zap.L().Warn("Skipping shape without id or type", zap.String("file", entry.Name()))
				continue
			}
			shapes[shape.ID] = shape
		}
	}

	order := make([]int64, 0, len(shapes))
	for id := range shapes {
		order = append(order, id)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	s.mu.Lock()
	s.shapes = shapes
	s.order = order
	s.mu.Unlock()
	return nil
}

func shapeFromFeature(f *geojson.Feature) (*Shape, bool) {
	if f == nil || f.Geometry == nil {
		return nil, false
	}
	id, ok := intProp(f.Properties, "id")
	if !ok {
		return nil, false
	}
	typeKey := f.Properties.MustString("type", "")
	if typeKey == "" {
		return nil, false
	}
	parent, _ := intProp(f.Properties, "parent_id")
	name := f.Properties.MustString("name", "")
	key := f.Properties.MustString("key", generateID(name))
	return &Shape{
		ShapeInfo: ShapeInfo{ID: id, ParentID: parent, Key: key, Name: name, TypeKey: typeKey},
		Geometry:  f.Geometry,
	}, true
}

func intProp(p geojson.Properties, key string) (int64, bool) {
	switch v := p[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}

// List returns every shape sorted by ID.
func (s *ShapeService) List() []ShapeInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ShapeInfo, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.shapes[id].ShapeInfo)
	}
	return out
}

// Get returns the shape with the given ID.
func (s *ShapeService) Get(id int64) (*Shape, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	shape, ok := s.shapes[id]
	return shape, ok
}

// Select returns the shapes matching q in ID order.
func (s *ShapeService) Select(q ShapeQuery) ([]*Shape, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if q.ShapeID != 0 {
		shape, ok := s.shapes[q.ShapeID]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrShapeNotFound, q.ShapeID)
		}
		return []*Shape{shape}, nil
	}
	if q.Type != "" && !s.hasTypeLocked(q.Type) {
		return nil, fmt.Errorf("%w: %s", ErrShapeTypeNotFound, q.Type)
	}
	if q.Type == "" && q.ParentID != 0 {
		if _, ok := s.shapes[q.ParentID]; !ok {
			return nil, fmt.Errorf("%w: %d", ErrShapeNotFound, q.ParentID)
		}
	}

	var out []*Shape
	for _, id := range s.order {
		shape := s.shapes[id]
		if q.Type != "" && shape.TypeKey != q.Type {
			continue
		}
		if q.ParentID != 0 && shape.ParentID != q.ParentID {
			continue
		}
		out = append(out, shape)
	}
	return out, nil
}

func (s *ShapeService) hasTypeLocked(typeKey string) bool {
	for _, shape := range s.shapes {
		if shape.TypeKey == typeKey {
			return true
		}
	}
	return false
}

// Geometry returns the shapes matching q as a feature collection, simplified
// with Douglas-Peucker when q.Simplify is positive.
func (s *ShapeService) Geometry(q ShapeQuery) (*geojson.FeatureCollection, error) {
	shapes, err := s.Select(q)
	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	for _, shape := range shapes {
		g := shape.Geometry
		if q.Simplify > 0 {
			g = simplify.DouglasPeucker(q.Simplify).Simplify(orb.Clone(g))
		}
		f := geojson.NewFeature(g)
		f.ID = shape.ID
		f.Properties["dh_shape_id"] = shape.ID
		if shape.ParentID != 0 {
			f.Properties["dh_parent_id"] = shape.ParentID
		} else {
			f.Properties["dh_parent_id"] = nil
		}
		f.Properties["shape_key"] = shape.Key
		f.Properties["shape_name"] = shape.Name
		f.Properties["url"] = s.ShapeURL(shape.ID)
		f.Properties["area_sqkm"] = geo.Area(shape.Geometry) / 1e6
		f.Properties["type_key"] = shape.TypeKey
		fc.Append(f)
	}
	return fc, nil
}

// ShapeURL returns the page URL of a shape.
func (s *ShapeService) ShapeURL(id int64) string {
	return fmt.Sprintf("%s/shapes/%d/", s.baseURL, id)
}

// BBox returns the bounding box of a shape: the envelope polygon, its
// corners and edge midpoints and the centroid of the shape.
func (s *ShapeService) BBox(id int64) (*geojson.FeatureCollection, error) {
	shape, ok := s.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrShapeNotFound, id)
	}

	b := shape.Geometry.Bound()
	west, south, east, north := b.Min[0], b.Min[1], b.Max[0], b.Max[1]
	midLng := west + (east-west)/2
	midLat := south + (north-south)/2

	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(b.ToPolygon()))

	point := func(name string, p orb.Point, values map[string]any) *geojson.Feature {
		f := geojson.NewFeature(p)
		f.Properties["name"] = name
		f.Properties["values"] = values
		return f
	}
	fc.Append(point("North-West", orb.Point{west, north}, map[string]any{"lat": north, "lng": west}))
	fc.Append(point("North-East", orb.Point{east, north}, map[string]any{"lat": north, "lng": east}))
	fc.Append(point("South-East", orb.Point{east, south}, map[string]any{"lat": south, "lng": east}))
	fc.Append(point("South-West", orb.Point{west, south}, map[string]any{"lat": south, "lng": west}))
	fc.Append(point("North", orb.Point{midLng, north}, map[string]any{"lat": north}))
	fc.Append(point("South", orb.Point{midLng, south}, map[string]any{"lat": south}))
	fc.Append(point("East", orb.Point{east, midLat}, map[string]any{"lng": east}))
	fc.Append(point("West", orb.Point{west, midLat}, map[string]any{"lng": west}))

	c := centroid(shape.Geometry)
	f := point("Centroid", c, map[string]any{"lat": c[1], "lng": c[0]})
	f.Properties["description"] = "Geometric center of the shape"
	fc.Append(f)
	return fc, nil
}

// centroid returns the area centroid of polygons and the bound center of
// anything planar.CentroidArea cannot weigh.
func centroid(g orb.Geometry) orb.Point {
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon, orb.Ring, orb.Bound:
		c, area := planar.CentroidArea(g)
		if area != 0 {
			return c
		}
	}
	return g.Bound().Center()
}
