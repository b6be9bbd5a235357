package service

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// SearchService finds shapes and data layers by name.
type SearchService struct {
	shapes     *ShapeService
	datalayers *DataLayerService
}

// NewSearchService creates a search service over both catalogs.
func NewSearchService(shapes *ShapeService, datalayers *DataLayerService) *SearchService {
	return &SearchService{shapes: shapes, datalayers: datalayers}
}

// Search returns the shapes and data layers whose name contains term,
// ignoring case. Prefix matches come first, then shapes before data layers,
// then alphabetical order. At most limit results are returned when limit is
// positive.
func (s *SearchService) Search(term string, limit int) ([]SearchResult, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return []SearchResult{}, nil
	}

	type hit struct {
		SearchResult
		prefix bool
		name   string
	}
	var hits []hit

	if s.shapes != nil {
		for _, shape := range s.shapes.List() {
			name := strings.ToLower(shape.Name)
			if !strings.Contains(name, term) {
				continue
			}
			hits = append(hits, hit{
				SearchResult: SearchResult{
					Type:  "shape",
					Label: fmt.Sprintf("%s (%s)", shape.Name, shape.TypeKey),
					Key:   fmt.Sprint(shape.ID),
					URL:   "/api/shapes/geometry/?" + url.Values{"shape_id": {fmt.Sprint(shape.ID)}, "format": {"geojson"}}.Encode(),
				},
				prefix: strings.HasPrefix(name, term),
				name:   name,
			})
		}
	}

	if s.datalayers != nil {
		files, err := s.datalayers.List()
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			name := strings.ToLower(f.ID)
			if !strings.Contains(name, term) {
				continue
			}
			hits = append(hits, hit{
				SearchResult: SearchResult{
					Type:  "datalayer",
					Label: f.ID,
					Key:   f.ID,
					URL:   "/api/datalayers/vector/?" + url.Values{"datalayer_id": {f.ID}}.Encode(),
				},
				prefix: strings.HasPrefix(name, term),
				name:   name,
			})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.prefix != b.prefix {
			return a.prefix
		}
		if a.Type != b.Type {
			return a.Type == "shape"
		}
		return a.name < b.name
	})

	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		if limit > 0 && len(results) == limit {
			break
		}
		results = append(results, h.SearchResult)
	}
	return results, nil
}
