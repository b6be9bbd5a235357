package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-overlay/internal/service"
)

// GeometryInput carries the shape filter of the geometry endpoint.
type GeometryInput struct {
	ShapeID       string `query:"shape_id" doc:"Shape ID" example:"11"`
	ShapeType     string `query:"shape_type" doc:"Shape type key" example:"state"`
	ShapeParentID string `query:"shape_parent_id" doc:"Parent shape ID" example:"1"`
	Simplify      string `query:"simplify" doc:"Douglas-Peucker tolerance in degrees" example:"0.001"`
	DataLayerKey  string `query:"datalayer_key" doc:"Join the values of this data layer as the value property" example:"temperature"`
	Format        string `query:"format" enum:"geojson" default:"geojson" doc:"Response format"`
}

type GeoJSONOutput struct {
	Body *geojson.FeatureCollection
}

func geoJSON(fc *geojson.FeatureCollection) *GeoJSONOutput {
	return &GeoJSONOutput{Body: fc}
}

// RegisterGeometry registers the shape and data layer geometry routes used
// by overlay loads.
func (h *APIHandler) RegisterGeometry(api huma.API) {
	huma.Get(api, "/api/shapes/geometry/", h.GetGeometry, huma.OperationTags("geometry"))
	huma.Get(api, "/api/shapes/bbox/", h.GetBBox, huma.OperationTags("geometry"))
	huma.Get(api, "/api/shapes/", h.GetShapes, huma.OperationTags("geometry"))
	huma.Get(api, "/api/datalayers/vector/", h.GetDataLayerVector, huma.OperationTags("datalayers"))
	huma.Get(api, "/api/datalayers/range/", h.GetDataLayerRange, huma.OperationTags("datalayers"))
	huma.Get(api, "/api/datalayers/", h.GetDataLayers, huma.OperationTags("datalayers"))
	huma.Get(api, "/api/search/", h.GetSearch, huma.OperationTags("search"))
}

func (h *APIHandler) GetGeometry(ctx context.Context, input *GeometryInput) (*GeoJSONOutput, error) {
	if h.svc == nil || h.svc.Shapes == nil {
		return nil, huma.Error404NotFound("service not available")
	}
	q := map[string]string{
		"shape_id":        input.ShapeID,
		"shape_type":      input.ShapeType,
		"shape_parent_id": input.ShapeParentID,
	}
	if input.Simplify != "" {
		q["simplify"] = input.Simplify
	}
	sq, err := service.ParseShapeQuery(q, h.svc.Simplify)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}

	fc, err := h.svc.Shapes.Geometry(sq)
	if err != nil {
		return nil, shapeError(err)
	}
	if h.svc.Values != nil && sq.Type != "" {
		h.joinValues(ctx, fc, sq.Type, input.DataLayerKey)
	}
	return geoJSON(fc), nil
}

// joinValues adds the availableCount of every shape and, for a data layer,
// its value. Missing values leave the properties unset.
func (h *APIHandler) joinValues(ctx context.Context, fc *geojson.FeatureCollection, shapeType, key string) {
	counts, err := h.svc.Values.Counts(ctx, shapeType)
	if err != nil {
		zap.L().Warn("Reading data layer counts failed", zap.Error(err))
	} else {
		service.JoinValues(fc, "availableCount", counts)
	}
	if key == "" {
		return
	}
	values, err := h.svc.Values.Values(ctx, key, shapeType)
	if err != nil {
		zap.L().Warn("Reading data layer values failed", zap.String("datalayer", key), zap.Error(err))
		return
	}
	service.JoinValues(fc, "value", values)
}

func (h *APIHandler) GetBBox(ctx context.Context, input *struct {
	ShapeID int64  `query:"shape_id" required:"true" doc:"Shape ID" example:"11"`
	Format  string `query:"format" enum:"geojson" default:"geojson" doc:"Response format"`
}) (*GeoJSONOutput, error) {
	if h.svc == nil || h.svc.Shapes == nil {
		return nil, huma.Error404NotFound("service not available")
	}
	fc, err := h.svc.Shapes.BBox(input.ShapeID)
	if err != nil {
		return nil, shapeError(err)
	}
	return geoJSON(fc), nil
}

func (h *APIHandler) GetShapes(ctx context.Context, input *struct{}) (*struct{ Body []service.ShapeInfo }, error) {
	if h.svc == nil || h.svc.Shapes == nil {
		return &struct{ Body []service.ShapeInfo }{Body: []service.ShapeInfo{}}, nil
	}
	return &struct{ Body []service.ShapeInfo }{Body: h.svc.Shapes.List()}, nil
}

func (h *APIHandler) GetDataLayerVector(ctx context.Context, input *struct {
	DataLayerID string `query:"datalayer_id" required:"true" doc:"Data layer ID" example:"weather_stations"`
	Format      string `query:"format" enum:"geojson" default:"geojson" doc:"Response format"`
}) (*GeoJSONOutput, error) {
	if h.svc == nil || h.svc.DataLayers == nil {
		return nil, huma.Error404NotFound("service not available")
	}
	fc, err := h.svc.DataLayers.Vector(input.DataLayerID)
	if errors.Is(err, service.ErrDataLayerNotFound) {
		return nil, huma.Error404NotFound("No vector data available for this data layer")
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("reading data layer failed", err)
	}
	return geoJSON(fc), nil
}

func (h *APIHandler) GetDataLayerRange(ctx context.Context, input *struct {
	DataLayerKey string `query:"datalayer_key" required:"true" doc:"Data layer key" example:"temperature"`
	ShapeType    string `query:"shape_type" required:"true" doc:"Shape type key" example:"state"`
}) (*struct{ Body service.ValueRange }, error) {
	if h.svc == nil || h.svc.Values == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	r, err := h.svc.Values.Range(ctx, input.DataLayerKey, input.ShapeType)
	if errors.Is(err, service.ErrNoValues) {
		return nil, huma.Error404NotFound(err.Error())
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("reading value range failed", err)
	}
	return &struct{ Body service.ValueRange }{Body: r}, nil
}

func (h *APIHandler) GetDataLayers(ctx context.Context, input *struct{}) (*struct{ Body []service.DataLayerFile }, error) {
	out := &struct{ Body []service.DataLayerFile }{Body: []service.DataLayerFile{}}
	if h.svc == nil || h.svc.DataLayers == nil {
		return out, nil
	}
	files, err := h.svc.DataLayers.List()
	if err != nil || files == nil {
		return out, nil
	}
	out.Body = files
	return out, nil
}

func (h *APIHandler) GetSearch(ctx context.Context, input *struct {
	Q     string `query:"q" doc:"Search term" example:"berl"`
	Limit int    `query:"limit" minimum:"0" maximum:"100" default:"20" doc:"Maximum number of results"`
}) (*struct{ Body []service.SearchResult }, error) {
	if h.svc == nil || h.svc.Search == nil {
		return &struct{ Body []service.SearchResult }{Body: []service.SearchResult{}}, nil
	}
	results, err := h.svc.Search.Search(input.Q, input.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("search failed", err)
	}
	return &struct{ Body []service.SearchResult }{Body: results}, nil
}

func shapeError(err error) error {
	if errors.Is(err, service.ErrShapeNotFound) || errors.Is(err, service.ErrShapeTypeNotFound) {
		return huma.Error404NotFound(err.Error())
	}
	return huma.Error500InternalServerError("reading shapes failed", err)
}
