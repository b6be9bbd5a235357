package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

type InfoHandler struct {
	dataDir  string
	dbOK     bool
	geometry string
}

// NewInfoHandler creates the info handler. geometry is the remote geometry
// service URL, empty when overlays are served from the data directory.
func NewInfoHandler(dataDir string, dbOK bool, geometry string) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, dbOK: dbOK, geometry: geometry}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name        string   `json:"name" doc:"Service name"`
	Version     string   `json:"version" doc:"Service version"`
	DataDir     string   `json:"data_dir" doc:"Data directory path"`
	DB          bool     `json:"db" doc:"Whether database is available"`
	GeometryURL string   `json:"geometry_url,omitempty" doc:"Remote geometry service, if any"`
	Features    []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	features := []string{"overlays", "choropleth", "basemaps", "search"}
	if h.dbOK {
		features = append(features, "duckdb")
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:        "plat-overlay",
		Version:     "0.1.0",
		DataDir:     h.dataDir,
		DB:          h.dbOK,
		GeometryURL: h.geometry,
		Features:    features,
	}}, nil
}
