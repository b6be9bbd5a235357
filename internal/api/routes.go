// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-overlay/internal/basemap"
	"github.com/joeblew999/plat-overlay/internal/choropleth"
	"github.com/joeblew999/plat-overlay/internal/service"
	"github.com/joeblew999/plat-overlay/internal/session"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Presets    *service.PresetService
	Shapes     *service.ShapeService
	DataLayers *service.DataLayerService
	Values     *service.ValueStore
	Search     *service.SearchService
	Sessions   *session.Manager
	Styles     basemap.Catalog
	Simplify   float64
}

// Types

type KeyInput struct {
	Key string `path:"key" doc:"Preset key" example:"blues"`
}

type PresetOutput struct {
	Body service.PresetConfig
}

type PresetsOutput struct {
	Body []service.PresetConfig
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type CreatedPresetBody struct {
	Key     string               `json:"key" doc:"Generated preset key"`
	Preset  service.PresetConfig `json:"preset" doc:"Created preset"`
	Message string               `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// APIHandler holds the REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterRoutes registers every REST route of the API.
func RegisterRoutes(api huma.API, svc *Services) {
	huma.AutoRegister(api, NewAPIHandler(svc))
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterPresets registers palette preset CRUD routes.
func (h *APIHandler) RegisterPresets(api huma.API) {
	huma.Get(api, "/api/v1/presets", h.GetPresets, huma.OperationTags("presets"))
	huma.Post(api, "/api/v1/presets", h.CreatePreset, huma.OperationTags("presets"))
	huma.Get(api, "/api/v1/presets/{key}", h.GetPreset, huma.OperationTags("presets"))
	huma.Put(api, "/api/v1/presets/{key}", h.PutPreset, huma.OperationTags("presets"))
	huma.Delete(api, "/api/v1/presets/{key}", h.DeletePreset, huma.OperationTags("presets"))
}

// RegisterStyles registers the basemap catalog route.
func (h *APIHandler) RegisterStyles(api huma.API) {
	huma.Get(api, "/api/v1/styles", h.GetStyles, huma.OperationTags("styles"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

func (h *APIHandler) GetPresets(ctx context.Context, input *struct{}) (*PresetsOutput, error) {
	out := &PresetsOutput{Body: []service.PresetConfig{}}
	if h.svc == nil || h.svc.Presets == nil {
		return out, nil
	}
	for _, p := range h.svc.Presets.List() {
		out.Body = append(out.Body, service.PresetConfigFrom(p))
	}
	return out, nil
}

func (h *APIHandler) CreatePreset(ctx context.Context, input *struct{ Body service.PresetConfig }) (*struct{ Body CreatedPresetBody }, error) {
	if h.svc == nil || h.svc.Presets == nil {
		return nil, huma.Error400BadRequest("service not available")
	}
	created, err := h.svc.Presets.Create(input.Body.Preset())
	if err != nil {
		return nil, presetError(err)
	}
	return &struct{ Body CreatedPresetBody }{Body: CreatedPresetBody{
		Key: created.Key, Preset: service.PresetConfigFrom(created), Message: "Preset created",
	}}, nil
}

func (h *APIHandler) GetPreset(ctx context.Context, input *KeyInput) (*PresetOutput, error) {
	if h.svc == nil || h.svc.Presets == nil {
		return nil, huma.Error404NotFound("service not available")
	}
	p, ok := h.svc.Presets.Get(input.Key)
	if !ok {
		return nil, huma.Error404NotFound("preset not found")
	}
	return &PresetOutput{Body: service.PresetConfigFrom(p)}, nil
}

func (h *APIHandler) PutPreset(ctx context.Context, input *struct {
	KeyInput
	Body service.PresetConfig
}) (*PresetOutput, error) {
	if h.svc == nil || h.svc.Presets == nil {
		return nil, huma.Error400BadRequest("service not available")
	}
	updated, err := h.svc.Presets.Update(input.Key, input.Body.Preset())
	if err != nil {
		return nil, presetError(err)
	}
	return &PresetOutput{Body: service.PresetConfigFrom(updated)}, nil
}

func (h *APIHandler) DeletePreset(ctx context.Context, input *KeyInput) (*struct{ Body MessageBody }, error) {
	if h.svc == nil || h.svc.Presets == nil {
		return nil, huma.Error400BadRequest("service not available")
	}
	if err := h.svc.Presets.Delete(input.Key); err != nil {
		return nil, presetError(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Preset deleted"}}, nil
}

func (h *APIHandler) GetStyles(ctx context.Context, input *struct{}) (*struct{ Body basemap.Catalog }, error) {
	styles := basemap.Catalog{}
	if h.svc != nil && h.svc.Styles != nil {
		styles = h.svc.Styles
	}
	return &struct{ Body basemap.Catalog }{Body: styles}, nil
}

func presetError(err error) error {
	switch {
	case errors.Is(err, service.ErrPresetNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, service.ErrPresetExists):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, choropleth.ErrInvalidPalette):
		return huma.Error422UnprocessableEntity(err.Error())
	}
	return huma.Error500InternalServerError("preset storage failed", err)
}
