package editor

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-overlay/internal/choropleth"
	"github.com/joeblew999/plat-overlay/internal/humastar"
	"github.com/joeblew999/plat-overlay/internal/overlay"
	"github.com/joeblew999/plat-overlay/internal/service"
	"github.com/joeblew999/plat-overlay/internal/session"
	"github.com/joeblew999/plat-overlay/internal/templates"
)

// PresetHandler serves the preset picker and slider of the map page.
type PresetHandler struct {
	humastar.Handler
	sessions *session.Manager
	presets  *service.PresetService
	values   *service.ValueStore
}

// NewPresetHandler creates a new preset handler. values may be nil.
func NewPresetHandler(sessions *session.Manager, presets *service.PresetService, values *service.ValueStore, renderer *templates.Renderer) *PresetHandler {
	return &PresetHandler{
		Handler:  humastar.Handler{Renderer: renderer},
		sessions: sessions,
		presets:  presets,
		values:   values,
	}
}

func (h *PresetHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/editor/presets", h.List,
		huma.OperationTags("editor"),
	)
	huma.Get(api, "/api/v1/editor/presets/options", h.Options,
		huma.OperationTags("editor"),
	)
	huma.Post(api, "/api/v1/editor/sessions/{id}/preset", h.Apply,
		huma.OperationTags("editor"),
	)
}

// List renders the preset cards.
func (h *PresetHandler) List(ctx context.Context, input *struct{}) (*huma.StreamResponse, error) {
	var items []any
	for _, p := range h.presets.List() {
		items = append(items, p)
	}
	return h.Stream(func(sse humastar.SSE) {
		sse.Patch(h.RenderList("preset-card", items, "No presets", "Add one in the config file or through the API."), "#preset-list")
	}), nil
}

// Options fills the preset <select>.
func (h *PresetHandler) Options(ctx context.Context, input *struct{}) (*huma.StreamResponse, error) {
	var opts []humastar.Option
	for _, p := range h.presets.List() {
		opts = append(opts, humastar.Option{Value: p.Key, Label: p.Name})
	}
	return h.Stream(func(sse humastar.SSE) {
		sse.Patch(h.RenderOptions("Select a preset", opts), "#preset-select")
	}), nil
}

type ApplyInput struct {
	SessionInput
	humastar.SignalsInput
}

// Apply repaints an overlay from the signals of the preset form. Signal
// names are lowercase due to data-bind behavior.
func (h *PresetHandler) Apply(ctx context.Context, input *ApplyInput) (*huma.StreamResponse, error) {
	s, err := h.sessions.Get(input.ID)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}

	return h.Stream(func(sse humastar.SSE) {
		palette, err := h.presets.Resolve(signals.String("preset"))
		if err != nil {
			if errors.Is(err, choropleth.ErrUnknownPreset) {
				s.Alert(choropleth.ErrUnknownPreset.Error())
			}
			sse.Error(err.Error())
			return
		}

		key := overlay.Key(signals.String("key"))
		variant := signals.String("variantkey")
		min := optionalFloat(signals, "min")
		max := optionalFloat(signals, "max")
		lo, hi := s.ResolveDomain(ctx, h.values, key, variant, signals.String("shapetype"), min, max)

		stats, err := s.ApplyPreset(session.PresetRequest{
			Key:          key,
			Palette:      palette,
			Transparency: signals.String("transparency"),
			Min:          lo,
			Max:          hi,
			VariantKey:   variant,
		})
		if err != nil {
			sse.Error(err.Error())
			return
		}

		html, err := h.Renderer.Legend(templates.NewLegendData(s.Legend.Legend(), lo, hi))
		if err != nil {
			sse.Error(err.Error())
			return
		}
		sse.Patch(html, "#legend")
		sse.Signals(map[string]any{
			"min":     lo,
			"max":     hi,
			"painted": stats.Painted,
			"error":   "",
		})
	}), nil
}

func optionalFloat(s humastar.Signals, key string) *float64 {
	f, ok := s.Float(key)
	if !ok {
		return nil
	}
	return &f
}
