// Package editor contains the Datastar SSE handlers of the map page.
package editor

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-overlay/internal/humastar"
	"github.com/joeblew999/plat-overlay/internal/overlay"
	"github.com/joeblew999/plat-overlay/internal/service"
	"github.com/joeblew999/plat-overlay/internal/session"
	"github.com/joeblew999/plat-overlay/internal/templates"
)

type SessionInput struct {
	ID string `path:"id" doc:"Session ID"`
}

// EventHandler streams the state changes of one map session to the page.
type EventHandler struct {
	humastar.Handler
	sessions *session.Manager
	bus      *service.EventBus
}

// NewEventHandler creates a new event handler.
func NewEventHandler(sessions *session.Manager, bus *service.EventBus, renderer *templates.Renderer) *EventHandler {
	return &EventHandler{
		Handler:  humastar.Handler{Renderer: renderer},
		sessions: sessions,
		bus:      bus,
	}
}

func (h *EventHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/editor/sessions/{id}/events", h.Events,
		huma.OperationTags("editor"),
	)
	huma.Get(api, "/api/v1/editor/sessions/{id}/popup", h.Popup,
		huma.OperationTags("editor"),
	)
}

type PopupInput struct {
	SessionInput
	Key   string `query:"key" required:"true" doc:"Layer key" example:"States"`
	Index int    `query:"index" minimum:"0" doc:"Feature index within the overlay"`
}

// Popup patches the popup of one clicked feature.
func (h *EventHandler) Popup(ctx context.Context, input *PopupInput) (*huma.StreamResponse, error) {
	s, err := h.sessions.Get(input.ID)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	entry, ok := s.Loader.Get(overlay.Key(input.Key))
	if !ok {
		return nil, huma.Error404NotFound("overlay not loaded")
	}
	popups := entry.Overlay.Popups()
	if input.Index >= len(popups) {
		return nil, huma.Error404NotFound("feature not found")
	}

	return h.Stream(func(sse humastar.SSE) {
		html, err := h.Renderer.Popup(popups[input.Index])
		if err != nil {
			sse.Error(err.Error())
			return
		}
		sse.Patch(html, "#popup")
	}), nil
}

func (h *EventHandler) Events(ctx context.Context, input *SessionInput) (*huma.StreamResponse, error) {
	s, err := h.sessions.Get(input.ID)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}

	return h.Stream(func(sse humastar.SSE) {
		ch := h.bus.Subscribe(s.ID)
		defer h.bus.Unsubscribe(ch)

		// Initial state, so a reconnecting page is in sync.
		h.patchControl(sse, s)
		h.patchLegend(sse, s)

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-ch:
				h.handle(sse, s, ev)
				sse.DispatchCustomEvent("map-"+ev.Type, map[string]any{
					"session": ev.Session,
					"key":     ev.Key,
					"message": ev.Message,
				})
			}
		}
	}), nil
}

func (h *EventHandler) handle(sse humastar.SSE, s *session.Session, ev service.Event) {
	switch ev.Type {
	case service.EventLoading:
		sse.Loading(true, ev.Key)
	case service.EventLoaded:
		sse.Loading(false, ev.Key)
		h.patchControl(sse, s)
	case service.EventAlert:
		html, err := h.Renderer.Alert(ev.Message)
		if err != nil {
			zap.L().Warn("Rendering alert failed", zap.Error(err))
			sse.Error(ev.Message)
			return
		}
		sse.Append(html, "#alerts")
	case service.EventStyle, service.EventRestored:
		h.patchControl(sse, s)
	case service.EventRepaint:
		h.patchLegend(sse, s)
	}
}

func (h *EventHandler) patchControl(sse humastar.SSE, s *session.Session) {
	html, err := h.Renderer.LayerControl(s.Control)
	if err != nil {
		zap.L().Warn("Rendering layer control failed", zap.Error(err))
		return
	}
	sse.Patch(html, "#layer-control")
}

func (h *EventHandler) patchLegend(sse humastar.SSE, s *session.Session) {
	legend := s.Legend.Legend()
	if len(legend.Swatches) == 0 {
		return
	}
	min, max := s.Legend.Domain()
	html, err := h.Renderer.Legend(templates.NewLegendData(legend, min, max))
	if err != nil {
		zap.L().Warn("Rendering legend failed", zap.Error(err))
		return
	}
	sse.Patch(html, "#legend")
}
