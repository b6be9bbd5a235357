package api

import (
	"context"
	"errors"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-overlay/internal/basemap"
	"github.com/joeblew999/plat-overlay/internal/choropleth"
	"github.com/joeblew999/plat-overlay/internal/mapstate"
	"github.com/joeblew999/plat-overlay/internal/overlay"
	"github.com/joeblew999/plat-overlay/internal/session"
)

type SessionInput struct {
	ID string `path:"id" doc:"Session ID" example:"6f1c2a4e-8d0b-4c55-9a5f-2b7f3e9d1c01"`
}

type OverlayBody struct {
	Key      string          `json:"key" doc:"Layer key" example:"States"`
	Label    string          `json:"label" doc:"Layer control label"`
	Kind     string          `json:"kind" doc:"Overlay kind"`
	SourceID string          `json:"sourceId" doc:"Map source ID"`
	Features int             `json:"features" doc:"Number of features"`
	BBox     []float64       `json:"bbox,omitempty" doc:"Bounding box [minLon, minLat, maxLon, maxLat]"`
	Popups   []overlay.Popup `json:"popups,omitempty" doc:"Popup content per feature"`
}

type LegendBody struct {
	Legend choropleth.Legend `json:"legend"`
	Min    float64           `json:"min"`
	Max    float64           `json:"max"`
}

type SessionBody struct {
	ID          string                 `json:"id" doc:"Session ID"`
	Created     time.Time              `json:"created" doc:"Creation time"`
	Style       string                 `json:"style" doc:"Requested basemap code" example:"light"`
	StyleLoaded bool                   `json:"styleLoaded" doc:"Whether the basemap style has loaded"`
	Viewport    mapstate.Viewport      `json:"viewport"`
	BaseLayers  []overlay.ControlEntry `json:"baseLayers"`
	Overlays    []overlay.ControlEntry `json:"overlays"`
	Sources     []basemap.SourceState  `json:"sources"`
	Legend      LegendBody             `json:"legend"`
	Alerts      []string               `json:"alerts"`
}

type SessionOutput struct {
	Body SessionBody
}

type LoadOverlayBody struct {
	Kind  string            `json:"kind" enum:"shape,bbox,datalayer" required:"true" doc:"Geometry endpoint to load from"`
	Query map[string]string `json:"query" required:"true" doc:"Query parameters; name sets the layer key" example:"{\"shape_type\":\"state\",\"name\":\"States\"}"`
}

type StyleBody struct {
	Code string `json:"code" required:"true" doc:"Basemap code" example:"dark"`
}

type VisibilityBody struct {
	Key     string `json:"key" required:"true" doc:"Layer key" example:"States"`
	Visible bool   `json:"visible" doc:"Show or hide the overlay"`
}

type ApplyPresetBody struct {
	Key          string   `json:"key" required:"true" doc:"Layer key of the overlay to paint" example:"States"`
	Preset       string   `json:"preset" required:"true" doc:"Preset key" example:"blues"`
	Transparency string   `json:"transparency,omitempty" doc:"Fill opacity between 0 and 1" example:"0.9"`
	Min          *float64 `json:"min,omitempty" doc:"Lower bound of the domain"`
	Max          *float64 `json:"max,omitempty" doc:"Upper bound of the domain"`
	VariantKey   string   `json:"variantKey,omitempty" doc:"Data layer key; classifies the value property" example:"temperature"`
	ShapeType    string   `json:"shapeType,omitempty" doc:"Shape type used to look up the data layer domain" example:"state"`
}

type ApplyPresetResult struct {
	Stats  choropleth.Stats `json:"stats"`
	Legend LegendBody       `json:"legend"`
}

type ClassifyBody struct {
	Value  float64  `json:"value" doc:"Value to classify"`
	Min    float64  `json:"min" doc:"Lower bound of the domain"`
	Max    float64  `json:"max" doc:"Upper bound of the domain"`
	Preset string   `json:"preset,omitempty" doc:"Preset key; ignored when colors are given" example:"blues"`
	Colors []string `json:"colors,omitempty" minItems:"5" maxItems:"5" doc:"Five colors, lowest class first"`
}

type ClassifyResult struct {
	Color string `json:"color" doc:"Class color" example:"#08519c"`
}

// RegisterSessions registers map session routes.
func (h *APIHandler) RegisterSessions(api huma.API) {
	huma.Get(api, "/api/v1/sessions", h.GetSessions, huma.OperationTags("sessions"))
	huma.Post(api, "/api/v1/sessions", h.CreateSession, huma.OperationTags("sessions"))
	huma.Get(api, "/api/v1/sessions/{id}", h.GetSession, huma.OperationTags("sessions"))
	huma.Delete(api, "/api/v1/sessions/{id}", h.DeleteSession, huma.OperationTags("sessions"))
	huma.Get(api, "/api/v1/sessions/{id}/style", h.GetSessionStyle, huma.OperationTags("sessions"))
	huma.Put(api, "/api/v1/sessions/{id}/style", h.SwitchStyle, huma.OperationTags("sessions"))
	huma.Get(api, "/api/v1/sessions/{id}/overlays", h.GetOverlays, huma.OperationTags("overlays"))
	huma.Post(api, "/api/v1/sessions/{id}/overlays", h.LoadOverlay, huma.OperationTags("overlays"))
	huma.Put(api, "/api/v1/sessions/{id}/overlays/visibility", h.SetVisibility, huma.OperationTags("overlays"))
	huma.Post(api, "/api/v1/sessions/{id}/preset", h.ApplyPreset, huma.OperationTags("overlays"))
}

// RegisterClassify registers the stateless classifier route.
func (h *APIHandler) RegisterClassify(api huma.API) {
	huma.Post(api, "/api/v1/classify", h.Classify, huma.OperationTags("presets"))
}

func (h *APIHandler) session(id string) (*session.Session, error) {
	if h.svc == nil || h.svc.Sessions == nil {
		return nil, huma.Error404NotFound("service not available")
	}
	s, err := h.svc.Sessions.Get(id)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	return s, nil
}

func sessionBody(s *session.Session) SessionBody {
	min, max := s.Legend.Domain()
	return SessionBody{
		ID:          s.ID,
		Created:     s.Created,
		Style:       s.Preserver.Current(),
		StyleLoaded: s.Map.IsStyleLoaded(),
		Viewport:    s.Map.Viewport(),
		BaseLayers:  s.Control.BaseLayers(),
		Overlays:    s.Control.Overlays(),
		Sources:     s.Sources.Sources(),
		Legend:      LegendBody{Legend: s.Legend.Legend(), Min: min, Max: max},
		Alerts:      s.Alerts(),
	}
}

func overlayBody(s *session.Session, e *overlay.Entry, popups bool) OverlayBody {
	b := OverlayBody{
		Key:      string(e.Key),
		Label:    e.Overlay.Label,
		Kind:     string(e.Overlay.Kind),
		SourceID: s.SourceID(e.Key),
		Features: e.Overlay.Len(),
	}
	if e.Overlay.HasGeometry() {
		b.BBox = boundBox(e.Bound)
	}
	if popups {
		b.Popups = e.Overlay.Popups()
	}
	return b
}

func boundBox(b orb.Bound) []float64 {
	return []float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()}
}

func (h *APIHandler) GetSessions(ctx context.Context, input *struct{}) (*struct{ Body []SessionBody }, error) {
	out := &struct{ Body []SessionBody }{Body: []SessionBody{}}
	if h.svc == nil || h.svc.Sessions == nil {
		return out, nil
	}
	for _, s := range h.svc.Sessions.List() {
		out.Body = append(out.Body, sessionBody(s))
	}
	return out, nil
}

func (h *APIHandler) CreateSession(ctx context.Context, input *struct{}) (*SessionOutput, error) {
	if h.svc == nil || h.svc.Sessions == nil {
		return nil, huma.Error400BadRequest("service not available")
	}
	s, err := h.svc.Sessions.Create(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("creating session failed", err)
	}
	return &SessionOutput{Body: sessionBody(s)}, nil
}

func (h *APIHandler) GetSession(ctx context.Context, input *SessionInput) (*SessionOutput, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	return &SessionOutput{Body: sessionBody(s)}, nil
}

func (h *APIHandler) DeleteSession(ctx context.Context, input *SessionInput) (*struct{ Body MessageBody }, error) {
	if h.svc == nil || h.svc.Sessions == nil {
		return nil, huma.Error400BadRequest("service not available")
	}
	if err := h.svc.Sessions.Delete(input.ID); err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Session deleted"}}, nil
}

func (h *APIHandler) GetSessionStyle(ctx context.Context, input *SessionInput) (*struct{ Body *mapstate.Style }, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	return &struct{ Body *mapstate.Style }{Body: s.Map.Style()}, nil
}

func (h *APIHandler) SwitchStyle(ctx context.Context, input *struct {
	SessionInput
	Body StyleBody
}) (*SessionOutput, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	if err := s.SwitchStyle(ctx, input.Body.Code); err != nil {
		if errors.Is(err, basemap.ErrUnknownStyle) {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		return nil, huma.Error500InternalServerError("switching style failed", err)
	}
	return &SessionOutput{Body: sessionBody(s)}, nil
}

func (h *APIHandler) GetOverlays(ctx context.Context, input *SessionInput) (*struct{ Body []OverlayBody }, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	out := &struct{ Body []OverlayBody }{Body: []OverlayBody{}}
	for _, e := range s.Loader.Entries() {
		out.Body = append(out.Body, overlayBody(s, e, false))
	}
	return out, nil
}

func (h *APIHandler) LoadOverlay(ctx context.Context, input *struct {
	SessionInput
	Body LoadOverlayBody
}) (*struct{ Body OverlayBody }, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	req := overlay.Request{Kind: overlay.Kind(input.Body.Kind), Query: overlay.Query(input.Body.Query)}
	e, err := s.LoadOverlay(ctx, req)
	if err != nil {
		if errors.Is(err, overlay.ErrUnknownKind) {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		// The session has already alerted the user.
		return nil, huma.Error502BadGateway("loading overlay failed", err)
	}
	return &struct{ Body OverlayBody }{Body: overlayBody(s, e, true)}, nil
}

func (h *APIHandler) SetVisibility(ctx context.Context, input *struct {
	SessionInput
	Body VisibilityBody
}) (*struct{ Body []overlay.ControlEntry }, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	if err := s.SetOverlayVisible(overlay.Key(input.Body.Key), input.Body.Visible); err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	return &struct{ Body []overlay.ControlEntry }{Body: s.Control.Overlays()}, nil
}

func (h *APIHandler) ApplyPreset(ctx context.Context, input *struct {
	SessionInput
	Body ApplyPresetBody
}) (*struct{ Body ApplyPresetResult }, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	res, err := applyPreset(ctx, h.svc, s, input.Body)
	if err != nil {
		return nil, err
	}
	return &struct{ Body ApplyPresetResult }{Body: res}, nil
}

// applyPreset resolves the palette and domain of a repaint and runs it. An
// unknown preset alerts the user and leaves the overlay untouched. Without
// an explicit domain the data layer range is used, then the overlay's own
// values.
func applyPreset(ctx context.Context, svc *Services, s *session.Session, b ApplyPresetBody) (ApplyPresetResult, error) {
	if svc.Presets == nil {
		return ApplyPresetResult{}, huma.Error503ServiceUnavailable("presets not available")
	}
	palette, err := svc.Presets.Resolve(b.Preset)
	if err != nil {
		if errors.Is(err, choropleth.ErrUnknownPreset) {
			s.Alert(choropleth.ErrUnknownPreset.Error())
		}
		return ApplyPresetResult{}, huma.Error422UnprocessableEntity(err.Error())
	}

	key := overlay.Key(b.Key)
	min, max := s.ResolveDomain(ctx, svc.Values, key, b.VariantKey, b.ShapeType, b.Min, b.Max)

	stats, err := s.ApplyPreset(session.PresetRequest{
		Key:          key,
		Palette:      palette,
		Transparency: b.Transparency,
		Min:          min,
		Max:          max,
		VariantKey:   b.VariantKey,
	})
	if err != nil {
		return ApplyPresetResult{}, huma.Error404NotFound(err.Error())
	}
	dmin, dmax := s.Legend.Domain()
	return ApplyPresetResult{
		Stats:  stats,
		Legend: LegendBody{Legend: s.Legend.Legend(), Min: dmin, Max: dmax},
	}, nil
}

func (h *APIHandler) Classify(ctx context.Context, input *struct{ Body ClassifyBody }) (*struct{ Body ClassifyResult }, error) {
	var (
		palette choropleth.Palette
		err     error
	)
	switch {
	case len(input.Body.Colors) > 0:
		palette, err = choropleth.ParsePalette(input.Body.Colors)
	case h.svc != nil && h.svc.Presets != nil:
		palette, err = h.svc.Presets.Resolve(input.Body.Preset)
	default:
		err = choropleth.ErrUnknownPreset
	}
	if err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	color := choropleth.Classify(input.Body.Value, input.Body.Min, input.Body.Max, palette)
	return &struct{ Body ClassifyResult }{Body: ClassifyResult{Color: color}}, nil
}
