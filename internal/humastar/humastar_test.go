package humastar

import (
	"strings"
	"testing"

	"github.com/joeblew999/plat-overlay/internal/templates"
)

func TestSignals(t *testing.T) {
	s, err := ParseSignals([]byte(`{"preset":"blues","min":"2.5","max":10,"visible":"true","bad":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	if s.String("preset") != "blues" || s.String("max") != "10" {
		t.Errorf("strings = %q %q", s.String("preset"), s.String("max"))
	}
	if f, ok := s.Float("min"); !ok || f != 2.5 {
		t.Errorf("min = %v %v", f, ok)
	}
	if f, ok := s.Float("max"); !ok || f != 10 {
		t.Errorf("max = %v %v", f, ok)
	}
	if _, ok := s.Float("bad"); ok {
		t.Error("bad parsed as number")
	}
	if _, ok := s.Float("missing"); ok {
		t.Error("missing parsed as number")
	}
	if !s.Bool("visible") || s.Bool("preset") {
		t.Error("bool conversion")
	}
	if !s.Has("bad") || s.Has("missing") {
		t.Error("Has")
	}
}

func TestParseSignalsEmptyBody(t *testing.T) {
	s, err := ParseSignals(nil)
	if err != nil || len(s) != 0 {
		t.Errorf("signals = %v, err = %v", s, err)
	}
	in := SignalsInput{RawBody: []byte("{")}
	if _, err := in.MustParse(); err == nil {
		t.Error("expected error for malformed body")
	}
}

func TestRenderList(t *testing.T) {
	r, err := templates.New()
	if err != nil {
		t.Fatal(err)
	}
	h := Handler{Renderer: r}

	empty := h.RenderList("preset-card", nil, "No presets", "Create one")
	if !strings.Contains(empty, "No presets") {
		t.Errorf("empty state = %s", empty)
	}

	html := h.RenderList("preset-card", []any{
		map[string]any{"Key": "blues", "Name": "Blues", "Colors": []string{"#eff3ff"}},
	}, "", "")
	if !strings.Contains(html, `id="preset-blues"`) {
		t.Errorf("card = %s", html)
	}

	opts := h.RenderOptions("Select a preset", []Option{{Value: "blues", Label: "Blues"}})
	if strings.Count(opts, "<option") != 2 {
		t.Errorf("options = %s", opts)
	}
}
