package editor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap/zaptest"

	"github.com/joeblew999/plat-overlay/internal/basemap"
	"github.com/joeblew999/plat-overlay/internal/choropleth"
	"github.com/joeblew999/plat-overlay/internal/mapstate"
	"github.com/joeblew999/plat-overlay/internal/overlay"
	"github.com/joeblew999/plat-overlay/internal/service"
	"github.com/joeblew999/plat-overlay/internal/session"
	"github.com/joeblew999/plat-overlay/internal/templates"
)

func newTestMux(t *testing.T) (*http.ServeMux, *session.Session) {
	t.Helper()

	fetcher := overlay.FetcherFunc(func(ctx context.Context, kind overlay.Kind, q overlay.Query) (*geojson.FeatureCollection, error) {
		fc := geojson.NewFeatureCollection()
		for i, count := range []float64{0, 5, 10} {
			f := geojson.NewFeature(orb.Point{float64(i), 0})
			f.Properties["availableCount"] = count
			fc.Append(f)
		}
		return fc, nil
	})
	bus := service.NewEventBus()
	styles := basemap.Catalog{{Code: "light", Title: "Light", URL: "light.json"}}
	sessions := session.NewManager(session.Options{
		Styles:      styles,
		StyleLoader: mapstate.NewStaticLoader(map[string]*mapstate.Style{"light.json": mapstate.NewStyle("light")}),
		Fetcher:     fetcher,
		Bus:         bus,
		Logger:      zaptest.NewLogger(t),
	})
	s, err := sessions.Create(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	req := overlay.Request{Kind: overlay.KindShape, Query: overlay.Query{"shape_type": "city", "name": "Cities"}}
	if _, err := s.LoadOverlay(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	presets := service.NewPresetService(t.TempDir(), []choropleth.Preset{
		{Key: "blues", Name: "Blues", Colors: []string{"#eff3ff", "#bdd7e7", "#6baed6", "#3182bd", "#08519c"}},
		{Key: "short", Name: "Short", Colors: []string{"#eff3ff", "#08519c"}},
	})
	renderer, err := templates.New()
	if err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	api := humago.New(mux, huma.DefaultConfig("test", "1.0.0"))
	NewPresetHandler(sessions, presets, nil, renderer).RegisterRoutes(api)
	NewEventHandler(sessions, bus, renderer).RegisterRoutes(api)
	return mux, s
}

func post(mux *http.ServeMux, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestPresetApplyPatchesLegend(t *testing.T) {
	mux, s := newTestMux(t)

	rec := post(mux, "/api/v1/editor/sessions/"+s.ID+"/preset", `{"key":"Cities","preset":"blues","min":"0","max":"10"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "datastar-patch-elements") || !strings.Contains(body, "#legend") {
		t.Errorf("no legend patch in %s", body)
	}
	if !strings.Contains(body, "#08519c") {
		t.Errorf("legend misses the top class color: %s", body)
	}
	if min, max := s.Legend.Domain(); min != 0 || max != 10 {
		t.Errorf("domain = %v..%v", min, max)
	}
}

func TestPresetApplyUnknownPreset(t *testing.T) {
	mux, s := newTestMux(t)

	rec := post(mux, "/api/v1/editor/sessions/"+s.ID+"/preset", `{"key":"Cities","preset":"nope"}`)
	body := rec.Body.String()
	if !strings.Contains(body, "datastar-patch-signals") || !strings.Contains(body, "invalid preset selected") {
		t.Errorf("no error signal in %s", body)
	}
	if strings.Contains(body, "#legend") {
		t.Error("legend patched for an unknown preset")
	}
	if len(s.Alerts()) != 1 {
		t.Errorf("alerts = %v", s.Alerts())
	}
}

func TestPresetApplyInvalidPalette(t *testing.T) {
	mux, s := newTestMux(t)

	rec := post(mux, "/api/v1/editor/sessions/"+s.ID+"/preset", `{"key":"Cities","preset":"short"}`)
	body := rec.Body.String()
	if !strings.Contains(body, "invalid palette") {
		t.Errorf("no palette error in %s", body)
	}
	if strings.Contains(body, "invalid preset selected") {
		t.Errorf("palette error reported as an unknown preset: %s", body)
	}
	if strings.Contains(body, "#legend") {
		t.Error("legend patched for an invalid palette")
	}
	if len(s.Alerts()) != 0 {
		t.Errorf("alerts = %v, want none", s.Alerts())
	}
}

func TestPresetApplyUnknownSession(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := post(mux, "/api/v1/editor/sessions/missing/preset", `{}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func get(mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestPresetList(t *testing.T) {
	mux, _ := newTestMux(t)

	body := get(mux, "/api/v1/editor/presets").Body.String()
	if !strings.Contains(body, "#preset-list") || !strings.Contains(body, "preset-blues") {
		t.Errorf("no preset card in %s", body)
	}
}

func TestPopup(t *testing.T) {
	mux, s := newTestMux(t)
	base := "/api/v1/editor/sessions/" + s.ID + "/popup"

	rec := get(mux, base+"?key=Cities&index=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "#popup") {
		t.Errorf("no popup patch in %s", rec.Body.String())
	}

	if rec := get(mux, base+"?key=Cities&index=3"); rec.Code != http.StatusNotFound {
		t.Errorf("out of range status = %d", rec.Code)
	}
	if rec := get(mux, base+"?key=Nope"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown overlay status = %d", rec.Code)
	}
}
