package templates

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joeblew999/plat-overlay/internal/choropleth"
	"github.com/joeblew999/plat-overlay/internal/overlay"
)

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := New()
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestLegend(t *testing.T) {
	r := newRenderer(t)
	p := choropleth.Palette{"#eff3ff", "#bdd7e7", "#6baed6", "#3182bd", "#08519c"}

	html, err := r.Legend(NewLegendData(choropleth.BuildLegend(p, choropleth.LayoutColumn), 0, 12.5))
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(html, `class="legend-swatch"`); n != 5 {
		t.Errorf("swatches = %d, want 5", n)
	}
	for _, want := range []string{"flex-column", "#08519c", ">12.5<", "width: 10px"} {
		if !strings.Contains(html, want) {
			t.Errorf("legend missing %q:\n%s", want, html)
		}
	}
}

func TestPopupEscapesValues(t *testing.T) {
	r := newRenderer(t)
	html, err := r.Popup(overlay.Popup{
		Title: "Berlin",
		Rows:  []overlay.Row{{Label: "name", Value: "<script>"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(html, "<script>") {
		t.Errorf("value not escaped: %s", html)
	}
	if !strings.Contains(html, "<h6>Berlin") {
		t.Errorf("title missing: %s", html)
	}
}

func TestLayerControl(t *testing.T) {
	r := newRenderer(t)
	c := overlay.NewControl()
	c.AddBaseLayer("Light")
	c.AddBaseLayer("Dark")
	c.AddOverlay("States", "States")

	html, err := r.LayerControl(c)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(html, `value="Light" checked`) {
		t.Errorf("first base layer not checked: %s", html)
	}
	if !strings.Contains(html, `type="checkbox" value="States" checked`) {
		t.Errorf("overlay missing: %s", html)
	}
}

func TestNewDirAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alert.html")
	if err := os.WriteFile(path, []byte(`{{define "alert"}}v1 {{.}}{{end}}`), 0644); err != nil {
		t.Fatal(err)
	}
	r, err := NewDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := r.Alert("x"); got != "v1 x" {
		t.Errorf("alert = %q", got)
	}

	if err := os.WriteFile(path, []byte(`{{define "alert"}}v2 {{.}}{{end}}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(); err != nil {
		t.Fatal(err)
	}
	if got, _ := r.Alert("x"); got != "v2 x" {
		t.Errorf("alert after reload = %q", got)
	}

	if _, err := r.Render("missing", nil); err == nil {
		t.Error("expected error for unknown template")
	}
}
