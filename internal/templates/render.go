// Package templates handles HTML fragment rendering for Datastar SSE responses.
package templates

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"os"
	"strconv"
	"sync"

	"github.com/joeblew999/plat-overlay/internal/choropleth"
	"github.com/joeblew999/plat-overlay/internal/overlay"
)

//go:embed fragments/*.html
var embedded embed.FS

// funcMap provides common template functions.
var funcMap = template.FuncMap{
	// dict creates a map from key-value pairs, useful for passing multiple values to nested templates
	"dict": func(values ...any) map[string]any {
		if len(values)%2 != 0 {
			return nil
		}
		m := make(map[string]any, len(values)/2)
		for i := 0; i < len(values); i += 2 {
			key, ok := values[i].(string)
			if !ok {
				continue
			}
			m[key] = values[i+1]
		}
		return m
	},
}

// Renderer manages HTML fragment templates.
type Renderer struct {
	templates *template.Template
	fsys      fs.FS
	mu        sync.RWMutex
}

// New creates a renderer from the fragments compiled into the binary.
func New() (*Renderer, error) {
	sub, err := fs.Sub(embedded, "fragments")
	if err != nil {
		return nil, err
	}
	return NewFS(sub)
}

// NewDir creates a renderer reading fragments from dir, for editing
// templates without rebuilding.
func NewDir(dir string) (*Renderer, error) {
	return NewFS(os.DirFS(dir))
}

// NewFS creates a renderer from the *.html files at the root of fsys.
func NewFS(fsys fs.FS) (*Renderer, error) {
	tmpl, err := parse(fsys)
	if err != nil {
		return nil, err
	}
	return &Renderer{templates: tmpl, fsys: fsys}, nil
}

func parse(fsys fs.FS) (*template.Template, error) {
	return template.New("").Funcs(funcMap).ParseFS(fsys, "*.html")
}

// Render renders a named template to a string.
func (r *Renderer) Render(name string, data any) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderToBuffer renders a named template to a buffer.
func (r *Renderer) RenderToBuffer(buf *bytes.Buffer, name string, data any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.templates.ExecuteTemplate(buf, name, data)
}

// Reload parses the fragments again (useful for dev hot-reload).
func (r *Renderer) Reload() error {
	tmpl, err := parse(r.fsys)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.templates = tmpl
	r.mu.Unlock()

	return nil
}

// LegendData is the view model of the legend fragment.
type LegendData struct {
	Legend choropleth.Legend
	Min    string
	Max    string
}

// NewLegendData formats the domain labels of a legend.
func NewLegendData(l choropleth.Legend, min, max float64) LegendData {
	return LegendData{
		Legend: l,
		Min:    strconv.FormatFloat(min, 'f', -1, 64),
		Max:    strconv.FormatFloat(max, 'f', -1, 64),
	}
}

// Legend renders the legend bar.
func (r *Renderer) Legend(data LegendData) (string, error) {
	return r.Render("legend", data)
}

// Popup renders one feature popup.
func (r *Renderer) Popup(p overlay.Popup) (string, error) {
	return r.Render("popup", p)
}

// LayerControl renders the base layer and overlay toggles.
func (r *Renderer) LayerControl(c *overlay.Control) (string, error) {
	return r.Render("layer-control", map[string]any{
		"Base":     c.BaseLayers(),
		"Overlays": c.Overlays(),
	})
}

// Alert renders a dismissible alert.
func (r *Renderer) Alert(msg string) (string, error) {
	return r.Render("alert", msg)
}
