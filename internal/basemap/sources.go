package basemap

import (
	"fmt"
	"sort"

	"github.com/joeblew999/plat-overlay/internal/mapstate"
)

// SourceState is one line of the sources control.
type SourceState struct {
	ID      string `json:"id"`
	Layers  int    `json:"layers"`
	Visible bool   `json:"visible"`
}

// SourcesControl shows and hides all layers of a source at once through the
// "visibility" layout property. Visibility lives in the layers themselves, so
// it survives a style swap together with them.
type SourcesControl struct {
	m       *mapstate.Map
	p       *Preserver
	isShown func(id string) bool
}

// NewSourcesControl creates a sources control for m. Only sources for which
// filter returns true are listed; a nil filter lists every source.
func NewSourcesControl(m *mapstate.Map, filter func(id string) bool) *SourcesControl {
	if filter == nil {
		filter = func(string) bool { return true }
	}
	return &SourcesControl{m: m, isShown: filter}
}

// SourcesControl returns a sources control listing the custom sources of p.
// Its visibility changes reach the pending backup while a swap is in
// progress.
func (p *Preserver) SourcesControl() *SourcesControl {
	c := NewSourcesControl(p.m, p.IsCustom)
	c.p = p
	return c
}

// Sources returns the listed sources sorted by ID. A source is visible when
// at least one of its layers is.
func (c *SourcesControl) Sources() []SourceState {
	style := c.m.Style()
	states := make(map[string]*SourceState)
	for id := range style.Sources {
		if c.isShown(id) {
			states[id] = &SourceState{ID: id}
		}
	}
	for _, l := range style.Layers {
		s, ok := states[l.Source]
		if !ok {
			continue
		}
		s.Layers++
		if l.Layout["visibility"] != "none" {
			s.Visible = true
		}
	}

	out := make([]SourceState, 0, len(states))
	for _, s := range states {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetVisible shows or hides every layer drawing from the source.
func (c *SourcesControl) SetVisible(sourceID string, visible bool) error {
	value := "none"
	if visible {
		value = "visible"
	}
	if c.p != nil {
		return c.p.SetLayoutProperty(sourceID, "visibility", value)
	}
	if _, ok := c.m.Source(sourceID); !ok {
		return fmt.Errorf("%w: %s", mapstate.ErrSourceNotFound, sourceID)
	}
	for _, l := range c.m.Style().Layers {
		if l.Source != sourceID {
			continue
		}
		if err := c.m.SetLayoutProperty(l.ID, "visibility", value); err != nil {
			return err
		}
	}
	return nil
}
