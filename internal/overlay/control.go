package overlay

import (
	"errors"
	"sync"
)

var ErrNotInControl = errors.New("layer not in layer control")

// ControlEntry is one line of the layer control.
type ControlEntry struct {
	Label   string `json:"label"`
	Key     Key    `json:"key,omitempty"`
	Visible bool   `json:"visible"`
}

// Control is the layer control: a set of mutually exclusive base layers and
// independently toggled overlays. It refers to overlays by key only; the
// loader owns their lifetime.
type Control struct {
	mu       sync.RWMutex
	base     []ControlEntry
	overlays []ControlEntry
}

// NewControl creates an empty layer control.
func NewControl() *Control {
	return &Control{}
}

// AddBaseLayer adds a base layer. The first one added is active.
func (c *Control) AddBaseLayer(label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.base {
		if e.Label == label {
			return
		}
	}
	c.base = append(c.base, ControlEntry{Label: label, Visible: len(c.base) == 0})
}

// SelectBase makes label the active base layer.
func (c *Control) SelectBase(label string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	found := false
	for _, e := range c.base {
		if e.Label == label {
			found = true
		}
	}
	if !found {
		return ErrNotInControl
	}
	for i := range c.base {
		c.base[i].Visible = c.base[i].Label == label
	}
	return nil
}

// AddOverlay adds a visible overlay entry. Adding a key twice keeps the
// first entry.
func (c *Control) AddOverlay(key Key, label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.overlays {
		if e.Key == key {
			return
		}
	}
	c.overlays = append(c.overlays, ControlEntry{Label: label, Key: key, Visible: true})
}

// SetVisible toggles the overlay with the given key.
func (c *Control) SetVisible(key Key, visible bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.overlays {
		if c.overlays[i].Key == key {
			c.overlays[i].Visible = visible
			return nil
		}
	}
	return ErrNotInControl
}

// BaseLayers returns the base layer entries.
func (c *Control) BaseLayers() []ControlEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]ControlEntry(nil), c.base...)
}

// Overlays returns the overlay entries in insertion order.
func (c *Control) Overlays() []ControlEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]ControlEntry(nil), c.overlays...)
}
