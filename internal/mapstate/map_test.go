package mapstate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap/zaptest"
)

func testStyle(name string) *Style {
	s := NewStyle(name)
	s.Sources["osm"] = Source{"type": "raster", "tiles": []any{"https://tile.openstreetmap.org/{z}/{x}/{y}.png"}}
	s.Layers = append(s.Layers, Layer{ID: "osm", Type: "raster", Source: "osm"})
	return s
}

func waitEvent(t *testing.T, m *Map, event string) Event {
	t.Helper()
	ch := make(chan Event, 1)
	m.Once(event, func(ev Event) { ch <- ev })
	return recvEvent(t, ch)
}

func recvEvent(t *testing.T, ch chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestSetStyleFiresStyleLoad(t *testing.T) {
	loader := NewStaticLoader(map[string]*Style{"light": testStyle("light")})
	m := New(loader, zaptest.NewLogger(t))

	ch := make(chan Event, 1)
	m.Once(EventStyleLoad, func(ev Event) { ch <- ev })
	m.SetStyle(context.Background(), "light")
	recvEvent(t, ch)

	if !m.IsStyleLoaded() {
		t.Fatal("style should be loaded")
	}
	if got := m.Style().Name; got != "light" {
		t.Fatalf("style name = %q, want light", got)
	}
	if m.StyleURL() != "light" {
		t.Fatalf("style url = %q, want light", m.StyleURL())
	}
}

func TestSetStyleErrorKeepsStyleUnloaded(t *testing.T) {
	m := New(NewStaticLoader(nil), zaptest.NewLogger(t))

	ch := make(chan Event, 1)
	m.Once(EventError, func(ev Event) { ch <- ev })
	m.SetStyle(context.Background(), "missing")
	ev := recvEvent(t, ch)

	if ev.Err == nil {
		t.Fatal("expected error in event")
	}
	if m.IsStyleLoaded() {
		t.Fatal("style should not be loaded")
	}
	if err := m.AddSource("dh-x", Source{"type": "geojson"}); !errors.Is(err, ErrStyleNotLoaded) {
		t.Fatalf("AddSource err = %v, want ErrStyleNotLoaded", err)
	}
}

func TestAddSourceAndLayer(t *testing.T) {
	m := New(NewStaticLoader(nil), nil)
	m.SetStyleDocument(testStyle("base"))

	if err := m.AddSource("dh-a", Source{"type": "geojson"}); err != nil {
		t.Fatal(err)
	}
	if err := m.AddSource("dh-a", Source{"type": "geojson"}); !errors.Is(err, ErrSourceExists) {
		t.Fatalf("duplicate source err = %v", err)
	}
	if err := m.AddLayer(Layer{ID: "dh-a-fill", Type: "fill", Source: "dh-a"}); err != nil {
		t.Fatal(err)
	}
	if err := m.AddLayer(Layer{ID: "dh-a-fill", Type: "fill", Source: "dh-a"}); !errors.Is(err, ErrLayerExists) {
		t.Fatalf("duplicate layer err = %v", err)
	}
	if err := m.AddLayer(Layer{ID: "orphan", Type: "fill", Source: "nope"}); !errors.Is(err, ErrSourceNotFound) {
		t.Fatalf("orphan layer err = %v", err)
	}

	style := m.Style()
	if len(style.Layers) != 2 || style.Layers[1].ID != "dh-a-fill" {
		t.Fatalf("layers = %+v", style.Layers)
	}
}

func TestStyleSnapshotIsIndependent(t *testing.T) {
	m := New(NewStaticLoader(nil), nil)
	m.SetStyleDocument(testStyle("base"))

	snap := m.Style()
	snap.Sources["osm"]["type"] = "vector"
	snap.Layers[0].ID = "changed"

	src, _ := m.Source("osm")
	if src["type"] != "raster" {
		t.Fatal("snapshot mutation leaked into map")
	}
	if _, ok := m.Layer("osm"); !ok {
		t.Fatal("layer id mutation leaked into map")
	}
}

func TestSetLayoutProperty(t *testing.T) {
	m := New(NewStaticLoader(nil), nil)
	m.SetStyleDocument(testStyle("base"))

	if err := m.SetLayoutProperty("osm", "visibility", "none"); err != nil {
		t.Fatal(err)
	}
	l, _ := m.Layer("osm")
	if l.Layout["visibility"] != "none" {
		t.Fatalf("visibility = %v", l.Layout["visibility"])
	}
	if err := m.SetPaintProperty("missing", "fill-opacity", 0.5); !errors.Is(err, ErrLayerNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestOnceFiresOnlyOnce(t *testing.T) {
	m := New(NewStaticLoader(nil), nil)

	calls := 0
	m.Once("custom", func(Event) { calls++ })
	m.Fire(Event{Type: "custom"})
	m.Fire(Event{Type: "custom"})

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestOnUnsubscribe(t *testing.T) {
	m := New(NewStaticLoader(nil), nil)

	calls := 0
	off := m.On("custom", func(Event) { calls++ })
	m.Fire(Event{Type: "custom"})
	off()
	m.Fire(Event{Type: "custom"})

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestFitBounds(t *testing.T) {
	m := New(NewStaticLoader(nil), nil)
	b := orb.Bound{Min: orb.Point{10, 50}, Max: orb.Point{12, 52}}

	got := make(chan Event, 1)
	m.Once(EventMoveEnd, func(ev Event) { got <- ev })
	m.FitBounds(b)
	recvEvent(t, got)

	vp := m.Viewport()
	if vp.Bound != b {
		t.Fatalf("bound = %v", vp.Bound)
	}
	if vp.Center != (orb.Point{11, 51}) {
		t.Fatalf("center = %v", vp.Center)
	}
}

type blockingLoader struct {
	release chan struct{}
	style   *Style
}

func (l *blockingLoader) Load(ctx context.Context, url string) (*Style, error) {
	<-l.release
	return l.style, nil
}

func TestSupersededStyleLoadIsDiscarded(t *testing.T) {
	slow := &blockingLoader{release: make(chan struct{}), style: testStyle("slow")}
	m := New(slow, nil)

	m.SetStyle(context.Background(), "first")
	m.SetStyleDocument(testStyle("second"))
	close(slow.release)

	// Give the first load a chance to land; it must not replace "second".
	time.Sleep(50 * time.Millisecond)
	if got := m.Style().Name; got != "second" {
		t.Fatalf("style = %q, want second", got)
	}
}
