package service

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const shapesFixture = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"id":1,"type":"country","name":"Deutschland","key":"de"},
  "geometry":{"type":"Polygon","coordinates":[[[5,47],[15,47],[15,55],[5,55],[5,47]]]}},
 {"type":"Feature","properties":{"id":11,"parent_id":1,"type":"state","name":"Berlin"},
  "geometry":{"type":"Polygon","coordinates":[[[13,52],[14,52],[14,53],[13,53],[13,52]]]}},
 {"type":"Feature","properties":{"id":12,"parent_id":1,"type":"state","name":"Brandenburg"},
  "geometry":{"type":"Polygon","coordinates":[[[11,51],[15,51],[15,54],[11,54],[11,51]]]}},
 {"type":"Feature","properties":{"type":"state","name":"no id"},
  "geometry":{"type":"Point","coordinates":[0,0]}}
]}`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func newTestShapes(t *testing.T) (*ShapeService, string) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "shapes", "de.geojson"), shapesFixture)
	return NewShapeService(dir, "http://localhost:8086/"), dir
}

func TestEventBusSessionFilter(t *testing.T) {
	bus := NewEventBus()
	mine := bus.Subscribe("a")
	all := bus.Subscribe("")
	defer bus.Unsubscribe(mine)
	defer bus.Unsubscribe(all)

	bus.Publish(Event{Session: "b", Type: EventLoading, Key: "x"})
	bus.Publish(Event{Session: "a", Type: EventLoaded, Key: "y"})

	select {
	case ev := <-mine:
		if ev.Session != "a" || ev.Type != EventLoaded {
			t.Errorf("session subscriber got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("session subscriber got nothing")
	}
	if len(mine) != 0 {
		t.Error("session subscriber received foreign events")
	}
	if len(all) != 2 {
		t.Errorf("global subscriber got %d events, want 2", len(all))
	}
}

func TestEventBusDropsWhenFull(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe("")
	for i := 0; i < cap(ch)+10; i++ {
		bus.Publish(Event{Type: EventAlert})
	}
	if len(ch) != cap(ch) {
		t.Errorf("buffered = %d, want %d", len(ch), cap(ch))
	}
	bus.Unsubscribe(ch)
	if _, ok := <-drain(ch); ok {
		t.Error("channel should be closed")
	}
}

func drain(ch chan Event) chan Event {
	for len(ch) > 0 {
		<-ch
	}
	return ch
}
