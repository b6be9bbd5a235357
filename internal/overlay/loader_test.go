package overlay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap/zaptest"
)

func squareCollection(props map[string]any) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(orb.Polygon{{{0, 0}, {2, 0}, {2, 1}, {0, 1}, {0, 0}}})
	for k, v := range props {
		f.Properties[k] = v
	}
	fc.Append(f)
	return fc
}

type recordingTarget struct {
	mu      sync.Mutex
	added   []Key
	fitted  []orb.Bound
	failAdd error
}

func (r *recordingTarget) AddOverlay(o *Overlay) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAdd != nil {
		return r.failAdd
	}
	r.added = append(r.added, o.Key)
	return nil
}

func (r *recordingTarget) FitBounds(b orb.Bound) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fitted = append(r.fitted, b)
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (e *eventLog) observe(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventLog) signals() []Signal {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Signal, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.Signal
	}
	return out
}

func countingFetcher(calls *atomic.Int32, fc *geojson.FeatureCollection) Fetcher {
	return FetcherFunc(func(ctx context.Context, kind Kind, q Query) (*geojson.FeatureCollection, error) {
		calls.Add(1)
		return fc, nil
	})
}

func TestLoadIsIdempotent(t *testing.T) {
	var calls atomic.Int32
	target := &recordingTarget{}
	l := NewLoader(Config{
		Fetcher: countingFetcher(&calls, squareCollection(map[string]any{"name": "Berlin"})),
		Target:  target,
		Logger:  zaptest.NewLogger(t),
	})
	req := Request{Kind: KindShape, Query: Query{"name": "Berlin", "shape_id": "11"}}

	first, err := l.Load(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	second, err := l.Load(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}

	if first != second {
		t.Error("second load should return the cached entry")
	}
	if calls.Load() != 1 {
		t.Errorf("fetch calls = %d, want 1", calls.Load())
	}
	if len(target.added) != 1 {
		t.Errorf("overlays added = %d, want 1", len(target.added))
	}
	if got := l.Control().Overlays(); len(got) != 1 || got[0].Key != "Berlin" {
		t.Errorf("control overlays = %+v", got)
	}
}

func TestConcurrentLoadsShareOneFetch(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	fetcher := FetcherFunc(func(ctx context.Context, kind Kind, q Query) (*geojson.FeatureCollection, error) {
		calls.Add(1)
		<-release
		return squareCollection(nil), nil
	})
	l := NewLoader(Config{Fetcher: fetcher, Target: &recordingTarget{}})
	req := Request{Kind: KindDataLayer, Query: Query{"datalayer_id": "7"}}

	var wg sync.WaitGroup
	entries := make([]*Entry, 5)
	for i := range entries {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := l.Load(context.Background(), req)
			if err != nil {
				t.Error(err)
			}
			entries[i] = e
		}(i)
	}

	// Give the goroutines time to join the flight before it completes.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("fetch calls = %d, want 1", calls.Load())
	}
	for _, e := range entries {
		if e != entries[0] {
			t.Fatal("all callers should observe the same entry")
		}
	}
	if n := len(l.Control().Overlays()); n != 1 {
		t.Errorf("control overlays = %d, want 1", n)
	}
}

func TestLoadSignalsArePaired(t *testing.T) {
	var log eventLog
	l := NewLoader(Config{
		Fetcher: FetcherFunc(func(ctx context.Context, kind Kind, q Query) (*geojson.FeatureCollection, error) {
			return squareCollection(nil), nil
		}),
	})
	l.Subscribe(log.observe)

	if _, err := l.Load(context.Background(), Request{Kind: KindBBox, Query: Query{"shape_id": "3"}}); err != nil {
		t.Fatal(err)
	}
	got := log.signals()
	if len(got) != 2 || got[0] != SignalLoading || got[1] != SignalLoaded {
		t.Fatalf("signals = %v, want [dataloading dataload]", got)
	}
}

func TestFailedLoadAlertsAndRetries(t *testing.T) {
	var log eventLog
	var alerts []string
	fail := true
	var calls atomic.Int32
	fetcher := FetcherFunc(func(ctx context.Context, kind Kind, q Query) (*geojson.FeatureCollection, error) {
		calls.Add(1)
		if fail {
			return nil, &TransportError{URL: "http://geo/api/shapes/geometry/", StatusCode: 500}
		}
		return squareCollection(nil), nil
	})
	l := NewLoader(Config{
		Fetcher:  fetcher,
		Target:   &recordingTarget{},
		Notifier: NotifierFunc(func(msg string) { alerts = append(alerts, msg) }),
		Logger:   zaptest.NewLogger(t),
	})
	l.Subscribe(log.observe)
	req := Request{Kind: KindShape, Query: Query{"shape_id": "9"}}

	_, err := l.Load(context.Background(), req)
	var te *TransportError
	if !errors.As(err, &te) || te.StatusCode != 500 {
		t.Fatalf("err = %v, want TransportError 500", err)
	}
	if len(alerts) != 1 || alerts[0] != "Something went wrong during loading the geometry of the shape." {
		t.Errorf("alerts = %v", alerts)
	}
	if _, ok := l.Get(req.Key()); ok {
		t.Error("failed load must not be cached")
	}
	if n := len(l.Control().Overlays()); n != 0 {
		t.Errorf("control overlays = %d, want 0", n)
	}
	if got := log.signals(); len(got) != 2 || got[1] != SignalLoaded {
		t.Errorf("signals after failure = %v", got)
	}

	fail = false
	if _, err := l.Load(context.Background(), req); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("fetch calls = %d, want 2", calls.Load())
	}
}

func TestDataLayerFailureMessage(t *testing.T) {
	var alerts []string
	l := NewLoader(Config{
		Fetcher: FetcherFunc(func(ctx context.Context, kind Kind, q Query) (*geojson.FeatureCollection, error) {
			return nil, errors.New("connection refused")
		}),
		Notifier: NotifierFunc(func(msg string) { alerts = append(alerts, msg) }),
	})
	if _, err := l.Load(context.Background(), Request{Kind: KindDataLayer, Query: Query{"datalayer_id": "1"}}); err == nil {
		t.Fatal("expected error")
	}
	if len(alerts) != 1 || alerts[0] != "Something went wrong during loading the data." {
		t.Errorf("alerts = %v", alerts)
	}
}

func TestFitBoundsOnlyForShapes(t *testing.T) {
	target := &recordingTarget{}
	l := NewLoader(Config{
		Fetcher: FetcherFunc(func(ctx context.Context, kind Kind, q Query) (*geojson.FeatureCollection, error) {
			return squareCollection(nil), nil
		}),
		Target: target,
	})

	if _, err := l.Load(context.Background(), Request{Kind: KindDataLayer, Query: Query{"datalayer_id": "1"}}); err != nil {
		t.Fatal(err)
	}
	if len(target.fitted) != 0 {
		t.Fatalf("data layer should not fit bounds, got %v", target.fitted)
	}

	if _, err := l.Load(context.Background(), Request{Kind: KindShape, Query: Query{"shape_id": "2"}}); err != nil {
		t.Fatal(err)
	}
	want := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{2, 1}}
	if len(target.fitted) != 1 || target.fitted[0] != want {
		t.Fatalf("fitted = %v, want [%v]", target.fitted, want)
	}
}

func TestEmptyShapeDoesNotFit(t *testing.T) {
	target := &recordingTarget{}
	l := NewLoader(Config{
		Fetcher: FetcherFunc(func(ctx context.Context, kind Kind, q Query) (*geojson.FeatureCollection, error) {
			return geojson.NewFeatureCollection(), nil
		}),
		Target: target,
	})
	if _, err := l.Load(context.Background(), Request{Kind: KindShape, Query: Query{"shape_id": "0"}}); err != nil {
		t.Fatal(err)
	}
	if len(target.fitted) != 0 {
		t.Errorf("empty overlay should not fit bounds")
	}
}

func TestTargetErrorIsNotCached(t *testing.T) {
	target := &recordingTarget{failAdd: errors.New("style not loaded")}
	l := NewLoader(Config{
		Fetcher: FetcherFunc(func(ctx context.Context, kind Kind, q Query) (*geojson.FeatureCollection, error) {
			return squareCollection(nil), nil
		}),
		Target: target,
	})
	req := Request{Kind: KindShape, Query: Query{"shape_id": "5"}}
	if _, err := l.Load(context.Background(), req); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := l.Get(req.Key()); ok {
		t.Error("entry should not be cached")
	}
}

func TestUnknownKind(t *testing.T) {
	l := NewLoader(Config{})
	if _, err := l.Load(context.Background(), Request{Kind: "tiles"}); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err = %v, want ErrUnknownKind", err)
	}
}

func TestUnsubscribe(t *testing.T) {
	var log eventLog
	l := NewLoader(Config{
		Fetcher: FetcherFunc(func(ctx context.Context, kind Kind, q Query) (*geojson.FeatureCollection, error) {
			return squareCollection(nil), nil
		}),
	})
	unsubscribe := l.Subscribe(log.observe)
	unsubscribe()
	if _, err := l.Load(context.Background(), Request{Kind: KindBBox, Query: Query{"shape_id": "1"}}); err != nil {
		t.Fatal(err)
	}
	if n := len(log.signals()); n != 0 {
		t.Errorf("events after unsubscribe = %d", n)
	}
}

func TestShapeAndBBoxDoNotShareEntry(t *testing.T) {
	var calls atomic.Int32
	var kinds []Kind
	var mu sync.Mutex
	fetcher := FetcherFunc(func(ctx context.Context, kind Kind, q Query) (*geojson.FeatureCollection, error) {
		calls.Add(1)
		mu.Lock()
		kinds = append(kinds, kind)
		mu.Unlock()
		return squareCollection(nil), nil
	})
	l := NewLoader(Config{Fetcher: fetcher, Target: &recordingTarget{}, Logger: zaptest.NewLogger(t)})
	ctx := context.Background()

	shape, err := l.Load(ctx, Request{Kind: KindShape, Query: Query{"shape_id": "3"}})
	if err != nil {
		t.Fatal(err)
	}
	bbox, err := l.Load(ctx, Request{Kind: KindBBox, Query: Query{"shape_id": "3"}})
	if err != nil {
		t.Fatal(err)
	}

	if shape == bbox {
		t.Fatal("bbox load returned the cached shape overlay")
	}
	if calls.Load() != 2 {
		t.Errorf("fetch calls = %d, want 2", calls.Load())
	}
	if len(kinds) != 2 || kinds[1] != KindBBox {
		t.Errorf("fetched kinds = %v", kinds)
	}
	if bbox.Overlay.Kind != KindBBox {
		t.Errorf("bbox overlay kind = %q", bbox.Overlay.Kind)
	}
}
