package overlay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/paulmach/orb/geojson"
)

// Fetcher retrieves the feature collection behind a request.
type Fetcher interface {
	Fetch(ctx context.Context, kind Kind, q Query) (*geojson.FeatureCollection, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, kind Kind, q Query) (*geojson.FeatureCollection, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, kind Kind, q Query) (*geojson.FeatureCollection, error) {
	return f(ctx, kind, q)
}

// TransportError is returned when the geometry service answers with a
// non-2xx status.
type TransportError struct {
	URL        string
	StatusCode int
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
}

// Endpoint paths of the geometry service.
var endpoints = map[Kind]string{
	KindShape:     "/api/shapes/geometry/",
	KindBBox:      "/api/shapes/bbox/",
	KindDataLayer: "/api/datalayers/vector/",
}

// HTTPFetcher talks to the geometry service over HTTP.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPFetcher creates a fetcher for the service at baseURL.
func NewHTTPFetcher(baseURL string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{BaseURL: strings.TrimRight(baseURL, "/"), Client: client}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, kind Kind, q Query) (*geojson.FeatureCollection, error) {
	path, ok := endpoints[kind]
	if !ok {
		return nil, fmt.Errorf("unknown overlay kind %q", kind)
	}
	u := f.BaseURL + path + "?" + q.Values().Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{URL: u, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", kind, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s response: %w", kind, err)
	}
	return fc, nil
}
