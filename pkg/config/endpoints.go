package config

import (
	"fmt"
	"maps"
	"net/url"

	"github.com/Sternrassler/tmdb-ingest/pkg/catalog"
)

// EndpointKind names a remote API surface.
type EndpointKind string

const (
	EndpointDiscover EndpointKind = "discover"
	EndpointGenre    EndpointKind = "genre"
	EndpointDetails  EndpointKind = "details"
)

// Endpoint is the path template and default request shape for one
// (EndpointKind, ItemType) pair.
type Endpoint struct {
	Path    string
	Headers map[string]string
	Params  map[string]string
}

// Query returns a fresh copy of the default parameters.
func (e Endpoint) Query() url.Values {
	q := make(url.Values, len(e.Params))
	for k, v := range e.Params {
		q.Set(k, v)
	}
	return q
}

type endpointKey struct {
	kind     EndpointKind
	itemType catalog.ItemType
}

// Endpoints is the endpoint table keyed by (EndpointKind, ItemType).
type Endpoints map[endpointKey]Endpoint

// DefaultEndpoints returns a fresh table of the TMDB v3 endpoints.
func DefaultEndpoints() Endpoints {
	discover := func(path string) Endpoint {
		return Endpoint{
			Path:    path,
			Headers: jsonHeaders(),
			Params:  map[string]string{"include_adult": "true", "include_video": "true"},
		}
	}
	genre := func(path string) Endpoint {
		return Endpoint{
			Path:    path,
			Headers: jsonHeaders(),
			Params:  map[string]string{"language": "en"},
		}
	}

	return Endpoints{
		{EndpointDiscover, catalog.Movie}:  discover("/discover/movie"),
		{EndpointDiscover, catalog.TVShow}: discover("/discover/tv"),
		{EndpointGenre, catalog.Movie}:     genre("/genre/movie/list"),
		{EndpointGenre, catalog.TVShow}:    genre("/genre/tv/list"),
		{EndpointDetails, catalog.Movie}:   {Path: "/movie", Headers: jsonHeaders()},
		{EndpointDetails, catalog.TVShow}:  {Path: "/tv", Headers: jsonHeaders()},
	}
}

func jsonHeaders() map[string]string {
	return map[string]string{"Accept": "application/json"}
}

// Lookup returns a copy of the endpoint registered for kind and t.
func (e Endpoints) Lookup(kind EndpointKind, t catalog.ItemType) (Endpoint, error) {
	found, ok := e[endpointKey{kind, t}]
	if !ok {
		return Endpoint{}, fmt.Errorf("endpoint %s not configured for %s", kind, t)
	}
	return Endpoint{
		Path:    found.Path,
		Headers: maps.Clone(found.Headers),
		Params:  maps.Clone(found.Params),
	}, nil
}

// Set registers endpoint for kind and t, replacing any previous entry.
func (e Endpoints) Set(kind EndpointKind, t catalog.ItemType, endpoint Endpoint) {
	e[endpointKey{kind, t}] = endpoint
}
