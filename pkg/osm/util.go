// Package osm provides utilities for working with OpenStreetMap data.
package osm

import (
	"net/http"
	"time"
)

const (
	// API endpoints
	NominatimBaseURL = "https://nominatim.openstreetmap.org"
	OverpassBaseURL  = "https://overpass-api.de/api/interpreter"

	// DefaultUserAgent identifies the tool to OSM services (required by Nominatim's usage policy)
	DefaultUserAgent = "osmtally/0.1.0"

	// DefaultTimeout bounds one upstream HTTP exchange
	DefaultTimeout = 60 * time.Second
)

// NewHTTPClient returns an HTTP client configured for OSM API requests
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
