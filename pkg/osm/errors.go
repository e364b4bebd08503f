package osm

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRateLimited is reported when an upstream service rejects a request for load reasons.
	ErrRateLimited = errors.New("rate limited by upstream service")

	// ErrTimeout is reported when an upstream query runs out of time.
	ErrTimeout = errors.New("upstream query timed out")

	// ErrNoResults is returned by Geocode when nothing matches.
	ErrNoResults = errors.New("no results")

	// ErrInvalidRequest marks arguments rejected before any request is sent.
	ErrInvalidRequest = errors.New("invalid request")
)

// StatusError is returned when an upstream service answers with a non-200 status.
type StatusError struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s returned status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Message)
}

// Unwrap lets callers test for ErrRateLimited and ErrTimeout with errors.Is.
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return ErrTimeout
	default:
		return nil
	}
}
