package osm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// Service names for rate limiting
	ServiceNominatim = "nominatim"
	ServiceOverpass  = "overpass"
)

// RateLimiter manages rate limiting for different OpenStreetMap API services
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
}

// NewRateLimiter returns a limiter set with the public-instance usage policies.
func NewRateLimiter() *RateLimiter {
	limiters := make(map[string]*rate.Limiter)

	// Nominatim: 1 request per second
	// https://operations.osmfoundation.org/policies/nominatim/
	limiters[ServiceNominatim] = rate.NewLimiter(rate.Every(1*time.Second), 1)

	// Overpass: 2 requests per minute with bursts of up to 2 requests
	// https://wiki.openstreetmap.org/wiki/Overpass_API#Public_Overpass_API_instances
	limiters[ServiceOverpass] = rate.NewLimiter(rate.Every(30*time.Second), 2)

	return &RateLimiter{limiters: limiters}
}

// Set replaces the limit for a service. A non-positive rps disables limiting.
func (rl *RateLimiter) Set(service string, rps float64, burst int) {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limiters[service] = rate.NewLimiter(limit, burst)
}

// Wait blocks until the rate limit for the specified service allows an event
// or the context is canceled.
func (rl *RateLimiter) Wait(ctx context.Context, service string) error {
	rl.mu.RLock()
	limiter, exists := rl.limiters[service]
	rl.mu.RUnlock()

	if !exists {
		return fmt.Errorf("no rate limiter defined for service: %s", service)
	}

	// Wait for rate limiter or context cancellation
	err := limiter.Wait(ctx)
	if err != nil {
		slog.Debug("rate limiter wait error", "service", service, "error", err)
		return err
	}

	return nil
}
