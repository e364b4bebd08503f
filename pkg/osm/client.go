// Package osm provides utilities for working with OpenStreetMap data.
package osm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/NERVsystems/osmtally/pkg/cache"
	"github.com/NERVsystems/osmtally/pkg/metrics"
)

// maxBodyBytes caps how much of an upstream response is read into memory
const maxBodyBytes = 64 << 20

// Config holds the endpoints and pacing of a Client.
type Config struct {
	OverpassURL    string
	NominatimURL   string
	UserAgent      string
	Timeout        time.Duration
	OverpassRPS    float64
	OverpassBurst  int
	NominatimRPS   float64
	NominatimBurst int
}

// Client talks to Overpass and Nominatim with per-service rate limiting
// and an optional response cache.
type Client struct {
	httpClient   *http.Client
	overpassURL  string
	nominatimURL string
	userAgent    string
	limiter      *RateLimiter
	cache        cache.Cache
	logger       *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithCache stores Overpass response bodies in c.
func WithCache(c cache.Cache) Option {
	return func(cl *Client) { cl.cache = c }
}

// WithLogger sets the logger for the client
func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) { cl.logger = logger }
}

// WithHTTPClient replaces the pooled HTTP client, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(cl *Client) { cl.httpClient = hc }
}

// NewClient creates a new OSM API client. Zero config fields take the
// public-instance defaults.
func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		httpClient:   NewHTTPClient(cfg.Timeout),
		overpassURL:  cfg.OverpassURL,
		nominatimURL: strings.TrimRight(cfg.NominatimURL, "/"),
		userAgent:    cfg.UserAgent,
		limiter:      NewRateLimiter(),
		logger:       slog.Default(),
	}
	if c.overpassURL == "" {
		c.overpassURL = OverpassBaseURL
	}
	if c.nominatimURL == "" {
		c.nominatimURL = NominatimBaseURL
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if cfg.OverpassRPS != 0 {
		c.limiter.Set(ServiceOverpass, cfg.OverpassRPS, cfg.OverpassBurst)
	}
	if cfg.NominatimRPS != 0 {
		c.limiter.Set(ServiceNominatim, cfg.NominatimRPS, cfg.NominatimBurst)
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "osm_client")
	return c
}

// UserAgent returns the User-Agent string sent upstream
func (c *Client) UserAgent() string {
	return c.userAgent
}

// Query runs an Overpass QL query and decodes its elements.
// Successful bodies are cached under a hash of the query text.
func (c *Client) Query(ctx context.Context, query string) (*Response, error) {
	key := cacheKey(query)
	if c.cache != nil {
		if body, ok := c.cache.Get(ctx, key); ok {
			var resp Response
			if err := json.Unmarshal(body, &resp); err == nil {
				metrics.CacheHitsTotal.Inc()
				c.logger.Debug("overpass cache hit", "key", key)
				return &resp, nil
			}
		}
		metrics.CacheMissesTotal.Inc()
	}

	form := url.Values{}
	form.Set("data", query)
	req, err := c.newRequest(ctx, http.MethodPost, c.overpassURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(ctx, ServiceOverpass, req)
	if err != nil {
		return nil, err
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		metrics.UpstreamFailuresTotal.WithLabelValues(ServiceOverpass, "decode").Inc()
		return nil, fmt.Errorf("decode overpass response: %w", err)
	}
	if err := resp.remarkError(); err != nil {
		metrics.UpstreamFailuresTotal.WithLabelValues(ServiceOverpass, "remark").Inc()
		return nil, err
	}

	if c.cache != nil {
		c.cache.Set(ctx, key, body)
	}
	c.logger.Debug("overpass query done", "elements", len(resp.Elements))
	return &resp, nil
}

// newRequest creates an HTTP request with the configured User-Agent header
func (c *Client) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

// do waits for the service's rate limit, performs the request and returns
// the body of a 200 response.
func (c *Client) do(ctx context.Context, service string, req *http.Request) ([]byte, error) {
	if err := c.limiter.Wait(ctx, service); err != nil {
		return nil, err
	}

	metrics.UpstreamRequestsTotal.WithLabelValues(service).Inc()
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.UpstreamDurationMs.WithLabelValues(service).Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.UpstreamFailuresTotal.WithLabelValues(service, "transport").Inc()
		c.logger.Error("request failed", "service", service, "error", err)
		return nil, fmt.Errorf("%s request: %w", service, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.UpstreamFailuresTotal.WithLabelValues(service, "read").Inc()
		return nil, fmt.Errorf("read %s response: %w", service, err)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.UpstreamFailuresTotal.WithLabelValues(service, fmt.Sprintf("status_%d", resp.StatusCode)).Inc()
		c.logger.Error("service returned error", "service", service, "status", resp.StatusCode)
		return nil, &StatusError{
			Service:    service,
			StatusCode: resp.StatusCode,
			Message:    summarize(body),
		}
	}
	return body, nil
}

func cacheKey(query string) string {
	sum := sha256.Sum256([]byte(query))
	return "overpass:" + hex.EncodeToString(sum[:])
}

// summarize trims an error body to something fit for a log line
func summarize(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
