// Package api serves the workspace to a browser map over HTTP/JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/NERVsystems/osmtally/pkg/annotation"
	"github.com/NERVsystems/osmtally/pkg/export"
	"github.com/NERVsystems/osmtally/pkg/logger"
	"github.com/NERVsystems/osmtally/pkg/metrics"
	"github.com/NERVsystems/osmtally/pkg/osm"
	"github.com/NERVsystems/osmtally/pkg/workspace"
)

// maxBodyBytes bounds request bodies, GeoJSON imports included.
const maxBodyBytes = 10 << 20

// Handler holds the workspace behind the routes.
type Handler struct {
	ws     *workspace.Workspace
	logger *slog.Logger
	now    func() time.Time
	qps    float64
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger used for access and error logs.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithRateLimit rejects requests above qps with 429. Zero disables it.
func WithRateLimit(qps float64) Option {
	return func(h *Handler) { h.qps = qps }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// NewHandler creates the API over ws.
func NewHandler(ws *workspace.Workspace, opts ...Option) *Handler {
	h := &Handler{ws: ws, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "api")
	return h
}

// Routes returns the router with every endpoint and middleware mounted.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logger.AccessMiddleware(h.logger))
	r.Use(countRequests)
	r.Use(middleware.Recoverer)
	if h.qps > 0 {
		r.Use(rateLimit(h.qps))
	}

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/categories", h.handleCategories)

		r.Get("/shapes", h.handleListShapes)
		r.Post("/shapes", h.handleAddShape)
		r.Delete("/shapes", h.handleClearShapes)
		r.Post("/shapes/import", h.handleImportShapes)
		r.Route("/shapes/{id}", func(r chi.Router) {
			r.Get("/", h.handleGetShape)
			r.Patch("/", h.handleUpdateShape)
			r.Delete("/", h.handleDeleteShape)
			r.Post("/count", h.handleCountShape)
		})

		r.Post("/count", h.handleCountAll)
		r.Get("/results", h.handleResults)
		r.Get("/districts/stats", h.handleStats)
		r.Get("/districts/boundaries", h.handleListBoundaries)
		r.Post("/districts/boundaries", h.handleImportBoundaries)
		r.Get("/export", h.handleExport)
		r.Get("/geocode", h.handleGeocode)
	})
	return r
}

// countRequests records each request under its route pattern.
func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	})
}

// rateLimit is a token bucket over all clients.
func rateLimit(qps float64) func(http.Handler) http.Handler {
	burst := int(qps)
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(qps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "too many requests", Code: "rate_limited"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	writeJSON(w, status, v)
}

// writeError maps err onto a status, falling back to fallback, and logs
// server-side failures.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, fallback int) {
	status := statusFor(err, fallback)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: codeFor(status)})
}

func statusFor(err error, fallback int) int {
	var se *osm.StatusError
	switch {
	case errors.Is(err, annotation.ErrNotFound), errors.Is(err, osm.ErrNoResults):
		return http.StatusNotFound
	case errors.Is(err, annotation.ErrInvalidShape),
		errors.Is(err, osm.ErrInvalidRequest),
		errors.Is(err, export.ErrUnknownFormat),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, osm.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, osm.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &se):
		return http.StatusBadGateway
	default:
		return fallback
	}
}

func codeFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "validation_failed"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusBadGateway:
		return "upstream_error"
	case http.StatusGatewayTimeout:
		return "upstream_timeout"
	default:
		return "internal_error"
	}
}
