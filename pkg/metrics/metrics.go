// Package metrics registers the Prometheus collectors shared by the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	UpstreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "osmtally_upstream_requests_total",
		Help: "Total requests sent to upstream OSM services",
	}, []string{"service"})
	UpstreamFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "osmtally_upstream_failures_total",
		Help: "Upstream requests that failed, by service and reason",
	}, []string{"service", "reason"})
	UpstreamDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "osmtally_upstream_duration_ms",
		Help:    "Upstream request duration in milliseconds",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	}, []string{"service"})
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "osmtally_cache_hits_total",
		Help: "Overpass responses served from cache",
	})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "osmtally_cache_misses_total",
		Help: "Overpass responses not found in cache",
	})
	ShapesCountedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "osmtally_shapes_counted_total",
		Help: "Shapes tallied, by outcome",
	}, []string{"outcome"})
	ShapeCountDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "osmtally_shape_count_duration_ms",
		Help:    "Time to tally every category of one shape",
		Buckets: []float64{10, 100, 500, 1000, 5000, 15000, 30000, 60000, 120000},
	})
	ExportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "osmtally_exports_total",
		Help: "District statistics exports, by format",
	}, []string{"format"})
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "osmtally_http_requests_total",
		Help: "HTTP API requests, by route and status code",
	}, []string{"route", "code"})
)

func init() {
	prometheus.MustRegister(UpstreamRequestsTotal)
	prometheus.MustRegister(UpstreamFailuresTotal)
	prometheus.MustRegister(UpstreamDurationMs)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(ShapesCountedTotal)
	prometheus.MustRegister(ShapeCountDurationMs)
	prometheus.MustRegister(ExportsTotal)
	prometheus.MustRegister(HTTPRequestsTotal)
}

// Handler exposes the registered collectors for scraping.
func Handler() http.Handler { return promhttp.Handler() }
