// Package tally counts points of interest inside annotated shapes and keeps
// the latest result of every shape.
package tally

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NERVsystems/osmtally/pkg/annotation"
	"github.com/NERVsystems/osmtally/pkg/metrics"
	"github.com/NERVsystems/osmtally/pkg/osm"
	"github.com/NERVsystems/osmtally/pkg/osm/queries"
)

// Querier runs Overpass QL. *osm.Client satisfies it.
type Querier interface {
	Query(ctx context.Context, query string) (*osm.Response, error)
}

// ResultStore persists shape results. Save failures are logged, not returned,
// since a result can always be recounted.
type ResultStore interface {
	SaveCounts(ctx context.Context, r ShapeResult) error
	LoadCounts(ctx context.Context) ([]ShapeResult, error)
}

// ShapeResult is the outcome of counting one shape.
// Elements holds the sorted element keys matched per category.
type ShapeResult struct {
	ShapeID   string              `json:"shape_id"`
	District  string              `json:"district"`
	Counts    map[string]int      `json:"counts"`
	Elements  map[string][]string `json:"elements,omitempty"`
	FetchedAt time.Time           `json:"fetched_at"`
}

// Total sums the counts of every category.
func (r ShapeResult) Total() int {
	n := 0
	for _, c := range r.Counts {
		n += c
	}
	return n
}

// Properties flattens the result into GeoJSON feature properties:
// total, fetched_at and one count_<category> per category.
func (r ShapeResult) Properties() map[string]interface{} {
	props := make(map[string]interface{}, len(r.Counts)+2)
	props["total"] = r.Total()
	props["fetched_at"] = r.FetchedAt.Format(time.RFC3339)
	for name, n := range r.Counts {
		props["count_"+name] = n
	}
	return props
}

// Counter runs the per-shape pipeline and holds the results map.
type Counter struct {
	client      Querier
	store       ResultStore
	concurrency int
	timeout     int
	now         func() time.Time
	logger      *slog.Logger

	mu        sync.RWMutex
	results   map[string]ShapeResult
	live      func(shapeID string) bool
	seq       uint64
	storedSeq map[string]uint64 // start sequence of each stored result
}

// Option configures a Counter.
type Option func(*Counter)

// WithConcurrency bounds how many shapes CountAll counts at once.
func WithConcurrency(n int) Option {
	return func(c *Counter) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithQueryTimeout sets the [timeout:N] of generated queries, in seconds.
func WithQueryTimeout(seconds int) Option {
	return func(c *Counter) { c.timeout = seconds }
}

// WithResultStore persists every new result.
func WithResultStore(s ResultStore) Option {
	return func(c *Counter) { c.store = s }
}

// WithLogger sets the logger of the counter.
func WithLogger(l *slog.Logger) Option {
	return func(c *Counter) { c.logger = l }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Counter) { c.now = now }
}

// NewCounter creates a counter querying through q.
func NewCounter(q Querier, opts ...Option) *Counter {
	c := &Counter{
		client:      q,
		concurrency: 1,
		timeout:     queries.DefaultTimeout,
		now:         time.Now,
		logger:      slog.Default(),
		results:     make(map[string]ShapeResult),
		storedSeq:   make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "tally")
	return c
}

// SetLiveCheck installs the test run before a result is stored. Results of
// shapes for which it reports false are discarded.
func (c *Counter) SetLiveCheck(live func(shapeID string) bool) {
	c.mu.Lock()
	c.live = live
	c.mu.Unlock()
}

// Load restores results from the store, if one is configured.
func (c *Counter) Load(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	results, err := c.store.LoadCounts(ctx)
	if err != nil {
		return fmt.Errorf("load counts: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range results {
		c.results[r.ShapeID] = r
	}
	c.logger.Info("results loaded", "count", len(results))
	return nil
}

// CountShape queries every category for one shape, one after the other,
// and replaces the shape's stored result. If any category fails the
// previous result is left untouched.
func (c *Counter) CountShape(ctx context.Context, shape annotation.Shape, categories []string) (ShapeResult, error) {
	cats := osm.ResolveCategories(categories)
	start := time.Now()
	defer func() {
		metrics.ShapeCountDurationMs.Observe(float64(time.Since(start).Milliseconds()))
	}()

	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	res := ShapeResult{
		ShapeID:  shape.ID,
		District: shape.District,
		Counts:   make(map[string]int, len(cats)),
		Elements: make(map[string][]string, len(cats)),
	}
	for _, cat := range cats {
		q, err := shapeQuery(shape, cat, c.timeout)
		if err != nil {
			metrics.ShapesCountedTotal.WithLabelValues("invalid").Inc()
			return ShapeResult{}, err
		}
		resp, err := c.client.Query(ctx, q)
		if err != nil {
			metrics.ShapesCountedTotal.WithLabelValues("failed").Inc()
			c.logger.Warn("category query failed", "shape", shape.ID, "category", cat.Name, "error", err)
			return ShapeResult{}, fmt.Errorf("shape %s category %s: %w", shape.ID, cat.Name, err)
		}
		keys := matchingKeys(shape, resp.Elements)
		res.Counts[cat.Name] = len(keys)
		res.Elements[cat.Name] = keys
	}
	res.FetchedAt = c.now().UTC()

	c.mu.Lock()
	if c.live != nil && !c.live(shape.ID) {
		c.mu.Unlock()
		metrics.ShapesCountedTotal.WithLabelValues("removed").Inc()
		c.logger.Info("shape removed while counting, result dropped", "shape", shape.ID)
		return ShapeResult{}, fmt.Errorf("shape %s: %w", shape.ID, annotation.ErrNotFound)
	}
	if c.storedSeq[shape.ID] > seq {
		current := c.results[shape.ID]
		c.mu.Unlock()
		c.logger.Debug("newer count already stored", "shape", shape.ID)
		return current, nil
	}
	c.storedSeq[shape.ID] = seq
	c.results[shape.ID] = res
	c.mu.Unlock()
	metrics.ShapesCountedTotal.WithLabelValues("ok").Inc()
	c.logger.Info("shape counted", "shape", shape.ID, "district", shape.District, "total", res.Total())

	if c.store != nil {
		if err := c.store.SaveCounts(ctx, res); err != nil {
			c.logger.Warn("failed to persist counts", "shape", shape.ID, "error", err)
		}
	}
	return res, nil
}

// CountAll counts each shape, at most Concurrency at a time. Every shape is
// attempted; the results of the successful ones are returned in input order
// and failures are joined into the error.
func (c *Counter) CountAll(ctx context.Context, shapes []annotation.Shape, categories []string) ([]ShapeResult, error) {
	results := make([]*ShapeResult, len(shapes))
	errs := make([]error, len(shapes))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, sh := range shapes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = fmt.Errorf("shape %s: %w", sh.ID, err)
				return nil
			}
			r, err := c.CountShape(ctx, sh, categories)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = &r
			return nil
		})
	}
	_ = g.Wait()

	out := make([]ShapeResult, 0, len(shapes))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, errors.Join(errs...)
}

// Result returns the latest result of a shape.
func (c *Counter) Result(shapeID string) (ShapeResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.results[shapeID]
	return r, ok
}

// Results returns a copy of the results map.
func (c *Counter) Results() map[string]ShapeResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]ShapeResult, len(c.results))
	for k, v := range c.results {
		out[k] = v
	}
	return out
}

// Forget drops the result of a removed shape.
func (c *Counter) Forget(shapeID string) {
	c.mu.Lock()
	delete(c.results, shapeID)
	delete(c.storedSeq, shapeID)
	c.mu.Unlock()
}

// shapeQuery builds the Overpass query for one category inside a shape.
func shapeQuery(shape annotation.Shape, cat osm.Category, timeout int) (string, error) {
	switch shape.Kind {
	case annotation.KindPolygon:
		if len(shape.Vertices) < 3 {
			return "", fmt.Errorf("%w: polygon %s has %d vertices", annotation.ErrInvalidShape, shape.ID, len(shape.Vertices))
		}
		return queries.POIsInPolygon(shape.Vertices, cat.Tags, timeout), nil
	case annotation.KindMarker:
		if shape.Center == nil {
			return "", fmt.Errorf("%w: marker %s has no center", annotation.ErrInvalidShape, shape.ID)
		}
		return queries.POIsAround(*shape.Center, shape.RadiusMeters, cat.Tags, timeout), nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", annotation.ErrInvalidShape, shape.Kind)
	}
}

// matchingKeys returns the sorted distinct keys of the elements that fall
// inside the shape. Elements without a position are trusted to the server's
// spatial filter.
func matchingKeys(shape annotation.Shape, elements []osm.Element) []string {
	seen := make(map[string]struct{}, len(elements))
	for _, el := range elements {
		if loc, ok := el.Location(); ok && !shape.Contains(loc) {
			continue
		}
		seen[el.Key()] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
