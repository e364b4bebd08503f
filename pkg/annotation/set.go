package annotation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NERVsystems/osmtally/pkg/geo"
)

// Persister stores shapes outside the process. Set writes through to it
// before changing its own state.
type Persister interface {
	SaveShape(ctx context.Context, s Shape) error
	DeleteShape(ctx context.Context, id string) error
	LoadShapes(ctx context.Context) ([]Shape, error)
}

// Set is the concurrency-safe collection of shapes on the map.
type Set struct {
	mu        sync.RWMutex
	shapes    map[string]Shape
	persister Persister
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Set.
type Option func(*Set)

// WithPersister writes every mutation through p.
func WithPersister(p Persister) Option {
	return func(s *Set) { s.persister = p }
}

// WithLogger sets the logger of the set.
func WithLogger(l *slog.Logger) Option {
	return func(s *Set) { s.logger = l }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Set) { s.now = now }
}

// NewSet creates an empty shape set.
func NewSet(opts ...Option) *Set {
	s := &Set{
		shapes: make(map[string]Shape),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "annotations")
	return s
}

// Load replaces the in-memory shapes with those held by the persister.
func (s *Set) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	shapes, err := s.persister.LoadShapes(ctx)
	if err != nil {
		return fmt.Errorf("load shapes: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shapes = make(map[string]Shape, len(shapes))
	for _, sh := range shapes {
		s.shapes[sh.ID] = sh
	}
	s.logger.Info("shapes loaded", "count", len(shapes))
	return nil
}

// AddPolygon validates and stores a drawn polygon.
func (s *Set) AddPolygon(ctx context.Context, label, district string, vertices []geo.Location) (Shape, error) {
	return s.add(ctx, "", label, district, vertices)
}

// AddMarker stores a dropped marker. A non-positive radius takes DefaultMarkerRadius.
func (s *Set) AddMarker(ctx context.Context, label, district string, center geo.Location, radius float64) (Shape, error) {
	return s.addMarker(ctx, "", label, district, center, radius)
}

func (s *Set) add(ctx context.Context, id, label, district string, vertices []geo.Location) (Shape, error) {
	sh, err := s.polygonShape(id, label, district, vertices)
	if err != nil {
		return Shape{}, err
	}
	return s.insert(ctx, sh)
}

func (s *Set) addMarker(ctx context.Context, id, label, district string, center geo.Location, radius float64) (Shape, error) {
	sh, err := s.markerShape(id, label, district, center, radius)
	if err != nil {
		return Shape{}, err
	}
	return s.insert(ctx, sh)
}

// polygonShape validates vertices and builds an unsaved polygon shape.
func (s *Set) polygonShape(id, label, district string, vertices []geo.Location) (Shape, error) {
	poly, err := geo.NewPolygon(vertices)
	if err != nil {
		return Shape{}, fmt.Errorf("%w: %v", ErrInvalidShape, err)
	}
	return Shape{
		ID:        id,
		Kind:      KindPolygon,
		Label:     strings.TrimSpace(label),
		District:  NormalizeDistrict(district),
		Vertices:  geo.PolygonVertices(poly),
		CreatedAt: s.now().UTC(),
	}, nil
}

// markerShape validates a marker and builds an unsaved marker shape.
func (s *Set) markerShape(id, label, district string, center geo.Location, radius float64) (Shape, error) {
	if err := geo.ValidateCoords(center.Latitude, center.Longitude); err != nil {
		return Shape{}, fmt.Errorf("%w: %v", ErrInvalidShape, err)
	}
	if radius <= 0 {
		radius = DefaultMarkerRadius
	}
	if radius > MaxMarkerRadius {
		return Shape{}, fmt.Errorf("%w: radius %.0f m exceeds maximum of %.0f m", ErrInvalidShape, radius, MaxMarkerRadius)
	}
	c := center
	return Shape{
		ID:           id,
		Kind:         KindMarker,
		Label:        strings.TrimSpace(label),
		District:     NormalizeDistrict(district),
		Center:       &c,
		RadiusMeters: radius,
		CreatedAt:    s.now().UTC(),
	}, nil
}

func (s *Set) insert(ctx context.Context, sh Shape) (Shape, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sh.ID == "" {
		sh.ID = uuid.NewString()
	} else if _, exists := s.shapes[sh.ID]; exists {
		sh.ID = uuid.NewString()
	}
	if s.persister != nil {
		if err := s.persister.SaveShape(ctx, sh); err != nil {
			return Shape{}, fmt.Errorf("save shape: %w", err)
		}
	}
	s.shapes[sh.ID] = sh
	s.logger.Debug("shape added", "id", sh.ID, "kind", sh.Kind, "district", sh.District)
	return sh, nil
}

// Get returns the shape with the given id.
func (s *Set) Get(id string) (Shape, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.shapes[id]
	if !ok {
		return Shape{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sh, nil
}

// Has reports whether a shape with the given id exists.
func (s *Set) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.shapes[id]
	return ok
}

// List returns all shapes ordered by creation time.
func (s *Set) List() []Shape {
	s.mu.RLock()
	out := make([]Shape, 0, len(s.shapes))
	for _, sh := range s.shapes {
		out = append(out, sh)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of shapes.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.shapes)
}

// Remove deletes a shape.
func (s *Set) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.shapes[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if s.persister != nil {
		if err := s.persister.DeleteShape(ctx, id); err != nil {
			return fmt.Errorf("delete shape: %w", err)
		}
	}
	delete(s.shapes, id)
	return nil
}

// Clear removes every shape and returns the removed ids.
func (s *Set) Clear(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := make([]string, 0, len(s.shapes))
	for id := range s.shapes {
		if s.persister != nil {
			if err := s.persister.DeleteShape(ctx, id); err != nil {
				return removed, fmt.Errorf("delete shape %s: %w", id, err)
			}
		}
		delete(s.shapes, id)
		removed = append(removed, id)
	}
	return removed, nil
}

// Update changes the label and/or district of a shape. Nil leaves a field unchanged.
func (s *Set) Update(ctx context.Context, id string, label, district *string) (Shape, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shapes[id]
	if !ok {
		return Shape{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if label != nil {
		sh.Label = strings.TrimSpace(*label)
	}
	if district != nil {
		sh.District = NormalizeDistrict(*district)
	}
	if s.persister != nil {
		if err := s.persister.SaveShape(ctx, sh); err != nil {
			return Shape{}, fmt.Errorf("save shape: %w", err)
		}
	}
	s.shapes[id] = sh
	return sh, nil
}

// Assign moves a shape into a district.
func (s *Set) Assign(ctx context.Context, id, district string) (Shape, error) {
	return s.Update(ctx, id, nil, &district)
}

// Districts returns the distinct district names in sorted order.
func (s *Set) Districts() []string {
	s.mu.RLock()
	seen := make(map[string]struct{})
	for _, sh := range s.shapes {
		seen[sh.District] = struct{}{}
	}
	s.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
