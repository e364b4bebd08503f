// Package workspace ties the drawn shapes, their counts and the OSM lookups
// together behind the operations shared by the HTTP API and the MCP tools.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/paulmach/orb/geojson"

	"github.com/NERVsystems/osmtally/pkg/annotation"
	"github.com/NERVsystems/osmtally/pkg/export"
	"github.com/NERVsystems/osmtally/pkg/geo"
	"github.com/NERVsystems/osmtally/pkg/osm"
	"github.com/NERVsystems/osmtally/pkg/tally"
)

// Locator finds places and administrative districts. *osm.Client satisfies it.
type Locator interface {
	Geocode(ctx context.Context, query string) (*osm.Place, error)
	Districts(ctx context.Context, bb geo.BoundingBox, adminLevel int) ([]osm.Boundary, error)
}

// Workspace is one user's map: shapes, their results and the services used
// to fill them.
type Workspace struct {
	Shapes   *annotation.Set
	Counter  *tally.Counter
	locator  Locator
	defaults []string
	logger   *slog.Logger
}

// New creates a workspace. defaults are the categories used when a request
// names none; nil means every built-in category.
func New(shapes *annotation.Set, counter *tally.Counter, locator Locator, defaults []string, logger *slog.Logger) *Workspace {
	if logger == nil {
		logger = slog.Default()
	}
	counter.SetLiveCheck(shapes.Has)
	return &Workspace{
		Shapes:   shapes,
		Counter:  counter,
		locator:  locator,
		defaults: osm.CategoryNames(osm.ResolveCategories(defaults)),
		logger:   logger.With("component", "workspace"),
	}
}

// Categories resolves requested category names, falling back to the
// workspace defaults.
func (w *Workspace) Categories(requested []string) []osm.Category {
	if len(requested) == 0 {
		return osm.ResolveCategories(w.defaults)
	}
	return osm.ResolveCategories(requested)
}

// RemoveShape deletes a shape and its result.
func (w *Workspace) RemoveShape(ctx context.Context, id string) error {
	if err := w.Shapes.Remove(ctx, id); err != nil {
		return err
	}
	w.Counter.Forget(id)
	return nil
}

// ClearShapes deletes every shape and every result.
func (w *Workspace) ClearShapes(ctx context.Context) ([]string, error) {
	removed, err := w.Shapes.Clear(ctx)
	for _, id := range removed {
		w.Counter.Forget(id)
	}
	return removed, err
}

// CountShape counts the POIs of one shape.
func (w *Workspace) CountShape(ctx context.Context, id string, categories []string) (tally.ShapeResult, error) {
	sh, err := w.Shapes.Get(id)
	if err != nil {
		return tally.ShapeResult{}, err
	}
	return w.Counter.CountShape(ctx, sh, osm.CategoryNames(w.Categories(categories)))
}

// CountAll counts the given shapes, or every shape when ids is empty.
// Unknown ids fail the call before anything is counted.
func (w *Workspace) CountAll(ctx context.Context, ids []string, categories []string) ([]tally.ShapeResult, error) {
	var shapes []annotation.Shape
	if len(ids) == 0 {
		shapes = w.Shapes.List()
	} else {
		var errs []error
		for _, id := range ids {
			sh, err := w.Shapes.Get(id)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			shapes = append(shapes, sh)
		}
		if err := errors.Join(errs...); err != nil {
			return nil, err
		}
	}
	return w.Counter.CountAll(ctx, shapes, osm.CategoryNames(w.Categories(categories)))
}

// statCategories picks the columns of stats and exports: the requested
// categories, else those already counted, else the defaults.
func (w *Workspace) statCategories(requested []string, results map[string]tally.ShapeResult) []string {
	if len(requested) > 0 {
		return osm.CategoryNames(osm.ResolveCategories(requested))
	}
	if len(results) > 0 {
		return tally.CategoriesOf(results)
	}
	return w.defaults
}

// Stats aggregates the current results per district.
func (w *Workspace) Stats(categories []string) []tally.DistrictStats {
	results := w.Counter.Results()
	return tally.Aggregate(w.Shapes.List(), results, w.statCategories(categories, results))
}

// Report gathers everything an export needs.
func (w *Workspace) Report(categories []string) export.Report {
	shapes := w.Shapes.List()
	results := w.Counter.Results()
	cats := w.statCategories(categories, results)
	return export.Report{
		Stats:      tally.Aggregate(shapes, results, cats),
		Categories: cats,
		Shapes:     shapes,
		Results:    results,
	}
}

// Export writes the district statistics in format f.
func (w *Workspace) Export(out io.Writer, f export.Format, categories []string) error {
	return export.Write(out, f, w.Report(categories))
}

// FeatureCollection renders every shape as GeoJSON, with counts on the
// shapes that have a result. The collection's bbox covers every shape so a
// map can fit its view.
func (w *Workspace) FeatureCollection() *geojson.FeatureCollection {
	shapes := w.Shapes.List()
	results := w.Counter.Results()
	fc := annotation.ToFeatureCollection(shapes, func(sh annotation.Shape) map[string]interface{} {
		if r, ok := results[sh.ID]; ok {
			return r.Properties()
		}
		return nil
	})

	bounds := geo.NewBoundingBox()
	for _, sh := range shapes {
		if b := sh.Bounds(); b != nil {
			bounds.ExtendWithPoint(b.MinLat, b.MinLon)
			bounds.ExtendWithPoint(b.MaxLat, b.MaxLon)
		}
	}
	if !bounds.Empty() {
		fc.BBox = geojson.BBox{bounds.MinLon, bounds.MinLat, bounds.MaxLon, bounds.MaxLat}
	}
	return fc
}

// Geocode looks up a place to centre the map on.
func (w *Workspace) Geocode(ctx context.Context, query string) (*osm.Place, error) {
	return w.locator.Geocode(ctx, query)
}

// Boundaries lists administrative districts inside bb.
func (w *Workspace) Boundaries(ctx context.Context, bb geo.BoundingBox, adminLevel int) ([]osm.Boundary, error) {
	return w.locator.Districts(ctx, bb, adminLevel)
}

// ImportBoundaries adds each administrative district inside bb as a polygon
// assigned to a district of the same name. Boundaries that do not make a
// valid polygon are skipped.
func (w *Workspace) ImportBoundaries(ctx context.Context, bb geo.BoundingBox, adminLevel int) ([]annotation.Shape, error) {
	boundaries, err := w.locator.Districts(ctx, bb, adminLevel)
	if err != nil {
		return nil, err
	}
	added := make([]annotation.Shape, 0, len(boundaries))
	for _, b := range boundaries {
		sh, err := w.Shapes.AddPolygon(ctx, b.Name, b.Name, b.Vertices)
		if errors.Is(err, annotation.ErrInvalidShape) {
			w.logger.Warn("skipping boundary", "id", b.ID, "name", b.Name, "error", err)
			continue
		}
		if err != nil {
			return added, fmt.Errorf("import boundary %s: %w", b.Name, err)
		}
		added = append(added, sh)
	}
	w.logger.Info("boundaries imported", "count", len(added), "admin_level", adminLevel)
	return added, nil
}
