package workspace

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NERVsystems/osmtally/pkg/annotation"
	"github.com/NERVsystems/osmtally/pkg/export"
	"github.com/NERVsystems/osmtally/pkg/geo"
	"github.com/NERVsystems/osmtally/pkg/osm"
	"github.com/NERVsystems/osmtally/pkg/tally"
	"github.com/NERVsystems/osmtally/pkg/testutil"
)

var square = []geo.Location{
	{Latitude: 49.190, Longitude: 16.600},
	{Latitude: 49.190, Longitude: 16.615},
	{Latitude: 49.200, Longitude: 16.615},
	{Latitude: 49.200, Longitude: 16.600},
}

type stubQuerier struct{ elements []osm.Element }

func (s stubQuerier) Query(context.Context, string) (*osm.Response, error) {
	return &osm.Response{Elements: s.elements}, nil
}

type stubLocator struct {
	boundaries []osm.Boundary
	err        error
}

func (s stubLocator) Geocode(_ context.Context, q string) (*osm.Place, error) {
	return &osm.Place{Name: q}, s.err
}

func (s stubLocator) Districts(context.Context, geo.BoundingBox, int) ([]osm.Boundary, error) {
	return s.boundaries, s.err
}

func newTestWorkspace(loc Locator, defaults []string) *Workspace {
	log := testutil.DiscardLogger()
	q := stubQuerier{elements: []osm.Element{{Type: "node", ID: 1, Lat: 49.195, Lon: 16.607}}}
	return New(
		annotation.NewSet(annotation.WithLogger(log)),
		tally.NewCounter(q, tally.WithLogger(log)),
		loc, defaults, log,
	)
}

func TestRemoveShapeForgetsResult(t *testing.T) {
	ctx := context.Background()
	w := newTestWorkspace(stubLocator{}, []string{"cafe"})
	sh, err := w.Shapes.AddPolygon(ctx, "", "north", square)
	require.NoError(t, err)

	res, err := w.CountShape(ctx, sh.ID, nil)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"cafe": 1}, res.Counts)

	require.NoError(t, w.RemoveShape(ctx, sh.ID))
	_, ok := w.Counter.Result(sh.ID)
	require.False(t, ok)
	require.ErrorIs(t, w.RemoveShape(ctx, sh.ID), annotation.ErrNotFound)
}

// blockingQuerier holds every query until release is closed.
type blockingQuerier struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingQuerier) Query(context.Context, string) (*osm.Response, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return &osm.Response{Elements: []osm.Element{{Type: "node", ID: 1, Lat: 49.195, Lon: 16.607}}}, nil
}

func TestRemoveShapeWhileCounting(t *testing.T) {
	ctx := context.Background()
	log := testutil.DiscardLogger()
	q := &blockingQuerier{entered: make(chan struct{}), release: make(chan struct{})}
	w := New(
		annotation.NewSet(annotation.WithLogger(log)),
		tally.NewCounter(q, tally.WithLogger(log)),
		stubLocator{}, []string{"cafe"}, log,
	)
	sh, err := w.Shapes.AddPolygon(ctx, "", "north", square)
	require.NoError(t, err)

	var countErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, countErr = w.CountShape(ctx, sh.ID, nil)
	}()
	<-q.entered

	require.NoError(t, w.RemoveShape(ctx, sh.ID))
	close(q.release)
	<-done

	require.ErrorIs(t, countErr, annotation.ErrNotFound)
	_, ok := w.Counter.Result(sh.ID)
	require.False(t, ok, "result of a removed shape must not come back")
	require.Empty(t, w.Counter.Results())
}

func TestCountAllUnknownID(t *testing.T) {
	ctx := context.Background()
	w := newTestWorkspace(stubLocator{}, []string{"cafe"})
	sh, _ := w.Shapes.AddPolygon(ctx, "", "", square)

	_, err := w.CountAll(ctx, []string{sh.ID, "missing"}, nil)
	require.ErrorIs(t, err, annotation.ErrNotFound)
	require.Empty(t, w.Counter.Results(), "nothing may be counted when an id is unknown")

	results, err := w.CountAll(ctx, nil, []string{"bar"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Contains(t, results[0].Counts, "bar")
}

func TestStatsCategories(t *testing.T) {
	ctx := context.Background()
	w := newTestWorkspace(stubLocator{}, []string{"park", "cafe"})
	sh, _ := w.Shapes.AddPolygon(ctx, "", "north", square)

	// nothing counted: defaults
	stats := w.Stats(nil)
	require.Len(t, stats, 1)
	require.Len(t, stats[0].Counts, 2)

	_, err := w.CountShape(ctx, sh.ID, []string{"bar"})
	require.NoError(t, err)

	// counted: the categories of the results
	stats = w.Stats(nil)
	require.Equal(t, map[string]int{"bar": 1}, stats[0].Counts)

	// requested wins
	stats = w.Stats([]string{"pubs", "cafe"})
	require.Equal(t, map[string]int{"bar": 1, "cafe": 0}, stats[0].Counts)
}

func TestExportEmptyWorkspace(t *testing.T) {
	w := newTestWorkspace(stubLocator{}, []string{"cafe"})
	var buf bytes.Buffer
	require.NoError(t, w.Export(&buf, export.CSV, nil))
	require.Equal(t, "district,shapes,area_km2,cafe,total\nTOTAL,0,0.000,0,0\n", buf.String())
}

func TestFeatureCollection(t *testing.T) {
	ctx := context.Background()
	w := newTestWorkspace(stubLocator{}, []string{"cafe"})
	a, _ := w.Shapes.AddPolygon(ctx, "", "", square)
	_, _ = w.Shapes.AddMarker(ctx, "", "", geo.Location{Latitude: 49.2, Longitude: 16.6}, 0)
	_, err := w.CountShape(ctx, a.ID, nil)
	require.NoError(t, err)

	fc := w.FeatureCollection()
	require.Len(t, fc.Features, 2)
	require.Len(t, fc.BBox, 4)
	require.InDelta(t, 16.600, fc.BBox[0], 0.001)
	require.InDelta(t, 49.190, fc.BBox[1], 0.001)
	require.Greater(t, fc.BBox[3], 49.200, "marker radius widens the box")
	require.Equal(t, 1, fc.Features[0].Properties["count_cafe"])
	require.NotContains(t, fc.Features[1].Properties, "total")
}

func TestFeatureCollectionEmpty(t *testing.T) {
	w := newTestWorkspace(stubLocator{}, nil)
	fc := w.FeatureCollection()
	require.Empty(t, fc.Features)
	require.Nil(t, fc.BBox)
}

func TestImportBoundaries(t *testing.T) {
	ctx := context.Background()
	loc := stubLocator{boundaries: []osm.Boundary{
		{ID: 1, Name: "Brno-střed", Vertices: square},
		{ID: 2, Name: "Broken", Vertices: square[:2]},
	}}
	w := newTestWorkspace(loc, nil)

	added, err := w.ImportBoundaries(ctx, geo.BoundingBox{MinLat: 49, MinLon: 16, MaxLat: 50, MaxLon: 17}, 9)
	require.NoError(t, err)
	require.Len(t, added, 1)
	require.Equal(t, "Brno-střed", added[0].District)
	require.Equal(t, "Brno-střed", added[0].Label)
	require.Equal(t, 1, w.Shapes.Len())

	failing := newTestWorkspace(stubLocator{err: errors.New("overpass down")}, nil)
	_, err = failing.ImportBoundaries(ctx, geo.BoundingBox{}, 9)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "overpass down"))
}
