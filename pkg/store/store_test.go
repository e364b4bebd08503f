package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/NERVsystems/osmtally/pkg/annotation"
	"github.com/NERVsystems/osmtally/pkg/geo"
	"github.com/NERVsystems/osmtally/pkg/tally"
	"github.com/NERVsystems/osmtally/pkg/testutil"
)

var created = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() {
		mock.ExpectClose()
		if err := db.Close(); err != nil {
			t.Errorf("failed to close db: %s", err)
		}
	})
	return AttachDB(db, testutil.DiscardLogger()), mock
}

func TestEnsureSchema(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS shapes`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS shape_counts`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS shapes_district_idx`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveShape(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	poly := annotation.Shape{
		ID: "p1", Kind: annotation.KindPolygon, Label: "block", District: "north",
		Vertices:  []geo.Location{{Latitude: 1, Longitude: 2}, {Latitude: 3, Longitude: 4}, {Latitude: 5, Longitude: 6}},
		CreatedAt: created,
	}
	mock.ExpectExec(`INSERT INTO shapes .* ON CONFLICT \(id\) DO UPDATE`).
		WithArgs("p1", "polygon", "block", "north",
			`[{"latitude":1,"longitude":2},{"latitude":3,"longitude":4},{"latitude":5,"longitude":6}]`,
			nil, nil, 0.0, created).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, s.SaveShape(ctx, poly))

	center := geo.Location{Latitude: 49.2, Longitude: 16.6}
	marker := annotation.Shape{ID: "m1", Kind: annotation.KindMarker, District: "south", Center: &center, RadiusMeters: 75, CreatedAt: created}
	mock.ExpectExec(`INSERT INTO shapes`).
		WithArgs("m1", "marker", "", "south", nil, 49.2, 16.6, 75.0, created).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, s.SaveShape(ctx, marker))

	mock.ExpectExec(`INSERT INTO shapes`).WillReturnError(errors.New("connection reset"))
	require.Error(t, s.SaveShape(ctx, marker))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteShape(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`DELETE FROM shapes WHERE id = \$1`).WithArgs("p1").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.DeleteShape(context.Background(), "p1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadShapes(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"id", "kind", "label", "district", "vertices", "center_lat", "center_lon", "radius_m", "created_at"}).
		AddRow("p1", "polygon", "block", "north", `[{"latitude":1,"longitude":2},{"latitude":3,"longitude":4},{"latitude":5,"longitude":6}]`, nil, nil, 0.0, created).
		AddRow("m1", "marker", "", "south", nil, 49.2, 16.6, 75.0, created)
	mock.ExpectQuery(`SELECT id, kind, label, district, vertices, center_lat, center_lon, radius_m, created_at FROM shapes`).WillReturnRows(rows)

	shapes, err := s.LoadShapes(context.Background())
	require.NoError(t, err)
	require.Len(t, shapes, 2)

	require.Equal(t, annotation.KindPolygon, shapes[0].Kind)
	require.Len(t, shapes[0].Vertices, 3)
	require.Nil(t, shapes[0].Center)

	require.Equal(t, annotation.KindMarker, shapes[1].Kind)
	require.NotNil(t, shapes[1].Center)
	require.Equal(t, 16.6, shapes[1].Center.Longitude)
	require.Equal(t, 75.0, shapes[1].RadiusMeters)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveCounts(t *testing.T) {
	s, mock := newMockStore(t)
	res := tally.ShapeResult{
		ShapeID:   "p1",
		District:  "north",
		Counts:    map[string]int{"cafe": 2, "bar": 0},
		Elements:  map[string][]string{"cafe": {"node/1", "way/1"}},
		FetchedAt: created,
	}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM shape_counts WHERE shape_id = \$1`).WithArgs("p1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO shape_counts`).
		WithArgs("p1", "bar", "north", 0, pq.Array([]string{}), created).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO shape_counts`).
		WithArgs("p1", "cafe", "north", 2, pq.Array([]string{"node/1", "way/1"}), created).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, s.SaveCounts(context.Background(), res))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveCountsRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	res := tally.ShapeResult{ShapeID: "p1", Counts: map[string]int{"cafe": 1}, FetchedAt: created}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM shape_counts`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO shape_counts`).WillReturnError(errors.New("foreign key violation"))
	mock.ExpectRollback()

	err := s.SaveCounts(context.Background(), res)
	require.Error(t, err)
	require.Contains(t, err.Error(), "insert count p1/cafe")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadCounts(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"shape_id", "category", "district", "count", "elements", "fetched_at"}).
		AddRow("a", "bar", "north", 0, "{}", created).
		AddRow("a", "cafe", "north", 2, "{node/1,way/1}", created).
		AddRow("b", "cafe", "south", 1, "{node/7}", created)
	mock.ExpectQuery(`SELECT shape_id, category, district, count, elements, fetched_at FROM shape_counts`).WillReturnRows(rows)

	results, err := s.LoadCounts(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, map[string]int{"bar": 0, "cafe": 2}, results[0].Counts)
	require.Equal(t, []string{"node/1", "way/1"}, results[0].Elements["cafe"])
	require.Equal(t, "south", results[1].District)
	require.Equal(t, created, results[1].FetchedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}
