// Package store persists shapes and their counts in PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/lib/pq"

	"github.com/NERVsystems/osmtally/pkg/annotation"
	"github.com/NERVsystems/osmtally/pkg/geo"
	"github.com/NERVsystems/osmtally/pkg/tally"
)

// Store implements annotation.Persister and tally.ResultStore.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open connects to PostgreSQL and checks the connection.
func Open(ctx context.Context, dsn string, maxOpen, maxIdle int, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return AttachDB(db, logger), nil
}

// AttachDB wraps an existing connection pool.
func AttachDB(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger.With("component", "store")}
}

// Close closes the connection pool.
func (s *Store) Close() error { return s.db.Close() }

var schema = []string{
	`CREATE TABLE IF NOT EXISTS shapes (
		id          TEXT PRIMARY KEY,
		kind        TEXT NOT NULL,
		label       TEXT NOT NULL DEFAULT '',
		district    TEXT NOT NULL,
		vertices    JSONB,
		center_lat  DOUBLE PRECISION,
		center_lon  DOUBLE PRECISION,
		radius_m    DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS shape_counts (
		shape_id    TEXT NOT NULL REFERENCES shapes(id) ON DELETE CASCADE,
		category    TEXT NOT NULL,
		district    TEXT NOT NULL,
		count       INTEGER NOT NULL,
		elements    TEXT[] NOT NULL DEFAULT '{}',
		fetched_at  TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (shape_id, category)
	)`,
	`CREATE INDEX IF NOT EXISTS shapes_district_idx ON shapes (district)`,
}

// EnsureSchema creates the tables if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	s.logger.Debug("schema ready")
	return nil
}

const upsertShape = `INSERT INTO shapes (id, kind, label, district, vertices, center_lat, center_lon, radius_m, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET label = EXCLUDED.label, district = EXCLUDED.district`

// SaveShape inserts a shape or updates its label and district.
// Geometry is immutable once stored.
func (s *Store) SaveShape(ctx context.Context, sh annotation.Shape) error {
	var vertices interface{}
	if len(sh.Vertices) > 0 {
		b, err := json.Marshal(sh.Vertices)
		if err != nil {
			return fmt.Errorf("encode vertices: %w", err)
		}
		vertices = string(b)
	}
	var lat, lon sql.NullFloat64
	if sh.Center != nil {
		lat = sql.NullFloat64{Float64: sh.Center.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: sh.Center.Longitude, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, upsertShape,
		sh.ID, string(sh.Kind), sh.Label, sh.District, vertices, lat, lon, sh.RadiusMeters, sh.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert shape %s: %w", sh.ID, err)
	}
	return nil
}

// DeleteShape removes a shape; its counts go with it.
func (s *Store) DeleteShape(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM shapes WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete shape %s: %w", id, err)
	}
	return nil
}

// LoadShapes returns every stored shape ordered by creation time.
func (s *Store) LoadShapes(ctx context.Context) ([]annotation.Shape, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, kind, label, district, vertices, center_lat, center_lon, radius_m, created_at
FROM shapes ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query shapes: %w", err)
	}
	defer rows.Close()

	var out []annotation.Shape
	for rows.Next() {
		var (
			sh       annotation.Shape
			kind     string
			vertices []byte
			lat, lon sql.NullFloat64
		)
		if err := rows.Scan(&sh.ID, &kind, &sh.Label, &sh.District, &vertices, &lat, &lon, &sh.RadiusMeters, &sh.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan shape: %w", err)
		}
		sh.Kind = annotation.Kind(kind)
		if len(vertices) > 0 {
			if err := json.Unmarshal(vertices, &sh.Vertices); err != nil {
				return nil, fmt.Errorf("decode vertices of %s: %w", sh.ID, err)
			}
		}
		if lat.Valid && lon.Valid {
			sh.Center = &geo.Location{Latitude: lat.Float64, Longitude: lon.Float64}
		}
		out = append(out, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shapes: %w", err)
	}
	return out, nil
}

const insertCount = `INSERT INTO shape_counts (shape_id, category, district, count, elements, fetched_at)
VALUES ($1, $2, $3, $4, $5, $6)`

// SaveCounts replaces the stored counts of a shape in one transaction.
func (s *Store) SaveCounts(ctx context.Context, r tally.ShapeResult) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM shape_counts WHERE shape_id = $1`, r.ShapeID); err != nil {
		return fmt.Errorf("clear counts of %s: %w", r.ShapeID, err)
	}
	categories := make([]string, 0, len(r.Counts))
	for c := range r.Counts {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	for _, c := range categories {
		elements := r.Elements[c]
		if elements == nil {
			elements = []string{}
		}
		if _, err = tx.ExecContext(ctx, insertCount, r.ShapeID, c, r.District, r.Counts[c], pq.Array(elements), r.FetchedAt); err != nil {
			return fmt.Errorf("insert count %s/%s: %w", r.ShapeID, c, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LoadCounts returns the stored result of every counted shape.
func (s *Store) LoadCounts(ctx context.Context) ([]tally.ShapeResult, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT shape_id, category, district, count, elements, fetched_at
FROM shape_counts ORDER BY shape_id, category`)
	if err != nil {
		return nil, fmt.Errorf("query counts: %w", err)
	}
	defer rows.Close()

	var out []tally.ShapeResult
	for rows.Next() {
		var (
			shapeID, category, district string
			count                       int
			elements                    []string
			fetched                     sql.NullTime
		)
		if err := rows.Scan(&shapeID, &category, &district, &count, pq.Array(&elements), &fetched); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		if len(out) == 0 || out[len(out)-1].ShapeID != shapeID {
			out = append(out, tally.ShapeResult{
				ShapeID:   shapeID,
				District:  district,
				Counts:    map[string]int{},
				Elements:  map[string][]string{},
				FetchedAt: fetched.Time,
			})
		}
		last := &out[len(out)-1]
		last.Counts[category] = count
		last.Elements[category] = elements
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return out, nil
}
