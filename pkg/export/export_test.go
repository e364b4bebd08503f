package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/NERVsystems/osmtally/pkg/annotation"
	"github.com/NERVsystems/osmtally/pkg/geo"
	"github.com/NERVsystems/osmtally/pkg/tally"
)

func sampleReport() Report {
	center := geo.Location{Latitude: 49.2, Longitude: 16.6}
	shapes := []annotation.Shape{
		{ID: "a", Kind: annotation.KindMarker, District: "north", Center: &center, RadiusMeters: 100},
		{ID: "b", Kind: annotation.KindMarker, District: "south", Center: &center, RadiusMeters: 50},
	}
	return Report{
		Categories: []string{"cafe", "bar"},
		Stats: []tally.DistrictStats{
			{District: "north", Shapes: 1, AreaKm2: 0.5, Counts: map[string]int{"cafe": 3, "bar": 1}, Total: 4},
			{District: "south", Shapes: 2, AreaKm2: 1.25, Counts: map[string]int{"cafe": 2, "bar": 0}, Total: 2},
		},
		Shapes: shapes,
		Results: map[string]tally.ShapeResult{
			"a": {ShapeID: "a", Counts: map[string]int{"cafe": 3, "bar": 1}, FetchedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", CSV, false},
		{"CSV", CSV, false},
		{".xlsx", XLSX, false},
		{"Excel", XLSX, false},
		{"json", JSON, false},
		{"GeoJSON", GeoJSON, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v", tt.in, err)
			}
			if tt.wantErr && !errors.Is(err, ErrUnknownFormat) {
				t.Errorf("error %v is not ErrUnknownFormat", err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFileNameAndContentType(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 30, 5, 0, time.UTC)
	if got := FileName(XLSX, now); got != "district-stats-20240501-123005.xlsx" {
		t.Errorf("FileName() = %s", got)
	}
	if got := ContentType(CSV); got != "text/csv; charset=utf-8" {
		t.Errorf("ContentType(csv) = %s", got)
	}
	if got := ContentType(GeoJSON); got != "application/geo+json" {
		t.Errorf("ContentType(geojson) = %s", got)
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, CSV, sampleReport()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Equal(t, [][]string{
		{"district", "shapes", "area_km2", "cafe", "bar", "total"},
		{"north", "1", "0.500", "3", "1", "4"},
		{"south", "2", "1.250", "2", "0", "2"},
		{"TOTAL", "3", "1.750", "5", "1", "6"},
	}, records)
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, CSV, Report{Categories: []string{"cafe"}}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Equal(t, [][]string{
		{"district", "shapes", "area_km2", "cafe", "total"},
		{"TOTAL", "0", "0.000", "0", "0"},
	}, records)
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, XLSX, sampleReport()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(districtSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	require.Equal(t, []string{"district", "shapes", "area_km2", "cafe", "bar", "total"}, rows[0])
	require.Equal(t, "TOTAL", rows[3][0])
	require.Equal(t, []string{"5", "1", "6"}, rows[3][3:])

	shapeRows, err := f.GetRows(shapeSheet)
	require.NoError(t, err)
	require.Len(t, shapeRows, 3)
	require.Equal(t, "a", shapeRows[1][0])
	require.Equal(t, "4", shapeRows[1][7])
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, JSON, Report{}))
	require.JSONEq(t, `[]`, buf.String())

	buf.Reset()
	require.NoError(t, Write(&buf, JSON, sampleReport()))
	var stats []tally.DistrictStats
	require.NoError(t, json.Unmarshal(buf.Bytes(), &stats))
	require.Len(t, stats, 2)
	require.Equal(t, 3, stats[0].Counts["cafe"])
}

func TestWriteGeoJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, GeoJSON, sampleReport()))

	fc, err := geojson.UnmarshalFeatureCollection(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	require.Equal(t, float64(3), fc.Features[0].Properties["count_cafe"])
	require.Equal(t, float64(4), fc.Features[0].Properties["total"])
	_, counted := fc.Features[1].Properties["total"]
	require.False(t, counted, "uncounted shape must not carry counts")
}

func TestWriteUnknown(t *testing.T) {
	err := Write(&bytes.Buffer{}, Format("pdf"), Report{})
	require.ErrorIs(t, err, ErrUnknownFormat)
}
