// Package export renders per-district statistics as downloadable files.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/NERVsystems/osmtally/pkg/annotation"
	"github.com/NERVsystems/osmtally/pkg/metrics"
	"github.com/NERVsystems/osmtally/pkg/tally"
)

// Format is an export file format.
type Format string

const (
	CSV     Format = "csv"
	XLSX    Format = "xlsx"
	JSON    Format = "json"
	GeoJSON Format = "geojson"
)

// TotalLabel names the last row of tabular exports.
const TotalLabel = "TOTAL"

var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat accepts a format name or file extension in any case.
// An empty string means CSV.
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".") {
	case "", "csv":
		return CSV, nil
	case "xlsx", "excel":
		return XLSX, nil
	case "json":
		return JSON, nil
	case "geojson", "geo+json":
		return GeoJSON, nil
	default:
		return "", fmt.Errorf("%w: %q (want csv, xlsx, json or geojson)", ErrUnknownFormat, s)
	}
}

// ContentType returns the MIME type served with a download.
func ContentType(f Format) string {
	switch f {
	case XLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case JSON:
		return "application/json"
	case GeoJSON:
		return "application/geo+json"
	default:
		return "text/csv; charset=utf-8"
	}
}

// FileName returns a timestamped download name such as
// district-stats-20240501-120000.csv.
func FileName(f Format, now time.Time) string {
	return fmt.Sprintf("district-stats-%s.%s", now.UTC().Format("20060102-150405"), f)
}

// Report is everything an export can draw on. Shapes and Results are only
// needed by geojson and by the shapes sheet of xlsx.
type Report struct {
	Stats      []tally.DistrictStats
	Categories []string
	Shapes     []annotation.Shape
	Results    map[string]tally.ShapeResult
}

// Write renders the report in format f.
func Write(w io.Writer, f Format, r Report) error {
	var err error
	switch f {
	case CSV:
		err = writeCSV(w, r)
	case XLSX:
		err = writeXLSX(w, r)
	case JSON:
		err = writeJSON(w, r)
	case GeoJSON:
		err = writeGeoJSON(w, r)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
	if err != nil {
		return fmt.Errorf("export %s: %w", f, err)
	}
	metrics.ExportsTotal.WithLabelValues(string(f)).Inc()
	return nil
}

// Header returns the column names of the district table.
func Header(categories []string) []string {
	h := make([]string, 0, len(categories)+4)
	h = append(h, "district", "shapes", "area_km2")
	h = append(h, categories...)
	return append(h, "total")
}

// row is one line of the district table with typed cells.
type row struct {
	name   string
	shapes int
	area   float64
	counts []int
	total  int
}

// table lays out one row per district plus the TOTAL row, which sums each
// column over the districts.
func table(r Report) []row {
	rows := make([]row, 0, len(r.Stats)+1)
	sum := row{name: TotalLabel, counts: make([]int, len(r.Categories))}
	for _, s := range r.Stats {
		rw := row{name: s.District, shapes: s.Shapes, area: s.AreaKm2, counts: make([]int, len(r.Categories))}
		for i, c := range r.Categories {
			rw.counts[i] = s.Counts[c]
			rw.total += s.Counts[c]
			sum.counts[i] += s.Counts[c]
		}
		sum.shapes += rw.shapes
		sum.area += rw.area
		sum.total += rw.total
		rows = append(rows, rw)
	}
	return append(rows, sum)
}

func writeCSV(w io.Writer, r Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(r.Categories)); err != nil {
		return err
	}
	for _, rw := range table(r) {
		rec := make([]string, 0, len(rw.counts)+4)
		rec = append(rec, rw.name, strconv.Itoa(rw.shapes), strconv.FormatFloat(rw.area, 'f', 3, 64))
		for _, c := range rw.counts {
			rec = append(rec, strconv.Itoa(c))
		}
		rec = append(rec, strconv.Itoa(rw.total))
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSON(w io.Writer, r Report) error {
	stats := r.Stats
	if stats == nil {
		stats = []tally.DistrictStats{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}

func writeGeoJSON(w io.Writer, r Report) error {
	fc := annotation.ToFeatureCollection(r.Shapes, func(sh annotation.Shape) map[string]interface{} {
		res, ok := r.Results[sh.ID]
		if !ok {
			return nil
		}
		return res.Properties()
	})
	data, err := fc.MarshalJSON()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

const (
	districtSheet = "Districts"
	shapeSheet    = "Shapes"
)

func writeXLSX(w io.Writer, r Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", districtSheet); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	if err := setRow(f, districtSheet, 1, toCells(Header(r.Categories))); err != nil {
		return err
	}
	rows := table(r)
	for i, rw := range rows {
		cells := []interface{}{rw.name, rw.shapes, rw.area}
		for _, c := range rw.counts {
			cells = append(cells, c)
		}
		cells = append(cells, rw.total)
		if err := setRow(f, districtSheet, i+2, cells); err != nil {
			return err
		}
	}
	if err := f.SetRowStyle(districtSheet, 1, 1, bold); err != nil {
		return err
	}
	if err := f.SetRowStyle(districtSheet, len(rows)+1, len(rows)+1, bold); err != nil {
		return err
	}

	if len(r.Shapes) > 0 {
		if err := writeShapeSheet(f, r, bold); err != nil {
			return err
		}
	}
	return f.Write(w)
}

// writeShapeSheet lists every shape with its own counts.
func writeShapeSheet(f *excelize.File, r Report, style int) error {
	if _, err := f.NewSheet(shapeSheet); err != nil {
		return err
	}
	header := []string{"shape_id", "kind", "label", "district", "area_km2"}
	header = append(header, r.Categories...)
	header = append(header, "total", "fetched_at")
	if err := setRow(f, shapeSheet, 1, toCells(header)); err != nil {
		return err
	}
	for i, sh := range r.Shapes {
		cells := []interface{}{sh.ID, string(sh.Kind), sh.Label, sh.District, sh.AreaKm2()}
		res, counted := r.Results[sh.ID]
		total := 0
		for _, c := range r.Categories {
			n := res.Counts[c]
			total += n
			cells = append(cells, n)
		}
		fetched := ""
		if counted {
			fetched = res.FetchedAt.Format(time.RFC3339)
		}
		cells = append(cells, total, fetched)
		if err := setRow(f, shapeSheet, i+2, cells); err != nil {
			return err
		}
	}
	return f.SetRowStyle(shapeSheet, 1, 1, style)
}

func setRow(f *excelize.File, sheet string, rowNum int, cells []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &cells)
}

func toCells(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
