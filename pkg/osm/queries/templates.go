// Package queries provides utilities for building OpenStreetMap API queries.
package queries

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/NERVsystems/osmtally/pkg/geo"
)

// DefaultTimeout is the server-side Overpass timeout in seconds.
const DefaultTimeout = 60

// Element types accepted by the With* methods. "nwr" matches all three.
const (
	Node     = "node"
	Way      = "way"
	Relation = "relation"
	Any      = "nwr"
)

// OverpassBuilder provides a fluent interface for building Overpass API queries.
// It allows for composing complex queries with proper syntax and formatting.
type OverpassBuilder struct {
	buf        strings.Builder
	hasElement bool
	closed     bool
}

// NewOverpassBuilder creates a new Overpass query builder with initial settings.
// All queries start with [out:json] to request JSON output format.
func NewOverpassBuilder() *OverpassBuilder {
	b := &OverpassBuilder{}
	b.buf.WriteString("[out:json];")
	return b
}

// NewOverpassBuilderWithTimeout is NewOverpassBuilder with a [timeout:N] setting.
func NewOverpassBuilderWithTimeout(seconds int) *OverpassBuilder {
	if seconds <= 0 {
		return NewOverpassBuilder()
	}
	b := &OverpassBuilder{}
	fmt.Fprintf(&b.buf, "[out:json][timeout:%d];", seconds)
	return b
}

// WithPolygon adds one clause per tag key selecting elements inside the polygon.
// Vertices are emitted as "lat lon" pairs; the ring need not be closed.
func (b *OverpassBuilder) WithPolygon(elementType string, vertices []geo.Location, tags map[string][]string) *OverpassBuilder {
	var poly strings.Builder
	for i, v := range vertices {
		if i > 0 {
			poly.WriteByte(' ')
		}
		fmt.Fprintf(&poly, "%f %f", v.Latitude, v.Longitude)
	}
	area := fmt.Sprintf(`(poly:"%s")`, poly.String())
	return b.addClauses(elementType, area, tags)
}

// WithAround adds one clause per tag key selecting elements within radius metres of center.
func (b *OverpassBuilder) WithAround(elementType string, center geo.Location, radius float64, tags map[string][]string) *OverpassBuilder {
	area := fmt.Sprintf("(around:%f,%f,%f)", radius, center.Latitude, center.Longitude)
	return b.addClauses(elementType, area, tags)
}

// WithBbox adds one clause per tag key selecting elements in the bounding box.
func (b *OverpassBuilder) WithBbox(elementType string, bb geo.BoundingBox, tags map[string][]string) *OverpassBuilder {
	return b.addClauses(elementType, bb.String(), tags)
}

// Begin starts a group of queries with parentheses.
// This is required when using multiple element filters.
func (b *OverpassBuilder) Begin() *OverpassBuilder {
	if !b.hasElement {
		b.buf.WriteString("(")
		b.hasElement = true
	}
	return b
}

// End ends a group of queries with parentheses and adds the output statement.
// By default, it uses 'out body;' to include tag information in the results.
func (b *OverpassBuilder) End() *OverpassBuilder {
	return b.WithOutput("body")
}

// WithOutput closes the group with a custom output format.
// Common options include 'body', 'center', 'geom', etc.
func (b *OverpassBuilder) WithOutput(outputType string) *OverpassBuilder {
	if b.hasElement && !b.closed {
		fmt.Fprintf(&b.buf, ");out %s;", outputType)
		b.closed = true
	}
	return b
}

// Build returns the complete Overpass query string.
// This should be called after all query elements have been added
// and End() or WithOutput() has been called.
func (b *OverpassBuilder) Build() string {
	return b.buf.String()
}

// addClauses writes "<type><area><filter>;" for each tag key in sorted order.
// Keys are alternatives: an element matching any key is selected.
func (b *OverpassBuilder) addClauses(elementType, area string, tags map[string][]string) *OverpassBuilder {
	b.Begin()
	if len(tags) == 0 {
		fmt.Fprintf(&b.buf, "%s%s;", elementType, area)
		return b
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b.buf, "%s%s%s;", elementType, area, TagFilter(k, tags[k]))
	}
	return b
}

// TagFilter renders a filter for one key: [key] when values is empty,
// [key=value] for one value and a regex union for several.
func TagFilter(key string, values []string) string {
	switch len(values) {
	case 0:
		return fmt.Sprintf("[%s]", quote(key))
	case 1:
		return fmt.Sprintf("[%s=%s]", quote(key), quote(values[0]))
	default:
		sorted := append([]string(nil), values...)
		sort.Strings(sorted)
		escaped := make([]string, len(sorted))
		for i, v := range sorted {
			escaped[i] = regexp.QuoteMeta(v)
		}
		return fmt.Sprintf("[%s~%s]", quote(key), quote("^("+strings.Join(escaped, "|")+")$"))
	}
}

// quote wraps s in double quotes, escaping backslashes and quotes as Overpass QL expects.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// POIsInPolygon selects every element inside the polygon matching tags,
// with way and relation centers.
func POIsInPolygon(vertices []geo.Location, tags map[string][]string, timeout int) string {
	return NewOverpassBuilderWithTimeout(timeout).
		WithPolygon(Any, vertices, tags).
		WithOutput("center").
		Build()
}

// POIsAround selects every element within radius metres of center matching tags.
func POIsAround(center geo.Location, radius float64, tags map[string][]string, timeout int) string {
	return NewOverpassBuilderWithTimeout(timeout).
		WithAround(Any, center, radius, tags).
		WithOutput("center").
		Build()
}

// AdminBoundaries selects administrative boundary relations at adminLevel
// intersecting bb, with full member geometry.
func AdminBoundaries(bb geo.BoundingBox, adminLevel int, timeout int) string {
	b := NewOverpassBuilderWithTimeout(timeout).Begin()
	fmt.Fprintf(&b.buf, "%s%s%s%s;", Relation,
		TagFilter("boundary", []string{"administrative"}),
		TagFilter("admin_level", []string{fmt.Sprint(adminLevel)}),
		bb.String())
	return b.WithOutput("geom").Build()
}
