// Package annotation holds the polygons and markers a user draws on the map
// and the district each of them is assigned to.
package annotation

import (
	"errors"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/NERVsystems/osmtally/pkg/geo"
)

// Kind distinguishes drawn polygons from dropped markers.
type Kind string

const (
	KindPolygon Kind = "polygon"
	KindMarker  Kind = "marker"
)

const (
	// Unassigned is the district of shapes that were not given one.
	Unassigned = "unassigned"

	// DefaultMarkerRadius is used when a marker is dropped without a radius, in metres.
	DefaultMarkerRadius = 50.0

	// MaxMarkerRadius bounds marker search circles, in metres.
	MaxMarkerRadius = 5000.0
)

var (
	ErrNotFound     = errors.New("shape not found")
	ErrInvalidShape = errors.New("invalid shape")
)

// Shape is a polygon or a marker with a search radius.
// Vertices hold the polygon's outer ring without the closing vertex.
type Shape struct {
	ID           string         `json:"id"`
	Kind         Kind           `json:"kind"`
	Label        string         `json:"label,omitempty"`
	District     string         `json:"district"`
	Vertices     []geo.Location `json:"vertices,omitempty"`
	Center       *geo.Location  `json:"center,omitempty"`
	RadiusMeters float64        `json:"radius_m,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Polygon returns the closed orb polygon of a polygon shape, nil for markers.
func (s Shape) Polygon() orb.Polygon {
	if s.Kind != KindPolygon || len(s.Vertices) == 0 {
		return nil
	}
	ring := make(orb.Ring, 0, len(s.Vertices)+1)
	for _, v := range s.Vertices {
		ring = append(ring, v.Point())
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}

// Contains reports whether loc lies inside the polygon or within the marker radius.
func (s Shape) Contains(loc geo.Location) bool {
	switch s.Kind {
	case KindPolygon:
		return geo.PolygonContains(s.Polygon(), loc)
	case KindMarker:
		if s.Center == nil || !s.Bounds().Contains(loc) {
			return false
		}
		return geo.HaversineDistance(s.Center.Latitude, s.Center.Longitude, loc.Latitude, loc.Longitude) <= s.RadiusMeters
	default:
		return false
	}
}

// Bounds returns the box around a polygon, or around a marker's circle.
// It is nil for a shape without geometry.
func (s Shape) Bounds() *geo.BoundingBox {
	switch {
	case s.Kind == KindPolygon && len(s.Vertices) > 0:
		return geo.PolygonBounds(s.Polygon())
	case s.Kind == KindMarker && s.Center != nil:
		bb := geo.NewBoundingBox()
		bb.ExtendWithPoint(s.Center.Latitude, s.Center.Longitude)
		bb.Buffer(s.RadiusMeters)
		return bb
	default:
		return nil
	}
}

// AreaKm2 is the polygon area, or the circle area of a marker.
func (s Shape) AreaKm2() float64 {
	switch s.Kind {
	case KindPolygon:
		return geo.PolygonAreaKm2(s.Polygon())
	case KindMarker:
		return geo.CircleAreaKm2(s.RadiusMeters)
	default:
		return 0
	}
}

// NormalizeDistrict trims a district name and maps blanks to Unassigned.
func NormalizeDistrict(district string) string {
	district = strings.TrimSpace(district)
	if district == "" {
		return Unassigned
	}
	return district
}
