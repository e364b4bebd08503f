package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

// ErrTooFewVertices is returned when a ring has fewer than three distinct points.
var ErrTooFewVertices = errors.New("polygon needs at least 3 distinct vertices")

// Point converts a location to an orb point (X is longitude, Y is latitude).
func (l Location) Point() orb.Point {
	return orb.Point{l.Longitude, l.Latitude}
}

// LocationFromPoint converts an orb point back to a location.
func LocationFromPoint(p orb.Point) Location {
	return Location{Latitude: p.Lat(), Longitude: p.Lon()}
}

// NewPolygon builds a single-ring polygon from the given vertices.
// The ring is closed if the caller left it open and every vertex is validated.
func NewPolygon(vertices []Location) (orb.Polygon, error) {
	ring := make(orb.Ring, 0, len(vertices)+1)
	distinct := make(map[orb.Point]struct{}, len(vertices))
	for i, v := range vertices {
		if err := ValidateCoords(v.Latitude, v.Longitude); err != nil {
			return nil, fmt.Errorf("vertex %d: %w", i, err)
		}
		p := v.Point()
		distinct[p] = struct{}{}
		ring = append(ring, p)
	}
	if len(distinct) < 3 {
		return nil, ErrTooFewVertices
	}
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return orb.Polygon{ring}, nil
}

// PolygonVertices returns the outer ring of a polygon as locations,
// without the closing vertex.
func PolygonVertices(poly orb.Polygon) []Location {
	if len(poly) == 0 {
		return nil
	}
	ring := poly[0]
	if ring.Closed() && len(ring) > 1 {
		ring = ring[:len(ring)-1]
	}
	out := make([]Location, 0, len(ring))
	for _, p := range ring {
		out = append(out, LocationFromPoint(p))
	}
	return out
}

// PolygonContains reports whether the location falls inside the polygon.
func PolygonContains(poly orb.Polygon, loc Location) bool {
	p := loc.Point()
	if !poly.Bound().Contains(p) {
		return false
	}
	return planar.PolygonContains(poly, p)
}

// PolygonBounds returns the bounding box of a polygon.
func PolygonBounds(poly orb.Polygon) *BoundingBox {
	bb := NewBoundingBox()
	for _, ring := range poly {
		for _, p := range ring {
			bb.ExtendWithPoint(p.Lat(), p.Lon())
		}
	}
	return bb
}

// PolygonAreaKm2 returns the geodesic area of the polygon in square kilometres.
func PolygonAreaKm2(poly orb.Polygon) float64 {
	return math.Abs(orbgeo.Area(poly)) / 1e6
}

// CircleAreaKm2 returns the area of a circle with the given radius in metres.
func CircleAreaKm2(radiusMeters float64) float64 {
	return math.Pi * radiusMeters * radiusMeters / 1e6
}
