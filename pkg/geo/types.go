// Package geo provides common geographic types and calculations.
// It centralizes location-based data structures and algorithms to ensure
// consistency across the codebase.
package geo

import (
	"errors"
	"fmt"
	"math"
)

// EarthRadius is the mean radius of Earth according to WGS-84 in meters
const EarthRadius = 6371000.0

// Location represents a geographic coordinate (latitude and longitude)
// with standardized JSON field names.
//
// Example:
//
//	loc := geo.Location{Latitude: 49.2125578, Longitude: 16.62662018}
//	dist := geo.HaversineDistance(loc.Latitude, loc.Longitude, 49.1951, 16.6068)
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// BoundingBox represents a geographic bounding box with southwest and northeast corners
type BoundingBox struct {
	MinLat float64 `json:"min_lat"` // Southern edge (minimum latitude)
	MinLon float64 `json:"min_lon"` // Western edge (minimum longitude)
	MaxLat float64 `json:"max_lat"` // Northern edge (maximum latitude)
	MaxLon float64 `json:"max_lon"` // Eastern edge (maximum longitude)
}

// NewBoundingBox creates a new empty bounding box
func NewBoundingBox() *BoundingBox {
	return &BoundingBox{
		MinLat: 90.0, // Start with inverted min/max so any point extends correctly
		MinLon: 180.0,
		MaxLat: -90.0,
		MaxLon: -180.0,
	}
}

// ExtendWithPoint extends the bounding box to include the specified point
func (bb *BoundingBox) ExtendWithPoint(lat, lon float64) {
	if lat < bb.MinLat {
		bb.MinLat = lat
	}
	if lat > bb.MaxLat {
		bb.MaxLat = lat
	}
	if lon < bb.MinLon {
		bb.MinLon = lon
	}
	if lon > bb.MaxLon {
		bb.MaxLon = lon
	}
}

// Buffer adds a buffer around the bounding box in meters.
// Latitude uses 111 km per degree; longitude is widened by the cosine of
// the box's middle latitude.
func (bb *BoundingBox) Buffer(bufferMeters float64) {
	latDegrees := bufferMeters / 111000
	cos := math.Cos((bb.MinLat + bb.MaxLat) / 2 * math.Pi / 180)
	if cos < 0.01 {
		cos = 0.01
	}
	lonDegrees := latDegrees / cos
	bb.MinLat -= latDegrees
	bb.MaxLat += latDegrees
	bb.MinLon -= lonDegrees
	bb.MaxLon += lonDegrees

	// Ensure coordinates are within valid ranges
	if bb.MinLat < -90 {
		bb.MinLat = -90
	}
	if bb.MaxLat > 90 {
		bb.MaxLat = 90
	}
	if bb.MinLon < -180 {
		bb.MinLon = -180
	}
	if bb.MaxLon > 180 {
		bb.MaxLon = 180
	}
}

// Empty reports whether no point has been added to the bounding box.
func (bb *BoundingBox) Empty() bool {
	return bb.MinLat > bb.MaxLat || bb.MinLon > bb.MaxLon
}

// Contains reports whether the location lies inside the bounding box, edges included.
func (bb *BoundingBox) Contains(loc Location) bool {
	return loc.Latitude >= bb.MinLat && loc.Latitude <= bb.MaxLat &&
		loc.Longitude >= bb.MinLon && loc.Longitude <= bb.MaxLon
}

// Validate checks that the box is non-empty and lies within coordinate ranges.
func (bb *BoundingBox) Validate() error {
	if err := ValidateCoords(bb.MinLat, bb.MinLon); err != nil {
		return err
	}
	if err := ValidateCoords(bb.MaxLat, bb.MaxLon); err != nil {
		return err
	}
	if bb.Empty() {
		return errors.New("bounding box is empty: minimum exceeds maximum")
	}
	return nil
}

// String returns a string representation of the bounding box for use in Overpass queries
func (bb *BoundingBox) String() string {
	return fmt.Sprintf("(%f,%f,%f,%f)", bb.MinLat, bb.MinLon, bb.MaxLat, bb.MaxLon)
}

// HaversineDistance calculates the great-circle distance between two points
// on the Earth's surface given their latitude and longitude in degrees.
// The result is returned in meters.
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	// Convert degrees to radians
	lat1Rad := lat1 * math.Pi / 180.0
	lon1Rad := lon1 * math.Pi / 180.0
	lat2Rad := lat2 * math.Pi / 180.0
	lon2Rad := lon2 * math.Pi / 180.0

	// Haversine formula
	dlat := lat2Rad - lat1Rad
	dlon := lon2Rad - lon1Rad
	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Asin(math.Sqrt(a))

	// Calculate distance in meters
	return EarthRadius * c
}

// ValidateCoords validates latitude and longitude values.
// Returns an error if the coordinates are invalid.
func ValidateCoords(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return errors.New("coordinates must be numbers")
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("invalid latitude: %f (must be between -90 and 90)", lat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("invalid longitude: %f (must be between -180 and 180)", lon)
	}
	return nil
}
