package osm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/NERVsystems/osmtally/pkg/geo"
)

// Response is the JSON body returned by the Overpass interpreter.
type Response struct {
	Elements []Element `json:"elements"`
	Remark   string    `json:"remark,omitempty"`
}

// LatLon is a bare coordinate pair as Overpass encodes it.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Member is a relation member, with geometry when queried with "out geom".
type Member struct {
	Type     string   `json:"type"`
	Ref      int64    `json:"ref"`
	Role     string   `json:"role"`
	Geometry []LatLon `json:"geometry,omitempty"`
}

// Element is one node, way or relation in an Overpass result.
type Element struct {
	Type    string            `json:"type"`
	ID      int64             `json:"id"`
	Lat     float64           `json:"lat,omitempty"`
	Lon     float64           `json:"lon,omitempty"`
	Center  *LatLon           `json:"center,omitempty"`
	Tags    map[string]string `json:"tags,omitempty"`
	Members []Member          `json:"members,omitempty"`
}

// Key identifies an element across queries, e.g. "node/123".
// Node and way ids overlap, so the type is part of the identity.
func (e Element) Key() string {
	return e.Type + "/" + strconv.FormatInt(e.ID, 10)
}

// Location returns the element's position: its own coordinates for nodes,
// its center for ways and relations. ok is false if neither is present.
func (e Element) Location() (geo.Location, bool) {
	if e.Type == "node" {
		return geo.Location{Latitude: e.Lat, Longitude: e.Lon}, true
	}
	if e.Center != nil {
		return geo.Location{Latitude: e.Center.Lat, Longitude: e.Center.Lon}, true
	}
	return geo.Location{}, false
}

// Name returns the element's name tag, if any.
func (e Element) Name() string {
	return e.Tags["name"]
}

// remarkError turns an interpreter remark about a failed run into an error.
// Overpass reports runtime failures with status 200 and a remark.
func (r *Response) remarkError() error {
	if r.Remark == "" {
		return nil
	}
	lower := strings.ToLower(r.Remark)
	switch {
	case strings.Contains(lower, "timed out"):
		return fmt.Errorf("overpass: %s: %w", r.Remark, ErrTimeout)
	case strings.Contains(lower, "runtime error"), strings.Contains(lower, "out of memory"):
		return fmt.Errorf("overpass: %s", r.Remark)
	default:
		return nil
	}
}
