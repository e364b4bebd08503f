package osm

import (
	"context"
	"fmt"
	"sort"

	"github.com/NERVsystems/osmtally/pkg/geo"
	"github.com/NERVsystems/osmtally/pkg/osm/queries"
)

// Boundary is an administrative area usable as a district.
type Boundary struct {
	ID         int64          `json:"id"`
	Name       string         `json:"name"`
	AdminLevel string         `json:"admin_level"`
	Vertices   []geo.Location `json:"vertices"`
}

// Districts fetches administrative boundaries at adminLevel within bb.
// Each relation's outer ways are stitched into one ring; relations whose
// ring cannot be closed with at least three vertices are skipped.
func (c *Client) Districts(ctx context.Context, bb geo.BoundingBox, adminLevel int) ([]Boundary, error) {
	if err := bb.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if adminLevel < 2 || adminLevel > 11 {
		return nil, fmt.Errorf("%w: admin level %d out of range 2-11", ErrInvalidRequest, adminLevel)
	}

	resp, err := c.Query(ctx, queries.AdminBoundaries(bb, adminLevel, queries.DefaultTimeout))
	if err != nil {
		return nil, err
	}

	var out []Boundary
	for _, el := range resp.Elements {
		if el.Type != "relation" {
			continue
		}
		ring := stitchOuterRing(el.Members)
		if len(ring) < 4 {
			c.logger.Debug("skipping boundary without closed ring", "id", el.ID, "name", el.Name())
			continue
		}
		verts := make([]geo.Location, 0, len(ring)-1)
		for _, p := range ring[:len(ring)-1] {
			verts = append(verts, geo.Location{Latitude: p.Lat, Longitude: p.Lon})
		}
		name := el.Name()
		if name == "" {
			name = el.Key()
		}
		out = append(out, Boundary{
			ID:         el.ID,
			Name:       name,
			AdminLevel: el.Tags["admin_level"],
			Vertices:   verts,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// stitchOuterRing joins outer member ways end to end, reversing segments
// as needed. It returns the closed ring, or nil when the ways do not close.
func stitchOuterRing(members []Member) []LatLon {
	var segments [][]LatLon
	for _, m := range members {
		if m.Role == "outer" && len(m.Geometry) > 1 {
			segments = append(segments, m.Geometry)
		}
	}
	if len(segments) == 0 {
		return nil
	}

	ring := append([]LatLon(nil), segments[0]...)
	used := make([]bool, len(segments))
	used[0] = true
	for ring[0] != ring[len(ring)-1] {
		extended := false
		end := ring[len(ring)-1]
		for i, seg := range segments {
			if used[i] {
				continue
			}
			switch end {
			case seg[0]:
				ring = append(ring, seg[1:]...)
			case seg[len(seg)-1]:
				for j := len(seg) - 2; j >= 0; j-- {
					ring = append(ring, seg[j])
				}
			default:
				continue
			}
			used[i] = true
			extended = true
			break
		}
		if !extended {
			return nil
		}
	}
	return ring
}
