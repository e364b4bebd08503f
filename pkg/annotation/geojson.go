package annotation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/NERVsystems/osmtally/pkg/geo"
)

// PropertiesFunc adds extra properties to the feature of a shape.
type PropertiesFunc func(Shape) map[string]interface{}

// ToFeatureCollection renders shapes as GeoJSON. Markers become points with a
// radius_m property, polygons become polygons. extra may be nil.
func ToFeatureCollection(shapes []Shape, extra PropertiesFunc) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, sh := range shapes {
		var g orb.Geometry
		switch sh.Kind {
		case KindPolygon:
			g = sh.Polygon()
		case KindMarker:
			if sh.Center == nil {
				continue
			}
			g = sh.Center.Point()
		default:
			continue
		}
		f := geojson.NewFeature(g)
		f.ID = sh.ID
		f.Properties["kind"] = string(sh.Kind)
		f.Properties["district"] = sh.District
		if sh.Label != "" {
			f.Properties["label"] = sh.Label
		}
		if sh.Kind == KindMarker {
			f.Properties["radius_m"] = sh.RadiusMeters
		}
		if extra != nil {
			for k, v := range extra(sh) {
				f.Properties[k] = v
			}
		}
		fc.Append(f)
	}
	return fc
}

// Import adds every feature of a GeoJSON collection as a shape. Points become
// markers (radius from "radius_m" or "radius"), polygons and each member of a
// multipolygon become polygons. String feature ids are kept when unused.
// Every feature is validated first; an invalid one rejects the whole
// collection and nothing is added. A storage failure part way returns the
// shapes added so far.
func (s *Set) Import(ctx context.Context, fc *geojson.FeatureCollection) ([]Shape, error) {
	if fc == nil {
		return nil, errors.New("import: nil feature collection")
	}
	var pending []Shape
	for i, f := range fc.Features {
		shapes, err := s.featureShapes(i, f)
		if err != nil {
			return nil, err
		}
		pending = append(pending, shapes...)
	}

	added := make([]Shape, 0, len(pending))
	for _, sh := range pending {
		saved, err := s.insert(ctx, sh)
		if err != nil {
			return added, err
		}
		added = append(added, saved)
	}
	return added, nil
}

// featureShapes converts feature i into unsaved shapes.
func (s *Set) featureShapes(i int, f *geojson.Feature) ([]Shape, error) {
	if f == nil || f.Geometry == nil {
		return nil, fmt.Errorf("%w: feature %d has no geometry", ErrInvalidShape, i)
	}
	id, _ := f.ID.(string)
	label := stringProp(f.Properties, "label")
	if label == "" {
		label = stringProp(f.Properties, "name")
	}
	district := stringProp(f.Properties, "district")

	switch g := f.Geometry.(type) {
	case orb.Point:
		radius := numberProp(f.Properties, "radius_m")
		if radius == 0 {
			radius = numberProp(f.Properties, "radius")
		}
		sh, err := s.markerShape(id, label, district, geo.LocationFromPoint(g), radius)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		return []Shape{sh}, nil
	case orb.Polygon:
		sh, err := s.polygonShape(id, label, district, ringVertices(g))
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		return []Shape{sh}, nil
	case orb.MultiPolygon:
		out := make([]Shape, 0, len(g))
		for j, p := range g {
			memberID := ""
			if id != "" {
				memberID = fmt.Sprintf("%s-%d", id, j)
			}
			sh, err := s.polygonShape(memberID, label, district, ringVertices(p))
			if err != nil {
				return nil, fmt.Errorf("feature %d polygon %d: %w", i, j, err)
			}
			out = append(out, sh)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: feature %d has unsupported geometry %s", ErrInvalidShape, i, f.Geometry.GeoJSONType())
	}
}

// ringVertices returns the outer ring of p as locations; holes are ignored.
func ringVertices(p orb.Polygon) []geo.Location {
	if len(p) == 0 {
		return nil
	}
	out := make([]geo.Location, 0, len(p[0]))
	for _, pt := range p[0] {
		out = append(out, geo.LocationFromPoint(pt))
	}
	return out
}

func stringProp(props geojson.Properties, key string) string {
	if v, ok := props[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func numberProp(props geojson.Properties, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}
