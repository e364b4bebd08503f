package osm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/NERVsystems/osmtally/pkg/geo"
)

// Place is a geocoding hit used to centre the map.
type Place struct {
	ID          string           `json:"id,omitempty"`
	Name        string           `json:"name"`
	Location    geo.Location     `json:"location"`
	BoundingBox *geo.BoundingBox `json:"bounding_box,omitempty"`
	Type        string           `json:"type,omitempty"`
	Importance  float64          `json:"importance,omitempty"`
}

// Geocode converts a place name or address to its best Nominatim match.
func (c *Client) Geocode(ctx context.Context, query string) (*Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: geocode query must not be empty", ErrInvalidRequest)
	}

	reqURL, err := url.Parse(c.nominatimURL + "/search")
	if err != nil {
		return nil, fmt.Errorf("parse nominatim url: %w", err)
	}
	q := reqURL.Query()
	q.Add("q", query)
	q.Add("format", "json")
	q.Add("limit", "1")
	reqURL.RawQuery = q.Encode()

	req, err := c.newRequest(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, err
	}
	body, err := c.do(ctx, ServiceNominatim, req)
	if err != nil {
		return nil, err
	}

	var results []struct {
		PlaceID     json.Number `json:"place_id"`
		DisplayName string      `json:"display_name"`
		Lat         string      `json:"lat"`
		Lon         string      `json:"lon"`
		BoundingBox []string    `json:"boundingbox"`
		Type        string      `json:"type"`
		Importance  float64     `json:"importance"`
	}
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("decode nominatim response: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("geocode %q: %w", query, ErrNoResults)
	}

	r := results[0]
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("parse latitude %q: %w", r.Lat, err)
	}
	lon, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("parse longitude %q: %w", r.Lon, err)
	}

	place := &Place{
		ID:         r.PlaceID.String(),
		Name:       r.DisplayName,
		Location:   geo.Location{Latitude: lat, Longitude: lon},
		Type:       r.Type,
		Importance: r.Importance,
	}
	// Nominatim orders the box as south, north, west, east
	if len(r.BoundingBox) == 4 {
		vals := make([]float64, 4)
		ok := true
		for i, s := range r.BoundingBox {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				ok = false
				break
			}
			vals[i] = v
		}
		if ok {
			place.BoundingBox = &geo.BoundingBox{MinLat: vals[0], MaxLat: vals[1], MinLon: vals[2], MaxLon: vals[3]}
		}
	}
	return place, nil
}
