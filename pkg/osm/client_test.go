package osm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/NERVsystems/osmtally/pkg/cache"
	"github.com/NERVsystems/osmtally/pkg/geo"
	"github.com/NERVsystems/osmtally/pkg/testutil"
)

const twoCafes = `{"elements":[
	{"type":"node","id":1,"lat":49.195,"lon":16.607,"tags":{"amenity":"cafe","name":"Alpha"}},
	{"type":"way","id":1,"center":{"lat":49.196,"lon":16.608},"tags":{"amenity":"cafe"}}
]}`

func newTestClient(t *testing.T, overpassURL, nominatimURL string, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithLogger(testutil.DiscardLogger())}, opts...)
	return NewClient(Config{
		OverpassURL:  overpassURL,
		NominatimURL: nominatimURL,
		UserAgent:    "osmtally-test",
		OverpassRPS:  -1,
		NominatimRPS: -1,
		Timeout:      5 * time.Second,
	}, opts...)
}

func TestQuery(t *testing.T) {
	fake := testutil.NewFakeOverpass(func(string) (int, string) { return http.StatusOK, twoCafes })
	defer fake.Close()

	c := newTestClient(t, fake.URL, "")
	resp, err := c.Query(context.Background(), `[out:json];node["amenity"="cafe"];out;`)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(resp.Elements) != 2 {
		t.Fatalf("got %d elements, want 2", len(resp.Elements))
	}
	if got := fake.Queries()[0]; got != `[out:json];node["amenity"="cafe"];out;` {
		t.Errorf("server received query %q", got)
	}

	keys := []string{resp.Elements[0].Key(), resp.Elements[1].Key()}
	if keys[0] != "node/1" || keys[1] != "way/1" {
		t.Errorf("element keys = %v", keys)
	}
	loc, ok := resp.Elements[1].Location()
	if !ok || loc.Latitude != 49.196 {
		t.Errorf("way center location = %v, %v", loc, ok)
	}
}

func TestQueryUsesCache(t *testing.T) {
	fake := testutil.NewFakeOverpass(func(string) (int, string) { return http.StatusOK, twoCafes })
	defer fake.Close()

	c := newTestClient(t, fake.URL, "", WithCache(cache.NewMemory(10, time.Minute)))
	for i := 0; i < 3; i++ {
		if _, err := c.Query(context.Background(), "q"); err != nil {
			t.Fatalf("Query() error = %v", err)
		}
	}
	if n := fake.QueryCount(); n != 1 {
		t.Errorf("upstream saw %d queries, want 1", n)
	}
}

func TestQueryErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantIs  error
		wantErr bool
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: "slow down", wantIs: ErrRateLimited, wantErr: true},
		{name: "gateway timeout", status: http.StatusGatewayTimeout, body: "", wantIs: ErrTimeout, wantErr: true},
		{name: "bad request", status: http.StatusBadRequest, body: "parse error", wantErr: true},
		{name: "remark timeout", status: http.StatusOK, body: `{"elements":[],"remark":"runtime error: Query timed out in \"query\""}`, wantIs: ErrTimeout, wantErr: true},
		{name: "bad json", status: http.StatusOK, body: `{"elements":`, wantErr: true},
		{name: "harmless remark", status: http.StatusOK, body: `{"elements":[],"remark":"note"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testutil.NewFakeOverpass(func(string) (int, string) { return tt.status, tt.body })
			defer fake.Close()

			c := newTestClient(t, fake.URL, "", WithCache(cache.NewMemory(10, time.Minute)))
			_, err := c.Query(context.Background(), "q")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Query() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("Query() error = %v, want errors.Is %v", err, tt.wantIs)
			}
			if tt.wantErr {
				// failures are never cached
				_, _ = c.Query(context.Background(), "q")
				if fake.QueryCount() != 2 {
					t.Errorf("failed response was cached")
				}
			}
		})
	}
}

func TestStatusErrorMessage(t *testing.T) {
	err := &StatusError{Service: ServiceOverpass, StatusCode: 400, Message: "bad"}
	if !strings.Contains(err.Error(), "400") || !strings.Contains(err.Error(), "bad") {
		t.Errorf("Error() = %q", err.Error())
	}
	var se *StatusError
	if !errors.As(error(err), &se) {
		t.Error("errors.As failed")
	}
}

func TestUserAgentSent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{"elements":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "")
	if _, err := c.Query(context.Background(), "q"); err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if got != "osmtally-test" || c.UserAgent() != "osmtally-test" {
		t.Errorf("User-Agent = %q", got)
	}
}

func TestGeocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			http.NotFound(w, r)
			return
		}
		switch r.URL.Query().Get("q") {
		case "Brno":
			_, _ = w.Write([]byte(`[{"place_id":12345,"display_name":"Brno, Czechia","lat":"49.1922443","lon":"16.6113382",
				"boundingbox":["49.1097","49.2945","16.4280","16.7278"],"type":"city","importance":0.8}]`))
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	}))
	defer srv.Close()

	c := newTestClient(t, "", srv.URL)
	place, err := c.Geocode(context.Background(), "Brno")
	if err != nil {
		t.Fatalf("Geocode() error = %v", err)
	}
	if place.ID != "12345" || place.Location.Latitude != 49.1922443 {
		t.Errorf("unexpected place %+v", place)
	}
	if place.BoundingBox == nil || place.BoundingBox.MinLon != 16.4280 || place.BoundingBox.MaxLat != 49.2945 {
		t.Errorf("unexpected bounding box %+v", place.BoundingBox)
	}

	if _, err := c.Geocode(context.Background(), "Nowhere123"); !errors.Is(err, ErrNoResults) {
		t.Errorf("Geocode(unknown) error = %v, want ErrNoResults", err)
	}
	if _, err := c.Geocode(context.Background(), "  "); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Geocode(blank) error = %v, want ErrInvalidRequest", err)
	}
}

func TestDistricts(t *testing.T) {
	// two outer ways forming a triangle, the second stored reversed
	body := `{"elements":[
		{"type":"relation","id":7,"tags":{"name":"Brno-střed","admin_level":"9"},"members":[
			{"type":"way","ref":1,"role":"outer","geometry":[{"lat":49.19,"lon":16.60},{"lat":49.19,"lon":16.62}]},
			{"type":"way","ref":2,"role":"outer","geometry":[{"lat":49.19,"lon":16.60},{"lat":49.21,"lon":16.61},{"lat":49.19,"lon":16.62}]}
		]},
		{"type":"relation","id":8,"tags":{"name":"Open"},"members":[
			{"type":"way","ref":3,"role":"outer","geometry":[{"lat":49.1,"lon":16.6},{"lat":49.2,"lon":16.7}]}
		]}
	]}`
	fake := testutil.NewFakeOverpass(func(string) (int, string) { return http.StatusOK, body })
	defer fake.Close()

	c := newTestClient(t, fake.URL, "")
	bb := geo.BoundingBox{MinLat: 49.1, MinLon: 16.5, MaxLat: 49.3, MaxLon: 16.8}
	got, err := c.Districts(context.Background(), bb, 9)
	if err != nil {
		t.Fatalf("Districts() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d districts, want 1: %+v", len(got), got)
	}
	if got[0].Name != "Brno-střed" || len(got[0].Vertices) != 3 {
		t.Errorf("unexpected district %+v", got[0])
	}
	q := fake.Queries()[0]
	if !strings.Contains(q, `["admin_level"="9"]`) || !strings.Contains(q, "out geom;") {
		t.Errorf("unexpected boundary query %q", q)
	}

	if _, err := c.Districts(context.Background(), bb, 42); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Districts(level 42) error = %v, want ErrInvalidRequest", err)
	}
}

func TestResolveCategories(t *testing.T) {
	cats := ResolveCategories([]string{"Cafes", "cafe", "", "atm", "ice_rink"})
	names := CategoryNames(cats)
	want := []string{"cafe", "bank", "ice_rink"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
	if v := cats[2].Tags["amenity"]; len(v) != 1 || v[0] != "ice_rink" {
		t.Errorf("unknown category fallback tags = %v", cats[2].Tags)
	}

	if got := len(ResolveCategories(nil)); got != len(CategoryMap) {
		t.Errorf("ResolveCategories(nil) returned %d categories, want %d", got, len(CategoryMap))
	}
}
