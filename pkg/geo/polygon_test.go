package geo

import (
	"errors"
	"math"
	"testing"
)

// square roughly 1.1 km on a side around central Brno
var brnoSquare = []Location{
	{Latitude: 49.190, Longitude: 16.600},
	{Latitude: 49.190, Longitude: 16.615},
	{Latitude: 49.200, Longitude: 16.615},
	{Latitude: 49.200, Longitude: 16.600},
}

func TestNewPolygon(t *testing.T) {
	tests := []struct {
		name     string
		vertices []Location
		wantErr  bool
		wantLen  int
	}{
		{name: "open ring is closed", vertices: brnoSquare, wantLen: 5},
		{name: "closed ring kept", vertices: append(append([]Location{}, brnoSquare...), brnoSquare[0]), wantLen: 5},
		{name: "two points", vertices: brnoSquare[:2], wantErr: true},
		{
			name: "duplicate vertices",
			vertices: []Location{
				brnoSquare[0], brnoSquare[1], brnoSquare[0], brnoSquare[1],
			},
			wantErr: true,
		},
		{
			name: "invalid latitude",
			vertices: []Location{
				{Latitude: 91, Longitude: 0}, brnoSquare[1], brnoSquare[2],
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			poly, err := NewPolygon(tt.vertices)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewPolygon() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got := len(poly[0]); got != tt.wantLen {
				t.Errorf("ring length = %d, want %d", got, tt.wantLen)
			}
			if !poly[0].Closed() {
				t.Error("ring is not closed")
			}
		})
	}
}

func TestNewPolygonTooFew(t *testing.T) {
	_, err := NewPolygon(brnoSquare[:2])
	if !errors.Is(err, ErrTooFewVertices) {
		t.Errorf("expected ErrTooFewVertices, got %v", err)
	}
}

func TestPolygonContains(t *testing.T) {
	poly, err := NewPolygon(brnoSquare)
	if err != nil {
		t.Fatalf("NewPolygon() error = %v", err)
	}

	tests := []struct {
		name string
		loc  Location
		want bool
	}{
		{"centre", Location{Latitude: 49.195, Longitude: 16.607}, true},
		{"north of box", Location{Latitude: 49.21, Longitude: 16.607}, false},
		{"west of box", Location{Latitude: 49.195, Longitude: 16.59}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PolygonContains(poly, tt.loc); got != tt.want {
				t.Errorf("PolygonContains(%v) = %v, want %v", tt.loc, got, tt.want)
			}
		})
	}
}

func TestPolygonVerticesRoundTrip(t *testing.T) {
	poly, err := NewPolygon(brnoSquare)
	if err != nil {
		t.Fatalf("NewPolygon() error = %v", err)
	}
	got := PolygonVertices(poly)
	if len(got) != len(brnoSquare) {
		t.Fatalf("PolygonVertices() returned %d vertices, want %d", len(got), len(brnoSquare))
	}
	for i := range got {
		if got[i] != brnoSquare[i] {
			t.Errorf("vertex %d = %v, want %v", i, got[i], brnoSquare[i])
		}
	}
}

func TestPolygonAreaKm2(t *testing.T) {
	poly, err := NewPolygon(brnoSquare)
	if err != nil {
		t.Fatalf("NewPolygon() error = %v", err)
	}
	// 0.015 deg lon * 0.01 deg lat at ~49.2N is about 1.09 km * 1.11 km
	area := PolygonAreaKm2(poly)
	if area < 1.1 || area > 1.3 {
		t.Errorf("PolygonAreaKm2() = %f, want about 1.21", area)
	}
}

func TestCircleAreaKm2(t *testing.T) {
	got := CircleAreaKm2(1000)
	if math.Abs(got-math.Pi) > 1e-9 {
		t.Errorf("CircleAreaKm2(1000) = %f, want %f", got, math.Pi)
	}
}

func TestPolygonBounds(t *testing.T) {
	poly, err := NewPolygon(brnoSquare)
	if err != nil {
		t.Fatalf("NewPolygon() error = %v", err)
	}
	bb := PolygonBounds(poly)
	if bb.MinLat != 49.190 || bb.MaxLat != 49.200 || bb.MinLon != 16.600 || bb.MaxLon != 16.615 {
		t.Errorf("PolygonBounds() = %+v", bb)
	}
}
