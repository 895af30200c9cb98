package geojson

import (
	"encoding/json"
	"testing"
)

func TestLineStringCoordinateOrder(t *testing.T) {
	t.Parallel()

	ele := 600.0
	feature := LineString(42, []Point{
		{Lat: 44.1, Lon: 42.9},
		{Lat: 44.2, Lon: 42.8, Ele: &ele},
	})

	if feature.Geometry.Type != "LineString" {
		t.Fatalf("geometry type = %q, want LineString", feature.Geometry.Type)
	}
	coords := feature.Geometry.Coordinates
	if len(coords) != 2 {
		t.Fatalf("got %d positions, want 2", len(coords))
	}
	// GeoJSON positions are [longitude, latitude, elevation?].
	if coords[0][0] != 42.9 || coords[0][1] != 44.1 {
		t.Errorf("first position = %v, want [42.9 44.1]", coords[0])
	}
	if len(coords[0]) != 2 {
		t.Errorf("position without elevation has %d members, want 2", len(coords[0]))
	}
	if len(coords[1]) != 3 || coords[1][2] != ele {
		t.Errorf("position with elevation = %v, want trailing %v", coords[1], ele)
	}
}

func TestMarshalFeature(t *testing.T) {
	t.Parallel()

	feature := LineString(7, []Point{{Lat: 1, Lon: 2}})
	encoded, err := Marshal(feature)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded struct {
		Type       string `json:"type"`
		Properties struct {
			RouteID int64 `json:"routeId"`
		} `json:"properties"`
		Geometry struct {
			Type        string      `json:"type"`
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	}
	if err := json.Unmarshal([]byte(encoded), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != "Feature" {
		t.Errorf("type = %q, want Feature", decoded.Type)
	}
	if decoded.Properties.RouteID != 7 {
		t.Errorf("routeId = %d, want 7", decoded.Properties.RouteID)
	}
	if decoded.Geometry.Coordinates[0][0] != 2 || decoded.Geometry.Coordinates[0][1] != 1 {
		t.Errorf("coordinates = %v, want [[2 1]]", decoded.Geometry.Coordinates)
	}
}

func TestBoundsOf(t *testing.T) {
	t.Parallel()

	b := BoundsOf([]Point{
		{Lat: 10, Lon: -5},
		{Lat: -3, Lon: 8},
		{Lat: 4, Lon: 2},
	})
	if b.MinLat != -3 || b.MaxLat != 10 || b.MinLon != -5 || b.MaxLon != 8 {
		t.Fatalf("bounds = %+v", b)
	}
}

func TestBoundsOfEmpty(t *testing.T) {
	t.Parallel()

	b := BoundsOf(nil)
	if b != (Bounds{}) {
		t.Fatalf("empty bounds = %+v, want zero value", b)
	}
}
