package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hiking-trail-map/pkg/database"
	"hiking-trail-map/pkg/gpx"

	_ "modernc.org/sqlite"
)

func f64(v float64) *float64 { return &v }

// TestNormalizeDropsNullIsland: (0,0) points are GPS placeholders and
// never make it into a track; survivors keep a contiguous order.
func TestNormalizeDropsNullIsland(t *testing.T) {
	t.Parallel()
	raw := []gpx.RawPoint{
		{Lat: 44.1, Lon: -68.2, Name: "Trailhead"},
		{Lat: 0, Lon: 0},
		{Lat: 44.2, Lon: -68.3},
		{Lat: 0, Lon: 0},
		{Lat: 44.3, Lon: -68.4, Name: "  Summit  "},
	}
	points, err := Normalize(raw, 7)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("normalized points = %d, want 3", len(points))
	}
	for i, p := range points {
		if p.RouteID != 7 {
			t.Errorf("point %d routeID = %d, want 7", i, p.RouteID)
		}
		if p.PointOrder != i+1 {
			t.Errorf("point %d order = %d, want %d", i, p.PointOrder, i+1)
		}
	}
	if points[0].Description != "Trailhead" {
		t.Errorf("point 1 description = %q, want the file's label", points[0].Description)
	}
	if points[1].Description != "Point 2" {
		t.Errorf("point 2 description = %q, want generated label", points[1].Description)
	}
	if points[2].Description != "Summit" {
		t.Errorf("point 3 description = %q, want trimmed label", points[2].Description)
	}
}

func TestNormalizeKeepsOptionalFields(t *testing.T) {
	t.Parallel()
	when := time.Date(2025, 5, 4, 8, 0, 0, 0, time.UTC)
	points, err := Normalize([]gpx.RawPoint{
		{Lat: 1, Lon: 2, Ele: f64(340.2), Time: &when},
	}, 1)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	p := points[0]
	if p.Elevation == nil || *p.Elevation != 340.2 {
		t.Errorf("elevation = %v, want 340.2", p.Elevation)
	}
	if p.Time == nil || !p.Time.Equal(when) {
		t.Errorf("time = %v, want %v", p.Time, when)
	}
}

// TestNormalizeEmptyTrack: a track whose every point is (0,0) normalizes
// to nothing and reports ErrEmptyTrack so the handler can answer 422.
func TestNormalizeEmptyTrack(t *testing.T) {
	t.Parallel()
	if _, err := Normalize([]gpx.RawPoint{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 0}}, 1); !errors.Is(err, ErrEmptyTrack) {
		t.Fatalf("Normalize all-placeholder = %v, want ErrEmptyTrack", err)
	}
	if _, err := Normalize(nil, 1); !errors.Is(err, ErrEmptyTrack) {
		t.Fatalf("Normalize(nil) = %v, want ErrEmptyTrack", err)
	}
}

func openTestDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.NewDatabase(database.Config{
		DBType: "sqlite",
		DBPath: filepath.Join(t.TempDir(), "ingest.sqlite"),
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.DB.Close() })
	if err := db.InitSchema(); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return db
}

const sampleGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test">
 <trk><name>Ridge Walk</name><trkseg>
  <trkpt lat="44.10" lon="-68.20"><ele>120.5</ele><name>Trailhead</name></trkpt>
  <trkpt lat="0" lon="0"></trkpt>
  <trkpt lat="44.20" lon="-68.30"></trkpt>
 </trkseg></trk>
</gpx>`

// TestIngestGPX runs the whole pipeline against a real SQLite file and
// checks the stored points and the cached GeoJSON line agree.
func TestIngestGPX(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	ctx := context.Background()

	routeID, err := db.InsertRoute(ctx, database.Route{RouteName: "Ridge Walk"})
	if err != nil {
		t.Fatalf("insert route: %v", err)
	}

	in := &Ingestor{DB: db, Logf: t.Logf}
	summary, err := in.IngestGPX(ctx, routeID, strings.NewReader(sampleGPX))
	if err != nil {
		t.Fatalf("IngestGPX: %v", err)
	}
	if summary.PointsAdded != 2 {
		t.Errorf("pointsAdded = %d, want 2 (placeholder dropped)", summary.PointsAdded)
	}
	if summary.Bounds.MinLat != 44.10 || summary.Bounds.MaxLat != 44.20 {
		t.Errorf("bounds = %+v", summary.Bounds)
	}

	points, err := db.PointsByRoute(ctx, routeID)
	if err != nil {
		t.Fatalf("points by route: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("stored points = %d, want 2", len(points))
	}
	if points[0].Description != "Trailhead" || points[1].Description != "Point 2" {
		t.Errorf("descriptions = %q, %q", points[0].Description, points[1].Description)
	}
	if points[0].Elevation == nil || *points[0].Elevation != 120.5 {
		t.Errorf("elevation = %v, want 120.5", points[0].Elevation)
	}

	route, err := db.RouteByID(ctx, routeID)
	if err != nil || route == nil {
		t.Fatalf("route by id: %v", err)
	}
	if route.GeoJSON != summary.GeoJSON {
		t.Error("stored GeoJSON differs from the summary's")
	}
	var feature struct {
		Geometry struct {
			Type        string      `json:"type"`
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	}
	if err := json.Unmarshal([]byte(route.GeoJSON), &feature); err != nil {
		t.Fatalf("decode stored geojson: %v", err)
	}
	if feature.Geometry.Type != "LineString" || len(feature.Geometry.Coordinates) != 2 {
		t.Errorf("geometry = %s with %d positions", feature.Geometry.Type, len(feature.Geometry.Coordinates))
	}
	// GeoJSON positions are [lon, lat].
	if feature.Geometry.Coordinates[0][0] != -68.20 || feature.Geometry.Coordinates[0][1] != 44.10 {
		t.Errorf("first position = %v", feature.Geometry.Coordinates[0])
	}
}

// TestIngestGPXErrors maps the two failure classes apart: unparseable
// input surfaces the parser's error, a parseable file with no usable
// points surfaces ErrEmptyTrack.
func TestIngestGPXErrors(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	ctx := context.Background()

	routeID, err := db.InsertRoute(ctx, database.Route{RouteName: "Empty"})
	if err != nil {
		t.Fatalf("insert route: %v", err)
	}
	in := &Ingestor{DB: db}

	if _, err := in.IngestGPX(ctx, routeID, strings.NewReader("<gpx></gpx>")); !errors.Is(err, gpx.ErrNoPoints) {
		t.Errorf("pointless document = %v, want ErrNoPoints", err)
	}

	onlyPlaceholders := `<gpx><trk><trkseg><trkpt lat="0" lon="0"></trkpt></trkseg></trk></gpx>`
	if _, err := in.IngestGPX(ctx, routeID, strings.NewReader(onlyPlaceholders)); !errors.Is(err, ErrEmptyTrack) {
		t.Errorf("placeholder-only track = %v, want ErrEmptyTrack", err)
	}

	// A failed upload must not disturb previously stored points.
	if _, err := in.IngestGPX(ctx, routeID, strings.NewReader(sampleGPX)); err != nil {
		t.Fatalf("seed upload: %v", err)
	}
	if _, err := in.IngestGPX(ctx, routeID, strings.NewReader(onlyPlaceholders)); err == nil {
		t.Fatal("expected error for placeholder-only track")
	}
	points, err := db.PointsByRoute(ctx, routeID)
	if err != nil {
		t.Fatalf("points by route: %v", err)
	}
	if len(points) != 2 {
		t.Errorf("points after failed upload = %d, want the previous 2", len(points))
	}
}
