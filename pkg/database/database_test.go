package database

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// openTestDB opens a throwaway SQLite database in a temp directory and
// applies the schema.  Each test gets its own file so parallel tests
// never share a writer.
func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(Config{
		DBType: "sqlite",
		DBPath: filepath.Join(t.TempDir(), "test.sqlite"),
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

func f64(v float64) *float64 { return &v }

func TestParkCRUD(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	ctx := context.Background()

	id, err := db.InsertPark(ctx, Park{
		ParkName:    "Shenandoah",
		Location:    "Virginia, USA",
		Description: "Blue Ridge views",
		ImageURL:    "/img/shenandoah.jpg",
		Latitude:    f64(38.53),
		Longitude:   f64(-78.35),
	})
	if err != nil {
		t.Fatalf("insert park: %v", err)
	}

	park, err := db.ParkByID(ctx, id)
	if err != nil {
		t.Fatalf("park by id: %v", err)
	}
	if park == nil {
		t.Fatal("park by id returned nil for a live park")
	}
	if park.ParkName != "Shenandoah" || park.ImageURL != "/img/shenandoah.jpg" {
		t.Errorf("park round trip = %+v", park)
	}
	if park.Latitude == nil || *park.Latitude != 38.53 {
		t.Errorf("park latitude = %v, want 38.53", park.Latitude)
	}

	park.Description = "Skyline Drive and the Blue Ridge"
	ok, err := db.UpdatePark(ctx, *park)
	if err != nil || !ok {
		t.Fatalf("update park: ok=%v err=%v", ok, err)
	}

	ok, err = db.SoftDeletePark(ctx, id)
	if err != nil || !ok {
		t.Fatalf("soft delete park: ok=%v err=%v", ok, err)
	}
	gone, err := db.ParkByID(ctx, id)
	if err != nil {
		t.Fatalf("park by id after delete: %v", err)
	}
	if gone != nil {
		t.Error("soft-deleted park still visible through ParkByID")
	}
	if count, _ := db.CountParks(ctx); count != 0 {
		t.Errorf("CountParks after delete = %d, want 0", count)
	}
}

func TestRouteJoinsPark(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	ctx := context.Background()

	parkID, err := db.InsertPark(ctx, Park{ParkName: "Acadia", Location: "Maine, USA"})
	if err != nil {
		t.Fatalf("insert park: %v", err)
	}
	routeID, err := db.InsertRoute(ctx, Route{
		RouteName:  "Precipice Trail",
		ParkID:     parkID,
		Difficulty: "Strenuous",
		Distance:   f64(2.1),
	})
	if err != nil {
		t.Fatalf("insert route: %v", err)
	}

	routes, err := db.AllRoutes(ctx)
	if err != nil {
		t.Fatalf("all routes: %v", err)
	}
	if len(routes) != 1 {
		t.Fatalf("AllRoutes returned %d routes, want 1", len(routes))
	}
	r := routes[0]
	if r.ID != routeID || r.RouteName != "Precipice Trail" {
		t.Errorf("route = %+v", r)
	}
	if r.Park == nil || r.Park.ParkName != "Acadia" {
		t.Errorf("route park join = %+v, want Acadia", r.Park)
	}
}

// TestReplaceRoutePoints covers the transactional full-replace: a second
// upload must leave exactly the new point set live, with contiguous
// orders, and never mix old and new points.
func TestReplaceRoutePoints(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	ctx := context.Background()

	routeID, err := db.InsertRoute(ctx, Route{RouteName: "Loop"})
	if err != nil {
		t.Fatalf("insert route: %v", err)
	}

	first := []RoutePoint{
		{Latitude: f64(44.1), Longitude: f64(-68.2), PointOrder: 1, Description: "Trailhead"},
		{Latitude: f64(44.2), Longitude: f64(-68.3), PointOrder: 2, Description: "Summit"},
		{Latitude: f64(44.3), Longitude: f64(-68.4), PointOrder: 3, Description: "Point 3"},
	}
	if n, err := db.ReplaceRoutePoints(ctx, routeID, first); err != nil || n != 3 {
		t.Fatalf("first replace: n=%d err=%v", n, err)
	}

	when := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	second := []RoutePoint{
		{Latitude: f64(45.0), Longitude: f64(-69.0), Elevation: f64(120.5), Time: &when, PointOrder: 1, Description: "Start"},
		{Latitude: f64(45.1), Longitude: f64(-69.1), PointOrder: 2, Description: "End"},
	}
	if n, err := db.ReplaceRoutePoints(ctx, routeID, second); err != nil || n != 2 {
		t.Fatalf("second replace: n=%d err=%v", n, err)
	}

	points, err := db.PointsByRoute(ctx, routeID)
	if err != nil {
		t.Fatalf("points by route: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("live points after replace = %d, want 2", len(points))
	}
	for i, p := range points {
		if p.PointOrder != i+1 {
			t.Errorf("point %d order = %d, want %d", i, p.PointOrder, i+1)
		}
	}
	if points[0].Description != "Start" || points[1].Description != "End" {
		t.Errorf("points after replace = %q, %q", points[0].Description, points[1].Description)
	}
	if points[0].Elevation == nil || *points[0].Elevation != 120.5 {
		t.Errorf("elevation = %v, want 120.5", points[0].Elevation)
	}
	if points[0].Time == nil || !points[0].Time.Equal(when) {
		t.Errorf("time = %v, want %v", points[0].Time, when)
	}
	if points[1].Elevation != nil || points[1].Time != nil {
		t.Errorf("optional fields should stay nil, got ele=%v time=%v", points[1].Elevation, points[1].Time)
	}

	// CountPoints only sees live rows, not the soft-deleted first batch.
	if count, _ := db.CountPoints(ctx); count != 2 {
		t.Errorf("CountPoints = %d, want 2", count)
	}
}

// TestReplaceRoutePointsEmpty clears a track: replacing with nothing
// leaves zero live points but the route itself alive.
func TestReplaceRoutePointsEmpty(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	ctx := context.Background()

	routeID, err := db.InsertRoute(ctx, Route{RouteName: "Short"})
	if err != nil {
		t.Fatalf("insert route: %v", err)
	}
	if _, err := db.ReplaceRoutePoints(ctx, routeID, []RoutePoint{
		{Latitude: f64(1), Longitude: f64(2), PointOrder: 1, Description: "only"},
	}); err != nil {
		t.Fatalf("seed points: %v", err)
	}
	if n, err := db.ReplaceRoutePoints(ctx, routeID, nil); err != nil || n != 0 {
		t.Fatalf("empty replace: n=%d err=%v", n, err)
	}
	points, err := db.PointsByRoute(ctx, routeID)
	if err != nil {
		t.Fatalf("points by route: %v", err)
	}
	if len(points) != 0 {
		t.Errorf("live points after empty replace = %d, want 0", len(points))
	}
}

func TestUpdateRouteGeoJSON(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	ctx := context.Background()

	routeID, err := db.InsertRoute(ctx, Route{RouteName: "Ridge"})
	if err != nil {
		t.Fatalf("insert route: %v", err)
	}
	const line = `{"type":"Feature","geometry":{"type":"LineString","coordinates":[[-68.2,44.1],[-68.3,44.2]]}}`
	ok, err := db.UpdateRouteGeoJSON(ctx, routeID, line)
	if err != nil || !ok {
		t.Fatalf("update geojson: ok=%v err=%v", ok, err)
	}
	route, err := db.RouteByID(ctx, routeID)
	if err != nil || route == nil {
		t.Fatalf("route by id: %v", err)
	}
	if route.GeoJSON != line {
		t.Errorf("stored geojson = %q", route.GeoJSON)
	}
}

// TestMissingCoordinateQueries checks the backfill scans: only rows with
// a null latitude or longitude show up, and rows without usable text get
// a positional fallback label.
func TestMissingCoordinateQueries(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	ctx := context.Background()

	located, err := db.InsertPark(ctx, Park{ParkName: "Located", Latitude: f64(1), Longitude: f64(2)})
	if err != nil {
		t.Fatalf("insert park: %v", err)
	}
	byLocation, err := db.InsertPark(ctx, Park{ParkName: "Zion", Location: "Springdale, Utah"})
	if err != nil {
		t.Fatalf("insert park: %v", err)
	}
	nameless, err := db.InsertPark(ctx, Park{})
	if err != nil {
		t.Fatalf("insert park: %v", err)
	}

	missing, err := db.MissingParkCoordinates(ctx)
	if err != nil {
		t.Fatalf("missing park coordinates: %v", err)
	}
	if len(missing) != 2 {
		t.Fatalf("missing parks = %d, want 2", len(missing))
	}
	queries := map[int64]string{}
	for _, m := range missing {
		queries[m.ID] = m.Query
	}
	if _, found := queries[located]; found {
		t.Error("park with coordinates listed as missing")
	}
	if queries[byLocation] != "Springdale, Utah" {
		t.Errorf("query for park with location = %q, want the location text", queries[byLocation])
	}
	if want := fmt.Sprintf("Park %d", nameless); queries[nameless] != want {
		t.Errorf("query for blank park = %q, want %q", queries[nameless], want)
	}

	ok, err := db.UpdateParkCoordinates(ctx, byLocation, 37.19, -112.99)
	if err != nil || !ok {
		t.Fatalf("update park coordinates: ok=%v err=%v", ok, err)
	}
	missing, err = db.MissingParkCoordinates(ctx)
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if len(missing) != 1 || missing[0].ID != nameless {
		t.Errorf("missing parks after update = %+v, want only the blank park", missing)
	}
}

func TestFeedbackClampsScores(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	ctx := context.Background()

	routeID, err := db.InsertRoute(ctx, Route{RouteName: "Gorge"})
	if err != nil {
		t.Fatalf("insert route: %v", err)
	}
	if _, err := db.InsertFeedback(ctx, RouteFeedback{
		RouteID:       routeID,
		Rating:        9,
		Strenuousness: 0,
		Skill:         3,
		Comments:      "steep but worth it",
		UserName:      "ann",
	}); err != nil {
		t.Fatalf("insert feedback: %v", err)
	}

	feedback, err := db.FeedbackByRoute(ctx, routeID)
	if err != nil {
		t.Fatalf("feedback by route: %v", err)
	}
	if len(feedback) != 1 {
		t.Fatalf("feedback rows = %d, want 1", len(feedback))
	}
	fb := feedback[0]
	if fb.Rating != 5 || fb.Strenuousness != 1 || fb.Skill != 3 {
		t.Errorf("scores = %d/%d/%d, want clamped 5/1/3", fb.Rating, fb.Strenuousness, fb.Skill)
	}
	if fb.UserName != "ann" || fb.Comments != "steep but worth it" {
		t.Errorf("feedback round trip = %+v", fb)
	}
}

func TestDashboardStats(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	ctx := context.Background()

	parkID, err := db.InsertPark(ctx, Park{ParkName: "Olympic"})
	if err != nil {
		t.Fatalf("insert park: %v", err)
	}
	routeID, err := db.InsertRoute(ctx, Route{RouteName: "Hoh River", ParkID: parkID})
	if err != nil {
		t.Fatalf("insert route: %v", err)
	}
	if _, err := db.ReplaceRoutePoints(ctx, routeID, []RoutePoint{
		{Latitude: f64(47.8), Longitude: f64(-123.9), PointOrder: 1, Description: "Point 1"},
		{Latitude: f64(47.9), Longitude: f64(-123.8), PointOrder: 2, Description: "Point 2"},
	}); err != nil {
		t.Fatalf("seed points: %v", err)
	}
	if _, err := db.InsertFeedback(ctx, RouteFeedback{RouteID: routeID, Rating: 4, Strenuousness: 2, Skill: 2, UserName: "bo"}); err != nil {
		t.Fatalf("insert feedback: %v", err)
	}
	if _, err := db.InsertFeedback(ctx, RouteFeedback{RouteID: routeID, Rating: 2, Strenuousness: 3, Skill: 1, UserName: "cy"}); err != nil {
		t.Fatalf("insert feedback: %v", err)
	}

	stats, err := db.DashboardStats(ctx)
	if err != nil {
		t.Fatalf("dashboard stats: %v", err)
	}
	if stats.Parks != 1 || stats.Routes != 1 || stats.RoutePoints != 2 || stats.Feedback != 2 {
		t.Errorf("counts = %+v", stats)
	}
	if stats.AverageRating != 3 {
		t.Errorf("average rating = %v, want 3", stats.AverageRating)
	}
	if len(stats.RoutesPerPark) != 1 || stats.RoutesPerPark[0].Routes != 1 {
		t.Errorf("routes per park = %+v", stats.RoutesPerPark)
	}
}
