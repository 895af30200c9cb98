package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"hiking-trail-map/pkg/database"
	"hiking-trail-map/pkg/geocode"

	_ "modernc.org/sqlite"
)

// newTestServer spins up the full API over a throwaway SQLite file.
// No cache, no limiter: those have their own tests.
func newTestServer(t *testing.T, geocoder geocode.Geocoder) (*httptest.Server, *database.Database) {
	t.Helper()
	db, err := database.NewDatabase(database.Config{
		DBType: "sqlite",
		DBPath: filepath.Join(t.TempDir(), "api.sqlite"),
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.DB.Close() })
	if err := db.InitSchema(); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	h := NewHandler(db, geocoder, "", t.Logf)
	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, db
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeResp(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestParkLifecycleOverHTTP(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/api/parks", map[string]any{
		"parkName": "Glacier",
		"location": "Montana, USA",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create park status = %d, want 201", resp.StatusCode)
	}
	var park database.Park
	decodeResp(t, resp, &park)
	if park.ID == 0 || park.ParkName != "Glacier" {
		t.Fatalf("created park = %+v", park)
	}

	resp = postJSON(t, srv.URL+"/api/parks", map[string]any{"location": "nameless"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("create without parkName status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/parks/%d", srv.URL, park.ID), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE park: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete park status = %d, want 204", resp.StatusCode)
	}

	resp, err = http.Get(fmt.Sprintf("%s/api/parks/%d", srv.URL, park.ID))
	if err != nil {
		t.Fatalf("GET deleted park: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("deleted park status = %d, want 404", resp.StatusCode)
	}
}

// uploadGPX posts a multipart body with one "file" field.
func uploadGPX(t *testing.T, url, filename, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	io.WriteString(fw, content)
	mw.Close()

	resp, err := http.Post(url, mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	return resp
}

const uploadSample = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test">
 <trk><trkseg>
  <trkpt lat="46.85" lon="-121.76"><ele>1650</ele><name>Paradise</name></trkpt>
  <trkpt lat="46.86" lon="-121.75"></trkpt>
  <trkpt lat="46.87" lon="-121.74"></trkpt>
 </trkseg></trk>
</gpx>`

// TestUploadThenDownloadGPX walks the whole loop: upload a file, check
// the stored points and cached line, then export the track again.
func TestUploadThenDownloadGPX(t *testing.T) {
	t.Parallel()
	srv, db := newTestServer(t, nil)
	ctx := context.Background()

	routeID, err := db.InsertRoute(ctx, database.Route{RouteName: "Skyline Trail"})
	if err != nil {
		t.Fatalf("insert route: %v", err)
	}

	resp := uploadGPX(t, fmt.Sprintf("%s/api/routes/%d/upload-gpx", srv.URL, routeID), "skyline.gpx", uploadSample)
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("upload status = %d, body %s", resp.StatusCode, body)
	}
	var result struct {
		PointsAdded int    `json:"pointsAdded"`
		GeoJSON     string `json:"geoJson"`
	}
	decodeResp(t, resp, &result)
	if result.PointsAdded != 3 {
		t.Errorf("pointsAdded = %d, want 3", result.PointsAdded)
	}
	if !strings.Contains(result.GeoJSON, "LineString") {
		t.Errorf("geoJson = %q, want a LineString feature", result.GeoJSON)
	}

	// Route detail carries the new points.
	resp, err = http.Get(fmt.Sprintf("%s/api/routes/%d", srv.URL, routeID))
	if err != nil {
		t.Fatalf("GET route: %v", err)
	}
	var detail struct {
		database.Route
		Points []database.RoutePoint `json:"points"`
	}
	decodeResp(t, resp, &detail)
	if len(detail.Points) != 3 {
		t.Fatalf("route detail points = %d, want 3", len(detail.Points))
	}
	if detail.Points[0].Description != "Paradise" {
		t.Errorf("first point description = %q", detail.Points[0].Description)
	}

	resp, err = http.Get(fmt.Sprintf("%s/api/routes/%d/download-gpx", srv.URL, routeID))
	if err != nil {
		t.Fatalf("GET download-gpx: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/gpx+xml" {
		t.Errorf("download content type = %q", ct)
	}
	doc, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(doc, []byte(`lat="46.85`)) || !bytes.Contains(doc, []byte("Paradise")) {
		t.Errorf("exported gpx missing uploaded data:\n%s", doc)
	}
}

// TestUploadGPXErrorStatuses checks each failure gets its own status:
// 404 unknown route, 400 for no file or a pointless document, 422 for a
// track whose every point is a (0,0) placeholder.
func TestUploadGPXErrorStatuses(t *testing.T) {
	t.Parallel()
	srv, db := newTestServer(t, nil)
	ctx := context.Background()

	routeID, err := db.InsertRoute(ctx, database.Route{RouteName: "Faulty"})
	if err != nil {
		t.Fatalf("insert route: %v", err)
	}

	resp := uploadGPX(t, srv.URL+"/api/routes/999999/upload-gpx", "a.gpx", uploadSample)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want 404", resp.StatusCode)
	}

	resp, err = http.Post(fmt.Sprintf("%s/api/routes/%d/upload-gpx", srv.URL, routeID), "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST without multipart: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing file field status = %d, want 400", resp.StatusCode)
	}

	resp = uploadGPX(t, fmt.Sprintf("%s/api/routes/%d/upload-gpx", srv.URL, routeID), "empty.gpx", "<gpx></gpx>")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("pointless document status = %d, want 400", resp.StatusCode)
	}

	placeholders := `<gpx><trk><trkseg><trkpt lat="0" lon="0"></trkpt></trkseg></trk></gpx>`
	resp = uploadGPX(t, fmt.Sprintf("%s/api/routes/%d/upload-gpx", srv.URL, routeID), "zero.gpx", placeholders)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("placeholder-only track status = %d, want 422", resp.StatusCode)
	}
}

// fixedGeocoder resolves every query to one spot.
type fixedGeocoder struct{ lat, lon float64 }

func (f fixedGeocoder) Geocode(context.Context, string) (*geocode.Result, error) {
	return &geocode.Result{Lat: f.lat, Lon: f.lon, Name: "fixed"}, nil
}

func TestGeocodeEndpoint(t *testing.T) {
	t.Parallel()
	srv, db := newTestServer(t, fixedGeocoder{lat: 48.76, lon: -113.79})
	ctx := context.Background()

	parkID, err := db.InsertPark(ctx, database.Park{ParkName: "Glacier", Location: "West Glacier, Montana"})
	if err != nil {
		t.Fatalf("insert park: %v", err)
	}

	resp := postJSON(t, srv.URL+"/api/geocode/parks", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("geocode status = %d", resp.StatusCode)
	}
	var report struct {
		Kind       string `json:"kind"`
		Candidates int    `json:"candidates"`
		Updated    int    `json:"updated"`
	}
	decodeResp(t, resp, &report)
	if report.Kind != "parks" || report.Candidates != 1 || report.Updated != 1 {
		t.Errorf("report = %+v", report)
	}

	park, err := db.ParkByID(ctx, parkID)
	if err != nil || park == nil {
		t.Fatalf("park by id: %v", err)
	}
	if park.Latitude == nil || *park.Latitude != 48.76 {
		t.Errorf("park latitude after backfill = %v, want 48.76", park.Latitude)
	}

	resp = postJSON(t, srv.URL+"/api/geocode/volcanoes", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown kind status = %d, want 404", resp.StatusCode)
	}
}

func TestGeocodeDisabled(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, nil)
	resp := postJSON(t, srv.URL+"/api/geocode/parks", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("geocode without provider status = %d, want 503", resp.StatusCode)
	}
}

func TestMapMarkers(t *testing.T) {
	t.Parallel()
	srv, db := newTestServer(t, nil)
	ctx := context.Background()

	lat, lon := 36.06, -112.14
	parkID, err := db.InsertPark(ctx, database.Park{ParkName: "Grand Canyon", Latitude: &lat, Longitude: &lon})
	if err != nil {
		t.Fatalf("insert park: %v", err)
	}
	if _, err := db.InsertPark(ctx, database.Park{ParkName: "Unlocated"}); err != nil {
		t.Fatalf("insert park: %v", err)
	}
	if _, err := db.InsertRoute(ctx, database.Route{RouteName: "Bright Angel", ParkID: parkID, Latitude: &lat, Longitude: &lon}); err != nil {
		t.Fatalf("insert route: %v", err)
	}

	resp, err := http.Get(srv.URL + "/api/map/markers")
	if err != nil {
		t.Fatalf("GET markers: %v", err)
	}
	var payload struct {
		Markers []struct {
			Kind string  `json:"kind"`
			Name string  `json:"name"`
			Lat  float64 `json:"lat"`
		} `json:"markers"`
	}
	decodeResp(t, resp, &payload)
	if len(payload.Markers) != 2 {
		t.Fatalf("markers = %d, want 2 (unlocated park hidden)", len(payload.Markers))
	}
	kinds := map[string]int{}
	for _, m := range payload.Markers {
		kinds[m.Kind]++
		if m.Lat != lat {
			t.Errorf("marker %q lat = %v", m.Name, m.Lat)
		}
	}
	if kinds["park"] != 1 || kinds["route"] != 1 {
		t.Errorf("marker kinds = %v", kinds)
	}
}

func TestPathID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		path   string
		wantID int64
		sub    string
	}{
		{"/api/routes/42", 42, ""},
		{"/api/routes/42/points", 42, "points"},
		{"/api/routes/42/upload-gpx", 42, "upload-gpx"},
		{"/api/routes/abc", 0, ""},
		{"/api/routes/-3", 0, ""},
		{"/api/routes/", 0, ""},
	}
	for _, tc := range tests {
		id, sub := pathID(tc.path, "/api/routes/")
		if id != tc.wantID || sub != tc.sub {
			t.Errorf("pathID(%q) = (%d, %q), want (%d, %q)", tc.path, id, sub, tc.wantID, tc.sub)
		}
	}
}
