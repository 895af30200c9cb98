package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"hiking-trail-map/pkg/database"
	"hiking-trail-map/pkg/geocode"
	"hiking-trail-map/pkg/gpxarchive"
	"hiking-trail-map/pkg/ingest"
)

// =======================
// Public API entry points
// =======================

// Handler wires together the database, the upload pipeline and the
// geocoder so HTTP routes can stay small and focused on translating
// requests into calls on the building blocks behind the scenes.
type Handler struct {
	DB         *database.Database
	Ingest     *ingest.Ingestor
	Geocoder   geocode.Geocoder
	UploadsDir string
	Archive    *gpxarchive.Generator // nil disables the bundle download
	Cache      *ResponseCache        // nil disables caching
	Limiter    *RateLimiter          // nil admits everyone
	Logf       func(string, ...any)
}

// NewHandler constructs a Handler with sane defaults.
// Logf is optional; pass nil if logging is not required.
func NewHandler(db *database.Database, geocoder geocode.Geocoder, uploadsDir string, logf func(string, ...any)) *Handler {
	return &Handler{
		DB:         db,
		Ingest:     &ingest.Ingestor{DB: db, Logf: logf},
		Geocoder:   geocoder,
		UploadsDir: uploadsDir,
		Logf:       logf,
	}
}

// Register attaches API routes to the provided mux. We keep the method
// tiny and declarative: it simply wires URLs to helpers, avoiding clever
// routing that could obscure how requests are served.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api", h.handleOverview)
	mux.HandleFunc("/api/parks", h.handleParks)
	mux.HandleFunc("/api/parks/", h.handlePark)
	mux.HandleFunc("/api/routes", h.handleRoutes)
	mux.HandleFunc("/api/routes/", h.handleRoute)
	mux.HandleFunc("/api/routepoints/", h.handleRoutePoint)
	mux.HandleFunc("/api/images/", h.handleImage)
	mux.HandleFunc("/api/feedback/", h.handleFeedback)
	mux.HandleFunc("/api/geocode/", h.handleGeocode)
	mux.HandleFunc("/api/dashboard", h.handleDashboard)
	mux.HandleFunc("/api/map/markers", h.handleMapMarkers)
	mux.HandleFunc("/api/gpx/daily.tar.gz", h.handleArchiveDownload)
	mux.HandleFunc("/qrpng", h.handleQRPNG)
}

// handleOverview publishes machine-readable docs so developers
// understand which endpoints to call.
func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	overview := struct {
		Endpoints map[string]any `json:"endpoints"`
	}{
		Endpoints: map[string]any{
			"parks": map[string]any{
				"methods":     []string{"GET", "POST", "PUT", "DELETE"},
				"path":        "/api/parks[/{id}]",
				"description": "CRUD over parks. Deletes are soft; deleted parks vanish from every listing.",
			},
			"routes": map[string]any{
				"methods":     []string{"GET", "POST", "PUT", "DELETE"},
				"path":        "/api/routes[/{id}]",
				"description": "CRUD over hiking routes. A route detail includes its park, points, images and feedback.",
			},
			"uploadGPX": map[string]any{
				"method":      "POST",
				"path":        "/api/routes/{id}/upload-gpx",
				"query":       []string{"parse"},
				"description": "Multipart upload of a GPX file (field 'file', 10 MB max). Replaces the route's points and returns the new GeoJSON line. Pass parse=false to archive the file without touching points.",
			},
			"downloadGPX": map[string]any{
				"method":      "GET",
				"path":        "/api/routes/{id}/download-gpx",
				"description": "Regenerates a GPX file from the stored points of the route.",
			},
			"geocode": map[string]any{
				"method":      "POST",
				"path":        "/api/geocode/{parks|routes|routepoints|images}",
				"description": "Backfills coordinates onto records that lack them and reports how many were updated.",
			},
			"dashboard": map[string]any{
				"method":      "GET",
				"path":        "/api/dashboard",
				"description": "Entity counts, average rating, routes per park and latest feedback.",
			},
			"mapMarkers": map[string]any{
				"method":      "GET",
				"path":        "/api/map/markers",
				"description": "Every located park and route for the map page.",
			},
		},
	}
	h.respondJSON(w, overview)
}

// handleDashboard serves the aggregate block for the landing page.
// The numbers join several tables, so they go through the response
// cache when one is configured.
func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.respondCached(w, r, cacheKeyDashboard, func(ctx context.Context) ([]byte, error) {
		stats, err := h.DB.DashboardStats(ctx)
		if err != nil {
			return nil, err
		}
		return json.MarshalIndent(stats, "", "  ")
	})
}

// =====================
// Utility helpers
// =====================

const (
	cacheKeyDashboard  = "dashboard"
	cacheKeyMapMarkers = "map-markers"
)

// respondCached serves through the response cache, falling back to a
// direct load when caching is disabled or the cache goroutine stopped.
func (h *Handler) respondCached(w http.ResponseWriter, r *http.Request, key string, load func(ctx context.Context) ([]byte, error)) {
	data, err := h.Cache.Get(r.Context(), key, load)
	if errors.Is(err, errCacheDisabled) || errors.Is(err, errCacheStopped) {
		data, err = load(r.Context())
	}
	if err != nil {
		h.serverError(w, key, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

// invalidateAggregates drops cached aggregates after any write, so the
// map and the dashboard never show a track that was just replaced.
func (h *Handler) invalidateAggregates(ctx context.Context) {
	h.Cache.Invalidate(ctx, cacheKeyDashboard)
	h.Cache.Invalidate(ctx, cacheKeyMapMarkers)
}

// acquire runs a request through the per-IP limiter.  It reports false
// after writing an error response when the slot could not be taken.
func (h *Handler) acquire(w http.ResponseWriter, r *http.Request, kind RequestKind) (*Permit, bool) {
	permit, err := h.Limiter.Acquire(r.Context(), clientIP(r), kind)
	if err != nil {
		http.Error(w, "request cancelled", http.StatusRequestTimeout)
		return nil, false
	}
	if permit != nil && permit.WaitNotice {
		h.logf("limiter: %s waited %s for %s", clientIP(r), permit.WaitDuration, r.URL.Path)
	}
	return permit, true
}

// clientIP extracts the caller's address, trusting X-Forwarded-For
// only for its first hop.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Handler) respondJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func (h *Handler) respondStatusJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

// serverError hides the cause from the client but keeps it in the log.
func (h *Handler) serverError(w http.ResponseWriter, what string, err error) {
	http.Error(w, what+" error", http.StatusInternalServerError)
	if h.Logf != nil {
		h.Logf("%s error: %v", what, err)
	}
}

func (h *Handler) logf(format string, args ...any) {
	if h.Logf != nil {
		h.Logf(format, args...)
	}
}

// pathID extracts the numeric ID that follows the given route prefix,
// ignoring any trailing sub-path.  Returns 0 when the segment is not a
// number.
func pathID(path, prefix string) (int64, string) {
	rest := strings.TrimPrefix(path, prefix)
	seg, sub, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(seg, 10, 64)
	if err != nil || id <= 0 {
		return 0, sub
	}
	return id, sub
}

func parseIntDefault(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	return dec.Decode(dst)
}
