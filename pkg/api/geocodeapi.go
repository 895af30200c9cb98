package api

import (
	"context"
	"net/http"
	"strings"

	"hiking-trail-map/pkg/database"
	"hiking-trail-map/pkg/geocode"
)

// handleGeocode backfills coordinates for one entity kind:
// POST /api/geocode/{parks|routes|routepoints|images}.
// Provider misses never fail the request; the response counts what was
// actually updated.
func (h *Handler) handleGeocode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Geocoder == nil {
		http.Error(w, "geocoding disabled", http.StatusServiceUnavailable)
		return
	}

	kind := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/geocode/"), "/")
	scan, update := h.geocodeFuncs(kind)
	if scan == nil {
		http.NotFound(w, r)
		return
	}

	permit, ok := h.acquire(w, r, RequestHeavy)
	if !ok {
		return
	}
	defer permit.Release()

	report, err := geocode.Backfill(r.Context(), scan, h.Geocoder, update, h.Logf)
	if err != nil {
		h.serverError(w, "geocode "+kind, err)
		return
	}
	if report.Updated > 0 {
		h.invalidateAggregates(r.Context())
	}
	h.logf("geocode: kind=%s candidates=%d updated=%d", kind, report.Candidates, report.Updated)

	h.respondJSON(w, struct {
		Kind       string            `json:"kind"`
		Candidates int               `json:"candidates"`
		Updated    int               `json:"updated"`
		Outcomes   []geocode.Outcome `json:"outcomes,omitempty"`
	}{kind, report.Candidates, report.Updated, report.Outcomes})
}

// geocodeFuncs maps an entity kind onto its store scan and update.
// The adapter closures keep the geocode package free of database types.
func (h *Handler) geocodeFuncs(kind string) (
	func(ctx context.Context) ([]geocode.Candidate, error),
	func(ctx context.Context, id int64, lat, lon float64) (bool, error),
) {
	wrap := func(scan func(ctx context.Context) ([]database.MissingEntity, error)) func(ctx context.Context) ([]geocode.Candidate, error) {
		return func(ctx context.Context) ([]geocode.Candidate, error) {
			rows, err := scan(ctx)
			if err != nil {
				return nil, err
			}
			out := make([]geocode.Candidate, 0, len(rows))
			for _, row := range rows {
				out = append(out, geocode.Candidate{ID: row.ID, Query: row.Query})
			}
			return out, nil
		}
	}

	switch kind {
	case "parks":
		return wrap(h.DB.MissingParkCoordinates), h.DB.UpdateParkCoordinates
	case "routes":
		return wrap(h.DB.MissingRouteCoordinates), h.DB.UpdateRouteCoordinates
	case "routepoints":
		return wrap(h.DB.MissingPointCoordinates), h.DB.UpdatePointCoordinates
	case "images":
		return wrap(h.DB.MissingImageCoordinates), h.DB.UpdateImageCoordinates
	default:
		return nil, nil
	}
}
