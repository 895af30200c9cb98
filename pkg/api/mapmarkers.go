package api

import (
	"context"
	"encoding/json"
	"net/http"
)

// marker is one pin on the map page.  GeoJSON rides along for routes so
// the browser can draw the track without a second round trip.
type marker struct {
	ID      int64           `json:"id"`
	Kind    string          `json:"kind"` // "park" or "route"
	Name    string          `json:"name"`
	Lat     float64         `json:"lat"`
	Lon     float64         `json:"lon"`
	ParkID  int64           `json:"parkId,omitempty"`
	GeoJSON json.RawMessage `json:"geoJson,omitempty"`
}

// handleMapMarkers serves every located park and route in one payload.
// Records still missing coordinates are simply absent; running the
// geocode backfill makes them appear.
func (h *Handler) handleMapMarkers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.respondCached(w, r, cacheKeyMapMarkers, h.loadMapMarkers)
}

func (h *Handler) loadMapMarkers(ctx context.Context) ([]byte, error) {
	markers := []marker{}

	parks, err := h.DB.AllParks(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range parks {
		if p.Latitude == nil || p.Longitude == nil {
			continue
		}
		markers = append(markers, marker{
			ID: p.ID, Kind: "park", Name: p.ParkName,
			Lat: *p.Latitude, Lon: *p.Longitude,
		})
	}

	routes, err := h.DB.AllRoutes(ctx)
	if err != nil {
		return nil, err
	}
	for _, rt := range routes {
		if rt.Latitude == nil || rt.Longitude == nil {
			continue
		}
		m := marker{
			ID: rt.ID, Kind: "route", Name: rt.RouteName,
			Lat: *rt.Latitude, Lon: *rt.Longitude, ParkID: rt.ParkID,
		}
		if json.Valid([]byte(rt.GeoJSON)) && rt.GeoJSON != "" {
			m.GeoJSON = json.RawMessage(rt.GeoJSON)
		}
		markers = append(markers, m)
	}

	return json.MarshalIndent(struct {
		Markers []marker `json:"markers"`
	}{markers}, "", "  ")
}
