package api

import (
	"net/http"
	"strings"

	"hiking-trail-map/pkg/database"
)

// handleParks serves the collection: list and create.
func (h *Handler) handleParks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodGet {
		defer h.invalidateAggregates(ctx)
	}
	switch r.Method {
	case http.MethodGet:
		parks, err := h.DB.AllParks(ctx)
		if err != nil {
			h.serverError(w, "list parks", err)
			return
		}
		if parks == nil {
			parks = []database.Park{}
		}
		h.respondJSON(w, parks)

	case http.MethodPost:
		var park database.Park
		if err := decodeBody(r, &park); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(park.ParkName) == "" {
			http.Error(w, "parkName is required", http.StatusBadRequest)
			return
		}
		id, err := h.DB.InsertPark(ctx, park)
		if err != nil {
			h.serverError(w, "create park", err)
			return
		}
		created, err := h.DB.ParkByID(ctx, id)
		if err != nil || created == nil {
			h.serverError(w, "create park", err)
			return
		}
		h.respondStatusJSON(w, http.StatusCreated, created)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handlePark serves one park: fetch, update, soft delete.
func (h *Handler) handlePark(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, _ := pathID(r.URL.Path, "/api/parks/")
	if id == 0 {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		defer h.invalidateAggregates(ctx)
	}

	switch r.Method {
	case http.MethodGet:
		park, err := h.DB.ParkByID(ctx, id)
		if err != nil {
			h.serverError(w, "park", err)
			return
		}
		if park == nil {
			http.Error(w, "park not found", http.StatusNotFound)
			return
		}
		h.respondJSON(w, park)

	case http.MethodPut:
		var park database.Park
		if err := decodeBody(r, &park); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		park.ID = id
		ok, err := h.DB.UpdatePark(ctx, park)
		if err != nil {
			h.serverError(w, "update park", err)
			return
		}
		if !ok {
			http.Error(w, "park not found", http.StatusNotFound)
			return
		}
		updated, err := h.DB.ParkByID(ctx, id)
		if err != nil || updated == nil {
			h.serverError(w, "update park", err)
			return
		}
		h.respondJSON(w, updated)

	case http.MethodDelete:
		ok, err := h.DB.SoftDeletePark(ctx, id)
		if err != nil {
			h.serverError(w, "delete park", err)
			return
		}
		if !ok {
			http.Error(w, "park not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
