package api

import (
	"net/http"

	"hiking-trail-map/pkg/database"
)

// Single-item endpoints. The collection lives under its route; these
// exist so a client can edit or remove one record without knowing the
// parent.

func (h *Handler) handleRoutePoint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, _ := pathID(r.URL.Path, "/api/routepoints/")
	if id == 0 {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		defer h.invalidateAggregates(ctx)
	}

	switch r.Method {
	case http.MethodGet:
		point, err := h.DB.PointByID(ctx, id)
		if err != nil {
			h.serverError(w, "point", err)
			return
		}
		if point == nil {
			http.Error(w, "point not found", http.StatusNotFound)
			return
		}
		h.respondJSON(w, point)

	case http.MethodPut:
		var point database.RoutePoint
		if err := decodeBody(r, &point); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		point.ID = id
		ok, err := h.DB.UpdatePoint(ctx, point)
		if err != nil {
			h.serverError(w, "update point", err)
			return
		}
		if !ok {
			http.Error(w, "point not found", http.StatusNotFound)
			return
		}
		updated, err := h.DB.PointByID(ctx, id)
		if err != nil || updated == nil {
			h.serverError(w, "update point", err)
			return
		}
		h.respondJSON(w, updated)

	case http.MethodDelete:
		ok, err := h.DB.SoftDeletePoint(ctx, id)
		if err != nil {
			h.serverError(w, "delete point", err)
			return
		}
		if !ok {
			http.Error(w, "point not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, _ := pathID(r.URL.Path, "/api/images/")
	if id == 0 {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		defer h.invalidateAggregates(ctx)
	}

	switch r.Method {
	case http.MethodGet:
		img, err := h.DB.ImageByID(ctx, id)
		if err != nil {
			h.serverError(w, "image", err)
			return
		}
		if img == nil {
			http.Error(w, "image not found", http.StatusNotFound)
			return
		}
		h.respondJSON(w, img)

	case http.MethodPut:
		var img database.RouteImage
		if err := decodeBody(r, &img); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		img.ID = id
		ok, err := h.DB.UpdateImage(ctx, img)
		if err != nil {
			h.serverError(w, "update image", err)
			return
		}
		if !ok {
			http.Error(w, "image not found", http.StatusNotFound)
			return
		}
		updated, err := h.DB.ImageByID(ctx, id)
		if err != nil || updated == nil {
			h.serverError(w, "update image", err)
			return
		}
		h.respondJSON(w, updated)

	case http.MethodDelete:
		ok, err := h.DB.SoftDeleteImage(ctx, id)
		if err != nil {
			h.serverError(w, "delete image", err)
			return
		}
		if !ok {
			http.Error(w, "image not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleFeedback(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r.URL.Path, "/api/feedback/")
	if id == 0 {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer h.invalidateAggregates(r.Context())
	ok, err := h.DB.SoftDeleteFeedback(r.Context(), id)
	if err != nil {
		h.serverError(w, "delete feedback", err)
		return
	}
	if !ok {
		http.Error(w, "feedback not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
