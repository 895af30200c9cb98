package api

import (
	"net/http"
	"strings"

	"hiking-trail-map/pkg/database"
)

// handleRoutes serves the collection: list and create.
func (h *Handler) handleRoutes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodGet {
		defer h.invalidateAggregates(ctx)
	}
	switch r.Method {
	case http.MethodGet:
		routes, err := h.DB.AllRoutes(ctx)
		if err != nil {
			h.serverError(w, "list routes", err)
			return
		}
		if routes == nil {
			routes = []database.Route{}
		}
		h.respondJSON(w, routes)

	case http.MethodPost:
		var route database.Route
		if err := decodeBody(r, &route); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(route.RouteName) == "" {
			http.Error(w, "routeName is required", http.StatusBadRequest)
			return
		}
		id, err := h.DB.InsertRoute(ctx, route)
		if err != nil {
			h.serverError(w, "create route", err)
			return
		}
		created, err := h.DB.RouteByID(ctx, id)
		if err != nil || created == nil {
			h.serverError(w, "create route", err)
			return
		}
		h.respondStatusJSON(w, http.StatusCreated, created)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleRoute dispatches one route's sub-resources and its CRUD.
func (h *Handler) handleRoute(w http.ResponseWriter, r *http.Request) {
	id, sub := pathID(r.URL.Path, "/api/routes/")
	if id == 0 {
		http.NotFound(w, r)
		return
	}

	switch sub {
	case "":
		h.routeCRUD(w, r, id)
	case "points":
		h.routePoints(w, r, id)
	case "images":
		h.routeImages(w, r, id)
	case "feedback":
		h.routeFeedback(w, r, id)
	case "upload-gpx":
		h.handleUploadGPX(w, r, id)
	case "download-gpx":
		h.handleDownloadGPX(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

// routeDetail is a route plus everything hanging off it, the shape the
// route page renders from.
type routeDetail struct {
	database.Route
	Points   []database.RoutePoint    `json:"points"`
	Images   []database.RouteImage    `json:"images"`
	Feedback []database.RouteFeedback `json:"feedback"`
}

func (h *Handler) routeCRUD(w http.ResponseWriter, r *http.Request, id int64) {
	ctx := r.Context()
	if r.Method != http.MethodGet {
		defer h.invalidateAggregates(ctx)
	}
	switch r.Method {
	case http.MethodGet:
		route, err := h.DB.RouteByID(ctx, id)
		if err != nil {
			h.serverError(w, "route", err)
			return
		}
		if route == nil {
			http.Error(w, "route not found", http.StatusNotFound)
			return
		}
		detail := routeDetail{Route: *route}
		if detail.Points, err = h.DB.PointsByRoute(ctx, id); err != nil {
			h.serverError(w, "route points", err)
			return
		}
		if detail.Images, err = h.DB.ImagesByRoute(ctx, id); err != nil {
			h.serverError(w, "route images", err)
			return
		}
		if detail.Feedback, err = h.DB.FeedbackByRoute(ctx, id); err != nil {
			h.serverError(w, "route feedback", err)
			return
		}
		h.respondJSON(w, detail)

	case http.MethodPut:
		var route database.Route
		if err := decodeBody(r, &route); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		route.ID = id
		ok, err := h.DB.UpdateRoute(ctx, route)
		if err != nil {
			h.serverError(w, "update route", err)
			return
		}
		if !ok {
			http.Error(w, "route not found", http.StatusNotFound)
			return
		}
		updated, err := h.DB.RouteByID(ctx, id)
		if err != nil || updated == nil {
			h.serverError(w, "update route", err)
			return
		}
		h.respondJSON(w, updated)

	case http.MethodDelete:
		ok, err := h.DB.SoftDeleteRoute(ctx, id)
		if err != nil {
			h.serverError(w, "delete route", err)
			return
		}
		if !ok {
			http.Error(w, "route not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// routePoints serves GET /api/routes/{id}/points and POST to add one
// manual point at the end of the track.
func (h *Handler) routePoints(w http.ResponseWriter, r *http.Request, routeID int64) {
	ctx := r.Context()
	if r.Method != http.MethodGet {
		defer h.invalidateAggregates(ctx)
	}
	switch r.Method {
	case http.MethodGet:
		points, err := h.DB.PointsByRoute(ctx, routeID)
		if err != nil {
			h.serverError(w, "route points", err)
			return
		}
		if points == nil {
			points = []database.RoutePoint{}
		}
		h.respondJSON(w, points)

	case http.MethodPost:
		var point database.RoutePoint
		if err := decodeBody(r, &point); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		point.RouteID = routeID
		id, err := h.DB.InsertPoint(ctx, point)
		if err != nil {
			h.serverError(w, "create point", err)
			return
		}
		created, err := h.DB.PointByID(ctx, id)
		if err != nil || created == nil {
			h.serverError(w, "create point", err)
			return
		}
		h.respondStatusJSON(w, http.StatusCreated, created)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// routeImages serves GET and POST under /api/routes/{id}/images.
func (h *Handler) routeImages(w http.ResponseWriter, r *http.Request, routeID int64) {
	ctx := r.Context()
	if r.Method != http.MethodGet {
		defer h.invalidateAggregates(ctx)
	}
	switch r.Method {
	case http.MethodGet:
		images, err := h.DB.ImagesByRoute(ctx, routeID)
		if err != nil {
			h.serverError(w, "route images", err)
			return
		}
		if images == nil {
			images = []database.RouteImage{}
		}
		h.respondJSON(w, images)

	case http.MethodPost:
		var img database.RouteImage
		if err := decodeBody(r, &img); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(img.FileName) == "" {
			http.Error(w, "fileName is required", http.StatusBadRequest)
			return
		}
		img.RouteID = routeID
		id, err := h.DB.InsertImage(ctx, img)
		if err != nil {
			h.serverError(w, "create image", err)
			return
		}
		created, err := h.DB.ImageByID(ctx, id)
		if err != nil || created == nil {
			h.serverError(w, "create image", err)
			return
		}
		h.respondStatusJSON(w, http.StatusCreated, created)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// routeFeedback serves GET and POST under /api/routes/{id}/feedback.
func (h *Handler) routeFeedback(w http.ResponseWriter, r *http.Request, routeID int64) {
	ctx := r.Context()
	if r.Method != http.MethodGet {
		defer h.invalidateAggregates(ctx)
	}
	switch r.Method {
	case http.MethodGet:
		feedback, err := h.DB.FeedbackByRoute(ctx, routeID)
		if err != nil {
			h.serverError(w, "route feedback", err)
			return
		}
		if feedback == nil {
			feedback = []database.RouteFeedback{}
		}
		h.respondJSON(w, feedback)

	case http.MethodPost:
		var fb database.RouteFeedback
		if err := decodeBody(r, &fb); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		fb.RouteID = routeID
		id, err := h.DB.InsertFeedback(ctx, fb)
		if err != nil {
			h.serverError(w, "create feedback", err)
			return
		}
		fb.ID = id
		h.respondStatusJSON(w, http.StatusCreated, fb)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
