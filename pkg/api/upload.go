package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hiking-trail-map/pkg/gpx"
	"hiking-trail-map/pkg/ingest"
	"hiking-trail-map/pkg/uploadlog"
)

// maxGPXUpload caps the multipart body. GPX is text; a real track from
// a day of hiking is well under a megabyte.
const maxGPXUpload = 10 << 20

// handleUploadGPX accepts a GPX file for one route, replaces the
// route's stored points and returns the freshly projected GeoJSON line.
// With parse=false the file is archived without touching points.
func (h *Handler) handleUploadGPX(w http.ResponseWriter, r *http.Request, routeID int64) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	permit, ok := h.acquire(w, r, RequestHeavy)
	if !ok {
		return
	}
	defer permit.Release()

	route, err := h.DB.RouteByID(ctx, routeID)
	if err != nil {
		h.serverError(w, "route", err)
		return
	}
	if route == nil {
		http.Error(w, "route not found", http.StatusNotFound)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxGPXUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "multipart field 'file' is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	uploadlog.Begin(routeID)
	uploadlog.Append(routeID, "upload: route=%d file=%q size=%d", routeID, header.Filename, header.Size)

	data, err := io.ReadAll(file)
	if err != nil {
		uploadlog.FlushError(routeID, err)
		http.Error(w, "read upload", http.StatusBadRequest)
		return
	}

	if h.UploadsDir != "" {
		if err := h.archiveUpload(routeID, header.Filename, data); err != nil {
			// Archival is best effort; the parse result matters more.
			uploadlog.Append(routeID, "upload: archive failed: %v", err)
		}
	}

	if strings.EqualFold(r.URL.Query().Get("parse"), "false") {
		uploadlog.Success(routeID, header.Filename)
		h.respondJSON(w, map[string]any{
			"message":     "file stored, parsing skipped",
			"pointsAdded": 0,
		})
		return
	}

	summary, err := h.Ingest.IngestGPX(ctx, routeID, bytes.NewReader(data))
	if err != nil {
		uploadlog.FlushError(routeID, err)
		switch {
		case errors.Is(err, gpx.ErrNoPoints):
			http.Error(w, "gpx file contains no points", http.StatusBadRequest)
		case errors.Is(err, ingest.ErrEmptyTrack):
			http.Error(w, "track has no usable points", http.StatusUnprocessableEntity)
		default:
			h.serverError(w, "upload", err)
		}
		return
	}

	uploadlog.Success(routeID, header.Filename)
	h.invalidateAggregates(ctx)
	h.respondJSON(w, map[string]any{
		"message":     fmt.Sprintf("parsed %s", header.Filename),
		"pointsAdded": summary.PointsAdded,
		"geoJson":     summary.GeoJSON,
		"bounds":      summary.Bounds,
	})
}

// archiveUpload keeps the raw bytes on disk so a bad parse can be
// replayed later.  File names carry the route and a timestamp; the
// client's base name is kept only as a sanitized suffix.
func (h *Handler) archiveUpload(routeID int64, filename string, data []byte) error {
	if err := os.MkdirAll(h.UploadsDir, 0o755); err != nil {
		return err
	}
	base := filepath.Base(filename)
	if base == "." || base == "/" || base == "" {
		base = "upload.gpx"
	}
	name := fmt.Sprintf("route-%d-%s-%s", routeID, time.Now().UTC().Format("20060102-150405"), base)
	return os.WriteFile(filepath.Join(h.UploadsDir, name), data, 0o644)
}

// handleDownloadGPX regenerates a GPX document from the stored points.
// The file reflects the database, not the last uploaded bytes, so manual
// point edits show up in the export.
func (h *Handler) handleDownloadGPX(w http.ResponseWriter, r *http.Request, routeID int64) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	route, err := h.DB.RouteByID(ctx, routeID)
	if err != nil {
		h.serverError(w, "route", err)
		return
	}
	if route == nil {
		http.Error(w, "route not found", http.StatusNotFound)
		return
	}

	stored, err := h.DB.PointsByRoute(ctx, routeID)
	if err != nil {
		h.serverError(w, "route points", err)
		return
	}

	points := make([]gpx.TrackPoint, 0, len(stored))
	for _, p := range stored {
		if p.Latitude == nil || p.Longitude == nil {
			continue
		}
		points = append(points, gpx.TrackPoint{
			Lat:  *p.Latitude,
			Lon:  *p.Longitude,
			Ele:  p.Elevation,
			Time: p.Time,
			Desc: p.Description,
		})
	}
	if len(points) == 0 {
		http.Error(w, "route has no points", http.StatusNotFound)
		return
	}

	name := route.RouteName
	if strings.TrimSpace(name) == "" {
		name = fmt.Sprintf("route-%d", routeID)
	}
	doc, err := gpx.Encode(name, points)
	if err != nil {
		h.serverError(w, "encode gpx", err)
		return
	}

	filename := fmt.Sprintf("%s-%s.gpx", sanitizeFilename(name), time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/gpx+xml")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, _ = w.Write(doc)
}

// sanitizeFilename keeps letters, digits and dashes so the name is safe
// inside a Content-Disposition header on any OS.
func sanitizeFilename(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "route"
	}
	return b.String()
}
