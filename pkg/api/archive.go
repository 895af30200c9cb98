package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// handleArchiveDownload streams the tar.gz of every route's GPX export.
func (h *Handler) handleArchiveDownload(w http.ResponseWriter, r *http.Request) {
	if h.Archive == nil {
		http.Error(w, "archive disabled", http.StatusServiceUnavailable)
		return
	}

	permit, ok := h.acquire(w, r, RequestHeavy)
	if !ok {
		return
	}
	defer permit.Release()

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	info, err := h.Archive.Fetch(ctx)
	if err != nil {
		http.Error(w, "archive unavailable", http.StatusServiceUnavailable)
		h.logf("archive fetch error: %v", err)
		return
	}

	file, err := os.Open(info.Path)
	if err != nil {
		http.Error(w, "archive open error", http.StatusInternalServerError)
		return
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		http.Error(w, "archive stat error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filepath.Base(info.Path)))
	http.ServeContent(w, r, filepath.Base(info.Path), stat.ModTime(), file)
}
