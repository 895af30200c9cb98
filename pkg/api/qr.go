package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// handleQRPNG renders a QR code for a share link so a route page can be
// opened on a phone by pointing the camera at the screen.  Only local
// paths are encoded; accepting arbitrary URLs would turn the endpoint
// into an open redirect generator.
func (h *Handler) handleQRPNG(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	target := r.URL.Query().Get("url")
	if target == "" {
		target = "/"
	}
	parsed, err := url.Parse(target)
	if err != nil || parsed.IsAbs() || !strings.HasPrefix(parsed.Path, "/") {
		http.Error(w, "url must be a local path", http.StatusBadRequest)
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	full := fmt.Sprintf("%s://%s%s", scheme, r.Host, parsed.String())

	size := clampInt(parseIntDefault(r.URL.Query().Get("size"), 512), 128, 1024)
	png, err := qrcode.Encode(full, qrcode.Medium, size)
	if err != nil {
		h.serverError(w, "qr encode", err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(png)
}
