// Package gpxarchive maintains a tar.gz bundle holding a GPX export of
// every route, rebuilt on an interval and on demand.  Hikers grab the
// whole catalogue in one download instead of clicking through routes.
package gpxarchive

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hiking-trail-map/pkg/database"
	"hiking-trail-map/pkg/gpx"
)

// ========================
// Archive generation logic
// ========================

// Info describes the current archive snapshot. We expose the on-disk
// path so HTTP handlers can stream straight from disk without buffering
// the entire tarball in memory.
type Info struct {
	Path    string
	ModTime time.Time
}

// Generator continuously maintains the bundle. Synchronisation happens
// via channels so we rely on message passing instead of mutexes.
type Generator struct {
	requests chan chan result
	done     chan struct{}
}

type result struct {
	info Info
	err  error
}

// Start launches the background worker.
// The worker regenerates a GPX document for every route, packs them into
// a tar.gz archive, and atomically replaces the destination file once the
// build succeeds. The initial build runs synchronously so the file exists
// before the HTTP layer starts serving requests.
func Start(
	ctx context.Context,
	db *database.Database,
	destPath string,
	refreshInterval time.Duration,
	logf func(string, ...any),
) *Generator {
	requests := make(chan chan result)
	done := make(chan struct{})
	buildRequests := make(chan struct{}, 1)
	buildResults := make(chan result, 1)

	destPath = filepath.Clean(destPath)

	triggerBuild := func() {
		select {
		case buildRequests <- struct{}{}:
		default:
		}
	}

	// Builder goroutine keeps disk IO and database work away from the
	// coordination loop so Fetch calls stay responsive.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-buildRequests:
				res := runBuild(ctx, db, destPath)
				if logf != nil {
					if res.err != nil {
						logf("gpx archive rebuild failed: %v", res.err)
					} else {
						logf("gpx archive ready: %s", res.info.Path)
					}
				}
				select {
				case <-ctx.Done():
					return
				case buildResults <- res:
				}
			}
		}
	}()

	initial := runBuild(ctx, db, destPath)
	if logf != nil {
		if initial.err != nil {
			logf("gpx archive initial build failed: %v", initial.err)
		} else {
			logf("gpx archive initialised: %s", initial.info.Path)
		}
	}

	// Coordinator goroutine multiplexes ticker events and HTTP requests.
	go func() {
		defer close(done)

		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()

		current := initial

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				triggerBuild()
			case res := <-buildResults:
				current = res
			case ch := <-requests:
				if (current.info.Path == "" && current.err == nil) || current.err != nil {
					triggerBuild()
					select {
					case <-ctx.Done():
						ch <- result{err: ctx.Err()}
						close(ch)
						return
					case res := <-buildResults:
						current = res
					}
				}
				ch <- current
				close(ch)
			}
		}
	}()

	return &Generator{requests: requests, done: done}
}

// Fetch returns the current archive info, building it on-demand if necessary.
func (g *Generator) Fetch(ctx context.Context) (Info, error) {
	respCh := make(chan result, 1)

	select {
	case <-ctx.Done():
		return Info{}, ctx.Err()
	case <-g.done:
		return Info{}, fmt.Errorf("archive generator stopped")
	case g.requests <- respCh:
	}

	select {
	case <-ctx.Done():
		return Info{}, ctx.Err()
	case <-g.done:
		return Info{}, fmt.Errorf("archive generator stopped")
	case res := <-respCh:
		return res.info, res.err
	}
}

// ============================
// Archive build implementation
// ============================

func runBuild(ctx context.Context, db *database.Database, destPath string) result {
	path, modTime, err := buildArchive(ctx, db, destPath)
	if err != nil {
		return result{err: err}
	}
	return result{info: Info{Path: path, ModTime: modTime}}
}

// buildArchive exports each route's stored points into a GPX entry of a
// tar.gz bundle. The destination is only replaced after the build
// succeeds, so clients never observe a partial archive.
func buildArchive(ctx context.Context, db *database.Database, destPath string) (string, time.Time, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", time.Time{}, fmt.Errorf("create archive directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), "gpx-*.tar.gz")
	if err != nil {
		return "", time.Time{}, fmt.Errorf("tmp archive: %w", err)
	}

	cleanup := func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpFile.Name())
	}

	gz := gzip.NewWriter(tmpFile)
	tarw := tar.NewWriter(gz)

	routes, err := db.AllRoutes(ctx)
	if err != nil {
		tarw.Close()
		gz.Close()
		cleanup()
		return "", time.Time{}, err
	}

	for _, route := range routes {
		select {
		case <-ctx.Done():
			tarw.Close()
			gz.Close()
			cleanup()
			return "", time.Time{}, ctx.Err()
		default:
		}

		if err := appendRoute(ctx, tarw, db, route); err != nil {
			tarw.Close()
			gz.Close()
			cleanup()
			return "", time.Time{}, err
		}
	}

	if err := tarw.Close(); err != nil {
		gz.Close()
		cleanup()
		return "", time.Time{}, fmt.Errorf("close tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		cleanup()
		return "", time.Time{}, fmt.Errorf("close gzip: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		cleanup()
		return "", time.Time{}, fmt.Errorf("close archive file: %w", err)
	}

	if err := replaceFile(tmpFile.Name(), destPath); err != nil {
		cleanup()
		return "", time.Time{}, err
	}

	info, err := os.Stat(destPath)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("stat archive: %w", err)
	}

	return destPath, info.ModTime(), nil
}

// appendRoute encodes one route as GPX and writes it into the tar.
// Routes without points are skipped; a GPX file with an empty track is
// useless to every consumer.
func appendRoute(ctx context.Context, tw *tar.Writer, db *database.Database, route database.Route) error {
	stored, err := db.PointsByRoute(ctx, route.ID)
	if err != nil {
		return fmt.Errorf("points for route %d: %w", route.ID, err)
	}

	points := make([]gpx.TrackPoint, 0, len(stored))
	latest := time.Time{}
	for _, p := range stored {
		if p.Latitude == nil || p.Longitude == nil {
			continue
		}
		if p.Time != nil && p.Time.After(latest) {
			latest = *p.Time
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
		return nil
	}

	doc, err := gpx.Encode(route.RouteName, points)
	if err != nil {
		return fmt.Errorf("encode route %d: %w", route.ID, err)
	}

	header := &tar.Header{
		Name: safeRouteFilename(route),
		Mode: 0o644,
		Size: int64(len(doc)),
	}
	if !latest.IsZero() {
		header.ModTime = latest
	} else {
		header.ModTime = route.UpdatedAt
	}

	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("tar header route %d: %w", route.ID, err)
	}
	if _, err := tw.Write(doc); err != nil {
		return fmt.Errorf("tar write route %d: %w", route.ID, err)
	}
	return nil
}

// safeRouteFilename normalises route names into archive-safe filenames
// and appends the ID to keep names unique even if sanitisation collides.
func safeRouteFilename(route database.Route) string {
	var b strings.Builder
	for _, r := range route.RouteName {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	name := strings.Trim(b.String(), "-")
	if name == "" {
		name = "route"
	}
	return fmt.Sprintf("%s-%d.gpx", name, route.ID)
}

// replaceFile atomically replaces the destination with the temporary file.
func replaceFile(tmpPath, destPath string) error {
	if err := os.Rename(tmpPath, destPath); err != nil {
		if removeErr := os.Remove(destPath); removeErr != nil && !os.IsNotExist(removeErr) {
			return fmt.Errorf("remove old archive: %w", removeErr)
		}
		if err := os.Rename(tmpPath, destPath); err != nil {
			return fmt.Errorf("replace archive: %w", err)
		}
	}
	return nil
}
