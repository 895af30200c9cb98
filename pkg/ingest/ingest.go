// Package ingest turns an uploaded GPX file into stored route points
// and a cached GeoJSON line.  It is the one place where the parser, the
// point store and the projector meet, so the upload handler stays thin.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"hiking-trail-map/pkg/database"
	"hiking-trail-map/pkg/geojson"
	"hiking-trail-map/pkg/gpx"
)

// ErrEmptyTrack means the file parsed fine but every point was dropped
// during normalization, so there is nothing to store.
var ErrEmptyTrack = errors.New("ingest: track has no usable points")

// Normalize converts raw parsed points into storable route points.
// Points sitting exactly at (0, 0) are GPS placeholders and are dropped;
// the survivors get a contiguous 1-based order and a description, either
// the label carried in the file or a generated "Point {order}".
func Normalize(raw []gpx.RawPoint, routeID int64) ([]database.RoutePoint, error) {
	points := make([]database.RoutePoint, 0, len(raw))
	for _, rp := range raw {
		if rp.Lat == 0 && rp.Lon == 0 {
			continue
		}
		order := len(points) + 1
		desc := strings.TrimSpace(rp.Name)
		if desc == "" {
			desc = fmt.Sprintf("Point %d", order)
		}
		lat, lon := rp.Lat, rp.Lon
		points = append(points, database.RoutePoint{
			RouteID:     routeID,
			Latitude:    &lat,
			Longitude:   &lon,
			Elevation:   rp.Ele,
			Time:        rp.Time,
			PointOrder:  order,
			Description: desc,
		})
	}
	if len(points) == 0 {
		return nil, ErrEmptyTrack
	}
	return points, nil
}

// Summary is what an upload reports back to the client.
type Summary struct {
	PointsAdded int            `json:"pointsAdded"`
	GeoJSON     string         `json:"geoJson"`
	Bounds      geojson.Bounds `json:"bounds"`
}

// Ingestor wires the pipeline stages together.  Logf may be nil.
type Ingestor struct {
	DB   *database.Database
	Logf func(format string, args ...any)
}

func (in *Ingestor) logf(format string, args ...any) {
	if in.Logf != nil {
		in.Logf(format, args...)
	}
}

// IngestGPX runs the full pipeline for one upload: parse, normalize,
// replace the route's stored points, then regenerate and cache the
// GeoJSON line.  The replace is transactional, so a failure partway
// leaves the previous track intact.
func (in *Ingestor) IngestGPX(ctx context.Context, routeID int64, r io.Reader) (Summary, error) {
	raw, err := gpx.Parse(r)
	if err != nil {
		return Summary{}, err
	}
	in.logf("upload: route=%d parsed %d raw points", routeID, len(raw))

	points, err := Normalize(raw, routeID)
	if err != nil {
		return Summary{}, err
	}

	stored, err := in.DB.ReplaceRoutePoints(ctx, routeID, points)
	if err != nil {
		return Summary{}, fmt.Errorf("store points: %w", err)
	}
	in.logf("upload: route=%d stored %d points", routeID, stored)

	line := make([]geojson.Point, 0, len(points))
	for _, p := range points {
		line = append(line, geojson.Point{Lat: *p.Latitude, Lon: *p.Longitude, Ele: p.Elevation})
	}
	feature := geojson.LineString(routeID, line)
	encoded, err := geojson.Marshal(feature)
	if err != nil {
		return Summary{}, fmt.Errorf("encode geojson: %w", err)
	}
	if _, err := in.DB.UpdateRouteGeoJSON(ctx, routeID, encoded); err != nil {
		return Summary{}, err
	}

	return Summary{
		PointsAdded: stored,
		GeoJSON:     encoded,
		Bounds:      geojson.BoundsOf(line),
	}, nil
}
