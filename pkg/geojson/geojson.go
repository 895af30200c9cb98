// Package geojson projects ordered route points into the LineString
// feature stored on a route and computes the bounding box reported back to
// upload clients.  The feature is a derived cache: route points in the
// database stay authoritative and the feature is rebuilt whenever they
// change.
package geojson

import "encoding/json"

// Position is one coordinate tuple.  GeoJSON ordering is [lon, lat] with
// an optional third elevation element, so we marshal the slice as-is.
type Position []float64

// Geometry is the LineString geometry object.
type Geometry struct {
	Type        string     `json:"type"`
	Coordinates []Position `json:"coordinates"`
}

// Feature wraps the geometry with the owning route ID so map clients can
// address the route without a second lookup.
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// Bounds is the minimal axis-aligned rectangle around a point set.
type Bounds struct {
	MinLat float64 `json:"minLat"`
	MaxLat float64 `json:"maxLat"`
	MinLon float64 `json:"minLon"`
	MaxLon float64 `json:"maxLon"`
}

// Point is the minimal shape this package needs from a stored route
// point.  Elevation is included in the coordinate tuple only when present
// so 2D tracks keep the compact two-element form.
type Point struct {
	Lat float64
	Lon float64
	Ele *float64
}

// LineString builds the LineString feature for a route from points already
// sorted by their order column.
func LineString(routeID int64, points []Point) Feature {
	coords := make([]Position, 0, len(points))
	for _, p := range points {
		if p.Ele != nil {
			coords = append(coords, Position{p.Lon, p.Lat, *p.Ele})
		} else {
			coords = append(coords, Position{p.Lon, p.Lat})
		}
	}
	return Feature{
		Type: "Feature",
		Geometry: Geometry{
			Type:        "LineString",
			Coordinates: coords,
		},
		Properties: map[string]any{"routeId": routeID},
	}
}

// Marshal renders a feature as the JSON text persisted on the route row.
func Marshal(f Feature) (string, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// BoundsOf reduces a point sequence to its bounding box in a single pass.
// The zero-point case returns the zero Bounds; callers only compute bounds
// for sequences that already passed validation.
func BoundsOf(points []Point) Bounds {
	if len(points) == 0 {
		return Bounds{}
	}
	b := Bounds{
		MinLat: points[0].Lat, MaxLat: points[0].Lat,
		MinLon: points[0].Lon, MaxLon: points[0].Lon,
	}
	for _, p := range points[1:] {
		if p.Lat < b.MinLat {
			b.MinLat = p.Lat
		}
		if p.Lat > b.MaxLat {
			b.MaxLat = p.Lat
		}
		if p.Lon < b.MinLon {
			b.MinLon = p.Lon
		}
		if p.Lon > b.MaxLon {
			b.MaxLon = p.Lon
		}
	}
	return b
}
