// Package gpx reads and writes GPX 1.1 track files.
//
// Parsing is token-driven: we walk the document with xml.Decoder directly
// on the io.Reader, so large uploads never get buffered twice.  Track
// points (<trkpt>) win over route points (<rtept>); a file is read as one
// kind or the other, never a mix, because mixing the two would shuffle
// planned waypoints into recorded samples and break point ordering.
//
// Writing goes the other way through plain encoding/xml structs so the
// output stays bit-exact for third-party GPX tools.
package gpx

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Namespace is the GPX 1.1 namespace URI. Download consumers match on it
// verbatim, so it must never drift.
const Namespace = "http://www.topografix.com/GPX/1/1"

// ErrNoPoints reports a well-formed document that contains neither <trkpt>
// nor <rtept> elements with parseable coordinates.
var ErrNoPoints = errors.New("no track or route points found")

// RawPoint is one point exactly as it appeared in the file.  Optional
// fields stay nil when the source element is absent or unparseable; the
// normalizer downstream decides what to do about them.
type RawPoint struct {
	Lat  float64
	Lon  float64
	Ele  *float64
	Time *time.Time
	Name string // <name> first, <desc> as fallback, "" when neither exists
}

// Parse decodes a GPX document into raw points in file order.
// <ele> and <time> are parsed permissively: a bad value drops the field,
// not the point.  Coordinates come from the lat/lon attributes and a point
// without both parseable attributes is skipped entirely.
func Parse(r io.Reader) ([]RawPoint, error) {
	dec := xml.NewDecoder(r)

	var (
		trackPoints []RawPoint
		routePoints []RawPoint
		current     *RawPoint
		currentKind string // "trkpt" or "rtept"
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode gpx: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "trkpt", "rtept":
				pt, ok := pointFromAttrs(el.Attr)
				if !ok {
					current = nil
					continue
				}
				current = &pt
				currentKind = el.Name.Local
			case "ele":
				if current != nil {
					var s string
					_ = dec.DecodeElement(&s, &el)
					if v, err := strconv.ParseFloat(s, 64); err == nil {
						current.Ele = &v
					}
				}
			case "time":
				if current != nil {
					var s string
					_ = dec.DecodeElement(&s, &el)
					if t, err := time.Parse(time.RFC3339, s); err == nil {
						current.Time = &t
					}
				}
			case "name", "desc":
				if current != nil {
					var s string
					_ = dec.DecodeElement(&s, &el)
					// <name> has priority; <desc> only fills an empty slot.
					if s != "" && (el.Name.Local == "name" || current.Name == "") {
						current.Name = s
					}
				}
			}
		case xml.EndElement:
			if current != nil && el.Name.Local == currentKind {
				if currentKind == "trkpt" {
					trackPoints = append(trackPoints, *current)
				} else {
					routePoints = append(routePoints, *current)
				}
				current = nil
			}
		}
	}

	points := trackPoints
	if len(points) == 0 {
		points = routePoints
	}
	if len(points) == 0 {
		return nil, ErrNoPoints
	}
	return points, nil
}

// pointFromAttrs pulls the mandatory lat/lon attributes off a point
// element.  Both must parse; otherwise the point carries no usable
// geography and the caller drops it.
func pointFromAttrs(attrs []xml.Attr) (RawPoint, bool) {
	var (
		pt     RawPoint
		gotLat bool
		gotLon bool
	)
	for _, a := range attrs {
		switch a.Name.Local {
		case "lat":
			if v, err := strconv.ParseFloat(a.Value, 64); err == nil {
				pt.Lat = v
				gotLat = true
			}
		case "lon":
			if v, err := strconv.ParseFloat(a.Value, 64); err == nil {
				pt.Lon = v
				gotLon = true
			}
		}
	}
	return pt, gotLat && gotLon
}
