package gpx

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"time"
)

// TrackPoint is one point of an encoded track.  It mirrors what the store
// keeps for a route point: coordinates, optional elevation and timestamp,
// and a free-text description.
type TrackPoint struct {
	Lat  float64
	Lon  float64
	Ele  *float64
	Time *time.Time
	Desc string
}

// coord marshals coordinates as plain decimal attributes.  The default
// float formatting may fall back to exponent notation, which some GPX
// consumers refuse, so we force the 'f' form while keeping the shortest
// representation that round-trips.
type coord float64

func (c coord) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	return xml.Attr{Name: name, Value: strconv.FormatFloat(float64(c), 'f', -1, 64)}, nil
}

type trkptXML struct {
	Lat  coord   `xml:"lat,attr"`
	Lon  coord   `xml:"lon,attr"`
	Ele  *string `xml:"ele,omitempty"`
	Time *string `xml:"time,omitempty"`
	Desc string  `xml:"desc,omitempty"`
}

type trksegXML struct {
	Points []trkptXML `xml:"trkpt"`
}

type trkXML struct {
	Name     string      `xml:"name"`
	Segments []trksegXML `xml:"trkseg"`
}

type gpxXML struct {
	XMLName xml.Name `xml:"gpx"`
	Xmlns   string   `xml:"xmlns,attr"`
	Version string   `xml:"version,attr"`
	Creator string   `xml:"creator,attr"`
	Track   trkXML   `xml:"trk"`
}

// Encode serialises an ordered point sequence into a GPX 1.1 document with
// one trk/trkseg.  The output carries an XML declaration and UTF-8 text;
// it is the only file format the service emits for external tools, so the
// element and attribute names here match the GPX schema exactly.
func Encode(routeName string, points []TrackPoint) ([]byte, error) {
	seg := trksegXML{Points: make([]trkptXML, 0, len(points))}
	for _, p := range points {
		pt := trkptXML{Lat: coord(p.Lat), Lon: coord(p.Lon), Desc: p.Desc}
		if p.Ele != nil {
			s := strconv.FormatFloat(*p.Ele, 'f', -1, 64)
			pt.Ele = &s
		}
		if p.Time != nil {
			s := p.Time.UTC().Format(time.RFC3339)
			pt.Time = &s
		}
		seg.Points = append(seg.Points, pt)
	}

	doc := gpxXML{
		Xmlns:   Namespace,
		Version: "1.1",
		Creator: "hiking-trail-map",
		Track: trkXML{
			Name:     routeName,
			Segments: []trksegXML{seg},
		},
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal gpx: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.Write(body)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
