package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNoToken is returned by NewMapbox when the access token is blank.
var ErrNoToken = errors.New("geocode: mapbox access token is empty")

// Mapbox queries the Mapbox places API.  The zero value is not usable;
// construct it with NewMapbox so the token check happens once.
type Mapbox struct {
	token   string
	baseURL string
	client  *http.Client
}

const mapboxBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

// NewMapbox builds a client around the given access token.
func NewMapbox(token string) (*Mapbox, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrNoToken
	}
	return &Mapbox{
		token:   token,
		baseURL: mapboxBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// mapboxFeature mirrors the slice of the places response we care about.
// Center is the point Mapbox itself recommends; the geometry coordinates
// are the fallback when Center is absent.  Both are [longitude, latitude].
type mapboxFeature struct {
	PlaceName string    `json:"place_name"`
	Center    []float64 `json:"center"`
	Geometry  struct {
		Coordinates []float64 `json:"coordinates"`
	} `json:"geometry"`
}

type mapboxResponse struct {
	Features []mapboxFeature `json:"features"`
}

// Geocode resolves a query via the places endpoint.  A response with no
// features, or a feature carrying no usable coordinates, is a miss, not
// an error.
func (m *Mapbox) Geocode(ctx context.Context, query string) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/%s.json?access_token=%s&limit=1",
		m.baseURL, url.PathEscape(query), url.QueryEscape(m.token))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("mapbox request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mapbox request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("mapbox: unexpected status %s", resp.Status)
	}

	var parsed mapboxResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("mapbox decode: %w", err)
	}
	if len(parsed.Features) == 0 {
		return nil, nil
	}

	f := parsed.Features[0]
	coords := f.Center
	if len(coords) < 2 {
		coords = f.Geometry.Coordinates
	}
	if len(coords) < 2 {
		return nil, nil
	}
	return &Result{Lat: coords[1], Lon: coords[0], Name: f.PlaceName}, nil
}
