package geocode

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/muesli/gominatim"
)

// Nominatim queries an OpenStreetMap Nominatim server.  It needs no API
// key, which makes it the default provider when no Mapbox token is set.
type Nominatim struct {
	server string
	once   sync.Once
	mu     sync.Mutex
}

const defaultNominatimServer = "https://nominatim.openstreetmap.org"

// NewNominatim builds a client for the given server; a blank server
// selects the public OSM instance.
func NewNominatim(server string) *Nominatim {
	if strings.TrimSpace(server) == "" {
		server = defaultNominatimServer
	}
	return &Nominatim{server: server}
}

// Geocode resolves a query through the Nominatim search endpoint.  The
// library keeps the server as package state, so calls are serialized;
// the public instance rate-limits to one request per second anyway.
func (n *Nominatim) Geocode(ctx context.Context, query string) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n.once.Do(func() { gominatim.SetServer(n.server) })

	search := gominatim.SearchQuery{Q: query, Limit: 1}
	n.mu.Lock()
	results, err := search.Get()
	n.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	r := results[0]
	lat, latErr := strconv.ParseFloat(r.Lat, 64)
	lon, lonErr := strconv.ParseFloat(r.Lon, 64)
	if latErr != nil || lonErr != nil {
		return nil, nil
	}
	return &Result{Lat: lat, Lon: lon, Name: r.DisplayName}, nil
}
