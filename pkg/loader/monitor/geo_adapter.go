package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// HTTPGeoAdapter is a reference GeoAdapter against an ip-api.com-shaped
// JSON endpoint ("http://endpoint/json/{host}" returning
// country/city/lat/lon fields). A real deployment wires in whatever
// geolocation provider it has a contract with; this exists so
// GeoResolver is testable without one, the same reference role
// pkg/loader/chain's JSONRPCAdapter fills for chain RPC.
type HTTPGeoAdapter struct {
	client *http.Client
}

// NewHTTPGeoAdapter builds an HTTPGeoAdapter using client.
func NewHTTPGeoAdapter(client *http.Client) *HTTPGeoAdapter {
	return &HTTPGeoAdapter{client: client}
}

var _ GeoAdapter = (*HTTPGeoAdapter)(nil)

type ipAPIResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Country string  `json:"country"`
	City    string  `json:"city"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// Lookup queries endpoint for host's geolocation.
func (a *HTTPGeoAdapter) Lookup(ctx context.Context, endpoint, host string) (GeoInfo, error) {
	url := strings.TrimSuffix(endpoint, "/") + "/json/" + host

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return GeoInfo{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return GeoInfo{}, fmt.Errorf("lookup %s: %w", host, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var parsed ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return GeoInfo{}, fmt.Errorf("decode geo response: %w", err)
	}
	if parsed.Status == "fail" {
		return GeoInfo{}, fmt.Errorf("lookup %s: %s", host, parsed.Message)
	}

	return GeoInfo{Country: parsed.Country, City: parsed.City, Lat: parsed.Lat, Lon: parsed.Lon}, nil
}
