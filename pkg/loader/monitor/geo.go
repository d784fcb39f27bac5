package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chomp-dev/chomp/pkg/cache"
	"github.com/chomp-dev/chomp/pkg/loader/retry"
)

// geoCacheTTL is the cache lifetime for a resolved geolocation (spec.md
// §4.3: "Geolocation fields are cached with a 6h TTL").
const geoCacheTTL = 6 * time.Hour

// GeoInfo is a resolved geolocation for a host, cached under its own
// geo key. The monitor loader copies it into the raw payload as
// geo_country, geo_city, geo_lat and geo_lon; those fields reach the
// time-series table unless the monitor ingester declares them
// transient.
type GeoInfo struct {
	Country string  `json:"country"`
	City    string  `json:"city"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// GeoAdapter looks up a host's geolocation against a single provider
// endpoint; a real deployment wires in whatever geolocation API it
// has a contract with.
type GeoAdapter interface {
	Lookup(ctx context.Context, endpoint, host string) (GeoInfo, error)
}

// GeoResolver caches GeoAdapter lookups in the shared cache for
// geoCacheTTL, round-robining across a pool of provider endpoints the
// same way pkg/loader/chain round-robins RPC endpoints.
type GeoResolver struct {
	adapter GeoAdapter
	pool    *retry.Pool
	cache   cache.Cache
	cfg     *cache.Config
}

// NewGeoResolver builds a GeoResolver. endpoints is the geolocation
// provider pool.
func NewGeoResolver(adapter GeoAdapter, endpoints []string, cooldown, maxBackoff time.Duration, c cache.Cache, cfg *cache.Config) *GeoResolver {
	return &GeoResolver{
		adapter: adapter,
		pool:    retry.New(endpoints, cooldown, maxBackoff),
		cache:   c,
		cfg:     cfg,
	}
}

// Resolve returns host's geolocation, serving a cached value if one
// is still within its TTL.
func (r *GeoResolver) Resolve(ctx context.Context, host string) (GeoInfo, error) {
	key := r.cfg.GeoKey(host)

	if data, found, err := r.cache.Get(ctx, key); err == nil && found {
		var info GeoInfo
		if err := json.Unmarshal(data, &info); err == nil {
			return info, nil
		}
	}

	var info GeoInfo
	err := r.pool.Do(ctx, func(ctx context.Context, endpoint string) error {
		i, err := r.adapter.Lookup(ctx, endpoint, host)
		if err != nil {
			return err
		}
		info = i
		return nil
	})
	if err != nil {
		return GeoInfo{}, fmt.Errorf("resolve geolocation for %q: %w", host, err)
	}

	if payload, err := json.Marshal(info); err == nil {
		_ = r.cache.Set(ctx, key, payload, geoCacheTTL)
	}

	return info, nil
}
