package transformer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chomp-dev/chomp/pkg/cache"
)

// ErrCrossResourceMiss is returned when a cross-resource reference
// names an ingester or field with no recorded latest value yet.
var ErrCrossResourceMiss = fmt.Errorf("cross-resource reference miss")

// CrossResolver resolves `{Ingester.Field}` references against the
// cache's latest-value store (spec.md §4.4: "the latest cached value
// of a cross-resource reference"; C6). It never blocks on another
// ingester's own tick — it only reads whatever was last published.
type CrossResolver struct {
	cache cache.Cache
	cfg   *cache.Config
}

// NewCrossResolver builds a resolver bound to the shared cache.
func NewCrossResolver(c cache.Cache, cfg *cache.Config) *CrossResolver {
	return &CrossResolver{cache: c, cfg: cfg}
}

// Resolve looks up the latest value of ingester.field, published by
// pkg/store each time that ingester completes a tick.
func (r *CrossResolver) Resolve(ctx context.Context, ingesterName, field string) (interface{}, error) {
	data, found, err := r.cache.Get(ctx, r.cfg.LatestKey(ingesterName))
	if err != nil {
		return nil, fmt.Errorf("read latest values for %q: %w", ingesterName, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: ingester %q has no recorded values", ErrCrossResourceMiss, ingesterName)
	}

	var values map[string]interface{}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode latest values for %q: %w", ingesterName, err)
	}

	v, ok := values[field]
	if !ok {
		return nil, fmt.Errorf("%w: ingester %q has no field %q", ErrCrossResourceMiss, ingesterName, field)
	}

	return v, nil
}
