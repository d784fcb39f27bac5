package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chomp-dev/chomp/pkg/cache"
	"github.com/chomp-dev/chomp/pkg/ingester"
)

// UpdateLatest writes every field value (transient and non-transient
// alike, since transient fields exist precisely to be cache-readable,
// spec.md §3) under the ingester's latest-value key, so
// pkg/transformer.CrossResolver can serve `{Ingester.Field}`
// references for the next tick of any dependent ingester.
func UpdateLatest(ctx context.Context, c cache.Cache, cfg *cache.Config, ing *ingester.Ingester, values map[string]interface{}) error {
	payload, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshal latest values for %q: %w", ing.Name, err)
	}

	if err := c.Set(ctx, cfg.LatestKey(ing.Name), payload, 0); err != nil {
		return fmt.Errorf("write latest values for %q: %w", ing.Name, err)
	}

	return nil
}
