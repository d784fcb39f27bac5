package ingester

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chomp-dev/chomp/pkg/cache"
)

// ErrSpecConflict is returned at startup when an ingester name is
// already registered under a different configuration (spec.md §4.1:
// "fails loudly (the operator must reconcile)").
var ErrSpecConflict = errors.New("ingester registered under a conflicting spec")

// Record is the registry value stored under ingesters:{name} (spec.md
// §3, §7): the spec hash plus runtime status fields.
type Record struct {
	SpecHash         string    `json:"spec_hash"`
	Kind             Kind      `json:"kind"`
	Status           Status    `json:"status"`
	LastError        string    `json:"last_error,omitempty"`
	LastIngested     time.Time `json:"last_ingested,omitempty"`
	LastTick         time.Time `json:"last_tick,omitempty"`
	ConsecutiveFails int       `json:"consecutive_failures"`
}

// Registry publishes and reconciles ingester specs in the shared cache
// (spec.md §4.1, C6).
type Registry struct {
	log   logrus.FieldLogger
	cache cache.Cache
	cfg   *cache.Config
}

// NewRegistry creates a Registry bound to a cache façade and its
// namespace configuration.
func NewRegistry(log logrus.FieldLogger, c cache.Cache, cfg *cache.Config) *Registry {
	return &Registry{log: log.WithField("component", "registry"), cache: c, cfg: cfg}
}

// Reconcile registers every local ingester in the shared cache under
// locks:ingesters (spec.md §4.1), failing loudly if an existing
// registry record names the same ingester with a different spec hash.
func (r *Registry) Reconcile(ctx context.Context, ingesters []*Ingester) error {
	return r.cache.WithLock(ctx, r.cfg.LockKey("ingesters"), 30*time.Second, func(ctx context.Context) error {
		for _, ing := range ingesters {
			if err := r.reconcileOne(ctx, ing); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Registry) reconcileOne(ctx context.Context, ing *Ingester) error {
	key := r.cfg.RegistryKey(ing.Name)

	existing, found, err := r.cache.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read registry for %q: %w", ing.Name, err)
	}

	if found {
		var rec Record
		if err := json.Unmarshal(existing, &rec); err == nil {
			if rec.SpecHash != ing.SpecHash {
				return fmt.Errorf("%w: %q", ErrSpecConflict, ing.Name)
			}
			// Same spec already registered; nothing to do beyond
			// confirming agreement, so a fresh process joining an
			// already-running cluster doesn't clobber live status.
			return nil
		}
	}

	rec := Record{SpecHash: ing.SpecHash, Kind: ing.Kind, Status: StatusUnknown}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal registry record for %q: %w", ing.Name, err)
	}

	if err := r.cache.Set(ctx, key, payload, 0); err != nil {
		return fmt.Errorf("write registry for %q: %w", ing.Name, err)
	}

	r.log.WithField("ingester", ing.Name).Info("Registered ingester")
	return nil
}

// UpdateStatus writes the owner's latest status for an ingester after
// each successful or failed store attempt (spec.md §4.1: "Updated by
// owner on each successful store").
func (r *Registry) UpdateStatus(ctx context.Context, ing *Ingester) error {
	status, lastError, lastIngested, lastTick, fails := ing.Snapshot()

	existing, found, err := r.cache.Get(ctx, r.cfg.RegistryKey(ing.Name))
	if err != nil {
		return err
	}

	rec := Record{SpecHash: ing.SpecHash, Kind: ing.Kind}
	if found {
		_ = json.Unmarshal(existing, &rec)
	}

	rec.Status = status
	rec.LastError = lastError
	rec.LastIngested = lastIngested
	rec.LastTick = lastTick
	rec.ConsecutiveFails = fails

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal registry record for %q: %w", ing.Name, err)
	}

	return r.cache.Set(ctx, r.cfg.RegistryKey(ing.Name), payload, 0)
}

// Get returns the current registry record for an ingester.
func (r *Registry) Get(ctx context.Context, name string) (*Record, error) {
	data, found, err := r.cache.Get(ctx, r.cfg.RegistryKey(name))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal registry record for %q: %w", name, err)
	}
	return &rec, nil
}
