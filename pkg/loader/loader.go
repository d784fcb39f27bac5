// Package loader defines the shared contract every ingester-kind
// loader implements (spec.md §4.3). The endpoint retry/cooldown pool
// lives in the retry subpackage.
package loader

import (
	"context"
	"time"

	"github.com/chomp-dev/chomp/pkg/ingester"
)

// Vitals records the bookkeeping fields attached to every load attempt
// (spec.md §4.3: "a RequestVitals record (latency, bytes, status,
// field count)").
type Vitals struct {
	Latency    time.Duration
	Bytes      int
	Status     string
	FieldCount int
}

// Loader acquires one tick's raw payload for an ingester. Kind-specific
// implementations live in the sibling subpackages (httpapi, wsapi,
// scraper, chain, evmlogger, processor, monitor).
type Loader interface {
	// Acquire fetches (or, for push-driven kinds, drains) the raw
	// payload for one tick. raw is handed to pkg/transformer for
	// Phase 1 selection.
	Acquire(ctx context.Context, ing *ingester.Ingester) (raw interface{}, vitals *Vitals, err error)

	// Close releases any held connections (persistent WS sockets,
	// chain RPC pools).
	Close() error
}
