// Package store abstracts the time-series database adapters Chomp
// writes to (spec.md §1: "Concrete database drivers... modeled as
// abstract adapters"; C5).
package store

import (
	"context"

	"github.com/chomp-dev/chomp/pkg/ingester"
)

// Row is one persisted record: the tick timestamp plus every computed
// field's coerced value, keyed by field name. Adapters persist only
// the non-transient fields among them.
type Row struct {
	Tick   int64 // unix seconds, the scheduled tick boundary (spec.md §3)
	Values map[string]interface{}
}

// TSDB is the storage contract every concrete adapter implements
// (spec.md §4.5). One reference adapter ships in pkg/store/clickhouse.
type TSDB interface {
	// EnsureSchema bootstraps or additively evolves the table backing
	// ing, per its ResourceType (spec.md §4.5: "additive-alter-only
	// evolution; fatal on removal/type-change").
	EnsureSchema(ctx context.Context, ing *ingester.Ingester) error

	// Write persists one row according to ing's ResourceType:
	// value = upsert keyed by name, timeseries = append-only unique on
	// ts, series = append-only unkeyed.
	Write(ctx context.Context, ing *ingester.Ingester, row Row) error

	// Close releases any held connections.
	Close() error
}
