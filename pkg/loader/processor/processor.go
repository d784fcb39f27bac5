// Package processor implements the processor loader kind (spec.md
// §4.3): a cache-only reader with no network I/O. Its fields'
// transformer chains read other ingesters' latest values directly
// through pkg/transformer.CrossResolver, so this loader's only job is
// to hand Phase 2 an empty self to evaluate against — target and
// selector are ignored, per spec.md.
package processor

import (
	"context"

	"github.com/chomp-dev/chomp/pkg/ingester"
	"github.com/chomp-dev/chomp/pkg/loader"
)

// Loader is the processor implementation of loader.Loader.
type Loader struct{}

// New builds a processor Loader. It holds no state: every processor
// ingester shares the same zero-I/O Acquire.
func New() *Loader { return &Loader{} }

var _ loader.Loader = (*Loader)(nil)

// Acquire returns a nil payload; processor fields must use the
// default "root" selector (which passes nil through unchanged) and
// drive their values entirely from `{Ingester.Field}` cross-resource
// references (spec.md §4.4). The dependency set this implies is
// derived from transformer text by
// pkg/ingester/graph.go's CrossResourceGraph, not tracked here.
func (l *Loader) Acquire(_ context.Context, ing *ingester.Ingester) (interface{}, *loader.Vitals, error) {
	return nil, &loader.Vitals{Status: "ok", FieldCount: len(ing.Fields)}, nil
}

// Close is a no-op; the processor loader holds no connections.
func (l *Loader) Close() error { return nil }
