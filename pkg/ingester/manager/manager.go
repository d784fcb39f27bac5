// Package manager exposes the process-wide, read-only view over every
// loaded namespace's ingesters: List/Get/status lookups spanning many
// independent per-namespace ingester sets.
package manager

import (
	"context"
	"errors"
	"fmt"

	"github.com/chomp-dev/chomp/pkg/ingester"
)

// ErrNotFound is returned by Get/Status when no ingester with the
// given name is loaded.
var ErrNotFound = errors.New("ingester not found")

// ErrDuplicateAcrossNamespaces is returned when two different
// namespace files declare an ingester with the same name (spec.md
// §3: ingester names are unique cluster-wide, enforced at
// reconciliation; Manager enforces the same uniqueness locally at
// load time so a misconfigured process fails before it ever reaches
// the shared cache).
var ErrDuplicateAcrossNamespaces = errors.New("ingester name already loaded from a different namespace")

// Manager is the read-only, process-local view over every namespace
// loaded at startup.
type Manager struct {
	namespaces []*ingester.Namespace
	byName     map[string]*ingester.Ingester
	graphs     map[string]*ingester.FieldGraph
	registry   *ingester.Registry
}

// New builds a Manager from every namespace discovered on the
// configured paths, failing if two namespaces declare the same
// ingester name.
func New(namespaces []*ingester.Namespace, registry *ingester.Registry) (*Manager, error) {
	m := &Manager{
		namespaces: namespaces,
		byName:     make(map[string]*ingester.Ingester),
		graphs:     make(map[string]*ingester.FieldGraph),
		registry:   registry,
	}

	for _, ns := range namespaces {
		for _, ing := range ns.Ingesters {
			if _, dup := m.byName[ing.Name]; dup {
				return nil, fmt.Errorf("%w: %q (namespace %q)", ErrDuplicateAcrossNamespaces, ing.Name, ns.Name)
			}
			m.byName[ing.Name] = ing
			m.graphs[ing.Name] = ns.Graphs[ing.Name]
		}
	}

	return m, nil
}

// List returns every loaded ingester across all namespaces.
func (m *Manager) List() []*ingester.Ingester {
	out := make([]*ingester.Ingester, 0, len(m.byName))
	for _, ing := range m.byName {
		out = append(out, ing)
	}
	return out
}

// ByName returns name -> Ingester for every loaded ingester, the
// shape pkg/scheduler's Job needs.
func (m *Manager) ByName() map[string]*ingester.Ingester {
	return m.byName
}

// Graphs returns name -> FieldGraph for every loaded ingester.
func (m *Manager) Graphs() map[string]*ingester.FieldGraph {
	return m.graphs
}

// Get returns one loaded ingester by name.
func (m *Manager) Get(name string) (*ingester.Ingester, error) {
	ing, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return ing, nil
}

// Status returns the registry record for one ingester, falling back
// to the in-process snapshot if the registry hasn't been reconciled
// yet (e.g. during startup validation before Reconcile runs).
func (m *Manager) Status(ctx context.Context, name string) (*ingester.Record, error) {
	ing, err := m.Get(name)
	if err != nil {
		return nil, err
	}

	if m.registry != nil {
		rec, err := m.registry.Get(ctx, name)
		if err == nil && rec != nil {
			return rec, nil
		}
	}

	status, lastError, lastIngested, lastTick, fails := ing.Snapshot()
	return &ingester.Record{
		SpecHash:         ing.SpecHash,
		Kind:             ing.Kind,
		Status:           status,
		LastError:        lastError,
		LastIngested:     lastIngested,
		LastTick:         lastTick,
		ConsecutiveFails: fails,
	}, nil
}

// Reconcile registers every loaded ingester in the shared registry
// (spec.md §4.1), delegating to pkg/ingester.Registry.
func (m *Manager) Reconcile(ctx context.Context) error {
	if m.registry == nil {
		return nil
	}
	return m.registry.Reconcile(ctx, m.List())
}

// Namespaces returns every loaded namespace, for CLI introspection
// (e.g. `chomp validate` reporting per-file results).
func (m *Manager) Namespaces() []*ingester.Namespace {
	return m.namespaces
}
