package ingester

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/heimdalr/dag"
)

// ErrCycle is returned when an ingester's fields reference each other
// in a cycle (spec.md §4.4: "cycles are a validation error"; S4).
var ErrCycle = errors.New("cyclic field dependency")

// referencePattern matches every `{...}` token in a transformer
// expression string. Phase 2 of the transformer distinguishes three
// forms: {self}, {FieldName}, and {Ingester.Field} — this pattern just
// finds the candidates; classification happens in Reference.
//
//nolint:gochecknoglobals // compiled once
var referencePattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_.]*)\}`)

// Reference is a parsed `{...}` token from a transformer expression.
type Reference struct {
	Raw      string
	IsSelf   bool
	Ingester string // set only for cross-resource references
	Field    string
}

// ExtractReferences scans one transformer expression string and
// returns the reference tokens it finds.
func ExtractReferences(expr string) []Reference {
	matches := referencePattern.FindAllStringSubmatch(expr, -1)
	refs := make([]Reference, 0, len(matches))

	for _, m := range matches {
		inner := m[1]
		if inner == "self" {
			refs = append(refs, Reference{Raw: m[0], IsSelf: true})
			continue
		}

		if dot := strings.IndexByte(inner, '.'); dot >= 0 {
			refs = append(refs, Reference{
				Raw:      m[0],
				Ingester: inner[:dot],
				Field:    inner[dot+1:],
			})
			continue
		}

		refs = append(refs, Reference{Raw: m[0], Field: inner})
	}

	return refs
}

// FieldGraph is the intra-ingester dependency graph computed from
// `{FieldName}` references in each field's transformer chain (spec.md
// §4.4: "Dependency ordering within one tick is computed by
// topological sort of the intra-ingester references").
type FieldGraph struct {
	order []string // evaluation order, dependencies first
}

// BuildFieldGraph computes the evaluation order for an ingester's
// fields, failing with ErrCycle if the references form a cycle.
func BuildFieldGraph(ing *Ingester) (*FieldGraph, error) {
	names := make(map[string]struct{}, len(ing.Fields))
	for _, f := range ing.Fields {
		names[f.Name] = struct{}{}
	}

	edges := make(map[string][]string) // field -> fields it depends on
	d := dag.NewDAG()

	for _, f := range ing.Fields {
		if err := d.AddVertexByID(f.Name, f.Name); err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
	}

	for _, f := range ing.Fields {
		deps := fieldDependencies(f, names)
		edges[f.Name] = deps

		for _, dep := range deps {
			if err := d.AddEdge(dep, f.Name); err != nil {
				return nil, fmt.Errorf("%w: ingester %q, field %q depends on %q: %v", ErrCycle, ing.Name, f.Name, dep, err)
			}
		}
	}

	order, err := topoSort(names, edges)
	if err != nil {
		return nil, fmt.Errorf("%w: ingester %q: %v", ErrCycle, ing.Name, err)
	}

	return &FieldGraph{order: order}, nil
}

// Order returns field names in dependency order: if B references A,
// A appears before B (spec.md testable property 4).
func (g *FieldGraph) Order() []string {
	return g.order
}

func fieldDependencies(f *ResourceField, siblingNames map[string]struct{}) []string {
	seen := make(map[string]struct{})
	var deps []string

	for _, expr := range f.Transformers {
		for _, ref := range ExtractReferences(expr) {
			if ref.IsSelf || ref.Ingester != "" {
				continue // {self} isn't a dependency; cross-resource refs are async, not ordered
			}
			if ref.Field == f.Name {
				continue
			}
			if _, ok := siblingNames[ref.Field]; !ok {
				continue // reference to an unknown field; surfaced separately at eval time
			}
			if _, dup := seen[ref.Field]; dup {
				continue
			}
			seen[ref.Field] = struct{}{}
			deps = append(deps, ref.Field)
		}
	}

	return deps
}

// CrossResourceGraph reports, for every ingester, the set of other
// ingesters its fields reference via `{Ingester.Field}`. Per Design
// Notes §9 this graph is informational only — it never orders ticks,
// since cross-resource reads go through the cache's latest-value store
// asynchronously (spec.md testable property 7).
func CrossResourceGraph(ingesters []*Ingester) map[string][]string {
	out := make(map[string][]string, len(ingesters))

	for _, ing := range ingesters {
		seen := make(map[string]struct{})
		var deps []string

		for _, f := range ing.Fields {
			for _, expr := range f.Transformers {
				for _, ref := range ExtractReferences(expr) {
					if ref.Ingester == "" || ref.Ingester == ing.Name {
						continue
					}
					if _, dup := seen[ref.Ingester]; dup {
						continue
					}
					seen[ref.Ingester] = struct{}{}
					deps = append(deps, ref.Ingester)
				}
			}
		}

		out[ing.Name] = deps
	}

	return out
}

// topoSort runs Kahn's algorithm over the explicit edge list. The
// heimdalr/dag AddEdge call above already rejects cycles; this
// produces the actual evaluation order cheaply without relying on an
// unspecified traversal API.
func topoSort(names map[string]struct{}, edges map[string][]string) ([]string, error) {
	indegree := make(map[string]int, len(names))
	children := make(map[string][]string, len(names))

	for n := range names {
		indegree[n] = 0
	}
	for n, deps := range edges {
		indegree[n] += len(deps)
		for _, dep := range deps {
			children[dep] = append(children[dep], n)
		}
	}

	var queue []string
	for n, deg := range indegree {
		if deg == 0 {
			queue = append(queue, n)
		}
	}

	var order []string
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)

		for _, child := range children[n] {
			indegree[child]--
			if indegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	if len(order) != len(names) {
		return nil, errors.New("cycle detected during topological sort")
	}

	return order, nil
}
