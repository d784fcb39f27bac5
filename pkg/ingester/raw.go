package ingester

// RawByTarget is the payload shape a loader returns when an
// ingester's fields resolve to more than one distinct target
// (spec.md §4.3: "one GET per distinct target appearing in the
// ingester; field-level target overrides deduplicate"). Keyed by the
// resolved target string, as every field carries after
// ResolveInheritance. pkg/transformer selects each field's own bucket
// out of this map before falling back to treating raw as one shared
// value for single-target ingesters.
type RawByTarget map[string]interface{}

// DistinctTargets returns every target this ingester's fields resolve
// to, in first-seen order, with duplicates removed.
func DistinctTargets(ing *Ingester) []string {
	seen := make(map[string]struct{}, len(ing.Fields))
	var out []string
	for _, field := range ing.Fields {
		target := field.Target
		if target == "" {
			target = ing.Target
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}
