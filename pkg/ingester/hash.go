package ingester

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
)

// Hash computes a stable fingerprint of an ingester spec, used by the
// startup reconciliation in spec.md §4.1 to detect "an ingester name
// already registered under a different spec" (fatal, operator must
// reconcile). yaml.v3 decoding plus JSON re-encoding gives us a
// deterministic key order without hand-rolling a canonical form.
func Hash(spec IngesterSpec) string {
	encoded, err := json.Marshal(spec)
	if err != nil {
		// Hashing must never fail startup; fall back to a hash of the
		// name alone, which will simply make reconciliation stricter
		// (any future load of the same name is treated as a conflict).
		encoded = []byte(spec.Name)
	}

	h := fnv.New64a()
	_, _ = h.Write(encoded)
	return fmt.Sprintf("%x", h.Sum64())
}
