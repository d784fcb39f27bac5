// Package selector implements Phase 1 field selection (spec.md §4.4):
// the dot/bracket JSON path syntax (".a.b[0].c"; "root" selects the
// full payload) for every kind whose raw payload is JSON-shaped, and
// a CSS/XPath subset (html.go) for the scraper kind, whose raw
// payload is HTML bytes. Select dispatches between the two based on
// v's concrete type, so pkg/transformer's Phase 1 call site stays
// kind-agnostic (spec.md §4.4: "the field's selector... is applied to
// raw", uniformly across kinds).
package selector

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSelectionFailed is returned when a selector yields nothing
// (spec.md §7: "Selection... count as failure; skip tick; continue").
var ErrSelectionFailed = errors.New("selector yielded nothing")

// Select applies selector to v and returns the selected value. "root"
// (or an empty string) returns v unchanged (spec.md testable
// property: "Field with selector: root on a scalar payload => the
// scalar itself"). When v is []byte (the scraper loader's raw HTML),
// selector is interpreted as CSS or XPath instead of a dot/bracket
// path (spec.md §4.3).
func Select(selector string, v interface{}) (interface{}, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" || selector == "root" {
		return v, nil
	}

	if raw, ok := v.([]byte); ok {
		return selectHTML(selector, raw)
	}

	steps, err := parsePath(selector)
	if err != nil {
		return nil, fmt.Errorf("selector %q: %w", selector, err)
	}

	cur, ok := applyPath(steps, v)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSelectionFailed, selector)
	}

	if cur == nil {
		return nil, fmt.Errorf("%w: %q", ErrSelectionFailed, selector)
	}

	return cur, nil
}

type step struct {
	key        string // non-empty for a map key step
	index      int    // used when isIdx is true
	isIdx      bool
	isWildcard bool // "[*]": project the remaining path across every element
}

// applyPath walks steps against v, fanning out at a wildcard step to
// apply every remaining step to each element of the list it's applied
// to and collecting the results — the projection an evm_logger
// series field needs to pull one positional value out of every log
// observed this tick, rather than only ever addressing a single fixed
// index (spec.md §4.3: a multi-log tick's fields are list-valued until
// an aggregation builtin reduces them).
func applyPath(steps []step, v interface{}) (interface{}, bool) {
	if len(steps) == 0 {
		return v, true
	}

	st := steps[0]
	rest := steps[1:]

	if st.isWildcard {
		list, ok := v.([]interface{})
		if !ok {
			return nil, false
		}
		out := make([]interface{}, 0, len(list))
		for _, elem := range list {
			val, ok := applyPath(rest, elem)
			if !ok {
				continue
			}
			out = append(out, val)
		}
		return out, true
	}

	next, ok := applyStep(st, v)
	if !ok {
		return nil, false
	}
	return applyPath(rest, next)
}

// parsePath tokenizes ".a.b[0].c" into a sequence of key/index steps.
func parsePath(selector string) ([]step, error) {
	s := selector
	if !strings.HasPrefix(s, ".") && !strings.HasPrefix(s, "[") {
		s = "." + s
	}

	var steps []step
	i := 0
	for i < len(s) {
		switch s[i] {
		case '.':
			i++
			start := i
			for i < len(s) && s[i] != '.' && s[i] != '[' {
				i++
			}
			if i == start {
				return nil, fmt.Errorf("empty path segment at offset %d", start)
			}
			steps = append(steps, step{key: s[start:i]})
		case '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("unterminated '[' at offset %d", i)
			}
			idxStr := strings.TrimSpace(s[i+1 : i+end])
			if idxStr == "*" {
				steps = append(steps, step{isWildcard: true})
				i += end + 1
				break
			}
			idx, err := strconv.Atoi(idxStr)
			if err != nil {
				return nil, fmt.Errorf("non-numeric index %q", idxStr)
			}
			steps = append(steps, step{index: idx, isIdx: true})
			i += end + 1
		default:
			return nil, fmt.Errorf("unexpected character %q at offset %d", s[i], i)
		}
	}

	return steps, nil
}

func applyStep(st step, v interface{}) (interface{}, bool) {
	if st.isIdx {
		list, ok := v.([]interface{})
		if !ok || st.index < 0 || st.index >= len(list) {
			return nil, false
		}
		return list[st.index], true
	}

	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, false
	}
	val, found := obj[st.key]
	if !found {
		return nil, false
	}
	return val, true
}
