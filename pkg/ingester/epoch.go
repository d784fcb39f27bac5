package ingester

import "sync"

// EpochBuffer is the per-field accumulator for streaming (WS) message
// data (spec.md §3: "Epoch buffer (WS only)"). At most two consecutive
// epochs are retained so a reducer can reference the previous epoch
// (Design Notes §9: "bounded two-slot ring buffer... lock held only
// across the atomic flip").
type EpochBuffer struct {
	mu       sync.Mutex
	current  map[string][]interface{}
	previous map[string][]interface{}
}

// NewEpochBuffer creates an empty epoch buffer.
func NewEpochBuffer() *EpochBuffer {
	return &EpochBuffer{current: make(map[string][]interface{})}
}

// Append adds a value to the named list in the current epoch. This is
// the only operation invoked from the WS message handler's hot path,
// so it takes the lock only for the duration of the append itself.
func (e *EpochBuffer) Append(list string, v interface{}) {
	e.mu.Lock()
	e.current[list] = append(e.current[list], v)
	e.mu.Unlock()
}

// Lists returns a snapshot of every named list currently accumulated,
// without clearing anything.
func (e *EpochBuffer) Lists() map[string][]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneLists(e.current)
}

// Flip freezes the current epoch as "previous" and returns it, starting
// a fresh empty "current" epoch. Called once per tick, under the lock,
// but never while holding it across I/O (Design Notes §9, spec.md §5).
func (e *EpochBuffer) Flip() map[string][]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	frozen := e.current
	e.previous = frozen
	e.current = make(map[string][]interface{})
	return frozen
}

// Previous returns the epoch captured by the prior Flip, or nil if
// none has happened yet.
func (e *EpochBuffer) Previous() map[string][]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneLists(e.previous)
}

func cloneLists(m map[string][]interface{}) map[string][]interface{} {
	out := make(map[string][]interface{}, len(m))
	for k, v := range m {
		cp := make([]interface{}, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}
