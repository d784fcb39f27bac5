package monitor

import (
	"sync"

	"github.com/chomp-dev/chomp/pkg/loader"
)

// Tracker records the most recent request vitals for every ingester,
// so a monitor ingester can report on another ingester's health
// without the monitor loader itself making a request (spec.md §4.3:
// "request vitals (latency, bytes, status)... of monitored
// ingesters"). pkg/scheduler/job.go records into it after every
// Acquire; it's otherwise just a read-mostly map.
type Tracker struct {
	mu   sync.RWMutex
	last map[string]loader.Vitals
}

// NewTracker builds an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{last: make(map[string]loader.Vitals)}
}

// Record stores v as the latest vitals observed for ingester name.
func (t *Tracker) Record(name string, v *loader.Vitals) {
	if v == nil {
		return
	}
	t.mu.Lock()
	t.last[name] = *v
	t.mu.Unlock()
}

// Get returns the latest recorded vitals for name, if any.
func (t *Tracker) Get(name string) (loader.Vitals, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.last[name]
	return v, ok
}
