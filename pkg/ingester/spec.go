package ingester

import (
	"sync"
	"time"

	"github.com/chomp-dev/chomp/pkg/interval"
)

// Ingester is the runtime representation of one configured unit of
// work (spec.md §3).
type Ingester struct {
	Name           string
	Kind           Kind
	ResourceType   ResourceType
	Interval       interval.Tag
	Target         string
	Selector       string
	Fields         []*ResourceField
	Probability    float64
	Tags           []string
	PreTransformer string
	Handler        string
	Reducer        string
	Transient      bool
	Headers        map[string]string
	Params         *ParamsValue

	// SpecHash identifies the exact configuration this runtime object
	// was built from, used for startup reconciliation (spec.md §4.1).
	SpecHash string

	// Epoch is non-nil only for ws_api ingesters.
	Epoch *EpochBuffer

	mu               sync.RWMutex
	lastTick         time.Time
	lastIngested     time.Time
	status           Status
	lastError        string
	consecutiveFails int
}

// New builds a runtime Ingester from a validated, inheritance-resolved
// spec.
func New(spec IngesterSpec) *Ingester {
	fields := make([]*ResourceField, 0, len(spec.Fields))
	for _, fs := range spec.Fields {
		fields = append(fields, NewResourceField(fs))
	}

	ing := &Ingester{
		Name:           spec.Name,
		Kind:           spec.Kind,
		ResourceType:   spec.ResourceType,
		Interval:       spec.Interval,
		Target:         spec.Target,
		Selector:       spec.Selector,
		Fields:         fields,
		Probability:    spec.ProbabilityOrDefault(),
		Tags:           spec.Tags,
		PreTransformer: spec.PreTransformer,
		Handler:        spec.Handler,
		Reducer:        spec.Reducer,
		Transient:      spec.Transient,
		Headers:        spec.Headers,
		Params:         spec.Params,
		SpecHash:       Hash(spec),
		status:         StatusUnknown,
	}

	if spec.Kind == KindWSAPI {
		ing.Epoch = NewEpochBuffer()
	}

	return ing
}

// Field returns the field with the given name, or nil.
func (i *Ingester) Field(name string) *ResourceField {
	for _, f := range i.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// NonTransientFields returns fields that belong in the time-series
// table schema (spec.md invariant: "A field marked transient is
// present in latest-value cache but absent from the time-series table
// schema").
func (i *Ingester) NonTransientFields() []*ResourceField {
	out := make([]*ResourceField, 0, len(i.Fields))
	for _, f := range i.Fields {
		if !f.Transient {
			out = append(out, f)
		}
	}
	return out
}

// LastTick returns the most recent tick boundary this ingester
// attempted.
func (i *Ingester) LastTick() time.Time {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.lastTick
}

// SetLastTick records the most recent tick boundary attempted.
func (i *Ingester) SetLastTick(t time.Time) {
	i.mu.Lock()
	i.lastTick = t
	i.mu.Unlock()
}

// RecordSuccess marks a successful store for this tick and resets the
// consecutive-failure counter (spec.md §7).
func (i *Ingester) RecordSuccess(tick time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.lastIngested = time.Now().UTC()
	i.lastTick = tick
	i.status = StatusHealthy
	i.lastError = ""
	i.consecutiveFails = 0
}

// RecordFailure increments the consecutive-failure counter and, once
// the retry budget is exhausted, marks the ingester unhealthy
// (spec.md §2: "on budget exhaustion... the ingester is marked
// unhealthy in the registry").
func (i *Ingester) RecordFailure(err error, budget int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.consecutiveFails++
	i.lastError = err.Error()
	if i.consecutiveFails >= budget {
		i.status = StatusUnhealthy
	}
}

// Snapshot returns the fields used to populate a registry record.
func (i *Ingester) Snapshot() (status Status, lastError string, lastIngested, lastTick time.Time, consecutiveFails int) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.status, i.lastError, i.lastIngested, i.lastTick, i.consecutiveFails
}
