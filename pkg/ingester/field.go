package ingester

import "sync"

// ResourceField is the runtime representation of one field entry:
// spec.md §3's ResourceField, plus the last computed value the
// transformer engine and store component read/write each tick.
type ResourceField struct {
	Name         string
	Type         FieldType
	Selector     string
	Target       string
	Transformers []string
	Transient    bool
	Tags         []string
	Handler      string
	Reducer      string
	Params       *ParamsValue

	mu    sync.RWMutex
	value interface{}
}

// NewResourceField builds a runtime field from its parsed spec.
func NewResourceField(spec FieldSpec) *ResourceField {
	return &ResourceField{
		Name:         spec.Name,
		Type:         spec.Type,
		Selector:     spec.Selector,
		Target:       spec.Target,
		Transformers: spec.Transformers,
		Transient:    spec.Transient,
		Tags:         spec.Tags,
		Handler:      spec.Handler,
		Reducer:      spec.Reducer,
		Params:       spec.Params,
	}
}

// Value returns the field's last computed value (same-tick snapshot
// reads per spec.md §4.4 use this for `{FieldName}` references).
func (f *ResourceField) Value() interface{} {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.value
}

// SetValue stores the field's newly computed value for this tick.
func (f *ResourceField) SetValue(v interface{}) {
	f.mu.Lock()
	f.value = v
	f.mu.Unlock()
}
