package transformer

import (
	"context"
	"fmt"
	"sync"

	"github.com/chomp-dev/chomp/pkg/ingester"
	"github.com/chomp-dev/chomp/pkg/selector"
)

// FieldError pairs a field name with the error that stopped its
// computation this tick (spec.md §7: field-level failures are
// tick-level, not fatal — the rest of the ingester's fields still run).
type FieldError struct {
	Field string
	Err   error
}

func (e FieldError) Error() string {
	return fmt.Sprintf("field %q: %v", e.Field, e.Err)
}

// Engine runs Phase 1 (selection), Phase 2 (the transformer chain),
// and Phase 3 (coercion) for one ingester's fields, in the order
// pkg/ingester/graph.go computed for it (spec.md §4.4).
type Engine struct {
	cross *CrossResolver

	mu      sync.Mutex
	program map[string]Node // cache key: "expr text" -> compiled AST
}

// New builds a transformer Engine. cross may be nil for ingesters that
// never use cross-resource references (evaluating one will then fail
// with ErrCrossResourceMiss, same as an unresolvable reference).
func New(cross *CrossResolver) *Engine {
	return &Engine{cross: cross, program: make(map[string]Node)}
}

func (e *Engine) compile(expr string) (Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if node, ok := e.program[expr]; ok {
		return node, nil
	}

	node, err := Parse(expr)
	if err != nil {
		return nil, err
	}

	e.program[expr] = node
	return node, nil
}

// Run evaluates every field of ing, in graph order, against raw. It
// returns the values that were computed successfully (for
// latest-value publishing) and the per-field errors for any that
// weren't — neither list blocks the other (spec.md §7).
func (e *Engine) Run(ctx context.Context, ing *ingester.Ingester, graph *ingester.FieldGraph, raw interface{}) (map[string]interface{}, []FieldError) {
	values := make(map[string]interface{}, len(ing.Fields))
	var fieldErrs []FieldError

	for _, name := range graph.Order() {
		field := ing.Field(name)
		if field == nil {
			continue
		}

		v, err := e.runField(ctx, ing, field, raw, values)
		if err != nil {
			fieldErrs = append(fieldErrs, FieldError{Field: name, Err: err})
			continue
		}

		field.SetValue(v)
		values[name] = v
	}

	return values, fieldErrs
}

// fieldRaw picks the payload a field selects against: its own target's
// bucket when raw came back as an ingester.RawByTarget (a loader that
// fetched more than one distinct target this tick), or raw itself
// unchanged for the common single-target case.
func fieldRaw(field *ingester.ResourceField, raw interface{}) interface{} {
	byTarget, ok := raw.(ingester.RawByTarget)
	if !ok {
		return raw
	}
	return byTarget[field.Target]
}

func (e *Engine) runField(ctx context.Context, ing *ingester.Ingester, field *ingester.ResourceField, raw interface{}, computed map[string]interface{}) (interface{}, error) {
	self, err := selector.Select(field.Selector, fieldRaw(field, raw))
	if err != nil {
		return nil, err
	}

	ec := &evalContext{
		ctx:  ctx,
		self: self,
		siblings: func(name string) (interface{}, bool) {
			if v, ok := computed[name]; ok {
				return v, true
			}
			if f := ing.Field(name); f != nil {
				if v := f.Value(); v != nil {
					return v, true
				}
			}
			return nil, false
		},
		cross: e.cross,
	}

	for _, expr := range field.Transformers {
		node, err := e.compile(expr)
		if err != nil {
			return nil, err
		}

		result, err := eval(node, ec)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", expr, err)
		}
		ec.self = result
	}

	coerced, err := ingester.Coerce(field.Type, ec.self)
	if err != nil {
		return nil, err
	}

	return coerced, nil
}

// EvalExpr compiles and runs a single expression against self, with no
// sibling or cross-resource context. Used by loaders to run an
// ingester's standalone `pre_transformer` or ws_api `reducer` code
// string, which binds only `{self}` — the same expression language
// Phase 2 uses for field transformer chains (spec.md §3: "optional
// code string applied to raw payload once"/"invoked per tick on
// accumulated epoch data").
func (e *Engine) EvalExpr(ctx context.Context, expr string, self interface{}) (interface{}, error) {
	node, err := e.compile(expr)
	if err != nil {
		return nil, err
	}

	ec := &evalContext{
		ctx:      ctx,
		self:     self,
		siblings: func(string) (interface{}, bool) { return nil, false },
		cross:    e.cross,
	}
	return eval(node, ec)
}
