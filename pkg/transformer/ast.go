// Package transformer implements the Phase 2 expression chain
// described in spec.md §4.4: a closed-operator expression language
// over arithmetic, comparison, indexing, member access, builtin
// calls, and the three reference forms ({self}, {Field},
// {Ingester.Field}).
package transformer

// Node is any node of a parsed transformer expression.
type Node interface{}

// NumberLit is a numeric literal.
type NumberLit struct {
	Value float64
}

// StringLit is a quoted string literal.
type StringLit struct {
	Value string
}

// BoolLit is a boolean literal (true/false).
type BoolLit struct {
	Value bool
}

// SelfRef is `{self}`: the value produced by the previous step in the
// chain (or the Phase 1 selected value, for the first step).
type SelfRef struct{}

// FieldRef is `{FieldName}`: another field of the same ingester,
// read from its same-tick snapshot (spec.md §4.4).
type FieldRef struct {
	Field string
}

// CrossRef is `{Ingester.Field}`: the latest cached value of another
// ingester's field, read asynchronously (spec.md §4.4, testable
// property 7).
type CrossRef struct {
	Ingester string
	Field    string
}

// Unary is a prefix operator: `-x`, `!x`.
type Unary struct {
	Op string
	X  Node
}

// Binary is an infix operator: arithmetic, comparison, or logical.
type Binary struct {
	Op string
	X  Node
	Y  Node
}

// Call is a builtin function invocation, e.g. `float({self})`.
type Call struct {
	Name string
	Args []Node
}

// Index applies `[n]` positional indexing to X.
type Index struct {
	X Node
	I int
}

// Member applies `.name` attribute access to X, for builtins or
// references that yield map-shaped values.
type Member struct {
	X    Node
	Name string
}
