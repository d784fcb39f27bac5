package testutil

import (
	"github.com/chomp-dev/chomp/pkg/ingester"
	"github.com/chomp-dev/chomp/pkg/interval"
)

// FieldOption is a functional option for customizing a test field.
type FieldOption func(*ingester.FieldSpec)

// WithFieldSelector sets the field's selector.
func WithFieldSelector(selector string) FieldOption {
	return func(f *ingester.FieldSpec) {
		f.Selector = selector
	}
}

// WithFieldTransformers sets the field's transformer expression chain.
func WithFieldTransformers(exprs ...string) FieldOption {
	return func(f *ingester.FieldSpec) {
		f.Transformers = exprs
	}
}

// WithFieldTransient marks the field transient (never persisted).
func WithFieldTransient() FieldOption {
	return func(f *ingester.FieldSpec) {
		f.Transient = true
	}
}

// NewField builds a FieldSpec of the given name and type.
func NewField(name string, fieldType ingester.FieldType, opts ...FieldOption) ingester.FieldSpec {
	f := ingester.FieldSpec{}
	f.Name = name
	f.Type = fieldType

	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// IngesterOption is a functional option for customizing a test
// ingester spec.
type IngesterOption func(*ingester.IngesterSpec)

// WithIntervalTag overrides the default "s10" interval tag.
func WithIntervalTag(tag interval.Tag) IngesterOption {
	return func(s *ingester.IngesterSpec) {
		s.Interval = tag
	}
}

// WithResourceType overrides the default ResourceValue resource type.
func WithResourceType(rt ingester.ResourceType) IngesterOption {
	return func(s *ingester.IngesterSpec) {
		s.ResourceType = rt
	}
}

// WithProbability sets the ingester's sampling probability.
func WithProbability(p float64) IngesterOption {
	return func(s *ingester.IngesterSpec) {
		s.Probability = &p
	}
}

// WithHeaders sets the ingester's request headers.
func WithHeaders(headers map[string]string) IngesterOption {
	return func(s *ingester.IngesterSpec) {
		s.Headers = headers
	}
}

// NewIngesterSpec builds an inheritance-resolved IngesterSpec of
// kind, name and target with the given fields. It does not call
// Validate; NewIngester does.
func NewIngesterSpec(
	kind ingester.Kind,
	name, target string,
	fields []ingester.FieldSpec,
	opts ...IngesterOption,
) ingester.IngesterSpec {
	s := ingester.IngesterSpec{
		Interval:     "s10",
		ResourceType: ingester.ResourceValue,
		Fields:       fields,
	}
	s.Name = name
	s.Target = target
	s.Kind = kind

	for _, opt := range opts {
		opt(&s)
	}

	s.ResolveInheritance()
	return s
}

// NewIngester builds a runtime Ingester from a freshly constructed
// spec (see NewIngesterSpec), panicking if it doesn't validate — a
// test fixture that fails Validate is a bug in the test, not a case
// under test.
func NewIngester(kind ingester.Kind, name, target string, fields []ingester.FieldSpec, opts ...IngesterOption) *ingester.Ingester {
	spec := NewIngesterSpec(kind, name, target, fields, opts...)
	if err := spec.Validate(); err != nil {
		panic(err)
	}
	return ingester.New(spec)
}

// NewNamespace builds a Namespace (the loader's output shape) from a
// fixed set of ingesters, building each one's field graph the same
// way ingester.LoadFile does.
func NewNamespace(name string, ingesters ...*ingester.Ingester) *ingester.Namespace {
	graphs := make(map[string]*ingester.FieldGraph, len(ingesters))
	for _, ing := range ingesters {
		graph, err := ingester.BuildFieldGraph(ing)
		if err != nil {
			panic(err)
		}
		graphs[ing.Name] = graph
	}

	return &ingester.Namespace{
		Name:      name,
		Ingesters: ingesters,
		Graphs:    graphs,
	}
}
