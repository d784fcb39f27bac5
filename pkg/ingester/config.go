package ingester

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chomp-dev/chomp/pkg/interval"
)

// Static configuration errors (spec.md §4.1, §7: "Config... fatal at
// startup").
var (
	ErrNameRequired          = errors.New("ingester name is required")
	ErrFieldsRequired        = errors.New("ingester must declare at least one field")
	ErrFieldNameRequired     = errors.New("field name is required")
	ErrDuplicateIngesterName = errors.New("duplicate ingester name")
	ErrDuplicateFieldName    = errors.New("duplicate field name")
	ErrInvalidInterval       = errors.New("invalid interval tag")
	ErrInvalidProbability    = errors.New("probability must be in [0,1]")
)

// ParamsValue holds `params`, which the YAML schema allows to be a
// map, a list, or a scalar string (spec.md §6).
type ParamsValue struct {
	Map    map[string]string `yaml:"-"`
	List   []string          `yaml:"-"`
	Scalar string            `yaml:"-"`
}

// UnmarshalYAML implements custom decoding for the polymorphic params
// field.
func (p *ParamsValue) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var asMap map[string]string
	if err := unmarshal(&asMap); err == nil {
		p.Map = asMap
		return nil
	}

	var asList []string
	if err := unmarshal(&asList); err == nil {
		p.List = asList
		return nil
	}

	var asScalar string
	if err := unmarshal(&asScalar); err == nil {
		p.Scalar = asScalar
		return nil
	}

	return fmt.Errorf("params must be a map, list, or string")
}

// MarshalJSON encodes whichever of Map/List/Scalar is set, so params
// can be sent as a subscription message the same polymorphic shape it
// was configured in (spec.md §6).
func (p *ParamsValue) MarshalJSON() ([]byte, error) {
	switch {
	case p.Map != nil:
		return json.Marshal(p.Map)
	case p.List != nil:
		return json.Marshal(p.List)
	default:
		return json.Marshal(p.Scalar)
	}
}

// FieldSpec is the YAML shape of one entry in `fields` (spec.md §6).
// It shares its schema with the parent IngesterSpec minus
// interval/fields/resource_type, which is why both embed fieldCommon.
type FieldSpec struct {
	fieldCommon `yaml:",inline"`
}

// fieldCommon holds the attributes common to both an ingester and its
// fields, used for the inheritance resolution in spec.md §4.1 ("field
// inherits target/selector/type from parent if unset").
type fieldCommon struct {
	Name           string            `yaml:"name"`
	Type           FieldType         `yaml:"type,omitempty"`
	Target         string            `yaml:"target,omitempty"`
	Selector       string            `yaml:"selector,omitempty"`
	Transformers   []string          `yaml:"transformers,omitempty"`
	Transient      bool              `yaml:"transient,omitempty"`
	Tags           []string          `yaml:"tags,omitempty"`
	Headers        map[string]string `yaml:"headers,omitempty"`
	Params         *ParamsValue      `yaml:"params,omitempty"`
	PreTransformer string            `yaml:"pre_transformer,omitempty"`
	Handler        string            `yaml:"handler,omitempty"`
	Reducer        string            `yaml:"reducer,omitempty"`
}

// IngesterSpec is the YAML shape of one entry under a kind's list
// (spec.md §6).
type IngesterSpec struct {
	fieldCommon  `yaml:",inline"`
	Interval     interval.Tag `yaml:"interval"`
	ResourceType ResourceType `yaml:"resource_type"`
	Probability  *float64     `yaml:"probability,omitempty"`
	Fields       []FieldSpec  `yaml:"fields"`

	// Kind is not part of the YAML shape of a single entry; it is set
	// by the loader from the top-level map key.
	Kind Kind `yaml:"-"`
}

// File is the root YAML document: top-level keys are ingester kinds
// mapping to lists of entries (spec.md §6).
type File map[Kind][]IngesterSpec

// ProbabilityOrDefault returns the configured probability, defaulting to 1
// (spec.md §3).
func (s *IngesterSpec) ProbabilityOrDefault() float64 {
	if s.Probability == nil {
		return 1
	}
	return *s.Probability
}

// Validate performs structural validation of a single ingester entry:
// required fields, known interval, known resource type, non-empty and
// duplicate-free field list (spec.md §4.1).
func (s *IngesterSpec) Validate() error {
	if s.Name == "" {
		return ErrNameRequired
	}

	if !interval.Valid(s.Interval) {
		return fmt.Errorf("%w: ingester %q: %q", ErrInvalidInterval, s.Name, s.Interval)
	}

	if err := s.ResourceType.Validate(); err != nil {
		return fmt.Errorf("ingester %q: %w", s.Name, err)
	}

	p := s.ProbabilityOrDefault()
	if p < 0 || p > 1 {
		return fmt.Errorf("%w: ingester %q: %v", ErrInvalidProbability, s.Name, p)
	}

	if len(s.Fields) == 0 {
		return fmt.Errorf("ingester %q: %w", s.Name, ErrFieldsRequired)
	}

	seen := make(map[string]struct{}, len(s.Fields))
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("ingester %q, field %d: %w", s.Name, i, ErrFieldNameRequired)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("ingester %q, field %q: %w", s.Name, f.Name, ErrDuplicateFieldName)
		}
		seen[f.Name] = struct{}{}

		if f.Type != "" && !ValidFieldType(f.Type) {
			return fmt.Errorf("ingester %q, field %q: %w: %q", s.Name, f.Name, ErrUnknownFieldType, f.Type)
		}
	}

	return nil
}

// ResolveInheritance copies target/selector/type down from the
// ingester to any field that doesn't set its own (spec.md §4.1).
func (s *IngesterSpec) ResolveInheritance() {
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Target == "" {
			f.Target = s.Target
		}
		if f.Selector == "" {
			f.Selector = s.Selector
		}
		if f.Type == "" {
			f.Type = s.Type
		}
	}
}

// ValidateFile validates every entry in a parsed file, rejecting
// duplicate ingester names within the file (global uniqueness across
// files is enforced by the registry at reconciliation time, spec.md
// §3).
func ValidateFile(f File) error {
	seen := make(map[string]struct{})

	for kind, entries := range f {
		if !ValidKind(kind) {
			return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
		}

		for i := range entries {
			entry := &entries[i]
			entry.Kind = kind
			entry.ResolveInheritance()

			if err := entry.Validate(); err != nil {
				return err
			}

			if _, dup := seen[entry.Name]; dup {
				return fmt.Errorf("%w: %q", ErrDuplicateIngesterName, entry.Name)
			}
			seen[entry.Name] = struct{}{}
		}
	}

	return nil
}
