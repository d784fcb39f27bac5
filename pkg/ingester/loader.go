package ingester

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Namespace is one loaded, validated configuration file: an isolated
// set of ingesters plus the field graphs computed for each of them
// (spec.md §4.1, §4.4).
type Namespace struct {
	Name      string
	Path      string
	Ingesters []*Ingester
	Graphs    map[string]*FieldGraph // keyed by ingester name
}

// LoadFile parses, validates, and builds the runtime ingesters for a
// single configuration file (spec.md §4.1: "Validation rejects
// unknown keys, wrong scalar types, invalid interval tags, empty field
// lists, duplicate names").
func LoadFile(path string) (*Namespace, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // operator-provided config path
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)

	var file File
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := ValidateFile(file); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}

	ns := &Namespace{
		Name:   NamespaceOf(path),
		Path:   path,
		Graphs: make(map[string]*FieldGraph),
	}

	for _, entries := range file {
		for _, spec := range entries {
			ing := New(spec)

			graph, err := BuildFieldGraph(ing)
			if err != nil {
				return nil, err
			}

			ns.Ingesters = append(ns.Ingesters, ing)
			ns.Graphs[ing.Name] = graph
		}
	}

	return ns, nil
}

// LoadAll loads every configuration path (file or directory) into its
// own namespace.
func LoadAll(paths []string) ([]*Namespace, error) {
	files, err := DiscoverFiles(paths)
	if err != nil {
		return nil, err
	}

	namespaces := make([]*Namespace, 0, len(files))
	for _, f := range files {
		ns, err := LoadFile(f)
		if err != nil {
			return nil, err
		}
		namespaces = append(namespaces, ns)
	}

	return namespaces, nil
}
