package ingester

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DiscoverFiles resolves the CLI/env configuration path list (spec.md
// §6: "a configuration path list (comma-separated namespaces)") into
// individual YAML file paths. Each entry may itself be a directory, in
// which case every *.yaml/*.yml file directly inside it is included.
func DiscoverFiles(paths []string) ([]string, error) {
	var files []string

	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}

		if !info.IsDir() {
			files = append(files, p)
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}

		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if ext == ".yaml" || ext == ".yml" {
				files = append(files, filepath.Join(p, e.Name()))
			}
		}
	}

	sort.Strings(files)
	return files, nil
}

// NamespaceOf derives a namespace identifier from a configuration file
// path: its base name without extension. It names the loaded
// Namespace only; cache keys use the cache configuration's own
// namespace prefix.
func NamespaceOf(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext)
}
