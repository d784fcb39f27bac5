package cmd

import (
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"github.com/chomp-dev/chomp/pkg/config"
)

func loadConfig(path string) (*config.Config, error) {
	cfg := &config.Config{}

	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}

	yamlFile, err := os.ReadFile(path) //nolint:gosec // operator-provided config file path
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(yamlFile, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.SetDefaults()
	return cfg, nil
}
