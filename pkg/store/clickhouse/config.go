// Package clickhouse is the reference TSDB adapter for the store
// component (spec.md §4.5). Chomp talks to ClickHouse over its native
// HTTP interface; the schema layer (schema.go) is specific to Chomp's
// ingester/field model.
package clickhouse

import (
	"errors"
	"os"
	"time"
)

// ErrURLRequired is returned when no ClickHouse URL is configured.
var ErrURLRequired = errors.New("URL is required")

// Config contains ClickHouse connection settings.
type Config struct {
	URL           string        `yaml:"url" validate:"required,url"`
	Database      string        `yaml:"database,omitempty"`
	Cluster       string        `yaml:"cluster,omitempty"`
	QueryTimeout  time.Duration `yaml:"queryTimeout,omitempty"`
	InsertTimeout time.Duration `yaml:"insertTimeout,omitempty"`
	Debug         bool          `yaml:"debug,omitempty"`
	KeepAlive     time.Duration `yaml:"keepAlive,omitempty"`
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrURLRequired
	}
	return nil
}

// SetDefaults sets default values for the configuration.
func (c *Config) SetDefaults() {
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 30 * time.Second
	}
	if c.InsertTimeout == 0 {
		c.InsertTimeout = 5 * time.Minute
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = 30 * time.Second
	}
	if c.Database == "" {
		c.Database = "default"
	}
}

// MapDatabase maps a logical database name to a physical database
// name, honoring CHOMP_DATABASE_PREFIX for multi-tenant deployments
// sharing one ClickHouse cluster.
func (c *Config) MapDatabase(logicalName string) string {
	if prefix := os.Getenv("CHOMP_DATABASE_PREFIX"); prefix != "" {
		return prefix + logicalName
	}
	return logicalName
}
