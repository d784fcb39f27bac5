// Package cache abstracts the shared key/value + pub/sub service used
// for claims, the ingester registry, latest-value storage and
// broadcast (spec.md §4.6).
package cache

import (
	"errors"
	"time"
)

// ErrAddressRequired is returned when no Redis address is configured.
var ErrAddressRequired = errors.New("cache address is required")

// Config holds connection settings for the cache façade's reference
// Redis adapter.
type Config struct {
	Address      string        `yaml:"address"`
	Password     string        `yaml:"password,omitempty"`
	DB           int           `yaml:"db,omitempty"`
	Namespace    string        `yaml:"namespace" default:"chomp"`
	DialTimeout  time.Duration `yaml:"dialTimeout,omitempty"`
	ReadTimeout  time.Duration `yaml:"readTimeout,omitempty"`
	WriteTimeout time.Duration `yaml:"writeTimeout,omitempty"`
	PoolSize     int           `yaml:"poolSize,omitempty"`
}

// Validate checks the configuration and applies defaults.
func (c *Config) Validate() error {
	if c.Address == "" {
		return ErrAddressRequired
	}
	if c.Namespace == "" {
		c.Namespace = "chomp"
	}
	return nil
}
