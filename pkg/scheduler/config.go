// Package scheduler wall-clock-aligns ticks per ingester, dispatches
// one job per tick through a bounded asynq worker pool, and enforces
// the per-ingester retry budget and cooldown (spec.md §4.2).
package scheduler

import (
	"errors"
	"math/rand"
	"time"
)

// Define static errors.
var (
	ErrInvalidMaxJobs     = errors.New("max jobs must be positive")
	ErrInvalidRetryBudget = errors.New("retry budget must be positive")
)

// Config defines scheduler configuration.
type Config struct {
	MaxJobs         int           `yaml:"maxJobs" default:"10"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"10s"`

	// RetryBudget is the number of consecutive tick failures tolerated
	// before the tick is abandoned and the ingester marked unhealthy
	// (spec.md §4.2 default: 5).
	RetryBudget int `yaml:"retryBudget" default:"5"`

	// Cooldown is the base delay between retry attempts within one
	// tick's retry budget (spec.md §4.2 default: 2s).
	Cooldown time.Duration `yaml:"cooldown" default:"2s"`

	// JitterFraction adds up to this fraction of Cooldown as random
	// jitter, so a cluster-wide transient failure doesn't retry in
	// lockstep.
	JitterFraction float64 `yaml:"jitterFraction" default:"0.25"`
}

// Validate checks if the scheduler configuration is valid.
func (c *Config) Validate() error {
	if c.MaxJobs <= 0 {
		return ErrInvalidMaxJobs
	}
	if c.RetryBudget <= 0 {
		return ErrInvalidRetryBudget
	}
	return nil
}

// SetDefaults fills in zero-valued fields with spec.md §4.2 defaults.
func (c *Config) SetDefaults() {
	if c.MaxJobs == 0 {
		c.MaxJobs = 10
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.RetryBudget == 0 {
		c.RetryBudget = 5
	}
	if c.Cooldown == 0 {
		c.Cooldown = 2 * time.Second
	}
	if c.JitterFraction == 0 {
		c.JitterFraction = 0.25
	}
}

// cooldownWithJitter returns the delay to wait before a retry
// attempt, adding up to JitterFraction of Cooldown as jitter.
func (c *Config) cooldownWithJitter() time.Duration {
	jitter := time.Duration(rand.Float64() * c.JitterFraction * float64(c.Cooldown)) //nolint:gosec // scheduling jitter, not security-sensitive
	return c.Cooldown + jitter
}
