package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidateRejectsNonPositiveMaxJobs(t *testing.T) {
	cfg := &Config{MaxJobs: 0, RetryBudget: 5}
	cfg.SetDefaults()
	cfg.MaxJobs = 0
	require.ErrorIs(t, cfg.Validate(), ErrInvalidMaxJobs)
}

func TestConfigValidateRejectsNonPositiveRetryBudget(t *testing.T) {
	cfg := &Config{MaxJobs: 10, RetryBudget: 0}
	require.ErrorIs(t, cfg.Validate(), ErrInvalidRetryBudget)
}

func TestConfigSetDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()

	assert.Equal(t, 10, cfg.MaxJobs)
	assert.Equal(t, 5, cfg.RetryBudget)
	assert.Equal(t, 2*time.Second, cfg.Cooldown)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	require.NoError(t, cfg.Validate())
}

func TestCooldownWithJitterNeverBelowBase(t *testing.T) {
	cfg := &Config{Cooldown: 2 * time.Second, JitterFraction: 0.25}

	for i := 0; i < 20; i++ {
		d := cfg.cooldownWithJitter()
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.LessOrEqual(t, d, 2*time.Second+500*time.Millisecond)
	}
}
