package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chomp-dev/chomp/internal/testutil"
	"github.com/chomp-dev/chomp/pkg/cache"
)

func TestTryClaimSingleOwnerPerTick(t *testing.T) {
	_, client := testutil.NewMiniredisClient(t)
	c := cache.NewFromClient(logrus.New(), client)
	ctx := context.Background()

	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	ok1, err := cache.TryClaim(ctx, c, "claims:a", "owner-1", tick, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok1)

	ok2, err := cache.TryClaim(ctx, c, "claims:a", "owner-2", tick, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok2, "a second owner must not win the same tick")
}

func TestTryClaimTakesOverStaleTick(t *testing.T) {
	_, client := testutil.NewMiniredisClient(t)
	c := cache.NewFromClient(logrus.New(), client)
	ctx := context.Background()

	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(30 * time.Second)

	ok, err := cache.TryClaim(ctx, c, "claims:a", "owner-1", t0, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// A later tick with a still-live TTL takes over the claim key.
	ok, err = cache.TryClaim(ctx, c, "claims:a", "owner-2", t1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "a newer tick must be able to take over a stale claim record")
}
