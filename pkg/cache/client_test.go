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

func newTestCache(t *testing.T) cache.Cache {
	t.Helper()
	_, client := testutil.NewMiniredisClient(t)
	return cache.NewFromClient(logrus.New(), client)
}

func TestSetIfAbsent(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	ok, err := c.SetIfAbsent(ctx, "k", []byte("v1"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetIfAbsent(ctx, "k", []byte("v2"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second claim on the same key must fail")

	v, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v1", string(v))
}

func TestMSetMGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	err := c.MSet(ctx, map[string][]byte{"a": []byte("1"), "b": []byte("2")}, time.Minute)
	require.NoError(t, err)

	got, err := c.MGet(ctx, []string{"a", "b", "missing"})
	require.NoError(t, err)
	assert.Equal(t, "1", string(got["a"]))
	assert.Equal(t, "2", string(got["b"]))
	_, ok := got["missing"]
	assert.False(t, ok)
}

func TestWithLockExcludesConcurrentHolder(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = c.WithLock(ctx, "locks:ingesters", time.Minute, func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()

	<-entered
	err := c.WithLock(ctx, "locks:ingesters", time.Minute, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, cache.ErrLockHeld)

	close(release)
}

func TestPublishSubscribe(t *testing.T) {
	c := newTestCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, closeSub := c.Subscribe(ctx, "ns:ingester")
	defer func() { _ = closeSub() }()

	// miniredis subscriptions need a moment to register.
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, c.Publish(ctx, "ns:ingester", []byte(`{"ts":1}`)))

	select {
	case m := <-msgs:
		assert.Equal(t, "ns:ingester", m.Channel)
		assert.JSONEq(t, `{"ts":1}`, string(m.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive published message")
	}
}
