package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chomp-dev/chomp/internal/testutil"
	"github.com/chomp-dev/chomp/pkg/cache"
	"github.com/chomp-dev/chomp/pkg/ingester"
	"github.com/chomp-dev/chomp/pkg/loader"
	"github.com/chomp-dev/chomp/pkg/store"
	"github.com/chomp-dev/chomp/pkg/transformer"
)

type fakeLoader struct {
	mu      sync.Mutex
	calls   int
	failN   int // fail this many calls before succeeding
	raw     interface{}
	lastErr error
}

func (f *fakeLoader) Acquire(_ context.Context, _ *ingester.Ingester) (interface{}, *loader.Vitals, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failN {
		return nil, nil, errors.New("transient load failure")
	}
	return f.raw, &loader.Vitals{Latency: time.Millisecond, Bytes: 16}, nil
}

func (f *fakeLoader) Close() error { return nil }

type fakeTSDB struct {
	mu     sync.Mutex
	rows   []store.Row
	schema int
}

func (f *fakeTSDB) EnsureSchema(_ context.Context, _ *ingester.Ingester) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schema++
	return nil
}

func (f *fakeTSDB) Write(_ context.Context, _ *ingester.Ingester, row store.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, row)
	return nil
}

func (f *fakeTSDB) Close() error { return nil }

func buildTestIngester(t *testing.T) *ingester.Ingester {
	t.Helper()
	fld := ingester.FieldSpec{}
	fld.Name = "price"
	fld.Type = ingester.TypeFloat64
	fld.Selector = ".price"

	spec := ingester.IngesterSpec{
		Kind:         ingester.KindHTTPAPI,
		Interval:     "s10",
		ResourceType: ingester.ResourceValue,
		Fields:       []ingester.FieldSpec{fld},
	}
	spec.Name = "eth_price"
	require.NoError(t, spec.Validate())
	return ingester.New(spec)
}

func newTestJob(t *testing.T, ld *fakeLoader, tsdb *fakeTSDB, ing *ingester.Ingester, cfg *Config) *Job {
	t.Helper()
	_, client := testutil.NewMiniredisClient(t)
	c := cache.NewFromClient(logrus.New(), client)
	cacheCfg := &cache.Config{Address: "ignored", Namespace: "chomp"}

	graph, err := ingester.BuildFieldGraph(ing)
	require.NoError(t, err)

	cfg.SetDefaults()
	cfg.Cooldown = time.Millisecond
	cfg.JitterFraction = 0

	return NewJob(
		logrus.New(), cfg, c, cacheCfg, "test-owner",
		map[string]*ingester.Ingester{ing.Name: ing},
		map[string]*ingester.FieldGraph{ing.Name: graph},
		map[ingester.Kind]loader.Loader{ing.Kind: ld},
		transformer.New(nil),
		tsdb,
		store.NewPublisher(logrus.New(), c, cacheCfg),
		ingester.NewRegistry(logrus.New(), c, cacheCfg),
		nil,
	)
}

func TestJobRunTickStoresSuccessfulAttempt(t *testing.T) {
	ing := buildTestIngester(t)
	ld := &fakeLoader{raw: map[string]interface{}{"price": 123.45}}
	tsdb := &fakeTSDB{}

	j := newTestJob(t, ld, tsdb, ing, &Config{})
	tick := time.Unix(1700000000, 0)

	j.runTick(context.Background(), ing, tick)

	require.Len(t, tsdb.rows, 1)
	assert.InDelta(t, 123.45, tsdb.rows[0].Values["price"].(float64), 1e-9)

	status, lastErr, _, lastTick, fails := ing.Snapshot()
	assert.Equal(t, ingester.StatusHealthy, status)
	assert.Empty(t, lastErr)
	assert.Equal(t, 0, fails)
	assert.Equal(t, tick, lastTick)
}

func TestJobRunTickRetriesWithinBudgetThenSucceeds(t *testing.T) {
	ing := buildTestIngester(t)
	ld := &fakeLoader{raw: map[string]interface{}{"price": 1.0}, failN: 2}
	tsdb := &fakeTSDB{}

	j := newTestJob(t, ld, tsdb, ing, &Config{RetryBudget: 5})
	j.runTick(context.Background(), ing, time.Unix(1700000000, 0))

	require.Len(t, tsdb.rows, 1, "should succeed on the third attempt, within the retry budget")
	status, _, _, _, fails := ing.Snapshot()
	assert.Equal(t, ingester.StatusHealthy, status)
	assert.Equal(t, 0, fails)
}

func TestJobRunTickAbandonsAfterRetryBudgetExhausted(t *testing.T) {
	ing := buildTestIngester(t)
	ld := &fakeLoader{raw: map[string]interface{}{"price": 1.0}, failN: 99}
	tsdb := &fakeTSDB{}

	j := newTestJob(t, ld, tsdb, ing, &Config{RetryBudget: 3})
	j.runTick(context.Background(), ing, time.Unix(1700000000, 0))

	assert.Empty(t, tsdb.rows)
	status, lastErr, _, _, fails := ing.Snapshot()
	assert.Equal(t, ingester.StatusUnhealthy, status)
	assert.NotEmpty(t, lastErr)
	assert.Equal(t, 3, fails)
}

func TestJobRunTickSkipsWhenClaimLost(t *testing.T) {
	ing := buildTestIngester(t)
	ld := &fakeLoader{raw: map[string]interface{}{"price": 1.0}}
	tsdb := &fakeTSDB{}

	j := newTestJob(t, ld, tsdb, ing, &Config{})

	tick := time.Unix(1700000000, 0)
	ttl := 9 * time.Second
	claimed, err := cache.TryClaim(context.Background(), j.cache, j.cacheCfg.ClaimKey(ing.Name), "someone-else", tick, ttl)
	require.NoError(t, err)
	require.True(t, claimed)

	j.runTick(context.Background(), ing, tick)

	assert.Empty(t, tsdb.rows, "a tick already claimed by another owner must not be processed")
	assert.Equal(t, 0, ld.calls)
}
