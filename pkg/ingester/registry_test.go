package ingester_test

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chomp-dev/chomp/internal/testutil"
	"github.com/chomp-dev/chomp/pkg/cache"
	"github.com/chomp-dev/chomp/pkg/ingester"
)

func newIngester(t *testing.T, name string, fields []ingester.FieldSpec) *ingester.Ingester {
	t.Helper()
	spec := ingester.IngesterSpec{
		Kind:         ingester.KindHTTPAPI,
		Interval:     "s10",
		ResourceType: ingester.ResourceValue,
		Fields:       fields,
	}
	spec.Name = name
	require.NoError(t, spec.Validate())
	return ingester.New(spec)
}

func fields() []ingester.FieldSpec {
	f := ingester.FieldSpec{}
	f.Name = "price"
	f.Type = ingester.TypeFloat64
	f.Selector = "price"
	return []ingester.FieldSpec{f}
}

func TestRegistryReconcileRegistersNewIngester(t *testing.T) {
	_, client := testutil.NewMiniredisClient(t)
	c := cache.NewFromClient(logrus.New(), client)
	cfg := &cache.Config{Address: "ignored", Namespace: "chomp"}
	ctx := context.Background()

	reg := ingester.NewRegistry(logrus.New(), c, cfg)
	ing := newIngester(t, "eth_price", fields())

	require.NoError(t, reg.Reconcile(ctx, []*ingester.Ingester{ing}))

	rec, err := reg.Get(ctx, "eth_price")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, ing.SpecHash, rec.SpecHash)
	assert.Equal(t, ingester.KindHTTPAPI, rec.Kind)
}

func TestRegistryReconcileAcceptsMatchingSpec(t *testing.T) {
	_, client := testutil.NewMiniredisClient(t)
	c := cache.NewFromClient(logrus.New(), client)
	cfg := &cache.Config{Address: "ignored", Namespace: "chomp"}
	ctx := context.Background()

	reg := ingester.NewRegistry(logrus.New(), c, cfg)
	ing := newIngester(t, "eth_price", fields())

	require.NoError(t, reg.Reconcile(ctx, []*ingester.Ingester{ing}))
	require.NoError(t, reg.Reconcile(ctx, []*ingester.Ingester{ing}), "a second process loading the identical spec must not fail")
}

func TestRegistryReconcileFailsOnSpecConflict(t *testing.T) {
	_, client := testutil.NewMiniredisClient(t)
	c := cache.NewFromClient(logrus.New(), client)
	cfg := &cache.Config{Address: "ignored", Namespace: "chomp"}
	ctx := context.Background()

	reg := ingester.NewRegistry(logrus.New(), c, cfg)

	original := newIngester(t, "eth_price", fields())
	require.NoError(t, reg.Reconcile(ctx, []*ingester.Ingester{original}))

	changed := fields()
	changed[0].Type = ingester.TypeInt64
	conflicting := newIngester(t, "eth_price", changed)

	err := reg.Reconcile(ctx, []*ingester.Ingester{conflicting})
	require.Error(t, err)
	assert.ErrorIs(t, err, ingester.ErrSpecConflict)
}

func TestRegistryUpdateStatusPreservesSpecHash(t *testing.T) {
	_, client := testutil.NewMiniredisClient(t)
	c := cache.NewFromClient(logrus.New(), client)
	cfg := &cache.Config{Address: "ignored", Namespace: "chomp"}
	ctx := context.Background()

	reg := ingester.NewRegistry(logrus.New(), c, cfg)
	ing := newIngester(t, "eth_price", fields())
	require.NoError(t, reg.Reconcile(ctx, []*ingester.Ingester{ing}))

	ing.RecordSuccess(ing.LastTick())
	require.NoError(t, reg.UpdateStatus(ctx, ing))

	rec, err := reg.Get(ctx, "eth_price")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, ing.SpecHash, rec.SpecHash)
	assert.Equal(t, ingester.StatusHealthy, rec.Status)
}
