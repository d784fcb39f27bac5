package manager_test

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chomp-dev/chomp/internal/testutil"
	"github.com/chomp-dev/chomp/pkg/cache"
	"github.com/chomp-dev/chomp/pkg/ingester"
	"github.com/chomp-dev/chomp/pkg/ingester/manager"
)

func namespaceWith(t *testing.T, nsName string, names ...string) *ingester.Namespace {
	t.Helper()

	ns := &ingester.Namespace{Name: nsName, Graphs: make(map[string]*ingester.FieldGraph)}
	for _, name := range names {
		fld := ingester.FieldSpec{}
		fld.Name = "value"
		fld.Type = ingester.TypeFloat64
		fld.Selector = ".value"

		spec := ingester.IngesterSpec{
			Kind:         ingester.KindHTTPAPI,
			Interval:     "s10",
			ResourceType: ingester.ResourceValue,
			Fields:       []ingester.FieldSpec{fld},
		}
		spec.Name = name
		require.NoError(t, spec.Validate())

		ing := ingester.New(spec)
		graph, err := ingester.BuildFieldGraph(ing)
		require.NoError(t, err)

		ns.Ingesters = append(ns.Ingesters, ing)
		ns.Graphs[ing.Name] = graph
	}
	return ns
}

func TestManagerListAcrossNamespaces(t *testing.T) {
	ns1 := namespaceWith(t, "a", "ing_one")
	ns2 := namespaceWith(t, "b", "ing_two")

	m, err := manager.New([]*ingester.Namespace{ns1, ns2}, nil)
	require.NoError(t, err)

	assert.Len(t, m.List(), 2)

	got, err := m.Get("ing_one")
	require.NoError(t, err)
	assert.Equal(t, "ing_one", got.Name)
}

func TestManagerGetUnknownFails(t *testing.T) {
	m, err := manager.New(nil, nil)
	require.NoError(t, err)

	_, err = m.Get("nope")
	require.ErrorIs(t, err, manager.ErrNotFound)
}

func TestManagerRejectsDuplicateNameAcrossNamespaces(t *testing.T) {
	ns1 := namespaceWith(t, "a", "dup")
	ns2 := namespaceWith(t, "b", "dup")

	_, err := manager.New([]*ingester.Namespace{ns1, ns2}, nil)
	require.ErrorIs(t, err, manager.ErrDuplicateAcrossNamespaces)
}

func TestManagerStatusFallsBackToSnapshotBeforeReconcile(t *testing.T) {
	ns := namespaceWith(t, "a", "ing_one")
	_, client := testutil.NewMiniredisClient(t)
	c := cache.NewFromClient(logrus.New(), client)
	cfg := &cache.Config{Address: "ignored", Namespace: "chomp"}
	reg := ingester.NewRegistry(logrus.New(), c, cfg)

	m, err := manager.New([]*ingester.Namespace{ns}, reg)
	require.NoError(t, err)

	rec, err := m.Status(context.Background(), "ing_one")
	require.NoError(t, err)
	assert.Equal(t, ingester.StatusUnknown, rec.Status)
}

func TestManagerReconcileRegistersAllIngesters(t *testing.T) {
	ns := namespaceWith(t, "a", "ing_one", "ing_two")
	_, client := testutil.NewMiniredisClient(t)
	c := cache.NewFromClient(logrus.New(), client)
	cfg := &cache.Config{Address: "ignored", Namespace: "chomp"}
	reg := ingester.NewRegistry(logrus.New(), c, cfg)

	m, err := manager.New([]*ingester.Namespace{ns}, reg)
	require.NoError(t, err)
	require.NoError(t, m.Reconcile(context.Background()))

	rec, err := reg.Get(context.Background(), "ing_one")
	require.NoError(t, err)
	require.NotNil(t, rec)
}
