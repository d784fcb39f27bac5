package evmlogger_test

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chomp-dev/chomp/pkg/ingester"
	"github.com/chomp-dev/chomp/pkg/loader/evmlogger"
)

type fakeAdapter struct {
	head        uint64
	logsByRange map[[2]uint64][]evmlogger.Log
	pushed      func(evmlogger.Log)
}

func (f *fakeAdapter) HeadBlock(_ context.Context, _ string) (uint64, error) {
	return f.head, nil
}

func (f *fakeAdapter) FetchLogs(_ context.Context, _, _, _ string, from, to uint64) ([]evmlogger.Log, error) {
	return f.logsByRange[[2]uint64{from, to}], nil
}

func (f *fakeAdapter) Subscribe(_ context.Context, _, _, _ string, push func(evmlogger.Log)) (func(), error) {
	f.pushed = push
	return func() {}, nil
}

func buildIngester(t *testing.T, target string) *ingester.Ingester {
	t.Helper()
	fld := ingester.FieldSpec{}
	fld.Name = "transfer"
	fld.Type = ingester.TypeString
	fld.Selector = "root"

	spec := ingester.IngesterSpec{
		Kind:         ingester.KindEVMLogger,
		Interval:     "s10",
		ResourceType: ingester.ResourceSeries,
		Target:       target,
		Selector:     "Transfer(address,address,uint256)",
		Fields:       []ingester.FieldSpec{fld},
	}
	spec.Name = "erc20_transfer"
	require.NoError(t, spec.Validate())
	return ingester.New(spec)
}

func TestAcquirePolledFetchesBoundedChunk(t *testing.T) {
	adapter := &fakeAdapter{
		head: 10,
		logsByRange: map[[2]uint64][]evmlogger.Log{
			{1, 5}: {{Topics: []string{"0xsig", "0xfrom"}, Data: make([]byte, 32)}},
		},
	}
	ld := evmlogger.New(logrus.New(), adapter, 5, false)

	ing := buildIngester(t, "1:0xtoken")
	raw, vitals, err := ld.Acquire(t.Context(), ing)
	require.NoError(t, err)
	require.NotNil(t, vitals)

	tuples := raw.([]interface{})
	require.Len(t, tuples, 1)
	tuple := tuples[0].([]interface{})
	assert.Equal(t, "0xfrom", tuple[0])
}

func TestAcquirePolledAdvancesBlockWindow(t *testing.T) {
	adapter := &fakeAdapter{
		head: 10,
		logsByRange: map[[2]uint64][]evmlogger.Log{
			{1, 5}:  nil,
			{6, 10}: {{Topics: []string{"0xsig"}, Data: nil}},
		},
	}
	ld := evmlogger.New(logrus.New(), adapter, 5, false)
	ing := buildIngester(t, "1:0xtoken")

	raw1, _, err := ld.Acquire(t.Context(), ing)
	require.NoError(t, err)
	assert.Empty(t, raw1.([]interface{}))

	raw2, _, err := ld.Acquire(t.Context(), ing)
	require.NoError(t, err)
	assert.Len(t, raw2.([]interface{}), 1)
}

func TestAcquirePerpetualDrainsSubscriptionBuffer(t *testing.T) {
	adapter := &fakeAdapter{head: 1}
	ld := evmlogger.New(logrus.New(), adapter, 5, true)
	defer ld.Close()

	ing := buildIngester(t, "1:0xtoken")

	_, _, err := ld.Acquire(t.Context(), ing)
	require.NoError(t, err)
	require.NotNil(t, adapter.pushed)

	adapter.pushed(evmlogger.Log{Topics: []string{"0xsig", "0xa"}, Data: nil})
	adapter.pushed(evmlogger.Log{Topics: []string{"0xsig", "0xb"}, Data: nil})

	raw, _, err := ld.Acquire(t.Context(), ing)
	require.NoError(t, err)
	assert.Len(t, raw.([]interface{}), 2)
}

func TestAcquireRejectsMalformedTarget(t *testing.T) {
	adapter := &fakeAdapter{}
	ld := evmlogger.New(logrus.New(), adapter, 5, false)
	ing := buildIngester(t, "not-valid")

	_, _, err := ld.Acquire(t.Context(), ing)
	require.ErrorIs(t, err, evmlogger.ErrInvalidTarget)
}
