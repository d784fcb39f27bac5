package chain_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chomp-dev/chomp/pkg/ingester"
	"github.com/chomp-dev/chomp/pkg/loader/chain"
)

type fakeAdapter struct {
	failFor map[string]int // endpoint -> number of remaining failures
	tuple   []interface{}
	calls   []string
}

func (f *fakeAdapter) Call(_ context.Context, endpoint, _, _, _ string) ([]interface{}, error) {
	f.calls = append(f.calls, endpoint)
	if f.failFor[endpoint] > 0 {
		f.failFor[endpoint]--
		return nil, errors.New("endpoint timeout")
	}
	return f.tuple, nil
}

func buildIngester(t *testing.T, target, method string) *ingester.Ingester {
	t.Helper()
	fld := ingester.FieldSpec{}
	fld.Name = "balance"
	fld.Type = ingester.TypeUint64
	fld.Selector = "root"
	fld.Transformers = []string{"{self}[0]"}

	spec := ingester.IngesterSpec{
		Kind:         ingester.KindEVMCaller,
		Interval:     "s10",
		ResourceType: ingester.ResourceValue,
		Target:       target,
		Selector:     method,
		Fields:       []ingester.FieldSpec{fld},
	}
	spec.Name = "eth_balance"
	require.NoError(t, spec.Validate())
	return ingester.New(spec)
}

func TestAcquireReturnsDecodedTuple(t *testing.T) {
	adapter := &fakeAdapter{tuple: []interface{}{float64(42)}}
	ld := chain.New(logrus.New(), adapter, []string{"http://rpc1"}, time.Millisecond, time.Millisecond)

	ing := buildIngester(t, "1:0xabc", "balanceOf(address)")
	raw, vitals, err := ld.Acquire(t.Context(), ing)
	require.NoError(t, err)
	require.NotNil(t, vitals)
	assert.Equal(t, []interface{}{float64(42)}, raw)
}

func TestAcquireFallsBackToSecondEndpointOnFailure(t *testing.T) {
	adapter := &fakeAdapter{
		failFor: map[string]int{"http://rpc1": 1},
		tuple:   []interface{}{float64(7)},
	}
	ld := chain.New(logrus.New(), adapter, []string{"http://rpc1", "http://rpc2"}, time.Hour, time.Hour)

	ing := buildIngester(t, "1:0xabc", "balanceOf(address)")

	_, _, err := ld.Acquire(t.Context(), ing)
	require.Error(t, err) // rpc1 fails this attempt; caller (job.attempt) retries

	raw, _, err := ld.Acquire(t.Context(), ing)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{float64(7)}, raw)
	assert.Equal(t, []string{"http://rpc1", "http://rpc2"}, adapter.calls)
}

func TestAcquireRejectsMalformedTarget(t *testing.T) {
	adapter := &fakeAdapter{tuple: []interface{}{float64(1)}}
	ld := chain.New(logrus.New(), adapter, []string{"http://rpc1"}, time.Millisecond, time.Millisecond)

	ing := buildIngester(t, "not-a-valid-target", "balanceOf(address)")
	_, _, err := ld.Acquire(t.Context(), ing)
	require.ErrorIs(t, err, chain.ErrInvalidTarget)
}
