package processor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chomp-dev/chomp/pkg/ingester"
	"github.com/chomp-dev/chomp/pkg/loader/processor"
)

func TestAcquireReturnsNilPayload(t *testing.T) {
	fld := ingester.FieldSpec{}
	fld.Name = "total"
	fld.Type = ingester.TypeFloat64
	fld.Transformers = []string{"{eth_price.price}"}

	spec := ingester.IngesterSpec{
		Kind:         ingester.KindProcessor,
		Interval:     "s10",
		ResourceType: ingester.ResourceValue,
		Fields:       []ingester.FieldSpec{fld},
	}
	spec.Name = "eth_price_doubled"
	require.NoError(t, spec.Validate())
	ing := ingester.New(spec)

	ld := processor.New()
	raw, vitals, err := ld.Acquire(t.Context(), ing)
	require.NoError(t, err)
	assert.Nil(t, raw)
	assert.Equal(t, 1, vitals.FieldCount)
}
