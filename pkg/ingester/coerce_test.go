package ingester_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chomp-dev/chomp/pkg/ingester"
)

func TestCoerceFloatFromString(t *testing.T) {
	v, err := ingester.Coerce(ingester.TypeFloat64, "40000.5")
	require.NoError(t, err)
	assert.Equal(t, 40000.5, v)
}

func TestCoerceRejectsNegativeForUnsignedType(t *testing.T) {
	_, err := ingester.Coerce(ingester.TypeUint64, -1.0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ingester.ErrCoercionFailed)
}

// TestCoerceRejectsListForEveryScalarType guards against a
// wildcard-projected, un-aggregated selector result (spec.md §4.3,
// evm_logger series fields) reaching storage silently wrong — most
// notably TypeString, whose coercion is otherwise a bare
// fmt.Sprintf("%v", v) that would have stringified the list instead
// of failing.
func TestCoerceRejectsListForEveryScalarType(t *testing.T) {
	list := []interface{}{"0xabc", "0xdef"}

	for _, ft := range []ingester.FieldType{
		ingester.TypeString, ingester.TypeInt64, ingester.TypeFloat64,
		ingester.TypeBool, ingester.TypeBinary, ingester.TypeTimestamp,
	} {
		_, err := ingester.Coerce(ft, list)
		require.Error(t, err, "type %s should reject a list", ft)
		assert.ErrorIs(t, err, ingester.ErrCoercionFailed)
	}
}
