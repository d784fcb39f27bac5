package transformer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArithmeticPrecedence(t *testing.T) {
	node, err := Parse("1+2*3")
	require.NoError(t, err)

	bin, ok := node.(*Binary)
	require.True(t, ok)
	assert.Equal(t, "+", bin.Op)

	right, ok := bin.Y.(*Binary)
	require.True(t, ok)
	assert.Equal(t, "*", right.Op)
}

func TestParseRoundSuffixExpandsToCall(t *testing.T) {
	node, err := Parse("round6")
	require.NoError(t, err)

	call, ok := node.(*Call)
	require.True(t, ok)
	assert.Equal(t, "round", call.Name)
	require.Len(t, call.Args, 2)

	_, isSelf := call.Args[0].(*SelfRef)
	assert.True(t, isSelf)

	n, ok := call.Args[1].(*NumberLit)
	require.True(t, ok)
	assert.InDelta(t, 6.0, n.Value, 1e-9)
}

func TestParseCrossResourceReference(t *testing.T) {
	node, err := Parse("float({self})*{A.USDT}")
	require.NoError(t, err)

	bin, ok := node.(*Binary)
	require.True(t, ok)
	assert.Equal(t, "*", bin.Op)

	cross, ok := bin.Y.(*CrossRef)
	require.True(t, ok)
	assert.Equal(t, "A", cross.Ingester)
	assert.Equal(t, "USDT", cross.Field)
}

func TestParseUnknownBareIdentifierFails(t *testing.T) {
	_, err := Parse("bogus")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)
}

func TestParseComparisonAndLogical(t *testing.T) {
	node, err := Parse("{self} > 0 && {self} < 100")
	require.NoError(t, err)

	bin, ok := node.(*Binary)
	require.True(t, ok)
	assert.Equal(t, "&&", bin.Op)
}
