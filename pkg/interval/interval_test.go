package interval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationKnownTags(t *testing.T) {
	d, err := Duration("s30")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)
}

func TestDurationUnknownTag(t *testing.T) {
	_, err := Duration("s7")
	require.ErrorIs(t, err, ErrUnknownTag)
}

func TestBoundaryIsDeterministicAcrossCallers(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 47, 0, time.UTC)

	b1, err := Boundary("s30", now)
	require.NoError(t, err)
	b2, err := Boundary("s30", now.Add(3*time.Second))
	require.NoError(t, err)

	assert.Equal(t, b1, b2, "two processes waking within the same 30s window must agree on T_k")
}

func TestNextAdvancesByOnePeriod(t *testing.T) {
	b, err := Boundary("m1", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	n, err := Next("m1", b)
	require.NoError(t, err)

	assert.Equal(t, time.Minute, n.Sub(b))
}

func TestClaimTTLLessThanInterval(t *testing.T) {
	ttl, err := ClaimTTL("s5")
	require.NoError(t, err)
	assert.Less(t, ttl, 5*time.Second)
	assert.Greater(t, ttl, time.Duration(0))
}
