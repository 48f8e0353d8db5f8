package storkit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitLayerDisabled(t *testing.T) {
	acc := newFakeAccessor()
	assert.Same(t, Accessor(acc), RateLimitLayer{}.Apply(acc))
	assert.Same(t, Accessor(acc), RateLimitLayer{OpsPerSecond: -1}.Apply(acc))
}

func TestRateLimitLayerThrottles(t *testing.T) {
	ctx := context.Background()
	// Burst of 1 at 20 ops/s: the second call waits roughly 50ms.
	op := New(newFakeAccessor(), RateLimitLayer{OpsPerSecond: 20, Burst: 1})

	start := time.Now()
	_, err := op.Write(ctx, "a.txt", []byte("x"))
	require.NoError(t, err)
	_, err = op.Stat(ctx, "a.txt")
	require.NoError(t, err)
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
}

func TestRateLimitLayerDeadlineTooTight(t *testing.T) {
	op := New(newFakeAccessor(), RateLimitLayer{OpsPerSecond: 0.001, Burst: 1})

	ctx := context.Background()
	_, err := op.Write(ctx, "a.txt", []byte("x"))
	require.NoError(t, err)

	// The bucket refills once per ~17 minutes, so a short deadline can
	// never be met and the limiter refuses up front.
	shortCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	_, err = op.Stat(shortCtx, "a.txt")
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
	assert.True(t, IsTemporary(err))
}

func TestRateLimitLayerCanceledContext(t *testing.T) {
	op := New(newFakeAccessor(), RateLimitLayer{OpsPerSecond: 100})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := op.Stat(ctx, "a.txt")
	require.Error(t, err)
	assert.Equal(t, KindUnexpected, ErrorKind(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRateLimitLayerChargesPageFetches(t *testing.T) {
	ctx := context.Background()
	op := New(newFakeAccessor(), RateLimitLayer{OpsPerSecond: 50, Burst: 1})

	for _, p := range []string{"a.txt", "b.txt", "c.txt", "d.txt"} {
		_, err := op.Write(ctx, p, []byte("x"))
		require.NoError(t, err)
	}

	// Four writes, one list call, and two page fetches all draw from the
	// same bucket, so the whole sequence takes several refill intervals.
	start := time.Now()
	entries, err := op.ListAll(ctx, "")
	require.NoError(t, err)
	assert.Len(t, entries, 4)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
