package storkit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheBasics(t *testing.T) {
	c := NewMemoryCache()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("k", "v", 0)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	c.Delete("k")
	_, ok = c.Get("k")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.InDelta(t, 1.0/3.0, stats.HitRate, 0.001)
}

func TestMemoryCacheExpiration(t *testing.T) {
	c := NewMemoryCache()
	c.Set("short", "v", 10*time.Millisecond)
	c.Set("forever", "v", 0)

	time.Sleep(25 * time.Millisecond)

	_, ok := c.Get("short")
	assert.False(t, ok)
	_, ok = c.Get("forever")
	assert.True(t, ok)

	c.Set("stale", "v", time.Nanosecond)
	time.Sleep(time.Millisecond)
	c.Cleanup()
	assert.Equal(t, int64(1), c.Stats().Size)
}

func TestMetaCacheLayerStat(t *testing.T) {
	ctx := context.Background()
	acc := newFakeAccessor()
	op := New(acc, MetaCacheLayer{TTL: time.Minute})

	_, err := op.Write(ctx, "a.txt", []byte("abc"))
	require.NoError(t, err)

	_, err = op.Stat(ctx, "a.txt")
	require.NoError(t, err)
	_, err = op.Stat(ctx, "a.txt")
	require.NoError(t, err)
	_, err = op.Stat(ctx, "a.txt")
	require.NoError(t, err)

	// Only the first stat reaches the backend.
	assert.Equal(t, 1, acc.callCount(OpStat))
}

func TestMetaCacheLayerInvalidation(t *testing.T) {
	ctx := context.Background()
	acc := newFakeAccessor()
	op := New(acc, MetaCacheLayer{TTL: time.Minute})

	_, err := op.Write(ctx, "a.txt", []byte("abc"))
	require.NoError(t, err)

	meta, err := op.Stat(ctx, "a.txt")
	require.NoError(t, err)
	size, _ := meta.Size()
	assert.Equal(t, int64(3), size)

	// Writing through the layer drops the cached entry.
	_, err = op.Write(ctx, "a.txt", []byte("longer content"))
	require.NoError(t, err)

	meta, err = op.Stat(ctx, "a.txt")
	require.NoError(t, err)
	size, _ = meta.Size()
	assert.Equal(t, int64(14), size)
	assert.Equal(t, 2, acc.callCount(OpStat))
}

func TestMetaCacheLayerDeleteInvalidation(t *testing.T) {
	ctx := context.Background()
	acc := newFakeAccessor()
	op := New(acc, MetaCacheLayer{TTL: time.Minute})

	_, err := op.Write(ctx, "a.txt", []byte("abc"))
	require.NoError(t, err)
	_, err = op.Stat(ctx, "a.txt")
	require.NoError(t, err)

	require.NoError(t, op.Delete(ctx, "a.txt"))

	_, err = op.Stat(ctx, "a.txt")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestMetaCacheLayerConditionalStatBypasses(t *testing.T) {
	ctx := context.Background()
	acc := newFakeAccessor()
	op := New(acc, MetaCacheLayer{TTL: time.Minute})

	_, err := op.Write(ctx, "a.txt", []byte("abc"))
	require.NoError(t, err)

	_, err = op.Stat(ctx, "a.txt")
	require.NoError(t, err)
	_, err = op.Stat(ctx, "a.txt", WithStatIfMatch("some-etag"))
	require.NoError(t, err)

	// The conditional stat went to the backend despite the warm cache.
	assert.Equal(t, 2, acc.callCount(OpStat))
}

func TestMetaCacheLayerSharedCache(t *testing.T) {
	ctx := context.Background()
	shared := NewMemoryCache()

	accA := newFakeAccessor()
	accB := newFakeAccessor()
	opA := New(accA, MetaCacheLayer{Cache: shared, KeyPrefix: "a:"})
	opB := New(accB, MetaCacheLayer{Cache: shared, KeyPrefix: "b:"})

	_, err := opA.Write(ctx, "f.txt", []byte("aa"))
	require.NoError(t, err)
	_, err = opB.Write(ctx, "f.txt", []byte("bbbb"))
	require.NoError(t, err)

	metaA, err := opA.Stat(ctx, "f.txt")
	require.NoError(t, err)
	metaB, err := opB.Stat(ctx, "f.txt")
	require.NoError(t, err)

	sizeA, _ := metaA.Size()
	sizeB, _ := metaB.Size()
	assert.Equal(t, int64(2), sizeA)
	assert.Equal(t, int64(4), sizeB)
}
