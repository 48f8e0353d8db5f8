package storkit

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryLayer {
	return RetryLayer{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func TestRetryTemporaryFailures(t *testing.T) {
	ctx := context.Background()
	acc := newFakeAccessor()
	op := New(acc, fastRetry())

	_, err := op.Write(ctx, "f.txt", []byte("x"))
	require.NoError(t, err)

	acc.failNext(OpStat,
		NewError(KindRateLimited, OpStat, "f.txt", "throttled"),
		NewError(KindRateLimited, OpStat, "f.txt", "throttled"),
	)

	_, err = op.Stat(ctx, "f.txt")
	require.NoError(t, err)
	assert.Equal(t, 3, acc.callCount(OpStat))
}

func TestRetryExhaustsAttempts(t *testing.T) {
	ctx := context.Background()
	acc := newFakeAccessor()
	op := New(acc, fastRetry())

	acc.failNext(OpStat,
		NewError(KindRateLimited, OpStat, "f.txt", "throttled"),
		NewError(KindRateLimited, OpStat, "f.txt", "throttled"),
		NewError(KindRateLimited, OpStat, "f.txt", "throttled"),
	)

	_, err := op.Stat(ctx, "f.txt")
	require.Error(t, err)
	assert.Equal(t, KindRateLimited, ErrorKind(err))
	assert.Equal(t, 3, acc.callCount(OpStat))
}

func TestRetryPermanentErrorNotRetried(t *testing.T) {
	ctx := context.Background()
	acc := newFakeAccessor()
	op := New(acc, fastRetry())

	_, err := op.Stat(ctx, "missing.txt")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, 1, acc.callCount(OpStat))
}

func TestRetryTransientUnexpected(t *testing.T) {
	ctx := context.Background()
	acc := newFakeAccessor()
	op := New(acc, fastRetry())

	err := op.Delete(ctx, "gone.txt", WithIdempotentDelete(true))
	require.NoError(t, err)

	acc.failNext(OpDelete, NewError(KindUnexpected, OpDelete, "gone.txt", "503").WithTemporary())
	err = op.Delete(ctx, "gone.txt", WithIdempotentDelete(true))
	require.NoError(t, err)
	assert.Equal(t, 3, acc.callCount(OpDelete))
}

func TestRetryWriteNotRetriedByDefault(t *testing.T) {
	ctx := context.Background()
	acc := newFakeAccessor()
	op := New(acc, fastRetry())

	acc.failNext(OpWrite, NewError(KindRateLimited, OpWrite, "f.txt", "throttled"))
	_, err := op.Write(ctx, "f.txt", []byte("x"))
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
	assert.Equal(t, 1, acc.callCount(OpWrite))
}

func TestRetryWriteWithRewindableBody(t *testing.T) {
	ctx := context.Background()
	acc := newFakeAccessor()
	layer := fastRetry()
	layer.RetryNonIdempotent = true
	op := New(acc, layer)

	acc.failNext(OpWrite, NewError(KindRateLimited, OpWrite, "f.txt", "throttled"))

	_, err := op.WriteFrom(ctx, "f.txt", bytes.NewReader([]byte("payload")))
	require.NoError(t, err)
	assert.Equal(t, 2, acc.callCount(OpWrite))

	data, err := op.Read(ctx, "f.txt")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}
