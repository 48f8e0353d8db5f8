package storkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsLayerCounts(t *testing.T) {
	ctx := context.Background()

	var metrics *Metrics
	acc := newFakeAccessor()
	op := New(acc, MetricsLayer{Sink: func(m *Metrics) { metrics = m }})
	require.NotNil(t, metrics)

	_, err := op.Write(ctx, "a.txt", []byte("x"))
	require.NoError(t, err)
	_, err = op.Stat(ctx, "a.txt")
	require.NoError(t, err)
	_, err = op.Stat(ctx, "missing.txt")
	require.Error(t, err)

	snap := metrics.Stats()
	assert.Equal(t, uint64(3), snap.Calls)
	assert.Equal(t, uint64(2), snap.Successes)
	assert.Equal(t, uint64(1), snap.Failures)
	assert.Equal(t, uint64(0), snap.Retryable)
	assert.Equal(t, uint64(2), snap.PerOp[OpStat])
	assert.Equal(t, uint64(1), snap.PerOp[OpWrite])
	assert.Greater(t, snap.AvgLatency.Nanoseconds(), int64(0))
}

func TestMetricsLayerRetryable(t *testing.T) {
	ctx := context.Background()

	var metrics *Metrics
	acc := newFakeAccessor()
	op := New(acc, MetricsLayer{Sink: func(m *Metrics) { metrics = m }})

	acc.failNext(OpStat, NewError(KindRateLimited, OpStat, "a.txt", "throttled"))
	_, err := op.Stat(ctx, "a.txt")
	require.Error(t, err)

	snap := metrics.Stats()
	assert.Equal(t, uint64(1), snap.Failures)
	assert.Equal(t, uint64(1), snap.Retryable)
}

func TestMetricsLayerSeesAttemptsInsideRetry(t *testing.T) {
	ctx := context.Background()

	var metrics *Metrics
	acc := newFakeAccessor()
	// Metrics inside retry counts every attempt.
	op := New(acc,
		MetricsLayer{Sink: func(m *Metrics) { metrics = m }},
		fastRetry(),
	)

	_, err := op.Write(ctx, "a.txt", []byte("x"))
	require.NoError(t, err)
	acc.failNext(OpStat, NewError(KindRateLimited, OpStat, "a.txt", "throttled"))
	_, err = op.Stat(ctx, "a.txt")
	require.NoError(t, err)

	snap := metrics.Stats()
	assert.Equal(t, uint64(2), snap.PerOp[OpStat])
}

func TestMetricsLayerIndependentInstances(t *testing.T) {
	ctx := context.Background()

	var a, b *Metrics
	layer := MetricsLayer{}
	layerA := layer
	layerA.Sink = func(m *Metrics) { a = m }
	layerB := layer
	layerB.Sink = func(m *Metrics) { b = m }

	opA := New(newFakeAccessor(), layerA)
	_ = New(newFakeAccessor(), layerB)

	_, err := opA.Write(ctx, "f.txt", []byte("x"))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), a.Stats().Calls)
	assert.Equal(t, uint64(0), b.Stats().Calls)
}
