package storkit

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsLayer records per-operation counters and recent latencies using
// lock-free atomics, so it can sit on a hot path without contention.
// Snapshot the numbers with Stats.
type MetricsLayer struct {
	// MaxSamples bounds the latency ring buffer. Zero selects 1024.
	MaxSamples int

	// Sink receives the metrics handle when the layer is applied, so
	// the caller can hold onto it for later snapshots.
	Sink func(*Metrics)
}

// Metrics holds the counters collected by a MetricsLayer.
type Metrics struct {
	calls     atomic.Uint64
	successes atomic.Uint64
	failures  atomic.Uint64
	retryable atomic.Uint64

	perOp sync.Map // Op -> *atomic.Uint64

	durations *durationRing
}

// MetricsSnapshot is a point-in-time view of the collected metrics.
type MetricsSnapshot struct {
	Calls     uint64
	Successes uint64
	Failures  uint64
	Retryable uint64
	PerOp     map[Op]uint64

	// AvgLatency is the mean over the most recent samples.
	AvgLatency time.Duration
}

// Stats returns a snapshot of the collected metrics.
func (m *Metrics) Stats() MetricsSnapshot {
	snap := MetricsSnapshot{
		Calls:     m.calls.Load(),
		Successes: m.successes.Load(),
		Failures:  m.failures.Load(),
		Retryable: m.retryable.Load(),
		PerOp:     make(map[Op]uint64),
	}
	m.perOp.Range(func(key, value any) bool {
		snap.PerOp[key.(Op)] = value.(*atomic.Uint64).Load()
		return true
	})
	snap.AvgLatency = m.durations.average()
	return snap
}

func (m *Metrics) record(op Op, start time.Time, err error) {
	m.calls.Add(1)
	counter, _ := m.perOp.LoadOrStore(op, new(atomic.Uint64))
	counter.(*atomic.Uint64).Add(1)
	if err != nil {
		m.failures.Add(1)
		if IsTemporary(err) {
			m.retryable.Add(1)
		}
	} else {
		m.successes.Add(1)
	}
	m.durations.add(time.Since(start))
}

// durationRing keeps the most recent latency samples in a circular buffer
// so averages stay cheap and bounded.
type durationRing struct {
	mu      sync.Mutex
	samples []time.Duration
	index   int
	count   int
}

func (r *durationRing) add(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[r.index] = d
	r.index = (r.index + 1) % len(r.samples)
	if r.count < len(r.samples) {
		r.count++
	}
}

func (r *durationRing) average() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return 0
	}
	var total time.Duration
	for i := 0; i < r.count; i++ {
		total += r.samples[i]
	}
	return total / time.Duration(r.count)
}

// Apply implements Layer.
func (l MetricsLayer) Apply(inner Accessor) Accessor {
	maxSamples := l.MaxSamples
	if maxSamples <= 0 {
		maxSamples = 1024
	}
	metrics := &Metrics{
		durations: &durationRing{samples: make([]time.Duration, maxSamples)},
	}
	if l.Sink != nil {
		l.Sink(metrics)
	}
	return &metricsAccessor{
		passthrough: passthrough{inner: inner},
		metrics:     metrics,
	}
}

type metricsAccessor struct {
	passthrough
	metrics *Metrics
}

func (a *metricsAccessor) Stat(ctx context.Context, path string, opts StatOptions) (Metadata, error) {
	start := time.Now()
	meta, err := a.inner.Stat(ctx, path, opts)
	a.metrics.record(OpStat, start, err)
	return meta, err
}

func (a *metricsAccessor) Read(ctx context.Context, path string, opts ReadOptions) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := a.inner.Read(ctx, path, opts)
	a.metrics.record(OpRead, start, err)
	return rc, err
}

func (a *metricsAccessor) Write(ctx context.Context, path string, r io.Reader, opts WriteOptions) (Metadata, error) {
	start := time.Now()
	meta, err := a.inner.Write(ctx, path, r, opts)
	a.metrics.record(OpWrite, start, err)
	return meta, err
}

func (a *metricsAccessor) Delete(ctx context.Context, path string, opts DeleteOptions) error {
	start := time.Now()
	err := a.inner.Delete(ctx, path, opts)
	a.metrics.record(OpDelete, start, err)
	return err
}

func (a *metricsAccessor) CreateDir(ctx context.Context, path string) error {
	start := time.Now()
	err := a.inner.CreateDir(ctx, path)
	a.metrics.record(OpCreateDir, start, err)
	return err
}

func (a *metricsAccessor) List(ctx context.Context, path string, opts ListOptions) (Pager, error) {
	start := time.Now()
	pager, err := a.inner.List(ctx, path, opts)
	a.metrics.record(OpList, start, err)
	return pager, err
}

func (a *metricsAccessor) Rename(ctx context.Context, from, to string) error {
	start := time.Now()
	err := a.inner.Rename(ctx, from, to)
	a.metrics.record(OpRename, start, err)
	return err
}

func (a *metricsAccessor) Copy(ctx context.Context, from, to string) error {
	start := time.Now()
	err := a.inner.Copy(ctx, from, to)
	a.metrics.record(OpCopy, start, err)
	return err
}

var _ Accessor = (*metricsAccessor)(nil)
