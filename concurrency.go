package storkit

import (
	"context"
	"io"

	"golang.org/x/sync/semaphore"
)

// ConcurrencyLimitLayer bounds the number of operations in flight against
// the backend with a weighted semaphore. Useful in front of local
// filesystems with file-descriptor budgets and remote services with
// connection caps.
type ConcurrencyLimitLayer struct {
	// MaxInFlight is the number of concurrent operations allowed. Zero
	// or negative disables the limit.
	MaxInFlight int64
}

// Apply implements Layer.
func (l ConcurrencyLimitLayer) Apply(inner Accessor) Accessor {
	if l.MaxInFlight <= 0 {
		return inner
	}
	return &concurrencyAccessor{
		passthrough: passthrough{inner: inner},
		sem:         semaphore.NewWeighted(l.MaxInFlight),
	}
}

type concurrencyAccessor struct {
	passthrough
	sem *semaphore.Weighted
}

func (a *concurrencyAccessor) acquire(ctx context.Context, op Op, path string) error {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return WrapError(KindUnexpected, op, path, err)
	}
	return nil
}

func (a *concurrencyAccessor) Stat(ctx context.Context, path string, opts StatOptions) (Metadata, error) {
	if err := a.acquire(ctx, OpStat, path); err != nil {
		return Metadata{}, err
	}
	defer a.sem.Release(1)
	return a.inner.Stat(ctx, path, opts)
}

func (a *concurrencyAccessor) Read(ctx context.Context, path string, opts ReadOptions) (io.ReadCloser, error) {
	// The slot stays held until the returned stream is closed, since the
	// backend connection lives that long.
	if err := a.acquire(ctx, OpRead, path); err != nil {
		return nil, err
	}
	rc, err := a.inner.Read(ctx, path, opts)
	if err != nil {
		a.sem.Release(1)
		return nil, err
	}
	return &slotReadCloser{ReadCloser: rc, sem: a.sem}, nil
}

func (a *concurrencyAccessor) Write(ctx context.Context, path string, r io.Reader, opts WriteOptions) (Metadata, error) {
	if err := a.acquire(ctx, OpWrite, path); err != nil {
		return Metadata{}, err
	}
	defer a.sem.Release(1)
	return a.inner.Write(ctx, path, r, opts)
}

func (a *concurrencyAccessor) Delete(ctx context.Context, path string, opts DeleteOptions) error {
	if err := a.acquire(ctx, OpDelete, path); err != nil {
		return err
	}
	defer a.sem.Release(1)
	return a.inner.Delete(ctx, path, opts)
}

func (a *concurrencyAccessor) CreateDir(ctx context.Context, path string) error {
	if err := a.acquire(ctx, OpCreateDir, path); err != nil {
		return err
	}
	defer a.sem.Release(1)
	return a.inner.CreateDir(ctx, path)
}

func (a *concurrencyAccessor) List(ctx context.Context, path string, opts ListOptions) (Pager, error) {
	if err := a.acquire(ctx, OpList, path); err != nil {
		return nil, err
	}
	defer a.sem.Release(1)
	return a.inner.List(ctx, path, opts)
}

func (a *concurrencyAccessor) Rename(ctx context.Context, from, to string) error {
	if err := a.acquire(ctx, OpRename, from); err != nil {
		return err
	}
	defer a.sem.Release(1)
	return a.inner.Rename(ctx, from, to)
}

func (a *concurrencyAccessor) Copy(ctx context.Context, from, to string) error {
	if err := a.acquire(ctx, OpCopy, from); err != nil {
		return err
	}
	defer a.sem.Release(1)
	return a.inner.Copy(ctx, from, to)
}

// slotReadCloser releases its semaphore slot exactly once, on Close.
type slotReadCloser struct {
	io.ReadCloser
	sem      *semaphore.Weighted
	released bool
}

func (s *slotReadCloser) Close() error {
	err := s.ReadCloser.Close()
	if !s.released {
		s.released = true
		s.sem.Release(1)
	}
	return err
}

var _ Accessor = (*concurrencyAccessor)(nil)
