package storkit

import (
	"context"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryLayer retries operations that failed with a temporary error kind
// (RateLimited, or Unexpected marked transient by the driver) using
// exponential backoff with bounded attempts.
//
// Validation errors (InvalidInput, Unsupported) are never retried since
// retrying cannot change the outcome, and non-idempotent operations are
// only retried when RetryNonIdempotent is set explicitly.
//
// Place the layer close to the backend so outer logging and metrics
// layers observe one logical call, not every attempt.
type RetryLayer struct {
	// MaxAttempts bounds the total number of tries, the first call
	// included. Zero selects 3.
	MaxAttempts int

	// InitialInterval is the first backoff delay. Zero selects 100ms.
	InitialInterval time.Duration

	// MaxInterval caps the backoff delay. Zero selects 10s.
	MaxInterval time.Duration

	// RetryNonIdempotent additionally retries Write, Rename and
	// CreateDir. Off by default: a retried non-idempotent operation can
	// observe the effect of its own failed attempt.
	RetryNonIdempotent bool
}

// Apply implements Layer.
func (l RetryLayer) Apply(inner Accessor) Accessor {
	acc := &retryAccessor{passthrough: passthrough{inner: inner}, layer: l}
	if acc.layer.MaxAttempts <= 0 {
		acc.layer.MaxAttempts = 3
	}
	if acc.layer.InitialInterval <= 0 {
		acc.layer.InitialInterval = 100 * time.Millisecond
	}
	if acc.layer.MaxInterval <= 0 {
		acc.layer.MaxInterval = 10 * time.Second
	}
	return acc
}

type retryAccessor struct {
	passthrough
	layer RetryLayer
}

// retry runs fn up to MaxAttempts times, backing off between temporary
// failures. Permanent errors are returned immediately.
func (a *retryAccessor) retry(ctx context.Context, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = a.layer.InitialInterval
	bo.MaxInterval = a.layer.MaxInterval

	policy := backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(a.layer.MaxAttempts-1)), ctx)

	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if IsTemporary(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

func (a *retryAccessor) Stat(ctx context.Context, path string, opts StatOptions) (Metadata, error) {
	var meta Metadata
	err := a.retry(ctx, func() error {
		var err error
		meta, err = a.inner.Stat(ctx, path, opts)
		return err
	})
	return meta, err
}

func (a *retryAccessor) Read(ctx context.Context, path string, opts ReadOptions) (io.ReadCloser, error) {
	var rc io.ReadCloser
	err := a.retry(ctx, func() error {
		var err error
		rc, err = a.inner.Read(ctx, path, opts)
		return err
	})
	return rc, err
}

func (a *retryAccessor) Write(ctx context.Context, path string, r io.Reader, opts WriteOptions) (Metadata, error) {
	if !a.layer.RetryNonIdempotent {
		return a.inner.Write(ctx, path, r, opts)
	}
	// Retrying a write needs a rewindable body.
	seeker, rewindable := r.(io.Seeker)
	if !rewindable {
		return a.inner.Write(ctx, path, r, opts)
	}
	start, err := seeker.Seek(0, io.SeekCurrent)
	if err != nil {
		return a.inner.Write(ctx, path, r, opts)
	}

	var meta Metadata
	err = a.retry(ctx, func() error {
		if _, err := seeker.Seek(start, io.SeekStart); err != nil {
			return backoff.Permanent(WrapError(KindUnexpected, OpWrite, path, err))
		}
		var werr error
		meta, werr = a.inner.Write(ctx, path, r, opts)
		return werr
	})
	return meta, err
}

func (a *retryAccessor) Delete(ctx context.Context, path string, opts DeleteOptions) error {
	return a.retry(ctx, func() error {
		return a.inner.Delete(ctx, path, opts)
	})
}

func (a *retryAccessor) CreateDir(ctx context.Context, path string) error {
	if !a.layer.RetryNonIdempotent {
		return a.inner.CreateDir(ctx, path)
	}
	return a.retry(ctx, func() error {
		return a.inner.CreateDir(ctx, path)
	})
}

func (a *retryAccessor) List(ctx context.Context, path string, opts ListOptions) (Pager, error) {
	// Only the initial page request is retried. Retrying NextPage would
	// need the pager's internal token, which drivers own.
	var pager Pager
	err := a.retry(ctx, func() error {
		var err error
		pager, err = a.inner.List(ctx, path, opts)
		return err
	})
	return pager, err
}

func (a *retryAccessor) Rename(ctx context.Context, from, to string) error {
	if !a.layer.RetryNonIdempotent {
		return a.inner.Rename(ctx, from, to)
	}
	return a.retry(ctx, func() error {
		return a.inner.Rename(ctx, from, to)
	})
}

func (a *retryAccessor) Copy(ctx context.Context, from, to string) error {
	return a.retry(ctx, func() error {
		return a.inner.Copy(ctx, from, to)
	})
}

var _ Accessor = (*retryAccessor)(nil)
