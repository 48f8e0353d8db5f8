package storkit

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// RateLimitLayer throttles operations through a shared token bucket. Each
// dispatched operation consumes one token; callers block until a token is
// available or their context is done.
//
// The bucket is allocated per Apply, so two Operators built from the same
// layer value do not share a budget.
type RateLimitLayer struct {
	// OpsPerSecond is the sustained operation rate. Zero or negative
	// disables throttling.
	OpsPerSecond float64

	// Burst is the bucket capacity. Zero selects a burst equal to the
	// rounded-up rate, with a minimum of 1.
	Burst int
}

// Apply implements Layer.
func (l RateLimitLayer) Apply(inner Accessor) Accessor {
	if l.OpsPerSecond <= 0 {
		return inner
	}
	burst := l.Burst
	if burst <= 0 {
		burst = int(l.OpsPerSecond + 0.5)
		if burst < 1 {
			burst = 1
		}
	}
	return &rateLimitAccessor{
		passthrough: passthrough{inner: inner},
		limiter:     rate.NewLimiter(rate.Limit(l.OpsPerSecond), burst),
	}
}

type rateLimitAccessor struct {
	passthrough
	limiter *rate.Limiter
}

// wait blocks for one token. A context cancellation surfaces as the
// context error; an exhausted limiter window is temporary by definition.
func (a *rateLimitAccessor) wait(ctx context.Context, op Op, path string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return WrapError(KindUnexpected, op, path, ctx.Err())
		}
		return WrapError(KindRateLimited, op, path, err)
	}
	return nil
}

func (a *rateLimitAccessor) Stat(ctx context.Context, path string, opts StatOptions) (Metadata, error) {
	if err := a.wait(ctx, OpStat, path); err != nil {
		return Metadata{}, err
	}
	return a.inner.Stat(ctx, path, opts)
}

func (a *rateLimitAccessor) Read(ctx context.Context, path string, opts ReadOptions) (io.ReadCloser, error) {
	if err := a.wait(ctx, OpRead, path); err != nil {
		return nil, err
	}
	return a.inner.Read(ctx, path, opts)
}

func (a *rateLimitAccessor) Write(ctx context.Context, path string, r io.Reader, opts WriteOptions) (Metadata, error) {
	if err := a.wait(ctx, OpWrite, path); err != nil {
		return Metadata{}, err
	}
	return a.inner.Write(ctx, path, r, opts)
}

func (a *rateLimitAccessor) Delete(ctx context.Context, path string, opts DeleteOptions) error {
	if err := a.wait(ctx, OpDelete, path); err != nil {
		return err
	}
	return a.inner.Delete(ctx, path, opts)
}

func (a *rateLimitAccessor) CreateDir(ctx context.Context, path string) error {
	if err := a.wait(ctx, OpCreateDir, path); err != nil {
		return err
	}
	return a.inner.CreateDir(ctx, path)
}

func (a *rateLimitAccessor) List(ctx context.Context, path string, opts ListOptions) (Pager, error) {
	if err := a.wait(ctx, OpList, path); err != nil {
		return nil, err
	}
	pager, err := a.inner.List(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	// Page fetches hit the backend too, so they draw from the same bucket.
	return &rateLimitPager{inner: pager, acc: a, path: path}, nil
}

func (a *rateLimitAccessor) Rename(ctx context.Context, from, to string) error {
	if err := a.wait(ctx, OpRename, from); err != nil {
		return err
	}
	return a.inner.Rename(ctx, from, to)
}

func (a *rateLimitAccessor) Copy(ctx context.Context, from, to string) error {
	if err := a.wait(ctx, OpCopy, from); err != nil {
		return err
	}
	return a.inner.Copy(ctx, from, to)
}

type rateLimitPager struct {
	inner Pager
	acc   *rateLimitAccessor
	path  string
}

func (p *rateLimitPager) NextPage(ctx context.Context) ([]Entry, error) {
	if err := p.acc.wait(ctx, OpList, p.path); err != nil {
		return nil, err
	}
	return p.inner.NextPage(ctx)
}

func (p *rateLimitPager) Close() error {
	return p.inner.Close()
}

var (
	_ Accessor = (*rateLimitAccessor)(nil)
	_ Pager    = (*rateLimitPager)(nil)
)
