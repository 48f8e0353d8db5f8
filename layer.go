package storkit

import (
	"context"
	"io"
	"time"
)

// Layer transforms an Accessor into a new Accessor with added behavior:
// retries, logging, rate limiting, caching, capability restriction.
//
// Apply must be free of side effects at construction time. Any stateful
// resource the layer needs (token bucket, semaphore, cache, counters) is
// allocated inside the returned accessor, never shared globally, so
// multiple Operators can coexist with independent resource pools.
//
// Composition is explicit and order-sensitive. Given layers A then B,
// the effective accessor is B.Apply(A.Apply(base)): calls pass through B,
// then A, then the base; results and errors come back through A, then B.
// There is no hidden default ordering. Retry layers usually sit closest to
// the backend and logging or metrics layers outermost, but callers choose.
//
// Layers must not alter operation semantics: a wrapped read still returns
// the bytes the backend would have returned, or a normalized error.
type Layer interface {
	Apply(Accessor) Accessor
}

// LayerFunc adapts a plain function to the Layer interface.
type LayerFunc func(Accessor) Accessor

// Apply implements Layer.
func (f LayerFunc) Apply(a Accessor) Accessor {
	return f(a)
}

// Chain applies layers in order: the first layer in the list ends up
// innermost (closest to the backend), the last outermost.
func Chain(base Accessor, layers ...Layer) Accessor {
	acc := base
	for _, l := range layers {
		acc = l.Apply(acc)
	}
	return acc
}

// passthrough delegates every operation to the wrapped accessor, including
// the optional extension interfaces. Layer accessors embed it and override
// only the operations they intercept, so adding an operation to Accessor
// breaks exactly one place per layer instead of all of them.
type passthrough struct {
	inner Accessor
}

func (p passthrough) Info() Capability {
	return p.inner.Info()
}

func (p passthrough) Stat(ctx context.Context, path string, opts StatOptions) (Metadata, error) {
	return p.inner.Stat(ctx, path, opts)
}

func (p passthrough) Read(ctx context.Context, path string, opts ReadOptions) (io.ReadCloser, error) {
	return p.inner.Read(ctx, path, opts)
}

func (p passthrough) Write(ctx context.Context, path string, r io.Reader, opts WriteOptions) (Metadata, error) {
	return p.inner.Write(ctx, path, r, opts)
}

func (p passthrough) Delete(ctx context.Context, path string, opts DeleteOptions) error {
	return p.inner.Delete(ctx, path, opts)
}

func (p passthrough) CreateDir(ctx context.Context, path string) error {
	return p.inner.CreateDir(ctx, path)
}

func (p passthrough) List(ctx context.Context, path string, opts ListOptions) (Pager, error) {
	return p.inner.List(ctx, path, opts)
}

func (p passthrough) Rename(ctx context.Context, from, to string) error {
	return p.inner.Rename(ctx, from, to)
}

func (p passthrough) Copy(ctx context.Context, from, to string) error {
	return p.inner.Copy(ctx, from, to)
}

func (p passthrough) OpenWrite(ctx context.Context, path string, opts WriteOptions) (BlobWriter, error) {
	if sw, ok := p.inner.(StreamWriter); ok {
		return sw.OpenWrite(ctx, path, opts)
	}
	return nil, NewError(KindUnsupported, OpWrite, path, "backend does not support streaming writes")
}

func (p passthrough) PresignRead(ctx context.Context, path string, expire time.Duration) (PresignedRequest, error) {
	if signer, ok := p.inner.(CanPresign); ok {
		return signer.PresignRead(ctx, path, expire)
	}
	return PresignedRequest{}, NewError(KindUnsupported, OpPresign, path, "backend does not support presigning")
}

func (p passthrough) PresignWrite(ctx context.Context, path string, expire time.Duration) (PresignedRequest, error) {
	if signer, ok := p.inner.(CanPresign); ok {
		return signer.PresignWrite(ctx, path, expire)
	}
	return PresignedRequest{}, NewError(KindUnsupported, OpPresign, path, "backend does not support presigning")
}

func (p passthrough) Watch(ctx context.Context, path string) (ChangeToken, error) {
	if watcher, ok := p.inner.(CanWatch); ok {
		return watcher.Watch(ctx, path)
	}
	return nil, NewError(KindUnsupported, OpWatch, path, "backend does not support watching")
}

var (
	_ Accessor     = passthrough{}
	_ StreamWriter = passthrough{}
	_ CanPresign   = passthrough{}
	_ CanWatch     = passthrough{}
)
