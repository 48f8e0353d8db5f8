package storkit

import (
	"context"
	"io"
	"time"
)

// ReadOnlyLayer rejects every mutating operation with PermissionDenied and
// masks the write-side capability flags, so gated dispatch reports
// Unsupported before a call is even attempted.
//
// Useful for serving production data to analysis jobs or exposing a bucket
// through an API that must never modify it.
type ReadOnlyLayer struct{}

// Apply implements Layer.
func (ReadOnlyLayer) Apply(inner Accessor) Accessor {
	return &readOnlyAccessor{passthrough: passthrough{inner: inner}}
}

type readOnlyAccessor struct {
	passthrough
}

// Info reports the inner capability with every mutating flag cleared.
func (a *readOnlyAccessor) Info() Capability {
	cap := a.inner.Info()
	cap.Write = false
	cap.WriteWithContentType = false
	cap.WriteCanStream = false
	cap.CreateDir = false
	cap.Delete = false
	cap.Copy = false
	cap.Rename = false
	return cap
}

func (a *readOnlyAccessor) deny(op Op, path string) error {
	return NewError(KindPermissionDenied, op, path, "accessor is read-only")
}

func (a *readOnlyAccessor) Write(ctx context.Context, path string, r io.Reader, opts WriteOptions) (Metadata, error) {
	return Metadata{}, a.deny(OpWrite, path)
}

func (a *readOnlyAccessor) Delete(ctx context.Context, path string, opts DeleteOptions) error {
	return a.deny(OpDelete, path)
}

func (a *readOnlyAccessor) CreateDir(ctx context.Context, path string) error {
	return a.deny(OpCreateDir, path)
}

func (a *readOnlyAccessor) Rename(ctx context.Context, from, to string) error {
	return a.deny(OpRename, from)
}

func (a *readOnlyAccessor) Copy(ctx context.Context, from, to string) error {
	return a.deny(OpCopy, from)
}

func (a *readOnlyAccessor) OpenWrite(ctx context.Context, path string, opts WriteOptions) (BlobWriter, error) {
	return nil, a.deny(OpWrite, path)
}

func (a *readOnlyAccessor) PresignWrite(ctx context.Context, path string, expire time.Duration) (PresignedRequest, error) {
	return PresignedRequest{}, a.deny(OpPresign, path)
}

var _ Accessor = (*readOnlyAccessor)(nil)
