package storkit

import (
	"context"
	"io"
	"time"
)

// Accessor is the backend contract consumed by the core. Each driver
// implements it once; everything else (validation, layering, handles,
// listers) is built on top by the Operator.
//
// Implementations must be safe for concurrent use and must map every
// backend failure to a *Error before returning. The error translation
// table lives with the driver, never in shared core logic.
//
// The interface is deliberately narrow. Optional behavior is expressed
// through the extension interfaces below, checked by type assertion:
//
//	if sw, ok := acc.(StreamWriter); ok {
//	    w, err := sw.OpenWrite(ctx, path, opts)
//	}
type Accessor interface {
	// Info returns the accessor's declared capability. The value is
	// computed at construction and must not change afterwards.
	Info() Capability

	// Stat returns metadata for the entry at path.
	Stat(ctx context.Context, path string, opts StatOptions) (Metadata, error)

	// Read opens the entry's content for reading. The caller owns the
	// returned stream and must close it.
	Read(ctx context.Context, path string, opts ReadOptions) (io.ReadCloser, error)

	// Write stores the content read from r at path and returns the
	// resulting metadata.
	Write(ctx context.Context, path string, r io.Reader, opts WriteOptions) (Metadata, error)

	// Delete removes the entry at path.
	Delete(ctx context.Context, path string, opts DeleteOptions) error

	// CreateDir creates a directory (and parents) at path.
	CreateDir(ctx context.Context, path string) error

	// List starts a listing under path and returns a pager over the
	// backend's native pagination. The caller must close the pager.
	List(ctx context.Context, path string, opts ListOptions) (Pager, error)

	// Rename moves an entry. Only declared by backends with a native
	// rename; others leave the capability off and rely on emulation.
	Rename(ctx context.Context, from, to string) error

	// Copy duplicates an entry. Same capability rules as Rename.
	Copy(ctx context.Context, from, to string) error
}

// Pager is one backend listing in progress. NextPage returns the next page
// of entries, or an empty page with a nil error when the listing is
// exhausted. Pagination tokens are internal to the pager and never exposed.
//
// A Pager is single-consumer. Close releases backend resources and is
// idempotent; the Lister built on top guarantees it is always called.
type Pager interface {
	NextPage(ctx context.Context) ([]Entry, error)
	Close() error
}

// ============================================================================
// Optional accessor extensions
// ============================================================================

// BlobWriter receives object content incrementally. Write may buffer;
// Close completes the upload and returns the final metadata. Abort drops
// whatever was staged without publishing it.
type BlobWriter interface {
	io.Writer
	Close() (Metadata, error)
	Abort() error
}

// StreamWriter is implemented by accessors that can accept object content
// incrementally (multipart uploads, open file descriptors) instead of a
// single buffered Write. Declared via the WriteCanStream capability.
type StreamWriter interface {
	OpenWrite(ctx context.Context, path string, opts WriteOptions) (BlobWriter, error)
}

// PresignedRequest describes an HTTP request a client can execute directly
// against the backend without going through the Operator.
type PresignedRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Expires time.Time
}

// CanPresign is implemented by accessors that can mint presigned URLs.
// Declared via the Presign capability.
type CanPresign interface {
	PresignRead(ctx context.Context, path string, expire time.Duration) (PresignedRequest, error)
	PresignWrite(ctx context.Context, path string, expire time.Duration) (PresignedRequest, error)
}

// CanWatch is implemented by accessors that can report changes under a
// path, natively or by polling. Declared via the Watch capability.
type CanWatch interface {
	Watch(ctx context.Context, path string) (ChangeToken, error)
}
