package storkit

// Per-call option bundles. Each operation takes its own options type built
// through functional options, so concurrent calls never share mutable state.

// ============================================================================
// Read
// ============================================================================

// ByteRange selects a half-open slice of an object. Length < 0 means
// "from Start to the end".
type ByteRange struct {
	Start  int64
	Length int64
}

// ReadOptions configures a read call.
type ReadOptions struct {
	// Range restricts the read to a byte range. Requires the
	// ReadWithRange capability.
	Range *ByteRange

	// IfMatch makes the read conditional on the current ETag.
	IfMatch string
}

// ReadOption mutates ReadOptions.
type ReadOption func(*ReadOptions)

// WithRange restricts the read to length bytes starting at start.
// A negative length reads to the end of the object.
func WithRange(start, length int64) ReadOption {
	return func(o *ReadOptions) {
		o.Range = &ByteRange{Start: start, Length: length}
	}
}

// WithIfMatch makes the read fail with Conflict when the object's ETag no
// longer matches.
func WithIfMatch(etag string) ReadOption {
	return func(o *ReadOptions) {
		o.IfMatch = etag
	}
}

// NewReadOptions applies the given options to a zero value.
func NewReadOptions(opts ...ReadOption) ReadOptions {
	var o ReadOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ============================================================================
// Write
// ============================================================================

// WriteOptions configures a write call.
type WriteOptions struct {
	// ContentType is the MIME type to record with the object. Drivers
	// without WriteWithContentType ignore it.
	ContentType string

	// UserMetadata is attached to the object at write time.
	UserMetadata map[string]string

	// Overwrite controls whether an existing object may be replaced.
	// When false the write fails with AlreadyExists.
	Overwrite bool

	// BufferSize is the flush threshold for Writer handles, in bytes.
	// Zero selects the default.
	BufferSize int

	// IfMatch makes the write conditional on the current ETag.
	IfMatch string
}

// WriteOption mutates WriteOptions.
type WriteOption func(*WriteOptions)

// WithContentType records the MIME type with the object.
func WithContentType(contentType string) WriteOption {
	return func(o *WriteOptions) {
		o.ContentType = contentType
	}
}

// WithUserMetadata attaches key/value metadata to the object.
func WithUserMetadata(metadata map[string]string) WriteOption {
	return func(o *WriteOptions) {
		o.UserMetadata = metadata
	}
}

// WithOverwrite enables or disables replacing an existing object.
func WithOverwrite(overwrite bool) WriteOption {
	return func(o *WriteOptions) {
		o.Overwrite = overwrite
	}
}

// WithBufferSize sets the flush threshold for Writer handles.
func WithBufferSize(n int) WriteOption {
	return func(o *WriteOptions) {
		o.BufferSize = n
	}
}

// WithWriteIfMatch makes the write fail with Conflict when the object's
// ETag no longer matches.
func WithWriteIfMatch(etag string) WriteOption {
	return func(o *WriteOptions) {
		o.IfMatch = etag
	}
}

// NewWriteOptions applies the given options to the defaults.
// Overwrite defaults to true: replace semantics are what object stores do
// natively, and the common case for a storage facade.
func NewWriteOptions(opts ...WriteOption) WriteOptions {
	o := WriteOptions{Overwrite: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ============================================================================
// Stat
// ============================================================================

// StatOptions configures a stat call.
type StatOptions struct {
	// IfMatch makes the stat conditional on the current ETag.
	IfMatch string
}

// StatOption mutates StatOptions.
type StatOption func(*StatOptions)

// WithStatIfMatch makes the stat fail with Conflict when the object's ETag
// no longer matches.
func WithStatIfMatch(etag string) StatOption {
	return func(o *StatOptions) {
		o.IfMatch = etag
	}
}

// NewStatOptions applies the given options to a zero value.
func NewStatOptions(opts ...StatOption) StatOptions {
	var o StatOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ============================================================================
// List
// ============================================================================

// ListOptions configures a listing.
type ListOptions struct {
	// Recursive lists all descendants instead of immediate children.
	// Requires the ListWithRecursive capability.
	Recursive bool

	// PageSize overrides the backend's native page size where the
	// backend honors it. Zero keeps the backend default.
	PageSize int64

	// StartAfter resumes listing after the given path, where the
	// backend supports it.
	StartAfter string

	// Pattern filters yielded entries by a glob pattern, applied by the
	// Lister on the client side.
	Pattern string
}

// ListOption mutates ListOptions.
type ListOption func(*ListOptions)

// WithRecursive lists all descendants instead of immediate children.
func WithRecursive(recursive bool) ListOption {
	return func(o *ListOptions) {
		o.Recursive = recursive
	}
}

// WithPageSize overrides the backend page size.
func WithPageSize(n int64) ListOption {
	return func(o *ListOptions) {
		o.PageSize = n
	}
}

// WithStartAfter resumes listing after the given path.
func WithStartAfter(path string) ListOption {
	return func(o *ListOptions) {
		o.StartAfter = path
	}
}

// WithPattern filters entries by a glob pattern ("*.json", "logs/**").
func WithPattern(pattern string) ListOption {
	return func(o *ListOptions) {
		o.Pattern = pattern
	}
}

// NewListOptions applies the given options to a zero value.
func NewListOptions(opts ...ListOption) ListOptions {
	var o ListOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ============================================================================
// Delete
// ============================================================================

// DeleteOptions configures a delete call.
type DeleteOptions struct {
	// Idempotent makes deleting a missing entry succeed instead of
	// failing with NotFound.
	Idempotent bool
}

// DeleteOption mutates DeleteOptions.
type DeleteOption func(*DeleteOptions)

// WithIdempotentDelete makes deleting a missing entry a no-op success.
func WithIdempotentDelete(idempotent bool) DeleteOption {
	return func(o *DeleteOptions) {
		o.Idempotent = idempotent
	}
}

// NewDeleteOptions applies the given options to a zero value.
func NewDeleteOptions(opts ...DeleteOption) DeleteOptions {
	var o DeleteOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
