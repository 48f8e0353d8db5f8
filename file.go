package storkit

import (
	"bytes"
	"context"
	"io"
)

// defaultWriteBufferSize is the flush threshold for Writer handles when
// the caller does not override it with WithBufferSize.
const defaultWriteBufferSize = 4 << 20

// ============================================================================
// Reader
// ============================================================================

// Reader is a seekable read handle over one stored object. It opens
// backend streams lazily and reopens them after a seek, using ranged reads
// when the backend supports them.
//
// A Reader is single-consumer. Close is idempotent; every operation after
// Close fails with Closed.
type Reader struct {
	op     *Operator
	path   string
	size   int64
	offset int64

	stream io.ReadCloser
	closed bool
}

func newReader(op *Operator, path string, size int64) *Reader {
	return &Reader{op: op, path: path, size: size}
}

// Size returns the object size captured when the handle was opened.
func (r *Reader) Size() int64 {
	return r.size
}

// Read implements io.Reader against the current offset.
func (r *Reader) Read(p []byte) (int, error) {
	return r.ReadContext(context.Background(), p)
}

// ReadContext reads into p at the current offset, honoring ctx for the
// backend round trip that may be needed to (re)open the stream.
func (r *Reader) ReadContext(ctx context.Context, p []byte) (int, error) {
	if r.closed {
		return 0, NewError(KindClosed, OpRead, r.path, "read on closed handle")
	}
	if r.offset >= r.size {
		return 0, io.EOF
	}
	if err := r.ensureStream(ctx); err != nil {
		return 0, err
	}
	n, err := r.stream.Read(p)
	r.offset += int64(n)
	if err == io.EOF {
		return n, io.EOF
	}
	if err != nil {
		return n, WrapError(KindUnexpected, OpRead, r.path, err)
	}
	return n, nil
}

// ensureStream opens a backend stream positioned at the current offset.
func (r *Reader) ensureStream(ctx context.Context) error {
	if r.stream != nil {
		return nil
	}
	var opts ReadOptions
	var skip int64
	if r.offset > 0 {
		if r.op.cap.ReadWithRange {
			opts.Range = &ByteRange{Start: r.offset, Length: -1}
		} else {
			// No ranged reads: open from the start and discard.
			skip = r.offset
		}
	}
	stream, err := r.op.accessor.Read(ctx, r.path, opts)
	if err != nil {
		return err
	}
	if skip > 0 {
		if _, err := io.CopyN(io.Discard, stream, skip); err != nil {
			stream.Close()
			return WrapError(KindUnexpected, OpRead, r.path, err)
		}
	}
	r.stream = stream
	return nil
}

// Seek implements io.Seeker. Seeking drops the current backend stream;
// the next read reopens at the new offset.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	if r.closed {
		return 0, NewError(KindClosed, OpRead, r.path, "seek on closed handle")
	}

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.offset + offset
	case io.SeekEnd:
		abs = r.size + offset
	default:
		return 0, NewError(KindInvalidInput, OpRead, r.path, "invalid whence")
	}
	if abs < 0 {
		return 0, NewError(KindInvalidInput, OpRead, r.path, "negative position")
	}

	if abs != r.offset {
		r.dropStream()
		r.offset = abs
	}
	return abs, nil
}

func (r *Reader) dropStream() {
	if r.stream != nil {
		r.stream.Close()
		r.stream = nil
	}
}

// Close releases the backend stream. Safe to call more than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.dropStream()
	return nil
}

var (
	_ io.Reader = (*Reader)(nil)
	_ io.Seeker = (*Reader)(nil)
	_ io.Closer = (*Reader)(nil)
)

// ============================================================================
// Writer
// ============================================================================

// Writer is a buffered write handle over one stored object. Data is
// buffered up to the configured threshold and flushed to the backend when
// the buffer fills, on Flush, and on Close.
//
// Backends with the WriteCanStream capability receive data incrementally
// through their BlobWriter. Other backends get a single upload on Close,
// since replacing an object piecemeal is not expressible for them; for
// those the threshold only bounds flush attempts, not memory.
//
// At most one flush region is outstanding at a time, and Close publishes
// the object exactly once. Close is idempotent.
type Writer struct {
	ctx  context.Context
	op   *Operator
	path string
	opts WriteOptions

	buf       bytes.Buffer
	threshold int
	written   int64

	blob    BlobWriter
	closed  bool
	aborted bool
	meta    Metadata
}

func newWriter(ctx context.Context, op *Operator, path string, opts WriteOptions) *Writer {
	threshold := opts.BufferSize
	if threshold <= 0 {
		threshold = defaultWriteBufferSize
	}
	return &Writer{
		ctx:       ctx,
		op:        op,
		path:      path,
		opts:      opts,
		threshold: threshold,
	}
}

// Write implements io.Writer, buffering p and flushing when the threshold
// fills on a streaming backend.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, NewError(KindClosed, OpWrite, w.path, "write on closed handle")
	}
	n, _ := w.buf.Write(p) // bytes.Buffer never returns an error
	w.written += int64(n)

	if w.canStream() && w.buf.Len() >= w.threshold {
		if err := w.Flush(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (w *Writer) canStream() bool {
	if !w.op.cap.WriteCanStream {
		return false
	}
	_, ok := w.op.accessor.(StreamWriter)
	return ok
}

// Flush pushes buffered data to the backend. On backends without
// streaming writes Flush is a no-op: the single upload happens on Close.
func (w *Writer) Flush() error {
	if w.closed {
		return NewError(KindClosed, OpWrite, w.path, "flush on closed handle")
	}
	if !w.canStream() || w.buf.Len() == 0 {
		return nil
	}
	if w.blob == nil {
		blob, err := w.op.accessor.(StreamWriter).OpenWrite(w.ctx, w.path, w.opts)
		if err != nil {
			return err
		}
		w.blob = blob
	}
	if _, err := w.blob.Write(w.buf.Bytes()); err != nil {
		return WrapError(KindUnexpected, OpWrite, w.path, err)
	}
	w.buf.Reset()
	return nil
}

// Seek is rejected while unflushed data is buffered, because seeking over
// a partial write is ambiguous for append-only and object-replace
// backends. Flush first. With a clean buffer only a no-op seek to the
// current end succeeds.
func (w *Writer) Seek(offset int64, whence int) (int64, error) {
	if w.closed {
		return 0, NewError(KindClosed, OpWrite, w.path, "seek on closed handle")
	}
	if w.buf.Len() > 0 {
		return 0, NewError(KindInvalidState, OpWrite, w.path, "seek with unflushed buffered data")
	}

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = w.written + offset
	case io.SeekEnd:
		abs = w.written + offset
	default:
		return 0, NewError(KindInvalidInput, OpWrite, w.path, "invalid whence")
	}
	if abs != w.written {
		return 0, NewError(KindUnsupported, OpWrite, w.path, "write handles are append-only")
	}
	return abs, nil
}

// Close flushes remaining data, publishes the object, and releases the
// backend resource. The second and later calls are no-op successes.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if w.aborted {
		return nil
	}

	if w.blob != nil {
		// Streaming upload in progress: push the tail and complete.
		if w.buf.Len() > 0 {
			if _, err := w.blob.Write(w.buf.Bytes()); err != nil {
				w.blob.Abort()
				return WrapError(KindUnexpected, OpWrite, w.path, err)
			}
			w.buf.Reset()
		}
		meta, err := w.blob.Close()
		if err != nil {
			return err
		}
		w.meta = meta
		return nil
	}

	meta, err := w.op.accessor.Write(w.ctx, w.path, bytes.NewReader(w.buf.Bytes()), w.opts)
	if err != nil {
		return err
	}
	w.buf.Reset()
	w.meta = meta
	return nil
}

// Abort drops staged data without publishing the object and closes the
// handle. Used on cancellation so no partial upload leaks.
func (w *Writer) Abort() error {
	if w.closed {
		return nil
	}
	w.aborted = true
	w.buf.Reset()
	var err error
	if w.blob != nil {
		err = w.blob.Abort()
		w.blob = nil
	}
	w.closed = true
	return err
}

// Metadata returns the metadata of the published object. Valid only after
// a successful Close.
func (w *Writer) Metadata() Metadata {
	return w.meta
}

var (
	_ io.Writer = (*Writer)(nil)
	_ io.Seeker = (*Writer)(nil)
	_ io.Closer = (*Writer)(nil)
)
