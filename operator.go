package storkit

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"
	"time"
)

// Operator is the public facade over a fully layered accessor chain.
// It validates inputs against the effective capability before any backend
// I/O, dispatches through the layer chain, and normalizes results.
//
// An Operator is stateless with respect to individual calls and safe for
// concurrent use; any shared mutable state (token buckets, caches) belongs
// to the layer that allocated it. Create one Operator per logical storage
// session and share it freely.
type Operator struct {
	accessor Accessor
	cap      Capability
}

// New builds an Operator over the given accessor, applying layers in
// order: the first layer ends up closest to the backend, the last sees
// calls first.
func New(accessor Accessor, layers ...Layer) *Operator {
	acc := Chain(accessor, layers...)
	return &Operator{
		accessor: acc,
		cap:      acc.Info(),
	}
}

// Capability returns the effective capability of the layered chain.
func (o *Operator) Capability() Capability {
	return o.cap
}

// Accessor exposes the layered accessor, primarily for composing an
// Operator into further tooling. Callers should prefer the typed
// operations.
func (o *Operator) Accessor() Accessor {
	return o.accessor
}

// ============================================================================
// Validation
// ============================================================================

// normalizePath collapses redundant separators and rejects traversal
// outside the configured root. The empty string addresses the root itself.
func normalizePath(op Op, p string) (string, error) {
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return "", nil
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		return "", nil
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", NewError(KindInvalidInput, op, p, "path escapes root")
	}
	return cleaned, nil
}

// gate fails fast with Unsupported before any backend I/O happens.
func (o *Operator) gate(op Op, p string) error {
	if !o.cap.Supports(op) {
		return NewError(KindUnsupported, op, p, "capability not declared by backend")
	}
	return nil
}

func (o *Operator) validateRead(p string, opts ReadOptions) error {
	if opts.Range != nil {
		if !o.cap.ReadWithRange {
			return NewError(KindUnsupported, OpRead, p, "backend does not support ranged reads")
		}
		if opts.Range.Start < 0 {
			return NewError(KindInvalidInput, OpRead, p, "range start is negative")
		}
		if opts.Range.Length == 0 {
			return NewError(KindInvalidInput, OpRead, p, "range length is zero")
		}
	}
	return nil
}

// ============================================================================
// Operations
// ============================================================================

// Stat returns metadata for the entry at path.
func (o *Operator) Stat(ctx context.Context, p string, opts ...StatOption) (Metadata, error) {
	p, err := normalizePath(OpStat, p)
	if err != nil {
		return Metadata{}, err
	}
	if err := o.gate(OpStat, p); err != nil {
		return Metadata{}, err
	}
	return o.accessor.Stat(ctx, p, NewStatOptions(opts...))
}

// Exists reports whether an entry exists at path.
func (o *Operator) Exists(ctx context.Context, p string) (bool, error) {
	_, err := o.Stat(ctx, p)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Read returns the full content of the entry at path, or the selected
// byte range when WithRange is given.
func (o *Operator) Read(ctx context.Context, p string, opts ...ReadOption) ([]byte, error) {
	rc, err := o.openRead(ctx, p, NewReadOptions(opts...))
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, WrapError(KindUnexpected, OpRead, p, err)
	}
	return data, nil
}

// openRead validates and dispatches a streaming read.
func (o *Operator) openRead(ctx context.Context, p string, ro ReadOptions) (io.ReadCloser, error) {
	p, err := normalizePath(OpRead, p)
	if err != nil {
		return nil, err
	}
	if err := o.gate(OpRead, p); err != nil {
		return nil, err
	}
	if err := o.validateRead(p, ro); err != nil {
		return nil, err
	}
	return o.accessor.Read(ctx, p, ro)
}

// Reader opens a seekable read handle over the entry at path.
func (o *Operator) Reader(ctx context.Context, p string) (*Reader, error) {
	p, err := normalizePath(OpRead, p)
	if err != nil {
		return nil, err
	}
	if err := o.gate(OpRead, p); err != nil {
		return nil, err
	}
	meta, err := o.accessor.Stat(ctx, p, StatOptions{})
	if err != nil {
		return nil, err
	}
	if meta.IsDir() {
		return nil, NewError(KindIsADirectory, OpRead, p, "cannot open a directory for reading")
	}
	size, ok := meta.Size()
	if !ok {
		return nil, NewError(KindUnexpected, OpRead, p, "backend did not report a size for a regular object")
	}
	return newReader(o, p, size), nil
}

// Write stores data at path and returns the resulting metadata.
func (o *Operator) Write(ctx context.Context, p string, data []byte, opts ...WriteOption) (Metadata, error) {
	return o.WriteFrom(ctx, p, bytes.NewReader(data), opts...)
}

// WriteFrom stores the content read from r at path.
func (o *Operator) WriteFrom(ctx context.Context, p string, r io.Reader, opts ...WriteOption) (Metadata, error) {
	p, err := normalizePath(OpWrite, p)
	if err != nil {
		return Metadata{}, err
	}
	if err := o.gate(OpWrite, p); err != nil {
		return Metadata{}, err
	}
	wo := NewWriteOptions(opts...)
	if wo.ContentType != "" && !o.cap.WriteWithContentType {
		return Metadata{}, NewError(KindUnsupported, OpWrite, p, "backend does not support content types")
	}
	return o.accessor.Write(ctx, p, r, wo)
}

// Writer opens a buffered write handle at path. Data is flushed to the
// backend when the buffer threshold fills, on Flush, and on Close.
func (o *Operator) Writer(ctx context.Context, p string, opts ...WriteOption) (*Writer, error) {
	p, err := normalizePath(OpWrite, p)
	if err != nil {
		return nil, err
	}
	if err := o.gate(OpWrite, p); err != nil {
		return nil, err
	}
	wo := NewWriteOptions(opts...)
	if wo.ContentType != "" && !o.cap.WriteWithContentType {
		return nil, NewError(KindUnsupported, OpWrite, p, "backend does not support content types")
	}
	return newWriter(ctx, o, p, wo), nil
}

// Delete removes the entry at path.
func (o *Operator) Delete(ctx context.Context, p string, opts ...DeleteOption) error {
	p, err := normalizePath(OpDelete, p)
	if err != nil {
		return err
	}
	if err := o.gate(OpDelete, p); err != nil {
		return err
	}
	return o.accessor.Delete(ctx, p, NewDeleteOptions(opts...))
}

// CreateDir creates a directory (and parents) at path.
func (o *Operator) CreateDir(ctx context.Context, p string) error {
	p, err := normalizePath(OpCreateDir, p)
	if err != nil {
		return err
	}
	if err := o.gate(OpCreateDir, p); err != nil {
		return err
	}
	return o.accessor.CreateDir(ctx, p)
}

// List starts a listing under path and returns a Lister the caller must
// drain or close.
func (o *Operator) List(ctx context.Context, p string, opts ...ListOption) (*Lister, error) {
	p, err := normalizePath(OpList, p)
	if err != nil {
		return nil, err
	}
	if err := o.gate(OpList, p); err != nil {
		return nil, err
	}
	lo := NewListOptions(opts...)
	if lo.Recursive && !o.cap.ListWithRecursive {
		return nil, NewError(KindUnsupported, OpList, p, "backend does not support recursive listings")
	}
	lister, err := newLister(lo)
	if err != nil {
		return nil, err
	}
	pager, err := o.accessor.List(ctx, p, lo)
	if err != nil {
		return nil, err
	}
	lister.pager = pager
	return lister, nil
}

// ListAll drains a listing into a slice. Convenience for small listings;
// prefer List for anything unbounded.
func (o *Operator) ListAll(ctx context.Context, p string, opts ...ListOption) ([]Entry, error) {
	lister, err := o.List(ctx, p, opts...)
	if err != nil {
		return nil, err
	}
	defer lister.Close()

	var entries []Entry
	for {
		entry, err := lister.Next(ctx)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			return entries, nil
		}
		entries = append(entries, *entry)
	}
}

// Rename moves an entry from one path to another.
func (o *Operator) Rename(ctx context.Context, from, to string) error {
	from, err := normalizePath(OpRename, from)
	if err != nil {
		return err
	}
	to, err = normalizePath(OpRename, to)
	if err != nil {
		return err
	}
	if from == to {
		return NewError(KindInvalidInput, OpRename, from, "source and destination are the same")
	}
	if err := o.gate(OpRename, from); err != nil {
		return err
	}
	return o.accessor.Rename(ctx, from, to)
}

// Copy duplicates an entry from one path to another.
func (o *Operator) Copy(ctx context.Context, from, to string) error {
	from, err := normalizePath(OpCopy, from)
	if err != nil {
		return err
	}
	to, err = normalizePath(OpCopy, to)
	if err != nil {
		return err
	}
	if from == to {
		return NewError(KindInvalidInput, OpCopy, from, "source and destination are the same")
	}
	if err := o.gate(OpCopy, from); err != nil {
		return err
	}
	return o.accessor.Copy(ctx, from, to)
}

// PresignRead mints a presigned request for downloading the entry.
func (o *Operator) PresignRead(ctx context.Context, p string, expire time.Duration) (PresignedRequest, error) {
	return o.presign(ctx, p, expire, true)
}

// PresignWrite mints a presigned request for uploading to the path.
func (o *Operator) PresignWrite(ctx context.Context, p string, expire time.Duration) (PresignedRequest, error) {
	return o.presign(ctx, p, expire, false)
}

func (o *Operator) presign(ctx context.Context, p string, expire time.Duration, read bool) (PresignedRequest, error) {
	p, err := normalizePath(OpPresign, p)
	if err != nil {
		return PresignedRequest{}, err
	}
	if err := o.gate(OpPresign, p); err != nil {
		return PresignedRequest{}, err
	}
	if expire <= 0 {
		return PresignedRequest{}, NewError(KindInvalidInput, OpPresign, p, "expiry must be positive")
	}
	signer, ok := o.accessor.(CanPresign)
	if !ok {
		return PresignedRequest{}, NewError(KindUnsupported, OpPresign, p, "backend declares presign but does not implement it")
	}
	if read {
		return signer.PresignRead(ctx, p, expire)
	}
	return signer.PresignWrite(ctx, p, expire)
}

// Watch returns a change token for the path. Backends without native
// events report the Watch capability off and this fails with Unsupported.
func (o *Operator) Watch(ctx context.Context, p string) (ChangeToken, error) {
	p, err := normalizePath(OpWatch, p)
	if err != nil {
		return nil, err
	}
	if err := o.gate(OpWatch, p); err != nil {
		return nil, err
	}
	watcher, ok := o.accessor.(CanWatch)
	if !ok {
		return nil, NewError(KindUnsupported, OpWatch, p, "backend declares watch but does not implement it")
	}
	return watcher.Watch(ctx, p)
}

// Check probes the backend with a stat of the root. A healthy backend
// returns nil; NotFound on the root also counts as healthy since empty
// stores are legal.
func (o *Operator) Check(ctx context.Context) error {
	_, err := o.accessor.Stat(ctx, "", StatOptions{})
	if err != nil && !IsNotFound(err) {
		return err
	}
	return nil
}
