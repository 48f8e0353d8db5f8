// Package fs provides a local filesystem storage driver rooted at a
// directory. Paths are resolved against the root; the Operator guarantees
// they cannot escape it.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/gobeaver/storkit"
)

// Driver provides a local filesystem implementation of storkit.Accessor.
type Driver struct {
	root string
}

// New creates a filesystem driver rooted at root, creating the directory
// if it does not exist.
func New(root string) (*Driver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, storkit.WrapError(storkit.KindInvalidInput, storkit.OpOpen, root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, mapError(storkit.OpOpen, root, err)
	}
	return &Driver{root: abs}, nil
}

// Root returns the absolute root directory.
func (d *Driver) Root() string {
	return d.root
}

// Info implements storkit.Accessor.
func (d *Driver) Info() storkit.Capability {
	return storkit.Capability{
		Stat:              true,
		Read:              true,
		ReadWithRange:     true,
		Write:             true,
		WriteCanStream:    true,
		CreateDir:         true,
		Delete:            true,
		Copy:              true,
		Rename:            true,
		List:              true,
		ListWithRecursive: true,
		Watch:             true,
	}
}

// resolve maps a normalized storage path onto the local filesystem.
func (d *Driver) resolve(path string) string {
	if path == "" {
		return d.root
	}
	return filepath.Join(d.root, filepath.FromSlash(path))
}

// rel maps a local filesystem path back to a storage path.
func (d *Driver) rel(full string) string {
	r, err := filepath.Rel(d.root, full)
	if err != nil || r == "." {
		return ""
	}
	return filepath.ToSlash(r)
}

// Stat implements storkit.Accessor.
func (d *Driver) Stat(ctx context.Context, path string, opts storkit.StatOptions) (storkit.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return storkit.Metadata{}, storkit.WrapError(storkit.KindUnexpected, storkit.OpStat, path, err)
	}

	info, err := os.Stat(d.resolve(path))
	if err != nil {
		return storkit.Metadata{}, mapError(storkit.OpStat, path, err)
	}
	meta := metaFromInfo(path, info)
	if opts.IfMatch != "" && opts.IfMatch != meta.ETag {
		return storkit.Metadata{}, storkit.NewError(storkit.KindConflict, storkit.OpStat, path, "etag mismatch")
	}
	return meta, nil
}

// Read implements storkit.Accessor.
func (d *Driver) Read(ctx context.Context, path string, opts storkit.ReadOptions) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, storkit.WrapError(storkit.KindUnexpected, storkit.OpRead, path, err)
	}

	full := d.resolve(path)
	info, err := os.Stat(full)
	if err != nil {
		return nil, mapError(storkit.OpRead, path, err)
	}
	if info.IsDir() {
		return nil, storkit.NewError(storkit.KindIsADirectory, storkit.OpRead, path, "")
	}
	if opts.IfMatch != "" && opts.IfMatch != fileETag(path, info) {
		return nil, storkit.NewError(storkit.KindConflict, storkit.OpRead, path, "etag mismatch")
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, mapError(storkit.OpRead, path, err)
	}

	if opts.Range == nil {
		return f, nil
	}
	if opts.Range.Start > info.Size() {
		f.Close()
		return nil, storkit.NewError(storkit.KindInvalidInput, storkit.OpRead, path, "range start beyond object size")
	}
	if _, err := f.Seek(opts.Range.Start, io.SeekStart); err != nil {
		f.Close()
		return nil, mapError(storkit.OpRead, path, err)
	}
	if opts.Range.Length < 0 {
		return f, nil
	}
	return &limitedFile{Reader: io.LimitReader(f, opts.Range.Length), file: f}, nil
}

// limitedFile is a ranged view over an open file.
type limitedFile struct {
	io.Reader
	file *os.File
}

func (l *limitedFile) Close() error {
	return l.file.Close()
}

// Write implements storkit.Accessor. Content lands in a temporary file in
// the target directory and is renamed into place, so readers never observe
// a partial object.
func (d *Driver) Write(ctx context.Context, path string, r io.Reader, opts storkit.WriteOptions) (storkit.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return storkit.Metadata{}, storkit.WrapError(storkit.KindUnexpected, storkit.OpWrite, path, err)
	}

	bw, err := d.OpenWrite(ctx, path, opts)
	if err != nil {
		return storkit.Metadata{}, err
	}
	if _, err := io.Copy(bw, r); err != nil {
		bw.Abort()
		return storkit.Metadata{}, storkit.WrapError(storkit.KindUnexpected, storkit.OpWrite, path, err)
	}
	return bw.Close()
}

// OpenWrite implements storkit.StreamWriter.
func (d *Driver) OpenWrite(ctx context.Context, path string, opts storkit.WriteOptions) (storkit.BlobWriter, error) {
	if err := ctx.Err(); err != nil {
		return nil, storkit.WrapError(storkit.KindUnexpected, storkit.OpWrite, path, err)
	}

	full := d.resolve(path)
	if info, err := os.Stat(full); err == nil {
		if info.IsDir() {
			return nil, storkit.NewError(storkit.KindIsADirectory, storkit.OpWrite, path, "")
		}
		if !opts.Overwrite {
			return nil, storkit.NewError(storkit.KindAlreadyExists, storkit.OpWrite, path, "")
		}
		if opts.IfMatch != "" && opts.IfMatch != fileETag(path, info) {
			return nil, storkit.NewError(storkit.KindConflict, storkit.OpWrite, path, "etag mismatch")
		}
	} else if opts.IfMatch != "" {
		return nil, storkit.NewError(storkit.KindConflict, storkit.OpWrite, path, "etag mismatch")
	}

	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, mapError(storkit.OpWrite, path, err)
	}
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return nil, mapError(storkit.OpWrite, path, err)
	}
	return &fsBlobWriter{driver: d, path: path, full: full, tmp: tmp}, nil
}

// fsBlobWriter streams into a temp file and renames on Close.
type fsBlobWriter struct {
	driver *Driver
	path   string
	full   string
	tmp    *os.File
	done   bool
}

func (w *fsBlobWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, storkit.NewError(storkit.KindClosed, storkit.OpWrite, w.path, "write on completed upload")
	}
	n, err := w.tmp.Write(p)
	if err != nil {
		return n, storkit.WrapError(storkit.KindUnexpected, storkit.OpWrite, w.path, err)
	}
	return n, nil
}

func (w *fsBlobWriter) Close() (storkit.Metadata, error) {
	if w.done {
		return storkit.Metadata{}, storkit.NewError(storkit.KindClosed, storkit.OpWrite, w.path, "upload already completed")
	}
	w.done = true

	if err := w.tmp.Close(); err != nil {
		os.Remove(w.tmp.Name())
		return storkit.Metadata{}, mapError(storkit.OpWrite, w.path, err)
	}
	if err := os.Rename(w.tmp.Name(), w.full); err != nil {
		os.Remove(w.tmp.Name())
		return storkit.Metadata{}, mapError(storkit.OpWrite, w.path, err)
	}
	info, err := os.Stat(w.full)
	if err != nil {
		return storkit.Metadata{}, mapError(storkit.OpWrite, w.path, err)
	}
	return metaFromInfo(w.path, info), nil
}

func (w *fsBlobWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.tmp.Close()
	if err := os.Remove(w.tmp.Name()); err != nil && !os.IsNotExist(err) {
		return mapError(storkit.OpWrite, w.path, err)
	}
	return nil
}

// Delete implements storkit.Accessor. Deleting a directory removes its
// entire subtree.
func (d *Driver) Delete(ctx context.Context, path string, opts storkit.DeleteOptions) error {
	if err := ctx.Err(); err != nil {
		return storkit.WrapError(storkit.KindUnexpected, storkit.OpDelete, path, err)
	}

	full := d.resolve(path)
	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) && opts.Idempotent {
			return nil
		}
		return mapError(storkit.OpDelete, path, err)
	}

	if info.IsDir() {
		err = os.RemoveAll(full)
	} else {
		err = os.Remove(full)
	}
	if err != nil {
		return mapError(storkit.OpDelete, path, err)
	}
	return nil
}

// CreateDir implements storkit.Accessor.
func (d *Driver) CreateDir(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return storkit.WrapError(storkit.KindUnexpected, storkit.OpCreateDir, path, err)
	}
	if err := os.MkdirAll(d.resolve(path), 0o755); err != nil {
		return mapError(storkit.OpCreateDir, path, err)
	}
	return nil
}

// List implements storkit.Accessor.
func (d *Driver) List(ctx context.Context, path string, opts storkit.ListOptions) (storkit.Pager, error) {
	if err := ctx.Err(); err != nil {
		return nil, storkit.WrapError(storkit.KindUnexpected, storkit.OpList, path, err)
	}

	full := d.resolve(path)
	info, err := os.Stat(full)
	if err != nil {
		return nil, mapError(storkit.OpList, path, err)
	}
	if !info.IsDir() {
		return nil, storkit.NewError(storkit.KindNotADirectory, storkit.OpList, path, "")
	}

	var entries []storkit.Entry
	if opts.Recursive {
		err = filepath.WalkDir(full, func(p string, de iofs.DirEntry, werr error) error {
			if werr != nil {
				return werr
			}
			if p == full {
				return nil
			}
			fi, ierr := de.Info()
			if ierr != nil {
				return ierr
			}
			rel := d.rel(p)
			entries = append(entries, storkit.Entry{Path: rel, Metadata: metaFromInfo(rel, fi)})
			return nil
		})
		if err != nil {
			return nil, mapError(storkit.OpList, path, err)
		}
	} else {
		dirEntries, rerr := os.ReadDir(full)
		if rerr != nil {
			return nil, mapError(storkit.OpList, path, rerr)
		}
		for _, de := range dirEntries {
			fi, ierr := de.Info()
			if ierr != nil {
				return nil, mapError(storkit.OpList, path, ierr)
			}
			rel := d.rel(filepath.Join(full, de.Name()))
			entries = append(entries, storkit.Entry{Path: rel, Metadata: metaFromInfo(rel, fi)})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
	if opts.StartAfter != "" {
		idx := sort.Search(len(entries), func(i int) bool {
			return entries[i].Path > opts.StartAfter
		})
		entries = entries[idx:]
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &fsPager{entries: entries, pageSize: int(pageSize)}, nil
}

// fsPager pages through a directory snapshot.
type fsPager struct {
	entries  []storkit.Entry
	pageSize int
	closed   bool
}

func (p *fsPager) NextPage(ctx context.Context) ([]storkit.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, storkit.WrapError(storkit.KindUnexpected, storkit.OpList, "", err)
	}
	if p.closed || len(p.entries) == 0 {
		return nil, nil
	}
	n := p.pageSize
	if n > len(p.entries) {
		n = len(p.entries)
	}
	page := p.entries[:n]
	p.entries = p.entries[n:]
	return page, nil
}

func (p *fsPager) Close() error {
	p.closed = true
	p.entries = nil
	return nil
}

// Rename implements storkit.Accessor with an atomic filesystem rename.
func (d *Driver) Rename(ctx context.Context, from, to string) error {
	if err := ctx.Err(); err != nil {
		return storkit.WrapError(storkit.KindUnexpected, storkit.OpRename, from, err)
	}

	dst := d.resolve(to)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return mapError(storkit.OpRename, from, err)
	}
	if err := os.Rename(d.resolve(from), dst); err != nil {
		return mapError(storkit.OpRename, from, err)
	}
	return nil
}

// Copy implements storkit.Accessor.
func (d *Driver) Copy(ctx context.Context, from, to string) error {
	if err := ctx.Err(); err != nil {
		return storkit.WrapError(storkit.KindUnexpected, storkit.OpCopy, from, err)
	}

	src, err := d.Read(ctx, from, storkit.ReadOptions{})
	if err != nil {
		return err
	}
	defer src.Close()

	if _, err := d.Write(ctx, to, src, storkit.WriteOptions{Overwrite: true}); err != nil {
		return err
	}
	return nil
}

// Watch implements storkit.CanWatch using inotify (or the platform
// equivalent) on the resolved directory.
func (d *Driver) Watch(ctx context.Context, path string) (storkit.ChangeToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, storkit.WrapError(storkit.KindUnexpected, storkit.OpWatch, path, err)
	}

	full := d.resolve(path)
	info, err := os.Stat(full)
	if err != nil {
		return nil, mapError(storkit.OpWatch, path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, storkit.WrapError(storkit.KindUnexpected, storkit.OpWatch, path, err)
	}

	// Watching a file means watching its directory and filtering.
	watchTarget := full
	var fileFilter string
	if !info.IsDir() {
		watchTarget = filepath.Dir(full)
		fileFilter = full
	}
	if err := watcher.Add(watchTarget); err != nil {
		watcher.Close()
		return nil, mapError(storkit.OpWatch, path, err)
	}

	token := storkit.NewCallbackChangeToken()
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if fileFilter != "" && event.Name != fileFilter {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
					token.SignalChange()
					return
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return token, nil
}

// metaFromInfo converts an os.FileInfo into driver metadata.
func metaFromInfo(path string, info os.FileInfo) storkit.Metadata {
	if info.IsDir() {
		return storkit.NewDirMetadata(info.ModTime())
	}
	m := storkit.NewFileMetadata(info.Size(), info.ModTime())
	m.ETag = fileETag(path, info)
	return m
}

// fileETag derives a cheap version tag from path, size and mtime. Reading
// content to hash it would turn every stat into a full read.
func fileETag(path string, info os.FileInfo) string {
	h := xxhash.New()
	fmt.Fprintf(h, "%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
	return fmt.Sprintf("%016x", h.Sum64())
}

// mapError translates an os error into the shared taxonomy.
func mapError(op storkit.Op, path string, err error) *storkit.Error {
	switch {
	case os.IsNotExist(err):
		return storkit.WrapError(storkit.KindNotFound, op, path, err)
	case os.IsExist(err):
		return storkit.WrapError(storkit.KindAlreadyExists, op, path, err)
	case os.IsPermission(err):
		return storkit.WrapError(storkit.KindPermissionDenied, op, path, err)
	case errors.Is(err, iofs.ErrInvalid):
		return storkit.WrapError(storkit.KindInvalidInput, op, path, err)
	default:
		return storkit.WrapError(storkit.KindUnexpected, op, path, err)
	}
}

// Ensure Driver implements the accessor interfaces
var (
	_ storkit.Accessor     = (*Driver)(nil)
	_ storkit.StreamWriter = (*Driver)(nil)
	_ storkit.CanWatch     = (*Driver)(nil)
)
