// Package memory provides an in-memory storage driver.
// Useful for testing and as a cache tier; contents do not survive the
// process.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gobeaver/storkit"
)

// memoryObject represents an object stored in memory.
type memoryObject struct {
	content     []byte
	contentType string
	metadata    map[string]string
	modTime     time.Time
	etag        string
}

// memoryDir represents a directory in memory.
type memoryDir struct {
	modTime time.Time
}

// watchEntry represents a single watch subscription.
type watchEntry struct {
	prefix string
	token  *storkit.CallbackChangeToken
}

// Driver provides an in-memory implementation of storkit.Accessor.
type Driver struct {
	mu      sync.RWMutex
	objects map[string]*memoryObject
	dirs    map[string]*memoryDir
	maxSize int64 // Maximum total storage size (0 = unlimited)
	size    int64 // Current total size

	// Watch support
	watchMu sync.RWMutex
	watches []*watchEntry
}

// Config holds configuration for the memory driver.
type Config struct {
	// MaxSize is the maximum total storage size in bytes (0 = unlimited).
	MaxSize int64
}

// New creates a new in-memory driver.
func New(cfg ...Config) *Driver {
	var maxSize int64
	if len(cfg) > 0 {
		maxSize = cfg[0].MaxSize
	}

	d := &Driver{
		objects: make(map[string]*memoryObject),
		dirs:    make(map[string]*memoryDir),
		maxSize: maxSize,
	}

	// Root directory always exists
	d.dirs[""] = &memoryDir{modTime: time.Now()}

	return d
}

// Info implements storkit.Accessor.
func (d *Driver) Info() storkit.Capability {
	return storkit.Capability{
		Stat:                 true,
		Read:                 true,
		ReadWithRange:        true,
		Write:                true,
		WriteWithContentType: true,
		WriteCanStream:       true,
		CreateDir:            true,
		Delete:               true,
		Copy:                 true,
		Rename:               true,
		List:                 true,
		ListWithRecursive:    true,
		Watch:                true,
		ListPageSize:         1000,
	}
}

// Stat implements storkit.Accessor.
func (d *Driver) Stat(ctx context.Context, path string, opts storkit.StatOptions) (storkit.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return storkit.Metadata{}, storkit.WrapError(storkit.KindUnexpected, storkit.OpStat, path, err)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if obj, exists := d.objects[path]; exists {
		if opts.IfMatch != "" && opts.IfMatch != obj.etag {
			return storkit.Metadata{}, storkit.NewError(storkit.KindConflict, storkit.OpStat, path, "etag mismatch")
		}
		return obj.meta(), nil
	}
	if dir, exists := d.dirs[path]; exists {
		return storkit.NewDirMetadata(dir.modTime), nil
	}
	return storkit.Metadata{}, storkit.NewError(storkit.KindNotFound, storkit.OpStat, path, "")
}

// Read implements storkit.Accessor.
func (d *Driver) Read(ctx context.Context, path string, opts storkit.ReadOptions) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, storkit.WrapError(storkit.KindUnexpected, storkit.OpRead, path, err)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	obj, exists := d.objects[path]
	if !exists {
		if _, isDir := d.dirs[path]; isDir {
			return nil, storkit.NewError(storkit.KindIsADirectory, storkit.OpRead, path, "")
		}
		return nil, storkit.NewError(storkit.KindNotFound, storkit.OpRead, path, "")
	}
	if opts.IfMatch != "" && opts.IfMatch != obj.etag {
		return nil, storkit.NewError(storkit.KindConflict, storkit.OpRead, path, "etag mismatch")
	}

	content := obj.content
	if opts.Range != nil {
		start, length := opts.Range.Start, opts.Range.Length
		if start > int64(len(content)) {
			return nil, storkit.NewError(storkit.KindInvalidInput, storkit.OpRead, path, "range start beyond object size")
		}
		content = content[start:]
		if length >= 0 && length < int64(len(content)) {
			content = content[:length]
		}
	}

	// The backing array is never mutated in place, so sharing it with the
	// reader is safe.
	return io.NopCloser(bytes.NewReader(content)), nil
}

// Write implements storkit.Accessor.
func (d *Driver) Write(ctx context.Context, path string, r io.Reader, opts storkit.WriteOptions) (storkit.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return storkit.Metadata{}, storkit.WrapError(storkit.KindUnexpected, storkit.OpWrite, path, err)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return storkit.Metadata{}, storkit.WrapError(storkit.KindUnexpected, storkit.OpWrite, path, err)
	}
	return d.store(path, data, opts)
}

// store publishes data at path under the write lock.
func (d *Driver) store(path string, data []byte, opts storkit.WriteOptions) (storkit.Metadata, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, isDir := d.dirs[path]; isDir && path != "" {
		return storkit.Metadata{}, storkit.NewError(storkit.KindIsADirectory, storkit.OpWrite, path, "")
	}

	existing, exists := d.objects[path]
	if exists && !opts.Overwrite {
		return storkit.Metadata{}, storkit.NewError(storkit.KindAlreadyExists, storkit.OpWrite, path, "")
	}
	if opts.IfMatch != "" {
		if !exists || existing.etag != opts.IfMatch {
			return storkit.Metadata{}, storkit.NewError(storkit.KindConflict, storkit.OpWrite, path, "etag mismatch")
		}
	}

	newSize := d.size + int64(len(data))
	if exists {
		newSize -= int64(len(existing.content))
	}
	if d.maxSize > 0 && newSize > d.maxSize {
		return storkit.Metadata{}, storkit.NewError(storkit.KindInvalidInput, storkit.OpWrite, path, "storage size limit exceeded")
	}

	d.ensureParentDirs(path)

	contentType := opts.ContentType
	if contentType == "" {
		contentType = detectContentType(path, data)
	}

	obj := &memoryObject{
		content:     data,
		contentType: contentType,
		metadata:    cloneMap(opts.UserMetadata),
		modTime:     time.Now(),
		etag:        etag(data),
	}
	d.objects[path] = obj
	d.size = newSize

	go d.notifyWatchers(path)

	return obj.meta(), nil
}

// Delete implements storkit.Accessor. Deleting a directory removes its
// entire subtree.
func (d *Driver) Delete(ctx context.Context, path string, opts storkit.DeleteOptions) error {
	if err := ctx.Err(); err != nil {
		return storkit.WrapError(storkit.KindUnexpected, storkit.OpDelete, path, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if obj, exists := d.objects[path]; exists {
		d.size -= int64(len(obj.content))
		delete(d.objects, path)
		go d.notifyWatchers(path)
		return nil
	}

	if _, exists := d.dirs[path]; exists && path != "" {
		prefix := path + "/"
		var removed []string
		for objPath, obj := range d.objects {
			if strings.HasPrefix(objPath, prefix) {
				d.size -= int64(len(obj.content))
				removed = append(removed, objPath)
				delete(d.objects, objPath)
			}
		}
		for dirPath := range d.dirs {
			if dirPath == path || strings.HasPrefix(dirPath, prefix) {
				delete(d.dirs, dirPath)
			}
		}
		if len(removed) > 0 {
			go func() {
				for _, p := range removed {
					d.notifyWatchers(p)
				}
			}()
		}
		return nil
	}

	if opts.Idempotent {
		return nil
	}
	return storkit.NewError(storkit.KindNotFound, storkit.OpDelete, path, "")
}

// CreateDir implements storkit.Accessor.
func (d *Driver) CreateDir(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return storkit.WrapError(storkit.KindUnexpected, storkit.OpCreateDir, path, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.objects[path]; exists {
		return storkit.NewError(storkit.KindNotADirectory, storkit.OpCreateDir, path, "an object exists at this path")
	}

	d.ensureParentDirs(path)
	if _, exists := d.dirs[path]; !exists {
		d.dirs[path] = &memoryDir{modTime: time.Now()}
	}
	return nil
}

// List implements storkit.Accessor.
func (d *Driver) List(ctx context.Context, path string, opts storkit.ListOptions) (storkit.Pager, error) {
	if err := ctx.Err(); err != nil {
		return nil, storkit.WrapError(storkit.KindUnexpected, storkit.OpList, path, err)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, exists := d.dirs[path]; !exists {
		if _, isObject := d.objects[path]; isObject {
			return nil, storkit.NewError(storkit.KindNotADirectory, storkit.OpList, path, "")
		}
		return nil, storkit.NewError(storkit.KindNotFound, storkit.OpList, path, "")
	}

	entries := d.snapshot(path, opts.Recursive)
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
	return &memoryPager{entries: entries, pageSize: int(pageSize)}, nil
}

// snapshot collects entries under path. Must be called with the read lock
// held.
func (d *Driver) snapshot(path string, recursive bool) []storkit.Entry {
	prefix := ""
	if path != "" {
		prefix = path + "/"
	}

	var entries []storkit.Entry
	admit := func(p string) bool {
		if !strings.HasPrefix(p, prefix) || p == path {
			return false
		}
		if recursive {
			return true
		}
		// Immediate children only
		return !strings.Contains(p[len(prefix):], "/")
	}

	for objPath, obj := range d.objects {
		if admit(objPath) {
			entries = append(entries, storkit.Entry{Path: objPath, Metadata: obj.meta()})
		}
	}
	for dirPath, dir := range d.dirs {
		if dirPath == "" {
			continue
		}
		if admit(dirPath) {
			entries = append(entries, storkit.Entry{Path: dirPath, Metadata: storkit.NewDirMetadata(dir.modTime)})
		}
	}
	return entries
}

// Rename implements storkit.Accessor.
func (d *Driver) Rename(ctx context.Context, from, to string) error {
	if err := ctx.Err(); err != nil {
		return storkit.WrapError(storkit.KindUnexpected, storkit.OpRename, from, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	obj, exists := d.objects[from]
	if !exists {
		if _, isDir := d.dirs[from]; isDir {
			return storkit.NewError(storkit.KindIsADirectory, storkit.OpRename, from, "cannot rename a directory")
		}
		return storkit.NewError(storkit.KindNotFound, storkit.OpRename, from, "")
	}

	d.ensureParentDirs(to)
	if old, replaced := d.objects[to]; replaced {
		d.size -= int64(len(old.content))
	}
	d.objects[to] = obj
	obj.modTime = time.Now()
	delete(d.objects, from)

	go func() {
		d.notifyWatchers(from)
		d.notifyWatchers(to)
	}()
	return nil
}

// Copy implements storkit.Accessor.
func (d *Driver) Copy(ctx context.Context, from, to string) error {
	if err := ctx.Err(); err != nil {
		return storkit.WrapError(storkit.KindUnexpected, storkit.OpCopy, from, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	src, exists := d.objects[from]
	if !exists {
		if _, isDir := d.dirs[from]; isDir {
			return storkit.NewError(storkit.KindIsADirectory, storkit.OpCopy, from, "cannot copy a directory")
		}
		return storkit.NewError(storkit.KindNotFound, storkit.OpCopy, from, "")
	}

	newSize := d.size + int64(len(src.content))
	if old, replaced := d.objects[to]; replaced {
		newSize -= int64(len(old.content))
	}
	if d.maxSize > 0 && newSize > d.maxSize {
		return storkit.NewError(storkit.KindInvalidInput, storkit.OpCopy, to, "storage size limit exceeded")
	}

	d.ensureParentDirs(to)

	content := make([]byte, len(src.content))
	copy(content, src.content)

	d.objects[to] = &memoryObject{
		content:     content,
		contentType: src.contentType,
		metadata:    cloneMap(src.metadata),
		modTime:     time.Now(),
		etag:        src.etag,
	}
	d.size = newSize

	go d.notifyWatchers(to)
	return nil
}

// OpenWrite implements storkit.StreamWriter. Data accumulates in memory
// and publishes atomically on Close.
func (d *Driver) OpenWrite(ctx context.Context, path string, opts storkit.WriteOptions) (storkit.BlobWriter, error) {
	if err := ctx.Err(); err != nil {
		return nil, storkit.WrapError(storkit.KindUnexpected, storkit.OpWrite, path, err)
	}
	return &memoryBlobWriter{driver: d, path: path, opts: opts}, nil
}

// Watch implements storkit.CanWatch. The token signals whenever an object
// at or under the given path changes.
func (d *Driver) Watch(ctx context.Context, path string) (storkit.ChangeToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, storkit.WrapError(storkit.KindUnexpected, storkit.OpWatch, path, err)
	}

	token := storkit.NewCallbackChangeToken()

	d.watchMu.Lock()
	d.watches = append(d.watches, &watchEntry{prefix: path, token: token})
	d.watchMu.Unlock()

	go func() {
		<-ctx.Done()
		d.removeWatch(token)
	}()

	return token, nil
}

// Clear removes all stored objects and directories. Useful for test
// cleanup.
func (d *Driver) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.objects = make(map[string]*memoryObject)
	d.dirs = make(map[string]*memoryDir)
	d.size = 0
	d.dirs[""] = &memoryDir{modTime: time.Now()}
}

// Size returns the current total size of all stored objects.
func (d *Driver) Size() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.size
}

// ObjectCount returns the number of stored objects.
func (d *Driver) ObjectCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.objects)
}

// ensureParentDirs creates all parent directories for a path.
// Must be called with the write lock held.
func (d *Driver) ensureParentDirs(path string) {
	dir := filepath.Dir(path)
	for dir != "" && dir != "." && dir != "/" {
		if _, exists := d.dirs[dir]; !exists {
			d.dirs[dir] = &memoryDir{modTime: time.Now()}
		}
		dir = filepath.Dir(dir)
	}
}

func (d *Driver) notifyWatchers(path string) {
	d.watchMu.RLock()
	defer d.watchMu.RUnlock()

	for _, entry := range d.watches {
		if entry.prefix == "" || path == entry.prefix || strings.HasPrefix(path, entry.prefix+"/") {
			entry.token.SignalChange()
		}
	}
}

func (d *Driver) removeWatch(token *storkit.CallbackChangeToken) {
	d.watchMu.Lock()
	defer d.watchMu.Unlock()

	for i, entry := range d.watches {
		if entry.token == token {
			d.watches[i] = d.watches[len(d.watches)-1]
			d.watches = d.watches[:len(d.watches)-1]
			return
		}
	}
}

func (o *memoryObject) meta() storkit.Metadata {
	m := storkit.NewFileMetadata(int64(len(o.content)), o.modTime)
	m.ETag = o.etag
	m.ContentType = o.contentType
	m.UserMetadata = o.metadata
	return m
}

// etag derives a stable version tag from the content.
func etag(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// detectContentType determines the content type of an object.
func detectContentType(path string, data []byte) string {
	ext := filepath.Ext(path)
	if ext != "" {
		if contentType := mime.TypeByExtension(ext); contentType != "" {
			return contentType
		}
	}
	if len(data) > 0 {
		return http.DetectContentType(data)
	}
	return "application/octet-stream"
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ============================================================================
// Pager
// ============================================================================

// memoryPager pages through a sorted snapshot of the store.
type memoryPager struct {
	entries  []storkit.Entry
	pageSize int
	closed   bool
}

func (p *memoryPager) NextPage(ctx context.Context) ([]storkit.Entry, error) {
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

func (p *memoryPager) Close() error {
	p.closed = true
	p.entries = nil
	return nil
}

// ============================================================================
// Blob Writer
// ============================================================================

// memoryBlobWriter accumulates content and publishes it on Close.
type memoryBlobWriter struct {
	driver *Driver
	path   string
	opts   storkit.WriteOptions
	buf    bytes.Buffer
	done   bool
}

func (w *memoryBlobWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, storkit.NewError(storkit.KindClosed, storkit.OpWrite, w.path, "write on completed upload")
	}
	return w.buf.Write(p)
}

func (w *memoryBlobWriter) Close() (storkit.Metadata, error) {
	if w.done {
		return storkit.Metadata{}, storkit.NewError(storkit.KindClosed, storkit.OpWrite, w.path, "upload already completed")
	}
	w.done = true
	return w.driver.store(w.path, w.buf.Bytes(), w.opts)
}

func (w *memoryBlobWriter) Abort() error {
	w.done = true
	w.buf.Reset()
	return nil
}

// Ensure Driver implements the accessor interfaces
var (
	_ storkit.Accessor     = (*Driver)(nil)
	_ storkit.StreamWriter = (*Driver)(nil)
	_ storkit.CanWatch     = (*Driver)(nil)
)
