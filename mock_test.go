package storkit

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// fakeAccessor is an in-memory accessor for core tests. It counts every
// dispatched call and can inject failures per operation.
type fakeAccessor struct {
	capability Capability

	mu      sync.Mutex
	objects map[string][]byte
	calls   map[Op]int

	// failures maps an op to a queue of errors returned before real
	// dispatch resumes.
	failures map[Op][]error
}

func newFakeAccessor() *fakeAccessor {
	return &fakeAccessor{
		capability: Capability{
			Stat:                 true,
			Read:                 true,
			ReadWithRange:        true,
			Write:                true,
			WriteWithContentType: true,
			CreateDir:            true,
			Delete:               true,
			Copy:                 true,
			Rename:               true,
			List:                 true,
			ListWithRecursive:    true,
			ListPageSize:         2,
		},
		objects:  make(map[string][]byte),
		calls:    make(map[Op]int),
		failures: make(map[Op][]error),
	}
}

func (f *fakeAccessor) failNext(op Op, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], errs...)
}

func (f *fakeAccessor) callCount(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// enter counts the call and pops an injected failure if one is queued.
func (f *fakeAccessor) enter(op Op) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if queue := f.failures[op]; len(queue) > 0 {
		err := queue[0]
		f.failures[op] = queue[1:]
		return err
	}
	return nil
}

func (f *fakeAccessor) Info() Capability {
	return f.capability
}

func (f *fakeAccessor) Stat(ctx context.Context, path string, opts StatOptions) (Metadata, error) {
	if err := f.enter(OpStat); err != nil {
		return Metadata{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if path == "" {
		return Metadata{Mode: ModeDir}, nil
	}
	data, ok := f.objects[path]
	if !ok {
		return Metadata{}, NewError(KindNotFound, OpStat, path, "")
	}
	return NewFileMetadata(int64(len(data)), time.Now()), nil
}

func (f *fakeAccessor) Read(ctx context.Context, path string, opts ReadOptions) (io.ReadCloser, error) {
	if err := f.enter(OpRead); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[path]
	if !ok {
		return nil, NewError(KindNotFound, OpRead, path, "")
	}
	if opts.Range != nil {
		if opts.Range.Start > int64(len(data)) {
			return nil, NewError(KindInvalidInput, OpRead, path, "range start beyond object size")
		}
		data = data[opts.Range.Start:]
		if opts.Range.Length >= 0 && opts.Range.Length < int64(len(data)) {
			data = data[:opts.Range.Length]
		}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeAccessor) Write(ctx context.Context, path string, r io.Reader, opts WriteOptions) (Metadata, error) {
	if err := f.enter(OpWrite); err != nil {
		return Metadata{}, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return Metadata{}, WrapError(KindUnexpected, OpWrite, path, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.objects[path]; exists && !opts.Overwrite {
		return Metadata{}, NewError(KindAlreadyExists, OpWrite, path, "")
	}
	f.objects[path] = data
	return NewFileMetadata(int64(len(data)), time.Now()), nil
}

func (f *fakeAccessor) Delete(ctx context.Context, path string, opts DeleteOptions) error {
	if err := f.enter(OpDelete); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[path]; !ok {
		if opts.Idempotent {
			return nil
		}
		return NewError(KindNotFound, OpDelete, path, "")
	}
	delete(f.objects, path)
	return nil
}

func (f *fakeAccessor) CreateDir(ctx context.Context, path string) error {
	return f.enter(OpCreateDir)
}

func (f *fakeAccessor) List(ctx context.Context, path string, opts ListOptions) (Pager, error) {
	if err := f.enter(OpList); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	prefix := ""
	if path != "" {
		prefix = path + "/"
	}
	var entries []Entry
	for p, data := range f.objects {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		if !opts.Recursive && strings.Contains(p[len(prefix):], "/") {
			continue
		}
		entries = append(entries, Entry{Path: p, Metadata: NewFileMetadata(int64(len(data)), time.Now())})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	pageSize := int(opts.PageSize)
	if pageSize <= 0 {
		pageSize = 2
	}
	return &fakePager{entries: entries, pageSize: pageSize}, nil
}

func (f *fakeAccessor) Rename(ctx context.Context, from, to string) error {
	if err := f.enter(OpRename); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[from]
	if !ok {
		return NewError(KindNotFound, OpRename, from, "")
	}
	f.objects[to] = data
	delete(f.objects, from)
	return nil
}

func (f *fakeAccessor) Copy(ctx context.Context, from, to string) error {
	if err := f.enter(OpCopy); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[from]
	if !ok {
		return NewError(KindNotFound, OpCopy, from, "")
	}
	dup := make([]byte, len(data))
	copy(dup, data)
	f.objects[to] = dup
	return nil
}

// fakePager serves fixed-size pages from a snapshot and records Close.
type fakePager struct {
	entries  []Entry
	pageSize int
	pages    int
	closed   bool

	// failAfter injects an error once the given number of pages has
	// been served. Zero disables injection.
	failAfter int
	failErr   error
}

func (p *fakePager) NextPage(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, WrapError(KindUnexpected, OpList, "", err)
	}
	if p.failAfter > 0 && p.pages >= p.failAfter {
		return nil, p.failErr
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
	p.pages++
	return page, nil
}

func (p *fakePager) Close() error {
	p.closed = true
	return nil
}

var _ Accessor = (*fakeAccessor)(nil)
