// Package badgerkv provides a storage driver backed by a Badger key-value
// store. Objects live under a flat keyspace; directory entries are marker
// keys, and listings iterate the key space by prefix.
//
// Badger gives the driver cheap transactional renames and copies, which
// the object-store drivers cannot offer natively.
package badgerkv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/gobeaver/storkit"
)

// Key prefixes partition the keyspace: object content, object metadata,
// and directory markers.
const (
	contentPrefix = "o:"
	metaPrefix    = "m:"
	dirPrefix     = "d:"
)

// objectMeta is the JSON metadata record stored alongside each object.
type objectMeta struct {
	Size         int64             `json:"size"`
	ModTime      time.Time         `json:"mod_time"`
	ETag         string            `json:"etag"`
	ContentType  string            `json:"content_type,omitempty"`
	UserMetadata map[string]string `json:"user_metadata,omitempty"`
}

// Driver provides a Badger implementation of storkit.Accessor.
type Driver struct {
	db *badger.DB
}

// Config holds configuration for the badger driver.
type Config struct {
	// Dir is the database directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps the whole store in memory; nothing survives Close.
	InMemory bool
}

// New opens (or creates) a Badger database and wraps it in a driver.
func New(cfg Config) (*Driver, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Dir == "" {
			return nil, storkit.NewError(storkit.KindInvalidInput, storkit.OpOpen, "", "badger directory is required")
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, storkit.WrapError(storkit.KindUnexpected, storkit.OpOpen, cfg.Dir, err)
	}
	return &Driver{db: db}, nil
}

// NewWithDB wraps an already open Badger database. The caller keeps
// ownership of the database lifecycle.
func NewWithDB(db *badger.DB) *Driver {
	return &Driver{db: db}
}

// Close releases the underlying database.
func (d *Driver) Close() error {
	if err := d.db.Close(); err != nil {
		return storkit.WrapError(storkit.KindUnexpected, storkit.OpOpen, "", err)
	}
	return nil
}

// Info implements storkit.Accessor.
func (d *Driver) Info() storkit.Capability {
	return storkit.Capability{
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
		ListPageSize:         500,
	}
}

// Stat implements storkit.Accessor.
func (d *Driver) Stat(ctx context.Context, p string, opts storkit.StatOptions) (storkit.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return storkit.Metadata{}, storkit.WrapError(storkit.KindUnexpected, storkit.OpStat, p, err)
	}
	if p == "" {
		return storkit.Metadata{Mode: storkit.ModeDir}, nil
	}

	var meta storkit.Metadata
	err := d.db.View(func(txn *badger.Txn) error {
		if om, err := readMeta(txn, p); err == nil {
			if opts.IfMatch != "" && opts.IfMatch != om.ETag {
				return storkit.NewError(storkit.KindConflict, storkit.OpStat, p, "etag mismatch")
			}
			meta = om.metadata()
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if _, err := txn.Get([]byte(dirPrefix + p)); err == nil {
			meta = storkit.Metadata{Mode: storkit.ModeDir}
			return nil
		}
		return storkit.NewError(storkit.KindNotFound, storkit.OpStat, p, "")
	})
	if err != nil {
		return storkit.Metadata{}, mapError(storkit.OpStat, p, err)
	}
	return meta, nil
}

// Read implements storkit.Accessor.
func (d *Driver) Read(ctx context.Context, p string, opts storkit.ReadOptions) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, storkit.WrapError(storkit.KindUnexpected, storkit.OpRead, p, err)
	}

	var content []byte
	err := d.db.View(func(txn *badger.Txn) error {
		if opts.IfMatch != "" {
			om, err := readMeta(txn, p)
			if err != nil {
				return err
			}
			if opts.IfMatch != om.ETag {
				return storkit.NewError(storkit.KindConflict, storkit.OpRead, p, "etag mismatch")
			}
		}
		item, err := txn.Get([]byte(contentPrefix + p))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				if _, derr := txn.Get([]byte(dirPrefix + p)); derr == nil {
					return storkit.NewError(storkit.KindIsADirectory, storkit.OpRead, p, "")
				}
			}
			return err
		}
		content, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, mapError(storkit.OpRead, p, err)
	}

	if opts.Range != nil {
		start, length := opts.Range.Start, opts.Range.Length
		if start > int64(len(content)) {
			return nil, storkit.NewError(storkit.KindInvalidInput, storkit.OpRead, p, "range start beyond object size")
		}
		content = content[start:]
		if length >= 0 && length < int64(len(content)) {
			content = content[:length]
		}
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

// Write implements storkit.Accessor. Content and metadata commit in one
// transaction, so readers never see one without the other.
func (d *Driver) Write(ctx context.Context, p string, r io.Reader, opts storkit.WriteOptions) (storkit.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return storkit.Metadata{}, storkit.WrapError(storkit.KindUnexpected, storkit.OpWrite, p, err)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return storkit.Metadata{}, storkit.WrapError(storkit.KindUnexpected, storkit.OpWrite, p, err)
	}

	om := objectMeta{
		Size:         int64(len(data)),
		ModTime:      time.Now(),
		ETag:         fmt.Sprintf("%016x", xxhash.Sum64(data)),
		ContentType:  opts.ContentType,
		UserMetadata: opts.UserMetadata,
	}
	encoded, err := json.Marshal(om)
	if err != nil {
		return storkit.Metadata{}, storkit.WrapError(storkit.KindUnexpected, storkit.OpWrite, p, err)
	}

	err = d.db.Update(func(txn *badger.Txn) error {
		if _, derr := txn.Get([]byte(dirPrefix + p)); derr == nil {
			return storkit.NewError(storkit.KindIsADirectory, storkit.OpWrite, p, "")
		}
		existing, err := readMeta(txn, p)
		exists := err == nil
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if exists && !opts.Overwrite {
			return storkit.NewError(storkit.KindAlreadyExists, storkit.OpWrite, p, "")
		}
		if opts.IfMatch != "" && (!exists || existing.ETag != opts.IfMatch) {
			return storkit.NewError(storkit.KindConflict, storkit.OpWrite, p, "etag mismatch")
		}
		if err := ensureParentDirs(txn, p); err != nil {
			return err
		}
		if err := txn.Set([]byte(contentPrefix+p), data); err != nil {
			return err
		}
		return txn.Set([]byte(metaPrefix+p), encoded)
	})
	if err != nil {
		return storkit.Metadata{}, mapError(storkit.OpWrite, p, err)
	}
	return om.metadata(), nil
}

// Delete implements storkit.Accessor. Deleting a directory removes its
// entire subtree in one transaction.
func (d *Driver) Delete(ctx context.Context, p string, opts storkit.DeleteOptions) error {
	if err := ctx.Err(); err != nil {
		return storkit.WrapError(storkit.KindUnexpected, storkit.OpDelete, p, err)
	}

	err := d.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(contentPrefix + p)); err == nil {
			if err := txn.Delete([]byte(contentPrefix + p)); err != nil {
				return err
			}
			return txn.Delete([]byte(metaPrefix + p))
		}
		if _, err := txn.Get([]byte(dirPrefix + p)); err == nil {
			return deleteSubtree(txn, p)
		}
		if opts.Idempotent {
			return nil
		}
		return storkit.NewError(storkit.KindNotFound, storkit.OpDelete, p, "")
	})
	if err != nil {
		return mapError(storkit.OpDelete, p, err)
	}
	return nil
}

// deleteSubtree removes a directory marker and every key beneath it.
func deleteSubtree(txn *badger.Txn, p string) error {
	var doomed [][]byte
	for _, prefix := range []string{contentPrefix, metaPrefix, dirPrefix} {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(prefix + p + "/")})
		for it.Rewind(); it.Valid(); it.Next() {
			doomed = append(doomed, it.Item().KeyCopy(nil))
		}
		it.Close()
	}
	doomed = append(doomed, []byte(dirPrefix+p))
	for _, key := range doomed {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// CreateDir implements storkit.Accessor.
func (d *Driver) CreateDir(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return storkit.WrapError(storkit.KindUnexpected, storkit.OpCreateDir, p, err)
	}

	err := d.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(contentPrefix + p)); err == nil {
			return storkit.NewError(storkit.KindNotADirectory, storkit.OpCreateDir, p, "an object exists at this path")
		}
		if err := ensureParentDirs(txn, p); err != nil {
			return err
		}
		return txn.Set([]byte(dirPrefix+p), nil)
	})
	if err != nil {
		return mapError(storkit.OpCreateDir, p, err)
	}
	return nil
}

// ensureParentDirs creates marker keys for every ancestor of p.
func ensureParentDirs(txn *badger.Txn, p string) error {
	dir := path.Dir(p)
	for dir != "." && dir != "/" && dir != "" {
		if err := txn.Set([]byte(dirPrefix+dir), nil); err != nil {
			return err
		}
		dir = path.Dir(dir)
	}
	return nil
}

// List implements storkit.Accessor by iterating the key space under the
// path prefix and snapshotting matching entries.
func (d *Driver) List(ctx context.Context, p string, opts storkit.ListOptions) (storkit.Pager, error) {
	if err := ctx.Err(); err != nil {
		return nil, storkit.WrapError(storkit.KindUnexpected, storkit.OpList, p, err)
	}

	var entries []storkit.Entry
	err := d.db.View(func(txn *badger.Txn) error {
		if p != "" {
			if _, err := txn.Get([]byte(dirPrefix + p)); err != nil {
				if _, oerr := txn.Get([]byte(contentPrefix + p)); oerr == nil {
					return storkit.NewError(storkit.KindNotADirectory, storkit.OpList, p, "")
				}
				return storkit.NewError(storkit.KindNotFound, storkit.OpList, p, "")
			}
		}

		keyPrefix := ""
		if p != "" {
			keyPrefix = p + "/"
		}
		admit := func(entryPath string) bool {
			if entryPath == p || !strings.HasPrefix(entryPath, keyPrefix) {
				return false
			}
			if opts.Recursive {
				return true
			}
			return !strings.Contains(entryPath[len(keyPrefix):], "/")
		}

		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(metaPrefix + keyPrefix)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			entryPath := strings.TrimPrefix(string(it.Item().Key()), metaPrefix)
			if !admit(entryPath) {
				continue
			}
			var om objectMeta
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &om)
			}); err != nil {
				return err
			}
			entries = append(entries, storkit.Entry{Path: entryPath, Metadata: om.metadata()})
		}

		dit := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(dirPrefix + keyPrefix)})
		defer dit.Close()
		for dit.Rewind(); dit.Valid(); dit.Next() {
			entryPath := strings.TrimPrefix(string(dit.Item().Key()), dirPrefix)
			if !admit(entryPath) {
				continue
			}
			entries = append(entries, storkit.Entry{Path: entryPath, Metadata: storkit.Metadata{Mode: storkit.ModeDir}})
		}
		return nil
	})
	if err != nil {
		return nil, mapError(storkit.OpList, p, err)
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
		pageSize = 500
	}
	return &badgerPager{entries: entries, pageSize: int(pageSize)}, nil
}

// badgerPager pages through a snapshot taken at List time.
type badgerPager struct {
	entries  []storkit.Entry
	pageSize int
	closed   bool
}

func (p *badgerPager) NextPage(ctx context.Context) ([]storkit.Entry, error) {
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

func (p *badgerPager) Close() error {
	p.closed = true
	p.entries = nil
	return nil
}

// Rename implements storkit.Accessor as an atomic move inside one
// transaction.
func (d *Driver) Rename(ctx context.Context, from, to string) error {
	if err := ctx.Err(); err != nil {
		return storkit.WrapError(storkit.KindUnexpected, storkit.OpRename, from, err)
	}
	err := d.db.Update(func(txn *badger.Txn) error {
		if err := copyObject(txn, from, to, true); err != nil {
			return err
		}
		if err := txn.Delete([]byte(contentPrefix + from)); err != nil {
			return err
		}
		return txn.Delete([]byte(metaPrefix + from))
	})
	if err != nil {
		return mapError(storkit.OpRename, from, err)
	}
	return nil
}

// Copy implements storkit.Accessor.
func (d *Driver) Copy(ctx context.Context, from, to string) error {
	if err := ctx.Err(); err != nil {
		return storkit.WrapError(storkit.KindUnexpected, storkit.OpCopy, from, err)
	}
	err := d.db.Update(func(txn *badger.Txn) error {
		return copyObject(txn, from, to, false)
	})
	if err != nil {
		return mapError(storkit.OpCopy, from, err)
	}
	return nil
}

// copyObject duplicates content and metadata keys inside a transaction.
func copyObject(txn *badger.Txn, from, to string, rename bool) error {
	op := storkit.OpCopy
	if rename {
		op = storkit.OpRename
	}

	item, err := txn.Get([]byte(contentPrefix + from))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			if _, derr := txn.Get([]byte(dirPrefix + from)); derr == nil {
				return storkit.NewError(storkit.KindIsADirectory, op, from, "")
			}
			return storkit.NewError(storkit.KindNotFound, op, from, "")
		}
		return err
	}
	content, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}

	om, err := readMeta(txn, from)
	if err != nil {
		return err
	}
	om.ModTime = time.Now()
	encoded, err := json.Marshal(om)
	if err != nil {
		return err
	}

	if err := ensureParentDirs(txn, to); err != nil {
		return err
	}
	if err := txn.Set([]byte(contentPrefix+to), content); err != nil {
		return err
	}
	return txn.Set([]byte(metaPrefix+to), encoded)
}

// readMeta loads the metadata record for a path inside a transaction.
func readMeta(txn *badger.Txn, p string) (objectMeta, error) {
	var om objectMeta
	item, err := txn.Get([]byte(metaPrefix + p))
	if err != nil {
		return om, err
	}
	err = item.Value(func(v []byte) error {
		return json.Unmarshal(v, &om)
	})
	return om, err
}

func (m objectMeta) metadata() storkit.Metadata {
	meta := storkit.NewFileMetadata(m.Size, m.ModTime)
	meta.ETag = m.ETag
	meta.ContentType = m.ContentType
	meta.UserMetadata = m.UserMetadata
	return meta
}

// mapError translates Badger failures into the shared taxonomy.
func mapError(op storkit.Op, p string, err error) *storkit.Error {
	var se *storkit.Error
	if errors.As(err, &se) {
		return se
	}
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return storkit.WrapError(storkit.KindNotFound, op, p, err)
	case errors.Is(err, badger.ErrConflict):
		// Optimistic transaction conflict: safe to retry.
		return storkit.WrapError(storkit.KindUnexpected, op, p, err).WithTemporary()
	case errors.Is(err, badger.ErrDBClosed):
		return storkit.WrapError(storkit.KindClosed, op, p, err)
	default:
		return storkit.WrapError(storkit.KindUnexpected, op, p, err)
	}
}

// Ensure Driver implements the accessor interface
var _ storkit.Accessor = (*Driver)(nil)
