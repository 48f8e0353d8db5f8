package storkit

import "time"

// EntryMode describes what kind of entry a path points at.
type EntryMode int

const (
	// ModeUnknown is reported by backends that cannot distinguish files
	// from directories without an extra round trip.
	ModeUnknown EntryMode = iota
	// ModeFile is a regular object holding content.
	ModeFile
	// ModeDir is a directory (or a synthesized common prefix on flat
	// object stores).
	ModeDir
)

// String returns a short name for the mode.
func (m EntryMode) String() string {
	switch m {
	case ModeFile:
		return "file"
	case ModeDir:
		return "dir"
	default:
		return "unknown"
	}
}

// IsFile reports whether the entry is a regular object.
func (m EntryMode) IsFile() bool { return m == ModeFile }

// IsDir reports whether the entry is a directory.
func (m EntryMode) IsDir() bool { return m == ModeDir }

// Metadata describes a stored entry. Values are immutable once returned;
// drivers allocate a fresh Metadata per call and callers never mutate
// backend state through it.
//
// Optional fields use pointers so "the backend did not report this" stays
// distinct from a zero value. Directories in particular surface a nil
// ContentLength, never zero.
type Metadata struct {
	Mode EntryMode

	// ContentLength is the object size in bytes, if known.
	ContentLength *int64

	// LastModified is the backend's modification timestamp, if known.
	LastModified *time.Time

	// ETag is an opaque version tag, if the backend provides one.
	ETag string

	// ContentType is the MIME type, if known.
	ContentType string

	// UserMetadata carries backend key/value metadata attached to the
	// entry at write time.
	UserMetadata map[string]string
}

// Size returns the content length, or ok=false when the backend did not
// report one.
func (m Metadata) Size() (int64, bool) {
	if m.ContentLength == nil {
		return 0, false
	}
	return *m.ContentLength, true
}

// IsFile reports whether the entry is a regular object.
func (m Metadata) IsFile() bool { return m.Mode.IsFile() }

// IsDir reports whether the entry is a directory.
func (m Metadata) IsDir() bool { return m.Mode.IsDir() }

// Entry is the unit yielded by a Lister: a normalized path plus the
// metadata the backend returned alongside it.
type Entry struct {
	Path     string
	Metadata Metadata
}

// Name returns the last path component of the entry.
func (e Entry) Name() string {
	p := e.Path
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			if i == len(p)-1 {
				// Trailing slash on directory entries.
				p = p[:i]
				continue
			}
			return p[i+1:]
		}
	}
	return p
}

// length returns a pointer to v, for building optional Metadata fields.
func length(v int64) *int64 { return &v }

// timestamp returns a pointer to t, for building optional Metadata fields.
func timestamp(t time.Time) *time.Time { return &t }

// NewFileMetadata builds Metadata for a regular object of the given size.
// Intended for drivers.
func NewFileMetadata(size int64, modTime time.Time) Metadata {
	return Metadata{
		Mode:          ModeFile,
		ContentLength: length(size),
		LastModified:  timestamp(modTime),
	}
}

// NewDirMetadata builds Metadata for a directory. Size is deliberately left
// unset: backends report directory sizes inconsistently, so the core never
// fabricates one.
func NewDirMetadata(modTime time.Time) Metadata {
	return Metadata{
		Mode:         ModeDir,
		LastModified: timestamp(modTime),
	}
}
