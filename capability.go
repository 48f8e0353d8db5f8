package storkit

// Op identifies a storage operation for capability checks, error reporting
// and metrics.
type Op string

const (
	OpStat      Op = "stat"
	OpRead      Op = "read"
	OpWrite     Op = "write"
	OpDelete    Op = "delete"
	OpCreateDir Op = "createdir"
	OpList      Op = "list"
	OpRename    Op = "rename"
	OpCopy      Op = "copy"
	OpPresign   Op = "presign"
	OpWatch     Op = "watch"
	OpBatch     Op = "batch"
	// OpOpen covers driver construction and configuration failures that
	// happen before any storage operation runs.
	OpOpen Op = "open"
)

// Capability describes what an accessor can do. It is computed once when the
// accessor is constructed and never mutated afterwards; layers that change
// the effective capability return a copy.
//
// A layer may only restrict a capability the underlying accessor declares,
// with one exception: a layer that implements the missing behavior itself
// (for example copy emulated as read+write) may turn the flag on. Emulated
// operations do not inherit the atomicity of a native implementation.
type Capability struct {
	Stat bool

	Read          bool
	ReadWithRange bool

	Write                bool
	WriteWithContentType bool
	// WriteCanStream indicates the accessor implements StreamWriter and
	// can accept data incrementally instead of a single buffered upload.
	WriteCanStream bool

	CreateDir bool
	Delete    bool
	Copy      bool
	Rename    bool

	List              bool
	ListWithRecursive bool

	Presign bool
	Watch   bool

	// MaxBatchSize bounds the number of operations a single Batch may
	// have in flight. Zero means no declared limit.
	MaxBatchSize int64

	// ListPageSize is the backend's native pagination size. Zero means
	// the backend does not paginate (single page listings).
	ListPageSize int64
}

// Supports reports whether the operation is declared by this capability.
func (c Capability) Supports(op Op) bool {
	switch op {
	case OpStat:
		return c.Stat
	case OpRead:
		return c.Read
	case OpWrite:
		return c.Write
	case OpDelete:
		return c.Delete
	case OpCreateDir:
		return c.CreateDir
	case OpList:
		return c.List
	case OpRename:
		return c.Rename
	case OpCopy:
		return c.Copy
	case OpPresign:
		return c.Presign
	case OpWatch:
		return c.Watch
	case OpBatch:
		// Batching is implemented by the core over single operations,
		// so it is available whenever the accessor exists at all.
		return true
	default:
		return false
	}
}

// Limit returns the numeric bound associated with an operation, if any.
func (c Capability) Limit(op Op) (int64, bool) {
	switch op {
	case OpBatch:
		if c.MaxBatchSize > 0 {
			return c.MaxBatchSize, true
		}
	case OpList:
		if c.ListPageSize > 0 {
			return c.ListPageSize, true
		}
	}
	return 0, false
}
