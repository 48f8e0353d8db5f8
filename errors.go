package storkit

import (
	"errors"
	"fmt"
)

// Kind classifies an error into the fixed taxonomy shared by all backends.
// Every backend failure is mapped to exactly one Kind at the driver boundary,
// so layers and callers reason about a single vocabulary regardless of which
// storage service produced the failure.
type Kind int

const (
	// KindUnexpected is the catch-all for backend errors with no better
	// mapping. The original error is preserved for diagnostics.
	KindUnexpected Kind = iota

	// KindNotFound indicates the entry does not exist.
	KindNotFound

	// KindAlreadyExists indicates the entry exists and the operation was
	// configured not to overwrite it.
	KindAlreadyExists

	// KindPermissionDenied indicates the backend rejected the credentials
	// or the operation on this entry.
	KindPermissionDenied

	// KindInvalidInput indicates the caller supplied invalid arguments
	// (malformed path, inverted byte range, missing config keys).
	// Never retryable: the same input produces the same failure.
	KindInvalidInput

	// KindUnsupported indicates the operation is not declared in the
	// effective Capability. Raised before any backend I/O happens.
	KindUnsupported

	// KindRateLimited indicates backend throttling. Kept distinct from
	// KindUnexpected so retry layers can special-case it.
	KindRateLimited

	// KindConflict indicates a concurrent modification detected by the
	// backend (etag mismatch, atomic rename collision).
	KindConflict

	// KindClosed indicates an operation on an already closed handle or
	// lister.
	KindClosed

	// KindInvalidState indicates the handle is in a state where the
	// operation is ambiguous (seek over unflushed buffered writes).
	KindInvalidState

	// KindIsADirectory indicates a file operation hit a directory.
	KindIsADirectory

	// KindNotADirectory indicates a directory operation hit a file.
	KindNotADirectory
)

// String returns the canonical name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindInvalidInput:
		return "InvalidInput"
	case KindUnsupported:
		return "Unsupported"
	case KindRateLimited:
		return "RateLimited"
	case KindConflict:
		return "Conflict"
	case KindClosed:
		return "Closed"
	case KindInvalidState:
		return "InvalidState"
	case KindIsADirectory:
		return "IsADirectory"
	case KindNotADirectory:
		return "NotADirectory"
	default:
		return "Unexpected"
	}
}

// Error is the unified error type returned by every public operation.
// It records the operation, the path it was applied to, the taxonomy kind,
// and the original backend error when one exists.
type Error struct {
	Kind Kind
	Op   Op
	Path string

	// Message is an optional human-readable detail beyond the kind name.
	Message string

	// Err is the original backend error, preserved for diagnostics.
	Err error

	// temporary marks an unexpected error as transient, making it
	// eligible for retry. Set by drivers that can tell a flaky network
	// failure from a permanent one.
	temporary bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Path, msg, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, msg)
}

// Unwrap returns the original backend error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Temporary reports whether a retry could plausibly succeed.
// Rate limiting is always temporary; unexpected errors only when the
// driver marked them so.
func (e *Error) Temporary() bool {
	return e.Kind == KindRateLimited || (e.Kind == KindUnexpected && e.temporary)
}

// WithTemporary marks the error as transient and returns it.
func (e *Error) WithTemporary() *Error {
	e.temporary = true
	return e
}

// NewError creates an Error of the given kind for an operation and path.
func NewError(kind Kind, op Op, path, message string) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Message: message}
}

// WrapError creates an Error of the given kind preserving the original
// backend error. A nil cause is allowed.
func WrapError(kind Kind, op Op, path string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: cause}
}

// ErrorKind extracts the taxonomy kind from an error chain.
// Errors that did not originate in this package report KindUnexpected.
func ErrorKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// IsNotFound reports whether the error indicates a missing entry.
func IsNotFound(err error) bool {
	return ErrorKind(err) == KindNotFound
}

// IsAlreadyExists reports whether the error indicates an existing entry.
func IsAlreadyExists(err error) bool {
	return ErrorKind(err) == KindAlreadyExists
}

// IsPermissionDenied reports whether the error indicates denied access.
func IsPermissionDenied(err error) bool {
	return ErrorKind(err) == KindPermissionDenied
}

// IsUnsupported reports whether the error indicates a missing capability.
func IsUnsupported(err error) bool {
	return ErrorKind(err) == KindUnsupported
}

// IsRateLimited reports whether the error indicates backend throttling.
func IsRateLimited(err error) bool {
	return ErrorKind(err) == KindRateLimited
}

// IsClosed reports whether the error indicates a closed handle.
func IsClosed(err error) bool {
	return ErrorKind(err) == KindClosed
}

// IsTemporary reports whether the error is worth retrying.
func IsTemporary(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Temporary()
	}
	return false
}
