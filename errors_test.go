package storkit

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	e := NewError(KindNotFound, OpStat, "a/b.txt", "")
	assert.Equal(t, "stat a/b.txt: NotFound", e.Error())

	e = NewError(KindInvalidInput, OpRead, "a.txt", "range start beyond object size")
	assert.Equal(t, "read a.txt: InvalidInput: range start beyond object size", e.Error())

	cause := errors.New("connection reset")
	e = WrapError(KindUnexpected, OpWrite, "a.txt", cause)
	assert.Equal(t, "write a.txt: Unexpected: connection reset", e.Error())
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	wrapped := WrapError(KindUnexpected, OpRead, "a.txt", cause)

	assert.ErrorIs(t, wrapped, cause)

	var e *Error
	require.True(t, errors.As(fmt.Errorf("outer: %w", wrapped), &e))
	assert.Equal(t, KindUnexpected, e.Kind)
	assert.Equal(t, OpRead, e.Op)
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, KindNotFound, ErrorKind(NewError(KindNotFound, OpStat, "x", "")))
	assert.Equal(t, KindUnexpected, ErrorKind(errors.New("opaque")))
	assert.Equal(t, KindUnexpected, ErrorKind(nil))
}

func TestErrorTemporary(t *testing.T) {
	assert.True(t, IsTemporary(NewError(KindRateLimited, OpStat, "x", "")))
	assert.False(t, IsTemporary(NewError(KindUnexpected, OpStat, "x", "")))
	assert.True(t, IsTemporary(NewError(KindUnexpected, OpStat, "x", "").WithTemporary()))
	assert.False(t, IsTemporary(NewError(KindNotFound, OpStat, "x", "")))
	assert.False(t, IsTemporary(errors.New("opaque")))
}

func TestErrorPredicates(t *testing.T) {
	assert.True(t, IsNotFound(NewError(KindNotFound, OpStat, "x", "")))
	assert.True(t, IsAlreadyExists(NewError(KindAlreadyExists, OpWrite, "x", "")))
	assert.True(t, IsPermissionDenied(NewError(KindPermissionDenied, OpRead, "x", "")))
	assert.True(t, IsUnsupported(NewError(KindUnsupported, OpCopy, "x", "")))
	assert.True(t, IsRateLimited(NewError(KindRateLimited, OpList, "x", "")))
	assert.True(t, IsClosed(NewError(KindClosed, OpWrite, "x", "")))
	assert.False(t, IsNotFound(NewError(KindClosed, OpWrite, "x", "")))
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindUnexpected:       "Unexpected",
		KindNotFound:         "NotFound",
		KindAlreadyExists:    "AlreadyExists",
		KindPermissionDenied: "PermissionDenied",
		KindInvalidInput:     "InvalidInput",
		KindUnsupported:      "Unsupported",
		KindRateLimited:      "RateLimited",
		KindConflict:         "Conflict",
		KindClosed:           "Closed",
		KindInvalidState:     "InvalidState",
		KindIsADirectory:     "IsADirectory",
		KindNotADirectory:    "NotADirectory",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}

func TestCapabilitySupports(t *testing.T) {
	c := Capability{Stat: true, Read: true, List: true}

	assert.True(t, c.Supports(OpStat))
	assert.True(t, c.Supports(OpRead))
	assert.True(t, c.Supports(OpList))
	assert.False(t, c.Supports(OpWrite))
	assert.False(t, c.Supports(OpPresign))
	// Batching sits on top of single operations, always available.
	assert.True(t, c.Supports(OpBatch))
}

func TestCapabilityLimit(t *testing.T) {
	c := Capability{MaxBatchSize: 100, ListPageSize: 1000}

	limit, ok := c.Limit(OpBatch)
	require.True(t, ok)
	assert.Equal(t, int64(100), limit)

	limit, ok = c.Limit(OpList)
	require.True(t, ok)
	assert.Equal(t, int64(1000), limit)

	_, ok = Capability{}.Limit(OpBatch)
	assert.False(t, ok)
	_, ok = c.Limit(OpStat)
	assert.False(t, ok)
}
