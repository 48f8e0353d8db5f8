package storkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperatorRoundTrip(t *testing.T) {
	ctx := context.Background()
	op := New(newFakeAccessor())

	_, err := op.Write(ctx, "greetings/hello.txt", []byte("hello world"))
	require.NoError(t, err)

	data, err := op.Read(ctx, "greetings/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	meta, err := op.Stat(ctx, "greetings/hello.txt")
	require.NoError(t, err)
	size, ok := meta.Size()
	require.True(t, ok)
	assert.Equal(t, int64(11), size)
}

func TestOperatorCapabilityGate(t *testing.T) {
	ctx := context.Background()

	acc := newFakeAccessor()
	acc.capability.List = false
	op := New(acc)

	_, err := op.List(ctx, "")
	require.Error(t, err)
	assert.Equal(t, KindUnsupported, ErrorKind(err))
	// The gate fires before dispatch: the backend never sees the call.
	assert.Equal(t, 0, acc.callCount(OpList))
}

func TestOperatorPathNormalization(t *testing.T) {
	ctx := context.Background()
	acc := newFakeAccessor()
	op := New(acc)

	t.Run("leading slash and dot segments collapse", func(t *testing.T) {
		_, err := op.Write(ctx, "/a/./b.txt", []byte("x"))
		require.NoError(t, err)

		data, err := op.Read(ctx, "a/b.txt")
		require.NoError(t, err)
		assert.Equal(t, "x", string(data))
	})

	t.Run("escaping the root is rejected", func(t *testing.T) {
		_, err := op.Read(ctx, "../etc/passwd")
		require.Error(t, err)
		assert.Equal(t, KindInvalidInput, ErrorKind(err))
		assert.Equal(t, 0, acc.callCount(OpRead))
	})
}

func TestOperatorExists(t *testing.T) {
	ctx := context.Background()
	op := New(newFakeAccessor())

	exists, err := op.Exists(ctx, "nope.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = op.Write(ctx, "yes.txt", []byte("y"))
	require.NoError(t, err)

	exists, err = op.Exists(ctx, "yes.txt")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestOperatorRangedRead(t *testing.T) {
	ctx := context.Background()
	op := New(newFakeAccessor())

	_, err := op.Write(ctx, "data.bin", []byte("0123456789"))
	require.NoError(t, err)

	t.Run("reads the selected slice", func(t *testing.T) {
		data, err := op.Read(ctx, "data.bin", WithRange(2, 3))
		require.NoError(t, err)
		assert.Equal(t, "234", string(data))
	})

	t.Run("negative length reads to the end", func(t *testing.T) {
		data, err := op.Read(ctx, "data.bin", WithRange(7, -1))
		require.NoError(t, err)
		assert.Equal(t, "789", string(data))
	})

	t.Run("zero length is invalid", func(t *testing.T) {
		_, err := op.Read(ctx, "data.bin", WithRange(0, 0))
		require.Error(t, err)
		assert.Equal(t, KindInvalidInput, ErrorKind(err))
	})

	t.Run("rejected when the backend lacks ranged reads", func(t *testing.T) {
		acc := newFakeAccessor()
		acc.capability.ReadWithRange = false
		limited := New(acc)

		_, err := limited.Read(ctx, "data.bin", WithRange(0, 4))
		require.Error(t, err)
		assert.Equal(t, KindUnsupported, ErrorKind(err))
		assert.Equal(t, 0, acc.callCount(OpRead))
	})
}

func TestOperatorWriteContentTypeGate(t *testing.T) {
	ctx := context.Background()
	acc := newFakeAccessor()
	acc.capability.WriteWithContentType = false
	op := New(acc)

	_, err := op.Write(ctx, "f.json", []byte("{}"), WithContentType("application/json"))
	require.Error(t, err)
	assert.Equal(t, KindUnsupported, ErrorKind(err))
	assert.Equal(t, 0, acc.callCount(OpWrite))
}

func TestOperatorRenameCopyValidation(t *testing.T) {
	ctx := context.Background()
	op := New(newFakeAccessor())

	err := op.Rename(ctx, "same.txt", "/same.txt")
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, ErrorKind(err))

	err = op.Copy(ctx, "a.txt", "a.txt")
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, ErrorKind(err))
}

func TestOperatorListAll(t *testing.T) {
	ctx := context.Background()
	op := New(newFakeAccessor())

	for _, p := range []string{"logs/a.log", "logs/b.log", "logs/c.log", "logs/sub/d.log", "other.txt"} {
		_, err := op.Write(ctx, p, []byte("x"))
		require.NoError(t, err)
	}

	t.Run("immediate children", func(t *testing.T) {
		entries, err := op.ListAll(ctx, "logs")
		require.NoError(t, err)
		paths := entryPaths(entries)
		assert.Equal(t, []string{"logs/a.log", "logs/b.log", "logs/c.log"}, paths)
	})

	t.Run("recursive spans pages", func(t *testing.T) {
		// The fake pager serves two entries per page, so this walks
		// multiple pages.
		entries, err := op.ListAll(ctx, "logs", WithRecursive(true))
		require.NoError(t, err)
		assert.Len(t, entries, 4)
	})

	t.Run("recursive gate", func(t *testing.T) {
		acc := newFakeAccessor()
		acc.capability.ListWithRecursive = false
		limited := New(acc)

		_, err := limited.List(ctx, "", WithRecursive(true))
		require.Error(t, err)
		assert.Equal(t, KindUnsupported, ErrorKind(err))
	})
}

func TestOperatorPresignGate(t *testing.T) {
	ctx := context.Background()
	op := New(newFakeAccessor())

	_, err := op.PresignRead(ctx, "f.txt", 0)
	require.Error(t, err)
	assert.Equal(t, KindUnsupported, ErrorKind(err))
}

func TestOperatorCheck(t *testing.T) {
	ctx := context.Background()
	op := New(newFakeAccessor())
	require.NoError(t, op.Check(ctx))

	acc := newFakeAccessor()
	acc.failNext(OpStat, NewError(KindPermissionDenied, OpStat, "", "denied"))
	broken := New(acc)
	err := broken.Check(ctx)
	require.Error(t, err)
	assert.Equal(t, KindPermissionDenied, ErrorKind(err))
}

func entryPaths(entries []Entry) []string {
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.Path
	}
	return paths
}
