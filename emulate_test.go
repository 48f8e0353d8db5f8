package storkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmulationLayerCopy(t *testing.T) {
	ctx := context.Background()
	acc := newFakeAccessor()
	acc.capability.Copy = false
	op := New(acc, EmulationLayer{})

	assert.True(t, op.Capability().Copy)

	_, err := op.Write(ctx, "src.txt", []byte("payload"))
	require.NoError(t, err)

	require.NoError(t, op.Copy(ctx, "src.txt", "dst.txt"))

	data, err := op.Read(ctx, "dst.txt")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	// The backend never saw a native copy.
	assert.Equal(t, 0, acc.callCount(OpCopy))
	assert.Equal(t, 2, acc.callCount(OpWrite))
}

func TestEmulationLayerRename(t *testing.T) {
	ctx := context.Background()
	acc := newFakeAccessor()
	acc.capability.Copy = false
	acc.capability.Rename = false
	op := New(acc, EmulationLayer{})

	assert.True(t, op.Capability().Rename)

	_, err := op.Write(ctx, "old.txt", []byte("payload"))
	require.NoError(t, err)

	require.NoError(t, op.Rename(ctx, "old.txt", "new.txt"))

	exists, err := op.Exists(ctx, "old.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	data, err := op.Read(ctx, "new.txt")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.Equal(t, 0, acc.callCount(OpRename))
}

func TestEmulationLayerPrefersNative(t *testing.T) {
	ctx := context.Background()
	acc := newFakeAccessor()
	op := New(acc, EmulationLayer{})

	_, err := op.Write(ctx, "src.txt", []byte("x"))
	require.NoError(t, err)

	require.NoError(t, op.Copy(ctx, "src.txt", "dst.txt"))
	assert.Equal(t, 1, acc.callCount(OpCopy))

	require.NoError(t, op.Rename(ctx, "src.txt", "moved.txt"))
	assert.Equal(t, 1, acc.callCount(OpRename))
}

func TestEmulationLayerRenameWithoutDelete(t *testing.T) {
	acc := newFakeAccessor()
	acc.capability.Rename = false
	acc.capability.Delete = false
	op := New(acc, EmulationLayer{})

	// Rename needs Delete for the source; without it the gate still
	// rejects the call.
	assert.False(t, op.Capability().Rename)

	err := op.Rename(context.Background(), "a.txt", "b.txt")
	require.Error(t, err)
	assert.Equal(t, KindUnsupported, ErrorKind(err))
}

func TestEmulationLayerCopyMissingSource(t *testing.T) {
	ctx := context.Background()
	acc := newFakeAccessor()
	acc.capability.Copy = false
	op := New(acc, EmulationLayer{})

	err := op.Copy(ctx, "sub", "elsewhere")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}
