package storkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryOpen(t *testing.T) {
	Register("fake-open", func(options map[string]string) (Accessor, error) {
		return newFakeAccessor(), nil
	})

	op, err := Open("fake-open", nil)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = op.Write(ctx, "a.txt", []byte("x"))
	require.NoError(t, err)

	assert.Contains(t, Schemes(), Scheme("fake-open"))
}

func TestRegistryUnknownScheme(t *testing.T) {
	_, err := Open("no-such-backend", nil)
	require.Error(t, err)
	assert.Equal(t, KindUnsupported, ErrorKind(err))
	assert.Contains(t, err.Error(), `"no-such-backend"`)
}

func TestRegistryFactoryFailure(t *testing.T) {
	Register("fake-broken", func(options map[string]string) (Accessor, error) {
		endpoint, err := RequireOption(options, "endpoint")
		if err != nil {
			return nil, err
		}
		_ = endpoint
		return newFakeAccessor(), nil
	})

	_, err := Open("fake-broken", map[string]string{})
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, ErrorKind(err))
}

func TestRequireOption(t *testing.T) {
	v, err := RequireOption(map[string]string{"root": "/tmp/data"}, "root")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/data", v)

	_, err = RequireOption(map[string]string{"root": ""}, "root")
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, ErrorKind(err))
	assert.Contains(t, err.Error(), `"root"`)
}

func TestBoolOption(t *testing.T) {
	v, err := BoolOption(map[string]string{"in_memory": "true"}, "in_memory", false)
	require.NoError(t, err)
	assert.True(t, v)

	v, err = BoolOption(map[string]string{}, "in_memory", true)
	require.NoError(t, err)
	assert.True(t, v)

	_, err = BoolOption(map[string]string{"in_memory": "yep"}, "in_memory", false)
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, ErrorKind(err))
}

func TestIntOption(t *testing.T) {
	v, err := IntOption(map[string]string{"max_size": "1048576"}, "max_size", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1048576), v)

	v, err = IntOption(map[string]string{}, "max_size", 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	_, err = IntOption(map[string]string{"max_size": "lots"}, "max_size", 0)
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, ErrorKind(err))
}
