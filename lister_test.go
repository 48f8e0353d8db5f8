package storkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListerPatternFilter(t *testing.T) {
	ctx := context.Background()
	op := New(newFakeAccessor())

	for _, p := range []string{"a.log", "b.txt", "c.log", "d.json"} {
		_, err := op.Write(ctx, p, []byte("x"))
		require.NoError(t, err)
	}

	entries, err := op.ListAll(ctx, "", WithPattern("*.log"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.log", "c.log"}, entryPaths(entries))
}

func TestListerInvalidPattern(t *testing.T) {
	ctx := context.Background()
	op := New(newFakeAccessor())

	_, err := op.List(ctx, "", WithPattern("[unterminated"))
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, ErrorKind(err))
}

func TestListerExhaustionStaysNil(t *testing.T) {
	ctx := context.Background()
	pager := &fakePager{
		entries:  []Entry{{Path: "only.txt"}},
		pageSize: 2,
	}
	lister := &Lister{pager: pager, seen: make(map[string]struct{})}

	entry, err := lister.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "only.txt", entry.Path)

	for i := 0; i < 3; i++ {
		entry, err = lister.Next(ctx)
		require.NoError(t, err)
		assert.Nil(t, entry)
	}
	// Draining to exhaustion releases the pager without an explicit Close.
	assert.True(t, pager.closed)
}

func TestListerDeduplicatesAcrossPages(t *testing.T) {
	ctx := context.Background()
	pager := &fakePager{
		entries: []Entry{
			{Path: "a.txt"}, {Path: "b.txt"},
			{Path: "b.txt"}, {Path: "c.txt"},
		},
		pageSize: 2,
	}
	lister := &Lister{pager: pager, seen: make(map[string]struct{})}

	var paths []string
	for {
		entry, err := lister.Next(ctx)
		require.NoError(t, err)
		if entry == nil {
			break
		}
		paths = append(paths, entry.Path)
	}
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, paths)
}

func TestListerMidListingFailure(t *testing.T) {
	ctx := context.Background()
	backendErr := NewError(KindUnexpected, OpList, "", "expired continuation token")
	pager := &fakePager{
		entries:   []Entry{{Path: "a.txt"}, {Path: "b.txt"}, {Path: "c.txt"}},
		pageSize:  2,
		failAfter: 1,
		failErr:   backendErr,
	}
	lister := &Lister{pager: pager, seen: make(map[string]struct{})}

	// The first page is still served.
	entry, err := lister.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", entry.Path)
	entry, err = lister.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b.txt", entry.Path)

	// The failure surfaces exactly once and closes the lister.
	_, err = lister.Next(ctx)
	require.Error(t, err)
	assert.Equal(t, backendErr, err)
	assert.True(t, pager.closed)

	entry, err = lister.Next(ctx)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestListerCloseIdempotent(t *testing.T) {
	pager := &fakePager{entries: []Entry{{Path: "a.txt"}}, pageSize: 1}
	lister := &Lister{pager: pager, seen: make(map[string]struct{})}

	require.NoError(t, lister.Close())
	require.NoError(t, lister.Close())
	assert.True(t, pager.closed)
}
