package statestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "/work/a", TargetKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "/work/a", TargetKey, "http://192.168.1.7:8080"))
	require.NoError(t, s.Set(ctx, "/work/b", TargetKey, "http://10.0.0.5:9090"))
	require.NoError(t, s.Set(ctx, "/work/a", ParamsKey("detail.js"), "https://example.com/book/1"))

	got, ok, err := s.Get(ctx, "/work/a", TargetKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "http://192.168.1.7:8080", got)

	got, ok, err = s.Get(ctx, "/work/b", TargetKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "http://10.0.0.5:9090", got)

	require.NoError(t, s.Set(ctx, "/work/a", TargetKey, "http://192.168.1.8:8080"))
	got, _, err = s.Get(ctx, "/work/a", TargetKey)
	require.NoError(t, err)
	assert.Equal(t, "http://192.168.1.8:8080", got)

	require.NoError(t, s.Delete(ctx, "/work/a", TargetKey))
	_, ok, err = s.Get(ctx, "/work/a", TargetKey)
	require.NoError(t, err)
	assert.False(t, ok)

	got, ok, err = s.Get(ctx, "/work/a", ParamsKey("detail.js"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/book/1", got)
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	s := NewMemory()
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".vbook", "state.db")
	s, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, path, s.Path())
	exerciseStore(t, s)
}

func TestSQLiteStorePersistsAcrossOpens(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	first, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "/work/a", TargetKey, "http://192.168.1.7:8080"))
	require.NoError(t, first.Close())

	second, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer second.Close()

	got, ok, err := second.Get(ctx, "/work/a", TargetKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "http://192.168.1.7:8080", got)
}

func TestOpenSQLiteRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	_, err := OpenSQLite(context.Background(), "  ")
	require.Error(t, err)
}
