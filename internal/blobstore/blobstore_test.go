package blobstore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FSStore {
	t.Helper()
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestFSStore_PutBytesAndGetBytes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	packed := []byte("Files: 1\n<file path=\"main.go\">\npackage main\n</file>")
	hash, err := PutBytes(ctx, s, packed)
	require.NoError(t, err)
	assert.Equal(t, Hash(packed), hash)
	assert.Len(t, hash, 64)

	got, err := GetBytes(ctx, s, hash)
	require.NoError(t, err)
	assert.Equal(t, packed, got)
}

func TestFSStore_Has(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	has, err := s.Has(ctx, "nonexistent")
	require.NoError(t, err)
	assert.False(t, has)

	hash, err := PutBytes(ctx, s, []byte("x"))
	require.NoError(t, err)
	has, err = s.Has(ctx, hash)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestFSStore_PutIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	data := []byte("same")
	require.NoError(t, s.Put(ctx, Hash(data), bytes.NewReader(data)))
	require.NoError(t, s.Put(ctx, Hash(data), bytes.NewReader(data)))

	hashes, err := s.ListHashes(ctx)
	require.NoError(t, err)
	assert.Len(t, hashes, 1)
}

func TestFSStore_PutHashMismatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.Put(ctx, Hash([]byte("a")), bytes.NewReader([]byte("b")))
	assert.ErrorIs(t, err, ErrHashMismatch)

	hashes, err := s.ListHashes(ctx)
	require.NoError(t, err)
	assert.Empty(t, hashes, "temp file must be cleaned up")
}

func TestFSStore_PutInvalidHash(t *testing.T) {
	err := newTestStore(t).Put(context.Background(), "../etc", bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestFSStore_GetMissing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Get(ctx, Hash([]byte("missing")))
	assert.ErrorIs(t, err, ErrBlobNotFound)
	_, err = s.Get(ctx, "not-a-hash")
	assert.ErrorIs(t, err, ErrBlobNotFound)
}

func TestFSStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	hash, err := PutBytes(ctx, s, []byte("gone"))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, hash))
	require.NoError(t, s.Delete(ctx, hash))

	has, err := s.Has(ctx, hash)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestFSStore_ListHashesIgnoresStrayFiles(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewFSStore(root)
	require.NoError(t, err)

	a, _ := PutBytes(ctx, s, []byte("a"))
	b, _ := PutBytes(ctx, s, []byte("b"))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, a[:2], ".blob-tmp"), []byte("x"), 0o644))

	hashes, err := s.ListHashes(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a, b}, hashes)
}
