package blobstore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FSStore {
	t.Helper()
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestFSStore_WriteAndOpen(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	data := []byte("recording payload")
	id := uuid.New().String()

	path, size, err := s.Write(ctx, id, bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), size)
	assert.Equal(t, id[:2]+"/"+id, path)

	rc, err := s.Open(ctx, path)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestFSStore_Write_InvalidID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, id := range []string{"", "short", "../../etc/passwd", "ABCDEF01-0000-0000-0000-000000000000"} {
		_, _, err := s.Write(ctx, id, bytes.NewReader([]byte("x")))
		assert.ErrorIs(t, err, ErrInvalidID, "id %q", id)
	}
}

func TestFSStore_Write_CancelledContext(t *testing.T) {
	s := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	id := uuid.New().String()
	_, _, err := s.Write(ctx, id, bytes.NewReader([]byte("never published")))
	require.Error(t, err)

	// The final path must never appear for an aborted write.
	_, err = s.Open(context.Background(), id[:2]+"/"+id)
	assert.ErrorIs(t, err, ErrNotFound)

	paths, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestFSStore_Open_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Open(context.Background(), "ab/nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFSStore_Open_PathTraversal(t *testing.T) {
	s := newTestStore(t)

	for _, path := range []string{"../secret", "/etc/passwd", "ab/../../x", ""} {
		_, err := s.Open(context.Background(), path)
		assert.ErrorIs(t, err, ErrInvalidID, "path %q", path)
	}
}

func TestFSStore_Remove(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id := uuid.New().String()
	path, _, err := s.Write(ctx, id, bytes.NewReader([]byte("x")))
	require.NoError(t, err)

	require.NoError(t, s.Remove(ctx, path))

	// Second removal reports absence.
	assert.ErrorIs(t, s.Remove(ctx, path), ErrNotFound)
}

func TestFSStore_List(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	want := make(map[string]bool)
	for i := 0; i < 3; i++ {
		id := uuid.New().String()
		path, _, err := s.Write(ctx, id, bytes.NewReader([]byte{byte(i)}))
		require.NoError(t, err)
		want[path] = true
	}

	paths, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, paths, 3)
	for _, p := range paths {
		assert.True(t, want[p], "unexpected path %q", p)
	}
}

func TestFSStore_List_SkipsTempFiles(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id := uuid.New().String()
	_, _, err := s.Write(ctx, id, bytes.NewReader([]byte("x")))
	require.NoError(t, err)

	// Simulate an in-flight ingest left behind by a crash.
	tmp := filepath.Join(s.root, id[:2], ".ingest-stale")
	require.NoError(t, os.WriteFile(tmp, []byte("partial"), 0o644))

	paths, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, paths, 1)
}

func TestFSStore_SweepTemp(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	dir := filepath.Join(s.root, "ab")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	stale := filepath.Join(dir, ".ingest-old")
	require.NoError(t, os.WriteFile(stale, []byte("partial"), 0o644))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	fresh := filepath.Join(dir, ".ingest-new")
	require.NoError(t, os.WriteFile(fresh, []byte("partial"), 0o644))

	removed, err := s.SweepTemp(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}
