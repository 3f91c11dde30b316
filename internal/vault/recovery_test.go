package vault

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recvault/recvault/internal/blobstore"
	"github.com/recvault/recvault/internal/index"
	"github.com/recvault/recvault/internal/models"
)

const testGrace = time.Hour

func TestScan_CleanState(t *testing.T) {
	ctx := context.Background()
	v, _, _ := newTestVault(t)

	ingest(t, v, []byte("payload"))

	result, err := v.Scan(ctx, testGrace)
	require.NoError(t, err)

	assert.Equal(t, 1, result.BlobsScanned)
	assert.Equal(t, 1, result.EntriesScanned)
	assert.Equal(t, 0, result.OrphansRemoved)
	assert.Equal(t, 0, result.DanglingMarked)
}

// A crash after the blob write but before the index commit leaves a blob with
// no index entry. The scan must leave neither an entry nor an orphan blob.
func TestScan_OrphanBlobFromCrashedIngest(t *testing.T) {
	ctx := context.Background()
	v, blobs, idx := newTestVault(t)

	id := uuid.New().String()
	path, _, err := blobs.Write(ctx, id, bytes.NewReader([]byte("abandoned mid-ingest")))
	require.NoError(t, err)

	result, err := v.Scan(ctx, testGrace)
	require.NoError(t, err)
	assert.Equal(t, 1, result.OrphansRemoved)

	_, err = blobs.Open(ctx, path)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	_, err = idx.Get(ctx, id)
	assert.ErrorIs(t, err, index.ErrNotFound)
}

// A crash after the index delete but before the blob unlink leaves a deleted
// tombstone pointing at a file. The scan must remove the file and leave no
// committed entry.
func TestScan_LeftoverBlobFromCrashedRemove(t *testing.T) {
	ctx := context.Background()
	v, blobs, idx := newTestVault(t)

	rec := ingest(t, v, []byte("payload"))

	// Simulate the crash window: the index update landed, the unlink did not.
	require.NoError(t, idx.SetStatus(ctx, rec.ID, models.StatusCommitted, models.StatusDeleted))

	result, err := v.Scan(ctx, testGrace)
	require.NoError(t, err)
	assert.Equal(t, 1, result.OrphansRemoved)

	_, err = blobs.Open(ctx, rec.Path)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	recs, _, err := idx.List(ctx, index.ListOptions{Status: models.StatusCommitted})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestScan_DanglingCommittedEntry(t *testing.T) {
	ctx := context.Background()
	v, blobs, idx := newTestVault(t)

	rec := ingest(t, v, []byte("payload"))

	// The blob vanished outside the coordinator's control.
	require.NoError(t, blobs.Remove(ctx, rec.Path))

	result, err := v.Scan(ctx, testGrace)
	require.NoError(t, err)
	assert.Equal(t, 1, result.DanglingMarked)

	got, err := idx.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeleted, got.Status)

	_, err = v.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScan_PendingGraceWindow(t *testing.T) {
	ctx := context.Background()
	v, blobs, idx := newTestVault(t)

	now := time.Now().UTC()

	// A fresh pending entry with its partial blob stays untouched.
	youngID := uuid.New().String()
	youngPath, _, err := blobs.Write(ctx, youngID, bytes.NewReader([]byte("in flight")))
	require.NoError(t, err)
	require.NoError(t, idx.Put(ctx, &models.Recording{
		ID:        youngID,
		Path:      youngPath,
		Status:    models.StatusPending,
		CreatedAt: now.Add(-time.Minute),
		UpdatedAt: now.Add(-time.Minute),
	}))

	// An old pending entry is abandoned and gets deleted.
	oldID := uuid.New().String()
	require.NoError(t, idx.Put(ctx, &models.Recording{
		ID:        oldID,
		Path:      oldID[:2] + "/" + oldID,
		Status:    models.StatusPending,
		CreatedAt: now.Add(-2 * testGrace),
		UpdatedAt: now.Add(-2 * testGrace),
	}))

	result, err := v.Scan(ctx, testGrace)
	require.NoError(t, err)

	assert.Equal(t, 1, result.PendingKept)
	assert.Equal(t, 1, result.PendingExpired)

	// The young entry and its blob survive.
	_, err = idx.Get(ctx, youngID)
	require.NoError(t, err)
	_, err = blobs.Open(ctx, youngPath)
	require.NoError(t, err)

	_, err = idx.Get(ctx, oldID)
	assert.ErrorIs(t, err, index.ErrNotFound)
}

func TestScan_Idempotent(t *testing.T) {
	ctx := context.Background()
	v, blobs, _ := newTestVault(t)

	ingest(t, v, []byte("payload"))

	id := uuid.New().String()
	_, _, err := blobs.Write(ctx, id, bytes.NewReader([]byte("orphan")))
	require.NoError(t, err)

	first, err := v.Scan(ctx, testGrace)
	require.NoError(t, err)
	assert.Equal(t, 1, first.OrphansRemoved)

	second, err := v.Scan(ctx, testGrace)
	require.NoError(t, err)
	assert.Equal(t, 0, second.OrphansRemoved)
	assert.Equal(t, 0, second.DanglingMarked)
}
