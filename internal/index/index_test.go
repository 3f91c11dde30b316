package index

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recvault/recvault/internal/models"
)

// drivers opens one index per implementation so every test runs against both.
func drivers(t *testing.T) map[string]Index {
	t.Helper()

	bolt, err := NewBoltIndex(filepath.Join(t.TempDir(), "recordings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })

	sqlite, err := NewSQLIndex(filepath.Join(t.TempDir(), "recordings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Index{"bolt": bolt, "sqlite": sqlite}
}

func testRecording(id string, createdAt time.Time) *models.Recording {
	return &models.Recording{
		ID:          id,
		Source:      "source-a",
		Name:        "call.wav",
		ContentType: "audio/wav",
		Size:        10,
		Path:        id[:2] + "/" + id,
		Status:      models.StatusCommitted,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func TestIndex_PutAndGet(t *testing.T) {
	ctx := context.Background()
	for name, idx := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			_, err := idx.Get(ctx, "aaaaaaaa-0000-0000-0000-000000000000")
			assert.ErrorIs(t, err, ErrNotFound)

			rec := testRecording("aaaaaaaa-0000-0000-0000-000000000000", time.Now().UTC().Truncate(time.Microsecond))
			require.NoError(t, idx.Put(ctx, rec))

			got, err := idx.Get(ctx, rec.ID)
			require.NoError(t, err)
			assert.Equal(t, rec.ID, got.ID)
			assert.Equal(t, rec.Source, got.Source)
			assert.Equal(t, rec.ContentType, got.ContentType)
			assert.Equal(t, rec.Size, got.Size)
			assert.Equal(t, rec.Path, got.Path)
			assert.Equal(t, models.StatusCommitted, got.Status)
			assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
		})
	}
}

func TestIndex_Put_Upsert(t *testing.T) {
	ctx := context.Background()
	for name, idx := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			rec := testRecording("bbbbbbbb-0000-0000-0000-000000000000", time.Now().UTC())
			require.NoError(t, idx.Put(ctx, rec))

			rec.Size = 42
			rec.Name = "renamed.wav"
			require.NoError(t, idx.Put(ctx, rec))

			got, err := idx.Get(ctx, rec.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(42), got.Size)
			assert.Equal(t, "renamed.wav", got.Name)

			// Upsert must not duplicate the record in listings.
			recs, _, err := idx.List(ctx, ListOptions{})
			require.NoError(t, err)
			assert.Len(t, recs, 1)
		})
	}
}

func TestIndex_Delete(t *testing.T) {
	ctx := context.Background()
	for name, idx := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, idx.Delete(ctx, "cccccccc-0000-0000-0000-000000000000"), ErrNotFound)

			rec := testRecording("cccccccc-0000-0000-0000-000000000000", time.Now().UTC())
			require.NoError(t, idx.Put(ctx, rec))
			require.NoError(t, idx.Delete(ctx, rec.ID))

			_, err := idx.Get(ctx, rec.ID)
			assert.ErrorIs(t, err, ErrNotFound)

			recs, _, err := idx.List(ctx, ListOptions{})
			require.NoError(t, err)
			assert.Empty(t, recs)
		})
	}
}

func TestIndex_SetStatus(t *testing.T) {
	ctx := context.Background()
	for name, idx := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			err := idx.SetStatus(ctx, "dddddddd-0000-0000-0000-000000000000", models.StatusCommitted, models.StatusDeleted)
			assert.ErrorIs(t, err, ErrNotFound)

			rec := testRecording("dddddddd-0000-0000-0000-000000000000", time.Now().UTC())
			require.NoError(t, idx.Put(ctx, rec))

			require.NoError(t, idx.SetStatus(ctx, rec.ID, models.StatusCommitted, models.StatusDeleted))

			got, err := idx.Get(ctx, rec.ID)
			require.NoError(t, err)
			assert.Equal(t, models.StatusDeleted, got.Status)

			// Second swap from committed loses: the record is already deleted.
			err = idx.SetStatus(ctx, rec.ID, models.StatusCommitted, models.StatusDeleted)
			assert.ErrorIs(t, err, ErrConflict)
		})
	}
}

func TestIndex_List_Ordering(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, idx := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			// Insert out of creation order.
			for _, i := range []int{3, 0, 4, 1, 2} {
				rec := testRecording(fmt.Sprintf("%08d-0000-0000-0000-000000000000", i), base.Add(time.Duration(i)*time.Second))
				require.NoError(t, idx.Put(ctx, rec))
			}

			recs, next, err := idx.List(ctx, ListOptions{})
			require.NoError(t, err)
			require.Len(t, recs, 5)
			assert.Empty(t, next)

			for i := 1; i < len(recs); i++ {
				assert.False(t, recs[i].CreatedAt.Before(recs[i-1].CreatedAt),
					"records out of creation order at %d", i)
			}
		})
	}
}

func TestIndex_List_CursorPagination(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, idx := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 5; i++ {
				rec := testRecording(fmt.Sprintf("%08d-0000-0000-0000-000000000000", i), base.Add(time.Duration(i)*time.Second))
				require.NoError(t, idx.Put(ctx, rec))
			}

			var all []*models.Recording
			var cursor string
			for {
				recs, next, err := idx.List(ctx, ListOptions{Limit: 2, After: cursor})
				require.NoError(t, err)
				all = append(all, recs...)
				if next == "" {
					break
				}
				cursor = next
			}

			require.Len(t, all, 5)
			for i, rec := range all {
				assert.Equal(t, fmt.Sprintf("%08d-0000-0000-0000-000000000000", i), rec.ID)
			}
		})
	}
}

func TestIndex_List_Filters(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, idx := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			a := testRecording("aaaaaaaa-1111-0000-0000-000000000000", base)
			a.Source = "alice"

			b := testRecording("bbbbbbbb-1111-0000-0000-000000000000", base.Add(time.Second))
			b.Source = "bob"

			c := testRecording("cccccccc-1111-0000-0000-000000000000", base.Add(2*time.Second))
			c.Source = "alice"
			c.Status = models.StatusDeleted

			for _, rec := range []*models.Recording{a, b, c} {
				require.NoError(t, idx.Put(ctx, rec))
			}

			recs, _, err := idx.List(ctx, ListOptions{Source: "alice"})
			require.NoError(t, err)
			assert.Len(t, recs, 2)

			recs, _, err = idx.List(ctx, ListOptions{Status: models.StatusCommitted})
			require.NoError(t, err)
			assert.Len(t, recs, 2)

			recs, _, err = idx.List(ctx, ListOptions{Source: "alice", Status: models.StatusCommitted})
			require.NoError(t, err)
			require.Len(t, recs, 1)
			assert.Equal(t, a.ID, recs[0].ID)
		})
	}
}

func TestIndex_List_MalformedCursor(t *testing.T) {
	ctx := context.Background()
	for name, idx := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			if name == "bolt" {
				// bbolt treats an unknown cursor as a seek position, which is
				// harmless; only the sqlite driver parses it.
				t.Skip("cursor is opaque to the bolt driver")
			}
			_, _, err := idx.List(ctx, ListOptions{After: "not a cursor"})
			assert.Error(t, err)
		})
	}
}
