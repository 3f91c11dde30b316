// Package vault coordinates the blob store and the metadata index.
//
// Ingestion commits the blob before the index entry, removal flips the index
// entry before unlinking the blob. The asymmetry is deliberate: an index entry
// never points at a blob that has not finished writing, and a reader never
// observes a committed entry whose blob is already gone. After a crash the
// two orderings can leave behind orphan blobs and dangling entries, which is
// exactly what the recovery scanner repairs.
package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/recvault/recvault/internal/blobstore"
	"github.com/recvault/recvault/internal/index"
	"github.com/recvault/recvault/internal/models"
)

// Vault exposes the atomic operations external callers use.
type Vault struct {
	blobs  blobstore.BlobStore
	idx    index.Index
	logger *slog.Logger
}

// New creates a Vault over the given stores.
func New(blobs blobstore.BlobStore, idx index.Index, logger *slog.Logger) *Vault {
	if logger == nil {
		logger = slog.Default()
	}
	return &Vault{blobs: blobs, idx: idx, logger: logger}
}

// IngestRequest describes one incoming recording stream.
type IngestRequest struct {
	Source      string
	Name        string
	ContentType string
	Body        io.Reader
}

// Ingest stores the payload and commits its index entry.
//
// The blob write happens first; only after it is durable is the entry written
// with status committed. A blob failure leaves no index entry. An index
// failure rolls the blob back, so committed state is never split across the
// two stores.
func (v *Vault) Ingest(ctx context.Context, req IngestRequest) (*models.Recording, error) {
	id := uuid.New().String()

	path, size, err := v.blobs.Write(ctx, id, req.Body)
	if err != nil {
		return nil, &IngestError{Cause: err}
	}

	now := time.Now().UTC()
	rec := &models.Recording{
		ID:          id,
		Source:      req.Source,
		Name:        req.Name,
		ContentType: req.ContentType,
		Size:        size,
		Path:        path,
		Status:      models.StatusCommitted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := v.idx.Put(ctx, rec); err != nil {
		// Roll the blob back; the rollback must run even if the request
		// context is already cancelled.
		if rmErr := v.blobs.Remove(context.WithoutCancel(ctx), path); rmErr != nil && !errors.Is(rmErr, blobstore.ErrNotFound) {
			v.logger.Warn("ingest rollback failed, blob left for recovery scan",
				"id", id, "path", path, "error", rmErr)
		}
		return nil, &IngestError{Cause: err}
	}

	v.logger.Info("recording ingested",
		"id", id, "source", req.Source, "size", size, "content_type", req.ContentType)
	return rec, nil
}

// Retrieve returns a recording's metadata and a reader over its payload.
// The caller owns the reader and must close it.
func (v *Vault) Retrieve(ctx context.Context, id string) (*models.Recording, io.ReadCloser, error) {
	rec, err := v.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	rc, err := v.blobs.Open(ctx, rec.Path)
	if errors.Is(err, blobstore.ErrNotFound) {
		cerr := &CorruptionError{ID: id, Path: rec.Path}
		v.logger.Error("committed recording has no blob", "id", id, "path", rec.Path)
		return nil, nil, cerr
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open blob for %s: %w", id, err)
	}

	return rec, rc, nil
}

// Get returns a committed recording's metadata.
func (v *Vault) Get(ctx context.Context, id string) (*models.Recording, error) {
	rec, err := v.idx.Get(ctx, id)
	if errors.Is(err, index.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index lookup for %s: %w", id, err)
	}
	if rec.Status != models.StatusCommitted {
		return nil, ErrNotFound
	}
	return rec, nil
}

// List returns committed recordings in creation order unless opts requests a
// different lifecycle state explicitly.
func (v *Vault) List(ctx context.Context, opts index.ListOptions) ([]*models.Recording, string, error) {
	if opts.Status == "" {
		opts.Status = models.StatusCommitted
	}
	return v.idx.List(ctx, opts)
}

// Remove deletes a recording. The index entry is flipped to deleted first via
// compare-and-swap, then the blob is unlinked best-effort. Of two racing
// removes exactly one wins the swap; the loser gets ErrNotFound.
func (v *Vault) Remove(ctx context.Context, id string) error {
	rec, err := v.idx.Get(ctx, id)
	if errors.Is(err, index.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("index lookup for %s: %w", id, err)
	}

	err = v.idx.SetStatus(ctx, id, models.StatusCommitted, models.StatusDeleted)
	switch {
	case errors.Is(err, index.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, index.ErrConflict):
		// Lost the race to another remove, or the entry never committed.
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("mark %s deleted: %w", id, err)
	}

	if err := v.blobs.Remove(ctx, rec.Path); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		// The record is already logically deleted; the orphaned file is
		// reclaimed by the next recovery scan.
		v.logger.Warn("blob removal deferred to recovery scan",
			"id", id, "path", rec.Path, "error", err)
	}

	v.logger.Info("recording removed", "id", id)
	return nil
}
