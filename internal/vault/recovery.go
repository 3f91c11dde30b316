package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/recvault/recvault/internal/blobstore"
	"github.com/recvault/recvault/internal/index"
	"github.com/recvault/recvault/internal/models"
)

// scanPageSize bounds how many index entries the scanner loads per page.
const scanPageSize = 500

// ScanResult summarizes the repairs made by one recovery scan.
type ScanResult struct {
	BlobsScanned   int `json:"blobs_scanned"`
	EntriesScanned int `json:"entries_scanned"`
	OrphansRemoved int `json:"orphans_removed"`
	DanglingMarked int `json:"dangling_marked"`
	PendingExpired int `json:"pending_expired"`
	PendingKept    int `json:"pending_kept"`
	TempFilesSwept int `json:"temp_files_swept"`
}

// tempSweeper is implemented by backends that can leave partial upload files
// behind (the filesystem store).
type tempSweeper interface {
	SweepTemp(ctx context.Context, olderThan time.Duration) (int, error)
}

// Scan reconciles the blob store with the metadata index after a crash.
//
// It must run before the process accepts traffic: it is the only component
// allowed to repair blob/index disagreement, and it assumes nothing else is
// mutating either store while it enumerates them.
//
// Repairs, mirroring the commit protocol's two failure windows:
//   - a blob with no committed entry was abandoned mid-ingest: delete it;
//   - a committed entry with no blob was abandoned mid-removal: mark it
//     deleted and log the anomaly;
//   - a pending entry older than pendingGrace is treated as abandoned and
//     deleted; younger ones are left for their writer.
func (v *Vault) Scan(ctx context.Context, pendingGrace time.Duration) (*ScanResult, error) {
	result := &ScanResult{}

	blobPaths, err := v.blobs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate blobs: %w", err)
	}
	result.BlobsScanned = len(blobPaths)

	onDisk := make(map[string]bool, len(blobPaths))
	for _, p := range blobPaths {
		onDisk[p] = true
	}

	// Paths that must survive the orphan sweep: blobs of committed entries
	// and blobs of pending entries still inside the grace window.
	keep := make(map[string]bool)
	now := time.Now().UTC()

	var cursor string
	for {
		recs, next, err := v.idx.List(ctx, index.ListOptions{Limit: scanPageSize, After: cursor})
		if err != nil {
			return nil, fmt.Errorf("enumerate index: %w", err)
		}
		result.EntriesScanned += len(recs)

		for _, rec := range recs {
			switch rec.Status {
			case models.StatusCommitted:
				if !onDisk[rec.Path] {
					if err := v.idx.SetStatus(ctx, rec.ID, models.StatusCommitted, models.StatusDeleted); err != nil {
						return nil, fmt.Errorf("mark dangling entry %s deleted: %w", rec.ID, err)
					}
					result.DanglingMarked++
					v.logger.Warn("recovery: committed entry has no blob, marked deleted",
						"id", rec.ID, "path", rec.Path)
					continue
				}
				keep[rec.Path] = true

			case models.StatusPending:
				if now.Sub(rec.CreatedAt) <= pendingGrace {
					keep[rec.Path] = true
					result.PendingKept++
					continue
				}
				if err := v.idx.Delete(ctx, rec.ID); err != nil && !errors.Is(err, index.ErrNotFound) {
					return nil, fmt.Errorf("delete expired pending entry %s: %w", rec.ID, err)
				}
				result.PendingExpired++
				v.logger.Info("recovery: expired pending entry deleted",
					"id", rec.ID, "age", now.Sub(rec.CreatedAt).String())
			}
		}

		if next == "" {
			break
		}
		cursor = next
	}

	for _, path := range blobPaths {
		if keep[path] {
			continue
		}
		if err := v.blobs.Remove(ctx, path); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
			v.logger.Warn("recovery: failed to remove orphan blob", "path", path, "error", err)
			continue
		}
		result.OrphansRemoved++
		v.logger.Info("recovery: orphan blob removed", "path", path)
	}

	if ts, ok := v.blobs.(tempSweeper); ok {
		swept, err := ts.SweepTemp(ctx, pendingGrace)
		if err != nil {
			v.logger.Warn("recovery: temp sweep failed", "error", err)
		}
		result.TempFilesSwept = swept
	}

	v.logger.Info("recovery scan complete",
		"blobs_scanned", result.BlobsScanned,
		"entries_scanned", result.EntriesScanned,
		"orphans_removed", result.OrphansRemoved,
		"dangling_marked", result.DanglingMarked,
		"pending_expired", result.PendingExpired,
		"pending_kept", result.PendingKept,
		"temp_files_swept", result.TempFilesSwept,
	)

	return result, nil
}
