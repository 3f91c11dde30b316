// Package index provides the transactional metadata index for recordings.
//
// The contract is a minimal key/record store: every mutation happens inside a
// single local transaction, and readers only ever observe committed state.
// Two drivers implement it, bbolt and SQLite, selected by configuration.
package index

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/recvault/recvault/internal/models"
)

// Sentinel errors for expected conditions.
var (
	ErrNotFound = errors.New("recording not found")
	ErrConflict = errors.New("status conflict")
)

// ListOptions controls filtering and pagination of List.
// Results are ordered by (created_at, id) ascending.
type ListOptions struct {
	// Status, when non-empty, restricts results to that lifecycle state.
	Status models.Status
	// Source, when non-empty, restricts results to one source.
	Source string
	// Limit caps the number of returned records. Zero means no limit.
	Limit int
	// After is an opaque cursor from a previous page; iteration resumes
	// strictly after it.
	After string
}

// Index defines the contract for recording metadata persistence.
type Index interface {
	// Put upserts a record. Either fully visible or not visible at all.
	Put(ctx context.Context, rec *models.Recording) error

	// Get retrieves a record by id. Returns ErrNotFound if missing.
	Get(ctx context.Context, id string) (*models.Recording, error)

	// List returns records matching opts plus a cursor for the next page.
	// The cursor is empty when there is no further page.
	List(ctx context.Context, opts ListOptions) ([]*models.Recording, string, error)

	// Delete removes a record. Returns ErrNotFound if missing.
	Delete(ctx context.Context, id string) error

	// SetStatus atomically transitions a record from one lifecycle state to
	// another. Returns ErrNotFound if the record is missing and ErrConflict
	// if its current status is not from. This compare-and-swap is the
	// serialization point for racing mutations on the same id.
	SetStatus(ctx context.Context, id string, from, to models.Status) error

	// Close releases resources.
	Close() error
}

// timeKey builds the ordering key for a record: "{unix_nanos:020d}:{id}".
// It doubles as the opaque List cursor.
func timeKey(rec *models.Recording) string {
	return fmt.Sprintf("%020d:%s", rec.CreatedAt.UTC().UnixNano(), rec.ID)
}

// parseTimeKey splits an ordering key back into nanos and id.
func parseTimeKey(key string) (int64, string, error) {
	nanosStr, id, ok := strings.Cut(key, ":")
	if !ok {
		return 0, "", fmt.Errorf("malformed cursor %q", key)
	}
	nanos, err := strconv.ParseInt(nanosStr, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("malformed cursor %q: %w", key, err)
	}
	return nanos, id, nil
}

// matches applies the List filters to a record.
func (o ListOptions) matches(rec *models.Recording) bool {
	if o.Status != "" && rec.Status != o.Status {
		return false
	}
	if o.Source != "" && rec.Source != o.Source {
		return false
	}
	return true
}
