// Package blobstore provides raw payload storage for recordings.
//
// Two backends implement the same contract: local filesystem and S3-compatible
// object storage. The backend is chosen at construction time.
package blobstore

import (
	"context"
	"errors"
	"io"
	"regexp"
)

// validID matches a canonical lowercase UUID. Writes are keyed by recording ID
// and anything else is rejected before it can touch the filesystem.
var validID = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

var (
	// ErrNotFound is returned when a requested blob does not exist.
	ErrNotFound = errors.New("blob not found")

	// ErrInvalidID is returned for ids or paths that are malformed or would
	// escape the storage root.
	ErrInvalidID = errors.New("invalid blob id or path")
)

// BlobStore defines the contract for recording payload storage.
//
// Write is atomic: the final path appears only after the payload is fully
// durable, so a reader can never observe a partial blob under its final name.
type BlobStore interface {
	// Write streams r into storage under the given recording id and returns
	// the storage path (relative to the root) and the number of bytes written.
	// A cancelled context aborts the write without publishing anything.
	Write(ctx context.Context, id string, r io.Reader) (path string, size int64, err error)

	// Open returns a reader for the blob at path.
	// Returns ErrNotFound if the blob does not exist.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Remove deletes the blob at path.
	// Returns ErrNotFound if the blob is already absent.
	Remove(ctx context.Context, path string) error

	// List returns the storage paths of all blobs. Used by the recovery
	// scanner; in-flight temporary files are not included.
	List(ctx context.Context) ([]string, error)
}
