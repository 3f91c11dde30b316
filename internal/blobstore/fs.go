package blobstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// cleanupTimeout bounds how long a failed write waits for its temporary file
// to be removed before handing the file over to the next recovery scan.
const cleanupTimeout = 5 * time.Second

// FSStore implements BlobStore on the local filesystem.
// Blobs live in a two-level directory structure using the first two characters
// of the recording id as a prefix directory.
type FSStore struct {
	root string
}

// NewFSStore creates a filesystem-backed blob store rooted at the given directory.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create recordings root: %w", err)
	}
	return &FSStore{root: root}, nil
}

// Write streams r to a temporary file, syncs it to stable storage, and
// atomically renames it into its final path. The final name never exists
// without the full payload behind it.
func (s *FSStore) Write(ctx context.Context, id string, r io.Reader) (string, int64, error) {
	if !validID.MatchString(id) {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	rel := blobPath(id)
	abs := filepath.Join(s.root, rel)
	dir := filepath.Dir(abs)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create blob dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ingest-*")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, &contextReader{ctx: ctx, r: r})
	if err != nil {
		tmp.Close()
		removeWithTimeout(tmpPath, cleanupTimeout)
		return "", 0, fmt.Errorf("write blob data: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		removeWithTimeout(tmpPath, cleanupTimeout)
		return "", 0, fmt.Errorf("sync blob data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		removeWithTimeout(tmpPath, cleanupTimeout)
		return "", 0, fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, abs); err != nil {
		removeWithTimeout(tmpPath, cleanupTimeout)
		return "", 0, fmt.Errorf("rename blob: %w", err)
	}

	// Make the rename itself durable.
	if err := syncDir(dir); err != nil {
		return "", 0, fmt.Errorf("sync blob dir: %w", err)
	}

	return rel, n, nil
}

// Open opens a blob for reading. The returned ReadCloser is an *os.File, so
// callers that need seeking (byte-range serving) can type-assert io.ReadSeeker.
func (s *FSStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	abs, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open blob %s: %w", path, err)
	}
	return f, nil
}

// Remove deletes a blob. Returns ErrNotFound if it is already absent.
func (s *FSStore) Remove(_ context.Context, path string) error {
	abs, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("remove blob %s: %w", path, err)
	}
	// Prefix directories are left in place; they are cheap and shared.
	return nil
}

// List returns the relative paths of all blobs by scanning the directory tree.
// Temporary ingest files are skipped.
func (s *FSStore) List(_ context.Context) ([]string, error) {
	var paths []string

	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.HasPrefix(info.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})

	return paths, err
}

// resolve validates a relative blob path and joins it under the root.
// Paths that are absolute or would escape the root are rejected.
func (s *FSStore) resolve(path string) (string, error) {
	if path == "" || !filepath.IsLocal(filepath.FromSlash(path)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, path)
	}
	return filepath.Join(s.root, filepath.FromSlash(path)), nil
}

// blobPath returns the relative storage path for a recording id.
func blobPath(id string) string {
	return id[:2] + "/" + id
}

// syncDir fsyncs a directory so a preceding rename survives a crash.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// SweepTemp removes temporary ingest files older than the cutoff. Fresh ones
// may belong to an in-flight write and are left alone.
func (s *FSStore) SweepTemp(_ context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	var removed int

	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasPrefix(info.Name(), ".ingest-") {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
		return nil
	})

	return removed, err
}

// removeWithTimeout deletes a temporary file without letting a slow filesystem
// block the caller. If the deadline passes the file is left for SweepTemp on
// the next startup.
func removeWithTimeout(path string, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		os.Remove(path)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}

// contextReader aborts a streaming copy as soon as its context is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
