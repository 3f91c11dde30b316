package vault

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when the requested recording does not exist or has
// been removed.
var ErrNotFound = errors.New("recording not found")

// IngestError wraps the underlying blob or index failure that aborted an
// ingest. The partial state has already been rolled back when it is returned.
type IngestError struct {
	Cause error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest failed: %v", e.Cause)
}

func (e *IngestError) Unwrap() error {
	return e.Cause
}

// CorruptionError reports a committed index entry whose blob is missing.
// The recovery scanner should have repaired this; hitting it at request time
// means the stores diverged while the process was running. It is fatal for
// the single record only.
type CorruptionError struct {
	ID   string
	Path string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("recording %s is corrupted: committed entry has no blob at %s", e.ID, e.Path)
}
