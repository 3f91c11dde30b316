// Package models defines the core data types shared across recvault.
package models

import "time"

// Status is the lifecycle state of a recording.
type Status string

const (
	// StatusPending marks a recording whose bytes are still being written.
	StatusPending Status = "pending"
	// StatusCommitted marks a recording whose blob and index entry are both durable.
	StatusCommitted Status = "committed"
	// StatusDeleted marks a recording that has been removed. The index entry is
	// kept as a tombstone; the blob may linger until the next recovery scan.
	StatusDeleted Status = "deleted"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCommitted, StatusDeleted:
		return true
	}
	return false
}

// Recording is the metadata record for one stored payload.
//
// A committed recording always has a readable blob at Path with exactly Size
// bytes. A deleted recording has no readable blob once the recovery scanner
// has run.
type Recording struct {
	ID          string    `json:"id"`
	Source      string    `json:"source,omitempty"`
	Name        string    `json:"name,omitempty"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Path        string    `json:"path"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ShortID returns a shortened recording ID (first 8 characters).
func (r *Recording) ShortID() string {
	if len(r.ID) > 8 {
		return r.ID[:8]
	}
	return r.ID
}
