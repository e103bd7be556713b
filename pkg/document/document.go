// Package document provides reference document storage for kag-server.
// Documents are split into ordered text segments at ingest time; the
// context cache consumes segments verbatim, in order.
package document

import (
	"context"
	"time"
)

// Document describes one ingested reference document.
type Document struct {
	// ID is the unique document identifier.
	ID string

	// Name is the display name.
	Name string

	// Format is the ingest format tag (txt, md, pdf, ...).
	Format string

	// UserID identifies the owning user.
	UserID string

	// CreatedAt is when the document was ingested.
	CreatedAt time.Time

	// SegmentCount is the number of stored segments. Populated on reads.
	SegmentCount int
}

// Store persists documents and their ordered segments.
type Store interface {
	// Put stores a document and replaces its segments.
	Put(ctx context.Context, doc *Document, segments []string) error

	// GetSegments returns the document's segments in order. Unknown
	// documents and documents owned by another user both yield an empty
	// slice, not an error. An empty userID skips the ownership check.
	GetSegments(ctx context.Context, documentID, userID string) ([]string, error)

	// ListForUser returns the user's documents, newest first.
	ListForUser(ctx context.Context, userID string) ([]*Document, error)

	// Delete removes a document and its segments. Returns whether a
	// document owned by the user existed.
	Delete(ctx context.Context, documentID, userID string) (bool, error)

	// Close releases resources.
	Close() error
}
