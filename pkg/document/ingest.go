package document

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Ingestor decodes, splits, and persists uploaded documents.
type Ingestor struct {
	store    Store
	splitter *Splitter
}

// NewIngestor creates an ingestor over the given store.
func NewIngestor(store Store, splitter *Splitter) *Ingestor {
	return &Ingestor{
		store:    store,
		splitter: splitter,
	}
}

// IngestRequest describes an upload.
type IngestRequest struct {
	// Payload is raw text, or base64-encoded content for binary formats.
	Payload string

	// Format is the document format tag (txt, md, pdf, ...).
	Format string

	// Name is the display name.
	Name string

	// ID is optional; a UUID is assigned when empty.
	ID string

	// UserID identifies the uploading user.
	UserID string
}

// Ingest processes an upload and returns the stored document.
func (i *Ingestor) Ingest(ctx context.Context, req IngestRequest) (*Document, error) {
	text := decodePayload(req.Payload, req.Format)

	segments := i.splitter.Split(text)
	if len(segments) == 0 {
		return nil, fmt.Errorf("document %q contains no text", req.Name)
	}

	doc := &Document{
		ID:           req.ID,
		Name:         req.Name,
		Format:       req.Format,
		UserID:       req.UserID,
		CreatedAt:    time.Now().UTC(),
		SegmentCount: len(segments),
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	if err := i.store.Put(ctx, doc, segments); err != nil {
		return nil, fmt.Errorf("storing document: %w", err)
	}

	slog.Info("document: ingested",
		"document_id", doc.ID, "name", doc.Name, "segments", len(segments))
	return doc, nil
}

// decodePayload returns the text content of a payload. Text formats are
// taken verbatim; other formats are base64-decoded, falling back to the
// raw payload when decoding fails.
func decodePayload(payload, format string) string {
	switch format {
	case "txt", "text", "md", "markdown":
		return payload
	}
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return payload
	}
	return string(decoded)
}
