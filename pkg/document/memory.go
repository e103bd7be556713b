package document

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore implements Store using in-memory maps. It backs tests and
// single-node deployments without a database.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*memoryRecord
}

type memoryRecord struct {
	doc      Document
	segments []string
}

// NewMemoryStore creates an empty in-memory document store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]*memoryRecord),
	}
}

// Put stores a document and replaces its segments.
func (s *MemoryStore) Put(_ context.Context, doc *Document, segments []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *doc
	stored.SegmentCount = len(segments)
	s.docs[doc.ID] = &memoryRecord{
		doc:      stored,
		segments: append([]string(nil), segments...),
	}
	return nil
}

// GetSegments returns the document's segments in order. Unknown documents
// and ownership mismatches yield an empty slice.
func (s *MemoryStore) GetSegments(_ context.Context, documentID, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.docs[documentID]
	if !ok {
		return nil, nil
	}
	if userID != "" && rec.doc.UserID != userID {
		return nil, nil
	}
	return append([]string(nil), rec.segments...), nil
}

// ListForUser returns the user's documents, newest first.
func (s *MemoryStore) ListForUser(_ context.Context, userID string) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []*Document
	for _, rec := range s.docs {
		if rec.doc.UserID != userID {
			continue
		}
		doc := rec.doc
		docs = append(docs, &doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	return docs, nil
}

// Delete removes a document and its segments.
func (s *MemoryStore) Delete(_ context.Context, documentID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.docs[documentID]
	if !ok {
		return false, nil
	}
	if userID != "" && rec.doc.UserID != userID {
		return false, nil
	}
	delete(s.docs, documentID)
	return true, nil
}

// Close releases resources.
func (*MemoryStore) Close() error {
	return nil
}

// Verify interface compliance.
var _ Store = (*MemoryStore)(nil)
