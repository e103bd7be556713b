// Package postgres provides PostgreSQL storage for documents and segments.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/kagsys/kag-server/pkg/document"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store implements document.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL document store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Put stores a document and replaces its segments in one transaction.
func (s *Store) Put(ctx context.Context, doc *document.Document, segments []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Re-upload is last-write-wins: the new uploader becomes the owner,
	// matching the in-memory store's full-record replacement.
	query, args, err := psq.Insert("documents").
		Columns("id", "name", "format", "user_id", "created_at").
		Values(doc.ID, doc.Name, doc.Format, doc.UserID, doc.CreatedAt).
		Suffix("ON CONFLICT (id) DO UPDATE SET " +
			"name = EXCLUDED.name, format = EXCLUDED.format, " +
			"user_id = EXCLUDED.user_id, created_at = EXCLUDED.created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("building document insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}

	query, args, err = psq.Delete("document_segments").
		Where(sq.Eq{"document_id": doc.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building segment delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting stale segments: %w", err)
	}

	for i, content := range segments {
		query, args, err = psq.Insert("document_segments").
			Columns("document_id", "segment_index", "content").
			Values(doc.ID, i, content).
			ToSql()
		if err != nil {
			return fmt.Errorf("building segment insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("inserting segment %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing document: %w", err)
	}
	return nil
}

// GetSegments returns the document's segments in order. Unknown documents
// and ownership mismatches yield an empty slice, not an error.
func (s *Store) GetSegments(ctx context.Context, documentID, userID string) ([]string, error) {
	qb := psq.Select("s.content").
		From("document_segments s").
		Join("documents d ON d.id = s.document_id").
		Where(sq.Eq{"s.document_id": documentID}).
		OrderBy("s.segment_index")
	if userID != "" {
		qb = qb.Where(sq.Eq{"d.user_id": userID})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building segment query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying segments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var segments []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("scanning segment: %w", err)
		}
		segments = append(segments, content)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating segment rows: %w", err)
	}
	return segments, nil
}

// ListForUser returns the user's documents with segment counts, newest first.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]*document.Document, error) {
	query, args, err := psq.Select(
		"d.id", "d.name", "d.format", "d.user_id", "d.created_at",
		"COUNT(s.document_id) AS segment_count").
		From("documents d").
		LeftJoin("document_segments s ON s.document_id = d.id").
		Where(sq.Eq{"d.user_id": userID}).
		GroupBy("d.id").
		OrderBy("d.created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building document list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []*document.Document
	for rows.Next() {
		var doc document.Document
		if err := rows.Scan(&doc.ID, &doc.Name, &doc.Format, &doc.UserID, &doc.CreatedAt, &doc.SegmentCount); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document rows: %w", err)
	}
	return docs, nil
}

// Delete removes a document owned by the user. Segments cascade via the
// foreign key. Returns whether a matching document existed.
func (s *Store) Delete(ctx context.Context, documentID, userID string) (bool, error) {
	qb := psq.Delete("documents").Where(sq.Eq{"id": documentID})
	if userID != "" {
		qb = qb.Where(sq.Eq{"user_id": userID})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return false, fmt.Errorf("building document delete: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("deleting document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	return affected > 0, nil
}

// Close is a no-op; the caller owns the *sql.DB.
func (*Store) Close() error {
	return nil
}

// Verify interface compliance.
var _ document.Store = (*Store)(nil)
