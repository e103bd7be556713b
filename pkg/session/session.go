// Package session provides the session registry for kag-server.
// The registry owns session identity, lifecycle, conversation history, and
// the set of document IDs bound to each session. It is pure bookkeeping:
// context cache rebuilds are decided elsewhere.
package session

import (
	"time"

	"github.com/kagsys/kag-server/pkg/engine"
)

// Session represents a user conversation session.
type Session struct {
	// ID is the unique session identifier.
	ID string

	// UserID identifies the session owner.
	UserID string

	// CreatedAt is when the session was first referenced.
	CreatedAt time.Time

	// LastAccessedAt is the most recent activity timestamp. The sweeper
	// evicts sessions idle past the configured timeout.
	LastAccessedAt time.Time

	// History is the append-only conversation history.
	History []engine.Message

	// DocumentIDs is the deduplicated set of bound document IDs, in
	// first-bind order.
	DocumentIDs []string
}

// Summary is a read-only snapshot of a session.
type Summary struct {
	ID             string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	MessageCount   int       `json:"message_count"`
	DocumentCount  int       `json:"document_count"`
	DocumentIDs    []string  `json:"document_ids"`
}

// Stats summarizes registry contents.
type Stats struct {
	TotalSessions   int            `json:"total_sessions"`
	TotalUsers      int            `json:"total_users"`
	SessionsPerUser map[string]int `json:"sessions_per_user"`
}

// summarize builds a Summary snapshot from a live session.
// Caller must hold the registry lock.
func summarize(s *Session) Summary {
	return Summary{
		ID:             s.ID,
		UserID:         s.UserID,
		CreatedAt:      s.CreatedAt,
		LastAccessedAt: s.LastAccessedAt,
		MessageCount:   len(s.History),
		DocumentCount:  len(s.DocumentIDs),
		DocumentIDs:    append([]string(nil), s.DocumentIDs...),
	}
}
