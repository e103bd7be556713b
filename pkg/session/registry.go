package session

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/kagsys/kag-server/pkg/engine"
)

// Registry owns all sessions and a user-to-sessions reverse index behind a
// single mutex. Construct one at process start and inject it; it is never
// accessed as ambient global state.
type Registry struct {
	mu           sync.Mutex
	sessions     map[string]*Session
	userSessions map[string][]string

	// now is stubbed in tests.
	now func() time.Time
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions:     make(map[string]*Session),
		userSessions: make(map[string][]string),
		now:          time.Now,
	}
}

// GetOrCreate returns a snapshot of the session, creating it on first
// reference. Existing sessions get their last-access bumped. Never fails.
func (r *Registry) GetOrCreate(sessionID, userID string) Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[sessionID]; ok {
		s.LastAccessedAt = r.now()
		return summarize(s)
	}

	now := r.now()
	s := &Session{
		ID:             sessionID,
		UserID:         userID,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	r.sessions[sessionID] = s
	r.userSessions[userID] = append(r.userSessions[userID], sessionID)

	slog.Info("session: created", "session_id", sessionID, "user_id", userID)
	return summarize(s)
}

// Get returns a snapshot of the session, bumping last-access. The second
// return reports whether the session exists.
func (r *Registry) Get(sessionID string) (Summary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return Summary{}, false
	}
	s.LastAccessedAt = r.now()
	return summarize(s), true
}

// RecordTurn appends the input messages and the output message to the
// session's history. A missing session is a benign race with eviction:
// logged, never surfaced.
func (r *Registry) RecordTurn(sessionID string, input []engine.Message, output engine.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		slog.Warn("session: not found for turn record", "session_id", sessionID)
		return
	}

	s.History = append(s.History, input...)
	s.History = append(s.History, output)
	s.LastAccessedAt = r.now()
}

// BindDocuments unions the given document IDs into the session's bound set.
// Idempotent; a missing session is logged and ignored.
func (r *Registry) BindDocuments(sessionID string, documentIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		slog.Warn("session: not found for document binding", "session_id", sessionID)
		return
	}

	for _, id := range documentIDs {
		if !slices.Contains(s.DocumentIDs, id) {
			s.DocumentIDs = append(s.DocumentIDs, id)
		}
	}
	s.LastAccessedAt = r.now()
}

// SetDocuments replaces the session's bound document set. Used when a
// request's document list becomes the new authoritative binding.
func (r *Registry) SetDocuments(sessionID string, documentIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		slog.Warn("session: not found for document set", "session_id", sessionID)
		return
	}

	set := make([]string, 0, len(documentIDs))
	for _, id := range documentIDs {
		if !slices.Contains(set, id) {
			set = append(set, id)
		}
	}
	s.DocumentIDs = set
	s.LastAccessedAt = r.now()
}

// Delete removes a session and its reverse index entry. Returns whether it
// existed.
func (r *Registry) Delete(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteLocked(sessionID)
}

// deleteLocked removes a session. Caller must hold the lock.
func (r *Registry) deleteLocked(sessionID string) bool {
	s, ok := r.sessions[sessionID]
	if !ok {
		return false
	}

	ids := r.userSessions[s.UserID]
	if i := slices.Index(ids, sessionID); i >= 0 {
		r.userSessions[s.UserID] = slices.Delete(ids, i, i+1)
	}
	if len(r.userSessions[s.UserID]) == 0 {
		delete(r.userSessions, s.UserID)
	}
	delete(r.sessions, sessionID)

	slog.Info("session: deleted", "session_id", sessionID)
	return true
}

// ListForUser returns snapshots of the user's sessions.
func (r *Registry) ListForUser(userID string) []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.userSessions[userID]
	summaries := make([]Summary, 0, len(ids))
	for _, id := range ids {
		if s, ok := r.sessions[id]; ok {
			summaries = append(summaries, summarize(s))
		}
	}
	return summaries
}

// DeleteIdle removes every session idle longer than timeout and returns
// their IDs. Eviction and ordinary access serialize through the same lock,
// so a session cannot be evicted in the same instant it is touched.
func (r *Registry) DeleteIdle(timeout time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var expired []string
	for id, s := range r.sessions {
		if now.Sub(s.LastAccessedAt) > timeout {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		r.deleteLocked(id)
	}
	return expired
}

// Stats returns registry statistics.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	perUser := make(map[string]int, len(r.userSessions))
	for userID, ids := range r.userSessions {
		perUser[userID] = len(ids)
	}
	return Stats{
		TotalSessions:   len(r.sessions),
		TotalUsers:      len(r.userSessions),
		SessionsPerUser: perUser,
	}
}
