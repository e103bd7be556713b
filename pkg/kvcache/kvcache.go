// Package kvcache keeps per-session engine context synchronized with the
// documents bound to each session.
//
// The cache guarantees at-most-one concurrent context build per session:
// concurrent callers for the same session wait for the in-flight build's
// outcome instead of issuing duplicate engine calls. Builds run outside
// the cache lock, so one session's rebuild never blocks another session.
package kvcache

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kagsys/kag-server/pkg/engine"
	"github.com/kagsys/kag-server/pkg/tokens"
)

// SegmentSource resolves a document ID to its ordered text segments.
// An unknown or inaccessible document yields an empty slice, not an error.
type SegmentSource interface {
	GetSegments(ctx context.Context, documentID, userID string) ([]string, error)
}

// DocumentBinder records the authoritative document binding for a session
// after a successful build. Implemented by the session registry.
type DocumentBinder interface {
	SetDocuments(sessionID string, documentIDs []string)
}

// Entry is one session's cached context.
type Entry struct {
	// Handle is the opaque engine context reference.
	Handle engine.Handle

	// DocumentIDs is the deduplicated document set the context was built
	// from; it is the cache key and staleness fingerprint.
	DocumentIDs []string

	// BuiltAt is when the build completed.
	BuiltAt time.Time

	// BuildDuration is how long the build took.
	BuildDuration time.Duration
}

// Stats summarizes cache contents.
type Stats struct {
	ActiveEntries            int            `json:"active_entries"`
	TotalDocumentBindings    int            `json:"total_document_bindings"`
	PerSessionDocumentCounts map[string]int `json:"per_session_document_counts"`
}

// Config configures a Cache.
type Config struct {
	// TokenBudget caps how many (estimated) tokens are primed into one
	// context. Zero disables the cap.
	TokenBudget int

	// BuildTimeout bounds a single build from the caller's perspective.
	// Zero disables the bound.
	BuildTimeout time.Duration
}

// inflight marks a build in progress for a session. Waiters block on done
// and then read err; both writes happen before the channel is closed.
type inflight struct {
	documentIDs []string
	done        chan struct{}
	err         error
}

// Cache maps sessions to primed engine context. One instance is
// constructed at process start and injected into every consumer.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	building map[string]*inflight

	segments SegmentSource
	builder  engine.Builder
	binder   DocumentBinder

	tokenBudget  int
	buildTimeout time.Duration
}

// New creates a context cache. binder may be nil when no registry is
// attached (tests).
func New(segments SegmentSource, builder engine.Builder, binder DocumentBinder, cfg Config) *Cache {
	return &Cache{
		entries:      make(map[string]*Entry),
		building:     make(map[string]*inflight),
		segments:     segments,
		builder:      builder,
		binder:       binder,
		tokenBudget:  cfg.TokenBudget,
		buildTimeout: cfg.BuildTimeout,
	}
}

// EnsureReady makes the session's cached context match the requested
// document set, building it when absent or stale. The requested set always
// wins over any previously bound set. On failure the prior cached entry,
// if any, is preserved.
func (c *Cache) EnsureReady(ctx context.Context, sessionID string, documentIDs []string, userID string) error {
	want := dedup(documentIDs)

	for {
		c.mu.Lock()

		if entry, ok := c.entries[sessionID]; ok && sameSet(entry.DocumentIDs, want) {
			c.mu.Unlock()
			return nil
		}

		if fl, ok := c.building[sessionID]; ok {
			c.mu.Unlock()

			select {
			case <-fl.done:
			case <-ctx.Done():
				return ctx.Err()
			}
			if sameSet(fl.documentIDs, want) {
				// Same request: adopt the completed build's outcome.
				return fl.err
			}
			// Different set raced ahead of us; re-examine.
			continue
		}

		fl := &inflight{documentIDs: want, done: make(chan struct{})}
		c.building[sessionID] = fl
		c.mu.Unlock()

		handle, elapsed, err := c.rebuild(ctx, sessionID, want, userID)

		c.mu.Lock()
		installed := false
		if c.building[sessionID] == fl {
			delete(c.building, sessionID)
			if err == nil {
				c.entries[sessionID] = &Entry{
					Handle:        handle,
					DocumentIDs:   want,
					BuiltAt:       time.Now().UTC(),
					BuildDuration: elapsed,
				}
				installed = true
			}
		}
		// A concurrent Clear removed our marker: the session is gone,
		// drop the freshly built context instead of resurrecting it.
		c.mu.Unlock()

		if installed && c.binder != nil {
			c.binder.SetDocuments(sessionID, want)
		}

		fl.err = err
		close(fl.done)
		return err
	}
}

// rebuild resolves segments and primes the engine. Runs outside the cache
// lock so unrelated sessions are never blocked by this session's build.
func (c *Cache) rebuild(ctx context.Context, sessionID string, documentIDs []string, userID string) (engine.Handle, time.Duration, error) {
	var parts []string
	for _, docID := range documentIDs {
		segments, err := c.segments.GetSegments(ctx, docID, userID)
		if err != nil {
			slog.Warn("kvcache: segment fetch failed, skipping document",
				"session_id", sessionID, "document_id", docID, "error", err)
			continue
		}
		if len(segments) == 0 {
			slog.Warn("kvcache: document has no segments, skipping",
				"session_id", sessionID, "document_id", docID)
			continue
		}
		parts = append(parts, segments...)
	}

	if len(parts) == 0 {
		slog.Warn("kvcache: no usable content for rebuild", "session_id", sessionID)
		return "", 0, ErrNoContent
	}

	text := strings.Join(parts, "\n\n")
	if c.tokenBudget > 0 {
		truncated := tokens.Truncate(text, c.tokenBudget)
		if len(truncated) < len(text) {
			slog.Warn("kvcache: context truncated to token budget",
				"session_id", sessionID, "budget", c.tokenBudget)
			text = truncated
		}
	}

	buildCtx := ctx
	if c.buildTimeout > 0 {
		var cancel context.CancelFunc
		buildCtx, cancel = context.WithTimeout(ctx, c.buildTimeout)
		defer cancel()
	}

	slog.Info("kvcache: building context",
		"session_id", sessionID, "documents", len(documentIDs), "tokens", tokens.Estimate(text))

	start := time.Now()
	handle, err := c.builder.Build(buildCtx, text, engine.BuildParams{
		Deterministic: true,
		MaxNewTokens:  1,
	})
	if err != nil {
		return "", 0, &BuildError{SessionID: sessionID, Err: err}
	}
	elapsed := time.Since(start)

	slog.Info("kvcache: context ready", "session_id", sessionID, "duration", elapsed)
	return handle, elapsed, nil
}

// Get returns the session's cached context handle. No build side effects.
func (c *Cache) Get(sessionID string) (engine.Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[sessionID]
	if !ok {
		return "", false
	}
	return entry.Handle, true
}

// Entry returns a copy of the session's cache entry, for introspection.
func (c *Cache) Entry(sessionID string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[sessionID]
	if !ok {
		return Entry{}, false
	}
	snapshot := *entry
	snapshot.DocumentIDs = append([]string(nil), entry.DocumentIDs...)
	return snapshot, true
}

// Clear drops the session's cached entry and fingerprint. An in-flight
// build for the session is orphaned: it completes but does not install.
func (c *Cache) Clear(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, sessionID)
	delete(c.building, sessionID)
}

// Stats returns cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	perSession := make(map[string]int, len(c.entries))
	total := 0
	for sessionID, entry := range c.entries {
		perSession[sessionID] = len(entry.DocumentIDs)
		total += len(entry.DocumentIDs)
	}
	return Stats{
		ActiveEntries:            len(c.entries),
		TotalDocumentBindings:    total,
		PerSessionDocumentCounts: perSession,
	}
}

// dedup returns ids with duplicates removed, preserving first occurrence.
func dedup(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// sameSet reports whether a and b contain the same IDs, order-insensitive.
func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}
