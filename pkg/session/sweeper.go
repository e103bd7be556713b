package session

import (
	"context"
	"log/slog"
	"time"
)

// ContextClearer drops cached context for a session. Implemented by the
// context cache; kept narrow so the registry package stays decoupled from it.
type ContextClearer interface {
	Clear(sessionID string)
}

// Sweeper periodically evicts idle sessions from a registry and cascades
// the eviction to their cached context.
type Sweeper struct {
	registry *Registry
	cache    ContextClearer
	timeout  time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a sweeper. cache may be nil when no context cache is
// attached.
func NewSweeper(registry *Registry, cache ContextClearer, timeout time.Duration) *Sweeper {
	return &Sweeper{
		registry: registry,
		cache:    cache,
		timeout:  timeout,
	}
}

// Start launches the background sweep goroutine. It is stopped by Close.
func (s *Sweeper) Start(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

// Sweep runs one eviction pass and returns how many sessions were evicted.
func (s *Sweeper) Sweep() int {
	expired := s.registry.DeleteIdle(s.timeout)
	for _, id := range expired {
		if s.cache != nil {
			s.cache.Clear(id)
		}
	}
	if len(expired) > 0 {
		slog.Info("session: swept idle sessions", "count", len(expired))
	}
	return len(expired)
}

// Close stops the sweep goroutine and waits for it to exit.
// It is safe to call Close even if Start was never called.
func (s *Sweeper) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return nil
}
