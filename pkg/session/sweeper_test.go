package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingClearer records which sessions had their context cleared.
type recordingClearer struct {
	mu      sync.Mutex
	cleared []string
}

func (c *recordingClearer) Clear(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleared = append(c.cleared, sessionID)
}

func (c *recordingClearer) clearedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.cleared...)
}

func TestSweep_EvictsIdleAndCascades(t *testing.T) {
	r, clock := newTestRegistry()
	clearer := &recordingClearer{}
	sweeper := NewSweeper(r, clearer, time.Hour)

	r.GetOrCreate("stale", "u1")
	clock.advance(2 * time.Hour)
	r.GetOrCreate("fresh", "u1")

	evicted := sweeper.Sweep()
	assert.Equal(t, 1, evicted)
	assert.Equal(t, []string{"stale"}, clearer.clearedIDs())

	_, ok := r.Get("fresh")
	assert.True(t, ok)
}

func TestSweep_NothingIdle(t *testing.T) {
	r, _ := newTestRegistry()
	clearer := &recordingClearer{}
	sweeper := NewSweeper(r, clearer, time.Hour)

	r.GetOrCreate("s1", "u1")

	assert.Zero(t, sweeper.Sweep())
	assert.Empty(t, clearer.clearedIDs())
}

func TestSweep_NilCacheIsSafe(t *testing.T) {
	r, clock := newTestRegistry()
	sweeper := NewSweeper(r, nil, time.Hour)

	r.GetOrCreate("stale", "u1")
	clock.advance(2 * time.Hour)

	assert.Equal(t, 1, sweeper.Sweep())
}

func TestSweeper_StartAndClose(t *testing.T) {
	r := NewRegistry()
	clearer := &recordingClearer{}
	sweeper := NewSweeper(r, clearer, time.Nanosecond)

	r.GetOrCreate("s1", "u1")
	time.Sleep(time.Millisecond) // let the session go idle

	sweeper.Start(5 * time.Millisecond)
	require.Eventually(t, func() bool {
		_, ok := r.Get("s1")
		return !ok
	}, time.Second, 5*time.Millisecond)

	assert.NoError(t, sweeper.Close())
}

func TestSweeper_CloseWithoutStart(t *testing.T) {
	sweeper := NewSweeper(NewRegistry(), nil, time.Hour)
	assert.NoError(t, sweeper.Close())
}
