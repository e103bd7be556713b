package document

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDoc(id, userID string, createdAt time.Time) *Document {
	return &Document{
		ID:        id,
		Name:      id + ".md",
		Format:    "md",
		UserID:    userID,
		CreatedAt: createdAt,
	}
}

func TestMemoryStore_PutAndGetSegments(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.Put(ctx, newTestDoc("d1", "u1", time.Now()), []string{"a", "b", "c"})
	require.NoError(t, err)

	segments, err := store.GetSegments(ctx, "d1", "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, segments)
}

func TestMemoryStore_GetSegments_Unknown(t *testing.T) {
	store := NewMemoryStore()

	segments, err := store.GetSegments(context.Background(), "missing", "u1")
	require.NoError(t, err)
	assert.Empty(t, segments)
}

func TestMemoryStore_GetSegments_OwnershipMismatch(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newTestDoc("d1", "u1", time.Now()), []string{"a"}))

	segments, err := store.GetSegments(ctx, "d1", "other-user")
	require.NoError(t, err)
	assert.Empty(t, segments)
}

func TestMemoryStore_GetSegments_SkipOwnershipCheck(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newTestDoc("d1", "u1", time.Now()), []string{"a"}))

	segments, err := store.GetSegments(ctx, "d1", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, segments)
}

func TestMemoryStore_Put_ReplacesSegments(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	doc := newTestDoc("d1", "u1", time.Now())

	require.NoError(t, store.Put(ctx, doc, []string{"old"}))
	require.NoError(t, store.Put(ctx, doc, []string{"new-1", "new-2"}))

	segments, err := store.GetSegments(ctx, "d1", "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"new-1", "new-2"}, segments)
}

func TestMemoryStore_Put_ReuploadTransfersOwnership(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newTestDoc("d1", "u1", time.Now()), []string{"theirs"}))
	require.NoError(t, store.Put(ctx, newTestDoc("d1", "u2", time.Now()), []string{"mine"}))

	// Last write wins: the new uploader owns the document and can read it
	// back; the previous owner no longer sees it.
	segments, err := store.GetSegments(ctx, "d1", "u2")
	require.NoError(t, err)
	assert.Equal(t, []string{"mine"}, segments)

	segments, err = store.GetSegments(ctx, "d1", "u1")
	require.NoError(t, err)
	assert.Empty(t, segments)

	docs, err := store.ListForUser(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "d1", docs[0].ID)
	assert.Empty(t, mustList(t, store, "u1"))
}

func mustList(t *testing.T, store *MemoryStore, userID string) []*Document {
	t.Helper()
	docs, err := store.ListForUser(context.Background(), userID)
	require.NoError(t, err)
	return docs
}

func TestMemoryStore_ListForUser_NewestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Put(ctx, newTestDoc("old", "u1", now.Add(-time.Hour)), []string{"x"}))
	require.NoError(t, store.Put(ctx, newTestDoc("new", "u1", now), []string{"y"}))
	require.NoError(t, store.Put(ctx, newTestDoc("theirs", "u2", now), []string{"z"}))

	docs, err := store.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "new", docs[0].ID)
	assert.Equal(t, "old", docs[1].ID)
	assert.Equal(t, 1, docs[0].SegmentCount)
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newTestDoc("d1", "u1", time.Now()), []string{"a"}))

	deleted, err := store.Delete(ctx, "d1", "u1")
	require.NoError(t, err)
	assert.True(t, deleted)

	segments, err := store.GetSegments(ctx, "d1", "u1")
	require.NoError(t, err)
	assert.Empty(t, segments)
}

func TestMemoryStore_Delete_OwnershipMismatch(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newTestDoc("d1", "u1", time.Now()), []string{"a"}))

	deleted, err := store.Delete(ctx, "d1", "other-user")
	require.NoError(t, err)
	assert.False(t, deleted)

	// Document untouched.
	segments, err := store.GetSegments(ctx, "d1", "u1")
	require.NoError(t, err)
	assert.Len(t, segments, 1)
}

func TestMemoryStore_Delete_Unknown(t *testing.T) {
	store := NewMemoryStore()

	deleted, err := store.Delete(context.Background(), "missing", "u1")
	require.NoError(t, err)
	assert.False(t, deleted)
}
