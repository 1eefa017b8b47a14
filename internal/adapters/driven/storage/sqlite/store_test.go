package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/pimsync/internal/core/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func item(uid string) domain.Item {
	return domain.Item{
		UID:          uid,
		Revision:     "rev-" + uid,
		Payload:      "payload " + uid,
		ResumeHandle: []byte("handle-" + uid),
	}
}

func TestStore_ApplyChangesAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	changes := domain.NewChangeSet()
	changes.Created["a"] = item("a")
	require.NoError(t, store.ApplyChanges(ctx, "col-1", changes, "cursor-1"))

	got, err := store.Get(ctx, "col-1", "a")
	require.NoError(t, err)
	assert.Equal(t, "rev-a", got.Revision)
	assert.Equal(t, "payload a", got.Payload)
	assert.Equal(t, []byte("handle-a"), got.ResumeHandle)

	ok, err := store.Contains(ctx, "col-1", "a")
	require.NoError(t, err)
	assert.True(t, ok)

	cursor, err := store.Cursor(ctx, "col-1")
	require.NoError(t, err)
	assert.Equal(t, "cursor-1", cursor)
}

func TestStore_GetMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "col-1", "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = store.ResumeHandle(context.Background(), "col-1", "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_CursorOfUnknownCollection(t *testing.T) {
	store := newTestStore(t)

	cursor, err := store.Cursor(context.Background(), "never-synced")
	require.NoError(t, err)
	assert.Empty(t, cursor)
}

func TestStore_ModifiedOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	changes := domain.NewChangeSet()
	changes.Created["a"] = item("a")
	require.NoError(t, store.ApplyChanges(ctx, "col-1", changes, "cursor-1"))

	update := domain.NewChangeSet()
	update.Modified["a"] = domain.Item{UID: "a", Revision: "rev-2", Payload: "updated"}
	require.NoError(t, store.ApplyChanges(ctx, "col-1", update, "cursor-2"))

	got, err := store.Get(ctx, "col-1", "a")
	require.NoError(t, err)
	assert.Equal(t, "rev-2", got.Revision)
	assert.Equal(t, "updated", got.Payload)
}

func TestStore_RemovedBecomesTombstone(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	changes := domain.NewChangeSet()
	changes.Created["a"] = item("a")
	changes.Created["b"] = item("b")
	require.NoError(t, store.ApplyChanges(ctx, "col-1", changes, "cursor-1"))

	removal := domain.NewChangeSet()
	removal.Removed["a"] = domain.Item{UID: "a"}
	require.NoError(t, store.ApplyChanges(ctx, "col-1", removal, "cursor-2"))

	// The tombstone is invisible to every read path.
	ok, err := store.Contains(ctx, "col-1", "a")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = store.Get(ctx, "col-1", "a")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	items, err := store.List(ctx, "col-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].UID)
}

func TestStore_ReinstatementAfterTombstone(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	changes := domain.NewChangeSet()
	changes.Created["a"] = item("a")
	require.NoError(t, store.ApplyChanges(ctx, "col-1", changes, "cursor-1"))

	removal := domain.NewChangeSet()
	removal.Removed["a"] = domain.Item{UID: "a"}
	require.NoError(t, store.ApplyChanges(ctx, "col-1", removal, "cursor-2"))

	revival := domain.NewChangeSet()
	revival.Created["a"] = domain.Item{UID: "a", Revision: "rev-2", Payload: "back"}
	require.NoError(t, store.ApplyChanges(ctx, "col-1", revival, "cursor-3"))

	got, err := store.Get(ctx, "col-1", "a")
	require.NoError(t, err)
	assert.Equal(t, "back", got.Payload)
}

func TestStore_RemovalOfUnknownCreatesTombstone(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	removal := domain.NewChangeSet()
	removal.Removed["never-seen"] = domain.Item{UID: "never-seen"}
	require.NoError(t, store.ApplyChanges(ctx, "col-1", removal, "cursor-1"))

	ok, err := store.Contains(ctx, "col-1", "never-seen")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ListOrdersByUID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	changes := domain.NewChangeSet()
	for _, uid := range []string{"c", "a", "b"} {
		changes.Created[uid] = item(uid)
	}
	require.NoError(t, store.ApplyChanges(ctx, "col-1", changes, "cursor-1"))

	items, err := store.List(ctx, "col-1")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "a", items[0].UID)
	assert.Equal(t, "b", items[1].UID)
	assert.Equal(t, "c", items[2].UID)
}

func TestStore_CollectionsAreIsolated(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	changes := domain.NewChangeSet()
	changes.Created["a"] = item("a")
	require.NoError(t, store.ApplyChanges(ctx, "col-1", changes, "cursor-1"))

	ok, err := store.Contains(ctx, "col-2", "a")
	require.NoError(t, err)
	assert.False(t, ok)

	cursor, err := store.Cursor(ctx, "col-2")
	require.NoError(t, err)
	assert.Empty(t, cursor)
}

func TestStore_NilChangesAdvanceCursorOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ApplyChanges(ctx, "col-1", nil, "cursor-1"))

	cursor, err := store.Cursor(ctx, "col-1")
	require.NoError(t, err)
	assert.Equal(t, "cursor-1", cursor)
}

func TestStore_DeleteCollection(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	changes := domain.NewChangeSet()
	changes.Created["a"] = item("a")
	require.NoError(t, store.ApplyChanges(ctx, "col-1", changes, "cursor-1"))

	require.NoError(t, store.DeleteCollection(ctx, "col-1"))

	ok, err := store.Contains(ctx, "col-1", "a")
	require.NoError(t, err)
	assert.False(t, ok)
	cursor, err := store.Cursor(ctx, "col-1")
	require.NoError(t, err)
	assert.Empty(t, cursor)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dataDir := t.TempDir()
	ctx := context.Background()

	store, err := NewStore(dataDir)
	require.NoError(t, err)

	changes := domain.NewChangeSet()
	changes.Created["a"] = item("a")
	require.NoError(t, store.ApplyChanges(ctx, "col-1", changes, "cursor-1"))
	require.NoError(t, store.Close())

	reopened, err := NewStore(dataDir)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "col-1", "a")
	require.NoError(t, err)
	assert.Equal(t, "payload a", got.Payload)

	cursor, err := reopened.Cursor(ctx, "col-1")
	require.NoError(t, err)
	assert.Equal(t, "cursor-1", cursor)
}
