package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/pimsync/internal/core/domain"
)

func newTestStore(t *testing.T) (*SecretStore, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewSecretStore(dir)
	require.NoError(t, err)
	return store, dir
}

func TestSecretStore_PersistedRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "alice@example.com", "", []byte("blob"), true))

	got, err := store.Lookup(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), got)
}

func TestSecretStore_LookupMissing(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Lookup(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSecretStore_PersistedSurvivesReopen(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "alice@example.com", "", []byte("blob"), true))

	reopened, err := NewSecretStore(dir)
	require.NoError(t, err)

	got, err := reopened.Lookup(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), got)
}

func TestSecretStore_EphemeralDoesNotTouchDisk(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "alice@example.com", "", []byte("session-only"), false))

	got, err := store.Lookup(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, []byte("session-only"), got)

	entries, err := os.ReadDir(filepath.Join(dir, "secrets"))
	require.NoError(t, err)
	assert.Empty(t, entries)

	// A fresh store sees nothing.
	reopened, err := NewSecretStore(dir)
	require.NoError(t, err)
	_, err = reopened.Lookup(ctx, "alice@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSecretStore_EphemeralSupersedesPersisted(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "alice@example.com", "", []byte("old-persisted"), true))
	require.NoError(t, store.Store(ctx, "alice@example.com", "", []byte("new-session"), false))

	got, err := store.Lookup(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, []byte("new-session"), got)

	// The stale persisted file was removed, not just shadowed.
	reopened, err := NewSecretStore(dir)
	require.NoError(t, err)
	_, err = reopened.Lookup(ctx, "alice@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSecretStore_Delete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "alice@example.com", "", []byte("blob"), true))
	require.NoError(t, store.Delete(ctx, "alice@example.com"))

	_, err := store.Lookup(ctx, "alice@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Deleting a missing blob is not an error.
	require.NoError(t, store.Delete(ctx, "ghost"))
}

func TestSecretStore_AccountIDsWithSpecialCharacters(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	id := "alice@https://pim.example.com/base/path"
	require.NoError(t, store.Store(ctx, id, "", []byte("blob"), true))

	got, err := store.Lookup(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), got)
}

func TestSecretStore_FilePermissions(t *testing.T) {
	store, dir := newTestStore(t)

	require.NoError(t, store.Store(context.Background(), "alice@example.com", "", []byte("blob"), true))

	entries, err := os.ReadDir(filepath.Join(dir, "secrets"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	info, err := entries[0].Info()
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
