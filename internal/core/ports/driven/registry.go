package driven

import (
	"context"

	"github.com/custodia-labs/pimsync/internal/core/domain"
)

// CollectionRegistry persists the local configuration entries mirroring
// remote collections, one entry per collection.
type CollectionRegistry interface {
	// List returns all entries for the account.
	List(ctx context.Context) ([]domain.RegistryEntry, error)

	// Get returns the entry for a collection, or domain.ErrNotFound.
	Get(ctx context.Context, collectionID string) (*domain.RegistryEntry, error)

	// Save creates or updates an entry.
	Save(ctx context.Context, entry domain.RegistryEntry) error

	// Delete removes an entry. Deleting a missing entry is not an error.
	Delete(ctx context.Context, collectionID string) error

	// DirectoryCursor returns the account-level cursor of the collection
	// enumeration, or an empty string before the first directory sync.
	DirectoryCursor(ctx context.Context) (string, error)

	// SetDirectoryCursor persists the account-level directory cursor.
	SetDirectoryCursor(ctx context.Context, cursor string) error
}
