package driving

import (
	"context"

	"github.com/custodia-labs/pimsync/internal/core/domain"
)

// DirectoryService reconciles the set of remote collections with the
// local registry.
type DirectoryService interface {
	// Sync enumerates remote collections page by page and creates,
	// updates or removes local registry entries to match. On a first run
	// against an account with no collections of the default types it
	// bootstraps one default collection per type.
	Sync(ctx context.Context) error

	// Create creates a remote collection and mirrors it into the
	// registry immediately.
	Create(ctx context.Context, typ domain.CollectionType, name string) (*domain.RegistryEntry, error)

	// Delete tombstones a remote collection and removes its registry
	// entry and cached items immediately.
	Delete(ctx context.Context, collectionID string) error
}
