package driven

import (
	"context"

	"github.com/custodia-labs/pimsync/internal/core/domain"
)

// DirectoryClient enumerates and mutates the account's top-level
// collections. The cursor/page contract matches RemoteLog.List,
// generalised to collection metadata.
type DirectoryClient interface {
	// ListCollections returns one page of collections changed since
	// cursor, including tombstones and removed memberships.
	ListCollections(ctx context.Context, cursor string, limit int) (*domain.CollectionPage, error)

	// CreateCollection creates a collection in a single round trip and
	// returns it with its server-assigned id, plus the directory cursor
	// after the creation.
	CreateCollection(ctx context.Context, typ domain.CollectionType, meta domain.CollectionMetadata) (*domain.Collection, string, error)

	// DeleteCollection tombstones a collection in a single round trip.
	DeleteCollection(ctx context.Context, collectionID string) error
}
