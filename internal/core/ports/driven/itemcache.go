package driven

import (
	"context"

	"github.com/custodia-labs/pimsync/internal/core/domain"
)

// ItemCache is the local key-value store of last-known item state per
// collection. It decides new-vs-modified during classification and keeps
// the opaque resume handles needed to mutate items later.
type ItemCache interface {
	// Contains reports whether the cache holds a live (not tombstoned)
	// row for uid in the collection.
	Contains(ctx context.Context, collectionID, uid string) (bool, error)

	// Get returns the cached item, or domain.ErrNotFound.
	Get(ctx context.Context, collectionID, uid string) (*domain.Item, error)

	// ResumeHandle returns the stored resume handle for uid, or
	// domain.ErrNotFound.
	ResumeHandle(ctx context.Context, collectionID, uid string) ([]byte, error)

	// List returns all live items in the collection.
	List(ctx context.Context, collectionID string) ([]domain.Item, error)

	// ApplyChanges commits a classified change set together with the new
	// cursor in one transaction: created/modified rows are upserted,
	// removed rows are tombstoned, and the cursor row is updated. From
	// the caller's perspective the cursor and the rows it produced are
	// atomic.
	ApplyChanges(ctx context.Context, collectionID string, changes *domain.ChangeSet, cursor string) error

	// Cursor returns the last committed cursor for the collection, or
	// an empty string when the collection has never been synced.
	Cursor(ctx context.Context, collectionID string) (string, error)

	// DeleteCollection drops all rows and the cursor for a collection.
	DeleteCollection(ctx context.Context, collectionID string) error
}
