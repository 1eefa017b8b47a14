package driving

import (
	"context"

	"github.com/custodia-labs/pimsync/internal/core/domain"
)

// SyncEngine synchronises one collection: it pulls remote changes into the
// local cache and pushes local mutations back in bounded batches. Safe for
// concurrent use from multiple goroutines against the same collection.
type SyncEngine interface {
	// Refresh pulls everything after the collection's committed cursor,
	// folds in any staged push output, commits the result to the cache
	// and returns the classified change set.
	Refresh(ctx context.Context) (*domain.ChangeSet, error)

	// CreateItems uploads new items built from the given payloads and
	// returns them with server-assigned revisions and resume handles.
	// All-or-nothing: a non-conflict failure in any chunk discards every
	// already-staged record from the call.
	CreateItems(ctx context.Context, payloads []string) ([]domain.Item, error)

	// ModifyItems uploads modified payloads for existing items.
	ModifyItems(ctx context.Context, payloads []string) ([]domain.Item, error)

	// DeleteItems uploads deletions for the given uids.
	DeleteItems(ctx context.Context, uids []string) error

	// CollectionID returns the collection this engine serves.
	CollectionID() string
}
