package driven

import (
	"context"

	"github.com/custodia-labs/pimsync/internal/core/domain"
)

// RemoteLog is the append-only per-collection change log. Two protocol
// implementations exist (journal, etebase); the engine never knows which
// one is active.
type RemoteLog interface {
	// List returns up to limit entries strictly after cursor. An empty
	// cursor means "from the beginning". The returned cursor is
	// resumable even if the process crashes between pages; callers loop
	// until Done. A server report of "no entries since cursor" is an
	// empty page with Done=true, not an error.
	List(ctx context.Context, collectionID, cursor string, limit int) (*domain.LogPage, error)

	// Append atomically appends entries whose chain starts at
	// expectedCursor and returns the new head cursor. Returns
	// domain.ErrConflict if the server's head no longer matches
	// expectedCursor because another writer advanced it.
	Append(ctx context.Context, collectionID string, entries []domain.LogEntry, expectedCursor string) (string, error)
}
