package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/custodia-labs/pimsync/internal/core/domain"
	"github.com/custodia-labs/pimsync/internal/core/ports/driven"
	"github.com/custodia-labs/pimsync/internal/logger"
)

// DefaultPushLimit is the maximum number of mutations per append request.
const DefaultPushLimit = 30

// RefreshFunc folds the intervening remote changes into the local cache
// and returns the current committed head cursor. Supplied by the engine so
// a conflicted push can recompute its expected cursor.
type RefreshFunc func(ctx context.Context) (string, error)

// PushResult is the staged outcome of a fully successful push: one record
// per mutation, in input order, plus the head cursor after the last chunk.
type PushResult struct {
	Staged []domain.Item
	Cursor string
}

// BatchPusher uploads N local mutations of one kind in chunks of at most
// pushLimit entries, tolerating a concurrent writer via conflict-retry.
// The policy is all-or-nothing per top-level call: any chunk failure that
// is not a retryable conflict discards every already-staged record and
// surfaces the error. The server keeps chunks it already committed; the
// next full refresh reconciles them.
type BatchPusher struct {
	log       driven.RemoteLog
	session   *Session
	pushLimit int
}

// NewBatchPusher creates a pusher over the given remote log. A pushLimit
// of zero or less selects DefaultPushLimit.
func NewBatchPusher(log driven.RemoteLog, session *Session, pushLimit int) *BatchPusher {
	if pushLimit <= 0 {
		pushLimit = DefaultPushLimit
	}
	return &BatchPusher{
		log:       log,
		session:   session,
		pushLimit: pushLimit,
	}
}

// Push uploads the items as entries of the given action. expectedCursor is
// the caller's last committed head; refresh is invoked after a conflict to
// fold in the intervening changes and recompute it. On success every item
// is returned as a staged record carrying its resume handle.
func (p *BatchPusher) Push(
	ctx context.Context,
	collectionID string,
	action domain.EntryAction,
	items []domain.Item,
	expectedCursor string,
	refresh RefreshFunc,
) (*PushResult, error) {
	staged := make([]domain.Item, 0, len(items))
	cursor := expectedCursor

	for start := 0; start < len(items); {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + p.pushLimit
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]

		newCursor, lastPosition, err := p.pushChunk(ctx, collectionID, action, chunk, cursor)
		if err != nil {
			if err != errRetryChunk {
				return nil, err
			}
			// Conflict: another writer advanced the head. Fold in the
			// intervening changes and retry the same chunk against the
			// refreshed cursor. Each retry must observe a strictly newer
			// cursor, otherwise no progress is possible.
			refreshed, rerr := refresh(ctx)
			if rerr != nil {
				return nil, fmt.Errorf("refresh after conflict: %w", rerr)
			}
			if refreshed == cursor {
				return nil, fmt.Errorf("%w: head unchanged after refresh", domain.ErrConflict)
			}
			cursor = refreshed
			continue
		}

		for i := range chunk {
			item := chunk[i]
			if len(item.ResumeHandle) == 0 {
				item.ResumeHandle = encodeResumeHandle(item.UID, lastPosition)
			}
			staged = append(staged, item)
		}
		cursor = newCursor
		start = end
	}

	return &PushResult{Staged: staged, Cursor: cursor}, nil
}

// errRetryChunk signals a retryable conflict to the chunk loop.
var errRetryChunk = errors.New("retry chunk")

// pushChunk builds and appends one chunk of chained entries. Returns the
// new head cursor and the position of the chunk's last entry.
func (p *BatchPusher) pushChunk(
	ctx context.Context,
	collectionID string,
	action domain.EntryAction,
	chunk []domain.Item,
	expectedCursor string,
) (string, string, error) {
	entries := make([]domain.LogEntry, len(chunk))
	parent := expectedCursor
	for i := range chunk {
		position := uuid.NewString()
		entries[i] = domain.LogEntry{
			Action:   action,
			UID:      chunk[i].UID,
			Payload:  chunk[i].Payload,
			Position: position,
			Parent:   parent,
		}
		parent = position
	}

	var newCursor string
	err := p.session.ExecuteWithRetry(ctx, func(ctx context.Context) error {
		c, err := p.log.Append(ctx, collectionID, entries, expectedCursor)
		if err != nil {
			return err
		}
		newCursor = c
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			logger.Debug("Append conflict on %s at cursor %q", collectionID, expectedCursor)
			return "", "", errRetryChunk
		}
		return "", "", fmt.Errorf("append %d entries: %w", len(entries), err)
	}

	return newCursor, entries[len(entries)-1].Position, nil
}

// encodeResumeHandle builds the opaque handle staged with a pushed item:
// item identity plus a pointer into the log.
func encodeResumeHandle(uid, position string) []byte {
	return []byte(uid + "\x00" + position)
}
