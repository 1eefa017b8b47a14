package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/pimsync/internal/core/domain"
	"github.com/custodia-labs/pimsync/internal/core/ports/driven"
	"github.com/custodia-labs/pimsync/internal/core/ports/driving"
	"github.com/custodia-labs/pimsync/internal/logger"
)

// Ensure CollectionEngine implements the interface.
var _ driving.SyncEngine = (*CollectionEngine)(nil)

// DefaultFetchLimit is the page size for pull pagination.
const DefaultFetchLimit = 50

// EngineOption configures a CollectionEngine.
type EngineOption func(*CollectionEngine)

// WithFetchLimit overrides the pull page size.
func WithFetchLimit(limit int) EngineOption {
	return func(e *CollectionEngine) {
		if limit > 0 {
			e.fetchLimit = limit
		}
	}
}

// WithPushLimit overrides the push chunk size.
func WithPushLimit(limit int) EngineOption {
	return func(e *CollectionEngine) {
		e.pusher = NewBatchPusher(e.log, e.session, limit)
	}
}

// CollectionEngine synchronises one collection. A single mutex guards the
// collection's cursor, staged push results and network access for the
// whole duration of any pull or push, so concurrent callers serialise and
// a pull that starts after a push completes always observes the pushed
// cursor. Operations that need a refresh mid-push call the *Locked
// variants directly instead of re-entering the public API.
type CollectionEngine struct {
	collectionID string
	kind         ItemKind
	session      *Session
	log          driven.RemoteLog
	cache        driven.ItemCache
	registry     driven.CollectionRegistry
	pusher       *BatchPusher
	fetchLimit   int

	mu     sync.Mutex
	staged *domain.ChangeSet
}

// NewCollectionEngine creates the engine for one collection. The registry
// may be nil when no local configuration mirror is attached.
func NewCollectionEngine(
	collectionID string,
	typ domain.CollectionType,
	session *Session,
	log driven.RemoteLog,
	cache driven.ItemCache,
	registry driven.CollectionRegistry,
	opts ...EngineOption,
) *CollectionEngine {
	e := &CollectionEngine{
		collectionID: collectionID,
		kind:         KindFor(typ),
		session:      session,
		log:          log,
		cache:        cache,
		registry:     registry,
		fetchLimit:   DefaultFetchLimit,
		staged:       domain.NewChangeSet(),
	}
	e.pusher = NewBatchPusher(log, session, DefaultPushLimit)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CollectionID returns the collection this engine serves.
func (e *CollectionEngine) CollectionID() string {
	return e.collectionID
}

// Refresh pulls everything after the committed cursor, folds in staged
// push output, commits the result atomically and returns it.
func (e *CollectionEngine) Refresh(ctx context.Context) (*domain.ChangeSet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refreshLocked(ctx, true, "")
}

// refreshLocked runs one refresh cycle with e.mu held. When fetchRemote is
// false only the staged output is folded; cursorOverride then carries the
// post-push head to commit (empty means keep the committed cursor).
func (e *CollectionEngine) refreshLocked(ctx context.Context, fetchRemote bool, cursorOverride string) (*domain.ChangeSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Fold staged push output first so a refresh immediately after a push
	// yields the just-pushed items without a network round trip.
	result := e.staged
	e.staged = domain.NewChangeSet()

	cursor, err := e.cache.Cursor(ctx, e.collectionID)
	if err != nil {
		return nil, fmt.Errorf("read cursor: %w", err)
	}
	if cursorOverride != "" {
		cursor = cursorOverride
	}

	if fetchRemote {
		classifier := NewClassifier(e.cache, e.collectionID, e.kind)
		done := false
		for !done {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			var page *domain.LogPage
			err := e.session.ExecuteWithRetry(ctx, func(ctx context.Context) error {
				p, err := e.log.List(ctx, e.collectionID, cursor, e.fetchLimit)
				if err != nil {
					return err
				}
				page = p
				return nil
			})
			if err != nil {
				if errors.Is(err, domain.ErrCredentialsRejected) {
					return nil, err
				}
				return nil, fmt.Errorf("%w: list %s: %v", domain.ErrSyncFailed, e.collectionID, err)
			}

			if err := classifier.Feed(ctx, page.Entries); err != nil {
				return nil, fmt.Errorf("classify page: %w", err)
			}
			if page.Cursor != "" {
				cursor = page.Cursor
			}
			done = page.Done
			logger.Debug("Pulled %d entries from %s (done=%v)", len(page.Entries), e.collectionID, done)
		}

		// Remote changes win over staged output on uid overlap: the log
		// is the newer truth.
		result.Merge(classifier.Result())
	}

	if err := e.cache.ApplyChanges(ctx, e.collectionID, result, cursor); err != nil {
		return nil, fmt.Errorf("commit changes: %w", err)
	}
	e.touchRegistry(ctx)

	logger.Info("Collection %s: %d created, %d modified, %d removed",
		e.collectionID, len(result.Created), len(result.Modified), len(result.Removed))
	return result, nil
}

// refreshCursor is the pusher's conflict hook: it runs a full refresh
// cycle with the lock already held and returns the new committed head.
func (e *CollectionEngine) refreshCursor(ctx context.Context) (string, error) {
	if _, err := e.refreshLocked(ctx, true, ""); err != nil {
		return "", err
	}
	cursor, err := e.cache.Cursor(ctx, e.collectionID)
	if err != nil {
		return "", fmt.Errorf("read cursor: %w", err)
	}
	return cursor, nil
}

// CreateItems uploads new items built from the given payloads.
func (e *CollectionEngine) CreateItems(ctx context.Context, payloads []string) ([]domain.Item, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	items := make([]domain.Item, len(payloads))
	for i, payload := range payloads {
		uid := e.kind.UID(payload)
		if uid == "" {
			uid = e.kind.NewUID()
		}
		items[i] = domain.Item{
			UID:      uid,
			Revision: e.kind.Revision(payload),
			Payload:  payload,
		}
	}

	staged, err := e.pushLocked(ctx, domain.ActionAdd, items)
	if err != nil {
		return nil, err
	}
	return staged, nil
}

// ModifyItems uploads modified payloads for existing items. Every payload
// must resolve to a cached item; a missing one is a hard error for the
// whole call.
func (e *CollectionEngine) ModifyItems(ctx context.Context, payloads []string) ([]domain.Item, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	items := make([]domain.Item, len(payloads))
	for i, payload := range payloads {
		uid := e.kind.UID(payload)
		if uid == "" {
			return nil, fmt.Errorf("%w: payload %d carries no uid", domain.ErrInvalidInput, i)
		}
		handle, err := e.cache.ResumeHandle(ctx, e.collectionID, uid)
		if err != nil {
			return nil, fmt.Errorf("resume handle for %s: %w", uid, err)
		}
		items[i] = domain.Item{
			UID:          uid,
			Revision:     e.kind.Revision(payload),
			Payload:      payload,
			ResumeHandle: handle,
		}
	}

	staged, err := e.pushLocked(ctx, domain.ActionChange, items)
	if err != nil {
		return nil, err
	}
	return staged, nil
}

// DeleteItems uploads deletions for the given uids. Every uid must be
// cached; a missing one is a hard error for the whole call.
func (e *CollectionEngine) DeleteItems(ctx context.Context, uids []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	items := make([]domain.Item, len(uids))
	for i, uid := range uids {
		cached, err := e.cache.Get(ctx, e.collectionID, uid)
		if err != nil {
			return fmt.Errorf("cached item %s: %w", uid, err)
		}
		items[i] = *cached
	}

	_, err := e.pushLocked(ctx, domain.ActionDelete, items)
	return err
}

// pushLocked runs one push with e.mu held: chunked append with conflict
// retry, then staging and an immediate local-only refresh that commits the
// staged output together with the pushed cursor.
func (e *CollectionEngine) pushLocked(ctx context.Context, action domain.EntryAction, items []domain.Item) ([]domain.Item, error) {
	if len(items) == 0 {
		return nil, nil
	}

	cursor, err := e.cache.Cursor(ctx, e.collectionID)
	if err != nil {
		return nil, fmt.Errorf("read cursor: %w", err)
	}

	result, err := e.pusher.Push(ctx, e.collectionID, action, items, cursor, e.refreshCursor)
	if err != nil {
		// All-or-nothing: nothing was staged on this engine.
		return nil, err
	}

	for _, item := range result.Staged {
		switch action {
		case domain.ActionAdd:
			e.staged.Created[item.UID] = item
		case domain.ActionChange:
			e.staged.Modified[item.UID] = item
		case domain.ActionDelete:
			e.staged.Removed[item.UID] = item
		}
	}

	if _, err := e.refreshLocked(ctx, false, result.Cursor); err != nil {
		return nil, fmt.Errorf("commit push output: %w", err)
	}
	return result.Staged, nil
}

// touchRegistry records the refresh time on the registry entry. Best
// effort; the registry may be detached.
func (e *CollectionEngine) touchRegistry(ctx context.Context) {
	if e.registry == nil {
		return
	}
	entry, err := e.registry.Get(ctx, e.collectionID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logger.Warn("Registry lookup for %s: %v", e.collectionID, err)
		}
		return
	}
	entry.LastSync = time.Now().UTC()
	if err := e.registry.Save(ctx, *entry); err != nil {
		logger.Warn("Registry update for %s: %v", e.collectionID, err)
	}
}
