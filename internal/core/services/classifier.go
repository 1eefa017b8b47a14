package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/pimsync/internal/core/domain"
	"github.com/custodia-labs/pimsync/internal/core/ports/driven"
	"github.com/custodia-labs/pimsync/internal/logger"
)

// Classifier turns a stream of log entries into created/modified/removed
// sets keyed by item uid, keeping only the most recent action per uid.
// One classifier spans one whole multi-page walk: the in-walk maps carry
// across pages, so a page-2 change to a page-1 addition folds into the
// pending creation rather than reporting a modification of an item the
// cache has never seen.
//
// Classification is existence-based against the cache: the log's own
// add/change/delete tag reflects server-side history, not the caller's
// cache state, and the two can disagree after partial syncs. The
// classifier reads the cache but never writes; feeding the same entries
// twice from a fresh classifier with the same cache snapshot yields
// identical sets.
type Classifier struct {
	cache        driven.ItemCache
	collectionID string
	kind         ItemKind

	created  map[string]domain.Item
	modified map[string]domain.Item
	removed  map[string]domain.Item
}

// NewClassifier creates a classifier for one walk over one collection.
func NewClassifier(cache driven.ItemCache, collectionID string, kind ItemKind) *Classifier {
	return &Classifier{
		cache:        cache,
		collectionID: collectionID,
		kind:         kind,
		created:      make(map[string]domain.Item),
		modified:     make(map[string]domain.Item),
		removed:      make(map[string]domain.Item),
	}
}

// Feed classifies one page of entries, in order.
func (c *Classifier) Feed(ctx context.Context, entries []domain.LogEntry) error {
	for i := range entries {
		if err := c.feedOne(ctx, &entries[i]); err != nil {
			return err
		}
	}
	return nil
}

// feedOne classifies a single entry.
func (c *Classifier) feedOne(ctx context.Context, entry *domain.LogEntry) error {
	if !entry.Action.IsValid() {
		// Unknown actions are dropped, never an error.
		logger.Debug("Discarding entry with unrecognised action %q", entry.Action)
		return nil
	}

	uid := entry.UID
	if uid == "" {
		uid = c.kind.UID(entry.Payload)
	}
	if uid == "" {
		uid = domain.PayloadHash(entry.Payload)
	}

	item := domain.Item{
		UID:          uid,
		Revision:     c.kind.Revision(entry.Payload),
		Payload:      entry.Payload,
		ResumeHandle: entry.ResumeHandle,
	}

	if entry.Action == domain.ActionDelete {
		delete(c.created, uid)
		delete(c.modified, uid)
		inCache, err := c.inCache(ctx, uid)
		if err != nil {
			return err
		}
		if !inCache {
			// Nothing to remove locally; drop it. An addition deleted
			// within the same walk cancels out entirely.
			return nil
		}
		c.removed[uid] = item
		return nil
	}

	// Add or change. An earlier in-walk classification absorbs the newer
	// payload without changing category: the cache still has not seen the
	// item, so a change on top of a pending creation stays a creation.
	if _, ok := c.created[uid]; ok {
		c.created[uid] = item
		return nil
	}
	if _, ok := c.modified[uid]; ok {
		c.modified[uid] = item
		return nil
	}

	// A uid currently in removed is reinstated; whether it lands in
	// created or modified depends on the cache alone.
	delete(c.removed, uid)
	inCache, err := c.inCache(ctx, uid)
	if err != nil {
		return err
	}
	if inCache {
		c.modified[uid] = item
	} else {
		c.created[uid] = item
	}
	return nil
}

func (c *Classifier) inCache(ctx context.Context, uid string) (bool, error) {
	inCache, err := c.cache.Contains(ctx, c.collectionID, uid)
	if err != nil {
		return false, fmt.Errorf("cache lookup %s: %w", uid, err)
	}
	return inCache, nil
}

// Result returns the three disjoint sets accumulated so far. The maps are
// handed over; the classifier must not be fed afterwards.
func (c *Classifier) Result() *domain.ChangeSet {
	return &domain.ChangeSet{
		Created:  c.created,
		Modified: c.modified,
		Removed:  c.removed,
	}
}
