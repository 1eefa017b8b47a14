package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/pimsync/internal/core/domain"
	"github.com/custodia-labs/pimsync/internal/core/ports/driven"
)

// Ensure ItemCache implements the interface.
var _ driven.ItemCache = (*ItemCache)(nil)

// ItemCache is an in-memory implementation of driven.ItemCache.
type ItemCache struct {
	mu      sync.RWMutex
	items   map[string]map[string]domain.Item
	cursors map[string]string
}

// NewItemCache creates a new in-memory item cache.
func NewItemCache() *ItemCache {
	return &ItemCache{
		items:   make(map[string]map[string]domain.Item),
		cursors: make(map[string]string),
	}
}

// Contains reports whether a live row exists for uid in the collection.
func (c *ItemCache) Contains(_ context.Context, collectionID, uid string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.items[collectionID][uid]
	return ok, nil
}

// Get retrieves a cached item.
func (c *ItemCache) Get(_ context.Context, collectionID, uid string) (*domain.Item, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[collectionID][uid]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &item, nil
}

// ResumeHandle returns the stored resume handle for uid.
func (c *ItemCache) ResumeHandle(_ context.Context, collectionID, uid string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[collectionID][uid]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return item.ResumeHandle, nil
}

// List returns all live items in the collection, ordered by uid.
func (c *ItemCache) List(_ context.Context, collectionID string) ([]domain.Item, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows := c.items[collectionID]
	items := make([]domain.Item, 0, len(rows))
	for _, item := range rows {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].UID < items[j].UID })
	return items, nil
}

// ApplyChanges commits a classified change set together with the new
// cursor under one lock acquisition.
func (c *ItemCache) ApplyChanges(_ context.Context, collectionID string, changes *domain.ChangeSet, cursor string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, ok := c.items[collectionID]
	if !ok {
		rows = make(map[string]domain.Item)
		c.items[collectionID] = rows
	}

	if changes != nil {
		for uid, item := range changes.Created {
			rows[uid] = item
		}
		for uid, item := range changes.Modified {
			rows[uid] = item
		}
		for uid := range changes.Removed {
			delete(rows, uid)
		}
	}

	c.cursors[collectionID] = cursor
	return nil
}

// Cursor returns the last committed cursor, or an empty string for a
// collection that has never been synced.
func (c *ItemCache) Cursor(_ context.Context, collectionID string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cursors[collectionID], nil
}

// DeleteCollection drops all rows and the cursor for a collection.
func (c *ItemCache) DeleteCollection(_ context.Context, collectionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, collectionID)
	delete(c.cursors, collectionID)
	return nil
}
