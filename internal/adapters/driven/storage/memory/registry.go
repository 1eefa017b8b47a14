package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/pimsync/internal/core/domain"
	"github.com/custodia-labs/pimsync/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.CollectionRegistry = (*Registry)(nil)

// Registry is an in-memory implementation of driven.CollectionRegistry.
type Registry struct {
	mu              sync.RWMutex
	entries         map[string]domain.RegistryEntry
	directoryCursor string
}

// NewRegistry creates a new in-memory collection registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]domain.RegistryEntry),
	}
}

// List returns all entries, ordered by collection id.
func (r *Registry) List(_ context.Context) ([]domain.RegistryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]domain.RegistryEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CollectionID < entries[j].CollectionID
	})
	return entries, nil
}

// Get returns the entry for a collection, or domain.ErrNotFound.
func (r *Registry) Get(_ context.Context, collectionID string) (*domain.RegistryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[collectionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &entry, nil
}

// Save creates or updates an entry.
func (r *Registry) Save(_ context.Context, entry domain.RegistryEntry) error {
	if entry.CollectionID == "" {
		return domain.ErrInvalidInput
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.CollectionID] = entry
	return nil
}

// Delete removes an entry. Deleting a missing entry is not an error.
func (r *Registry) Delete(_ context.Context, collectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, collectionID)
	return nil
}

// DirectoryCursor returns the account-level directory cursor.
func (r *Registry) DirectoryCursor(_ context.Context) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.directoryCursor, nil
}

// SetDirectoryCursor persists the account-level directory cursor.
func (r *Registry) SetDirectoryCursor(_ context.Context, cursor string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.directoryCursor = cursor
	return nil
}
