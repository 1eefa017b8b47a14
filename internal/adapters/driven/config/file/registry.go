package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/pimsync/internal/core/domain"
	"github.com/custodia-labs/pimsync/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.CollectionRegistry = (*Registry)(nil)

// registryFile is the on-disk TOML layout.
type registryFile struct {
	DirectoryCursor string                 `toml:"directory_cursor,omitempty"`
	Collections     []domain.RegistryEntry `toml:"collections"`
}

// Registry is a TOML-file-based implementation of driven.CollectionRegistry.
// Every mutation is persisted immediately; the file is small enough that
// rewriting it wholesale on each save is the simplest correct approach.
type Registry struct {
	mu              sync.RWMutex
	filePath        string
	entries         map[string]domain.RegistryEntry
	directoryCursor string
}

// NewRegistry creates a new TOML-based collection registry.
// If configDir is empty, defaults to ~/.pimsync/collections.toml.
func NewRegistry(configDir string) (*Registry, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		configDir = filepath.Join(home, ".pimsync")
	}

	// Ensure directory exists
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, err
	}

	r := &Registry{
		filePath: filepath.Join(configDir, "collections.toml"),
		entries:  make(map[string]domain.RegistryEntry),
	}

	if err := r.load(); err != nil {
		return nil, err
	}

	return r, nil
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

// Save creates or updates an entry and persists immediately.
func (r *Registry) Save(_ context.Context, entry domain.RegistryEntry) error {
	if entry.CollectionID == "" {
		return domain.ErrInvalidInput
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.CollectionID] = entry
	return r.save()
}

// Delete removes an entry. Deleting a missing entry is not an error.
func (r *Registry) Delete(_ context.Context, collectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[collectionID]; !ok {
		return nil
	}
	delete(r.entries, collectionID)
	return r.save()
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
	return r.save()
}

// Path returns the registry file path.
func (r *Registry) Path() string {
	return r.filePath
}

// save writes the registry to the TOML file (caller must hold lock).
func (r *Registry) save() error {
	entries := make([]domain.RegistryEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CollectionID < entries[j].CollectionID
	})

	data, err := toml.Marshal(registryFile{
		DirectoryCursor: r.directoryCursor,
		Collections:     entries,
	})
	if err != nil {
		return fmt.Errorf("encoding registry: %w", err)
	}

	// Write with restricted permissions
	return os.WriteFile(r.filePath, data, 0600)
}

// load reads the registry from the TOML file.
func (r *Registry) load() error {
	data, err := os.ReadFile(r.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			// No registry file yet, start empty
			return nil
		}
		return err
	}

	var loaded registryFile
	if err := toml.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("decoding registry: %w", err)
	}

	r.directoryCursor = loaded.DirectoryCursor
	for _, entry := range loaded.Collections {
		if entry.CollectionID == "" {
			continue
		}
		r.entries[entry.CollectionID] = entry
	}
	return nil
}
