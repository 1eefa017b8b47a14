package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/custodia-labs/pimsync/internal/core/domain"
	"github.com/custodia-labs/pimsync/internal/core/ports/driven"
	"github.com/custodia-labs/pimsync/internal/core/ports/driving"
	"github.com/custodia-labs/pimsync/internal/logger"
)

// Ensure Directory implements the interface.
var _ driving.DirectoryService = (*Directory)(nil)

// DefaultDirectoryFetchLimit is the page size for collection enumeration.
const DefaultDirectoryFetchLimit = 30

// Directory reconciles the remote set of collections with the local
// registry: new collections gain entries, changed metadata is mirrored,
// tombstoned or revoked collections lose their entries and cached items.
type Directory struct {
	session  *Session
	client   driven.DirectoryClient
	registry driven.CollectionRegistry
	cache    driven.ItemCache

	mu         sync.Mutex
	fetchLimit int
}

// NewDirectory creates the directory service for one account.
func NewDirectory(
	session *Session,
	client driven.DirectoryClient,
	registry driven.CollectionRegistry,
	cache driven.ItemCache,
) *Directory {
	return &Directory{
		session:    session,
		client:     client,
		registry:   registry,
		cache:      cache,
		fetchLimit: DefaultDirectoryFetchLimit,
	}
}

// Sync enumerates remote collections page by page and brings the registry
// in line. A first run against an account with no collections of the
// default types bootstraps one default collection per type, so a brand-new
// account never presents as empty.
//
//nolint:gocyclo // Reconciliation with necessary sequential steps
func (d *Directory) Sync(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	logger.Section("Directory sync")

	// 1. Load the known entries for quick lookup.
	entries, err := d.registry.List(ctx)
	if err != nil {
		return fmt.Errorf("list registry: %w", err)
	}
	known := make(map[string]domain.RegistryEntry, len(entries))
	for _, entry := range entries {
		known[entry.CollectionID] = entry
	}

	// 2. Resume from the saved cursor; with no known entries the walk
	// restarts from the beginning regardless.
	cursor := ""
	if len(known) > 0 {
		cursor, err = d.registry.DirectoryCursor(ctx)
		if err != nil {
			return fmt.Errorf("read directory cursor: %w", err)
		}
	}
	firstRun := cursor == ""

	// 3. Walk the enumeration until done, reconciling each page.
	done := false
	for !done {
		if err := ctx.Err(); err != nil {
			return err
		}

		var page *domain.CollectionPage
		err := d.session.ExecuteWithRetry(ctx, func(ctx context.Context) error {
			p, err := d.client.ListCollections(ctx, cursor, d.fetchLimit)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			if errors.Is(err, domain.ErrCredentialsRejected) {
				return err
			}
			return fmt.Errorf("%w: list collections: %v", domain.ErrSyncFailed, err)
		}

		// Revoked membership and tombstones both remove the local entry.
		for _, collectionID := range page.RemovedMemberships {
			if err := d.removeLocal(ctx, collectionID, known); err != nil {
				return err
			}
		}
		for _, col := range page.Collections {
			if col.Deleted {
				if err := d.removeLocal(ctx, col.ID, known); err != nil {
					return err
				}
				continue
			}
			if err := d.createOrUpdateLocal(ctx, col, known); err != nil {
				return err
			}
		}

		if page.Cursor != "" {
			cursor = page.Cursor
		}
		done = page.Done
	}

	// 4. First-run bootstrap: create defaults for any default type the
	// account still has no collection of.
	if firstRun {
		bootCursor, err := d.bootstrapDefaults(ctx, known)
		if err != nil {
			return err
		}
		if bootCursor != "" {
			cursor = bootCursor
		}
	}

	if err := d.registry.SetDirectoryCursor(ctx, cursor); err != nil {
		return fmt.Errorf("save directory cursor: %w", err)
	}
	return nil
}

// Create creates a remote collection and mirrors it into the registry
// immediately, without waiting for the next Sync.
func (d *Directory) Create(ctx context.Context, typ domain.CollectionType, name string) (*domain.RegistryEntry, error) {
	if !typ.IsValid() {
		return nil, fmt.Errorf("%w: collection type %q", domain.ErrInvalidInput, typ)
	}
	if name == "" {
		name = typ.DefaultName()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	col, cursor, err := d.createRemote(ctx, typ, domain.CollectionMetadata{
		Name:   name,
		Colour: domain.DefaultCollectionColour,
	})
	if err != nil {
		return nil, err
	}

	entry := entryFromCollection(*col)
	if err := d.registry.Save(ctx, entry); err != nil {
		return nil, fmt.Errorf("save registry entry: %w", err)
	}
	if cursor != "" {
		if err := d.registry.SetDirectoryCursor(ctx, cursor); err != nil {
			return nil, fmt.Errorf("save directory cursor: %w", err)
		}
	}
	return &entry, nil
}

// Delete tombstones a remote collection and removes its local entry and
// cached items immediately.
func (d *Directory) Delete(ctx context.Context, collectionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.session.ExecuteWithRetry(ctx, func(ctx context.Context) error {
		return d.client.DeleteCollection(ctx, collectionID)
	})
	if err != nil {
		return fmt.Errorf("delete collection %s: %w", collectionID, err)
	}

	if err := d.registry.Delete(ctx, collectionID); err != nil {
		return fmt.Errorf("delete registry entry: %w", err)
	}
	if err := d.cache.DeleteCollection(ctx, collectionID); err != nil {
		return fmt.Errorf("drop cached items: %w", err)
	}
	return nil
}

// createRemote runs the single round-trip create under the session wrapper.
func (d *Directory) createRemote(ctx context.Context, typ domain.CollectionType, meta domain.CollectionMetadata) (*domain.Collection, string, error) {
	var (
		col    *domain.Collection
		cursor string
	)
	err := d.session.ExecuteWithRetry(ctx, func(ctx context.Context) error {
		c, cur, err := d.client.CreateCollection(ctx, typ, meta)
		if err != nil {
			return err
		}
		col = c
		cursor = cur
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("create %s collection: %w", typ, err)
	}
	return col, cursor, nil
}

// bootstrapDefaults creates one default collection per default type still
// missing. Returns the directory cursor after the last creation.
func (d *Directory) bootstrapDefaults(ctx context.Context, known map[string]domain.RegistryEntry) (string, error) {
	present := make(map[domain.CollectionType]bool)
	for _, entry := range known {
		present[entry.Type] = true
	}

	cursor := ""
	for _, typ := range domain.DefaultCollectionTypes {
		if present[typ] {
			continue
		}
		logger.Info("Bootstrapping default %s collection", typ)

		col, cur, err := d.createRemote(ctx, typ, domain.CollectionMetadata{
			Name:   typ.DefaultName(),
			Colour: domain.DefaultCollectionColour,
		})
		if err != nil {
			return "", err
		}
		entry := entryFromCollection(*col)
		if err := d.registry.Save(ctx, entry); err != nil {
			return "", fmt.Errorf("save registry entry: %w", err)
		}
		known[entry.CollectionID] = entry
		if cur != "" {
			cursor = cur
		}
	}
	return cursor, nil
}

// createOrUpdateLocal mirrors a live remote collection into the registry.
func (d *Directory) createOrUpdateLocal(ctx context.Context, col domain.Collection, known map[string]domain.RegistryEntry) error {
	existing, ok := known[col.ID]
	if ok && existing.MetadataEquals(col.Metadata) {
		return nil
	}

	entry := entryFromCollection(col)
	if ok {
		// Preserve local-only fields on metadata updates.
		entry.ResumeBlob = existing.ResumeBlob
		entry.RefreshInterval = existing.RefreshInterval
		entry.LastSync = existing.LastSync
		logger.Debug("Updating entry for collection %s", col.ID)
	} else {
		logger.Debug("Creating entry for collection %s (%s)", col.ID, col.Type)
	}

	if err := d.registry.Save(ctx, entry); err != nil {
		return fmt.Errorf("save registry entry: %w", err)
	}
	known[col.ID] = entry
	return nil
}

// removeLocal drops a collection's registry entry and cached items.
func (d *Directory) removeLocal(ctx context.Context, collectionID string, known map[string]domain.RegistryEntry) error {
	if _, ok := known[collectionID]; !ok {
		return nil
	}
	logger.Debug("Removing entry for collection %s", collectionID)

	if err := d.registry.Delete(ctx, collectionID); err != nil {
		return fmt.Errorf("delete registry entry: %w", err)
	}
	if err := d.cache.DeleteCollection(ctx, collectionID); err != nil {
		return fmt.Errorf("drop cached items: %w", err)
	}
	delete(known, collectionID)
	return nil
}

// entryFromCollection builds the registry mirror of a collection.
func entryFromCollection(col domain.Collection) domain.RegistryEntry {
	return domain.RegistryEntry{
		CollectionID: col.ID,
		Type:         col.Type,
		Name:         col.Metadata.Name,
		Description:  col.Metadata.Description,
		Colour:       col.Metadata.Colour,
	}
}
