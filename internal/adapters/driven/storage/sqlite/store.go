package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/pimsync/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/pimsync/internal/core/domain"
	"github.com/custodia-labs/pimsync/internal/core/ports/driven"
)

// Store is the SQLite-backed item cache.
type Store struct {
	db   *sql.DB
	path string
}

var _ driven.ItemCache = (*Store)(nil)

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.pimsync/data/cache.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".pimsync", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "cache.db")

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Contains reports whether a live row exists for uid in the collection.
func (s *Store) Contains(ctx context.Context, collectionID, uid string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM items
		WHERE collection_id = ? AND uid = ? AND deleted = 0
	`, collectionID, uid).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking item: %w", err)
	}
	return count > 0, nil
}

// Get retrieves a live cached item.
func (s *Store) Get(ctx context.Context, collectionID, uid string) (*domain.Item, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT uid, revision, payload, resume_handle
		FROM items WHERE collection_id = ? AND uid = ? AND deleted = 0
	`, collectionID, uid)

	var item domain.Item
	var handle []byte
	if err := row.Scan(&item.UID, &item.Revision, &item.Payload, &handle); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning item: %w", err)
	}
	item.ResumeHandle = handle
	return &item, nil
}

// ResumeHandle returns the stored resume handle for a live item.
func (s *Store) ResumeHandle(ctx context.Context, collectionID, uid string) ([]byte, error) {
	var handle []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT resume_handle FROM items
		WHERE collection_id = ? AND uid = ? AND deleted = 0
	`, collectionID, uid).Scan(&handle)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning resume handle: %w", err)
	}
	return handle, nil
}

// List returns all live items in the collection.
func (s *Store) List(ctx context.Context, collectionID string) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uid, revision, payload, resume_handle
		FROM items WHERE collection_id = ? AND deleted = 0
		ORDER BY uid
	`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()

	var items []domain.Item //nolint:prealloc // size unknown from query
	for rows.Next() {
		var item domain.Item
		var handle []byte
		if err := rows.Scan(&item.UID, &item.Revision, &item.Payload, &handle); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		item.ResumeHandle = handle
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating items: %w", err)
	}

	return items, nil
}

// ApplyChanges commits a classified change set together with the new
// cursor in one transaction. Created and modified rows are upserted,
// removed rows become tombstones, and the cursor row advances; either
// all of it lands or none of it does.
func (s *Store) ApplyChanges(ctx context.Context, collectionID string, changes *domain.ChangeSet, cursor string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()

	upsert, err := tx.PrepareContext(ctx, `
		INSERT INTO items (collection_id, uid, revision, payload, resume_handle, deleted, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(collection_id, uid) DO UPDATE SET
			revision = excluded.revision,
			payload = excluded.payload,
			resume_handle = excluded.resume_handle,
			deleted = 0,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer upsert.Close()

	if changes != nil {
		for _, item := range changes.Created {
			if _, err := upsert.ExecContext(ctx, collectionID, item.UID, item.Revision,
				item.Payload, item.ResumeHandle, now); err != nil {
				return fmt.Errorf("upserting created item %s: %w", item.UID, err)
			}
		}
		for _, item := range changes.Modified {
			if _, err := upsert.ExecContext(ctx, collectionID, item.UID, item.Revision,
				item.Payload, item.ResumeHandle, now); err != nil {
				return fmt.Errorf("upserting modified item %s: %w", item.UID, err)
			}
		}
		for uid := range changes.Removed {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO items (collection_id, uid, deleted, updated_at)
				VALUES (?, ?, 1, ?)
				ON CONFLICT(collection_id, uid) DO UPDATE SET
					deleted = 1,
					updated_at = excluded.updated_at
			`, collectionID, uid, now); err != nil {
				return fmt.Errorf("tombstoning item %s: %w", uid, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cursors (collection_id, cursor, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(collection_id) DO UPDATE SET
			cursor = excluded.cursor,
			updated_at = excluded.updated_at
	`, collectionID, cursor, now); err != nil {
		return fmt.Errorf("saving cursor: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Cursor returns the last committed cursor, or an empty string for a
// collection that has never been synced.
func (s *Store) Cursor(ctx context.Context, collectionID string) (string, error) {
	var cursor string
	err := s.db.QueryRowContext(ctx,
		"SELECT cursor FROM cursors WHERE collection_id = ?", collectionID).Scan(&cursor)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("scanning cursor: %w", err)
	}
	return cursor, nil
}

// DeleteCollection drops all rows and the cursor for a collection.
func (s *Store) DeleteCollection(ctx context.Context, collectionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM items WHERE collection_id = ?", collectionID); err != nil {
		return fmt.Errorf("deleting items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM cursors WHERE collection_id = ?", collectionID); err != nil {
		return fmt.Errorf("deleting cursor: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	// Find all up migrations
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort and run migrations
	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_initial.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		// Read and execute migration
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(
			"INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}
