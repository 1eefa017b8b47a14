package file

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/custodia-labs/pimsync/internal/core/domain"
	"github.com/custodia-labs/pimsync/internal/core/ports/driven"
)

// Ensure SecretStore implements the interface.
var _ driven.SecretStore = (*SecretStore)(nil)

// SecretStore is a file-backed implementation of driven.SecretStore.
type SecretStore struct {
	mu        sync.RWMutex
	dir       string
	ephemeral map[string][]byte
}

// NewSecretStore creates a new file-backed secret store.
// If configDir is empty, defaults to ~/.pimsync/secrets.
func NewSecretStore(configDir string) (*SecretStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		configDir = filepath.Join(home, ".pimsync")
	}

	dir := filepath.Join(configDir, "secrets")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	return &SecretStore{
		dir:       dir,
		ephemeral: make(map[string][]byte),
	}, nil
}

// Store saves a credential blob under accountID. With persist=false the
// blob is held in memory only and superseded files are removed.
func (s *SecretStore) Store(_ context.Context, accountID, _ string, blob []byte, persist bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !persist {
		copied := make([]byte, len(blob))
		copy(copied, blob)
		s.ephemeral[accountID] = copied
		// A stale persisted blob must not shadow the session one.
		if err := os.Remove(s.path(accountID)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing persisted secret: %w", err)
		}
		return nil
	}

	delete(s.ephemeral, accountID)
	if err := os.WriteFile(s.path(accountID), blob, 0600); err != nil {
		return fmt.Errorf("writing secret: %w", err)
	}
	return nil
}

// Lookup returns the stored blob, or domain.ErrNotFound. Session-scoped
// blobs take precedence over persisted ones.
func (s *SecretStore) Lookup(_ context.Context, accountID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if blob, ok := s.ephemeral[accountID]; ok {
		copied := make([]byte, len(blob))
		copy(copied, blob)
		return copied, nil
	}

	blob, err := os.ReadFile(s.path(accountID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("reading secret: %w", err)
	}
	return blob, nil
}

// Delete removes the stored blob. Deleting a missing blob is not an error.
func (s *SecretStore) Delete(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.ephemeral, accountID)
	if err := os.Remove(s.path(accountID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing secret: %w", err)
	}
	return nil
}

// path derives the secret file path. The account id is hashed so ids
// containing path separators or other special characters stay safe.
func (s *SecretStore) path(accountID string) string {
	sum := sha256.Sum256([]byte(accountID))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:16])+".secret")
}
