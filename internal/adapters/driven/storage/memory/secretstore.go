package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/pimsync/internal/core/domain"
	"github.com/custodia-labs/pimsync/internal/core/ports/driven"
)

// Ensure SecretStore implements the interface.
var _ driven.SecretStore = (*SecretStore)(nil)

// SecretStore is an in-memory implementation of driven.SecretStore. All
// blobs are session-scoped regardless of the persist flag, which makes it
// the natural backing for accounts that decline credential persistence.
type SecretStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewSecretStore creates a new in-memory secret store.
func NewSecretStore() *SecretStore {
	return &SecretStore{
		blobs: make(map[string][]byte),
	}
}

// Store saves a credential blob under accountID.
func (s *SecretStore) Store(_ context.Context, accountID, _ string, blob []byte, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]byte, len(blob))
	copy(copied, blob)
	s.blobs[accountID] = copied
	return nil
}

// Lookup returns the stored blob, or domain.ErrNotFound.
func (s *SecretStore) Lookup(_ context.Context, accountID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[accountID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := make([]byte, len(blob))
	copy(copied, blob)
	return copied, nil
}

// Delete removes the stored blob. Deleting a missing blob is not an error.
func (s *SecretStore) Delete(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, accountID)
	return nil
}
