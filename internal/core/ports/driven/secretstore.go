package driven

import "context"

// SecretStore persists opaque credential blobs by account id. Backed by a
// platform secret service in production; the engine only consumes it.
type SecretStore interface {
	// Store saves a credential blob under accountID. The label is a
	// human-readable hint for secret-service UIs. When persist is false
	// the blob must not outlive the session.
	Store(ctx context.Context, accountID, label string, blob []byte, persist bool) error

	// Lookup returns the stored blob, or domain.ErrNotFound.
	Lookup(ctx context.Context, accountID string) ([]byte, error)

	// Delete removes the stored blob. Deleting a missing blob is not an
	// error.
	Delete(ctx context.Context, accountID string) error
}
