package driving

import (
	"context"

	"github.com/custodia-labs/pimsync/internal/core/domain"
)

// AuthStatus is the outcome of an authentication attempt.
type AuthStatus int

const (
	// AuthAccepted means the transport handle and derived keys are ready.
	AuthAccepted AuthStatus = iota
	// AuthRejected means the server refused the presented credentials;
	// the caller must prompt for new ones.
	AuthRejected
	// AuthError means a transport/protocol failure unrelated to
	// credential correctness.
	AuthError
)

// String returns a readable name for the status.
func (s AuthStatus) String() string {
	switch s {
	case AuthAccepted:
		return "accepted"
	case AuthRejected:
		return "rejected"
	case AuthError:
		return "error"
	}
	return "unknown"
}

// SessionService manages authentication state for one account.
type SessionService interface {
	// Authenticate validates or establishes a session with the given
	// credentials. The returned error carries diagnostics for
	// AuthRejected and AuthError outcomes.
	Authenticate(ctx context.Context, creds domain.Credentials) (AuthStatus, error)

	// IsAuthenticated reports whether the session is ready for use.
	IsAuthenticated() bool

	// Logout invalidates the session.
	Logout(ctx context.Context) error
}
