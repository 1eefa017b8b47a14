package driven

import (
	"context"

	"github.com/custodia-labs/pimsync/internal/core/domain"
)

// Authenticator establishes and tears down sessions against the remote
// server. Each protocol adapter implements it.
type Authenticator interface {
	// Login validates the credentials and returns an opaque session
	// token plus a restorable session blob. Returns
	// domain.ErrCredentialsRejected when the server refused the
	// credentials; any other error is a transport/protocol failure
	// unrelated to credential correctness.
	Login(ctx context.Context, account domain.Account, creds domain.Credentials) (token string, sessionBlob []byte, err error)

	// Logout invalidates the session token server-side. Best effort.
	Logout(ctx context.Context, token string) error
}
