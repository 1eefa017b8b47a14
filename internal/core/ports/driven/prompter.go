package driven

import (
	"context"

	"github.com/custodia-labs/pimsync/internal/core/domain"
)

// CredentialPrompter is the engine's signal to the UI collaborator that
// credentials are needed. The response may arrive asynchronously; a nil
// credentials result with a nil error means the user cancelled.
type CredentialPrompter interface {
	// RequestCredentials asks for credentials for accountID, stating why
	// and carrying a correlation id so late responses can be matched to
	// the request that caused them.
	RequestCredentials(ctx context.Context, accountID string, reason domain.PromptReason, correlationID string) (*domain.Credentials, error)
}
