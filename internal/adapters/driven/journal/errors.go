package journal

import (
	"fmt"
	"net/http"

	"github.com/custodia-labs/pimsync/internal/core/domain"
)

// APIError represents a journal server error response.
type APIError struct {
	StatusCode int
	Message    string
	URL        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("journal: API error %d: %s (URL: %s)", e.StatusCode, e.Message, e.URL)
}

// mapStatus converts an HTTP status into the domain error the engine
// understands, keeping the raw response attached for diagnostics.
func mapStatus(status int, message, url string) error {
	apiErr := &APIError{StatusCode: status, Message: message, URL: url}
	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %v", domain.ErrUnauthorized, apiErr)
	case http.StatusConflict:
		return fmt.Errorf("%w: %v", domain.ErrConflict, apiErr)
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("%w: %v", domain.ErrNotFound, apiErr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", domain.ErrRateLimited, apiErr)
	}
	return apiErr
}
