package domain

import (
	"fmt"
	"net/url"
	"time"
)

// ProtocolVersion selects which remote protocol implementation serves an
// account. The sync engine itself never inspects it; selection happens at
// wiring time.
type ProtocolVersion int

const (
	// ProtocolJournal is the older per-entry encrypted journal protocol.
	ProtocolJournal ProtocolVersion = 1
	// ProtocolEtebase is the newer per-item collection/session protocol.
	ProtocolEtebase ProtocolVersion = 2
)

// Account identifies one remote account. At most one live session exists
// per (username, server) pair; collections under the account share it.
type Account struct {
	// Username is the remote account name.
	Username string

	// ServerURL is the remote endpoint, including scheme.
	ServerURL string

	// Protocol selects the remote protocol implementation.
	Protocol ProtocolVersion

	// CreatedAt is when the account was first logged in locally.
	CreatedAt time.Time
}

// Key returns the session deduplication key for the account.
func (a Account) Key() string {
	return a.Username + "@" + a.ServerURL
}

// Validate checks the account's endpoint before any network I/O.
func (a Account) Validate() error {
	if a.Username == "" {
		return fmt.Errorf("%w: empty username", ErrInvalidInput)
	}
	u, err := url.Parse(a.ServerURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidEndpoint, a.ServerURL)
	}
	if a.Protocol != ProtocolJournal && a.Protocol != ProtocolEtebase {
		return fmt.Errorf("%w: unknown protocol version %d", ErrInvalidEndpoint, a.Protocol)
	}
	return nil
}

// Credentials holds the long-lived credential material for an account:
// either a password (from which the login key is derived) or a restorable
// session blob saved from a previous login.
type Credentials struct {
	// Password is the account password. Empty when restoring a session.
	Password string `json:"password,omitempty"`

	// SessionBlob is an opaque restorable session produced by a previous
	// successful login. Preferred over the password when present.
	SessionBlob []byte `json:"session_blob,omitempty"`
}

// IsPresent returns true if the credentials carry anything usable.
func (c *Credentials) IsPresent() bool {
	return c != nil && (c.Password != "" || len(c.SessionBlob) > 0)
}

// PromptReason tells the credential-prompt collaborator why input is needed.
type PromptReason string

const (
	// PromptReasonRequired means no credentials are stored yet.
	PromptReasonRequired PromptReason = "required"
	// PromptReasonRejected means the stored credentials were refused.
	PromptReasonRejected PromptReason = "rejected"
)
