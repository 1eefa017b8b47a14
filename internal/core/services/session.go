package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/custodia-labs/pimsync/internal/core/domain"
	"github.com/custodia-labs/pimsync/internal/core/ports/driven"
	"github.com/custodia-labs/pimsync/internal/core/ports/driving"
	"github.com/custodia-labs/pimsync/internal/logger"
)

// Ensure Session implements the interface.
var _ driving.SessionService = (*Session)(nil)

// SessionState is the session's position in its lifecycle.
type SessionState int

const (
	// StateUnauthenticated is the initial state.
	StateUnauthenticated SessionState = iota
	// StateAuthenticating means a login is in flight.
	StateAuthenticating
	// StateAuthenticated means the transport handle is ready for use.
	StateAuthenticated
	// StateExpired means the server refused the session token and a
	// refresh is pending.
	StateExpired
	// StateRejected is terminal until new credentials arrive.
	StateRejected
)

// String returns a readable name for the state.
func (s SessionState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateExpired:
		return "expired"
	case StateRejected:
		return "rejected"
	}
	return "unknown"
}

// Session owns the authentication state for one account. Auth tokens are
// account-scoped, so one session is shared (via SessionPool) across every
// collection under the account; a reauthentication performed by one
// collection's operation is immediately visible to the others.
type Session struct {
	account  domain.Account
	auth     driven.Authenticator
	secrets  driven.SecretStore
	prompter driven.CredentialPrompter

	mu    sync.Mutex
	state SessionState
	token string
	creds domain.Credentials
	refs  int
}

// NewSession creates a session for the account. The endpoint is validated
// here, before any network I/O. The prompter may be nil when no UI
// collaborator is attached.
func NewSession(
	account domain.Account,
	auth driven.Authenticator,
	secrets driven.SecretStore,
	prompter driven.CredentialPrompter,
) (*Session, error) {
	if err := account.Validate(); err != nil {
		return nil, err
	}
	if auth == nil {
		return nil, fmt.Errorf("%w: nil authenticator", domain.ErrInvalidInput)
	}
	return &Session{
		account:  account,
		auth:     auth,
		secrets:  secrets,
		prompter: prompter,
		state:    StateUnauthenticated,
		refs:     1,
	}, nil
}

// Account returns the account this session serves.
func (s *Session) Account() domain.Account {
	return s.account
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Token returns the current session token, or an empty string.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// IsAuthenticated reports whether the session is ready for use.
func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateAuthenticated
}

// Authenticate validates or establishes the session. With empty
// credentials the secret store is consulted for the account's stored blob.
func (s *Session) Authenticate(ctx context.Context, creds domain.Credentials) (driving.AuthStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticateLocked(ctx, creds)
}

// authenticateLocked runs the login with s.mu held.
func (s *Session) authenticateLocked(ctx context.Context, creds domain.Credentials) (driving.AuthStatus, error) {
	if err := ctx.Err(); err != nil {
		return driving.AuthError, err
	}

	if !creds.IsPresent() {
		stored, err := s.lookupStoredCredentials(ctx)
		if err != nil {
			return driving.AuthError, err
		}
		if stored == nil {
			return driving.AuthRejected, domain.ErrNotAuthenticated
		}
		creds = *stored
	}

	s.state = StateAuthenticating
	logger.Debug("Authenticating %s", s.account.Key())

	token, blob, err := s.auth.Login(ctx, s.account, creds)
	if err != nil {
		if errors.Is(err, domain.ErrCredentialsRejected) {
			s.state = StateRejected
			return driving.AuthRejected, err
		}
		s.state = StateUnauthenticated
		return driving.AuthError, fmt.Errorf("login: %w", err)
	}

	s.state = StateAuthenticated
	s.token = token
	s.creds = creds
	if len(blob) > 0 {
		s.creds.SessionBlob = blob
	}
	s.persistCredentials(ctx)

	logger.Info("Authenticated %s", s.account.Key())
	return driving.AuthAccepted, nil
}

// Logout invalidates the session and forgets the stored credentials.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" {
		if err := s.auth.Logout(ctx, s.token); err != nil {
			logger.Warn("Remote logout failed: %v", err)
		}
	}
	s.state = StateUnauthenticated
	s.token = ""
	s.creds = domain.Credentials{}

	if s.secrets != nil {
		if err := s.secrets.Delete(ctx, s.account.Key()); err != nil {
			return fmt.Errorf("delete stored credentials: %w", err)
		}
	}
	return nil
}

// ExecuteWithRetry runs a network operation under the retry-once policy:
// an unauthorized failure triggers exactly one session refresh using the
// stored credentials and one retry of the operation. A second unauthorized
// failure, or a refresh the server rejects, surfaces as
// domain.ErrCredentialsRejected after signalling the credential prompter.
// Every RemoteLog and DirectoryClient call goes through this wrapper; it
// is the single place auth expiry is handled.
func (s *Session) ExecuteWithRetry(ctx context.Context, op func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.IsAuthenticated() {
		return domain.ErrNotAuthenticated
	}

	err := op(ctx)
	if !errors.Is(err, domain.ErrUnauthorized) {
		return err
	}

	logger.Debug("Session token refused for %s, refreshing once", s.account.Key())
	if err := s.refreshSession(ctx); err != nil {
		return err
	}

	err = op(ctx)
	if errors.Is(err, domain.ErrUnauthorized) {
		return s.reject(ctx, err)
	}
	return err
}

// refreshSession re-derives the session token from the stored credentials.
// Called at most once per ExecuteWithRetry.
func (s *Session) refreshSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateExpired

	creds := s.creds
	if !creds.IsPresent() {
		stored, err := s.lookupStoredCredentials(ctx)
		if err != nil {
			return err
		}
		if stored == nil {
			s.state = StateRejected
			s.signalPrompt(ctx, domain.PromptReasonRequired)
			return domain.ErrCredentialsRejected
		}
		creds = *stored
	}

	status, err := s.authenticateLocked(ctx, creds)
	switch status {
	case driving.AuthAccepted:
		return nil
	case driving.AuthRejected:
		s.signalPrompt(ctx, domain.PromptReasonRejected)
		return fmt.Errorf("%w: %v", domain.ErrCredentialsRejected, err)
	default:
		return err
	}
}

// reject moves the session to its terminal state and signals the prompter.
func (s *Session) reject(ctx context.Context, cause error) error {
	s.mu.Lock()
	s.state = StateRejected
	s.token = ""
	s.mu.Unlock()

	s.signalPrompt(ctx, domain.PromptReasonRejected)
	return fmt.Errorf("%w: %v", domain.ErrCredentialsRejected, cause)
}

// signalPrompt notifies the UI collaborator that credentials are needed.
func (s *Session) signalPrompt(ctx context.Context, reason domain.PromptReason) {
	if s.prompter == nil {
		return
	}
	correlationID := uuid.NewString()
	logger.Info("Credentials %s for %s (correlation %s)", reason, s.account.Key(), correlationID)
	if _, err := s.prompter.RequestCredentials(ctx, s.account.Key(), reason, correlationID); err != nil {
		logger.Warn("Credential prompt failed: %v", err)
	}
}

// lookupStoredCredentials loads the account's credential blob, or nil when
// none is stored.
func (s *Session) lookupStoredCredentials(ctx context.Context) (*domain.Credentials, error) {
	if s.secrets == nil {
		return nil, nil
	}
	blob, err := s.secrets.Lookup(ctx, s.account.Key())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup credentials: %w", err)
	}
	var creds domain.Credentials
	if err := json.Unmarshal(blob, &creds); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	return &creds, nil
}

// persistCredentials saves the current credentials. Best effort; a secret
// store failure never fails a login that the server accepted.
func (s *Session) persistCredentials(ctx context.Context) {
	if s.secrets == nil {
		return
	}
	blob, err := json.Marshal(s.creds)
	if err != nil {
		logger.Warn("Encode credentials: %v", err)
		return
	}
	label := "pimsync account " + s.account.Key()
	if err := s.secrets.Store(ctx, s.account.Key(), label, blob, true); err != nil {
		logger.Warn("Store credentials: %v", err)
	}
}

// SessionPool deduplicates sessions per user@server with reference
// counting, so every collection under an account shares one authenticated
// session. Constructed once at wiring time and injected; there is no
// package-level singleton.
type SessionPool struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionPool creates an empty pool.
func NewSessionPool() *SessionPool {
	return &SessionPool{
		sessions: make(map[string]*Session),
	}
}

// Acquire returns the live session for the account, creating one on first
// use. Each Acquire must be paired with a Release.
func (p *SessionPool) Acquire(
	account domain.Account,
	auth driven.Authenticator,
	secrets driven.SecretStore,
	prompter driven.CredentialPrompter,
) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.sessions[account.Key()]; ok {
		s.mu.Lock()
		s.refs++
		s.mu.Unlock()
		return s, nil
	}

	s, err := NewSession(account, auth, secrets, prompter)
	if err != nil {
		return nil, err
	}
	p.sessions[account.Key()] = s
	return s, nil
}

// Release drops one reference; the last release removes the session from
// the pool.
func (p *SessionPool) Release(s *Session) {
	if s == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	s.mu.Lock()
	s.refs--
	last := s.refs <= 0
	s.mu.Unlock()

	if last {
		delete(p.sessions, s.account.Key())
	}
}

// Len returns the number of live sessions. Useful for tests.
func (p *SessionPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}
