package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	// On push this also covers resume handles that no longer resolve
	// because the item was deleted remotely.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidEndpoint indicates a malformed server endpoint or a
	// protocol mismatch, detected before any network I/O.
	ErrInvalidEndpoint = errors.New("invalid server endpoint")

	// Authentication errors.

	// ErrUnauthorized indicates the server refused the current session
	// token. Handled once by the session's retry wrapper; callers should
	// never observe it directly.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrCredentialsRejected indicates the server refused the stored
	// credentials themselves. Leaving this state requires new
	// credentials from the prompter.
	ErrCredentialsRejected = errors.New("credentials rejected")

	// ErrNotAuthenticated indicates an operation was attempted before a
	// successful Authenticate call.
	ErrNotAuthenticated = errors.New("not authenticated")

	// Sync errors.

	// ErrConflict indicates an optimistic-concurrency violation: the
	// remote log head advanced past the pusher's expected cursor.
	// Retried internally after a refresh, never surfaced by the engine.
	ErrConflict = errors.New("cursor conflict")

	// ErrSyncFailed wraps transient server-side failures. Local state is
	// untouched; the caller should retry the whole sync later.
	ErrSyncFailed = errors.New("sync failed, will retry")

	// ErrRateLimited indicates the server rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")
)
