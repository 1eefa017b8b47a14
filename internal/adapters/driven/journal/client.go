package journal

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/pimsync/internal/core/domain"
	"github.com/custodia-labs/pimsync/internal/core/ports/driven"
)

// Ensure Client implements the driven ports.
var (
	_ driven.Authenticator   = (*Client)(nil)
	_ driven.RemoteLog       = (*Client)(nil)
	_ driven.DirectoryClient = (*Client)(nil)
)

const (
	requestsPerSecond = 8.0
	burstSize         = 10

	// journalVersion is the on-wire journal format version this client
	// writes. Older versions are readable but never produced.
	journalVersion = 2
)

// Client talks the v1 journal protocol. One client serves one account.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter

	mu    sync.Mutex
	token string
	// seen tracks journal uids from the previous listing so a journal
	// vanishing from the list (membership revoked, not tombstoned) can
	// be reported as a removed membership.
	seen map[string]bool
}

// NewClient validates the endpoint and constructs a client. A malformed
// endpoint fails here, before any network I/O.
func NewClient(serverURL string) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidEndpoint, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidEndpoint, serverURL)
	}
	return &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), burstSize),
		seen:       make(map[string]bool),
	}, nil
}

// Login exchanges the password for an API token, or restores a previous
// token from the session blob and verifies it is still accepted.
func (c *Client) Login(ctx context.Context, account domain.Account, creds domain.Credentials) (string, []byte, error) {
	if len(creds.SessionBlob) > 0 {
		token := string(creds.SessionBlob)
		c.setToken(token)
		// A cheap authenticated request tells us whether the restored
		// token is still valid.
		err := c.do(ctx, http.MethodGet, "/api/v1/journal/", nil, nil, nil)
		if err == nil {
			return token, creds.SessionBlob, nil
		}
		if apiStatus(err) != http.StatusUnauthorized || creds.Password == "" {
			if apiStatus(err) == http.StatusUnauthorized {
				return "", nil, fmt.Errorf("%w: %v", domain.ErrCredentialsRejected, err)
			}
			return "", nil, err
		}
		// Stale token but we hold the password; fall through to a fresh
		// token exchange.
		c.setToken("")
	}
	if creds.Password == "" {
		return "", nil, fmt.Errorf("%w: no credentials presented", domain.ErrCredentialsRejected)
	}

	var resp tokenResponse
	req := tokenRequest{Username: account.Username, Password: creds.Password}
	err := c.do(ctx, http.MethodPost, "/api-token-auth/", nil, req, &resp)
	if err != nil {
		if apiStatus(err) == http.StatusUnauthorized || apiStatus(err) == http.StatusBadRequest {
			return "", nil, fmt.Errorf("%w: %v", domain.ErrCredentialsRejected, err)
		}
		return "", nil, err
	}

	c.setToken(resp.Token)
	return resp.Token, []byte(resp.Token), nil
}

// Logout revokes the API token server-side.
func (c *Client) Logout(ctx context.Context, token string) error {
	c.setToken(token)
	err := c.do(ctx, http.MethodPost, "/api/logout/", nil, nil, nil)
	c.setToken("")
	return err
}

// List returns up to limit journal entries strictly after cursor. The v1
// API has no explicit done flag; a short page marks the end of the walk.
func (c *Client) List(ctx context.Context, collectionID, cursor string, limit int) (*domain.LogPage, error) {
	query := url.Values{}
	if cursor != "" {
		query.Set("last", cursor)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var entries []wireEntry
	path := fmt.Sprintf("/api/v1/journal/%s/entries/", url.PathEscape(collectionID))
	if err := c.do(ctx, http.MethodGet, path, query, nil, &entries); err != nil {
		return nil, err
	}

	page := &domain.LogPage{
		Entries: make([]domain.LogEntry, 0, len(entries)),
		Cursor:  cursor,
		Done:    limit <= 0 || len(entries) < limit,
	}
	parent := cursor
	for _, entry := range entries {
		var content entryContent
		if err := json.Unmarshal([]byte(entry.Content), &content); err != nil {
			return nil, fmt.Errorf("decode entry %s: %w", entry.UID, err)
		}
		page.Entries = append(page.Entries, domain.LogEntry{
			Action:       domain.EntryAction(content.Action),
			UID:          content.ItemUID,
			Payload:      content.Payload,
			Position:     entry.UID,
			Parent:       parent,
			ResumeHandle: []byte(entry.UID),
		})
		parent = entry.UID
	}
	if len(entries) > 0 {
		page.Cursor = entries[len(entries)-1].UID
	}
	return page, nil
}

// Append uploads one chunk of chained entries against the expected head.
// A stale head comes back as HTTP 409 and maps to domain.ErrConflict. The
// new cursor is the uid of the last entry in the chunk; v1 servers return
// no body on success.
func (c *Client) Append(ctx context.Context, collectionID string, entries []domain.LogEntry, expectedCursor string) (string, error) {
	if len(entries) == 0 {
		return expectedCursor, nil
	}

	wire := make([]wireEntry, 0, len(entries))
	for _, entry := range entries {
		content, err := json.Marshal(entryContent{
			Action:  string(entry.Action),
			ItemUID: entry.UID,
			Payload: entry.Payload,
		})
		if err != nil {
			return "", fmt.Errorf("encode entry: %w", err)
		}
		wire = append(wire, wireEntry{UID: entry.Position, Content: string(content)})
	}

	query := url.Values{}
	if expectedCursor != "" {
		query.Set("last", expectedCursor)
	}
	path := fmt.Sprintf("/api/v1/journal/%s/entries/", url.PathEscape(collectionID))
	if err := c.do(ctx, http.MethodPut, path, query, wire, nil); err != nil {
		return "", err
	}
	return entries[len(entries)-1].Position, nil
}

// ListCollections returns the full journal list as a single page. The v1
// API enumerates everything on every call, so the page is always Done and
// the cursor is a digest of the listing rather than a server token.
func (c *Client) ListCollections(ctx context.Context, _ string, _ int) (*domain.CollectionPage, error) {
	var journals []wireJournal
	if err := c.do(ctx, http.MethodGet, "/api/v1/journal/", nil, nil, &journals); err != nil {
		return nil, err
	}

	page := &domain.CollectionPage{
		Collections: make([]domain.Collection, 0, len(journals)),
		Done:        true,
	}
	current := make(map[string]bool, len(journals))
	for _, j := range journals {
		current[j.UID] = true
		col, err := collectionFromWire(j)
		if err != nil {
			return nil, err
		}
		page.Collections = append(page.Collections, col)
	}

	c.mu.Lock()
	for uid := range c.seen {
		if !current[uid] {
			page.RemovedMemberships = append(page.RemovedMemberships, uid)
		}
	}
	c.seen = current
	c.mu.Unlock()

	page.Cursor = listingDigest(journals)
	return page, nil
}

// CreateCollection mints a journal uid client-side and creates the
// journal in a single round trip.
func (c *Client) CreateCollection(ctx context.Context, typ domain.CollectionType, meta domain.CollectionMetadata) (*domain.Collection, string, error) {
	content, err := json.Marshal(journalContent{
		Type:        string(typ),
		Name:        meta.Name,
		Description: meta.Description,
		Color:       meta.Colour,
	})
	if err != nil {
		return nil, "", fmt.Errorf("encode journal content: %w", err)
	}
	wire := wireJournal{
		UID:     newJournalUID(),
		Version: journalVersion,
		Content: string(content),
	}

	if err := c.do(ctx, http.MethodPost, "/api/v1/journal/", nil, wire, nil); err != nil {
		return nil, "", err
	}

	c.mu.Lock()
	c.seen[wire.UID] = true
	c.mu.Unlock()

	return &domain.Collection{
		ID:       wire.UID,
		Type:     typ,
		Metadata: meta,
	}, "", nil
}

// DeleteCollection tombstones a journal.
func (c *Client) DeleteCollection(ctx context.Context, collectionID string) error {
	path := fmt.Sprintf("/api/v1/journal/%s/", url.PathEscape(collectionID))
	if err := c.do(ctx, http.MethodDelete, path, nil, nil, nil); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.seen, collectionID)
	c.mu.Unlock()
	return nil
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// do issues one request with the API token attached, honouring the
// client-side rate limit, and decodes the response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.baseURL
	u.Path = joinPath(u.Path, path)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = encoded
	}

	// A 429 carrying a usable Retry-After is waited out and retried once.
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		c.mu.Lock()
		if c.token != "" {
			req.Header.Set("Authorization", "Token "+c.token)
		}
		c.mu.Unlock()

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request %s: %w", path, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt == 0 {
			if wait, ok := retryAfter(resp.Header); ok {
				resp.Body.Close()
				if err := sleepFor(ctx, wait); err != nil {
					return err
				}
				continue
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			detail := readDetail(resp.Body)
			resp.Body.Close()
			return mapStatus(resp.StatusCode, detail, u.String())
		}
		if out == nil {
			resp.Body.Close()
			return nil
		}
		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
}

// maxRetryAfter bounds how long a single rate-limit retry may wait.
const maxRetryAfter = 30 * time.Second

// retryAfter parses a delay-seconds Retry-After header. HTTP-date values
// and delays beyond maxRetryAfter are ignored; the caller then surfaces
// the 429 instead of waiting.
func retryAfter(h http.Header) (time.Duration, bool) {
	raw := h.Get("Retry-After")
	if raw == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0, false
	}
	wait := time.Duration(secs) * time.Second
	if wait > maxRetryAfter {
		return 0, false
	}
	return wait, true
}

// sleepFor waits the given duration or until the context is cancelled.
func sleepFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// collectionFromWire decodes a journal and its embedded metadata.
func collectionFromWire(j wireJournal) (domain.Collection, error) {
	var content journalContent
	if j.Content != "" {
		if err := json.Unmarshal([]byte(j.Content), &content); err != nil {
			return domain.Collection{}, fmt.Errorf("decode journal %s content: %w", j.UID, err)
		}
	}
	return domain.Collection{
		ID:   j.UID,
		Type: domain.CollectionType(content.Type),
		Metadata: domain.CollectionMetadata{
			Name:        content.Name,
			Description: content.Description,
			Colour:      content.Color,
		},
		Deleted: j.Deleted,
	}, nil
}

// listingDigest builds an opaque cursor covering the current journal set,
// stable across orderings.
func listingDigest(journals []wireJournal) string {
	uids := make([]string, 0, len(journals))
	for _, j := range journals {
		uids = append(uids, fmt.Sprintf("%s:%t", j.UID, j.Deleted))
	}
	sort.Strings(uids)

	h := sha256.New()
	for _, uid := range uids {
		h.Write([]byte(uid))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// newJournalUID mints the 64-character hex uid the v1 API expects.
func newJournalUID() string {
	sum := sha256.Sum256([]byte(uuid.NewString()))
	return hex.EncodeToString(sum[:])
}

// readDetail extracts the server's error detail, falling back to the raw
// body prefix.
func readDetail(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 2048))
	if err != nil {
		return ""
	}
	var parsed errorResponse
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return string(raw)
}

// apiStatus returns the HTTP status carried by err, or zero.
func apiStatus(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// joinPath concatenates the base path and the API path without doubling
// separators.
func joinPath(base, path string) string {
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + path
}
