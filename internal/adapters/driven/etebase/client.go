package etebase

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/argon2"
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

// Conservative client-side limit, well below typical server quotas.
const (
	requestsPerSecond = 8.0
	burstSize         = 10
)

// Client talks the v2 protocol. One client serves one account; the
// session token set by a successful Login is shared by every collection
// operation until the next Login replaces it.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter

	mu    sync.RWMutex
	token string
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
	}, nil
}

// Login derives the login key from the password (or restores the previous
// session blob) and exchanges it for a session token.
func (c *Client) Login(ctx context.Context, account domain.Account, creds domain.Credentials) (string, []byte, error) {
	var req loginRequest
	switch {
	case len(creds.SessionBlob) > 0:
		req = loginRequest{
			Username: account.Username,
			LoginKey: base64.StdEncoding.EncodeToString(creds.SessionBlob),
		}
	case creds.Password != "":
		req = loginRequest{
			Username: account.Username,
			LoginKey: deriveLoginKey(account.Username, creds.Password),
		}
	default:
		return "", nil, fmt.Errorf("%w: no credentials presented", domain.ErrCredentialsRejected)
	}

	var resp loginResponse
	err := c.do(ctx, http.MethodPost, "/api/v2/authentication/login/", nil, req, &resp)
	if err != nil {
		// A refused login key is a credential problem, not an expired
		// session token.
		if apiStatus(err) == http.StatusUnauthorized {
			return "", nil, fmt.Errorf("%w: %v", domain.ErrCredentialsRejected, err)
		}
		return "", nil, err
	}

	c.mu.Lock()
	c.token = resp.Token
	c.mu.Unlock()
	return resp.Token, resp.SessionBlob, nil
}

// Logout invalidates the session token server-side.
func (c *Client) Logout(ctx context.Context, token string) error {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	err := c.do(ctx, http.MethodPost, "/api/v2/authentication/logout/", nil, nil, nil)
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	return err
}

// List returns one page of the collection's item log after cursor.
func (c *Client) List(ctx context.Context, collectionID, cursor string, limit int) (*domain.LogPage, error) {
	query := url.Values{}
	if cursor != "" {
		query.Set("stoken", cursor)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp itemListResponse
	path := fmt.Sprintf("/api/v2/collection/%s/item/", url.PathEscape(collectionID))
	if err := c.do(ctx, http.MethodGet, path, query, nil, &resp); err != nil {
		return nil, err
	}

	page := &domain.LogPage{
		Entries: make([]domain.LogEntry, 0, len(resp.Data)),
		Cursor:  resp.Stoken,
		Done:    resp.Done,
	}
	for _, item := range resp.Data {
		page.Entries = append(page.Entries, domain.LogEntry{
			Action:       domain.EntryAction(item.Action),
			UID:          item.ItemUID,
			Payload:      item.Content,
			Position:     item.UID,
			Parent:       item.Parent,
			ResumeHandle: resumeHandle(item.ItemUID, item.UID, item.Etag),
		})
	}
	return page, nil
}

// Append uploads one chunk of chained entries against the expected head.
// A stale stoken comes back as HTTP 409 and maps to domain.ErrConflict.
func (c *Client) Append(ctx context.Context, collectionID string, entries []domain.LogEntry, expectedCursor string) (string, error) {
	req := itemBatchRequest{
		Items:  make([]wireItem, 0, len(entries)),
		Stoken: expectedCursor,
	}
	for _, entry := range entries {
		req.Items = append(req.Items, wireItem{
			UID:     entry.Position,
			Action:  string(entry.Action),
			ItemUID: entry.UID,
			Content: entry.Payload,
			Parent:  entry.Parent,
		})
	}

	var resp itemBatchResponse
	path := fmt.Sprintf("/api/v2/collection/%s/item/batch/", url.PathEscape(collectionID))
	if err := c.do(ctx, http.MethodPut, path, nil, req, &resp); err != nil {
		return "", err
	}
	return resp.Stoken, nil
}

// ListCollections returns one page of the account's collections.
func (c *Client) ListCollections(ctx context.Context, cursor string, limit int) (*domain.CollectionPage, error) {
	query := url.Values{}
	if cursor != "" {
		query.Set("stoken", cursor)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp collectionListResponse
	if err := c.do(ctx, http.MethodGet, "/api/v2/collection/", query, nil, &resp); err != nil {
		return nil, err
	}

	page := &domain.CollectionPage{
		Collections:        make([]domain.Collection, 0, len(resp.Data)),
		RemovedMemberships: make([]string, 0, len(resp.RemovedMemberships)),
		Cursor:             resp.Stoken,
		Done:               resp.Done,
	}
	for _, col := range resp.Data {
		page.Collections = append(page.Collections, collectionFromWire(col))
	}
	for _, removed := range resp.RemovedMemberships {
		page.RemovedMemberships = append(page.RemovedMemberships, removed.UID)
	}
	return page, nil
}

// CreateCollection creates a collection in a single round trip.
func (c *Client) CreateCollection(ctx context.Context, typ domain.CollectionType, meta domain.CollectionMetadata) (*domain.Collection, string, error) {
	req := collectionCreateRequest{
		CollectionType: string(typ),
		Meta: wireCollectionMeta{
			Name:        meta.Name,
			Description: meta.Description,
			Color:       meta.Colour,
		},
	}

	var resp wireCollection
	if err := c.do(ctx, http.MethodPost, "/api/v2/collection/", nil, req, &resp); err != nil {
		return nil, "", err
	}
	col := collectionFromWire(resp)
	return &col, resp.Stoken, nil
}

// DeleteCollection tombstones a collection.
func (c *Client) DeleteCollection(ctx context.Context, collectionID string) error {
	path := fmt.Sprintf("/api/v2/collection/%s/", url.PathEscape(collectionID))
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// do issues one request with the session token attached, honouring the
// client-side rate limit, and decodes the response into out when non-nil.
// A 429 carrying a usable Retry-After is waited out and retried once.
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
		c.mu.RLock()
		if c.token != "" {
			req.Header.Set("Authorization", "Token "+c.token)
		}
		c.mu.RUnlock()

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

// apiStatus returns the HTTP status carried by err, or zero.
func apiStatus(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// deriveLoginKey stretches the password into the login key. The salt is
// bound to the username so identical passwords on different accounts
// derive different keys.
func deriveLoginKey(username, password string) string {
	salt := sha256.Sum256([]byte("pimsync-login\x00" + username))
	key := argon2.IDKey([]byte(password), salt[:16], 1, 64*1024, 4, 32)
	return base64.StdEncoding.EncodeToString(key)
}

// resumeHandle packs item identity and the log position into the opaque
// handle the engine stores alongside the item.
func resumeHandle(itemUID, position, etag string) []byte {
	handle, err := json.Marshal(map[string]string{
		"uid":      itemUID,
		"position": position,
		"etag":     etag,
	})
	if err != nil {
		return nil
	}
	return handle
}

// joinPath concatenates the base path and the API path without doubling
// separators.
func joinPath(base, path string) string {
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + path
}
