package journal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/pimsync/internal/core/domain"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL)
	require.NoError(t, err)
	return client
}

func testAccount() domain.Account {
	return domain.Account{
		Username:  "alice",
		ServerURL: "https://journal.example.com",
		Protocol:  domain.ProtocolJournal,
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

// entryWire encodes a log entry the way the server stores it.
func entryWire(t *testing.T, uid, action, itemUID, payload string) wireEntry {
	t.Helper()
	content, err := json.Marshal(entryContent{Action: action, ItemUID: itemUID, Payload: payload})
	require.NoError(t, err)
	return wireEntry{UID: uid, Content: string(content)}
}

// journalWire encodes a journal with embedded metadata.
func journalWire(t *testing.T, uid, typ, name string, deleted bool) wireJournal {
	t.Helper()
	content, err := json.Marshal(journalContent{Type: typ, Name: name})
	require.NoError(t, err)
	return wireJournal{UID: uid, Version: journalVersion, Content: string(content), Deleted: deleted}
}

func TestNewClient_RejectsMalformedEndpoints(t *testing.T) {
	for _, serverURL := range []string{"", "not a url", "ftp://example.com"} {
		_, err := NewClient(serverURL)
		assert.ErrorIs(t, err, domain.ErrInvalidEndpoint, serverURL)
	}
}

func TestClient_Login_PasswordExchange(t *testing.T) {
	var got tokenRequest
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api-token-auth/", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(t, w, tokenResponse{Token: "tok-1"})
	})

	token, blob, err := client.Login(context.Background(), testAccount(),
		domain.Credentials{Password: "secret"})

	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	// The session blob is the token itself, so the next Login can restore
	// it without the password.
	assert.Equal(t, []byte("tok-1"), blob)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "secret", got.Password)
}

func TestClient_Login_RejectedPassword(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusBadRequest} {
		client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"detail": "unable to log in"}`))
		})

		_, _, err := client.Login(context.Background(), testAccount(),
			domain.Credentials{Password: "wrong"})
		assert.ErrorIs(t, err, domain.ErrCredentialsRejected, "status %d", status)
	}
}

func TestClient_Login_RestoresValidToken(t *testing.T) {
	exchanges := 0
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/journal/":
			assert.Equal(t, "Token stored-token", r.Header.Get("Authorization"))
			writeJSON(t, w, []wireJournal{})
		case "/api-token-auth/":
			exchanges++
			writeJSON(t, w, tokenResponse{Token: "fresh"})
		}
	})

	token, _, err := client.Login(context.Background(), testAccount(),
		domain.Credentials{SessionBlob: []byte("stored-token")})

	require.NoError(t, err)
	assert.Equal(t, "stored-token", token)
	assert.Zero(t, exchanges, "a valid restored token needs no exchange")
}

func TestClient_Login_StaleTokenFallsBackToPassword(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/journal/":
			w.WriteHeader(http.StatusUnauthorized)
		case "/api-token-auth/":
			writeJSON(t, w, tokenResponse{Token: "fresh"})
		}
	})

	token, blob, err := client.Login(context.Background(), testAccount(),
		domain.Credentials{SessionBlob: []byte("stale-token"), Password: "secret"})

	require.NoError(t, err)
	assert.Equal(t, "fresh", token)
	assert.Equal(t, []byte("fresh"), blob)
}

func TestClient_Login_StaleTokenWithoutPasswordRejects(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, _, err := client.Login(context.Background(), testAccount(),
		domain.Credentials{SessionBlob: []byte("stale-token")})

	assert.ErrorIs(t, err, domain.ErrCredentialsRejected)
}

func TestClient_Login_NoCredentials(t *testing.T) {
	client := testClient(t, func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatal("no request may be sent without credentials")
	})

	_, _, err := client.Login(context.Background(), testAccount(), domain.Credentials{})
	assert.ErrorIs(t, err, domain.ErrCredentialsRejected)
}

func TestClient_List(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/v1/journal/col-1/entries/", r.URL.Path)
		assert.Equal(t, "pos-0", r.URL.Query().Get("last"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		writeJSON(t, w, []wireEntry{
			entryWire(t, "pos-1", "ADD", "item-a", "payload a"),
			entryWire(t, "pos-2", "CHANGE", "item-b", "payload b"),
		})
	})

	page, err := client.List(context.Background(), "col-1", "pos-0", 2)

	require.NoError(t, err)
	// A full page means more may follow.
	assert.False(t, page.Done)
	assert.Equal(t, "pos-2", page.Cursor)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, domain.ActionAdd, page.Entries[0].Action)
	assert.Equal(t, "item-a", page.Entries[0].UID)
	assert.Equal(t, "payload a", page.Entries[0].Payload)

	// Entries are chained: the first hangs off the request cursor, each
	// following one off its predecessor.
	assert.Equal(t, "pos-0", page.Entries[0].Parent)
	assert.Equal(t, "pos-1", page.Entries[1].Parent)
}

func TestClient_List_ShortPageIsDone(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, []wireEntry{entryWire(t, "pos-1", "ADD", "item-a", "x")})
	})

	page, err := client.List(context.Background(), "col-1", "", 50)

	require.NoError(t, err)
	assert.True(t, page.Done)
	assert.Equal(t, "pos-1", page.Cursor)
}

func TestClient_List_EmptyPageKeepsCursor(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, []wireEntry{})
	})

	page, err := client.List(context.Background(), "col-1", "pos-5", 50)

	require.NoError(t, err)
	assert.True(t, page.Done)
	assert.Equal(t, "pos-5", page.Cursor)
	assert.Empty(t, page.Entries)
}

func TestClient_Append(t *testing.T) {
	var got []wireEntry
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/api/v1/journal/col-1/entries/", r.URL.Path)
		assert.Equal(t, "pos-0", r.URL.Query().Get("last"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	})

	cursor, err := client.Append(context.Background(), "col-1", []domain.LogEntry{
		{Action: domain.ActionAdd, UID: "item-a", Payload: "payload a", Position: "pos-1"},
		{Action: domain.ActionDelete, UID: "item-b", Position: "pos-2"},
	}, "pos-0")

	require.NoError(t, err)
	// v1 servers return no body; the new head is the last entry uploaded.
	assert.Equal(t, "pos-2", cursor)

	require.Len(t, got, 2)
	assert.Equal(t, "pos-1", got[0].UID)
	var content entryContent
	require.NoError(t, json.Unmarshal([]byte(got[0].Content), &content))
	assert.Equal(t, "ADD", content.Action)
	assert.Equal(t, "item-a", content.ItemUID)
	assert.Equal(t, "payload a", content.Payload)
}

func TestClient_Append_ConflictOnStaleHead(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	_, err := client.Append(context.Background(), "col-1",
		[]domain.LogEntry{{Action: domain.ActionAdd, UID: "item-a", Position: "pos-1"}}, "stale")

	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestClient_Append_EmptyChunkSkipsNetwork(t *testing.T) {
	client := testClient(t, func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatal("empty chunk must not hit the server")
	})

	cursor, err := client.Append(context.Background(), "col-1", nil, "pos-0")
	require.NoError(t, err)
	assert.Equal(t, "pos-0", cursor)
}

func TestClient_ListCollections(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/journal/", r.URL.Path)
		writeJSON(t, w, []wireJournal{
			journalWire(t, "j-1", "calendar", "Work", false),
			journalWire(t, "j-2", "notes", "Scratch", true),
		})
	})

	page, err := client.ListCollections(context.Background(), "", 30)

	require.NoError(t, err)
	// The v1 listing is never paginated.
	assert.True(t, page.Done)
	assert.NotEmpty(t, page.Cursor)
	require.Len(t, page.Collections, 2)
	assert.Equal(t, domain.TypeCalendar, page.Collections[0].Type)
	assert.Equal(t, "Work", page.Collections[0].Metadata.Name)
	assert.True(t, page.Collections[1].Deleted)
}

func TestClient_ListCollections_CursorIsListingDigest(t *testing.T) {
	deleted := false
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, []wireJournal{journalWire(t, "j-1", "calendar", "Work", deleted)})
	})

	first, err := client.ListCollections(context.Background(), "", 30)
	require.NoError(t, err)
	second, err := client.ListCollections(context.Background(), "", 30)
	require.NoError(t, err)
	// An unchanged listing digests to the same cursor.
	assert.Equal(t, first.Cursor, second.Cursor)

	deleted = true
	third, err := client.ListCollections(context.Background(), "", 30)
	require.NoError(t, err)
	assert.NotEqual(t, first.Cursor, third.Cursor)
}

func TestClient_ListCollections_DetectsRemovedMembership(t *testing.T) {
	journals := []wireJournal{
		journalWire(t, "j-1", "calendar", "Work", false),
		journalWire(t, "j-2", "notes", "Shared", false),
	}
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, journals)
	})

	first, err := client.ListCollections(context.Background(), "", 30)
	require.NoError(t, err)
	assert.Empty(t, first.RemovedMemberships)

	// j-2 vanishes from the listing without a tombstone: access revoked.
	journals = journals[:1]
	second, err := client.ListCollections(context.Background(), "", 30)
	require.NoError(t, err)
	assert.Equal(t, []string{"j-2"}, second.RemovedMemberships)
}

func TestClient_CreateCollection(t *testing.T) {
	var got wireJournal
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/journal/", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	})

	col, cursor, err := client.CreateCollection(context.Background(), domain.TypeTaskList,
		domain.CollectionMetadata{Name: "Chores", Colour: "#8BC34A"})

	require.NoError(t, err)
	assert.Empty(t, cursor)
	assert.Equal(t, domain.TypeTaskList, col.Type)
	assert.Equal(t, "Chores", col.Metadata.Name)

	// The uid is minted client-side as 64 hex characters.
	assert.Len(t, got.UID, 64)
	assert.Equal(t, col.ID, got.UID)
	assert.Equal(t, journalVersion, got.Version)

	var content journalContent
	require.NoError(t, json.Unmarshal([]byte(got.Content), &content))
	assert.Equal(t, "task-list", content.Type)
	assert.Equal(t, "Chores", content.Name)
	assert.Equal(t, "#8BC34A", content.Color)
}

func TestClient_DeleteCollection(t *testing.T) {
	var gotMethod, gotPath string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.DeleteCollection(context.Background(), "j-1"))
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/api/v1/journal/j-1/", gotPath)
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, domain.ErrUnauthorized},
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusConflict, domain.ErrConflict},
		{http.StatusTooManyRequests, domain.ErrRateLimited},
	}

	for _, tt := range tests {
		client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
		})

		_, err := client.List(context.Background(), "col-1", "", 10)
		assert.ErrorIs(t, err, tt.want, "status %d", tt.status)
	}
}

func TestClient_RateLimitRetriesAfterWait(t *testing.T) {
	var calls int
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(t, w, []wireEntry{})
	})

	page, err := client.List(context.Background(), "journal-1", "", 50)

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, page.Done)
}

func TestClient_RateLimitRetriesOnlyOnce(t *testing.T) {
	var calls int
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.List(context.Background(), "journal-1", "", 50)

	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, 2, calls)
}
