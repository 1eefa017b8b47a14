package services

import (
	"context"
	"fmt"
	stdsync "sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/pimsync/internal/core/domain"
)

// --- Mock implementations for pusher testing ---

// mockLog implements driven.RemoteLog with scripted responses.
type mockLog struct {
	mu stdsync.Mutex

	// List script: pages served in order, then empty done pages.
	pages       []domain.LogPage
	listErr     error
	listCursors []string

	// Append script and recording.
	appends        [][]domain.LogEntry
	appendCursors  []string
	conflictOn     map[int]bool // append call index (0-based) -> conflict
	unauthorizedOn map[int]bool
	appendErr      error
}

func newMockLog() *mockLog {
	return &mockLog{
		conflictOn:     make(map[int]bool),
		unauthorizedOn: make(map[int]bool),
	}
}

func (m *mockLog) List(_ context.Context, _ string, cursor string, _ int) (*domain.LogPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.listCursors = append(m.listCursors, cursor)
	if len(m.pages) == 0 {
		return &domain.LogPage{Cursor: cursor, Done: true}, nil
	}
	page := m.pages[0]
	m.pages = m.pages[1:]
	return &page, nil
}

func (m *mockLog) Append(_ context.Context, _ string, entries []domain.LogEntry, expectedCursor string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := len(m.appendCursors)
	m.appendCursors = append(m.appendCursors, expectedCursor)

	if m.unauthorizedOn[call] {
		return "", fmt.Errorf("%w: token expired", domain.ErrUnauthorized)
	}
	if m.conflictOn[call] {
		return "", fmt.Errorf("%w: stale head", domain.ErrConflict)
	}
	if m.appendErr != nil {
		return "", m.appendErr
	}

	m.appends = append(m.appends, entries)
	return fmt.Sprintf("head-%d", len(m.appends)), nil
}

func makeItems(n int) []domain.Item {
	items := make([]domain.Item, n)
	for i := range items {
		items[i] = domain.Item{
			UID:     fmt.Sprintf("item-%d", i),
			Payload: fmt.Sprintf("payload %d", i),
		}
	}
	return items
}

func staticRefresh(cursor string) RefreshFunc {
	return func(context.Context) (string, error) { return cursor, nil }
}

func TestBatchPusher_SingleChunk(t *testing.T) {
	log := newMockLog()
	session := newAuthedSession(t, &mockAuth{})
	pusher := NewBatchPusher(log, session, 30)

	result, err := pusher.Push(context.Background(), "col-1", domain.ActionAdd,
		makeItems(3), "cursor-0", staticRefresh("unused"))

	require.NoError(t, err)
	require.Len(t, log.appends, 1)
	assert.Len(t, log.appends[0], 3)
	assert.Equal(t, "head-1", result.Cursor)
	assert.Len(t, result.Staged, 3)
}

func TestBatchPusher_EntriesAreChained(t *testing.T) {
	log := newMockLog()
	session := newAuthedSession(t, &mockAuth{})
	pusher := NewBatchPusher(log, session, 30)

	_, err := pusher.Push(context.Background(), "col-1", domain.ActionAdd,
		makeItems(3), "cursor-0", staticRefresh("unused"))
	require.NoError(t, err)

	entries := log.appends[0]
	assert.Equal(t, "cursor-0", entries[0].Parent)
	for i := 1; i < len(entries); i++ {
		assert.Equal(t, entries[i-1].Position, entries[i].Parent)
		assert.NotEmpty(t, entries[i].Position)
	}
}

func TestBatchPusher_ChunksByLimit(t *testing.T) {
	log := newMockLog()
	session := newAuthedSession(t, &mockAuth{})
	pusher := NewBatchPusher(log, session, 3)

	result, err := pusher.Push(context.Background(), "col-1", domain.ActionAdd,
		makeItems(7), "cursor-0", staticRefresh("unused"))

	require.NoError(t, err)
	require.Len(t, log.appends, 3)
	assert.Len(t, log.appends[0], 3)
	assert.Len(t, log.appends[1], 3)
	assert.Len(t, log.appends[2], 1)

	// Each chunk is appended against the cursor the previous one returned.
	assert.Equal(t, []string{"cursor-0", "head-1", "head-2"}, log.appendCursors)
	assert.Equal(t, "head-3", result.Cursor)
	assert.Len(t, result.Staged, 7)
}

func TestBatchPusher_ConflictRefreshesAndRetries(t *testing.T) {
	log := newMockLog()
	log.conflictOn[0] = true
	session := newAuthedSession(t, &mockAuth{})
	pusher := NewBatchPusher(log, session, 30)

	refreshCalls := 0
	refresh := func(context.Context) (string, error) {
		refreshCalls++
		return "cursor-refreshed", nil
	}

	result, err := pusher.Push(context.Background(), "col-1", domain.ActionAdd,
		makeItems(2), "cursor-0", refresh)

	require.NoError(t, err)
	assert.Equal(t, 1, refreshCalls)
	// First attempt with the stale cursor, retry with the refreshed one.
	assert.Equal(t, []string{"cursor-0", "cursor-refreshed"}, log.appendCursors)
	assert.Len(t, result.Staged, 2)
}

func TestBatchPusher_ConflictWithoutProgressFails(t *testing.T) {
	log := newMockLog()
	log.conflictOn[0] = true
	session := newAuthedSession(t, &mockAuth{})
	pusher := NewBatchPusher(log, session, 30)

	// The refresh reports the same head the append just conflicted on, so
	// retrying can never succeed.
	result, err := pusher.Push(context.Background(), "col-1", domain.ActionAdd,
		makeItems(1), "cursor-0", staticRefresh("cursor-0"))

	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Nil(t, result)
}

func TestBatchPusher_NonConflictErrorDiscardsEverything(t *testing.T) {
	// The second chunk stays unauthorized through the session's single
	// refresh, so the whole push fails after the first chunk landed.
	log := newMockLog()
	log.unauthorizedOn[1] = true
	log.unauthorizedOn[2] = true
	session := newAuthedSession(t, &mockAuth{})
	pusher := NewBatchPusher(log, session, 2)

	result, err := pusher.Push(context.Background(), "col-1", domain.ActionAdd,
		makeItems(4), "cursor-0", staticRefresh("unused"))

	assert.ErrorIs(t, err, domain.ErrCredentialsRejected)
	assert.Nil(t, result)
	// The first chunk was committed server-side; reconciliation is the
	// next refresh's job, not the pusher's.
	assert.Len(t, log.appends, 1)
}

func TestBatchPusher_ResumeHandles(t *testing.T) {
	log := newMockLog()
	session := newAuthedSession(t, &mockAuth{})
	pusher := NewBatchPusher(log, session, 30)

	items := makeItems(2)
	items[1].ResumeHandle = []byte("pre-existing")

	result, err := pusher.Push(context.Background(), "col-1", domain.ActionAdd,
		items, "cursor-0", staticRefresh("unused"))

	require.NoError(t, err)
	require.Len(t, result.Staged, 2)
	// Missing handles are synthesised from the chunk's last position;
	// existing ones are kept.
	assert.NotEmpty(t, result.Staged[0].ResumeHandle)
	assert.Equal(t, []byte("pre-existing"), result.Staged[1].ResumeHandle)
}

func TestBatchPusher_EmptyInput(t *testing.T) {
	log := newMockLog()
	session := newAuthedSession(t, &mockAuth{})
	pusher := NewBatchPusher(log, session, 30)

	result, err := pusher.Push(context.Background(), "col-1", domain.ActionAdd,
		nil, "cursor-0", staticRefresh("unused"))

	require.NoError(t, err)
	assert.Empty(t, result.Staged)
	assert.Equal(t, "cursor-0", result.Cursor)
	assert.Empty(t, log.appends)
}
