package cli

import (
	"bytes"
	"context"

	"github.com/custodia-labs/pimsync/internal/core/domain"
	"github.com/custodia-labs/pimsync/internal/core/ports/driving"
)

// Shared command-test fixtures. Each test injects its own services via
// setupCommandTest and restores the previous wiring on cleanup.

// mockSession implements driving.SessionService for command tests.
type mockSession struct {
	authenticated bool
	status        driving.AuthStatus
	authErr       error
	logoutErr     error

	authCalls   []domain.Credentials
	logoutCalls int
}

func (m *mockSession) Authenticate(_ context.Context, creds domain.Credentials) (driving.AuthStatus, error) {
	m.authCalls = append(m.authCalls, creds)
	if m.status == driving.AuthAccepted {
		m.authenticated = true
	}
	return m.status, m.authErr
}

func (m *mockSession) IsAuthenticated() bool {
	return m.authenticated
}

func (m *mockSession) Logout(_ context.Context) error {
	m.logoutCalls++
	m.authenticated = false
	return m.logoutErr
}

// mockDirectory implements driving.DirectoryService.
type mockDirectory struct {
	syncErr   error
	createErr error
	deleteErr error

	syncCalls int
	deleted   []string
}

func (m *mockDirectory) Sync(_ context.Context) error {
	m.syncCalls++
	return m.syncErr
}

func (m *mockDirectory) Create(_ context.Context, typ domain.CollectionType, name string) (*domain.RegistryEntry, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &domain.RegistryEntry{CollectionID: "col-new", Type: typ, Name: name}, nil
}

func (m *mockDirectory) Delete(_ context.Context, collectionID string) error {
	m.deleted = append(m.deleted, collectionID)
	return m.deleteErr
}

// mockEngine implements driving.SyncEngine.
type mockEngine struct {
	id         string
	changes    *domain.ChangeSet
	refreshErr error

	refreshes int
}

func (m *mockEngine) Refresh(_ context.Context) (*domain.ChangeSet, error) {
	m.refreshes++
	if m.refreshErr != nil {
		return nil, m.refreshErr
	}
	return m.changes, nil
}

func (m *mockEngine) CreateItems(_ context.Context, _ []string) ([]domain.Item, error) {
	return nil, nil
}

func (m *mockEngine) ModifyItems(_ context.Context, _ []string) ([]domain.Item, error) {
	return nil, nil
}

func (m *mockEngine) DeleteItems(_ context.Context, _ []string) error {
	return nil
}

func (m *mockEngine) CollectionID() string {
	return m.id
}

func testCLIAccount() domain.Account {
	return domain.Account{
		Username:  "alice",
		ServerURL: "https://pim.example.com",
		Protocol:  domain.ProtocolEtebase,
	}
}

// setupCommandTest injects the given services and returns a cleanup
// restoring the previous wiring.
func setupCommandTest(s Services) func() {
	old := Services{
		Account:   currentAccount,
		Session:   sessionService,
		Directory: directoryService,
		Registry:  collectionRegistry,
		EngineFor: engineFor,
	}
	SetServices(s)
	return func() {
		SetServices(old)
	}
}

// executeCommand runs the root command with the given arguments and
// returns the captured output.
func executeCommand(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}
