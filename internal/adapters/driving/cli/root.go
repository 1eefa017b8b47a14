// Package cli implements the command-line driving adapter. Commands are
// thin: they validate input, call the driving ports and print results.
// Services are injected once at startup via SetServices.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/pimsync/internal/core/domain"
	"github.com/custodia-labs/pimsync/internal/core/ports/driven"
	"github.com/custodia-labs/pimsync/internal/core/ports/driving"
	"github.com/custodia-labs/pimsync/internal/logger"
)

// version is set at build time via ldflags.
var version = "dev"

// Injected services. Nil until SetServices is called; every command
// checks before use so a partially wired binary fails cleanly.
var (
	currentAccount     domain.Account
	sessionService     driving.SessionService
	directoryService   driving.DirectoryService
	collectionRegistry driven.CollectionRegistry
	engineFor          func(entry domain.RegistryEntry) (driving.SyncEngine, error)
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "pimsync",
	Short: "Synchronise contacts, calendars, tasks and notes",
	Long: `pimsync keeps local copies of your personal information collections
(address books, calendars, task lists and notes) in sync with an
end-to-end encrypted server.

Run 'pimsync login' first, then 'pimsync sync' to synchronise.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
}

// Services bundles everything the commands need.
type Services struct {
	Account   domain.Account
	Session   driving.SessionService
	Directory driving.DirectoryService
	Registry  driven.CollectionRegistry
	EngineFor func(entry domain.RegistryEntry) (driving.SyncEngine, error)
}

// SetServices injects the wired services into the command tree.
func SetServices(s Services) {
	currentAccount = s.Account
	sessionService = s.Session
	directoryService = s.Directory
	collectionRegistry = s.Registry
	engineFor = s.EngineFor
}

// SetVersion overrides the build-time version string.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// ensureSession makes the session usable before a network command runs.
// Every CLI invocation is a fresh process, so an unauthenticated session
// is first restored from the stored credential blob; only when nothing is
// stored (or the server refuses it) is the user sent back to login.
func ensureSession(ctx context.Context) error {
	if sessionService == nil {
		return errors.New("session service not configured")
	}
	if sessionService.IsAuthenticated() {
		return nil
	}

	status, err := sessionService.Authenticate(ctx, domain.Credentials{})
	if status == driving.AuthAccepted {
		return nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotAuthenticated) {
		logger.Debug("Session restore failed: %v", err)
	}
	return errors.New("not logged in; run 'pimsync login' first")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
