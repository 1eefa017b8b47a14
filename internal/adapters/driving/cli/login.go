package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/pimsync/internal/core/domain"
	"github.com/custodia-labs/pimsync/internal/core/ports/driving"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate against the configured server",
	Long: `Establishes a session for the configured account. The password is
read from the terminal unless --password is given. On success the
session credentials are stored so later commands work without a prompt.`,
	RunE: runLogin,
}

var loginPassword string

func init() {
	loginCmd.Flags().StringVar(
		&loginPassword, "password", "", "Account password (prompts when omitted)")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, _ []string) error {
	if sessionService == nil {
		return errors.New("session service not configured")
	}

	ctx := context.Background()

	password := loginPassword
	if password == "" {
		read, err := promptPassword(cmd)
		if err != nil {
			return err
		}
		password = read
	}

	cmd.Printf("Logging in as %s...\n", currentAccount.Key())

	status, err := sessionService.Authenticate(ctx, domain.Credentials{Password: password})
	switch status {
	case driving.AuthAccepted:
		cmd.Println("Login successful.")
	case driving.AuthRejected:
		return fmt.Errorf("credentials rejected: %w", err)
	default:
		return fmt.Errorf("login failed: %w", err)
	}

	// First directory sync, so a fresh account has its collections (or
	// the bootstrapped defaults) before the user runs anything else. The
	// login itself already succeeded, so a directory failure is reported
	// but does not fail the command.
	if directoryService != nil {
		cmd.Println("Reconciling collection directory...")
		if err := directoryService.Sync(ctx); err != nil {
			cmd.Printf("Warning: directory sync failed: %v\n", err)
			cmd.Println("Run 'pimsync sync' to retry.")
		}
	}
	return nil
}

// promptPassword reads the password without echo when stdin is a
// terminal, falling back to a plain line read otherwise.
func promptPassword(cmd *cobra.Command) (string, error) {
	cmd.Printf("Password for %s: ", currentAccount.Key())

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		cmd.Println()
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(raw), nil
	}

	var password string
	if _, err := fmt.Fscanln(os.Stdin, &password); err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return password, nil
}
