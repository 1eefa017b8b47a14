package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Invalidate the session and forget stored credentials",
	RunE:  runLogout,
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}

func runLogout(cmd *cobra.Command, _ []string) error {
	if sessionService == nil {
		return errors.New("session service not configured")
	}

	ctx := context.Background()
	if err := sessionService.Logout(ctx); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}

	cmd.Printf("Logged out %s.\n", currentAccount.Key())
	return nil
}
