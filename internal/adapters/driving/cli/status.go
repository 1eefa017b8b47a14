package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show account and collection status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	if sessionService == nil || collectionRegistry == nil {
		return errors.New("services not configured")
	}

	cmd.Println("Account")
	cmd.Println("=======")
	cmd.Printf("  User: %s\n", currentAccount.Username)
	cmd.Printf("  Server: %s\n", currentAccount.ServerURL)
	cmd.Printf("  Protocol: v%d\n", currentAccount.Protocol)
	if sessionService.IsAuthenticated() {
		cmd.Println("  Session: authenticated")
	} else {
		cmd.Println("  Session: not authenticated")
	}
	cmd.Println()

	ctx := context.Background()
	entries, err := collectionRegistry.List(ctx)
	if err != nil {
		return fmt.Errorf("listing collections: %w", err)
	}

	cmd.Println("Collections")
	cmd.Println("===========")
	if len(entries) == 0 {
		cmd.Println("  (none)")
		return nil
	}
	for _, entry := range entries {
		lastSync := "never"
		if !entry.LastSync.IsZero() {
			lastSync = entry.LastSync.Format(time.RFC3339)
		}
		cmd.Printf("  %-12s %-24s last sync: %s\n", entry.Type, displayName(entry), lastSync)
	}
	return nil
}
