package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/pimsync/internal/core/domain"
)

var syncCmd = &cobra.Command{
	Use:   "sync [collection-id]",
	Short: "Synchronise collections",
	Long: `Triggers synchronisation. The collection directory is reconciled
first, then each collection's item log is pulled into the local cache.
If a collection ID is provided, only that collection is synchronised.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

var syncSkipDirectory bool

func init() {
	syncCmd.Flags().BoolVar(
		&syncSkipDirectory, "skip-directory", false, "Skip the collection directory reconciliation")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	if directoryService == nil || collectionRegistry == nil || engineFor == nil {
		return errors.New("sync services not configured")
	}
	ctx := context.Background()
	if err := ensureSession(ctx); err != nil {
		return err
	}

	if !syncSkipDirectory {
		cmd.Println("Reconciling collection directory...")
		if err := directoryService.Sync(ctx); err != nil {
			return fmt.Errorf("directory sync failed: %w", err)
		}
	}

	entries, err := collectionRegistry.List(ctx)
	if err != nil {
		return fmt.Errorf("listing collections: %w", err)
	}

	if len(args) > 0 {
		entry, ok := findEntry(entries, args[0])
		if !ok {
			return fmt.Errorf("unknown collection: %s", args[0])
		}
		return syncCollection(ctx, cmd, entry)
	}

	if len(entries) == 0 {
		cmd.Println("No collections to synchronise.")
		return nil
	}

	var failed int
	for _, entry := range entries {
		if err := syncCollection(ctx, cmd, entry); err != nil {
			cmd.Printf("  %s: %v\n", entry.CollectionID, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d collections failed to synchronise", failed, len(entries))
	}
	cmd.Println("All collections synchronised successfully.")
	return nil
}

// syncCollection refreshes one collection and prints its change summary.
func syncCollection(ctx context.Context, cmd *cobra.Command, entry domain.RegistryEntry) error {
	engine, err := engineFor(entry)
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}

	cmd.Printf("Synchronising %s (%s)...\n", displayName(entry), entry.Type)
	changes, err := engine.Refresh(ctx)
	if err != nil {
		return err
	}

	if changes == nil || changes.IsEmpty() {
		cmd.Println("  Up to date.")
		return nil
	}
	cmd.Printf("  %d created, %d modified, %d removed\n",
		len(changes.Created), len(changes.Modified), len(changes.Removed))
	return nil
}

// findEntry matches a collection by id, falling back to display name.
func findEntry(entries []domain.RegistryEntry, key string) (domain.RegistryEntry, bool) {
	for _, entry := range entries {
		if entry.CollectionID == key {
			return entry, true
		}
	}
	for _, entry := range entries {
		if entry.Name == key {
			return entry, true
		}
	}
	return domain.RegistryEntry{}, false
}

// displayName prefers the mirrored name over the raw id.
func displayName(entry domain.RegistryEntry) string {
	if entry.Name != "" {
		return entry.Name
	}
	return entry.CollectionID
}
