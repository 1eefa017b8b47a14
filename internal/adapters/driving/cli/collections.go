package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/pimsync/internal/core/domain"
)

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "Manage collections",
	Long: `List, create and delete collections.

Examples:
  pimsync collections list
  pimsync collections create --type calendar --name "Work"
  pimsync collections delete <collection-id>`,
	RunE: runCollectionsList,
}

var collectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known collections",
	RunE:  runCollectionsList,
}

var collectionsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new collection",
	RunE:  runCollectionsCreate,
}

var collectionsDeleteCmd = &cobra.Command{
	Use:   "delete [collection-id]",
	Short: "Delete a collection",
	Args:  cobra.ExactArgs(1),
	RunE:  runCollectionsDelete,
}

// Flags for collections create.
var (
	collectionsCreateType string
	collectionsCreateName string
)

func init() {
	collectionsCreateCmd.Flags().StringVar(
		&collectionsCreateType, "type", "", "Collection type (address-book, calendar, task-list, notes)")
	collectionsCreateCmd.Flags().StringVar(
		&collectionsCreateName, "name", "", "Display name (defaults per type)")

	collectionsCmd.AddCommand(collectionsListCmd)
	collectionsCmd.AddCommand(collectionsCreateCmd)
	collectionsCmd.AddCommand(collectionsDeleteCmd)
	rootCmd.AddCommand(collectionsCmd)
}

func runCollectionsList(cmd *cobra.Command, _ []string) error {
	if collectionRegistry == nil {
		return errors.New("collection registry not configured")
	}

	ctx := context.Background()
	entries, err := collectionRegistry.List(ctx)
	if err != nil {
		return fmt.Errorf("listing collections: %w", err)
	}

	if len(entries) == 0 {
		cmd.Println("No known collections.")
		cmd.Println("Run 'pimsync sync' to fetch them, or 'pimsync collections create' to add one.")
		return nil
	}

	cmd.Println("Known collections:")
	cmd.Println()
	for _, entry := range entries {
		cmd.Printf("  %s\n", entry.CollectionID)
		cmd.Printf("    Name: %s\n", entry.Name)
		cmd.Printf("    Type: %s\n", entry.Type)
		if entry.Description != "" {
			cmd.Printf("    Description: %s\n", entry.Description)
		}
		if !entry.LastSync.IsZero() {
			cmd.Printf("    Last sync: %s\n", entry.LastSync.Format(time.RFC3339))
		}
		cmd.Println()
	}
	return nil
}

func runCollectionsCreate(cmd *cobra.Command, _ []string) error {
	if directoryService == nil {
		return errors.New("directory service not configured")
	}
	if collectionsCreateType == "" {
		return errors.New("--type is required")
	}

	typ := domain.CollectionType(collectionsCreateType)
	if !typ.IsValid() {
		return fmt.Errorf("invalid collection type: %s", collectionsCreateType)
	}

	ctx := context.Background()
	if err := ensureSession(ctx); err != nil {
		return err
	}

	entry, err := directoryService.Create(ctx, typ, collectionsCreateName)
	if err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}

	cmd.Printf("Created %s collection: %s (%s)\n", entry.Type, entry.Name, entry.CollectionID)
	return nil
}

func runCollectionsDelete(cmd *cobra.Command, args []string) error {
	if directoryService == nil || collectionRegistry == nil {
		return errors.New("directory service not configured")
	}

	collectionID := args[0]
	ctx := context.Background()
	if err := ensureSession(ctx); err != nil {
		return err
	}

	// Verify it exists locally before issuing the remote delete.
	entry, err := collectionRegistry.Get(ctx, collectionID)
	if err != nil {
		return fmt.Errorf("collection not found: %w", err)
	}

	if err := directoryService.Delete(ctx, collectionID); err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}

	cmd.Printf("Deleted collection: %s (%s)\n", entry.Name, collectionID)
	return nil
}
