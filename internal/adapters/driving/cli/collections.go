package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	collectionsJSON bool
	collectionsYes  bool
)

var collectionsCmd = &cobra.Command{
	Use:     "collections",
	Aliases: []string{"collection"},
	Short:   "Manage collections",
	Long:    `List and delete the collections of the vector store.`,
	RunE:    runCollectionsList,
}

var collectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collections",
	RunE:  runCollectionsList,
}

var collectionsDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a collection and its fragments",
	Args:  cobra.ExactArgs(1),
	RunE:  runCollectionsDelete,
}

func init() {
	collectionsCmd.PersistentFlags().BoolVar(&collectionsJSON, "json", false, "output as JSON")
	collectionsDeleteCmd.Flags().BoolVarP(&collectionsYes, "yes", "y", false, "do not ask for confirmation")
	collectionsCmd.AddCommand(collectionsListCmd)
	collectionsCmd.AddCommand(collectionsDeleteCmd)
	rootCmd.AddCommand(collectionsCmd)
}

func runCollectionsList(cmd *cobra.Command, _ []string) error {
	if err := connect(cmd.Context()); err != nil {
		return err
	}
	if collectionService == nil {
		return errors.New("collection service not configured")
	}

	collections, err := collectionService.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	if collectionsJSON {
		data, err := json.MarshalIndent(collections, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal collections: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(collections) == 0 {
		cmd.Println("No collections. Run 'tender ingest <folder>' to create one.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPROVIDER\tMODEL\tDIMS\tFRAGMENTS")
	for _, c := range collections {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", c.Name, c.Provider, c.Model, c.Dimensions, c.Count)
	}
	return tw.Flush()
}

func runCollectionsDelete(cmd *cobra.Command, args []string) error {
	name := args[0]

	if err := connect(cmd.Context()); err != nil {
		return err
	}
	if collectionService == nil {
		return errors.New("collection service not configured")
	}

	if !collectionsYes {
		c, err := collectionService.Get(cmd.Context(), name)
		if err != nil {
			return fmt.Errorf("failed to get collection: %w", err)
		}
		cmd.Printf("Delete collection %s with %d fragments? [y/N]: ", c.Name, c.Count)
		if !confirm(cmd) {
			cmd.Println("Aborted.")
			return nil
		}
	}

	if err := collectionService.Delete(cmd.Context(), name); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	cmd.Printf("Collection %s deleted.\n", name)
	return nil
}
