package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/tender-ingest/internal/core/domain"
)

var (
	searchLimit      int
	searchJSON       bool
	searchCollection string
	searchSections   []string
	searchSources    []string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search ingested tender documents",
	Long: `Embeds the query with the provider and model the collection was built
with, then returns the most similar fragments with their score, source,
section and page.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	searchCmd.Flags().StringVarP(&searchCollection, "collection", "c", "", "collection to search")
	searchCmd.Flags().StringSliceVar(&searchSections, "section", nil, "only fragments tagged with these sections")
	searchCmd.Flags().StringSliceVar(&searchSources, "source", nil, "only fragments from these documents")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]

	if err := connect(cmd.Context()); err != nil {
		return err
	}
	if searchService == nil {
		return errors.New("search service not configured")
	}

	opts := domain.SearchOptions{
		Collection: searchCollection,
		Limit:      searchLimit,
		Sections:   searchSections,
		Sources:    searchSources,
	}
	if opts.Collection == "" && cfg != nil {
		opts.Collection = cfg.Store.Collection
	}

	results, err := searchService.Search(cmd.Context(), query, opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, results)
	}

	return outputSearchTable(cmd, results)
}

func outputSearchJSON(cmd *cobra.Command, results []domain.SearchResult) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, results []domain.SearchResult) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range results {
		c := results[i].Chunk

		// Format: [N] source · SECTION · p.3 (score)
		location := c.Source + " · " + c.Section
		if c.Page != nil {
			location += fmt.Sprintf(" · p.%d", *c.Page)
		}
		cmd.Printf("  [%d] %s (%.3f)\n", i+1, location, results[i].Score)
		cmd.Printf("      %s\n", snippet(c.Content, 240))
		cmd.Println()
	}

	return nil
}

// snippet flattens whitespace and truncates to at most n runes.
func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
