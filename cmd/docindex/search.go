package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docindex/internal/core/domain"
	"github.com/custodia-labs/docindex/internal/runtime"
)

var (
	searchLimit     int
	searchThreshold float64
	searchFiles     []string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the owner's indexed chunks",
	Long: `Embeds the query and returns the most similar chunks of --owner's
documents. Search never fails hard: an unavailable backend yields no results.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", domain.DefaultSearchLimit, "maximum number of results")
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", 0, "minimum cosine similarity (0..1)")
	searchCmd.Flags().StringSliceVar(&searchFiles, "file", nil, "restrict to these file ids")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if err := requireOwner(); err != nil {
		return err
	}
	query := strings.Join(args, " ")

	return withServices(cmd, func(ctx context.Context, svc *runtime.Services) error {
		results := svc.Processor.SearchDocuments(ctx, ownerID, query, domain.SearchOptions{
			Limit:     searchLimit,
			Threshold: searchThreshold,
			FileIDs:   searchFiles,
		})

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, results)
		}
		if len(results) == 0 {
			fmt.Fprintln(out, "No results found.")
			return nil
		}
		for _, r := range results {
			title := r.Metadata.Title
			if title == "" {
				title = r.FileID
			}
			fmt.Fprintf(out, "  [%d] %s #%d (%.3f)\n", r.Rank, title, r.ChunkIndex, r.Similarity)
			fmt.Fprintf(out, "      %s\n\n", snippet(r.Content, 160))
		}
		return nil
	})
}

func snippet(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	cut := strings.LastIndex(s[:max], " ")
	if cut <= 0 {
		cut = max
	}
	return s[:cut] + "..."
}
