package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	searchLimit     int
	searchThreshold float64
	searchScope     string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search indexed passages",
	Long: `Runs a semantic search over active passages. Hits are ordered by
descending similarity; only hits above the threshold are returned.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum number of hits (default search.default_limit)")
	searchCmd.Flags().Float64VarP(&searchThreshold, "threshold", "t", -1, "similarity threshold in [0,1] (default search.default_threshold)")
	searchCmd.Flags().StringVarP(&searchScope, "scope", "s", "", "restrict to one scope")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	b := s.client.Search(args[0]).Limit(searchLimit).Scope(searchScope)
	if cmd.Flags().Changed("threshold") {
		b = b.Threshold(searchThreshold)
	}
	hits, err := b.Do(ctx)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), hits)
	}
	w := cmd.OutOrStdout()
	if len(hits) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}
	for i, h := range hits {
		fmt.Fprintf(w, "[%d] file %d passage %d (%.3f)\n", i+1, h.SourceFileID, h.PassageID, h.Similarity)
		fmt.Fprintf(w, "    %s\n\n", h.Content)
	}
	return nil
}
