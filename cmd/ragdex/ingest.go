package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/ragdex"
)

var (
	ingestScope string
	ingestWait  bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Ingest local files",
	Long: `Submits each file for ingestion. Content that is already indexed is
reported as a duplicate and skipped. With --wait the command blocks until
every accepted file is completed or failed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestScope, "scope", "s", "", "scope name for the files")
	ingestCmd.Flags().BoolVarP(&ingestWait, "wait", "w", false, "wait until processing finishes")
	rootCmd.AddCommand(ingestCmd)
}

// ingestResult is one line of ingest output.
type ingestResult struct {
	Path         string        `json:"path"`
	Outcome      string        `json:"outcome"`
	SourceFileID int64         `json:"source_file_id,omitempty"`
	ContentHash  string        `json:"content_hash,omitempty"`
	Status       ragdex.Status `json:"status,omitempty"`
	Error        string        `json:"error,omitempty"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	results := make([]ingestResult, 0, len(args))
	failed := 0
	for _, path := range args {
		r := ingestOne(ctx, s.client, path)
		if r.Outcome == "error" || r.Status == ragdex.StatusFailed {
			failed++
		}
		results = append(results, r)
	}

	if jsonOutput {
		if err := printJSON(cmd.OutOrStdout(), results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			printIngestResult(cmd, r)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(args))
	}
	return nil
}

func ingestOne(ctx context.Context, c *ragdex.Client, path string) ingestResult {
	r := ingestResult{Path: path}
	acc, err := c.IngestFile(ctx, path, ingestScope)
	if err != nil {
		if id, status, ok := ragdex.DuplicateOf(err); ok {
			r.Outcome = "duplicate"
			r.SourceFileID = id
			r.Status = status
			return r
		}
		r.Outcome = "error"
		r.Error = err.Error()
		return r
	}

	r.Outcome = "accepted"
	r.SourceFileID = acc.SourceFileID
	r.ContentHash = acc.ContentHash
	r.Status = ragdex.StatusProcessing
	if !ingestWait {
		return r
	}

	st, err := c.Wait(ctx, acc.ContentHash)
	if err != nil {
		r.Error = err.Error()
		if errors.Is(err, context.Canceled) {
			return r
		}
		r.Outcome = "error"
		return r
	}
	r.Status = st.Status
	if st.FailureReason != "" {
		r.Error = st.FailureReason
	}
	return r
}

func printIngestResult(cmd *cobra.Command, r ingestResult) {
	w := cmd.OutOrStdout()
	switch r.Outcome {
	case "duplicate":
		fmt.Fprintf(w, "%s: duplicate of source file %d (%s)\n", r.Path, r.SourceFileID, r.Status)
	case "error":
		fmt.Fprintf(w, "%s: error: %s\n", r.Path, r.Error)
	default:
		fmt.Fprintf(w, "%s: source file %d %s", r.Path, r.SourceFileID, r.Status)
		if r.Error != "" {
			fmt.Fprintf(w, " (%s)", r.Error)
		}
		fmt.Fprintln(w)
	}
}
