package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <sha256>",
	Short: "Show the ingestion status of content by hash",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	st, err := s.client.Status(ctx, args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), st)
	}

	w := cmd.OutOrStdout()
	if !st.Exists {
		fmt.Fprintln(w, st.Status)
		return nil
	}
	fmt.Fprintf(w, "%s (source file %d, %d passages)\n", st.Status, st.SourceFileID, st.PassageCount)
	if st.FailureKind != "" {
		fmt.Fprintf(w, "failure: %s: %s\n", st.FailureKind, st.FailureReason)
	}
	return nil
}
