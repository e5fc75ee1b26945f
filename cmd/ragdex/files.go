package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/ragdex"
)

var (
	filesScope  string
	filesStatus string
	filesLimit  int
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Manage ingested source files",
}

var filesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List source files, newest first",
	Args:  cobra.NoArgs,
	RunE:  runFilesList,
}

var filesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one source file",
	Args:  cobra.ExactArgs(1),
	RunE:  runFilesShow,
}

var filesActivateCmd = &cobra.Command{
	Use:   "activate <id>",
	Short: "Make a file's passages searchable",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetActive(cmd, args[0], true)
	},
}

var filesDeactivateCmd = &cobra.Command{
	Use:   "deactivate <id>",
	Short: "Hide a file's passages from search",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetActive(cmd, args[0], false)
	},
}

var filesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a file and its passages",
	Args:  cobra.ExactArgs(1),
	RunE:  runFilesDelete,
}

func init() {
	f := filesListCmd.Flags()
	f.StringVarP(&filesScope, "scope", "s", "", "only files in this scope")
	f.StringVar(&filesStatus, "status", "", "only files with this status (processing, completed, failed)")
	f.IntVarP(&filesLimit, "limit", "n", 0, "maximum number of files (default 100)")

	filesCmd.AddCommand(filesListCmd, filesShowCmd, filesActivateCmd, filesDeactivateCmd, filesDeleteCmd)
	rootCmd.AddCommand(filesCmd)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid source file id %q", s)
	}
	return id, nil
}

func runFilesList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	opts := ragdex.ListOptions{Status: ragdex.Status(filesStatus), Limit: filesLimit}
	if cmd.Flags().Changed("scope") {
		opts.Scope = &filesScope
	}
	files, err := s.client.Files(ctx, opts)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), files)
	}
	if len(files) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No files.")
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tACTIVE\tSCOPE\tPASSAGES\tUPDATED")
	for _, f := range files {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%s\t%d\t%s\n",
			f.ID, f.Name, f.Status, f.Active, f.ScopeID, f.PassageCount, f.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func runFilesShow(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	f, err := s.client.File(ctx, id)
	if err != nil {
		return err
	}
	return printFile(cmd.OutOrStdout(), f)
}

func runSetActive(cmd *cobra.Command, arg string, active bool) error {
	id, err := parseID(arg)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	var f ragdex.File
	if active {
		f, err = s.client.Activate(ctx, id)
	} else {
		f, err = s.client.Deactivate(ctx, id)
	}
	if err != nil {
		return err
	}
	return printFile(cmd.OutOrStdout(), f)
}

func runFilesDelete(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.client.Delete(ctx, id); err != nil {
		return err
	}
	if !jsonOutput {
		fmt.Fprintf(cmd.OutOrStdout(), "deleted source file %d\n", id)
	}
	return nil
}

func printFile(w io.Writer, f ragdex.File) error {
	if jsonOutput {
		return printJSON(w, f)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "id:\t%d\n", f.ID)
	fmt.Fprintf(tw, "name:\t%s\n", f.Name)
	fmt.Fprintf(tw, "status:\t%s\n", f.Status)
	fmt.Fprintf(tw, "active:\t%t\n", f.Active)
	fmt.Fprintf(tw, "scope:\t%s\n", f.ScopeID)
	fmt.Fprintf(tw, "owner:\t%s\n", f.Owner)
	fmt.Fprintf(tw, "sha256:\t%s\n", f.ContentHash)
	fmt.Fprintf(tw, "passages:\t%d\n", f.PassageCount)
	if f.FailureKind != "" {
		fmt.Fprintf(tw, "failure:\t%s: %s\n", f.FailureKind, f.FailureReason)
	}
	fmt.Fprintf(tw, "created:\t%s\n", f.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "updated:\t%s\n", f.UpdatedAt.Format(time.RFC3339))
	return tw.Flush()
}
