package main

import (
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	Long: `Speaks the Model Context Protocol over stdin/stdout, exposing the
search_documents and file_status tools. Ingestion workers run alongside so
files accepted by other processes keep progressing. Logs go to stderr.

Example client configuration:
  {
    "mcpServers": {
      "ragdex": {
        "command": "/path/to/ragdex",
        "args": ["mcp", "--config", "/etc/ragdex/prod.yaml"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	return s.client.ServeMCP(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
}
