package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/imrysn/kmti-icad-hub/internal/interfaces/mcp"
	"github.com/imrysn/kmti-icad-hub/internal/wire"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the knowledge base search tool over MCP (stdio)",
	Long: `Start a Model Context Protocol server on stdin/stdout exposing the
search_knowledge_base and knowledge_base_stats tools.

Example client configuration:
  {
    "mcpServers": {
      "icad": {"command": "/path/to/icadctl", "args": ["mcp"]}
    }
  }`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withCore(cmd, wire.CoreOptions{}, func(ctx context.Context, core *wire.Core) error {
			srv := mcp.NewServer(mcp.Deps{Searcher: core.Retrieval, Version: Version})
			return mcp.ServeStdio(ctx, srv)
		})
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
