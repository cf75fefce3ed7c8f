package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/pdfqa/internal/adapters/driving/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server for AI assistant integration.

The server exposes the tools ask, retrieve, index_document, list_threads and
thread_history, and the resources pdfqa://threads and pdfqa://threads/{id}.

By default, the server communicates over stdio using JSON-RPC. Use --port to
serve streamable HTTP instead, for example for the MCP Inspector.

Examples:
  # Stdio mode (default, for desktop assistants)
  pdfqa mcp serve

  # HTTP mode
  pdfqa mcp serve --port 8080

Assistant configuration:
  {
    "mcpServers": {
      "pdfqa": {
        "command": "/path/to/pdfqa",
        "args": ["mcp", "serve"]
      }
    }
  }`,
	Annotations: needs(LevelFull),
	RunE:        runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntP("port", "p", 0, "HTTP port (0 = use stdio)")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return fmt.Errorf("getting port flag: %w", err)
	}

	if conversationService == nil || retrievalService == nil {
		return errors.New("conversation service not configured")
	}

	ports := &mcp.Ports{
		Conversation: conversationService,
		Retrieval:    retrievalService,
		Index:        indexService,
		Defaults:     retrievalDefaults,
	}

	server, err := mcp.NewServer(ports)
	if err != nil {
		return err
	}

	if port > 0 {
		addr := fmt.Sprintf(":%d", port)
		fmt.Fprintf(cmd.ErrOrStderr(), "MCP server listening on http://localhost%s\n", addr)
		return server.RunHTTP(cmd.Context(), addr)
	}

	return server.Run(cmd.Context())
}
