package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/markhor/internal/adapters/driving/mcp"
)

var mcpPort int

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start a Model Context Protocol server exposing workspace retrieval to AI assistants.

Tools: retrieve, index_status, and ask when an LLM provider is configured.
Resources: markhor://documents, markhor://documents/{id}, markhor://models.

By default the server speaks JSON-RPC over stdio. Use --port to serve
streamable HTTP instead, for example for the MCP Inspector.

Examples:
  markhor mcp serve
  markhor mcp serve --port 8080

Assistant configuration:
  {
    "mcpServers": {
      "markhor": {
        "command": "/path/to/markhor",
        "args": ["mcp", "serve", "--workspace", "/path/to/notes"]
      }
    }
  }`,
	Args:        cobra.NoArgs,
	Annotations: pipelineAnnotation,
	RunE:        runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntVarP(&mcpPort, "port", "p", 0, "HTTP port (0 = use stdio)")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	server, err := mcp.NewServer(&mcp.Ports{
		Retrieval: retrievalService,
		Answer:    answerService,
		Workspace: workspace,
		Models:    modelRegistry,
	})
	if err != nil {
		return err
	}

	if mcpPort > 0 {
		addr := fmt.Sprintf(":%d", mcpPort)
		cmd.PrintErrf("MCP server listening on http://localhost%s\n", addr)
		return server.RunHTTP(cmd.Context(), addr)
	}
	return server.Run(cmd.Context())
}
