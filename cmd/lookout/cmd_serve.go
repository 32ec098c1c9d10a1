package main

import (
	"github.com/spf13/cobra"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"lookout/internal/logging"
	mcpserver "lookout/internal/mcp"
)

var serveFlags struct {
	rulesPath string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server over stdio",
	Long: `Starts an MCP server over stdin/stdout exposing the triage tools:
list_rules, match_failure, and triage_run (dry-run only). The server
never writes to the tracker.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.rulesPath, "rules", "", "Default rule file for tool calls that omit rules_path")
}

func runServe(cmd *cobra.Command, _ []string) error {
	srv := mcpserver.NewServer(serveFlags.rulesPath)
	logging.New("mcp").Info("starting lookout MCP server over stdio")
	return srv.MCPServer.Run(cmd.Context(), &sdkmcp.StdioTransport{})
}
