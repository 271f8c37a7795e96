package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"avmcp/internal/mcp"
	"avmcp/internal/version"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server on stdio",
	Long: `Start the Model Context Protocol (MCP) server.

The server reads newline-delimited JSON-RPC 2.0 messages from stdin and
writes responses to stdout. Logs go to stderr.

The server exposes the following tools:
  - get_stock_quote: Latest quote for a symbol
  - get_daily_prices: The 5 most recent trading days for a symbol
  - search_symbol: Find symbols by company name or keywords

This command is typically invoked by MCP clients and not directly by users.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := mcp.NewMCPServer(version.Version, a.client, a.logger)

	err = server.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		a.logger.Info("Server stopped by user")
		return nil
	}
	if err != nil {
		a.logger.Error("MCP server error", "error", err.Error())
		return err
	}
	return nil
}
