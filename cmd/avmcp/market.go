package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"avmcp/internal/alphavantage"
	"avmcp/internal/mcp"
	"avmcp/internal/version"
)

var (
	marketFormat    string
	dailyOutputSize string
)

var quoteCmd = &cobra.Command{
	Use:   "quote SYMBOL",
	Short: "Get the latest quote for a symbol",
	Example: `  avmcp quote AAPL
  avmcp quote MSFT --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTool(mcp.ToolGetStockQuote, map[string]interface{}{"symbol": args[0]}, new(alphavantage.StockQuote))
	},
}

var dailyCmd = &cobra.Command{
	Use:   "daily SYMBOL",
	Short: "Get the most recent daily prices for a symbol",
	Example: `  avmcp daily IBM
  avmcp daily IBM --outputsize full --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTool(mcp.ToolGetDailyPrices, map[string]interface{}{
			"symbol":     args[0],
			"outputsize": dailyOutputSize,
		}, new(alphavantage.DailyPrices))
	},
}

var searchCmd = &cobra.Command{
	Use:   "search KEYWORDS...",
	Short: "Search for symbols by company name or keywords",
	Example: `  avmcp search apple
  avmcp search bank of america`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTool(mcp.ToolSearchSymbol, map[string]interface{}{
			"keywords": strings.Join(args, " "),
		}, new(alphavantage.SymbolSearchResult))
	},
}

func init() {
	for _, c := range []*cobra.Command{quoteCmd, dailyCmd, searchCmd} {
		c.Flags().StringVar(&marketFormat, "format", string(FormatHuman), "Output format (human, json)")
		rootCmd.AddCommand(c)
	}
	dailyCmd.Flags().StringVar(&dailyOutputSize, "outputsize", alphavantage.OutputSizeCompact, "compact (100 days) or full (20+ years)")
}

// runTool calls a tool the way an MCP client would and prints its result.
// into receives the decoded payload for human output.
func runTool(name string, args map[string]interface{}, into interface{}) error {
	format, err := parseFormat(marketFormat)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := mcp.NewMCPServer(version.Version, a.client, a.logger)
	result, ok := server.CallTool(ctx, name, args)
	if !ok {
		return fmt.Errorf("unknown tool: %s", name)
	}

	if result.IsError {
		var resp alphavantage.ErrorResponse
		if err := json.Unmarshal([]byte(result.Text()), &resp); err != nil || resp.Error == "" {
			return errors.New(result.Text())
		}
		if format == FormatJSON {
			fmt.Println(result.Text())
		}
		return errors.New(resp.Error)
	}

	if format == FormatJSON {
		fmt.Println(result.Text())
		return nil
	}

	if err := json.Unmarshal([]byte(result.Text()), into); err != nil {
		return fmt.Errorf("decode %s result: %w", name, err)
	}
	out, err := FormatResponse(into, format)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}
