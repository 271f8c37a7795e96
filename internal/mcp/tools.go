package mcp

import (
	"context"
	"strings"

	"avmcp/internal/alphavantage"
)

// Tool names.
const (
	ToolGetStockQuote  = "get_stock_quote"
	ToolGetDailyPrices = "get_daily_prices"
	ToolSearchSymbol   = "search_symbol"
)

// Tool represents a tool exposed via MCP
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// ToolHandler runs a tool. Failures are reported in the result, never as
// JSON-RPC errors.
type ToolHandler func(ctx context.Context, args map[string]interface{}) *ToolResult

// GetToolDefinitions returns all tool definitions
func (s *MCPServer) GetToolDefinitions() []Tool {
	return []Tool{
		{
			Name:        ToolGetStockQuote,
			Description: "Get real-time stock quote for a symbol. Returns current price, volume, and other market data as JSON.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"symbol": map[string]interface{}{
						"type":        "string",
						"description": "Stock ticker symbol (e.g., 'AAPL', 'MSFT', 'GOOGL')",
					},
				},
				"required": []string{"symbol"},
			},
		},
		{
			Name:        ToolGetDailyPrices,
			Description: "Get daily historical prices for a stock. Returns the 5 most recent days and the total number of days available.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"symbol": map[string]interface{}{
						"type":        "string",
						"description": "Stock ticker symbol (e.g., 'AAPL', 'MSFT', 'GOOGL')",
					},
					"outputsize": map[string]interface{}{
						"type":        "string",
						"enum":        []string{alphavantage.OutputSizeCompact, alphavantage.OutputSizeFull},
						"default":     alphavantage.OutputSizeCompact,
						"description": "'compact' returns last 100 days, 'full' returns 20+ years of data",
					},
				},
				"required": []string{"symbol"},
			},
		},
		{
			Name:        ToolSearchSymbol,
			Description: "Search for stock symbols by company name or keywords. Returns matching symbols with company names, types, and regions.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"keywords": map[string]interface{}{
						"type":        "string",
						"description": "Company name or search keywords (e.g., 'Apple', 'Microsoft')",
					},
				},
				"required": []string{"keywords"},
			},
		},
	}
}

// RegisterTools registers all tool handlers
func (s *MCPServer) RegisterTools() {
	s.tools[ToolGetStockQuote] = s.toolGetStockQuote
	s.tools[ToolGetDailyPrices] = s.toolGetDailyPrices
	s.tools[ToolSearchSymbol] = s.toolSearchSymbol
}

// CallTool runs a registered tool directly, bypassing JSON-RPC.
func (s *MCPServer) CallTool(ctx context.Context, name string, args map[string]interface{}) (*ToolResult, bool) {
	handler, ok := s.tools[name]
	if !ok {
		return nil, false
	}
	return handler(ctx, args), true
}

func (s *MCPServer) toolGetStockQuote(ctx context.Context, args map[string]interface{}) *ToolResult {
	symbol := stringArg(args, "symbol")
	s.logger.Info("Fetching quote", "symbol", symbol)

	quote, err := s.market.GetQuote(ctx, symbol)
	if err != nil {
		msg := s.describeToolError(err, "Error fetching quote", "symbol", symbol)
		return errorResult(alphavantage.NewSymbolError(msg, symbol, s.now()))
	}
	return jsonResult(quote)
}

func (s *MCPServer) toolGetDailyPrices(ctx context.Context, args map[string]interface{}) *ToolResult {
	symbol := stringArg(args, "symbol")
	outputSize := stringArg(args, "outputsize")
	if outputSize == "" {
		outputSize = alphavantage.OutputSizeCompact
	}
	s.logger.Info("Fetching daily prices", "symbol", symbol, "outputsize", outputSize)

	if _, err := alphavantage.ValidateOutputSize(outputSize); err != nil {
		return errorResult(alphavantage.NewSymbolError(err.Error(), symbol, s.now()))
	}

	prices, err := s.market.GetDailyPrices(ctx, symbol, outputSize)
	if err != nil {
		msg := s.describeToolError(err, "Error fetching daily prices", "symbol", symbol)
		return errorResult(alphavantage.NewSymbolError(msg, symbol, s.now()))
	}
	return jsonResult(prices)
}

func (s *MCPServer) toolSearchSymbol(ctx context.Context, args map[string]interface{}) *ToolResult {
	keywords := stringArg(args, "keywords")
	s.logger.Info("Searching for symbols", "keywords", keywords)

	matches, err := s.market.SearchSymbols(ctx, keywords)
	if err != nil {
		msg := s.describeToolError(err, "Error searching", "query", keywords)
		return errorResult(alphavantage.NewQueryError(msg, keywords, s.now()))
	}
	return jsonResult(alphavantage.NewSymbolSearchResult(keywords, matches, s.now()))
}

func stringArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}
