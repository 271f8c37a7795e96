package mcp

// ServerName is reported to clients in serverInfo.
const ServerName = "Alpha Vantage MCP Server"

// SupportedProtocolVersions lists the MCP revisions this server speaks, newest first.
var SupportedProtocolVersions = []string{"2025-06-18", "2025-03-26", "2024-11-05"}

const serverInstructions = "Market data from Alpha Vantage. Use search_symbol to find a ticker, " +
	"get_stock_quote for the latest price and get_daily_prices for recent daily history. " +
	"Free API keys are limited to a few calls per minute; a rate limit error means wait and retry."

// ServerCapabilities represents the capabilities exposed by the MCP server
type ServerCapabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

// ToolsCapability represents the tools capability
type ToolsCapability struct {
	ListChanged bool `json:"listChanged"`
}

// ServerInfo represents information about the server
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult represents the result of the initialize request
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// negotiateProtocolVersion returns the client's version when supported,
// otherwise the newest one this server knows.
func negotiateProtocolVersion(requested string) string {
	for _, v := range SupportedProtocolVersions {
		if v == requested {
			return v
		}
	}
	return SupportedProtocolVersions[0]
}

// handleInitialize handles the initialize request
func (s *MCPServer) handleInitialize(params map[string]interface{}) (*InitializeResult, error) {
	requested, _ := params["protocolVersion"].(string)
	negotiated := negotiateProtocolVersion(requested)

	s.logger.Info("MCP server initializing",
		"clientInfo", params["clientInfo"],
		"requestedProtocol", requested,
		"protocol", negotiated,
	)

	s.mu.Lock()
	s.protocolVersion = negotiated
	s.mu.Unlock()

	return &InitializeResult{
		ProtocolVersion: negotiated,
		Capabilities: ServerCapabilities{
			Tools: &ToolsCapability{ListChanged: false},
		},
		ServerInfo: ServerInfo{
			Name:    ServerName,
			Version: s.version,
		},
		Instructions: serverInstructions,
	}, nil
}
