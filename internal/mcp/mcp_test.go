package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"avmcp/internal/alphavantage"
	"avmcp/internal/errors"
	"avmcp/internal/version"
)

var testNow = time.Date(2024, 1, 15, 16, 0, 0, 0, time.UTC)

// fakeMarket records calls and returns canned results.
type fakeMarket struct {
	mu      sync.Mutex
	calls   []string
	quote   *alphavantage.StockQuote
	daily   *alphavantage.DailyPrices
	matches []alphavantage.SymbolMatch
	err     error
}

func (f *fakeMarket) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeMarket) GetQuote(_ context.Context, symbol string) (*alphavantage.StockQuote, error) {
	f.record("quote:" + symbol)
	return f.quote, f.err
}

func (f *fakeMarket) GetDailyPrices(_ context.Context, symbol, outputSize string) (*alphavantage.DailyPrices, error) {
	f.record("daily:" + symbol + ":" + outputSize)
	return f.daily, f.err
}

func (f *fakeMarket) SearchSymbols(_ context.Context, keywords string) ([]alphavantage.SymbolMatch, error) {
	f.record("search:" + keywords)
	return f.matches, f.err
}

// newTestMCPServer creates an MCP server for testing
func newTestMCPServer(t *testing.T, market *fakeMarket) *MCPServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := NewMCPServer(version.Version, market, logger)
	server.now = func() time.Time { return testNow }
	return server
}

// sendRequest sends a request and returns the response
func sendRequest(t *testing.T, server *MCPServer, method string, id int, params interface{}) *MCPMessage {
	t.Helper()

	request := MCPMessage{
		Jsonrpc: "2.0",
		Id:      id,
		Method:  method,
		Params:  params,
	}

	requestBytes, err := json.Marshal(request)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	msgs, _, err := decodePayload(requestBytes)
	if err != nil {
		t.Fatalf("Failed to decode request: %v", err)
	}

	return server.handleMessage(context.Background(), msgs[0])
}

// callTool calls a tool and decodes its result
func callTool(t *testing.T, server *MCPServer, name string, args map[string]interface{}) *ToolResult {
	t.Helper()

	response := sendRequest(t, server, "tools/call", 1, map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
	if response == nil {
		t.Fatal("Response should not be nil")
	}
	if response.Error != nil {
		t.Fatalf("Unexpected JSON-RPC error: %v", response.Error)
	}

	result, ok := response.Result.(*ToolResult)
	if !ok {
		t.Fatalf("Result type = %T, want *ToolResult", response.Result)
	}
	if len(result.Content) != 1 || result.Content[0].Type != "text" {
		t.Fatalf("Unexpected content: %+v", result.Content)
	}
	return result
}

func decodeErrorResponse(t *testing.T, result *ToolResult) map[string]interface{} {
	t.Helper()

	if !result.IsError {
		t.Fatalf("Expected isError, got text %s", result.Text())
	}
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(result.Text()), &payload); err != nil {
		t.Fatalf("Error payload is not JSON: %v", err)
	}
	return payload
}

func TestMCPServerCreation(t *testing.T) {
	server := newTestMCPServer(t, &fakeMarket{})

	if len(server.tools) != 3 {
		t.Errorf("Expected 3 registered tools, got %d", len(server.tools))
	}
	for _, tool := range server.GetToolDefinitions() {
		if _, ok := server.tools[tool.Name]; !ok {
			t.Errorf("Tool %s has a definition but no handler", tool.Name)
		}
	}
}

func TestInitializeMethod(t *testing.T) {
	tests := []struct {
		requested string
		want      string
	}{
		{"2025-03-26", "2025-03-26"},
		{"2024-11-05", "2024-11-05"},
		{"0.1.0", SupportedProtocolVersions[0]},
		{"", SupportedProtocolVersions[0]},
	}

	for _, tt := range tests {
		t.Run(tt.requested, func(t *testing.T) {
			server := newTestMCPServer(t, &fakeMarket{})

			response := sendRequest(t, server, "initialize", 1, map[string]interface{}{
				"protocolVersion": tt.requested,
				"capabilities":    map[string]interface{}{},
				"clientInfo": map[string]interface{}{
					"name":    "test-client",
					"version": "1.0.0",
				},
			})

			if response.Error != nil {
				t.Fatalf("Unexpected error: %v", response.Error)
			}
			result, ok := response.Result.(*InitializeResult)
			if !ok {
				t.Fatalf("Result type = %T", response.Result)
			}
			if result.ProtocolVersion != tt.want {
				t.Errorf("ProtocolVersion = %q, want %q", result.ProtocolVersion, tt.want)
			}
			if result.ServerInfo.Name != "Alpha Vantage MCP Server" {
				t.Errorf("ServerInfo.Name = %q", result.ServerInfo.Name)
			}
			if result.ServerInfo.Version != version.Version {
				t.Errorf("ServerInfo.Version = %q", result.ServerInfo.Version)
			}
			if result.Capabilities.Tools == nil {
				t.Error("Tools capability should be advertised")
			}
			if server.ProtocolVersion() != tt.want {
				t.Errorf("negotiated version not recorded: %q", server.ProtocolVersion())
			}
		})
	}
}

func TestPing(t *testing.T) {
	server := newTestMCPServer(t, &fakeMarket{})

	response := sendRequest(t, server, "ping", 7, nil)
	data, err := json.Marshal(response)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"jsonrpc":"2.0","id":7,"result":{}}` {
		t.Errorf("ping response = %s", data)
	}
}

func TestToolsList(t *testing.T) {
	server := newTestMCPServer(t, &fakeMarket{})

	response := sendRequest(t, server, "tools/list", 2, nil)
	if response.Error != nil {
		t.Fatalf("Unexpected error: %v", response.Error)
	}

	data, _ := json.Marshal(response.Result)
	var result struct {
		Tools []struct {
			Name        string `json:"name"`
			InputSchema struct {
				Required   []string               `json:"required"`
				Properties map[string]interface{} `json:"properties"`
			} `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	want := map[string]string{
		"get_stock_quote":  "symbol",
		"get_daily_prices": "symbol",
		"search_symbol":    "keywords",
	}
	if len(result.Tools) != len(want) {
		t.Fatalf("Expected %d tools, got %d", len(want), len(result.Tools))
	}
	for _, tool := range result.Tools {
		required, ok := want[tool.Name]
		if !ok {
			t.Errorf("Unexpected tool %s", tool.Name)
			continue
		}
		if len(tool.InputSchema.Required) != 1 || tool.InputSchema.Required[0] != required {
			t.Errorf("%s required = %v, want [%s]", tool.Name, tool.InputSchema.Required, required)
		}
	}
}

func TestCallTool_Quote(t *testing.T) {
	market := &fakeMarket{quote: &alphavantage.StockQuote{Symbol: "AAPL", Price: "182.45", RetrievedAt: testNow}}
	server := newTestMCPServer(t, market)

	result := callTool(t, server, ToolGetStockQuote, map[string]interface{}{"symbol": "AAPL"})
	if result.IsError {
		t.Fatalf("Unexpected tool error: %s", result.Text())
	}
	if !strings.Contains(result.Text(), "\n  \"price\": \"182.45\"") {
		t.Errorf("Expected 2-space indented JSON, got %s", result.Text())
	}

	var quote alphavantage.StockQuote
	if err := json.Unmarshal([]byte(result.Text()), &quote); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if quote.Symbol != "AAPL" || quote.Price != "182.45" {
		t.Errorf("Unexpected quote: %+v", quote)
	}
}

func TestCallTool_ErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		tool    string
		args    map[string]interface{}
		err     error
		want    string
		wantKey string
	}{
		{
			name:    "rate limit keeps a single prefix",
			tool:    ToolGetStockQuote,
			args:    map[string]interface{}{"symbol": "IBM"},
			err:     errors.NewRateLimitError("5 calls per minute"),
			want:    "Rate limit reached: 5 calls per minute",
			wantKey: "symbol",
		},
		{
			name:    "api error on quote",
			tool:    ToolGetStockQuote,
			args:    map[string]interface{}{"symbol": "IBM"},
			err:     errors.NewAPIError("API Error: Invalid API call.", nil),
			want:    "Error fetching quote: API Error: Invalid API call.",
			wantKey: "symbol",
		},
		{
			name:    "no data on daily",
			tool:    ToolGetDailyPrices,
			args:    map[string]interface{}{"symbol": "ZZZZ"},
			err:     errors.NewNoDataError("No daily data found for ZZZZ"),
			want:    "Error fetching daily prices: No daily data found for ZZZZ",
			wantKey: "symbol",
		},
		{
			name:    "missing key on search",
			tool:    ToolSearchSymbol,
			args:    map[string]interface{}{"keywords": "apple"},
			err:     errors.NewConfigMissingError("ALPHA_VANTAGE_API_KEY"),
			want:    "Error searching: ALPHA_VANTAGE_API_KEY environment variable is required",
			wantKey: "query",
		},
		{
			name:    "unexpected",
			tool:    ToolSearchSymbol,
			args:    map[string]interface{}{"keywords": "apple"},
			err:     stderrors.New("boom"),
			want:    "Unexpected error: boom",
			wantKey: "query",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestMCPServer(t, &fakeMarket{err: tt.err})

			payload := decodeErrorResponse(t, callTool(t, server, tt.tool, tt.args))
			if payload["error"] != tt.want {
				t.Errorf("error = %q, want %q", payload["error"], tt.want)
			}
			if _, ok := payload[tt.wantKey].(string); !ok {
				t.Errorf("expected %s in payload, got %v", tt.wantKey, payload)
			}
			if payload["timestamp"] != "2024-01-15T16:00:00Z" {
				t.Errorf("timestamp = %v", payload["timestamp"])
			}
		})
	}
}

func TestCallTool_DailyPrices(t *testing.T) {
	market := &fakeMarket{daily: &alphavantage.DailyPrices{
		Symbol: "MSFT",
		RecentDays: map[string]alphavantage.DailyPrice{
			"2024-01-12": {Open: "1", High: "2", Low: "0.5", Close: "1.5", Volume: "10"},
		},
		TotalDaysAvailable: 100,
	}}
	server := newTestMCPServer(t, market)

	result := callTool(t, server, ToolGetDailyPrices, map[string]interface{}{"symbol": "MSFT"})
	if result.IsError {
		t.Fatalf("Unexpected tool error: %s", result.Text())
	}
	if !strings.Contains(result.Text(), `"1. open": "1"`) {
		t.Errorf("Daily prices should use Alpha Vantage keys, got %s", result.Text())
	}
	if len(market.calls) != 1 || market.calls[0] != "daily:MSFT:compact" {
		t.Errorf("outputsize should default to compact, calls = %v", market.calls)
	}
}

func TestCallTool_InvalidOutputSize(t *testing.T) {
	market := &fakeMarket{}
	server := newTestMCPServer(t, market)

	payload := decodeErrorResponse(t, callTool(t, server, ToolGetDailyPrices, map[string]interface{}{
		"symbol":     "MSFT",
		"outputsize": "everything",
	}))
	if payload["error"] != "outputsize must be 'compact' or 'full'" {
		t.Errorf("error = %q", payload["error"])
	}
	if payload["symbol"] != "MSFT" {
		t.Errorf("symbol = %v", payload["symbol"])
	}
	if len(market.calls) != 0 {
		t.Errorf("No upstream call expected, got %v", market.calls)
	}
}

func TestCallTool_Search(t *testing.T) {
	market := &fakeMarket{matches: []alphavantage.SymbolMatch{
		{Symbol: "AAPL", Name: "Apple Inc", Type: "Equity", Region: "United States", Currency: "USD"},
		{Symbol: "APLE", Name: "Apple Hospitality REIT Inc", Type: "Equity", Region: "United States", Currency: "USD"},
	}}
	server := newTestMCPServer(t, market)

	result := callTool(t, server, ToolSearchSymbol, map[string]interface{}{"keywords": "apple"})
	var search alphavantage.SymbolSearchResult
	if err := json.Unmarshal([]byte(result.Text()), &search); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if search.Query != "apple" || search.Count != 2 || len(search.Matches) != 2 {
		t.Errorf("Unexpected search result: %+v", search)
	}
}

func TestCallTool_ProtocolErrors(t *testing.T) {
	server := newTestMCPServer(t, &fakeMarket{})

	tests := []struct {
		name   string
		params interface{}
	}{
		{"unknown tool", map[string]interface{}{"name": "get_crypto_price"}},
		{"missing name", map[string]interface{}{"arguments": map[string]interface{}{}}},
		{"params not an object", "get_stock_quote"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			response := sendRequest(t, server, "tools/call", 3, tt.params)
			if response.Error == nil {
				t.Fatal("Expected a JSON-RPC error")
			}
			if response.Error.Code != InvalidParams {
				t.Errorf("Code = %d, want %d", response.Error.Code, InvalidParams)
			}
		})
	}
}

func TestUnknownMethod(t *testing.T) {
	server := newTestMCPServer(t, &fakeMarket{})

	response := sendRequest(t, server, "resources/list", 4, nil)
	if response.Error == nil || response.Error.Code != MethodNotFound {
		t.Errorf("Expected MethodNotFound, got %+v", response)
	}
}

func TestNotificationsGetNoResponse(t *testing.T) {
	server := newTestMCPServer(t, &fakeMarket{})

	for _, method := range []string{"notifications/initialized", "notifications/cancelled", "notifications/other"} {
		msg := NewNotificationMessage(method, nil)
		if response := server.handleMessage(context.Background(), msg); response != nil {
			t.Errorf("%s should not get a response, got %+v", method, response)
		}
	}
}

func TestInvalidJSONRPCVersion(t *testing.T) {
	server := newTestMCPServer(t, &fakeMarket{})

	response := server.handleMessage(context.Background(), &MCPMessage{Jsonrpc: "1.0", Id: 1, Method: "ping"})
	if response == nil || response.Error == nil || response.Error.Code != InvalidRequest {
		t.Errorf("Expected InvalidRequest, got %+v", response)
	}
}

func TestServe(t *testing.T) {
	market := &fakeMarket{quote: &alphavantage.StockQuote{Symbol: "IBM", Price: "190.00"}}
	server := newTestMCPServer(t, market)

	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18"}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`{not json`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"get_stock_quote","arguments":{"symbol":"IBM"}}}`,
		`[{"jsonrpc":"2.0","id":3,"method":"ping"},{"jsonrpc":"2.0","method":"notifications/initialized"}]`,
	}, "\n") + "\n"

	stdout := &bytes.Buffer{}
	server.SetStdin(strings.NewReader(input))
	server.SetStdout(stdout)

	if err := server.Serve(context.Background()); err != nil {
		t.Fatalf("Serve should return nil on EOF, got %v", err)
	}

	lines := strings.Split(strings.TrimRight(stdout.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected 4 output lines, got %d:\n%s", len(lines), stdout.String())
	}

	for i, line := range lines {
		if !json.Valid([]byte(line)) {
			t.Errorf("line %d is not JSON: %s", i, line)
		}
	}

	var parseErr MCPMessage
	_ = json.Unmarshal([]byte(lines[1]), &parseErr)
	if parseErr.Error == nil || parseErr.Error.Code != ParseError {
		t.Errorf("Expected parse error on line 2, got %s", lines[1])
	}
	if !strings.Contains(lines[1], `"id":null`) {
		t.Errorf("Parse error should carry a null id: %s", lines[1])
	}

	if !strings.Contains(lines[2], `"isError":false`) || !strings.Contains(lines[2], "190.00") {
		t.Errorf("Unexpected tool call line: %s", lines[2])
	}

	var batch []MCPMessage
	if err := json.Unmarshal([]byte(lines[3]), &batch); err != nil || len(batch) != 1 {
		t.Errorf("Expected a one-element batch response, got %s", lines[3])
	}
}

func TestServe_ContextCancel(t *testing.T) {
	server := newTestMCPServer(t, &fakeMarket{})

	pr, pw := io.Pipe()
	defer func() { _ = pw.Close() }()
	server.SetStdin(pr)
	server.SetStdout(io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()

	cancel()

	select {
	case err := <-done:
		if !stderrors.Is(err, context.Canceled) {
			t.Errorf("Serve error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop after cancel")
	}
}

func TestServe_MessageTooLarge(t *testing.T) {
	server := newTestMCPServer(t, &fakeMarket{})

	server.SetStdin(strings.NewReader(strings.Repeat("x", MaxMessageSize+10) + "\n"))
	server.SetStdout(io.Discard)

	if err := server.Serve(context.Background()); err == nil {
		t.Error("Expected an error for an oversized message")
	}
}

func postMCP(t *testing.T, url, session, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.Header.Set(SessionHeader, session)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHTTPHandler(t *testing.T) {
	server := newTestMCPServer(t, &fakeMarket{})
	ts := httptest.NewServer(server.HTTPHandler())
	defer ts.Close()

	// initialize assigns a session
	resp := postMCP(t, ts.URL, "", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26"}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("initialize status = %d", resp.StatusCode)
	}
	session := resp.Header.Get(SessionHeader)
	if session == "" {
		t.Fatal("initialize should assign a session id")
	}
	if server.ActiveSessions() != 1 {
		t.Errorf("ActiveSessions = %d, want 1", server.ActiveSessions())
	}

	// notifications are accepted without a body
	resp = postMCP(t, ts.URL, session, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("notification status = %d, want 202", resp.StatusCode)
	}

	// batches return arrays
	resp = postMCP(t, ts.URL, session, `[{"jsonrpc":"2.0","id":2,"method":"ping"},{"jsonrpc":"2.0","id":3,"method":"tools/list"}]`)
	var batch []MCPMessage
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil || len(batch) != 2 {
		t.Errorf("batch decode err=%v len=%d", err, len(batch))
	}

	// unknown sessions are rejected
	resp = postMCP(t, ts.URL, "no-such-session", `{"jsonrpc":"2.0","id":4,"method":"ping"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want 404", resp.StatusCode)
	}

	// malformed bodies are parse errors
	resp = postMCP(t, ts.URL, session, `{oops`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("parse error status = %d, want 400", resp.StatusCode)
	}

	// GET is not supported
	getResp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_ = getResp.Body.Close()
	if getResp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", getResp.StatusCode)
	}

	// DELETE ends the session once
	for i, want := range []int{http.StatusNoContent, http.StatusNotFound} {
		req, _ := http.NewRequest(http.MethodDelete, ts.URL, nil)
		req.Header.Set(SessionHeader, session)
		delResp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("DELETE: %v", err)
		}
		_ = delResp.Body.Close()
		if delResp.StatusCode != want {
			t.Errorf("DELETE %d status = %d, want %d", i, delResp.StatusCode, want)
		}
	}
}

func TestHTTPHandler_BodyTooLarge(t *testing.T) {
	server := newTestMCPServer(t, &fakeMarket{})
	ts := httptest.NewServer(server.HTTPHandler())
	defer ts.Close()

	resp := postMCP(t, ts.URL, "", `{"jsonrpc":"2.0","id":1,"method":"ping","params":{"pad":"`+strings.Repeat("x", MaxMessageSize)+`"}}`)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", resp.StatusCode)
	}
}

func TestHTTPHandler_IdleSessionsExpire(t *testing.T) {
	server := newTestMCPServer(t, &fakeMarket{})
	now := testNow
	server.now = func() time.Time { return now }
	handler := server.HTTPHandler()

	post := func(session, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		if session != "" {
			req.Header.Set(SessionHeader, session)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}
	initialize := func() string {
		w := post("", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
		if w.Code != http.StatusOK {
			t.Fatalf("initialize status = %d", w.Code)
		}
		return w.Header().Get(SessionHeader)
	}

	active := initialize()
	for i := 0; i < 500; i++ {
		initialize()
	}
	if got := server.ActiveSessions(); got != 501 {
		t.Fatalf("ActiveSessions = %d, want 501", got)
	}

	// a request keeps its session alive
	now = now.Add(20 * time.Minute)
	if w := post(active, `{"jsonrpc":"2.0","id":2,"method":"ping"}`); w.Code != http.StatusOK {
		t.Fatalf("ping status = %d, want 200", w.Code)
	}

	now = now.Add(SessionIdleTimeout - 10*time.Minute)
	if removed := server.sessions.sweep(now); removed != 500 {
		t.Errorf("sweep removed %d, want 500", removed)
	}
	if got := server.ActiveSessions(); got != 1 {
		t.Errorf("ActiveSessions after sweep = %d, want 1", got)
	}

	// an idle session is gone on its next request even before a sweep
	now = now.Add(30 * 24 * time.Hour)
	if w := post(active, `{"jsonrpc":"2.0","id":3,"method":"ping"}`); w.Code != http.StatusNotFound {
		t.Errorf("expired session status = %d, want 404", w.Code)
	}
	if got := server.ActiveSessions(); got != 0 {
		t.Errorf("ActiveSessions = %d, want 0", got)
	}
}
