package mcp

import (
	"context"
	"fmt"
)

// handleBatch processes each message in order and collects the responses.
func (s *MCPServer) handleBatch(ctx context.Context, msgs []*MCPMessage) []*MCPMessage {
	responses := make([]*MCPMessage, 0, len(msgs))
	for _, msg := range msgs {
		if resp := s.handleMessage(ctx, msg); resp != nil {
			responses = append(responses, resp)
		}
	}
	return responses
}

// handleMessage processes an incoming MCP message and returns a response
func (s *MCPServer) handleMessage(ctx context.Context, msg *MCPMessage) *MCPMessage {
	if msg == nil {
		return NewErrorMessage(nil, InvalidRequest, "Invalid Request", nil)
	}

	// Responses from the client; this server sends no requests of its own
	if msg.IsResponse() {
		s.logger.Debug("Ignoring client response", "id", msg.Id)
		return nil
	}

	if msg.Jsonrpc != "2.0" {
		return NewErrorMessage(msg.Id, InvalidRequest, "Invalid Request: jsonrpc must be \"2.0\"", nil)
	}

	if msg.IsRequest() {
		return s.handleRequest(ctx, msg)
	}

	if msg.IsNotification() {
		s.handleNotification(msg)
		return nil
	}

	return NewErrorMessage(msg.Id, InvalidRequest, "Invalid message: not a request or notification", nil)
}

// handleRequest handles a JSON-RPC request
func (s *MCPServer) handleRequest(ctx context.Context, msg *MCPMessage) *MCPMessage {
	s.logger.Debug("Handling request",
		"method", msg.Method,
		"id", msg.Id,
	)

	switch msg.Method {
	case "initialize":
		return s.handleInitializeRequest(msg)
	case "ping":
		return NewResultMessage(msg.Id, map[string]interface{}{})
	case "tools/list":
		return NewResultMessage(msg.Id, map[string]interface{}{
			"tools": s.GetToolDefinitions(),
		})
	case "tools/call":
		return s.handleCallToolRequest(ctx, msg)
	default:
		return NewErrorMessage(msg.Id, MethodNotFound, fmt.Sprintf("Method not found: %s", msg.Method), nil)
	}
}

// handleNotification handles a JSON-RPC notification
func (s *MCPServer) handleNotification(msg *MCPMessage) {
	switch msg.Method {
	case "notifications/initialized":
		s.logger.Info("Client initialized")
	case "notifications/cancelled":
		s.logger.Debug("Client cancelled request", "params", msg.Params)
	default:
		s.logger.Debug("Unknown notification",
			"method", msg.Method,
		)
	}
}

// handleInitializeRequest handles the initialize request
func (s *MCPServer) handleInitializeRequest(msg *MCPMessage) *MCPMessage {
	params, ok := msg.Params.(map[string]interface{})
	if !ok {
		params = make(map[string]interface{})
	}

	result, err := s.handleInitialize(params)
	if err != nil {
		return NewErrorMessage(msg.Id, InternalError, err.Error(), nil)
	}

	return NewResultMessage(msg.Id, result)
}

// handleCallToolRequest handles the tools/call request
func (s *MCPServer) handleCallToolRequest(ctx context.Context, msg *MCPMessage) *MCPMessage {
	params, ok := msg.Params.(map[string]interface{})
	if !ok {
		return NewErrorMessage(msg.Id, InvalidParams, "Invalid params: expected object", nil)
	}

	toolName, ok := params["name"].(string)
	if !ok || toolName == "" {
		return NewErrorMessage(msg.Id, InvalidParams, "Invalid params: missing tool name", nil)
	}

	handler, exists := s.tools[toolName]
	if !exists {
		return NewErrorMessage(msg.Id, InvalidParams, fmt.Sprintf("Unknown tool: %s", toolName), nil)
	}

	args, ok := params["arguments"].(map[string]interface{})
	if !ok {
		args = make(map[string]interface{})
	}

	return NewResultMessage(msg.Id, handler(ctx, args))
}
