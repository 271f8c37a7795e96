// Package mcp implements a Model Context Protocol server exposing Alpha Vantage tools.
package mcp

import "encoding/json"

// MCPMessage represents a JSON-RPC 2.0 message for MCP
type MCPMessage struct {
	Jsonrpc string      `json:"jsonrpc"`
	Id      interface{} `json:"id,omitempty"`
	Method  string      `json:"method,omitempty"`
	Params  interface{} `json:"params,omitempty"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MarshalJSON always emits "id" on responses, as null when unknown.
func (m MCPMessage) MarshalJSON() ([]byte, error) {
	type plain MCPMessage
	if m.Method != "" || (m.Result == nil && m.Error == nil) {
		return json.Marshal(plain(m))
	}
	return json.Marshal(struct {
		Jsonrpc string      `json:"jsonrpc"`
		Id      interface{} `json:"id"`
		Result  interface{} `json:"result,omitempty"`
		Error   *MCPError   `json:"error,omitempty"`
	}{m.Jsonrpc, m.Id, m.Result, m.Error})
}

// MCPError represents a JSON-RPC 2.0 error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface
func (e *MCPError) Error() string {
	return e.Message
}

// Standard JSON-RPC error codes
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// NewErrorMessage creates a new error response message
func NewErrorMessage(id interface{}, code int, message string, data interface{}) *MCPMessage {
	return &MCPMessage{
		Jsonrpc: "2.0",
		Id:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// NewResultMessage creates a new result response message
func NewResultMessage(id interface{}, result interface{}) *MCPMessage {
	return &MCPMessage{
		Jsonrpc: "2.0",
		Id:      id,
		Result:  result,
	}
}

// NewNotificationMessage creates a new notification message (no id)
func NewNotificationMessage(method string, params interface{}) *MCPMessage {
	return &MCPMessage{
		Jsonrpc: "2.0",
		Method:  method,
		Params:  params,
	}
}

// IsRequest checks if the message is a request
func (m *MCPMessage) IsRequest() bool {
	return m.Method != "" && m.Id != nil
}

// IsNotification checks if the message is a notification
func (m *MCPMessage) IsNotification() bool {
	return m.Method != "" && m.Id == nil
}

// IsResponse checks if the message is a response (must have id and either result or error)
func (m *MCPMessage) IsResponse() bool {
	return m.Method == "" && m.Id != nil && (m.Result != nil || m.Error != nil)
}

// decodePayload parses a single message or a batch array.
func decodePayload(data []byte) ([]*MCPMessage, bool, error) {
	trimmed := skipSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []*MCPMessage
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, true, err
		}
		return batch, true, nil
	}

	var msg MCPMessage
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return nil, false, err
	}
	return []*MCPMessage{&msg}, false, nil
}

func skipSpace(b []byte) []byte {
	for len(b) > 0 {
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			b = b[1:]
		default:
			return b
		}
	}
	return b
}
