package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// MaxMessageSize is the maximum size for a single MCP message (1MB).
const MaxMessageSize = 1024 * 1024

// readLine returns the next non-empty line from stdin.
func (s *MCPServer) readLine() ([]byte, error) {
	// Lazily initialize the scanner on first use
	if s.scanner == nil {
		s.scanner = bufio.NewScanner(s.stdin)
		s.scanner.Buffer(make([]byte, 64*1024), MaxMessageSize)
	}

	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(skipSpace(line)) == 0 {
			continue
		}
		s.logger.Debug("Received message", "bytes", len(line))
		// The scanner reuses its buffer.
		return append([]byte(nil), line...), nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading from stdin: %w", err)
	}
	return nil, io.EOF
}

// processLine handles one stdio line and returns what to write back, if anything.
func (s *MCPServer) processLine(ctx context.Context, line []byte) interface{} {
	msgs, isBatch, err := decodePayload(line)
	if err != nil {
		s.logger.Warn("Failed to parse message", "error", err.Error())
		return NewErrorMessage(nil, ParseError, fmt.Sprintf("Parse error: %v", err), nil)
	}

	responses := s.handleBatch(ctx, msgs)
	if isBatch {
		if len(msgs) == 0 {
			return NewErrorMessage(nil, InvalidRequest, "Invalid Request: empty batch", nil)
		}
		if len(responses) == 0 {
			return nil
		}
		return responses
	}
	if len(responses) == 0 {
		return nil
	}
	return responses[0]
}

// writeMessage writes a JSON-RPC message (or batch) as a single line.
func (s *MCPServer) writeMessage(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("error marshaling JSON-RPC message: %w", err)
	}

	s.logger.Debug("Sending message", "bytes", len(data))

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := fmt.Fprintf(s.stdout, "%s\n", data); err != nil {
		return fmt.Errorf("error writing to stdout: %w", err)
	}

	return nil
}
