package mcp

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"avmcp/internal/alphavantage"
)

// MarketData is the upstream the tools call.
type MarketData interface {
	GetQuote(ctx context.Context, symbol string) (*alphavantage.StockQuote, error)
	GetDailyPrices(ctx context.Context, symbol, outputSize string) (*alphavantage.DailyPrices, error)
	SearchSymbols(ctx context.Context, keywords string) ([]alphavantage.SymbolMatch, error)
}

// MCPServer represents the MCP server
type MCPServer struct {
	stdin   io.Reader
	stdout  io.Writer
	scanner *bufio.Scanner
	logger  *slog.Logger
	version string
	tools   map[string]ToolHandler
	market  MarketData
	now     func() time.Time

	mu              sync.RWMutex
	protocolVersion string

	// Serializes writes to stdout.
	writeMu sync.Mutex

	sessions *sessionStore
}

// NewMCPServer creates a new MCP server backed by market.
func NewMCPServer(version string, market MarketData, logger *slog.Logger) *MCPServer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	server := &MCPServer{
		stdin:    os.Stdin,
		stdout:   os.Stdout,
		logger:   logger,
		version:  version,
		tools:    make(map[string]ToolHandler),
		market:   market,
		now:      time.Now,
		sessions: newSessionStore(SessionIdleTimeout),
	}

	server.RegisterTools()

	return server
}

// ProtocolVersion returns the version negotiated by the last initialize.
func (s *MCPServer) ProtocolVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.protocolVersion
}

// Serve processes newline-delimited messages from stdin until EOF or until
// ctx is cancelled. EOF is a clean shutdown and returns nil.
func (s *MCPServer) Serve(ctx context.Context) error {
	s.logger.Info("MCP server starting",
		"version", s.version,
		"transport", "stdio",
	)

	lines := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		for {
			line, err := s.readLine()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("MCP server shutting down", "reason", ctx.Err().Error())
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				err := <-readErr
				if err == io.EOF {
					s.logger.Info("MCP server shutting down (EOF)")
					return nil
				}
				s.logger.Error("Error reading message", "error", err.Error())
				return err
			}

			if response := s.processLine(ctx, line); response != nil {
				if err := s.writeMessage(response); err != nil {
					s.logger.Error("Error writing response",
						"error", err.Error(),
					)
				}
			}
		}
	}
}

// SetStdin sets the input stream (for testing)
func (s *MCPServer) SetStdin(r io.Reader) {
	s.stdin = r
	s.scanner = nil
}

// SetStdout sets the output stream (for testing)
func (s *MCPServer) SetStdout(w io.Writer) {
	s.stdout = w
}
