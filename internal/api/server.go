// Package api serves the MCP streamable HTTP transport alongside health and
// version endpoints.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"avmcp/internal/auth"
	"avmcp/internal/config"
	"avmcp/internal/mcp"
)

// KeyStatus reports whether the upstream API key is configured.
type KeyStatus interface {
	HasAPIKey() bool
}

// Deps are the components the HTTP server fronts.
type Deps struct {
	MCP    *mcp.MCPServer
	Health KeyStatus
}

// ServerConfig configures authentication and rate limiting.
type ServerConfig struct {
	AuthTokenHashes []string
	RateLimit       auth.RateLimitConfig
}

// DefaultServerConfig returns a config with auth and rate limiting disabled.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{RateLimit: auth.DefaultRateLimitConfig()}
}

// ServerConfigFrom converts the server section of the config file.
func ServerConfigFrom(cfg config.ServerConfig) ServerConfig {
	return ServerConfig{
		AuthTokenHashes: cfg.AuthTokenHashes,
		RateLimit:       auth.RateLimitConfigFrom(cfg.RateLimit),
	}
}

// Server represents the HTTP API server
type Server struct {
	router        *http.ServeMux
	server        *http.Server
	addr          string
	logger        *slog.Logger
	deps          Deps
	authenticator *auth.Authenticator
	limiter       *auth.RateLimiter
	now           func() time.Time

	stopCleanup context.CancelFunc
}

// NewServer creates a new HTTP server instance
func NewServer(addr string, deps Deps, logger *slog.Logger, cfg ServerConfig) (*Server, error) {
	if deps.MCP == nil {
		return nil, fmt.Errorf("api: MCP server is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{
		addr:          addr,
		logger:        logger,
		deps:          deps,
		router:        http.NewServeMux(),
		authenticator: auth.NewAuthenticator(cfg.AuthTokenHashes, logger),
		limiter:       auth.NewRateLimiter(cfg.RateLimit, logger),
		now:           time.Now,
	}

	// Register routes
	s.registerRoutes()

	// Create HTTP server with configured router and middleware
	handler := s.applyMiddleware(s.router)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Tool calls can spend several retries upstream.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start starts the HTTP server and blocks until it is shut down.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server",
		"addr", s.addr,
		"auth", s.authenticator.Enabled(),
		"rateLimit", s.limiter.Enabled(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s.stopCleanup = cancel
	s.limiter.StartCleanup(ctx)
	s.deps.MCP.StartSessionCleanup(ctx)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")

	if s.stopCleanup != nil {
		s.stopCleanup()
	}

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("Server shut down successfully")
	return nil
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.Handler.ServeHTTP(w, r)
}

// applyMiddleware wraps the handler with middleware in the correct order
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	// Apply middleware in reverse order (last one wraps first)
	handler = RateLimitMiddleware(s.limiter, s.logger)(handler)
	handler = AuthMiddleware(s.authenticator, s.logger)(handler)
	handler = RecoveryMiddleware(s.logger)(handler)
	handler = LoggingMiddleware(s.logger)(handler)
	handler = RequestIDMiddleware()(handler)
	handler = CORSMiddleware()(handler)
	return handler
}
