package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"avmcp/internal/api"
	"avmcp/internal/mcp"
	"avmcp/internal/version"
)

const shutdownTimeout = 10 * time.Second

var (
	servePort int
	serveHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server over HTTP",
	Long: `Start the streamable HTTP transport.

Endpoints:
  POST   /mcp      JSON-RPC requests, notifications and batches
  DELETE /mcp      End a session (Mcp-Session-Id header)
  GET    /health   Liveness; "degraded" when no API key is configured
  GET    /version  Build information

Bearer authentication is enabled when server.authTokenHashes is set
(see 'avmcp token create').`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default: server.port, 8000)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default: server.host, 127.0.0.1)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	host, port := a.cfg.Server.Host, a.cfg.Server.Port
	if cmd.Flags().Changed("host") {
		host = serveHost
	}
	if cmd.Flags().Changed("port") {
		if servePort < 1 || servePort > 65535 {
			return fmt.Errorf("invalid --port %d", servePort)
		}
		port = servePort
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	mcpServer := mcp.NewMCPServer(version.Version, a.client, a.logger)
	server, err := api.NewServer(addr, api.Deps{MCP: mcpServer, Health: a.client}, a.logger, api.ServerConfigFrom(a.cfg.Server))
	if err != nil {
		return err
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	serverErr := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "avmcp listening on http://%s/mcp\n", addr)
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			a.logger.Error("Server error", "error", err.Error())
			return err
		}
	case sig := <-shutdown:
		a.logger.Info("Received shutdown signal", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			a.logger.Error("Error during shutdown", "error", err.Error())
			return err
		}
		a.logger.Info("Server stopped by user")
	}

	return nil
}
