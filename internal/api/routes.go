package api

import (
	"net/http"

	"avmcp/internal/mcp"
	"avmcp/internal/version"
)

// MCPPath is where the MCP transport is mounted.
const MCPPath = "/mcp"

// registerRoutes registers all API routes
func (s *Server) registerRoutes() {
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.HandleFunc("/version", s.handleVersion)

	s.router.Handle(MCPPath, s.deps.MCP.HTTPHandler())

	// Root endpoint
	s.router.HandleFunc("/", s.handleRoot)
}

// handleRoot handles requests to the root path
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	// Only handle exact root path
	if r.URL.Path != "/" {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Not found: "+r.URL.Path)
		return
	}

	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
		return
	}

	response := map[string]interface{}{
		"name":    mcp.ServerName,
		"version": version.Version,
		"endpoints": []string{
			"GET /health - Health check",
			"GET /version - Build information",
			"POST /mcp - MCP JSON-RPC (streamable HTTP)",
			"DELETE /mcp - End an MCP session",
		},
	}

	WriteJSON(w, response, http.StatusOK)
}

// VersionResponse describes the running build.
type VersionResponse struct {
	Version          string   `json:"version"`
	Commit           string   `json:"commit"`
	BuildDate        string   `json:"buildDate"`
	ProtocolVersions []string `json:"protocolVersions"`
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
		return
	}

	WriteJSON(w, VersionResponse{
		Version:          version.Version,
		Commit:           version.Commit,
		BuildDate:        version.BuildDate,
		ProtocolVersions: mcp.SupportedProtocolVersions,
	}, http.StatusOK)
}
