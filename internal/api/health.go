package api

import (
	"fmt"
	"net/http"

	"avmcp/internal/alphavantage"
)

// ServiceName is reported by the health check.
const ServiceName = "Alpha Vantage MCP"

// UnhealthyResponse is returned when the health probe itself fails.
type UnhealthyResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// handleHealth reports liveness. A missing API key reports degraded.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
		return
	}

	response, err := s.probeHealth()
	if err != nil {
		s.logger.Error("Health check failed", "error", err.Error())
		WriteJSON(w, UnhealthyResponse{Status: "unhealthy", Error: err.Error()}, http.StatusInternalServerError)
		return
	}

	WriteJSON(w, response, http.StatusOK)
}

func (s *Server) probeHealth() (resp *alphavantage.HealthResponse, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			resp = nil
			err = fmt.Errorf("%v", rec)
		}
	}()

	status := "healthy"
	if s.deps.Health == nil || !s.deps.Health.HasAPIKey() {
		status = "degraded"
	}

	return &alphavantage.HealthResponse{
		Status:    status,
		Service:   ServiceName,
		Timestamp: s.now().UTC(),
	}, nil
}
