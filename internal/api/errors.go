package api

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse represents an HTTP error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, v interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes an error response to the HTTP response writer
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, ErrorResponse{Error: message, Code: code}, status)
}

// InternalError writes a 500 response without leaking the cause.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}
