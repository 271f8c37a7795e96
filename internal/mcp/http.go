package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionHeader carries the MCP session id over HTTP.
const SessionHeader = "Mcp-Session-Id"

const (
	// SessionIdleTimeout is how long a session survives without requests.
	SessionIdleTimeout   = 30 * time.Minute
	sessionSweepInterval = 5 * time.Minute
)

type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]time.Time
	idle     time.Duration
}

func newSessionStore(idle time.Duration) *sessionStore {
	return &sessionStore{sessions: make(map[string]time.Time), idle: idle}
}

func (st *sessionStore) create(now time.Time) string {
	id := uuid.NewString()
	st.mu.Lock()
	st.sessions[id] = now
	st.mu.Unlock()
	return id
}

// touch reports whether id is a live session and records its use.
// An idle session is dropped instead.
func (st *sessionStore) touch(id string, now time.Time) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	last, ok := st.sessions[id]
	if !ok {
		return false
	}
	if now.Sub(last) > st.idle {
		delete(st.sessions, id)
		return false
	}
	st.sessions[id] = now
	return true
}

func (st *sessionStore) remove(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; !ok {
		return false
	}
	delete(st.sessions, id)
	return true
}

// sweep drops every session idle longer than the timeout and returns how many went.
func (st *sessionStore) sweep(now time.Time) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	removed := 0
	for id, last := range st.sessions {
		if now.Sub(last) > st.idle {
			delete(st.sessions, id)
			removed++
		}
	}
	return removed
}

func (st *sessionStore) count() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// StartSessionCleanup expires idle HTTP sessions in the background until ctx is done.
func (s *MCPServer) StartSessionCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sessionSweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.sessions.sweep(s.now()); n > 0 {
					s.logger.Debug("Expired idle MCP sessions", "removed", n, "active", s.sessions.count())
				}
			}
		}
	}()
}

// ActiveSessions returns the number of open HTTP sessions.
func (s *MCPServer) ActiveSessions() int {
	return s.sessions.count()
}

// HTTPHandler serves the streamable HTTP transport: JSON-RPC over POST,
// session teardown over DELETE.
func (s *MCPServer) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			s.handleHTTPPost(w, r)
		case http.MethodDelete:
			s.handleHTTPDelete(w, r)
		default:
			w.Header().Set("Allow", "POST, DELETE")
			writeHTTPError(w, http.StatusMethodNotAllowed, nil, InvalidRequest, "Method not allowed")
		}
	})
}

func (s *MCPServer) handleHTTPPost(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(SessionHeader)
	if sessionID != "" && !s.sessions.touch(sessionID, s.now()) {
		writeHTTPError(w, http.StatusNotFound, nil, InvalidRequest, "Session not found")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxMessageSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			writeHTTPError(w, http.StatusRequestEntityTooLarge, nil, InvalidRequest, "Request body too large")
			return
		}
		writeHTTPError(w, http.StatusBadRequest, nil, ParseError, "Failed to read request body")
		return
	}

	msgs, isBatch, err := decodePayload(body)
	if err != nil {
		writeHTTPError(w, http.StatusBadRequest, nil, ParseError, fmt.Sprintf("Parse error: %v", err))
		return
	}
	if isBatch && len(msgs) == 0 {
		writeHTTPError(w, http.StatusBadRequest, nil, InvalidRequest, "Invalid Request: empty batch")
		return
	}

	responses := s.handleBatch(r.Context(), msgs)

	if sessionID == "" && initializedOK(msgs, responses) {
		sessionID = s.sessions.create(s.now())
		s.logger.Info("MCP session created", "session", sessionID)
	}
	if sessionID != "" {
		w.Header().Set(SessionHeader, sessionID)
	}

	if len(responses) == 0 {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	var payload interface{} = responses[0]
	if isBatch {
		payload = responses
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *MCPServer) handleHTTPDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		writeHTTPError(w, http.StatusBadRequest, nil, InvalidRequest, "Missing "+SessionHeader+" header")
		return
	}
	if !s.sessions.remove(sessionID) {
		writeHTTPError(w, http.StatusNotFound, nil, InvalidRequest, "Session not found")
		return
	}
	s.logger.Info("MCP session closed", "session", sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// initializedOK reports whether msgs held an initialize request that got a result.
func initializedOK(msgs, responses []*MCPMessage) bool {
	for _, m := range msgs {
		if m == nil || m.Method != "initialize" || !m.IsRequest() {
			continue
		}
		for _, r := range responses {
			if r.Error == nil && r.Result != nil && fmt.Sprint(r.Id) == fmt.Sprint(m.Id) {
				return true
			}
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeHTTPError(w http.ResponseWriter, status int, id interface{}, code int, message string) {
	writeJSON(w, status, NewErrorMessage(id, code, message, nil))
}
