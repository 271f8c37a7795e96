package slogutil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestHumanHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)

	logger.Info("Fetching quote", "symbol", "AAPL", "attempt", 2)

	output := buf.String()

	// TIMESTAMP [level] Message | key=value
	for _, want := range []string{"[info]", "Fetching quote", " | ", "symbol=AAPL", "attempt=2"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
	if !strings.HasSuffix(output, "\n") {
		t.Error("each record should end with a newline")
	}
}

func TestHumanHandler_Levels(t *testing.T) {
	tests := []struct {
		logFunc  func(*slog.Logger)
		expected string
	}{
		{func(l *slog.Logger) { l.Debug("debug") }, "[debug]"},
		{func(l *slog.Logger) { l.Info("info") }, "[info]"},
		{func(l *slog.Logger) { l.Warn("warn") }, "[warn]"},
		{func(l *slog.Logger) { l.Error("error") }, "[error]"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(&buf, slog.LevelDebug)
			tt.logFunc(logger)

			if !strings.Contains(buf.String(), tt.expected) {
				t.Errorf("expected %s in output, got: %s", tt.expected, buf.String())
			}
		})
	}
}

func TestHumanHandler_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelWarn)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()
	if strings.Contains(output, "debug message") || strings.Contains(output, "info message") {
		t.Errorf("debug/info should be filtered, got: %s", output)
	}
	if !strings.Contains(output, "warn message") || !strings.Contains(output, "error message") {
		t.Errorf("warn/error should be included, got: %s", output)
	}
}

func TestHumanHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo).
		With("component", "client").
		WithGroup("request")

	logger.Info("sent", "function", "GLOBAL_QUOTE")

	output := buf.String()
	if !strings.Contains(output, "component=client") {
		t.Errorf("expected pre-set attribute, got: %s", output)
	}
	if !strings.Contains(output, "request.function=GLOBAL_QUOTE") {
		t.Errorf("expected grouped key, got: %s", output)
	}
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := LevelFromString(tt.input); got != tt.expected {
				t.Errorf("LevelFromString(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNewDiscardLogger(t *testing.T) {
	logger := NewDiscardLogger()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Error("discard logger should not be enabled for any level")
	}
	logger.Error("error")
}

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, slog.LevelInfo)
	logger.Info("health", "status", "degraded")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["msg"] != "health" || entry["status"] != "degraded" {
		t.Errorf("unexpected entry: %v", entry)
	}
	ts, _ := entry["time"].(string)
	if !strings.HasSuffix(ts, "Z") {
		t.Errorf("time should be UTC, got %q", ts)
	}
}

func TestTeeHandler(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h1 := NewHumanHandler(&buf1, &slog.HandlerOptions{Level: slog.LevelInfo})
	h2 := NewHumanHandler(&buf2, &slog.HandlerOptions{Level: slog.LevelWarn})

	logger := slog.New(NewTeeHandler(h1, h2))
	logger.Info("info message")
	logger.Warn("warn message")

	if !strings.Contains(buf1.String(), "info message") || !strings.Contains(buf1.String(), "warn message") {
		t.Errorf("buf1 should contain both messages, got: %s", buf1.String())
	}
	if strings.Contains(buf2.String(), "info message") {
		t.Error("buf2 should not contain info message")
	}
	if !strings.Contains(buf2.String(), "warn message") {
		t.Error("buf2 should contain warn message")
	}
}

func TestIsSensitiveKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"apikey", true},
		{"api_key", true},
		{"apiKey", true},
		{"ALPHA_VANTAGE_API_KEY", true},
		{"token", true},
		{"authToken", true},
		{"Authorization", true},
		{"password", true},
		{"client-secret", true},
		{"tokenMasked", false},
		{"symbol", false},
		{"function", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := IsSensitiveKey(tt.key); got != tt.want {
				t.Errorf("IsSensitiveKey(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestHumanHandler_Redaction(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo).With("token", "avmcp_sk_bound")

	logger.Info("Making request",
		"symbol", "IBM",
		"apikey", "live-key-123",
		slog.Group("headers", "Authorization", "Bearer avmcp_sk_abc", "Accept", "application/json"),
		slog.Group("secret", "value", "nested-secret"),
	)

	output := buf.String()
	for _, leaked := range []string{"live-key-123", "avmcp_sk_bound", "avmcp_sk_abc", "nested-secret"} {
		if strings.Contains(output, leaked) {
			t.Errorf("output leaked %q: %s", leaked, output)
		}
	}
	for _, want := range []string{
		"symbol=IBM",
		"apikey=" + RedactedValue,
		"token=" + RedactedValue,
		"headers.Authorization=" + RedactedValue,
		"headers.Accept=application/json",
		"secret=" + RedactedValue,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestHumanHandler_GroupAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo).WithGroup("cache")

	logger.Info("stats", slog.Group("entries", "quote", 2, "daily", 1), slog.Group("empty"))

	output := buf.String()
	for _, want := range []string{"cache.entries.quote=2", "cache.entries.daily=1"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
	if strings.Contains(output, "empty") {
		t.Errorf("empty groups should be omitted, got: %s", output)
	}
}

func TestNewJSONLogger_Redaction(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, slog.LevelInfo)
	logger.Warn("Rejected bearer token", "authorization", "Bearer avmcp_sk_abc", "remote", "192.0.2.1")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["authorization"] != RedactedValue {
		t.Errorf("authorization = %v, want %s", entry["authorization"], RedactedValue)
	}
	if entry["remote"] != "192.0.2.1" {
		t.Errorf("remote = %v, want 192.0.2.1", entry["remote"])
	}
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error {
	return errors.New("disk full")
}

func TestTeeHandler_KeepsWritingAfterFailure(t *testing.T) {
	var buf bytes.Buffer
	broken := failingHandler{NewHumanHandler(io.Discard, nil)}
	tee := NewTeeHandler(broken, NewHumanHandler(&buf, nil))

	err := tee.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "still logged", 0))
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("expected joined error, got %v", err)
	}
	if !strings.Contains(buf.String(), "still logged") {
		t.Errorf("healthy handler should still receive the record, got: %s", buf.String())
	}
}
