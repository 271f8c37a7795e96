// Package slogutil provides the slog handlers and logger constructors used by avmcp.
package slogutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// HumanHandler formats records as a single readable line:
// TIMESTAMP [level] Message | key=value key=value
//
// Group attributes are flattened to dotted keys and values under
// sensitive keys (see IsSensitiveKey) are written as RedactedValue.
type HumanHandler struct {
	w     io.Writer
	level slog.Leveler

	// prefix is the open group path, "" or ending in ".".
	prefix string
	// bound holds WithAttrs attributes already formatted as " key=value".
	bound []byte

	mu *sync.Mutex
}

// NewHumanHandler creates a new human-readable log handler.
func NewHumanHandler(w io.Writer, opts *slog.HandlerOptions) *HumanHandler {
	var level slog.Leveler = slog.LevelInfo
	if opts != nil && opts.Level != nil {
		level = opts.Level
	}
	return &HumanHandler{
		w:     w,
		level: level,
		mu:    &sync.Mutex{},
	}
}

// Enabled reports whether the handler handles records at the given level.
func (h *HumanHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle formats and writes the log record.
func (h *HumanHandler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, 256)
	if !r.Time.IsZero() {
		buf = r.Time.UTC().AppendFormat(buf, time.RFC3339)
		buf = append(buf, ' ')
	}
	buf = append(buf, '[')
	buf = append(buf, levelString(r.Level)...)
	buf = append(buf, "] "...)
	buf = append(buf, r.Message...)

	attrs := h.bound
	if r.NumAttrs() > 0 {
		attrs = append(make([]byte, 0, len(h.bound)+64), h.bound...)
		r.Attrs(func(a slog.Attr) bool {
			attrs = appendAttr(attrs, h.prefix, a)
			return true
		})
	}
	if len(attrs) > 0 {
		buf = append(buf, " |"...)
		buf = append(buf, attrs...)
	}
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

// WithAttrs returns a handler that writes attrs on every record.
func (h *HumanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	bound := append(make([]byte, 0, len(h.bound)+32*len(attrs)), h.bound...)
	for _, a := range attrs {
		bound = appendAttr(bound, h.prefix, a)
	}
	clone := *h
	clone.bound = bound
	return &clone
}

// WithGroup returns a handler that nests later attributes under name.
func (h *HumanHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

// appendAttr writes " key=value" for a, flattening groups under prefix.
func appendAttr(buf []byte, prefix string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return buf
	}

	if a.Value.Kind() == slog.KindGroup {
		members := a.Value.Group()
		if len(members) == 0 {
			return buf
		}
		if a.Key == "" {
			for _, m := range members {
				buf = appendAttr(buf, prefix, m)
			}
			return buf
		}
		if IsSensitiveKey(a.Key) {
			return appendPair(buf, prefix+a.Key, RedactedValue)
		}
		for _, m := range members {
			buf = appendAttr(buf, prefix+a.Key+".", m)
		}
		return buf
	}

	if a.Key == "" {
		return buf
	}
	if IsSensitiveKey(a.Key) {
		return appendPair(buf, prefix+a.Key, RedactedValue)
	}
	return appendPair(buf, prefix+a.Key, formatValue(a.Value))
}

func appendPair(buf []byte, key, value string) []byte {
	buf = append(buf, ' ')
	buf = append(buf, key...)
	buf = append(buf, '=')
	return append(buf, value...)
}

func levelString(level slog.Level) string {
	switch {
	case level < slog.LevelInfo:
		return "debug"
	case level < slog.LevelWarn:
		return "info"
	case level < slog.LevelError:
		return "warn"
	default:
		return "error"
	}
}

func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindDuration:
		return v.Duration().String()
	default:
		return fmt.Sprint(v.Any())
	}
}
