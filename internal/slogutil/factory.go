package slogutil

import (
	"io"
	"log/slog"

	"avmcp/internal/config"
)

const bytesPerMB = 1024 * 1024

// FromConfig builds the process logger from the logging section.
// Records always go to console (stderr in practice: stdout carries the
// stdio protocol). When cfg.File is set they are also written to a rotating
// file. The returned closer must be closed on exit; it is never nil.
func FromConfig(cfg config.LoggingConfig, console io.Writer) (*slog.Logger, io.Closer, error) {
	level := LevelFromString(cfg.Level)
	handler := newHandler(cfg.Format, console, level)

	if cfg.File == "" {
		return slog.New(handler), nopCloser{}, nil
	}

	rf, err := OpenRotatingFile(cfg.File, int64(cfg.MaxSizeMB)*bytesPerMB, cfg.MaxBackups)
	if err != nil {
		return slog.New(handler), nopCloser{}, err
	}

	fileHandler := newHandler(cfg.Format, rf, level)
	return slog.New(NewTeeHandler(handler, fileHandler)), rf, nil
}

func newHandler(format string, w io.Writer, level slog.Level) slog.Handler {
	if format == "json" {
		return NewJSONHandler(w, level)
	}
	return NewHumanHandler(w, &slog.HandlerOptions{Level: level})
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
