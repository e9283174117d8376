// Package logging provides structured logging for Stagehand runs.
// It wraps log/slog to produce JSON-formatted logs, written to stderr by
// default or to a file under the project's flow directory when one is
// configured, so a finished run leaves an inspectable trace next to its
// stages.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Log levels accepted by New.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Logger wraps slog with persistent attributes and an optional log file.
type Logger struct {
	*slog.Logger
	file *os.File
}

// New creates a Logger writing JSON logs. If dir is non-empty the log goes
// to {dir}/stagehand.log (the directory is created if needed); otherwise
// to stderr.
func New(dir, level string) (*Logger, error) {
	var writer io.Writer = os.Stderr
	var file *os.File

	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		var err error
		file, err = os.OpenFile(filepath.Join(dir, "stagehand.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writer = file
	}

	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: parseLevel(level)})
	return &Logger{Logger: slog.New(handler), file: file}, nil
}

// Discard returns a Logger that drops everything. Used in tests and as the
// default when callers pass nil.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(io.Discard, nil))}
}

// With returns a Logger carrying additional persistent attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), file: l.file}
}

// Close closes the underlying log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
