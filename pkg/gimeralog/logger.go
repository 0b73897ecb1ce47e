// Package gimeralog provides structured JSON logging for apply-engine
// runs, plus a colored stderr writer for user-facing error/warning
// output. The JSON-file-per-repo convention (one log entry per line,
// file-only, no console clutter from the structured log) follows the
// teacher's pkg/logging.NewRepoLogger; the colored stderr output
// follows abcxyz-abc's color.New(...).SprintFunc() convention.
package gimeralog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fatih/color"

	"github.com/gimera-go/gimera/pkg/envtoggle"
)

// Logger pairs a file-backed structured logger with colored stderr
// output for messages the operator should see directly.
type Logger struct {
	slog  *slog.Logger
	quiet bool
}

// New creates a logger that writes JSON lines to
// <repoPath>/.gimera/logs/operations.log, at slog.LevelDebug when
// GIMERA_VERBOSE is set, else slog.LevelInfo.
func New(repoPath string) (*Logger, error) {
	logsDir := filepath.Join(repoPath, ".gimera", "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	logFile, err := os.OpenFile(filepath.Join(logsDir, "operations.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	level := slog.LevelInfo
	if envtoggle.Verbose() {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: level})

	return &Logger{slog: slog.New(handler), quiet: envtoggle.Quiet()}, nil
}

// Discard returns a logger that writes structured entries nowhere,
// used by callers (tests, one-shot dry-run invocations) that don't
// need a persisted log.
func Discard() *Logger {
	return &Logger{slog: slog.New(slog.NewJSONHandler(discardWriter{}, nil)), quiet: true}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func (l *Logger) Debug(msg string, args ...interface{}) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...interface{})  { l.slog.Info(msg, args...) }

// Warn logs the structured entry and, unless quiet, prints a yellow
// warning line to stderr.
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.slog.Warn(msg, args...)
	if !l.quiet {
		color.New(color.FgYellow).Fprintf(os.Stderr, "warning: %s\n", msg)
	}
}

// Error logs the structured entry and always prints a red error line
// to stderr, regardless of quiet, since a fatal problem must be seen.
func (l *Logger) Error(msg string, args ...interface{}) {
	l.slog.Error(msg, args...)
	color.New(color.FgRed).Fprintf(os.Stderr, "error: %s\n", msg)
}
