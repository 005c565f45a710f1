// Package logger provides a minimal slog-based logging wrapper.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Config describes logger settings.
type Config struct {
	Enabled bool
	Level   string
	Stdout  bool
	File    string
}

var (
	mu      sync.RWMutex
	base    *slog.Logger
	enabled = true

	cfg       Config
	logFile   *os.File
	intercept io.Writer // non-nil while the TUI owns the terminal
)

// Init initializes the logger. A relative File is resolved against baseDir.
func Init(c Config, baseDir string) error {
	mu.Lock()
	defer mu.Unlock()

	cfg = c
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	if !c.Enabled {
		enabled = false
		base = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
		return nil
	}

	var initErr error
	if c.File != "" {
		path := expandPath(c.File, baseDir)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("logger: create log dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			initErr = fmt.Errorf("logger: open log file: %w", err)
		} else {
			logFile = f
		}
	}

	rebuild()
	return initErr
}

// Intercept routes console output to w (the TUI log pane). The log file, if
// any, keeps receiving records.
func Intercept(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	intercept = w
	rebuild()
}

// Restore undoes Intercept.
func Restore() {
	mu.Lock()
	defer mu.Unlock()
	intercept = nil
	rebuild()
}

// rebuild must be called with mu held.
func rebuild() {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var writers []io.Writer
	switch {
	case intercept != nil:
		writers = append(writers, intercept)
	case cfg.Stdout:
		writers = append(writers, os.Stderr)
	}
	if logFile != nil {
		writers = append(writers, logFile)
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	base = slog.New(slog.NewTextHandler(io.MultiWriter(writers...), opts))
	enabled = true
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	log(slog.LevelDebug, msg, args...)
}

// Info logs an info message.
func Info(msg string, args ...any) {
	log(slog.LevelInfo, msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	log(slog.LevelWarn, msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	log(slog.LevelError, msg, args...)
}

func log(level slog.Level, msg string, args ...any) {
	mu.RLock()
	l := base
	on := enabled
	mu.RUnlock()

	if !on || l == nil {
		return
	}
	l.Log(context.Background(), level, msg, args...)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func expandPath(path, baseDir string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	if filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}
