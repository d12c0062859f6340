// Package logger provides the process-wide structured logger built on
// log/slog. All components log through this package so that level and
// format are controlled from one place.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config holds logger configuration.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or a file path
}

var (
	mu       sync.RWMutex
	output   io.Writer = os.Stdout
	levelVar           = new(slog.LevelVar)
	slogger            = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: levelVar}))
)

// Init configures the package logger. Output can be "stdout", "stderr",
// or a file path.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	switch strings.ToLower(cfg.Output) {
	case "stdout", "":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
		}
		output = f
	}

	levelVar.Set(parseLevel(cfg.Level))

	opts := &slog.HandlerOptions{Level: levelVar}
	if strings.ToLower(cfg.Format) == "json" {
		slogger = slog.New(slog.NewJSONHandler(output, opts))
	} else {
		slogger = slog.New(slog.NewTextHandler(output, opts))
	}
	return nil
}

// InitWithWriter points the logger at a custom writer. Primarily for tests.
func InitWithWriter(w io.Writer, level string) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	levelVar.Set(parseLevel(level))
	slogger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: levelVar}))
}

// SetLevel changes the minimum log level. Invalid levels are ignored.
func SetLevel(level string) {
	levelVar.Set(parseLevel(level))
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func get() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

// With returns a logger with the given attributes attached to every record.
func With(args ...any) *slog.Logger {
	return get().With(args...)
}

// Debug logs at DEBUG level.
func Debug(msg string, args ...any) { get().Debug(msg, args...) }

// Info logs at INFO level.
func Info(msg string, args ...any) { get().Info(msg, args...) }

// Warn logs at WARN level.
func Warn(msg string, args ...any) { get().Warn(msg, args...) }

// Error logs at ERROR level.
func Error(msg string, args ...any) { get().Error(msg, args...) }
