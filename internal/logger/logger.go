package logger

import (
	"log/slog"
	"os"
	"strings"
)

var (
	// Default logger instance
	Log *slog.Logger
)

func init() {
	// Initialize with default logger (info level, text format)
	Setup(false, "text")
}

// SetupLogger configures the global logger (verbose=true enables debug
// level, false uses info level), kept for callers that don't care about
// output format.
func SetupLogger(verbose bool) {
	Setup(verbose, "text")
}

// Setup configures the global logger's level and handler. format is
// "text" (default, human-readable to stderr) or "json" (one JSON
// object per line, for --format json callers that pipe rv's own log
// output alongside NDJSON progress events).
func Setup(verbose bool, format string) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	// Check environment variable for log level override
	if envLevel := os.Getenv("RV_LOG_LEVEL"); envLevel != "" {
		switch strings.ToLower(envLevel) {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn", "warning":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	Log = slog.New(handler)
	slog.SetDefault(Log)
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	Log.Debug(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	Log.Info(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	Log.Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	Log.Error(msg, args...)
}
