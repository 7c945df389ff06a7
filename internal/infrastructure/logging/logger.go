package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sgnexus/autobright/internal/infrastructure/config"
)

// Logger wraps slog.Logger with autobright-specific functionality.
//
// It provides structured logging with default fields and level-based filtering.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger

	// file is set when output goes to a log file owned by this logger.
	file *os.File
}

// New creates a new Logger with the specified configuration.
//
// It configures:
//   - Output destination (stdout, stderr, or an append-only file)
//   - Output format (JSON for production, text for development)
//   - Log level filtering
//   - Default fields (service name, version)
//
// A log file that cannot be opened falls back to stderr; the failure is
// reported as the first entry of the returned logger.
func New(cfg config.LoggingConfig, version string) *Logger {
	output, file, openErr := openOutput(cfg.Output)

	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "autobright"),
		slog.String("version", version),
	})

	l := &Logger{Logger: slog.New(handler), file: file}
	if openErr != nil {
		l.Warn("log file unavailable, using stderr", "path", cfg.Output, "error", openErr)
	}
	return l
}

// openOutput resolves the configured destination.
func openOutput(dest string) (io.Writer, *os.File, error) {
	switch strings.ToLower(dest) {
	case "", "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return os.Stderr, nil, err
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640) //nolint:gosec // path comes from operator config
	if err != nil {
		return os.Stderr, nil, err
	}
	return f, f, nil
}

// parseLevel converts a string log level to slog.Level.
//
// Supported levels: debug, info, warn, error
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	sampler := logger.With("component", "sampler")
//	sampler.Info("activated") // Includes component=sampler
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Component is shorthand for With("component", name).
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Close releases the log file, if any. Loggers derived with With share the
// file and must not be used afterwards.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Default creates a default logger for use before configuration is loaded.
//
// This logger outputs to stdout in JSON format at info level.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
