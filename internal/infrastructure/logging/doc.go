// Package logging provides structured logging for autobright.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the daemon and its tools.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, or a file path
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	defer logger.Close()
//	logger.Component("loop").Info("started", "level", 50)
//
// Components never depend on this package directly. They accept a small
// Logger interface satisfied by *Logger and default to a no-op.
package logging
