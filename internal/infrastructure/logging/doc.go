// Package logging provides structured logging for orderlink.
//
// It wraps log/slog so the CLI and the messaging client share one
// configured handler with service and version fields on every entry.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	client.SetLogger(logger.With("component", "messaging"))
//
// Broker passcodes and tokens are never logged.
package logging
