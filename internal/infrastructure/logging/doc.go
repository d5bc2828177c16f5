// Package logging provides structured logging for the capture service.
//
// It wraps log/slog so every package logs the same way: JSON in
// production, text for development, with service and version fields on
// every entry.
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
//	coordLogger := logger.Component("capture")
//	coordLogger.Debug("request done", "label", label)
//
// # Security
//
// Never log JWT secrets, salts or raw device ids of other origins. Device
// ids in logs should be the per-origin hashes the requester already sees.
package logging
