// Package logging provides structured logging for wlddc.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the agent and the CLI.
//
// # Features
//
//   - Text output by default, JSON for log shippers
//   - Default fields (service, version) on all log entries
//   - Runtime-adjustable level shared by derived loggers
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # text, json
//	  output: "stderr"   # stderr, stdout
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("agent starting", "broker", cfg.MQTT.Broker.Host)
//
// Never log MQTT or InfluxDB credentials.
package logging
