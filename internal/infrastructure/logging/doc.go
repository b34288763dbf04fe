// Package logging provides structured logging for the doorbell controller.
//
// This package wraps Go's standard log/slog package so every component logs
// with the same handler, level and default fields. The lines that the
// firmware used to print on its serial console ("Attempting MQTT
// connection...", "Message arrived [topic]") become structured records here.
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
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("presence detected", "track", 12)
//	logger.Error("failed to connect", "error", err)
//
// Never log the MQTT password or the update secret.
package logging
