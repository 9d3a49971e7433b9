// Package logging provides structured logging for mqttconnect.
//
// It wraps the standard log/slog package so every component logs with the
// same format, level filtering and default fields (service, version).
//
// Configuration comes from the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Component("transport").Info("handed off", "endpoint", "broker:8883")
//
// Never log broker passwords, private key material or JWT secrets. File
// paths of credentials are fine.
package logging
