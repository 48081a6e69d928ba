// Package logger provides structured logging for flows and data sources
// using zerolog.
//
// It supports JSON and console output, log level configuration, and
// component-scoped loggers with structured fields. Loggers pick up the
// trace and span IDs of the active OpenTelemetry span via WithContext.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.Get("sqlsource")
//	log.Info("subscribed", logger.Fields(logger.FieldTarget, "orders"))
package logger
