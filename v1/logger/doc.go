// Package logger provides structured logging for the receipt-lookup service.
//
// The package wraps Uber's Zap behind a small msg/err/fields API:
//   - Logger interface: the contract components depend on
//   - LoggerClient struct: the Zap-backed implementation
//   - FXModule: provides both for dependency injection
//
// Basic usage:
//
//	log := logger.NewLoggerClient(logger.Config{
//		Level:         "info",
//		ServiceName:   "receipt-lookup",
//		EnableTracing: true,
//	})
//
//	log.Info("Search completed", nil, map[string]interface{}{
//		"strategy": "fuzzy",
//		"results":  2,
//	})
//
//	// Adds trace_id and span_id when ctx carries an active span.
//	log.ErrorWithContext(ctx, "Rotation failed", err, nil)
//
// Configuration via environment:
//
//	ZAP_LOGGER_LEVEL=debug          # debug, info, warning, error
//	LOGGER_ENABLE_TRACING=true      # attach trace ids to *WithContext entries
//
// All methods are safe for concurrent use.
package logger
