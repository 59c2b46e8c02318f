// Package tracer sets up OpenTelemetry tracing.
//
// The Tracer installs a global TracerProvider with W3C trace-context
// propagation and, when export is enabled, an OTLP HTTP exporter. Search
// opens one span per strategy; the HTTP layer extracts incoming trace
// headers so those spans join the caller's trace. Log entries written with
// the logger's *WithContext methods carry the matching trace_id and
// span_id.
//
// Configuration via environment:
//
//	TRACER_SERVICE_NAME=receipt-lookup
//	APP_ENV=production
//	TRACER_ENABLE_EXPORT=true
//	TRACER_ENDPOINT=otel-collector:4318
package tracer
