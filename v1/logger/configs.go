package logger

// Log levels accepted by Config.Level.
const (
	Debug   = "debug"
	Info    = "info"
	Warning = "warning"
	Error   = "error"
)

// Config holds the logger settings.
type Config struct {
	// Level is one of "debug", "info", "warning" or "error".
	// Anything else falls back to info.
	Level string `yaml:"level" env:"ZAP_LOGGER_LEVEL"`

	// ServiceName is attached to every entry as the "service" field.
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`

	// EnableTracing adds trace_id and span_id to entries written through
	// the *WithContext methods when the context carries a valid span.
	EnableTracing bool `yaml:"enable_tracing" env:"LOGGER_ENABLE_TRACING"`
}
