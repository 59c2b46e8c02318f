package tracer

// Config controls the tracer provider.
type Config struct {
	// ServiceName is reported as the service.name resource attribute.
	ServiceName string `yaml:"service_name" env:"TRACER_SERVICE_NAME"`

	// AppEnv is reported as deployment.environment.
	AppEnv string `yaml:"app_env" env:"APP_ENV"`

	// EnableExport turns on the OTLP HTTP exporter. When false spans are
	// created and propagated but never leave the process.
	EnableExport bool `yaml:"enable_export" env:"TRACER_ENABLE_EXPORT"`

	// Endpoint is the collector host:port. Empty uses the exporter's
	// OTEL_EXPORTER_OTLP_* environment defaults.
	Endpoint string `yaml:"endpoint" env:"TRACER_ENDPOINT"`

	// Insecure sends spans over plain HTTP.
	Insecure bool `yaml:"insecure" env:"TRACER_INSECURE"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "receipt-lookup",
		AppEnv:      "development",
	}
}
