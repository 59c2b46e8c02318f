package metrics

// DefaultMetricsAddress is used when Address is empty.
const DefaultMetricsAddress = ":9090"

// Config controls the Prometheus registry and the /metrics server.
type Config struct {
	// Address is where the /metrics server listens, e.g. ":9090".
	Address string `yaml:"address" env:"METRICS_ADDRESS"`

	// EnableDefaultCollectors registers the Go runtime, process and build
	// info collectors.
	EnableDefaultCollectors bool `yaml:"enable_default_collectors" env:"METRICS_ENABLE_DEFAULT_COLLECTORS"`

	// Namespace prefixes every metric name, e.g. "cs" gives
	// "cs_search_requests_total".
	Namespace string `yaml:"namespace" env:"METRICS_NAMESPACE"`

	// ServiceName is attached to every metric as the service label.
	ServiceName string `yaml:"service_name" env:"METRICS_SERVICE_NAME"`
}

func DefaultConfig() Config {
	return Config{
		Address:                 DefaultMetricsAddress,
		EnableDefaultCollectors: true,
		ServiceName:             "receipt-lookup",
	}
}
