package embedding

import (
	"fmt"
	"strings"
	"time"
)

const (
	// ProviderInference talks to an OpenAI-compatible /embeddings endpoint
	// with a service token.
	ProviderInference = "inference"

	// ProviderOpenAI uses the eino OpenAI embedder.
	ProviderOpenAI = "openai"
)

const (
	DefaultModel      = "text-embedding-3-small"
	DefaultDimensions = 1536
	DefaultTimeout    = 3 * time.Second
	DefaultCacheTTL   = 24 * time.Hour
)

// Config selects and configures the embedding backend.
//
// Endpoint must point to the root of the service (no /embeddings suffix);
// the provider appends paths itself.
type Config struct {
	Provider     string        `yaml:"provider" env:"EMBEDDING_PROVIDER"`
	Endpoint     string        `yaml:"endpoint" env:"EMBEDDING_ENDPOINT"`
	ServiceToken string        `yaml:"service_token" env:"EMBEDDING_SERVICE_TOKEN"`
	Model        string        `yaml:"model" env:"EMBEDDING_MODEL"`
	Dimensions   int           `yaml:"dimensions" env:"EMBEDDING_DIMENSIONS"`
	Timeout      time.Duration `yaml:"timeout" env:"EMBEDDING_TIMEOUT"`

	// CacheTTL bounds how long a cached vector is reused.
	CacheTTL time.Duration `yaml:"cache_ttl" env:"EMBEDDING_CACHE_TTL"`
}

func DefaultConfig() Config {
	return Config{
		Provider:   ProviderInference,
		Model:      DefaultModel,
		Dimensions: DefaultDimensions,
		Timeout:    DefaultTimeout,
		CacheTTL:   DefaultCacheTTL,
	}
}

func (c *Config) withDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderInference
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Dimensions <= 0 {
		c.Dimensions = DefaultDimensions
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
}

// Validate ensures required fields are present.
func (c *Config) Validate() error {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.withDefaults()

	switch c.Provider {
	case ProviderInference, ProviderOpenAI:
	default:
		return fmt.Errorf("embedding: unknown provider %q", c.Provider)
	}
	if c.Provider == ProviderInference && c.Endpoint == "" {
		return fmt.Errorf("embedding: missing EMBEDDING_ENDPOINT")
	}
	if c.ServiceToken == "" {
		return fmt.Errorf("embedding: missing EMBEDDING_SERVICE_TOKEN")
	}
	return nil
}
