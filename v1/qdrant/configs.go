package qdrant

import (
	"fmt"
	"time"
)

const (
	DefaultPort       = 6334
	DefaultCollection = "product_embeddings"
	DefaultVectorSize = 1536
)

// Config holds connection and behavior settings for the product index.
//
// Example (builder style):
//
//	cfg := qdrant.FromEndpoint("localhost").
//	    WithApiKey(os.Getenv("QDRANT_API_KEY")).
//	    WithTimeout(10 * time.Second)
type Config struct {
	// Enabled switches semantic product lookup from pgvector to qdrant.
	Enabled bool `yaml:"enabled" env:"QDRANT_ENABLED"`

	// Hostname of the Qdrant server, e.g. "localhost".
	Endpoint string `yaml:"endpoint" env:"QDRANT_ENDPOINT"`

	// gRPC port of the Qdrant server. Defaults to 6334.
	Port int `yaml:"port" env:"QDRANT_PORT"`

	// Optional authentication token for secured deployments.
	ApiKey string `yaml:"api_key" env:"QDRANT_API_KEY"`

	// Collection holding one point per product SKU.
	Collection string `yaml:"collection" env:"QDRANT_COLLECTION"`

	// VectorSize must match the embedding model's dimensions.
	VectorSize int `yaml:"vector_size" env:"QDRANT_VECTOR_SIZE"`

	// Maximum request duration before timing out.
	Timeout time.Duration `yaml:"timeout" env:"QDRANT_TIMEOUT"`

	// Whether to perform version compatibility checks between client and server.
	CheckCompatibility bool `yaml:"check_compatibility" env:"QDRANT_CHECK_COMPATIBILITY"`
}

// DefaultConfig provides sensible defaults for most use cases.
func DefaultConfig() *Config {
	return &Config{
		Endpoint:           "localhost",
		Port:               DefaultPort,
		Collection:         DefaultCollection,
		VectorSize:         DefaultVectorSize,
		Timeout:            5 * time.Second,
		CheckCompatibility: true,
	}
}

// FromEndpoint returns a default config pre-filled with a specific endpoint.
func FromEndpoint(host string) *Config {
	cfg := DefaultConfig()
	cfg.Endpoint = host
	return cfg
}

func (c *Config) WithApiKey(key string) *Config {
	c.ApiKey = key
	return c
}

func (c *Config) WithTimeout(d time.Duration) *Config {
	c.Timeout = d
	return c
}

func (c *Config) WithCollection(name string, vectorSize int) *Config {
	c.Collection = name
	c.VectorSize = vectorSize
	return c
}

func (c *Config) WithCompatibilityCheck(enabled bool) *Config {
	c.CheckCompatibility = enabled
	return c
}

// Validate fills zero values with defaults and checks the rest.
func (c *Config) Validate() error {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
	if c.VectorSize <= 0 {
		c.VectorSize = DefaultVectorSize
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.Endpoint == "" {
		return fmt.Errorf("[Qdrant] endpoint is required")
	}
	return nil
}
