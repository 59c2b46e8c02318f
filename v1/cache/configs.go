package cache

import (
	"fmt"
	"time"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Default values for configuration
const (
	DefaultEmbeddingSize = 100
	DefaultEmbeddingTTL  = 24 * time.Hour
	DefaultReceiptSize   = 500
	DefaultReceiptTTL    = 15 * time.Minute
	DefaultCustomerSize  = 200
	DefaultCustomerTTL   = 5 * time.Minute
	DefaultRedisPort     = 6379
	DefaultDialTimeout   = 5 * time.Second
	DefaultReadTimeout   = 3 * time.Second
)

// Config selects the cache backend and sizes the two caches.
type Config struct {
	// Backend is "memory" (in-process LRU) or "redis".
	Backend string `yaml:"backend" env:"CACHE_BACKEND"`

	EmbeddingSize int           `yaml:"embedding_size" env:"CACHE_EMBEDDING_SIZE"`
	EmbeddingTTL  time.Duration `yaml:"embedding_ttl" env:"CACHE_EMBEDDING_TTL"`
	ReceiptSize   int           `yaml:"receipt_size" env:"CACHE_RECEIPT_SIZE"`
	ReceiptTTL    time.Duration `yaml:"receipt_ttl" env:"CACHE_RECEIPT_TTL"`
	CustomerSize  int           `yaml:"customer_size" env:"CACHE_CUSTOMER_SIZE"`
	CustomerTTL   time.Duration `yaml:"customer_ttl" env:"CACHE_CUSTOMER_TTL"`

	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig is the subset of go-redis options the caches need.
type RedisConfig struct {
	Host        string        `yaml:"host" env:"REDIS_HOST"`
	Port        int           `yaml:"port" env:"REDIS_PORT"`
	Username    string        `yaml:"username" env:"REDIS_USERNAME"`
	Password    string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB          int           `yaml:"db" env:"REDIS_DB"`
	KeyPrefix   string        `yaml:"key_prefix" env:"REDIS_KEY_PREFIX"`
	DialTimeout time.Duration `yaml:"dial_timeout" env:"REDIS_DIAL_TIMEOUT"`
	ReadTimeout time.Duration `yaml:"read_timeout" env:"REDIS_READ_TIMEOUT"`
}

// DefaultConfig returns in-process caches: 100 embeddings for 24h, 500
// receipts for 15m and 200 customer listings for 5m.
func DefaultConfig() Config {
	return Config{
		Backend:       BackendMemory,
		EmbeddingSize: DefaultEmbeddingSize,
		EmbeddingTTL:  DefaultEmbeddingTTL,
		ReceiptSize:   DefaultReceiptSize,
		ReceiptTTL:    DefaultReceiptTTL,
		CustomerSize:  DefaultCustomerSize,
		CustomerTTL:   DefaultCustomerTTL,
		Redis: RedisConfig{
			Host:        "localhost",
			Port:        DefaultRedisPort,
			KeyPrefix:   "receipt-lookup:",
			DialTimeout: DefaultDialTimeout,
			ReadTimeout: DefaultReadTimeout,
		},
	}
}

func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory, "":
	case BackendRedis:
		if c.Redis.Host == "" {
			return fmt.Errorf("cache: missing REDIS_HOST")
		}
	default:
		return fmt.Errorf("cache: unknown backend %q", c.Backend)
	}
	if c.EmbeddingSize < 1 || c.ReceiptSize < 1 || c.CustomerSize < 1 {
		return fmt.Errorf("cache: sizes must be positive")
	}
	return nil
}
