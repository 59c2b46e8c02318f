package httpapi

import "time"

const (
	DefaultAddress         = ":8080"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultRequestTimeout  = 45 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultRetryAfter      = 2 * time.Second
	DefaultMaxBodyBytes    = 1 << 20
	DefaultRateLimit       = 2.0
	DefaultRateLimitBurst  = 20
)

// Config controls the HTTP server.
type Config struct {
	Address      string        `yaml:"address" env:"HTTP_ADDRESS"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT"`

	// RequestTimeout bounds each request's context. It should exceed the
	// sum of the search strategy timeouts.
	RequestTimeout time.Duration `yaml:"request_timeout" env:"HTTP_REQUEST_TIMEOUT"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT"`

	// RetryAfter is advertised on 503 responses for an exhausted pool.
	RetryAfter time.Duration `yaml:"retry_after" env:"HTTP_RETRY_AFTER"`

	MaxBodyBytes int64 `yaml:"max_body_bytes" env:"HTTP_MAX_BODY_BYTES"`

	// RateLimit is the sustained requests per second allowed per caller on
	// /v1. A negative value disables limiting.
	RateLimit      float64 `yaml:"rate_limit" env:"HTTP_RATE_LIMIT"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"HTTP_RATE_LIMIT_BURST"`
}

func DefaultConfig() Config {
	return Config{
		Address:         DefaultAddress,
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		RequestTimeout:  DefaultRequestTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		RetryAfter:      DefaultRetryAfter,
		MaxBodyBytes:    DefaultMaxBodyBytes,
		RateLimit:       DefaultRateLimit,
		RateLimitBurst:  DefaultRateLimitBurst,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Address == "" {
		c.Address = d.Address
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.RetryAfter <= 0 {
		c.RetryAfter = d.RetryAfter
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	if c.RateLimit == 0 {
		c.RateLimit = d.RateLimit
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = d.RateLimitBurst
	}
	return c
}
