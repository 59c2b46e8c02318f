package pool

import (
	"fmt"
	"time"
)

// Default values for configuration
const (
	DefaultMinSize              = 2
	DefaultMaxSize              = 10
	DefaultAcquireTimeout       = 30 * time.Second
	DefaultMaxIdleLifetime      = 10 * time.Minute
	DefaultRefreshMargin        = 10 * time.Minute
	DefaultRetryInitialInterval = 1 * time.Second
	DefaultRetryMaxInterval     = 1 * time.Minute
	DefaultConnectTimeout       = 10 * time.Second
)

// Config defines the pool sizing, timing and database connection settings.
type Config struct {
	// MinSize connections are dialed when a pool generation is built.
	MinSize int `yaml:"min_size" env:"POOL_MIN_SIZE"`

	// MaxSize bounds the number of open connections in one generation.
	MaxSize int `yaml:"max_size" env:"POOL_MAX_SIZE"`

	// AcquireTimeout is how long Acquire blocks before ErrPoolExhausted.
	AcquireTimeout time.Duration `yaml:"acquire_timeout" env:"POOL_ACQUIRE_TIMEOUT"`

	// MaxIdleLifetime: connections older than this are closed on release
	// instead of being returned to the idle set.
	MaxIdleLifetime time.Duration `yaml:"max_idle_lifetime" env:"POOL_MAX_IDLE_LIFETIME"`

	// RefreshMargin is how long before lease expiry rotation starts.
	RefreshMargin time.Duration `yaml:"refresh_margin" env:"POOL_REFRESH_MARGIN"`

	// RetryInitialInterval and RetryMaxInterval shape the exponential
	// backoff used when a rotation attempt fails.
	RetryInitialInterval time.Duration `yaml:"retry_initial_interval" env:"POOL_RETRY_INITIAL_INTERVAL"`
	RetryMaxInterval     time.Duration `yaml:"retry_max_interval" env:"POOL_RETRY_MAX_INTERVAL"`

	Connection Connection `yaml:"connection"`
}

// Connection holds the postgres endpoint. The password comes from the
// credential lease, never from here.
type Connection struct {
	Host           string        `yaml:"host" env:"DB_HOST"`
	Port           string        `yaml:"port" env:"DB_PORT"`
	User           string        `yaml:"user" env:"DB_USER"`
	DbName         string        `yaml:"dbname" env:"DB_NAME"`
	SSLMode        string        `yaml:"sslmode" env:"DB_SSLMODE"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"DB_CONNECT_TIMEOUT"`
}

// DefaultConfig returns min 2 / max 10 connections, a 30s acquire timeout,
// a 10m idle lifetime and rotation 10m ahead of expiry.
func DefaultConfig() Config {
	return Config{
		MinSize:              DefaultMinSize,
		MaxSize:              DefaultMaxSize,
		AcquireTimeout:       DefaultAcquireTimeout,
		MaxIdleLifetime:      DefaultMaxIdleLifetime,
		RefreshMargin:        DefaultRefreshMargin,
		RetryInitialInterval: DefaultRetryInitialInterval,
		RetryMaxInterval:     DefaultRetryMaxInterval,
		Connection: Connection{
			Host:           "localhost",
			Port:           "5432",
			SSLMode:        "disable",
			ConnectTimeout: DefaultConnectTimeout,
		},
	}
}

// withDefaults fills zero values so partially populated configs behave.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxSize == 0 {
		c.MaxSize = d.MaxSize
	}
	if c.AcquireTimeout == 0 {
		c.AcquireTimeout = d.AcquireTimeout
	}
	if c.MaxIdleLifetime == 0 {
		c.MaxIdleLifetime = d.MaxIdleLifetime
	}
	if c.RefreshMargin == 0 {
		c.RefreshMargin = d.RefreshMargin
	}
	if c.RetryInitialInterval == 0 {
		c.RetryInitialInterval = d.RetryInitialInterval
	}
	if c.RetryMaxInterval == 0 {
		c.RetryMaxInterval = d.RetryMaxInterval
	}
	if c.Connection.ConnectTimeout == 0 {
		c.Connection.ConnectTimeout = d.Connection.ConnectTimeout
	}
	return c
}

// Validate rejects impossible sizing.
func (c Config) Validate() error {
	if c.MinSize < 0 {
		return fmt.Errorf("pool: min size must not be negative")
	}
	if c.MaxSize < 1 {
		return fmt.Errorf("pool: max size must be at least 1")
	}
	if c.MinSize > c.MaxSize {
		return fmt.Errorf("pool: min size %d exceeds max size %d", c.MinSize, c.MaxSize)
	}
	if c.AcquireTimeout < 0 || c.MaxIdleLifetime < 0 || c.RefreshMargin < 0 {
		return fmt.Errorf("pool: durations must not be negative")
	}
	return nil
}
