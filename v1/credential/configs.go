package credential

import (
	"fmt"
	"time"
)

// Issuer modes.
const (
	ModeStatic = "static"
	ModeHTTP   = "http"
)

const (
	DefaultValidity    = 60 * time.Minute
	DefaultHTTPTimeout = 10 * time.Second
)

// Config selects and configures the credential issuer.
type Config struct {
	// Mode is "static" (fixed password re-issued with a fresh validity
	// window) or "http" (token endpoint).
	Mode string `yaml:"mode" env:"CREDENTIAL_MODE"`

	// Password is used by the static issuer.
	Password string `yaml:"password" env:"DB_PASSWORD"`

	// Endpoint is the base URL of the token service for the http issuer.
	Endpoint string `yaml:"endpoint" env:"CREDENTIAL_ENDPOINT"`

	// ServiceToken authenticates this service against the token endpoint.
	ServiceToken string `yaml:"service_token" env:"CREDENTIAL_SERVICE_TOKEN"`

	// Validity is the lease lifetime assumed when the issuer does not say.
	Validity time.Duration `yaml:"validity" env:"CREDENTIAL_VALIDITY"`

	// HTTPTimeout bounds a single token request.
	HTTPTimeout time.Duration `yaml:"http_timeout" env:"CREDENTIAL_HTTP_TIMEOUT"`
}

// DefaultConfig returns a static issuer with a 60 minute lease.
func DefaultConfig() Config {
	return Config{
		Mode:        ModeStatic,
		Validity:    DefaultValidity,
		HTTPTimeout: DefaultHTTPTimeout,
	}
}

// Validate checks the mode-specific fields.
func (c Config) Validate() error {
	if c.Validity <= 0 {
		return fmt.Errorf("credential: validity must be positive")
	}
	switch c.Mode {
	case ModeStatic, "":
		return nil
	case ModeHTTP:
		if c.Endpoint == "" {
			return fmt.Errorf("credential: missing CREDENTIAL_ENDPOINT")
		}
		return nil
	default:
		return fmt.Errorf("credential: unknown mode %q", c.Mode)
	}
}
