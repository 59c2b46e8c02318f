package reasoning

import (
	"fmt"
	"strings"
	"time"
)

const (
	ProviderOpenAI = "openai"

	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 20 * time.Second

	// DefaultMaxSummaryRows bounds how many result rows are shown to the
	// model when summarising.
	DefaultMaxSummaryRows = 50
)

// Config configures the chat model used for NL-to-SQL and summaries.
type Config struct {
	Provider string        `yaml:"provider" env:"REASONING_PROVIDER"`
	APIKey   string        `yaml:"api_key" env:"REASONING_API_KEY"`
	Model    string        `yaml:"model" env:"REASONING_MODEL"`
	BaseURL  string        `yaml:"base_url" env:"REASONING_BASE_URL"`
	Timeout  time.Duration `yaml:"timeout" env:"REASONING_TIMEOUT"`

	MaxSummaryRows int `yaml:"max_summary_rows" env:"REASONING_MAX_SUMMARY_ROWS"`
}

func DefaultConfig() Config {
	return Config{
		Provider:       ProviderOpenAI,
		Model:          DefaultModel,
		Timeout:        DefaultTimeout,
		MaxSummaryRows: DefaultMaxSummaryRows,
	}
}

// Validate fills defaults and checks required fields.
func (c *Config) Validate() error {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxSummaryRows <= 0 {
		c.MaxSummaryRows = DefaultMaxSummaryRows
	}

	if c.Provider != ProviderOpenAI {
		return fmt.Errorf("reasoning: unknown provider %q", c.Provider)
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("reasoning: missing REASONING_API_KEY")
	}
	return nil
}
