package search

import (
	"fmt"
	"time"
)

const (
	DefaultStoreTimeout  = 5 * time.Second
	DefaultEmbedTimeout  = 3 * time.Second
	DefaultReasonTimeout = 20 * time.Second

	DefaultLimit = 25
	MaxLimit     = 1000

	DefaultMinSimilarity = 0.7
	DefaultTopK          = 10
	DefaultNLRowCap      = 50

	DefaultAmountWidenPercent = 10
	DefaultDateWiden          = 24 * time.Hour

	// MaxAmountCents is $10,000,000.
	MaxAmountCents int64 = 1_000_000_000
)

// Widening controls how single values become ranges in the fuzzy path.
type Widening struct {
	// AmountPercent widens a single amount X to [X-p%, X+p%]; a lone lower
	// bound X becomes [X, X+p%] and a lone upper bound Y becomes [Y-p%, Y].
	AmountPercent int64 `yaml:"amount_percent" env:"SEARCH_AMOUNT_WIDEN_PERCENT"`

	// Date widens a single date D to every timestamp on D-Date through
	// D+Date inclusive.
	Date time.Duration `yaml:"date" env:"SEARCH_DATE_WIDEN"`
}

// Config tunes the orchestrator.
type Config struct {
	StoreTimeout  time.Duration `yaml:"store_timeout" env:"SEARCH_STORE_TIMEOUT"`
	EmbedTimeout  time.Duration `yaml:"embed_timeout" env:"SEARCH_EMBED_TIMEOUT"`
	ReasonTimeout time.Duration `yaml:"reason_timeout" env:"SEARCH_REASON_TIMEOUT"`

	DefaultLimit int `yaml:"default_limit" env:"SEARCH_DEFAULT_LIMIT"`

	MinSimilarity float64 `yaml:"min_similarity" env:"SEARCH_MIN_SIMILARITY"`
	TopK          int     `yaml:"top_k" env:"SEARCH_TOP_K"`
	NLRowCap      int     `yaml:"nl_row_cap" env:"SEARCH_NL_ROW_CAP"`

	Widening Widening `yaml:"widening"`
}

func DefaultConfig() Config {
	return Config{
		StoreTimeout:  DefaultStoreTimeout,
		EmbedTimeout:  DefaultEmbedTimeout,
		ReasonTimeout: DefaultReasonTimeout,
		DefaultLimit:  DefaultLimit,
		MinSimilarity: DefaultMinSimilarity,
		TopK:          DefaultTopK,
		NLRowCap:      DefaultNLRowCap,
		Widening: Widening{
			AmountPercent: DefaultAmountWidenPercent,
			Date:          DefaultDateWiden,
		},
	}
}

// withDefaults replaces zero values with defaults.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = d.StoreTimeout
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = d.EmbedTimeout
	}
	if c.ReasonTimeout <= 0 {
		c.ReasonTimeout = d.ReasonTimeout
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = d.DefaultLimit
	}
	if c.MinSimilarity <= 0 {
		c.MinSimilarity = d.MinSimilarity
	}
	if c.TopK <= 0 {
		c.TopK = d.TopK
	}
	if c.NLRowCap <= 0 {
		c.NLRowCap = d.NLRowCap
	}
	if c.Widening.AmountPercent <= 0 {
		c.Widening.AmountPercent = d.Widening.AmountPercent
	}
	if c.Widening.Date <= 0 {
		c.Widening.Date = d.Widening.Date
	}
	return c
}

func (c Config) Validate() error {
	if c.DefaultLimit > MaxLimit {
		return fmt.Errorf("search: default limit %d exceeds %d", c.DefaultLimit, MaxLimit)
	}
	if c.MinSimilarity > 1 {
		return fmt.Errorf("search: min similarity %.2f is above 1", c.MinSimilarity)
	}
	if c.Widening.AmountPercent >= 100 {
		return fmt.Errorf("search: amount widening of %d%% would include zero", c.Widening.AmountPercent)
	}
	return nil
}
