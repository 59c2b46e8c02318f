// Package config assembles the per-package configs of receipt-lookup from
// the process environment, reading a .env file first when one exists.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Aleph-Alpha/receipt-lookup/v1/cache"
	"github.com/Aleph-Alpha/receipt-lookup/v1/credential"
	"github.com/Aleph-Alpha/receipt-lookup/v1/embedding"
	"github.com/Aleph-Alpha/receipt-lookup/v1/httpapi"
	"github.com/Aleph-Alpha/receipt-lookup/v1/logger"
	"github.com/Aleph-Alpha/receipt-lookup/v1/metrics"
	"github.com/Aleph-Alpha/receipt-lookup/v1/pool"
	"github.com/Aleph-Alpha/receipt-lookup/v1/qdrant"
	"github.com/Aleph-Alpha/receipt-lookup/v1/reasoning"
	"github.com/Aleph-Alpha/receipt-lookup/v1/search"
	"github.com/Aleph-Alpha/receipt-lookup/v1/tracer"
)

type Config struct {
	Logger     logger.Config
	Tracer     tracer.Config
	Metrics    metrics.Config
	Credential credential.Config
	Pool       pool.Config
	Cache      cache.Config
	Embedding  embedding.Config
	Reasoning  reasoning.Config
	Qdrant     *qdrant.Config
	Search     search.Config
	HTTP       httpapi.Config
}

// Load reads envFile (skipped when it does not exist) and then the
// environment on top of the package defaults. Variables already set in the
// environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	e := &env{}
	cfg := &Config{
		Logger:     loadLogger(e),
		Tracer:     loadTracer(e),
		Metrics:    loadMetrics(e),
		Credential: loadCredential(e),
		Pool:       loadPool(e),
		Cache:      loadCache(e),
		Embedding:  loadEmbedding(e),
		Reasoning:  loadReasoning(e),
		Qdrant:     loadQdrant(e),
		Search:     loadSearch(e),
		HTTP:       loadHTTP(e),
	}
	if err := e.err(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	if c.Pool.Connection.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.Pool.Connection.DbName == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if err := c.Credential.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Cache.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Qdrant.Enabled && c.Qdrant.VectorSize != c.Embedding.Dimensions {
		errs = append(errs, fmt.Errorf("QDRANT_VECTOR_SIZE %d does not match EMBEDDING_DIMENSIONS %d",
			c.Qdrant.VectorSize, c.Embedding.Dimensions))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func loadLogger(e *env) logger.Config {
	return logger.Config{
		Level:         e.str("ZAP_LOGGER_LEVEL", logger.Info),
		ServiceName:   e.str("SERVICE_NAME", "receipt-lookup"),
		EnableTracing: e.boolean("LOGGER_ENABLE_TRACING", true),
	}
}

func loadTracer(e *env) tracer.Config {
	d := tracer.DefaultConfig()
	return tracer.Config{
		ServiceName:  e.str("TRACER_SERVICE_NAME", d.ServiceName),
		AppEnv:       e.str("APP_ENV", d.AppEnv),
		EnableExport: e.boolean("TRACER_ENABLE_EXPORT", d.EnableExport),
		Endpoint:     e.str("TRACER_ENDPOINT", d.Endpoint),
		Insecure:     e.boolean("TRACER_INSECURE", d.Insecure),
	}
}

func loadMetrics(e *env) metrics.Config {
	d := metrics.DefaultConfig()
	return metrics.Config{
		Address:                 e.str("METRICS_ADDRESS", d.Address),
		EnableDefaultCollectors: e.boolean("METRICS_ENABLE_DEFAULT_COLLECTORS", d.EnableDefaultCollectors),
		Namespace:               e.str("METRICS_NAMESPACE", d.Namespace),
		ServiceName:             e.str("METRICS_SERVICE_NAME", d.ServiceName),
	}
}

func loadCredential(e *env) credential.Config {
	d := credential.DefaultConfig()
	return credential.Config{
		Mode:         e.str("CREDENTIAL_MODE", d.Mode),
		Password:     e.str("DB_PASSWORD", d.Password),
		Endpoint:     e.str("CREDENTIAL_ENDPOINT", d.Endpoint),
		ServiceToken: e.str("CREDENTIAL_SERVICE_TOKEN", d.ServiceToken),
		Validity:     e.duration("CREDENTIAL_VALIDITY", d.Validity),
		HTTPTimeout:  e.duration("CREDENTIAL_HTTP_TIMEOUT", d.HTTPTimeout),
	}
}

func loadPool(e *env) pool.Config {
	d := pool.DefaultConfig()
	return pool.Config{
		MinSize:              e.integer("POOL_MIN_SIZE", d.MinSize),
		MaxSize:              e.integer("POOL_MAX_SIZE", d.MaxSize),
		AcquireTimeout:       e.duration("POOL_ACQUIRE_TIMEOUT", d.AcquireTimeout),
		MaxIdleLifetime:      e.duration("POOL_MAX_IDLE_LIFETIME", d.MaxIdleLifetime),
		RefreshMargin:        e.duration("POOL_REFRESH_MARGIN", d.RefreshMargin),
		RetryInitialInterval: e.duration("POOL_RETRY_INITIAL_INTERVAL", d.RetryInitialInterval),
		RetryMaxInterval:     e.duration("POOL_RETRY_MAX_INTERVAL", d.RetryMaxInterval),
		Connection: pool.Connection{
			Host:           e.str("DB_HOST", d.Connection.Host),
			Port:           e.str("DB_PORT", d.Connection.Port),
			User:           e.str("DB_USER", d.Connection.User),
			DbName:         e.str("DB_NAME", d.Connection.DbName),
			SSLMode:        e.str("DB_SSLMODE", d.Connection.SSLMode),
			ConnectTimeout: e.duration("DB_CONNECT_TIMEOUT", d.Connection.ConnectTimeout),
		},
	}
}

func loadCache(e *env) cache.Config {
	d := cache.DefaultConfig()
	return cache.Config{
		Backend:       e.str("CACHE_BACKEND", d.Backend),
		EmbeddingSize: e.integer("CACHE_EMBEDDING_SIZE", d.EmbeddingSize),
		EmbeddingTTL:  e.duration("CACHE_EMBEDDING_TTL", d.EmbeddingTTL),
		ReceiptSize:   e.integer("CACHE_RECEIPT_SIZE", d.ReceiptSize),
		ReceiptTTL:    e.duration("CACHE_RECEIPT_TTL", d.ReceiptTTL),
		CustomerSize:  e.integer("CACHE_CUSTOMER_SIZE", d.CustomerSize),
		CustomerTTL:   e.duration("CACHE_CUSTOMER_TTL", d.CustomerTTL),
		Redis: cache.RedisConfig{
			Host:        e.str("REDIS_HOST", d.Redis.Host),
			Port:        e.integer("REDIS_PORT", d.Redis.Port),
			Username:    e.str("REDIS_USERNAME", d.Redis.Username),
			Password:    e.str("REDIS_PASSWORD", d.Redis.Password),
			DB:          e.integer("REDIS_DB", d.Redis.DB),
			KeyPrefix:   e.str("REDIS_KEY_PREFIX", d.Redis.KeyPrefix),
			DialTimeout: e.duration("REDIS_DIAL_TIMEOUT", d.Redis.DialTimeout),
			ReadTimeout: e.duration("REDIS_READ_TIMEOUT", d.Redis.ReadTimeout),
		},
	}
}

func loadEmbedding(e *env) embedding.Config {
	d := embedding.DefaultConfig()
	return embedding.Config{
		Provider:     e.str("EMBEDDING_PROVIDER", d.Provider),
		Endpoint:     e.str("EMBEDDING_ENDPOINT", d.Endpoint),
		ServiceToken: e.str("EMBEDDING_SERVICE_TOKEN", d.ServiceToken),
		Model:        e.str("EMBEDDING_MODEL", d.Model),
		Dimensions:   e.integer("EMBEDDING_DIMENSIONS", d.Dimensions),
		Timeout:      e.duration("EMBEDDING_TIMEOUT", d.Timeout),
		CacheTTL:     e.duration("EMBEDDING_CACHE_TTL", d.CacheTTL),
	}
}

func loadReasoning(e *env) reasoning.Config {
	d := reasoning.DefaultConfig()
	return reasoning.Config{
		Provider:       e.str("REASONING_PROVIDER", d.Provider),
		APIKey:         e.str("REASONING_API_KEY", d.APIKey),
		Model:          e.str("REASONING_MODEL", d.Model),
		BaseURL:        e.str("REASONING_BASE_URL", d.BaseURL),
		Timeout:        e.duration("REASONING_TIMEOUT", d.Timeout),
		MaxSummaryRows: e.integer("REASONING_MAX_SUMMARY_ROWS", d.MaxSummaryRows),
	}
}

func loadQdrant(e *env) *qdrant.Config {
	d := qdrant.DefaultConfig()
	return &qdrant.Config{
		Enabled:            e.boolean("QDRANT_ENABLED", d.Enabled),
		Endpoint:           e.str("QDRANT_ENDPOINT", d.Endpoint),
		Port:               e.integer("QDRANT_PORT", d.Port),
		ApiKey:             e.str("QDRANT_API_KEY", d.ApiKey),
		Collection:         e.str("QDRANT_COLLECTION", d.Collection),
		VectorSize:         e.integer("QDRANT_VECTOR_SIZE", d.VectorSize),
		Timeout:            e.duration("QDRANT_TIMEOUT", d.Timeout),
		CheckCompatibility: e.boolean("QDRANT_CHECK_COMPATIBILITY", d.CheckCompatibility),
	}
}

func loadSearch(e *env) search.Config {
	d := search.DefaultConfig()
	return search.Config{
		StoreTimeout:  e.duration("SEARCH_STORE_TIMEOUT", d.StoreTimeout),
		EmbedTimeout:  e.duration("SEARCH_EMBED_TIMEOUT", d.EmbedTimeout),
		ReasonTimeout: e.duration("SEARCH_REASON_TIMEOUT", d.ReasonTimeout),
		DefaultLimit:  e.integer("SEARCH_DEFAULT_LIMIT", d.DefaultLimit),
		MinSimilarity: e.float("SEARCH_MIN_SIMILARITY", d.MinSimilarity),
		TopK:          e.integer("SEARCH_TOP_K", d.TopK),
		NLRowCap:      e.integer("SEARCH_NL_ROW_CAP", d.NLRowCap),
		Widening: search.Widening{
			AmountPercent: int64(e.integer("SEARCH_AMOUNT_WIDEN_PERCENT", int(d.Widening.AmountPercent))),
			Date:          e.duration("SEARCH_DATE_WIDEN", d.Widening.Date),
		},
	}
}

func loadHTTP(e *env) httpapi.Config {
	d := httpapi.DefaultConfig()
	return httpapi.Config{
		Address:         e.str("HTTP_ADDRESS", d.Address),
		ReadTimeout:     e.duration("HTTP_READ_TIMEOUT", d.ReadTimeout),
		WriteTimeout:    e.duration("HTTP_WRITE_TIMEOUT", d.WriteTimeout),
		RequestTimeout:  e.duration("HTTP_REQUEST_TIMEOUT", d.RequestTimeout),
		ShutdownTimeout: e.duration("HTTP_SHUTDOWN_TIMEOUT", d.ShutdownTimeout),
		RetryAfter:      e.duration("HTTP_RETRY_AFTER", d.RetryAfter),
		MaxBodyBytes:    int64(e.integer("HTTP_MAX_BODY_BYTES", int(d.MaxBodyBytes))),
		RateLimit:       e.float("HTTP_RATE_LIMIT", d.RateLimit),
		RateLimitBurst:  e.integer("HTTP_RATE_LIMIT_BURST", d.RateLimitBurst),
	}
}

// env reads typed variables and collects parse errors so a bad deployment
// reports every broken variable at once.
type env struct {
	errs []error
}

func (e *env) err() error {
	if len(e.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config: %w", errors.Join(e.errs...))
}

func (e *env) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *env) str(key, def string) string {
	if v, ok := e.lookup(key); ok {
		return v
	}
	return def
}

func (e *env) integer(key string, def int) int {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (e *env) float(key string, def float64) float64 {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a number", key, v))
		return def
	}
	return f
}

func (e *env) boolean(key string, def bool) bool {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return def
	}
	return b
}

// duration accepts Go durations ("90s", "15m") or a bare number of seconds.
func (e *env) duration(key string, def time.Duration) time.Duration {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a duration", key, v))
		return def
	}
	return d
}
