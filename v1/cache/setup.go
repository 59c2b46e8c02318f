package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Logger is the subset of v1/logger.Logger used here.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
}

// Caches bundles the caches built from one Config: embeddings, receipts
// and customer listings.
type Caches struct {
	Embeddings Store
	Receipts   Store
	Customers  Store

	client *redis.Client
}

// NewCaches builds both caches on the configured backend. With redis the
// connection is verified with a PING.
func NewCaches(cfg Config, log Logger) (*Caches, error) {
	d := DefaultConfig()
	if cfg.EmbeddingSize == 0 {
		cfg.EmbeddingSize = d.EmbeddingSize
	}
	if cfg.EmbeddingTTL == 0 {
		cfg.EmbeddingTTL = d.EmbeddingTTL
	}
	if cfg.ReceiptSize == 0 {
		cfg.ReceiptSize = d.ReceiptSize
	}
	if cfg.ReceiptTTL == 0 {
		cfg.ReceiptTTL = d.ReceiptTTL
	}
	if cfg.CustomerSize == 0 {
		cfg.CustomerSize = d.CustomerSize
	}
	if cfg.CustomerTTL == 0 {
		cfg.CustomerTTL = d.CustomerTTL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Backend != BackendRedis {
		log.Info("Using in-process caches", nil, map[string]interface{}{
			"embedding_size": cfg.EmbeddingSize,
			"receipt_size":   cfg.ReceiptSize,
			"customer_size":  cfg.CustomerSize,
		})
		return &Caches{
			Embeddings: NewMemoryStore(cfg.EmbeddingSize, cfg.EmbeddingTTL),
			Receipts:   NewMemoryStore(cfg.ReceiptSize, cfg.ReceiptTTL),
			Customers:  NewMemoryStore(cfg.CustomerSize, cfg.CustomerTTL),
		}, nil
	}

	client := NewRedisClient(cfg.Redis)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: redis ping: %w", err)
	}

	log.Info("Using redis caches", nil, map[string]interface{}{
		"address": client.Options().Addr,
	})
	return &Caches{
		Embeddings: NewRedisStore(client, cfg.Redis.KeyPrefix+"emb:", cfg.EmbeddingTTL),
		Receipts:   NewRedisStore(client, cfg.Redis.KeyPrefix+"rcpt:", cfg.ReceiptTTL),
		Customers:  NewRedisStore(client, cfg.Redis.KeyPrefix+"cust:", cfg.CustomerTTL),
		client:     client,
	}, nil
}

// Close releases the redis connection, if any.
func (c *Caches) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
