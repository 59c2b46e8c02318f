package qdrant

import (
	"context"
	"fmt"
	"time"

	qdrant "github.com/qdrant/go-client/qdrant"
)

// Logger is the subset of v1/logger.Logger used here.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
}

// pointsAPI is the slice of the SDK client the index calls; *qdrant.Client
// satisfies it.
type pointsAPI interface {
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Close() error
}

// QdrantClient is the qdrant-backed product index: one point per SKU,
// cosine distance, product metadata in the payload.
type QdrantClient struct {
	api pointsAPI
	cfg *Config
	log Logger
}

const defaultBatchSize = 200

// NewQdrantClient connects to Qdrant and fails fast when the service is
// unreachable.
func NewQdrantClient(cfg *Config, log Logger) (*QdrantClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info("[Qdrant] Connecting", nil, map[string]interface{}{"endpoint": cfg.Endpoint, "port": cfg.Port})

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:                   cfg.Endpoint,
		Port:                   cfg.Port,
		APIKey:                 cfg.ApiKey,
		SkipCompatibilityCheck: !cfg.CheckCompatibility,
	})
	if err != nil {
		return nil, fmt.Errorf("[Qdrant] failed to initialize client: %w", err)
	}

	qc := newWithAPI(client, cfg, log)
	if err := qc.healthCheck(context.Background()); err != nil {
		_ = client.Close()
		return nil, err
	}

	log.Info("[Qdrant] Client connected successfully", nil)
	return qc, nil
}

func newWithAPI(api pointsAPI, cfg *Config, log Logger) *QdrantClient {
	return &QdrantClient{api: api, cfg: cfg, log: log}
}

func (c *QdrantClient) healthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	resp, err := c.api.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("[Qdrant] health check failed: %w", err)
	}

	c.log.Info("[Qdrant] Health check passed", nil, map[string]interface{}{
		"title":   resp.GetTitle(),
		"version": resp.GetVersion(),
	})
	return nil
}

// Close releases the gRPC connection.
func (c *QdrantClient) Close() error {
	return c.api.Close()
}
