package qdrant

import (
	"context"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/receipt-lookup/v1/logger"
)

// FXModule provides *QdrantClient when Config.Enabled is set; otherwise
// it provides a nil client and semantic lookups stay on pgvector.
var FXModule = fx.Module("qdrant",
	fx.Provide(NewQdrantClientWithDI),
	fx.Invoke(RegisterQdrantLifecycle),
)

func NewQdrantClientWithDI(cfg *Config, log logger.Logger) (*QdrantClient, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return NewQdrantClient(cfg, log)
}

// RegisterQdrantLifecycle ensures the collection on start and closes the
// connection on stop.
func RegisterQdrantLifecycle(lc fx.Lifecycle, client *QdrantClient) {
	if client == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.EnsureCollection(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
}
