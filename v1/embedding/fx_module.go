package embedding

import (
	"context"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/receipt-lookup/v1/cache"
	"github.com/Aleph-Alpha/receipt-lookup/v1/logger"
)

// FXModule provides *Client and the cached Embedder used by search.
var FXModule = fx.Module(
	"embedding",

	fx.Provide(
		NewClientWithDI,
		NewCachedEmbedderWithDI,
	),

	fx.Invoke(RegisterEmbeddingLifecycle),
)

func NewClientWithDI(cfg Config) (*Client, error) {
	return NewClient(context.Background(), cfg)
}

func NewCachedEmbedderWithDI(client *Client, caches *cache.Caches, cfg Config, log logger.Logger) Embedder {
	return NewCachedEmbedder(client, caches.Embeddings, cfg.CacheTTL, log).WithTimeout(cfg.Timeout)
}

// RegisterEmbeddingLifecycle closes the client on shutdown.
func RegisterEmbeddingLifecycle(lc fx.Lifecycle, client *Client) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
}
