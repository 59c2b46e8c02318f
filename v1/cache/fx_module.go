package cache

import (
	"context"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/receipt-lookup/v1/logger"
)

// FXModule provides *Caches and closes the redis client on stop.
var FXModule = fx.Module("cache",
	fx.Provide(NewCachesWithDI),
	fx.Invoke(RegisterCacheLifecycle),
)

func NewCachesWithDI(cfg Config, log logger.Logger) (*Caches, error) {
	return NewCaches(cfg, log)
}

func RegisterCacheLifecycle(lc fx.Lifecycle, c *Caches) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return c.Close()
		},
	})
}
