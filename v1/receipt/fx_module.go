package receipt

import (
	"go.uber.org/fx"

	"github.com/Aleph-Alpha/receipt-lookup/v1/cache"
	"github.com/Aleph-Alpha/receipt-lookup/v1/logger"
	"github.com/Aleph-Alpha/receipt-lookup/v1/pool"
)

// FXModule provides the Repository (pgvector product index included) and
// the cached Service on top of the pool manager.
var FXModule = fx.Module("receipt",
	fx.Provide(
		func(m *pool.Manager) *Repository { return NewRepository(FromPool(m)) },
		func(repo *Repository, caches *cache.Caches, log logger.Logger) *Service {
			return NewService(repo, caches.Receipts, log).WithCustomerCache(caches.Customers)
		},
	),
)
