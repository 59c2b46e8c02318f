package metrics

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/receipt-lookup/v1/cache"
	"github.com/Aleph-Alpha/receipt-lookup/v1/logger"
	"github.com/Aleph-Alpha/receipt-lookup/v1/pool"
	"github.com/Aleph-Alpha/receipt-lookup/v1/search"
)

// FXModule provides *Metrics, exposes it as the search and pool
// observers, exports cache statistics and serves /metrics for the
// application's lifetime.
//
// Dependencies required by this module:
// - metrics.Config
// - logger.Logger
// - *cache.Caches
var FXModule = fx.Module("metrics",
	fx.Provide(
		NewMetrics,
		func(m *Metrics) search.Observer { return m },
		func(m *Metrics) pool.Observer { return m },
	),
	fx.Invoke(RegisterCacheMetrics),
	fx.Invoke(RegisterMetricsLifecycle),
)

// RegisterCacheMetrics exports the counters of every cache.
func RegisterCacheMetrics(m *Metrics, caches *cache.Caches) {
	m.RegisterCache("embeddings", caches.Embeddings.Stats)
	m.RegisterCache("receipts", caches.Receipts.Stats)
	m.RegisterCache("customers", caches.Customers.Stats)
}

// RegisterMetricsLifecycle runs the /metrics server between start and
// stop.
func RegisterMetricsLifecycle(lc fx.Lifecycle, m *Metrics, log logger.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("Starting Prometheus metrics server", nil, map[string]interface{}{
					"address": m.Server.Addr,
				})

				if err := m.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("Error starting Prometheus metrics server", err, nil)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down Prometheus metrics server", nil, nil)
			return m.Server.Shutdown(ctx)
		},
	})
}
