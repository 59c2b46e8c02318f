package tracer

import (
	"context"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/receipt-lookup/v1/logger"
)

// FXModule provides *Tracer and flushes it on shutdown.
//
// Usage:
//
//	app := fx.New(
//	    logger.FXModule,
//	    tracer.FXModule,
//	    fx.Supply(tracer.Config{ServiceName: "receipt-lookup"}),
//	)
var FXModule = fx.Module("tracer",
	fx.Provide(
		func(cfg Config, log logger.Logger) (*Tracer, error) {
			return NewClient(cfg, log)
		},
	),
	fx.Invoke(RegisterTracerLifecycle),
)

// RegisterTracerLifecycle shuts the provider down on stop so buffered
// spans reach the exporter.
func RegisterTracerLifecycle(lc fx.Lifecycle, tracer *Tracer) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			tracer.logger.Info("Shutting down tracer", nil, nil)
			if tracer.tracer == nil {
				tracer.logger.Warn("tracer was nil during shutdown", nil, nil)
				return nil
			}
			return tracer.Shutdown(ctx)
		},
	})
}
