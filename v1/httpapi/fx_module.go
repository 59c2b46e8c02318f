package httpapi

import (
	"context"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/receipt-lookup/v1/cache"
	"github.com/Aleph-Alpha/receipt-lookup/v1/logger"
	"github.com/Aleph-Alpha/receipt-lookup/v1/metrics"
	"github.com/Aleph-Alpha/receipt-lookup/v1/pool"
	"github.com/Aleph-Alpha/receipt-lookup/v1/receipt"
	"github.com/Aleph-Alpha/receipt-lookup/v1/search"
	"github.com/Aleph-Alpha/receipt-lookup/v1/tracer"
)

// FXModule provides the Handler and the Server and runs the server for
// the application's lifetime.
var FXModule = fx.Module("httpapi",
	fx.Provide(
		NewHandlerWithDI,
		NewServerWithDI,
	),
	fx.Invoke(RegisterServerLifecycle),
)

type HandlerParams struct {
	fx.In

	Config       Config
	Orchestrator *search.Orchestrator
	Receipts     *receipt.Service
	Manager      *pool.Manager
	Caches       *cache.Caches
	Logger       logger.Logger
}

func NewHandlerWithDI(p HandlerParams) *Handler {
	return NewHandler(p.Config, p.Orchestrator, p.Receipts, p.Manager, p.Caches, p.Logger)
}

type ServerParams struct {
	fx.In

	Config  Config
	Handler *Handler
	Logger  logger.Logger
	Tracer  *tracer.Tracer   `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

func NewServerWithDI(p ServerParams) *Server {
	var (
		t   Tracer
		rec Recorder
	)
	if p.Tracer != nil {
		t = p.Tracer
	}
	if p.Metrics != nil {
		rec = p.Metrics
	}
	return NewServer(p.Config, p.Handler.Routes(t, rec), p.Logger)
}

func RegisterServerLifecycle(lc fx.Lifecycle, s *Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return s.Start()
		},
		OnStop: func(ctx context.Context) error {
			return s.Shutdown(ctx)
		},
	})
}
