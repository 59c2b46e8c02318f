package pool

import (
	"context"
	"sync"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/receipt-lookup/v1/credential"
	"github.com/Aleph-Alpha/receipt-lookup/v1/logger"
)

// FXModule provides the postgres Dialer and the *Manager, and runs the
// rotation loop for the application's lifetime.
//
// Dependencies required by this module:
// - pool.Config
// - credential.Issuer (see credential.FXModule)
// - logger.Logger
var FXModule = fx.Module("pool",
	fx.Provide(
		fx.Annotate(
			NewPostgresDialer,
			fx.As(new(Dialer)),
		),
		NewManagerWithDI,
	),
	fx.Invoke(RegisterManagerLifecycle),
)

// ManagerParams groups the dependencies of the Manager.
type ManagerParams struct {
	fx.In

	Config   Config
	Issuer   credential.Issuer
	Dialer   Dialer
	Logger   logger.Logger
	Observer Observer `optional:"true"`
}

// NewManagerWithDI builds the Manager with a bounded startup context.
func NewManagerWithDI(params ManagerParams) (*Manager, error) {
	timeout := params.Config.withDefaults().Connection.ConnectTimeout * 3
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	m, err := NewManager(ctx, params.Config, params.Issuer, params.Dialer, params.Logger)
	if err != nil {
		return nil, err
	}
	return m.WithObserver(params.Observer), nil
}

// ManagerLifecycleParams groups the dependencies for lifecycle registration.
type ManagerLifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Manager   *Manager
}

// RegisterManagerLifecycle starts the rotation loop on start and drains
// the pool on stop.
func RegisterManagerLifecycle(params ManagerLifecycleParams) {
	wg := &sync.WaitGroup{}
	loopCtx, cancel := context.WithCancel(context.Background())

	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			wg.Add(1)
			go func() {
				defer wg.Done()
				params.Manager.RotateLoop(loopCtx)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			wg.Wait()
			return params.Manager.GracefulShutdown(ctx)
		},
	})
}
