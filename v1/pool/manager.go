package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Aleph-Alpha/receipt-lookup/v1/credential"
)

// maxRetiredRetries bounds how often Acquire follows a concurrent swap.
const maxRetiredRetries = 3

// Manager owns the active pool generation and rotates it before the
// credential lease expires.
//
// Concurrency: the active *Pool is stored in an atomic pointer. Rotation
// builds the next generation off to the side and swaps it in, so readers
// never observe a half-built pool. The old generation is retired and
// drains in the background as its connections are released.
type Manager struct {
	cfg      Config
	issuer   credential.Issuer
	dialer   Dialer
	logger   Logger
	observer Observer
	now      func() time.Time

	active     atomic.Pointer[Pool]
	generation atomic.Uint64
	draining   atomic.Int64
	rotations  atomic.Uint64

	// rotateMu serialises Rotate and GracefulShutdown.
	rotateMu sync.Mutex
	drainWG  sync.WaitGroup

	shutdownSignal    chan struct{}
	closeShutdownOnce sync.Once
}

// NewManager issues the first lease and builds generation 1.
//
// Returns *Manager concrete type. The rotation loop is not started; call
// RotateLoop or use the FXModule.
func NewManager(ctx context.Context, cfg Config, issuer credential.Issuer, dialer Dialer, logger Logger, opts ...Option) (*Manager, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = nopLogger{}
	}

	m := &Manager{
		cfg:            cfg,
		issuer:         issuer,
		dialer:         dialer,
		logger:         logger,
		observer:       nopObserver{},
		now:            time.Now,
		shutdownSignal: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	lease, err := issuer.Issue(ctx)
	if err != nil {
		return nil, fmt.Errorf("pool: issue initial credential: %w", err)
	}

	p, err := openPool(ctx, cfg, lease, dialer, m.generation.Add(1), m.now)
	if err != nil {
		return nil, fmt.Errorf("pool: build initial pool: %w", err)
	}
	m.active.Store(p)

	logger.Info("Connection pool ready", nil, map[string]interface{}{
		"generation":       p.generation,
		"min_size":         cfg.MinSize,
		"max_size":         cfg.MaxSize,
		"lease_expires_at": lease.ExpiresAt(),
	})
	return m, nil
}

// Option customises a Manager at construction.
type Option func(*Manager)

// WithClock replaces time.Now for lease and idle-lifetime checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithObserver attaches an observer for pool events.
func (m *Manager) WithObserver(o Observer) *Manager {
	if o != nil {
		m.observer = o
	}
	return m
}

// Acquire checks out a connection from the active generation. A swap
// racing with the call is followed transparently.
func (m *Manager) Acquire(ctx context.Context) (*Conn, error) {
	start := time.Now()
	conn, err := m.acquire(ctx)
	m.observer.ObserveAcquire(acquireResult(err), time.Since(start))
	return conn, err
}

func (m *Manager) acquire(ctx context.Context) (*Conn, error) {
	for attempt := 0; attempt < maxRetiredRetries; attempt++ {
		p := m.active.Load()
		if p == nil {
			return nil, ErrPoolClosed
		}
		conn, err := p.Acquire(ctx)
		if isRetired(err) {
			continue
		}
		return conn, err
	}
	return nil, ErrPoolExhausted
}

// Rotate issues a fresh lease, builds a new generation with MinSize warm
// connections and swaps it in. On error the current generation keeps
// serving untouched.
func (m *Manager) Rotate(ctx context.Context) error {
	m.rotateMu.Lock()
	defer m.rotateMu.Unlock()

	if m.closed() {
		return ErrPoolClosed
	}

	lease, err := m.issuer.Issue(ctx)
	if err != nil {
		m.observer.ObserveRotation("error")
		return fmt.Errorf("pool: issue credential: %w", err)
	}

	next, err := openPool(ctx, m.cfg, lease, m.dialer, m.generation.Add(1), m.now)
	if err != nil {
		m.observer.ObserveRotation("error")
		return fmt.Errorf("pool: build generation: %w", err)
	}

	old := m.active.Swap(next)
	m.rotations.Add(1)
	m.observer.ObserveRotation("ok")

	m.logger.Info("Connection pool rotated", nil, map[string]interface{}{
		"generation":       next.generation,
		"lease_expires_at": lease.ExpiresAt(),
	})

	if old != nil {
		m.retire(old)
	}
	m.observer.ObservePoolStats(m.Stats())
	return nil
}

// retire stops old from serving and waits for it to drain in the background.
func (m *Manager) retire(old *Pool) {
	old.Retire()
	m.draining.Add(1)
	m.drainWG.Add(1)
	go func() {
		defer m.drainWG.Done()
		defer m.draining.Add(-1)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-m.shutdownSignal:
				cancel()
			case <-ctx.Done():
			}
		}()

		if err := old.Drain(ctx); err != nil {
			m.logger.Warn("Stopped waiting for retired pool to drain", err, map[string]interface{}{
				"generation": old.generation,
				"in_use":     old.Stats().InUse,
			})
			return
		}
		m.logger.Info("Retired pool drained", nil, map[string]interface{}{
			"generation": old.generation,
		})
	}()
}

// RotateLoop rotates the pool RefreshMargin before each lease expires
// until ctx is cancelled or the manager shuts down. Failed rotations are
// retried with exponential backoff while the current pool keeps serving.
func (m *Manager) RotateLoop(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-m.shutdownSignal:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		wait := m.Lease().RefreshAt(m.cfg.RefreshMargin).Sub(m.now())
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			m.logger.Info("Stopping rotation loop", nil, nil)
			return
		case <-timer.C:
		}

		if err := m.rotateWithRetry(ctx); err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrPoolClosed) {
				m.logger.Info("Stopping rotation loop", nil, nil)
				return
			}
		}
	}
}

func (m *Manager) rotateWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.cfg.RetryInitialInterval
	b.MaxInterval = m.cfg.RetryMaxInterval
	b.MaxElapsedTime = 0

	op := func() error {
		err := m.Rotate(ctx)
		if errors.Is(err, ErrPoolClosed) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		lease := m.Lease()
		m.logger.Error("Credential rotation failed, serving from current pool", err, map[string]interface{}{
			"retry_in":        next.String(),
			"lease_remaining": lease.Remaining(m.now()).String(),
			"lease_expired":   lease.Expired(m.now()),
		})
	}

	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
}

// Lease returns the credential of the active generation.
func (m *Manager) Lease() credential.Lease {
	if p := m.active.Load(); p != nil {
		return p.Lease()
	}
	return credential.Lease{}
}

// ManagerStats extends the active pool snapshot with rotation state.
type ManagerStats struct {
	Stats
	Rotations      uint64    `json:"rotations"`
	Draining       int64     `json:"draining_generations"`
	LeaseIssuedAt  time.Time `json:"lease_issued_at"`
	LeaseExpiresAt time.Time `json:"lease_expires_at"`
	LeaseExpired   bool      `json:"lease_expired"`
}

func (m *Manager) Stats() ManagerStats {
	var s ManagerStats
	if p := m.active.Load(); p != nil {
		s.Stats = p.Stats()
		s.LeaseIssuedAt = p.lease.IssuedAt
		s.LeaseExpiresAt = p.lease.ExpiresAt()
		s.LeaseExpired = p.lease.Expired(m.now())
	}
	s.Rotations = m.rotations.Load()
	s.Draining = m.draining.Load()
	return s
}

func (m *Manager) closed() bool {
	select {
	case <-m.shutdownSignal:
		return true
	default:
		return false
	}
}

// GracefulShutdown stops rotation, retires the active generation and
// waits until its checked-out connections have been released or ctx ends.
func (m *Manager) GracefulShutdown(ctx context.Context) error {
	m.rotateMu.Lock()
	m.closeShutdownOnce.Do(func() {
		close(m.shutdownSignal)
	})
	last := m.active.Swap(nil)
	m.rotateMu.Unlock()

	if last == nil {
		return nil
	}
	last.Retire()

	done := make(chan struct{})
	go func() {
		m.drainWG.Wait()
		close(done)
	}()

	if err := last.Drain(ctx); err != nil {
		return fmt.Errorf("pool: shutdown drain: %w", err)
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pool: shutdown drain: %w", ctx.Err())
	}
}

func isErr(err, target error) bool {
	return errors.Is(err, target)
}
