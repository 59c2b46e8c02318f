package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Aleph-Alpha/receipt-lookup/v1/credential"
)

// Pool is one generation of connections, all authenticated with the same
// lease. The Manager swaps generations on rotation; a retired generation
// stops handing out connections and closes each one as it comes back.
//
// Concurrency: checkout permits come from a weighted semaphore sized to
// MaxSize, so open connections never exceed MaxSize. The idle stack and
// counters are guarded by mu; dialing and closing happen outside it.
type Pool struct {
	cfg        Config
	lease      credential.Lease
	dialer     Dialer
	generation uint64
	now        func() time.Time
	sem        *semaphore.Weighted

	mu      sync.Mutex
	idle    []*pooledConn
	open    int
	inUse   int
	retired bool

	retiredCh   chan struct{}
	drained     chan struct{}
	drainedOnce sync.Once
}

// openPool builds a generation and dials MinSize connections up front.
// If any warm-up dial fails the whole generation is discarded.
func openPool(ctx context.Context, cfg Config, lease credential.Lease, dialer Dialer, generation uint64, now func() time.Time) (*Pool, error) {
	p := &Pool{
		cfg:        cfg,
		lease:      lease,
		dialer:     dialer,
		generation: generation,
		now:        now,
		sem:        semaphore.NewWeighted(int64(cfg.MaxSize)),
		retiredCh:  make(chan struct{}),
		drained:    make(chan struct{}),
	}

	warm := make([]*pooledConn, 0, cfg.MinSize)
	for i := 0; i < cfg.MinSize; i++ {
		raw, err := dialer.Dial(ctx, lease)
		if err != nil {
			for _, pc := range warm {
				_ = pc.raw.Close()
			}
			return nil, fmt.Errorf("pool: warm up connection %d/%d: %w", i+1, cfg.MinSize, err)
		}
		warm = append(warm, &pooledConn{raw: raw, createdAt: now()})
	}

	p.idle = warm
	p.open = len(warm)
	return p, nil
}

// Acquire checks out a connection: the most recently used idle one, a new
// one while under MaxSize, or it waits up to AcquireTimeout. A waiter is
// woken with errRetired when the generation is retired under it.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	if p.lease.Expired(p.now()) {
		return nil, ErrCredentialExpired
	}

	p.mu.Lock()
	retired := p.retired
	p.mu.Unlock()
	if retired {
		return nil, errRetired
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()
	go func() {
		select {
		case <-p.retiredCh:
			cancel()
		case <-waitCtx.Done():
		}
	}()
	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		select {
		case <-p.retiredCh:
			return nil, errRetired
		default:
		}
		return nil, ErrPoolExhausted
	}

	p.mu.Lock()
	if p.retired {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, errRetired
	}
	p.inUse++

	var pc *pooledConn
	var stale []*pooledConn
	for len(p.idle) > 0 {
		last := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if p.expired(last) {
			stale = append(stale, last)
			p.open--
			continue
		}
		pc = last
		break
	}
	p.mu.Unlock()

	for _, s := range stale {
		_ = s.raw.Close()
	}

	if pc == nil {
		raw, err := p.dialer.Dial(ctx, p.lease)
		if err != nil {
			p.abandonCheckout()
			return nil, fmt.Errorf("pool: dial: %w", err)
		}
		pc = &pooledConn{raw: raw, createdAt: p.now()}
		p.mu.Lock()
		p.open++
		p.mu.Unlock()
	}

	return &Conn{pc: pc, pool: p, acquiredAt: p.now()}, nil
}

// abandonCheckout undoes the bookkeeping of a checkout whose dial failed.
func (p *Pool) abandonCheckout() {
	p.mu.Lock()
	p.inUse--
	drained := p.retired && p.inUse == 0
	p.mu.Unlock()
	p.sem.Release(1)
	if drained {
		p.markDrained()
	}
}

func (p *Pool) release(pc *pooledConn) {
	p.mu.Lock()
	p.inUse--
	discard := p.retired || p.expired(pc)
	if discard {
		p.open--
	} else {
		p.idle = append(p.idle, pc)
	}
	drained := p.retired && p.inUse == 0
	p.mu.Unlock()

	p.sem.Release(1)

	if discard {
		_ = pc.raw.Close()
	}
	if drained {
		p.markDrained()
	}
}

func (p *Pool) expired(pc *pooledConn) bool {
	return p.now().Sub(pc.createdAt) > p.cfg.MaxIdleLifetime
}

// Retire stops the generation from handing out connections, wakes callers
// waiting for a permit and closes the idle ones. Checked-out connections keep working and are closed on
// release.
func (p *Pool) Retire() {
	p.mu.Lock()
	if p.retired {
		p.mu.Unlock()
		return
	}
	p.retired = true
	close(p.retiredCh)
	idle := p.idle
	p.idle = nil
	p.open -= len(idle)
	drained := p.inUse == 0
	p.mu.Unlock()

	for _, pc := range idle {
		_ = pc.raw.Close()
	}
	if drained {
		p.markDrained()
	}
}

// Drain blocks until a retired generation has no checked-out connections.
func (p *Pool) Drain(ctx context.Context) error {
	select {
	case <-p.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) markDrained() {
	p.drainedOnce.Do(func() { close(p.drained) })
}

// Lease returns the credential this generation authenticates with.
func (p *Pool) Lease() credential.Lease {
	return p.lease
}

// Stats is a point-in-time snapshot of a generation.
type Stats struct {
	Generation uint64 `json:"generation"`
	Open       int    `json:"open"`
	Idle       int    `json:"idle"`
	InUse      int    `json:"in_use"`
	Max        int    `json:"max"`
	Retired    bool   `json:"retired"`
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Generation: p.generation,
		Open:       p.open,
		Idle:       len(p.idle),
		InUse:      p.inUse,
		Max:        p.cfg.MaxSize,
		Retired:    p.retired,
	}
}

func isRetired(err error) bool {
	return errors.Is(err, errRetired)
}
