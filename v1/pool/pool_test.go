package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"gorm.io/gorm"

	"github.com/Aleph-Alpha/receipt-lookup/v1/credential"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 11, 8, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeIssuer struct {
	clock    func() time.Time
	validity time.Duration
	fail     atomic.Int32
	issued   atomic.Int32
}

func (f *fakeIssuer) Issue(ctx context.Context) (credential.Lease, error) {
	if f.fail.Load() > 0 {
		f.fail.Add(-1)
		return credential.Lease{}, errors.New("vault unavailable")
	}
	n := f.issued.Add(1)
	return credential.Lease{
		Token:    fmt.Sprintf("token-%d", n),
		IssuedAt: f.clock(),
		Validity: f.validity,
	}, nil
}

type fakeConn struct {
	token  string
	closed atomic.Bool
	block  chan struct{}
}

func (c *fakeConn) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	if c.closed.Load() {
		return nil, errors.New("query on closed connection")
	}
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return []Row{{Columns: []string{"token"}, Values: []any{c.token}}}, nil
}

func (c *fakeConn) QueryReadOnly(ctx context.Context, query string, maxRows int, args ...any) ([]Row, error) {
	return c.Query(ctx, query, args...)
}

func (c *fakeConn) DB() *gorm.DB                   { return nil }
func (c *fakeConn) Ping(ctx context.Context) error { return nil }
func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	block chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context, lease credential.Lease) (RawConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := &fakeConn{token: lease.Token, block: d.block}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dialed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) closed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.conns {
		if c.closed.Load() {
			n++
		}
	}
	return n
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MinSize = 2
	cfg.MaxSize = 3
	cfg.AcquireTimeout = 50 * time.Millisecond
	cfg.RetryInitialInterval = 5 * time.Millisecond
	cfg.RetryMaxInterval = 20 * time.Millisecond
	return cfg
}

func newTestManager(t *testing.T, cfg Config, clock *fakeClock) (*Manager, *fakeIssuer, *fakeDialer) {
	t.Helper()
	issuer := &fakeIssuer{clock: clock.Now, validity: time.Hour}
	dialer := &fakeDialer{}
	m, err := NewManager(context.Background(), cfg, issuer, dialer, nil, WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = m.GracefulShutdown(ctx)
	})
	return m, issuer, dialer
}

func TestNewManagerWarmsMinSize(t *testing.T) {
	m, _, dialer := newTestManager(t, testConfig(), newFakeClock())

	assert.Equal(t, 2, dialer.dialed())
	s := m.Stats()
	assert.Equal(t, uint64(1), s.Generation)
	assert.Equal(t, 2, s.Idle)
	assert.Equal(t, 0, s.InUse)
}

func TestAcquireReusesIdleConnection(t *testing.T) {
	m, _, dialer := newTestManager(t, testConfig(), newFakeClock())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		conn, err := m.Acquire(ctx)
		require.NoError(t, err)
		conn.Release()
	}
	assert.Equal(t, 2, dialer.dialed())
}

func TestAcquireDialsUpToMaxThenExhausts(t *testing.T) {
	m, _, dialer := newTestManager(t, testConfig(), newFakeClock())
	ctx := context.Background()

	var held []*Conn
	for i := 0; i < 3; i++ {
		conn, err := m.Acquire(ctx)
		require.NoError(t, err)
		held = append(held, conn)
	}
	assert.Equal(t, 3, dialer.dialed())

	start := time.Now()
	_, err := m.Acquire(ctx)
	assert.ErrorIs(t, err, ErrPoolExhausted)
	assert.NotErrorIs(t, err, ErrCredentialExpired)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.True(t, IsRetryable(err))

	held[0].Release()
	conn, err := m.Acquire(ctx)
	require.NoError(t, err)
	conn.Release()

	for _, c := range held[1:] {
		c.Release()
	}
	assert.Equal(t, 3, m.Stats().Open)
}

func TestAcquireWaitsForRelease(t *testing.T) {
	cfg := testConfig()
	cfg.AcquireTimeout = time.Second
	m, _, _ := newTestManager(t, cfg, newFakeClock())
	ctx := context.Background()

	var held []*Conn
	for i := 0; i < 3; i++ {
		conn, err := m.Acquire(ctx)
		require.NoError(t, err)
		held = append(held, conn)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		held[0].Release()
	}()

	conn, err := m.Acquire(ctx)
	require.NoError(t, err)
	conn.Release()
	for _, c := range held[1:] {
		c.Release()
	}
}

func TestAcquireHonoursCallerCancellation(t *testing.T) {
	cfg := testConfig()
	cfg.AcquireTimeout = time.Second
	m, _, _ := newTestManager(t, cfg, newFakeClock())

	var held []*Conn
	for i := 0; i < 3; i++ {
		conn, err := m.Acquire(context.Background())
		require.NoError(t, err)
		held = append(held, conn)
	}
	defer func() {
		for _, c := range held {
			c.Release()
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrPoolExhausted)
}

func TestReleaseClosesConnectionsPastIdleLifetime(t *testing.T) {
	clock := newFakeClock()
	m, _, dialer := newTestManager(t, testConfig(), clock)
	ctx := context.Background()

	conn, err := m.Acquire(ctx)
	require.NoError(t, err)

	clock.Advance(11 * time.Minute)
	conn.Release()

	s := m.Stats()
	assert.Equal(t, 1, s.Open)
	assert.Equal(t, 1, dialer.closed())

	// The remaining idle connection is just as old and is discarded on
	// checkout; a fresh one is dialed instead.
	conn, err = m.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, dialer.closed())
	assert.Equal(t, 3, dialer.dialed())
	conn.Release()
	assert.Equal(t, 1, m.Stats().Idle)
}

func TestReleaseIsIdempotent(t *testing.T) {
	m, _, _ := newTestManager(t, testConfig(), newFakeClock())

	conn, err := m.Acquire(context.Background())
	require.NoError(t, err)
	conn.Release()
	conn.Release()

	s := m.Stats()
	assert.Equal(t, 0, s.InUse)
	assert.Equal(t, 2, s.Idle)

	_, err = conn.Query(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, ErrConnReleased)
}

func TestAcquireFailsWithCredentialExpired(t *testing.T) {
	clock := newFakeClock()
	m, _, _ := newTestManager(t, testConfig(), clock)

	clock.Advance(61 * time.Minute)
	_, err := m.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrCredentialExpired)
	assert.NotErrorIs(t, err, ErrPoolExhausted)
	assert.True(t, m.Stats().LeaseExpired)

	require.NoError(t, m.Rotate(context.Background()))
	conn, err := m.Acquire(context.Background())
	require.NoError(t, err)
	conn.Release()
}

func TestRotateSwapsWithoutInterruptingInFlightQueries(t *testing.T) {
	clock := newFakeClock()
	m, _, dialer := newTestManager(t, testConfig(), clock)
	ctx := context.Background()

	old, err := m.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), old.Generation())

	require.NoError(t, m.Rotate(ctx))

	fresh, err := m.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), fresh.Generation())
	rows, err := fresh.Query(ctx, "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, "token-2", rows[0].String("token"))
	fresh.Release()

	// The connection checked out before the swap still works.
	rows, err = old.Query(ctx, "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, "token-1", rows[0].String("token"))

	// The idle generation-1 connection was closed at retirement; the
	// checked-out one closes on release.
	assert.Equal(t, 1, dialer.closed())
	old.Release()
	assert.Equal(t, 2, dialer.closed())

	require.Eventually(t, func() bool { return m.Stats().Draining == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), m.Stats().Rotations)
}

func TestRotateWakesWaitersOnFullGeneration(t *testing.T) {
	cfg := testConfig()
	cfg.MinSize = 1
	cfg.MaxSize = 1
	cfg.AcquireTimeout = 2 * time.Second
	m, _, _ := newTestManager(t, cfg, newFakeClock())
	ctx := context.Background()

	held, err := m.Acquire(ctx)
	require.NoError(t, err)
	defer held.Release()

	type result struct {
		conn *Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := m.Acquire(ctx)
		done <- result{conn, err}
	}()

	// Let the waiter block on the full generation before swapping.
	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	require.NoError(t, m.Rotate(ctx))

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, uint64(2), r.conn.Generation())
		assert.Less(t, time.Since(start), time.Second)
		r.conn.Release()
	case <-time.After(3 * time.Second):
		t.Fatal("waiter was not woken by rotation")
	}
}

func TestRotateFailureKeepsServing(t *testing.T) {
	m, issuer, _ := newTestManager(t, testConfig(), newFakeClock())
	issuer.fail.Store(1)

	err := m.Rotate(context.Background())
	require.Error(t, err)
	assert.Equal(t, uint64(1), m.Stats().Generation)

	conn, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), conn.Generation())
	conn.Release()
}

func TestRotateLoopRetriesWithBackoff(t *testing.T) {
	cfg := testConfig()
	cfg.RefreshMargin = 10 * time.Millisecond

	issuer := &fakeIssuer{clock: time.Now, validity: 30 * time.Millisecond}
	dialer := &fakeDialer{}
	m, err := NewManager(context.Background(), cfg, issuer, dialer, nil)
	require.NoError(t, err)

	issuer.fail.Store(2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.RotateLoop(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return m.Stats().Generation >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), issuer.fail.Load())

	cancel()
	<-done

	shutdownCtx, stop := context.WithTimeout(context.Background(), time.Second)
	defer stop()
	require.NoError(t, m.GracefulShutdown(shutdownCtx))
}

func TestConcurrentAcquireDuringRotation(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSize = 4
	cfg.AcquireTimeout = 2 * time.Second
	m, _, _ := newTestManager(t, cfg, newFakeClock())

	var wg sync.WaitGroup
	var failures atomic.Int32
	stop := make(chan struct{})

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				conn, err := m.Acquire(context.Background())
				if err != nil {
					failures.Add(1)
					continue
				}
				if _, err := conn.Query(context.Background(), "SELECT 1"); err != nil {
					failures.Add(1)
				}
				conn.Release()
			}
		}()
	}

	for i := 0; i < 5; i++ {
		time.Sleep(5 * time.Millisecond)
		require.NoError(t, m.Rotate(context.Background()))
		s := m.Stats()
		assert.LessOrEqual(t, s.Open, cfg.MaxSize)
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, int32(0), failures.Load())
	assert.Equal(t, uint64(6), m.Stats().Generation)
}

func TestGracefulShutdownRejectsAcquire(t *testing.T) {
	m, _, dialer := newTestManager(t, testConfig(), newFakeClock())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.GracefulShutdown(ctx))

	_, err := m.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.ErrorIs(t, m.Rotate(context.Background()), ErrPoolClosed)
	assert.Equal(t, dialer.dialed(), dialer.closed())
}

func TestWarmUpFailureDiscardsGeneration(t *testing.T) {
	ctrl := gomock.NewController(t)

	first := NewMockRawConn(ctrl)
	first.EXPECT().Close().Return(nil).Times(1)

	dialer := NewMockDialer(ctrl)
	gomock.InOrder(
		dialer.EXPECT().Dial(gomock.Any(), gomock.Any()).Return(first, nil),
		dialer.EXPECT().Dial(gomock.Any(), gomock.Any()).Return(nil, errors.New("password authentication failed")),
	)

	issuer := credential.NewStaticIssuer("pw", time.Hour)
	_, err := NewManager(context.Background(), testConfig(), issuer, dialer, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password authentication failed")
}

func TestQueryTimeoutIsClassified(t *testing.T) {
	ctrl := gomock.NewController(t)

	raw := NewMockRawConn(ctrl)
	raw.EXPECT().Query(gomock.Any(), "SELECT pg_sleep(10)").Return(nil, fmt.Errorf("read: %w", context.DeadlineExceeded))
	raw.EXPECT().Close().Return(nil).AnyTimes()

	dialer := NewMockDialer(ctrl)
	dialer.EXPECT().Dial(gomock.Any(), gomock.Any()).Return(raw, nil)

	cfg := testConfig()
	cfg.MinSize = 1
	m, err := NewManager(context.Background(), cfg, credential.NewStaticIssuer("pw", time.Hour), dialer, nil)
	require.NoError(t, err)

	conn, err := m.Acquire(context.Background())
	require.NoError(t, err)
	defer conn.Release()

	_, err = conn.Query(context.Background(), "SELECT pg_sleep(10)")
	assert.ErrorIs(t, err, ErrQueryTimeout)
	assert.True(t, IsTimeout(err))
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.MinSize = 11
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MaxSize = 0
	assert.Error(t, cfg.Validate())
}

func TestRowAccessors(t *testing.T) {
	ts := time.Date(2024, 11, 8, 14, 22, 0, 0, time.UTC)
	r := Row{
		Columns: []string{"id", "total", "score", "at", "name", "card"},
		Values:  []any{int64(7), "3547", []byte("0.82"), ts, []byte("Kroger"), nil},
	}
	assert.Equal(t, int64(7), r.Int64("id"))
	assert.Equal(t, int64(3547), r.Int64("total"))
	assert.InDelta(t, 0.82, r.Float64("score"), 1e-9)
	assert.Equal(t, ts, r.Time("at"))
	assert.Equal(t, "Kroger", r.String("name"))
	assert.Nil(t, r.StringPtr("card"))
	assert.Equal(t, "", r.String("missing"))
	assert.Len(t, r.Map(), 6)
}
