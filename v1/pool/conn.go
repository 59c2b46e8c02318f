package pool

import (
	"context"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"github.com/Aleph-Alpha/receipt-lookup/v1/credential"
)

//go:generate mockgen -source=conn.go -destination=mock_conn.go -package=pool

// RawConn is one authenticated database session.
type RawConn interface {
	// Query runs a parameterized statement and returns all rows.
	Query(ctx context.Context, query string, args ...any) ([]Row, error)

	// QueryReadOnly runs query inside a read-only transaction and stops
	// after maxRows rows.
	QueryReadOnly(ctx context.Context, query string, maxRows int, args ...any) ([]Row, error)

	// DB exposes the session as a gorm handle for writes.
	DB() *gorm.DB

	Ping(ctx context.Context) error
	Close() error
}

// Dialer opens sessions authenticated with a lease.
type Dialer interface {
	Dial(ctx context.Context, lease credential.Lease) (RawConn, error)
}

// pooledConn is a physical session owned by one pool generation.
type pooledConn struct {
	raw       RawConn
	createdAt time.Time
}

// Conn is a checked-out connection. It belongs to exactly one caller
// until Release; Release is idempotent and must be deferred.
type Conn struct {
	pc         *pooledConn
	pool       *Pool
	released   atomic.Bool
	acquiredAt time.Time
}

func (c *Conn) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	if c.released.Load() {
		return nil, ErrConnReleased
	}
	rows, err := c.pc.raw.Query(ctx, query, args...)
	return rows, classify(err)
}

func (c *Conn) QueryReadOnly(ctx context.Context, query string, maxRows int, args ...any) ([]Row, error) {
	if c.released.Load() {
		return nil, ErrConnReleased
	}
	rows, err := c.pc.raw.QueryReadOnly(ctx, query, maxRows, args...)
	return rows, classify(err)
}

// DB returns the gorm handle bound to this session, or nil once released.
func (c *Conn) DB() *gorm.DB {
	if c.released.Load() {
		return nil
	}
	return c.pc.raw.DB()
}

// Generation is the pool generation this connection was dialed in.
func (c *Conn) Generation() uint64 {
	return c.pool.generation
}

// CreatedAt is when the underlying session was opened.
func (c *Conn) CreatedAt() time.Time {
	return c.pc.createdAt
}

// Release hands the connection back to its pool.
func (c *Conn) Release() {
	if !c.released.CompareAndSwap(false, true) {
		return
	}
	c.pool.release(c.pc)
}
