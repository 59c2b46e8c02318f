// Package pool provides a bounded postgres connection pool whose
// credentials are rotated before they expire.
//
// A Pool is one generation of connections sharing a credential lease.
// The Manager keeps the active generation in an atomic pointer and, ahead
// of every lease expiry, builds the next generation with fresh
// credentials, swaps it in and lets the old one drain as its connections
// are released. In-flight queries are never interrupted.
//
// Basic usage:
//
//	mgr, err := pool.NewManager(ctx, pool.DefaultConfig(), issuer, pool.NewPostgresDialer(cfg), log)
//	if err != nil {
//		return err
//	}
//	go mgr.RotateLoop(ctx)
//
//	conn, err := mgr.Acquire(ctx)
//	if err != nil {
//		return err // ErrPoolExhausted, ErrCredentialExpired, ...
//	}
//	defer conn.Release()
//	rows, err := conn.Query(ctx, "SELECT 1")
//
// Errors:
//   - ErrPoolExhausted: no connection within AcquireTimeout; retryable
//   - ErrCredentialExpired: the lease ran out before a rotation succeeded
//   - ErrQueryTimeout: wraps deadline and statement_timeout failures
//
// When renewal fails the manager logs, retries with exponential backoff
// and keeps serving from the current generation until the lease expires.
package pool
