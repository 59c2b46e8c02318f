package pool

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrPoolExhausted is returned when no connection became available
	// within the acquire timeout. Callers may retry with backoff.
	ErrPoolExhausted = errors.New("pool: exhausted")

	// ErrCredentialExpired is returned once the active lease has expired
	// and no rotation has succeeded. It clears on the next rotation.
	ErrCredentialExpired = errors.New("pool: credential expired")

	// ErrPoolClosed is returned after the manager has shut down.
	ErrPoolClosed = errors.New("pool: closed")

	// ErrConnReleased is returned when a released connection is used.
	ErrConnReleased = errors.New("pool: connection already released")

	// ErrQueryTimeout wraps store errors caused by a deadline or a
	// server-side statement timeout.
	ErrQueryTimeout = errors.New("pool: query timeout")

	// errRetired signals that the generation was swapped out between the
	// caller loading it and acquiring from it. The manager retries.
	errRetired = errors.New("pool: generation retired")
)

// queryCanceled is the postgres SQLSTATE for statement_timeout and
// cancel requests.
const queryCanceled = "57014"

// IsTimeout reports whether err came from a deadline or statement timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQueryTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == queryCanceled
}

// IsRetryable reports whether the caller may retry the same request later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPoolExhausted) || IsTimeout(err)
}

// classify tags timeouts with ErrQueryTimeout and leaves other errors as is.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrQueryTimeout) {
		return err
	}
	if IsTimeout(err) {
		return errors.Join(ErrQueryTimeout, err)
	}
	return err
}
