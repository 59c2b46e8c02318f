package credential

import (
	"context"
	"time"
)

// Lease is a time-bounded database credential.
type Lease struct {
	// Token is the secret presented to the database as the password.
	Token string

	// IssuedAt is when the issuer minted the token.
	IssuedAt time.Time

	// Validity is how long the token is accepted after IssuedAt.
	Validity time.Duration
}

// ExpiresAt returns the instant the lease stops being accepted.
func (l Lease) ExpiresAt() time.Time {
	return l.IssuedAt.Add(l.Validity)
}

// RefreshAt returns when a replacement should be requested, margin ahead
// of expiry. A margin wider than the validity means "now".
func (l Lease) RefreshAt(margin time.Duration) time.Time {
	if margin >= l.Validity {
		return l.IssuedAt
	}
	return l.ExpiresAt().Add(-margin)
}

// Expired reports whether the lease is no longer valid at now.
func (l Lease) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt())
}

// Remaining is the time left before expiry, never negative.
func (l Lease) Remaining(now time.Time) time.Duration {
	d := l.ExpiresAt().Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Issuer mints credential leases.
type Issuer interface {
	Issue(ctx context.Context) (Lease, error)
}
