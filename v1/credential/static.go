package credential

import (
	"context"
	"time"
)

// StaticIssuer hands out the configured password with a fresh validity
// window each time. Used for local development and password-auth
// deployments where the secret itself does not change.
type StaticIssuer struct {
	password string
	validity time.Duration
	now      func() time.Time
}

func NewStaticIssuer(password string, validity time.Duration) *StaticIssuer {
	if validity <= 0 {
		validity = DefaultValidity
	}
	return &StaticIssuer{password: password, validity: validity, now: time.Now}
}

func (s *StaticIssuer) Issue(ctx context.Context) (Lease, error) {
	if err := ctx.Err(); err != nil {
		return Lease{}, err
	}
	return Lease{Token: s.password, IssuedAt: s.now(), Validity: s.validity}, nil
}
