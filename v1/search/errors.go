package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Aleph-Alpha/receipt-lookup/v1/pool"
	"github.com/Aleph-Alpha/receipt-lookup/v1/receipt"
)

var (
	// ErrValidation marks caller errors. Never retried.
	ErrValidation = errors.New("invalid search criteria")

	// ErrBackingStoreTimeout is a store call that ran past its budget.
	ErrBackingStoreTimeout = errors.New("backing store timeout")

	// ErrExternalServiceUnavailable is an embedding or reasoning failure.
	// The orchestrator absorbs it into a degraded outcome.
	ErrExternalServiceUnavailable = errors.New("external service unavailable")

	// ErrUnsafeStatement is generated SQL that failed vetting.
	ErrUnsafeStatement = errors.New("unsafe statement")
)

// ValidationError lists the offending fields, keyed by JSON name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func newValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// Error kinds reported to callers and metrics.
const (
	KindValidation        = "validation"
	KindTimeout           = "backing_store_timeout"
	KindPoolExhausted     = "pool_exhausted"
	KindCredentialExpired = "credential_expired"
	KindExternalService   = "external_service_unavailable"
	KindNotFound          = "not_found"
	KindCanceled          = "canceled"
	KindInternal          = "internal"
)

// Kind classifies err into one of the Kind constants.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation), errors.Is(err, receipt.ErrInvalidReceipt), errors.Is(err, receipt.ErrInvalidPredicate):
		return KindValidation
	case errors.Is(err, pool.ErrCredentialExpired):
		return KindCredentialExpired
	case errors.Is(err, pool.ErrPoolExhausted):
		return KindPoolExhausted
	case errors.Is(err, ErrBackingStoreTimeout), errors.Is(err, pool.ErrQueryTimeout):
		return KindTimeout
	case errors.Is(err, ErrExternalServiceUnavailable):
		return KindExternalService
	case errors.Is(err, receipt.ErrReceiptNotFound):
		return KindNotFound
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}
	return KindInternal
}

// IsRetryable reports whether the caller may retry with backoff.
func IsRetryable(err error) bool {
	switch Kind(err) {
	case KindPoolExhausted, KindTimeout:
		return true
	}
	return false
}

// isStoreTimeout reports a store call that hit its own deadline, as opposed
// to the request being cancelled.
func isStoreTimeout(parent context.Context, err error) bool {
	if parent.Err() != nil {
		return false
	}
	return pool.IsTimeout(err)
}

// isPoolFailure reports errors that always propagate to the caller.
func isPoolFailure(err error) bool {
	return errors.Is(err, pool.ErrPoolExhausted) ||
		errors.Is(err, pool.ErrCredentialExpired) ||
		errors.Is(err, pool.ErrPoolClosed)
}
