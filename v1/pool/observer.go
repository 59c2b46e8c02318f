package pool

import "time"

// Logger is the subset of v1/logger.Logger the pool needs.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
}

// Observer receives pool events, typically to export them as metrics.
type Observer interface {
	// ObserveAcquire is called after every Acquire with "ok", "exhausted",
	// "credential_expired", "closed" or "error".
	ObserveAcquire(result string, wait time.Duration)

	// ObserveRotation is called after every rotation attempt with "ok"
	// or "error".
	ObserveRotation(result string)

	// ObservePoolStats is called after every rotation and release-heavy
	// event with the manager snapshot.
	ObservePoolStats(stats ManagerStats)
}

type nopLogger struct{}

func (nopLogger) Info(string, error, ...map[string]interface{})  {}
func (nopLogger) Warn(string, error, ...map[string]interface{})  {}
func (nopLogger) Error(string, error, ...map[string]interface{}) {}

type nopObserver struct{}

func (nopObserver) ObserveAcquire(string, time.Duration) {}
func (nopObserver) ObserveRotation(string)               {}
func (nopObserver) ObservePoolStats(ManagerStats)        {}

func acquireResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case isErr(err, ErrPoolExhausted):
		return "exhausted"
	case isErr(err, ErrCredentialExpired):
		return "credential_expired"
	case isErr(err, ErrPoolClosed):
		return "closed"
	default:
		return "error"
	}
}
