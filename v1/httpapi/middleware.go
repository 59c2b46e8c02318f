package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Logger is the subset of v1/logger.Logger used by the HTTP layer.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
	InfoWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
}

// Recorder receives one call per finished request. *metrics.Metrics
// satisfies it.
type Recorder interface {
	RecordRequest(route string, code int, start time.Time)
}

// Tracer opens request spans. *tracer.Tracer satisfies it.
type Tracer interface {
	ExtractHTTP(ctx context.Context, h http.Header) context.Context
	StartSpan(ctx context.Context, name string) (context.Context, trace.Span)
	SetAttributes(span trace.Span, attrs map[string]interface{})
}

const requestIDHeader = "X-Request-ID"

type ctxKey int

const requestIDKey ctxKey = iota

// RequestIDFromContext returns the id set by RequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// RequestID reuses a valid incoming X-Request-ID or generates one, and
// echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// Recover turns a handler panic into a 500.
func Recover(log Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.ErrorWithContext(r.Context(), "Panic recovered", fmt.Errorf("%v", rec), map[string]interface{}{
						"stack":      string(debug.Stack()),
						"method":     r.Method,
						"path":       r.URL.Path,
						"request_id": RequestIDFromContext(r.Context()),
					})
					internalError(w)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Timeout bounds the request context. Handlers see the deadline through
// r.Context(); the search orchestrator derives its per-call timeouts from
// it.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Observe joins the caller's trace, opens a span per request, and logs and
// records the request once it finishes. Tracer and Recorder may be nil.
func Observe(log Logger, t Tracer, rec Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()

			var span trace.Span
			if t != nil {
				ctx = t.ExtractHTTP(ctx, r.Header)
				ctx, span = t.StartSpan(ctx, r.Method+" "+r.URL.Path)
				defer span.End()
			}

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			r = r.WithContext(ctx)
			next.ServeHTTP(sw, r)

			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}

			if span != nil {
				t.SetAttributes(span, map[string]interface{}{
					"http.method": r.Method,
					"http.route":  route,
					"http.status": sw.status,
				})
			}
			if rec != nil {
				rec.RecordRequest(route, sw.status, start)
			}
			log.InfoWithContext(ctx, "HTTP request", nil, map[string]interface{}{
				"method":      r.Method,
				"route":       route,
				"status":      sw.status,
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  RequestIDFromContext(ctx),
			})
		})
	}
}
