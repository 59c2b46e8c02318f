package search

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Logger is the subset of v1/logger.Logger used here.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
}

// Observer receives per-strategy and per-search events for metrics.
type Observer interface {
	// ObserveStrategy is called after every strategy attempt. result is
	// "hit", "empty", "timeout", "degraded" or "error".
	ObserveStrategy(strategy Strategy, result string, d time.Duration)

	// ObserveSearch is called once per search with the final strategy and
	// the error kind ("" on success).
	ObserveSearch(strategy Strategy, kind string, degraded bool, d time.Duration)
}

// Tracer starts spans around strategies. *tracer.Tracer satisfies it.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, trace.Span)
	RecordErrorOnSpan(span trace.Span, err error)
	SetAttributes(span trace.Span, attrs map[string]interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, error, ...map[string]interface{})  {}
func (nopLogger) Warn(string, error, ...map[string]interface{})  {}
func (nopLogger) Error(string, error, ...map[string]interface{}) {}

type nopObserver struct{}

func (nopObserver) ObserveStrategy(Strategy, string, time.Duration)     {}
func (nopObserver) ObserveSearch(Strategy, string, bool, time.Duration) {}

type nopTracer struct{}

func (nopTracer) StartSpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	return ctx, trace.SpanFromContext(ctx)
}
func (nopTracer) RecordErrorOnSpan(trace.Span, error)              {}
func (nopTracer) SetAttributes(trace.Span, map[string]interface{}) {}
