package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger(tracing bool) (*LoggerClient, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &LoggerClient{Zap: zap.New(core), tracingEnabled: tracing}, logs
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		Debug:     zapcore.DebugLevel,
		Info:      zapcore.InfoLevel,
		Warning:   zapcore.WarnLevel,
		Error:     zapcore.ErrorLevel,
		"verbose": zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFieldsAndError(t *testing.T) {
	l, logs := newObservedLogger(false)

	l.Warn("pool exhausted", errors.New("boom"),
		map[string]interface{}{"in_use": 10},
		map[string]interface{}{"in_use": 9, "max": 10},
	)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	ctx := entry.ContextMap()
	assert.Equal(t, "boom", ctx["error"])
	assert.EqualValues(t, 9, ctx["in_use"])
	assert.EqualValues(t, 10, ctx["max"])
}

func TestWithContextAddsTraceIDs(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	l, logs := newObservedLogger(true)
	l.InfoWithContext(ctx, "search", nil, map[string]interface{}{"strategy": "exact"})

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, traceID.String(), fields["trace_id"])
	assert.Equal(t, spanID.String(), fields["span_id"])
	assert.Equal(t, "exact", fields["strategy"])
}

func TestWithContextTracingDisabled(t *testing.T) {
	l, logs := newObservedLogger(false)
	l.ErrorWithContext(context.Background(), "failed", nil)

	fields := logs.All()[0].ContextMap()
	_, ok := fields["trace_id"]
	assert.False(t, ok)
}
