package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	appctx "recordshop/internal/core/context"
)

func TestFromContext_AddsTraceFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := &Logger{zap.New(core).Sugar()}

	ctx := WithLogger(context.Background(), l)
	ctx = appctx.WithCorrelation(ctx, appctx.Correlation{TraceID: "t-1", RequestID: "r-1"})

	Info(ctx, "order placed", "record_id", "abc")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "t-1", fields["trace_id"])
		assert.Equal(t, "r-1", fields["request_id"])
		assert.Equal(t, "abc", fields["record_id"])
	}
}

func TestNew_FallsBackToInfoOnBadLevel(t *testing.T) {
	l, err := New(Config{Level: "loud", OutputPaths: []string{"stderr"}})
	assert.NoError(t, err)
	assert.False(t, l.Desugar().Core().Enabled(zap.DebugLevel))
	assert.True(t, l.Desugar().Core().Enabled(zap.InfoLevel))
}

func TestFromContext_FallsBackToSpanTraceID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := WithLogger(context.Background(), &Logger{zap.New(core).Sugar()})

	traceID := trace.TraceID{0x4b, 0xf9, 0x2f, 0x35, 0x77, 0xb3, 0x4d, 0xa6, 0xa3, 0xce, 0x92, 0x9d, 0x0e, 0x0e, 0x47, 0x36}
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: trace.SpanID{1}})
	ctx = trace.ContextWithSpanContext(ctx, sc)

	Warn(ctx, "outbox message failed")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", fields["trace_id"])
		assert.NotContains(t, fields, "request_id")
	}
}
