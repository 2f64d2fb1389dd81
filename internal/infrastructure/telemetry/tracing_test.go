package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func attrMap(kvs []attribute.KeyValue) map[string]attribute.Value {
	out := make(map[string]attribute.Value, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value
	}
	return out
}

func TestStartServiceSpan(t *testing.T) {
	recorder := installRecorder(t)

	ctx, span := StartServiceSpan(context.Background(), "payment_ledger", "process",
		WithAttribute(SpanAttrBatchSize, 3),
		WithSpanKind(trace.SpanKindServer))
	assert.NotEmpty(t, GetTraceID(ctx))

	SetAttributes(span,
		SpanAttrPaymentID, "p-1",
		SpanAttrAmount, 12.5,
		42, "skipped",
		"trailing")
	AddEvent(span, "debt_paid", SpanAttrDebtID, "d-1")
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	s := ended[0]
	assert.Equal(t, "payment_ledger.process", s.Name())
	assert.Equal(t, trace.SpanKindServer, s.SpanKind())

	attrs := attrMap(s.Attributes())
	assert.Equal(t, int64(3), attrs[SpanAttrBatchSize].AsInt64())
	assert.Equal(t, "p-1", attrs[SpanAttrPaymentID].AsString())
	assert.Equal(t, 12.5, attrs[SpanAttrAmount].AsFloat64())
	assert.NotContains(t, attrs, "trailing")
	assert.Len(t, attrs, 3)

	require.Len(t, s.Events(), 1)
	assert.Equal(t, "debt_paid", s.Events()[0].Name)
}

func TestRecordError(t *testing.T) {
	recorder := installRecorder(t)

	_, span := StartSpan(context.Background(), "op")
	RecordError(span, nil)
	RecordError(span, errors.New("boom"))
	span.End()

	s := recorder.Ended()[0]
	assert.Equal(t, codes.Error, s.Status().Code)
	assert.Equal(t, "boom", s.Status().Description)
	require.Len(t, s.Events(), 1)
	assert.Equal(t, "exception", s.Events()[0].Name)
}

func TestHelpersTolerateNilSpan(t *testing.T) {
	assert.NotPanics(t, func() {
		SetAttributes(nil, "k", "v")
		RecordError(nil, errors.New("x"))
		AddEvent(nil, "e")
	})
	assert.Empty(t, GetTraceID(context.Background()))
}

func TestToAttribute(t *testing.T) {
	tests := []struct {
		value any
		want  attribute.Value
	}{
		{"s", attribute.StringValue("s")},
		{7, attribute.IntValue(7)},
		{int64(8), attribute.Int64Value(8)},
		{true, attribute.BoolValue(true)},
		{[]string{"a"}, attribute.StringSliceValue([]string{"a"})},
		{codes.Error, attribute.StringValue("Error")},
		{struct{ N int }{1}, attribute.StringValue("{1}")},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, toAttribute("k", tt.value).Value)
	}
}

func TestSamplerFor(t *testing.T) {
	assert.Contains(t, samplerFor(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, samplerFor(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, samplerFor(0.25).Description(), "TraceIDRatioBased")
}

func TestDisabledProviders(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	tp, err := NewTracerProvider(ctx, Config{Enabled: false}, logger)
	require.NoError(t, err)
	assert.False(t, tp.IsEnabled())
	assert.NoError(t, tp.Shutdown(ctx))

	mp, err := NewMeterProvider(ctx, MetricsConfig{Enabled: false}, logger)
	require.NoError(t, err)
	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("x"))
	assert.NoError(t, mp.Shutdown(ctx))

	lp, err := NewLoggerProvider(ctx, LogsConfig{Enabled: false}, logger)
	require.NoError(t, err)
	assert.False(t, lp.IsEnabled())
	assert.NoError(t, lp.Shutdown(ctx))
	assert.False(t, NewZapOTELCore("farmpay", lp, zapcore.InfoLevel).Enabled(zapcore.ErrorLevel))

	p, err := NewProfiler(ProfilerConfig{Enabled: false}, logger)
	require.NoError(t, err)
	assert.False(t, p.IsEnabled())
	assert.NoError(t, p.Stop())
}

func TestNewProfilerRequiresAddress(t *testing.T) {
	_, err := NewProfiler(ProfilerConfig{Enabled: true, ApplicationName: "farmpay"}, zap.NewNop())
	assert.Error(t, err)
}

func TestProfileTypes(t *testing.T) {
	cfg := ProfilerConfig{ProfileCPU: true, ProfileAlloc: true, ProfileMutex: true}
	assert.Len(t, cfg.profileTypes(), 5)
	assert.Empty(t, ProfilerConfig{}.profileTypes())
}
