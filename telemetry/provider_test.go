package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderRejectsEmptyServiceName(t *testing.T) {
	_, err := NewProvider("", "")
	assert.Error(t, err)
}

func TestNewProviderStdoutMode(t *testing.T) {
	p, err := NewProvider("conductor-test", "")
	require.NoError(t, err)
	require.NotNil(t, p)
	defer p.Shutdown(context.Background())

	ctx, span := p.StartSpan(context.Background(), "test-span")
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	span.SetAttribute("key", "value")
	span.End()
}

func TestHasSuffix(t *testing.T) {
	assert.True(t, hasSuffix("requests_total", "_total"))
	assert.True(t, hasSuffix("errors_count", "_count"))
	assert.False(t, hasSuffix("request_latency_seconds", "_total"))
	assert.False(t, hasSuffix("short", "_count_longer_than_short"))
}

func TestRecordMetricAfterShutdownIsNoOp(t *testing.T) {
	p, err := NewProvider("conductor-test", "")
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(context.Background()))

	assert.NotPanics(t, func() {
		p.RecordMetric("requests_total", 1, map[string]string{"outcome": "ok"})
	})
}

func TestShutdownIsIdempotent(t *testing.T) {
	p, err := NewProvider("conductor-test", "")
	require.NoError(t, err)

	require.NoError(t, p.Shutdown(context.Background()))
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestStartSpanAfterShutdownReturnsNoOpSpan(t *testing.T) {
	p, err := NewProvider("conductor-test", "")
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(context.Background()))

	_, span := p.StartSpan(context.Background(), "after-shutdown")
	require.NotNil(t, span)
	assert.NotPanics(t, func() {
		span.SetAttribute("k", "v")
		span.RecordError(assert.AnError)
		span.End()
	})
}
