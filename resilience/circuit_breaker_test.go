package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		Name:             "test",
		ErrorThreshold:   0.5,
		VolumeThreshold:  4,
		SleepWindow:      20 * time.Millisecond,
		HalfOpenRequests: 2,
		SuccessThreshold: 0.5,
		WindowSize:       time.Second,
		BucketCount:      10,
	}
}

func TestCircuitBreakerStartsClosed(t *testing.T) {
	cb := New(testConfig())
	assert.Equal(t, "closed", cb.GetState())
	assert.True(t, cb.CanExecute())
}

func TestCircuitBreakerTripsOnErrorRateAndVolume(t *testing.T) {
	cb := New(testConfig())
	failing := errors.New("boom")

	for i := 0; i < 4; i++ {
		_ = cb.Execute(context.Background(), func() error { return failing })
	}

	assert.Equal(t, "open", cb.GetState())
}

func TestCircuitBreakerBelowVolumeThresholdStaysClosed(t *testing.T) {
	cb := New(testConfig())
	failing := errors.New("boom")

	_ = cb.Execute(context.Background(), func() error { return failing })
	_ = cb.Execute(context.Background(), func() error { return failing })

	assert.Equal(t, "closed", cb.GetState())
}

func TestCircuitBreakerRejectsWhileOpen(t *testing.T) {
	cb := New(testConfig())
	failing := errors.New("boom")
	for i := 0; i < 4; i++ {
		_ = cb.Execute(context.Background(), func() error { return failing })
	}
	require.Equal(t, "open", cb.GetState())

	err := cb.Execute(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrOpen)
}

func TestCircuitBreakerHalfOpenClosesOnSuccess(t *testing.T) {
	cfg := testConfig()
	cb := New(cfg)
	failing := errors.New("boom")
	for i := 0; i < 4; i++ {
		_ = cb.Execute(context.Background(), func() error { return failing })
	}
	require.Equal(t, "open", cb.GetState())

	time.Sleep(cfg.SleepWindow + 5*time.Millisecond)

	for i := 0; i < cfg.HalfOpenRequests; i++ {
		err := cb.Execute(context.Background(), func() error { return nil })
		assert.NoError(t, err)
	}

	assert.Equal(t, "closed", cb.GetState())
}

func TestCircuitBreakerHalfOpenReopensOnFailure(t *testing.T) {
	cfg := testConfig()
	cb := New(cfg)
	failing := errors.New("boom")
	for i := 0; i < 4; i++ {
		_ = cb.Execute(context.Background(), func() error { return failing })
	}
	require.Equal(t, "open", cb.GetState())

	time.Sleep(cfg.SleepWindow + 5*time.Millisecond)

	for i := 0; i < cfg.HalfOpenRequests; i++ {
		_ = cb.Execute(context.Background(), func() error { return failing })
	}

	assert.Equal(t, "open", cb.GetState())
}

func TestCircuitBreakerResetReturnsToClosed(t *testing.T) {
	cb := New(testConfig())
	failing := errors.New("boom")
	for i := 0; i < 4; i++ {
		_ = cb.Execute(context.Background(), func() error { return failing })
	}
	require.Equal(t, "open", cb.GetState())

	cb.Reset()
	assert.Equal(t, "closed", cb.GetState())
	assert.True(t, cb.CanExecute())
}

func TestCircuitBreakerGetMetrics(t *testing.T) {
	cb := New(testConfig())
	_ = cb.Execute(context.Background(), func() error { return nil })
	_ = cb.Execute(context.Background(), func() error { return errors.New("boom") })

	metrics := cb.GetMetrics()
	assert.Equal(t, "test", metrics["name"])
	assert.Equal(t, "closed", metrics["state"])
}

func TestExecuteWithTimeoutRecordsFailureOnDeadlineExceeded(t *testing.T) {
	cb := New(testConfig())
	err := cb.ExecuteWithTimeout(context.Background(), 5*time.Millisecond, func() error {
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
