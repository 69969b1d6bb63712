package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlidingWindowRecordsSuccessAndFailure(t *testing.T) {
	w := newSlidingWindow(time.Second, 10)
	w.recordSuccess()
	w.recordSuccess()
	w.recordFailure()

	success, failure := w.counts()
	assert.Equal(t, uint64(2), success)
	assert.Equal(t, uint64(1), failure)
	assert.Equal(t, uint64(3), w.total())
}

func TestSlidingWindowErrorRate(t *testing.T) {
	w := newSlidingWindow(time.Second, 10)
	for i := 0; i < 3; i++ {
		w.recordSuccess()
	}
	w.recordFailure()

	assert.InDelta(t, 0.25, w.errorRate(), 0.001)
}

func TestSlidingWindowErrorRateWithNoSamplesIsZero(t *testing.T) {
	w := newSlidingWindow(time.Second, 10)
	assert.Equal(t, float64(0), w.errorRate())
}

func TestSlidingWindowAgesOutOldBuckets(t *testing.T) {
	w := newSlidingWindow(30*time.Millisecond, 3)
	w.recordFailure()
	require := assert.New(t)
	require.Equal(uint64(1), w.total())

	time.Sleep(40 * time.Millisecond)
	w.recordSuccess()

	success, failure := w.counts()
	require.Equal(uint64(1), success)
	require.Equal(uint64(0), failure, "failure recorded outside the window should have aged out")
}
