package resilience

import (
	"sync"
	"sync/atomic"
	"time"
)

type bucket struct {
	timestamp time.Time
	success   uint64
	failure   uint64
}

// slidingWindow tracks success/failure counts over a rolling time window,
// divided into fixed buckets that age out as time advances.
type slidingWindow struct {
	mu         sync.Mutex
	buckets    []bucket
	windowSize time.Duration
	bucketSize time.Duration
	currentIdx int
	lastRotate time.Time
}

func newSlidingWindow(windowSize time.Duration, bucketCount int) *slidingWindow {
	now := time.Now()
	buckets := make([]bucket, bucketCount)
	for i := range buckets {
		buckets[i].timestamp = now
	}
	return &slidingWindow{
		buckets:    buckets,
		windowSize: windowSize,
		bucketSize: windowSize / time.Duration(bucketCount),
		lastRotate: now,
	}
}

func (w *slidingWindow) rotate() {
	now := time.Now()
	elapsed := now.Sub(w.lastRotate)
	if elapsed < w.bucketSize {
		return
	}
	steps := int(elapsed / w.bucketSize)
	if steps > len(w.buckets) {
		steps = len(w.buckets)
	}
	for i := 0; i < steps; i++ {
		w.currentIdx = (w.currentIdx + 1) % len(w.buckets)
		w.buckets[w.currentIdx] = bucket{timestamp: now}
	}
	w.lastRotate = now
}

func (w *slidingWindow) recordSuccess() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rotate()
	atomic.AddUint64(&w.buckets[w.currentIdx].success, 1)
}

func (w *slidingWindow) recordFailure() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rotate()
	atomic.AddUint64(&w.buckets[w.currentIdx].failure, 1)
}

func (w *slidingWindow) counts() (success, failure uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	cutoff := time.Now().Add(-w.windowSize)
	for i := range w.buckets {
		if w.buckets[i].timestamp.After(cutoff) {
			success += w.buckets[i].success
			failure += w.buckets[i].failure
		}
	}
	return success, failure
}

func (w *slidingWindow) total() uint64 {
	success, failure := w.counts()
	return success + failure
}

func (w *slidingWindow) errorRate() float64 {
	success, failure := w.counts()
	total := success + failure
	if total == 0 {
		return 0
	}
	return float64(failure) / float64(total)
}
