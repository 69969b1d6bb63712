// Package resilience provides the concrete core.CircuitBreaker
// implementation used by the executor to protect capability invocations,
// and a retry helper with exponential backoff. A time-bucketed error-rate
// window drives closed/open/half-open transitions, scoped to per-capability
// protection rather than a generic service-mesh primitive.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fluxweave/conductor/core"
)

// CircuitState is the lifecycle state of a CircuitBreaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Execute/ExecuteWithTimeout when the circuit is
// open and rejecting calls.
var ErrOpen = errors.New("circuit breaker is open")

// Config configures a CircuitBreaker.
type Config struct {
	Name             string
	ErrorThreshold   float64       // error rate (0..1) that trips the circuit
	VolumeThreshold  int           // minimum samples before ErrorThreshold is evaluated
	SleepWindow      time.Duration // time open before probing half-open
	HalfOpenRequests int           // trial requests allowed while half-open
	SuccessThreshold float64       // success rate among trial requests needed to close
	WindowSize       time.Duration // sliding window duration for error-rate tracking
	BucketCount      int           // buckets within WindowSize

	Logger core.Logger
}

// DefaultConfig returns conservative defaults: 50% error rate over a 60s
// window with at least 10 samples trips the circuit for 30s before a
// half-open probe. The 30s timeout and 3 half-open requests match
// core.DefaultCircuitBreakerParams; its 5-failure threshold does not apply.
func DefaultConfig(name string) *Config {
	return &Config{
		Name:             name,
		ErrorThreshold:   0.5,
		VolumeThreshold:  10,
		SleepWindow:      30 * time.Second,
		HalfOpenRequests: 3,
		SuccessThreshold: 0.6,
		WindowSize:       60 * time.Second,
		BucketCount:      10,
		Logger:           &core.NoOpLogger{},
	}
}

// CircuitBreaker implements core.CircuitBreaker.
type CircuitBreaker struct {
	config *Config

	state          atomic.Value // CircuitState
	stateChangedAt atomic.Value // time.Time
	window         *slidingWindow

	halfOpenTotal     atomic.Int32
	halfOpenSuccesses atomic.Int32
	halfOpenFailures  atomic.Int32

	mu sync.Mutex
}

var _ core.CircuitBreaker = (*CircuitBreaker)(nil)

// New creates a circuit breaker. A nil config applies DefaultConfig("cb").
func New(config *Config) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig("cb")
	}
	if config.Logger == nil {
		config.Logger = &core.NoOpLogger{}
	}
	if config.BucketCount <= 0 {
		config.BucketCount = 10
	}
	if config.WindowSize <= 0 {
		config.WindowSize = 60 * time.Second
	}
	if config.HalfOpenRequests <= 0 {
		config.HalfOpenRequests = 1
	}

	cb := &CircuitBreaker{
		config: config,
		window: newSlidingWindow(config.WindowSize, config.BucketCount),
	}
	cb.state.Store(StateClosed)
	cb.stateChangedAt.Store(time.Now())
	return cb
}

// Execute implements core.CircuitBreaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	return cb.ExecuteWithTimeout(ctx, 0, fn)
}

// ExecuteWithTimeout implements core.CircuitBreaker.
func (cb *CircuitBreaker) ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn func() error) error {
	isHalfOpen, allowed := cb.reserve()
	if !allowed {
		cb.config.Logger.Debug("circuit breaker rejected call", map[string]interface{}{
			"name": cb.config.Name, "state": cb.GetState(),
		})
		return fmt.Errorf("%s: %w", cb.config.Name, ErrOpen)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in circuit breaker call: %v", r)
			}
		}()
		done <- fn()
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	cb.complete(isHalfOpen, err)
	return err
}

func (cb *CircuitBreaker) reserve() (isHalfOpen bool, allowed bool) {
	switch cb.state.Load().(CircuitState) {
	case StateClosed:
		return false, true
	case StateOpen:
		changedAt := cb.stateChangedAt.Load().(time.Time)
		if time.Since(changedAt) < cb.config.SleepWindow {
			return false, false
		}
		cb.mu.Lock()
		if cb.state.Load().(CircuitState) == StateOpen {
			cb.transition(StateHalfOpen)
		}
		cb.mu.Unlock()
		return cb.reserve()
	case StateHalfOpen:
		for {
			current := cb.halfOpenTotal.Load()
			if int(current) >= cb.config.HalfOpenRequests {
				return false, false
			}
			if cb.halfOpenTotal.CompareAndSwap(current, current+1) {
				return true, true
			}
		}
	default:
		return false, false
	}
}

func (cb *CircuitBreaker) complete(isHalfOpen bool, err error) {
	if err == nil {
		cb.window.recordSuccess()
		if isHalfOpen {
			cb.halfOpenSuccesses.Add(1)
		}
	} else {
		cb.window.recordFailure()
		if isHalfOpen {
			cb.halfOpenFailures.Add(1)
		}
	}
	cb.evaluate()
}

func (cb *CircuitBreaker) evaluate() {
	switch cb.state.Load().(CircuitState) {
	case StateClosed:
		total := cb.window.total()
		if cb.config.VolumeThreshold > 0 && total >= uint64(cb.config.VolumeThreshold) &&
			cb.window.errorRate() >= cb.config.ErrorThreshold {
			cb.mu.Lock()
			cb.transition(StateOpen)
			cb.mu.Unlock()
		}
	case StateHalfOpen:
		successes, failures := cb.halfOpenSuccesses.Load(), cb.halfOpenFailures.Load()
		attempted := successes + failures
		if int(attempted) >= cb.config.HalfOpenRequests {
			rate := float64(successes) / float64(attempted)
			cb.mu.Lock()
			if rate >= cb.config.SuccessThreshold {
				cb.transition(StateClosed)
			} else {
				cb.transition(StateOpen)
			}
			cb.mu.Unlock()
		}
	}
}

// transition must be called with cb.mu held.
func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state.Load().(CircuitState)
	if from == to {
		return
	}
	cb.state.Store(to)
	cb.stateChangedAt.Store(time.Now())
	if to == StateHalfOpen {
		cb.halfOpenTotal.Store(0)
		cb.halfOpenSuccesses.Store(0)
		cb.halfOpenFailures.Store(0)
	}
	cb.config.Logger.Info("circuit breaker state changed", map[string]interface{}{
		"name": cb.config.Name, "from": from.String(), "to": to.String(),
	})
}

// GetState implements core.CircuitBreaker.
func (cb *CircuitBreaker) GetState() string {
	return cb.state.Load().(CircuitState).String()
}

// GetMetrics implements core.CircuitBreaker.
func (cb *CircuitBreaker) GetMetrics() map[string]interface{} {
	success, failure := cb.window.counts()
	return map[string]interface{}{
		"name":       cb.config.Name,
		"state":      cb.GetState(),
		"success":    success,
		"failure":    failure,
		"error_rate": cb.window.errorRate(),
	}
}

// Reset implements core.CircuitBreaker.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state.Store(StateClosed)
	cb.stateChangedAt.Store(time.Now())
	cb.window = newSlidingWindow(cb.config.WindowSize, cb.config.BucketCount)
	cb.halfOpenTotal.Store(0)
	cb.halfOpenSuccesses.Store(0)
	cb.halfOpenFailures.Store(0)
}

// CanExecute implements core.CircuitBreaker.
func (cb *CircuitBreaker) CanExecute() bool {
	switch cb.state.Load().(CircuitState) {
	case StateClosed:
		return true
	case StateOpen:
		changedAt := cb.stateChangedAt.Load().(time.Time)
		return time.Since(changedAt) >= cb.config.SleepWindow
	case StateHalfOpen:
		return int(cb.halfOpenTotal.Load()) < cb.config.HalfOpenRequests
	default:
		return false
	}
}
