// Package core provides the fundamental abstractions shared across the
// orchestration kernel: logging, telemetry, and circuit-breaker contracts.
// Concrete implementations live in sibling packages (telemetry, resilience);
// core only defines the interfaces so that capability, executor, and llm
// can depend on behavior without depending on a specific backend.
package core

import (
	"context"
	"time"
)

// CircuitBreaker protects a downstream call (capability invocation, LLM
// provider call) against cascading failure by tripping open after a run of
// failures and refusing further calls until a recovery window elapses.
type CircuitBreaker interface {
	// Execute runs fn under circuit-breaker protection. Returns immediately
	// without calling fn if the circuit is open.
	Execute(ctx context.Context, fn func() error) error

	// ExecuteWithTimeout is Execute with an additional per-call timeout.
	ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn func() error) error

	// GetState reports "closed", "open", or "half-open".
	GetState() string

	GetMetrics() map[string]interface{}

	// Reset forces the circuit back to closed, clearing failure counts.
	Reset()

	// CanExecute reports whether a call would be allowed right now.
	CanExecute() bool
}

// CircuitBreakerConfig configures a CircuitBreaker implementation.
type CircuitBreakerConfig struct {
	Enabled          bool          `json:"enabled" yaml:"enabled"`
	Threshold        int           `json:"threshold" yaml:"threshold"`
	Timeout          time.Duration `json:"timeout" yaml:"timeout"`
	HalfOpenRequests int           `json:"half_open_requests" yaml:"half_open_requests"`
}

// CircuitBreakerParams bundles config with optional observability hooks for
// implementations that want to log state transitions or emit metrics.
type CircuitBreakerParams struct {
	Name      string
	Config    CircuitBreakerConfig
	Logger    Logger
	Telemetry Telemetry
}

// DefaultCircuitBreakerParams returns sensible defaults: trip after 5
// consecutive failures, 30s before the half-open probe.
func DefaultCircuitBreakerParams(name string) CircuitBreakerParams {
	return CircuitBreakerParams{
		Name: name,
		Config: CircuitBreakerConfig{
			Enabled:          true,
			Threshold:        5,
			Timeout:          30 * time.Second,
			HalfOpenRequests: 3,
		},
	}
}
