// Package conductorerr provides the sentinel errors and structured error
// wrapper shared across the orchestration kernel: sentinels for errors.Is
// comparison, a wrapper carrying operation/kind/id context, and classifier
// helpers downstream retry logic can switch on without string matching.
package conductorerr

import (
	"errors"
	"fmt"
)

// Sentinel errors for comparison via errors.Is.
var (
	// Capability registry errors.
	ErrCapabilityNotFound = errors.New("capability not found")
	ErrFunctionNotFound   = errors.New("function not found on capability")
	ErrCapabilityExists   = errors.New("capability already registered")

	// Plan validation errors.
	ErrPlanValidationFailed = errors.New("plan failed validation")
	ErrMaxDepthExceeded     = errors.New("plan exceeds maximum tree depth")
	ErrCycleDetected        = errors.New("plan contains a dependency cycle")
	ErrEmptyPlan            = errors.New("plan has no root nodes")

	// Execution errors.
	ErrNodeSkipped        = errors.New("node skipped because its parent did not succeed")
	ErrExecutionCancelled = errors.New("execution cancelled")

	// Planner/coordinator errors.
	ErrMaxAttemptsReached       = errors.New("maximum retry attempts reached")
	ErrNoSignificantProgress    = errors.New("no significant progress across retries")
	ErrRetryStrategyUnavailable = errors.New("llm could not produce a retry strategy")
	ErrRequestInfeasible        = errors.New("request judged infeasible")

	// LLM client errors.
	ErrLLMUnavailable     = errors.New("llm provider unavailable")
	ErrLLMResponseInvalid = errors.New("llm response could not be parsed")

	// Configuration and lifecycle errors.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")
	ErrAlreadyShuttingDown  = errors.New("shutdown already in progress")
	ErrTimeout              = errors.New("operation timeout")
)

// ConductorError provides structured error context and supports wrapping:
// Op names the failing operation (e.g. "executor.runNode"), Kind classifies
// it (e.g. "capability", "validation", "planner"), and ID optionally names
// the entity involved (a node ID, request ID, or capability name).
type ConductorError struct {
	Op      string
	Kind    string
	ID      string
	Message string
	Err     error
}

func (e *ConductorError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *ConductorError) Unwrap() error {
	return e.Err
}

// New creates a ConductorError.
func New(op, kind string, err error) *ConductorError {
	return &ConductorError{Op: op, Kind: kind, Err: err}
}

// WithID returns a copy of e with ID set, so call sites can chain:
//
//	conductorerr.New("executor.runNode", "capability", conductorerr.ErrCapabilityNotFound).WithID(node.ID)
func (e *ConductorError) WithID(id string) *ConductorError {
	cp := *e
	cp.ID = id
	return &cp
}

// IsRetryable reports whether an error represents a transient condition a
// caller may reasonably retry (LLM provider hiccup, timeout).
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLLMUnavailable) ||
		errors.Is(err, ErrTimeout)
}

// IsTerminal reports whether an error should stop the retry loop outright
// rather than trigger another attempt — these are the short-circuit kinds
// named in the planner's state machine.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrRequestInfeasible) ||
		errors.Is(err, ErrNoSignificantProgress) ||
		errors.Is(err, ErrRetryStrategyUnavailable) ||
		errors.Is(err, ErrMaxAttemptsReached)
}

// IsNotFound reports whether an error represents a missing capability or
// function lookup.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCapabilityNotFound) ||
		errors.Is(err, ErrFunctionNotFound)
}

// IsValidationError reports whether an error originates from plan
// validation rather than execution.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrPlanValidationFailed) ||
		errors.Is(err, ErrMaxDepthExceeded) ||
		errors.Is(err, ErrCycleDetected) ||
		errors.Is(err, ErrEmptyPlan)
}
