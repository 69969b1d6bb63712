// Package capability defines the self-describing executable unit the
// planner targets and the executor invokes, plus the registry that holds
// them. A capability executes in-process via a direct Execute call; the
// HTTP shape survives as RemoteCapability for capabilities that live in
// another process.
package capability

import "context"

// ParamSpec describes one argument a capability function accepts.
type ParamSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "string", "number", "boolean", "object", "array"
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// FunctionSpec describes one callable operation a capability exposes.
type FunctionSpec struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Params      []ParamSpec `json:"params,omitempty"`
}

// Capability is a self-describing executable unit: a named collection of
// functions the planner can reference by (capability, function) pair and
// the executor invokes with a resolved argument map.
type Capability interface {
	// Name uniquely identifies this capability in the registry.
	Name() string
	// Description is the natural-language summary the LLM sees when
	// choosing which capability fits a step.
	Description() string
	// Functions lists the callable operations, used both for the LLM
	// catalog and for the validator's function-name repair pass.
	Functions() []FunctionSpec
	// Execute runs one function with resolved arguments, returning the
	// textual result the executor records as the node's output.
	Execute(ctx context.Context, function string, args map[string]interface{}) (string, error)
}

// CircuitBreakerConfig opts a capability into per-capability resilience;
// a capability that wants protection implements the optional
// CircuitBreakerOption interface below and returns Enabled: true.
type CircuitBreakerConfig struct {
	Enabled bool
}

// CircuitBreakerOption is implemented by capabilities that want the
// executor to wrap every Execute call in a circuit breaker.
type CircuitBreakerOption interface {
	CircuitBreakerConfig() CircuitBreakerConfig
}
