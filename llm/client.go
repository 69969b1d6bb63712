// Package llm provides the LLM Task Router: a tiered dispatch layer that
// maps each of the planner's structured operations (feasibility check,
// parameter extraction, evaluation, tree creation, ...) onto a
// SIMPLE/MEDIUM/COMPLEX provider tier.
package llm

import "context"

// Tier names a cost/capability bucket a task router maps operations onto.
type Tier string

const (
	TierSimple  Tier = "simple"
	TierMedium  Tier = "medium"
	TierComplex Tier = "complex"
)

// Operation names one of the structured LLM calls the kernel issues.
// Every operation the planner, validator, and executor need is named
// here so the router has a single place to assign tiers.
type Operation string

const (
	OpFeasibility      Operation = "feasibility"       // can this request be satisfied at all?
	OpParameterExtract Operation = "parameter_extract"  // derive a sequential child's args from its sibling's result
	OpDirectAnswer     Operation = "direct_answer_probe" // can this be answered without a tree at all?
	OpEvaluate         Operation = "evaluate"            // did the executed tree satisfy the request?
	OpCompare          Operation = "compare"             // did this retry make significant progress over the last?
	OpGenerateAnswer   Operation = "generate_answer"      // produce the final natural-language answer
	OpCreateTree       Operation = "create_tree"          // produce an ExecutionTree for the request
	OpRetryStrategy    Operation = "retry_strategy"       // suggest how to repair the plan after a failed attempt
)

// Client is the structured contract an LLM provider implementation
// fulfills for one operation.
type Client interface {
	// Complete issues a single structured prompt/response round trip for
	// op and returns the raw text response; callers that need structured
	// data (a tree, a bool) parse it from this text. Kept as one method
	// rather than eight because every operation shares the same
	// request/response shape — only the prompt content differs, which is
	// the router's job to build, not the client's.
	Complete(ctx context.Context, op Operation, prompt string) (string, error)
}

// DebugRecorder optionally captures every LLM call/response pair for later
// replay when diagnosing a bad plan. Disabled by default (see
// Router.debugger).
type DebugRecorder interface {
	Record(ctx context.Context, op Operation, prompt, response string, err error)
}

// noopDebugRecorder discards every call.
type noopDebugRecorder struct{}

func (noopDebugRecorder) Record(ctx context.Context, op Operation, prompt, response string, err error) {
}
