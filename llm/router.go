package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/fluxweave/conductor/conductorerr"
	"github.com/fluxweave/conductor/core"
)

// DefaultTierAssignment maps an Operation onto the Tier that handles it.
// Cheap, low-risk operations (parameter extraction, the direct-answer
// probe) route to TierSimple; tree creation and retry-strategy suggestion
// route to TierComplex since a bad answer there derails the whole request.
var DefaultTierAssignment = map[Operation]Tier{
	OpFeasibility:      TierSimple,
	OpParameterExtract: TierSimple,
	OpDirectAnswer:     TierSimple,
	OpEvaluate:         TierMedium,
	OpCompare:          TierMedium,
	OpGenerateAnswer:   TierMedium,
	OpCreateTree:       TierComplex,
	OpRetryStrategy:    TierComplex,
}

// Router dispatches a structured operation to the Client registered for
// its tier, retrying transient provider errors with exponential backoff
// and optionally recording every call for later replay.
type Router struct {
	clients     map[Tier]Client
	assignments map[Operation]Tier
	logger      core.Logger
	telemetry   core.Telemetry
	debugger    DebugRecorder
	maxAttempts int
}

// RouterOption configures a Router at construction time.
type RouterOption func(*Router)

// WithLogger sets the router's logger.
func WithLogger(logger core.Logger) RouterOption {
	return func(r *Router) { r.logger = logger }
}

// WithTelemetry sets the router's telemetry provider.
func WithTelemetry(t core.Telemetry) RouterOption {
	return func(r *Router) { r.telemetry = t }
}

// WithDebugRecorder enables LLM call/response capture, disabled by default.
func WithDebugRecorder(rec DebugRecorder) RouterOption {
	return func(r *Router) { r.debugger = rec }
}

// WithTierAssignment overrides the default operation-to-tier mapping.
func WithTierAssignment(assignments map[Operation]Tier) RouterOption {
	return func(r *Router) { r.assignments = assignments }
}

// WithMaxAttempts overrides the retry budget for transient provider errors
// (default 3).
func WithMaxAttempts(n int) RouterOption {
	return func(r *Router) { r.maxAttempts = n }
}

// NewRouter builds a Router with one Client registered per tier. Missing
// tiers fall back to the next cheaper tier at dispatch time.
func NewRouter(clients map[Tier]Client, opts ...RouterOption) *Router {
	r := &Router{
		clients:     clients,
		assignments: DefaultTierAssignment,
		logger:      &core.NoOpLogger{},
		telemetry:   &core.NoOpTelemetry{},
		debugger:    noopDebugRecorder{},
		maxAttempts: 3,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// clientFor resolves the Client for op's assigned tier, falling back to a
// cheaper tier if the exact tier has no registered client — a deployment
// that only configures a "simple" provider can still run every operation,
// just without the quality a higher tier would offer.
func (r *Router) clientFor(op Operation) (Client, Tier, error) {
	tier, ok := r.assignments[op]
	if !ok {
		tier = TierMedium
	}
	fallbackOrder := []Tier{tier}
	switch tier {
	case TierComplex:
		fallbackOrder = append(fallbackOrder, TierMedium, TierSimple)
	case TierMedium:
		fallbackOrder = append(fallbackOrder, TierSimple)
	}
	for _, t := range fallbackOrder {
		if c, ok := r.clients[t]; ok {
			return c, t, nil
		}
	}
	return nil, "", conductorerr.New("router.clientFor", "llm", conductorerr.ErrLLMUnavailable).WithID(string(op))
}

// Dispatch routes prompt to the appropriate tiered client for op, retrying
// transient failures with exponential backoff via cenkalti/backoff.
func (r *Router) Dispatch(ctx context.Context, op Operation, prompt string) (string, error) {
	ctx, span := r.telemetry.StartSpan(ctx, "llm.dispatch")
	defer span.End()
	span.SetAttribute("operation", string(op))

	client, tier, err := r.clientFor(op)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	span.SetAttribute("tier", string(tier))

	start := time.Now()
	operation := func() (string, error) {
		resp, err := client.Complete(ctx, op, prompt)
		if err != nil && conductorerr.IsRetryable(err) {
			return "", err
		}
		if err != nil {
			return "", backoff.Permanent(err)
		}
		return resp, nil
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithMaxTries(uint(r.maxAttempts)),
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
	)

	r.debugger.Record(ctx, op, prompt, resp, err)
	r.telemetry.RecordMetric("llm.dispatch.duration_ms", float64(time.Since(start).Milliseconds()), map[string]string{
		"operation": string(op), "tier": string(tier),
	})

	if err != nil {
		span.RecordError(err)
		r.logger.ErrorWithContext(ctx, "llm dispatch failed", map[string]interface{}{
			"operation": string(op), "tier": string(tier), "error": err.Error(),
		})
		return "", fmt.Errorf("llm dispatch %s: %w", op, err)
	}

	return resp, nil
}
