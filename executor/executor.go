// Package executor walks a validated plan.Tree, running each node's
// capability call and propagating results to its children according to the
// tree's sequential/parallel structure. Multi-root join uses
// golang.org/x/sync/errgroup, since "first error wins" is the correct join
// semantics at the top level; per-node child fan-out keeps a hand-rolled
// sync.WaitGroup because every child's outcome must be recorded even when
// a sibling fails.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fluxweave/conductor/capability"
	"github.com/fluxweave/conductor/conductorerr"
	"github.com/fluxweave/conductor/core"
	"github.com/fluxweave/conductor/execctx"
	"github.com/fluxweave/conductor/llm"
	"github.com/fluxweave/conductor/plan"
	"github.com/fluxweave/conductor/resilience"
)

// NodeCompleteCallback is invoked after every node finishes, success or
// failure — used by the planner to push incremental snapshots through the
// history event publisher as execution progresses.
type NodeCompleteCallback func(result *plan.NodeResult)

// Executor runs a plan.Tree against a capability registry.
type Executor struct {
	registry  *capability.Registry
	router    *llm.Router
	logger    core.Logger
	telemetry core.Telemetry

	breakers   map[string]*resilience.CircuitBreaker
	breakersMu sync.Mutex

	onNodeComplete NodeCompleteCallback
}

// Option configures an Executor at construction time.
type Option func(*Executor)

func WithLogger(logger core.Logger) Option       { return func(e *Executor) { e.logger = logger } }
func WithTelemetry(t core.Telemetry) Option      { return func(e *Executor) { e.telemetry = t } }
func WithRouter(r *llm.Router) Option            { return func(e *Executor) { e.router = r } }
func WithNodeComplete(cb NodeCompleteCallback) Option {
	return func(e *Executor) { e.onNodeComplete = cb }
}

// New builds an Executor bound to registry.
func New(registry *capability.Registry, opts ...Option) *Executor {
	e := &Executor{
		registry:  registry,
		logger:    &core.NoOpLogger{},
		telemetry: &core.NoOpTelemetry{},
		breakers:  make(map[string]*resilience.CircuitBreaker),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes every root of tree concurrently, joined with errgroup so
// the first root-level error short-circuits the others' context, records
// every node's outcome (including SKIPPED cascades) into ec, and returns
// the tree's effective result: the newline-joined concatenation of every
// root's aggregated result text.
func (e *Executor) Run(ctx context.Context, tree *plan.Tree, ec *execctx.ExecutionContext) (string, error) {
	g, gctx := errgroup.WithContext(ctx)
	results := make([]string, len(tree.Roots))
	for i, root := range tree.Roots {
		i, root := i, root
		g.Go(func() error {
			out, err := e.runSubtree(gctx, root, "", ec)
			results[i] = out
			return err
		})
	}
	err := g.Wait()
	return strings.Join(results, "\n"), err
}

// runSubtree runs n, passing parentResult (the text the parent produced,
// "" for roots) to its capability as the _parentResult argument, then runs
// its children according to n.Parallel; if n does not succeed, its
// children are marked SKIPPED instead. It returns n's effective result text: its
// own capability output if it has no children, or the aggregate of its
// children's results once they complete — at which point n is re-recorded
// with that aggregate and with its status downgraded to FAILED if any
// child failed.
func (e *Executor) runSubtree(ctx context.Context, n *plan.Node, parentResult string, ec *execctx.ExecutionContext) (string, error) {
	result := e.runNode(ctx, n, parentResult)
	ec.RecordResult(result)
	if e.onNodeComplete != nil {
		e.onNodeComplete(result)
	}

	if result.Status != plan.StatusSuccess {
		for _, child := range n.Children {
			ec.MarkSkipped(child)
			if e.onNodeComplete != nil {
				e.onNodeComplete(ec.Result(child.ID))
			}
		}
		if result.Status == plan.StatusFailed {
			return result.Output, fmt.Errorf("node %s: %s", n.ID, result.Err)
		}
		return result.Output, nil
	}

	if len(n.Children) == 0 {
		return result.Output, nil
	}

	var aggregated string
	var childErrMsgs []string
	var err error
	if n.Parallel {
		aggregated, childErrMsgs, err = e.runParallelChildren(ctx, n, result.Output, ec)
	} else {
		aggregated, childErrMsgs, err = e.runSequentialChildren(ctx, n, result.Output, ec)
	}

	final := *result
	final.Output = aggregated
	final.EndedAt = time.Now()
	final.Duration = final.EndedAt.Sub(final.StartedAt)
	if len(childErrMsgs) > 0 {
		final.Status = plan.StatusFailed
		final.Err = strings.Join(childErrMsgs, "; ")
	}
	ec.RecordResult(&final)
	if e.onNodeComplete != nil {
		e.onNodeComplete(&final)
	}

	if err != nil {
		return final.Output, fmt.Errorf("node %s: %s", n.ID, final.Err)
	}
	return final.Output, nil
}

// runParallelChildren runs every child concurrently, each seeing only the
// parent's result (not a sibling's), recording every outcome even when one
// child fails — a hand-rolled WaitGroup rather than errgroup, since a
// failing sibling must not prevent the others from being recorded. The
// aggregated result is every child's result text newline-joined in
// declaration order.
func (e *Executor) runParallelChildren(ctx context.Context, n *plan.Node, parentOutput string, ec *execctx.ExecutionContext) (string, []string, error) {
	var wg sync.WaitGroup
	outputs := make([]string, len(n.Children))
	errs := make([]error, len(n.Children))
	for i, child := range n.Children {
		i, child := i, child
		wg.Add(1)
		go func() {
			defer wg.Done()
			outputs[i], errs[i] = e.runSubtree(ctx, child, parentOutput, ec)
		}()
	}
	wg.Wait()

	var childErrMsgs []string
	var firstErr error
	for _, err := range errs {
		if err != nil {
			childErrMsgs = append(childErrMsgs, err.Error())
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return strings.Join(outputs, "\n"), childErrMsgs, firstErr
}

// runSequentialChildren runs children one at a time, extracting each
// child's arguments from the previous sibling's result via a SIMPLE-tier
// LLM call, falling open to the child's own declared args if extraction
// fails or no router is configured — the "mini-RPC" parameter-extraction
// step. The aggregated result is the last child's result text, regardless
// of whether earlier siblings failed.
func (e *Executor) runSequentialChildren(ctx context.Context, n *plan.Node, parentOutput string, ec *execctx.ExecutionContext) (string, []string, error) {
	previousOutput := parentOutput
	lastOutput := parentOutput
	var childErrMsgs []string
	var firstErr error
	for _, child := range n.Children {
		if e.router != nil && previousOutput != "" {
			if extracted, err := e.extractArgs(ctx, child, previousOutput); err == nil {
				resolved := *child
				resolved.Args = extracted
				child = &resolved
			}
		}
		out, err := e.runSubtree(ctx, child, previousOutput, ec)
		lastOutput = out
		if err != nil {
			childErrMsgs = append(childErrMsgs, err.Error())
			if firstErr == nil {
				firstErr = err
			}
		}
		if r := ec.Result(child.ID); r != nil && r.Status == plan.StatusSuccess {
			previousOutput = r.Output
		}
	}
	return lastOutput, childErrMsgs, firstErr
}

// extractArgs asks the LLM to derive child's argument values from the
// previous sibling's textual result, so a capability call can consume its
// predecessor's output without the planner having wired an explicit data
// dependency. Returns the child's own declared args, unchanged, on any
// failure — this step fails open by design.
func (e *Executor) extractArgs(ctx context.Context, child *plan.Node, previousOutput string) (map[string]interface{}, error) {
	var declared strings.Builder
	for k, v := range child.Args {
		fmt.Fprintf(&declared, "%s=%v\n", k, v)
	}
	prompt := fmt.Sprintf(
		"Previous step result:\n%s\n\nDeclared arguments for the next call (%s.%s):\n%s\nReturn the resolved arguments as JSON.",
		previousOutput, child.Capability, child.Function, declared.String())

	resp, err := e.router.Dispatch(ctx, llm.OpParameterExtract, prompt)
	if err != nil {
		return child.Args, err
	}
	var extracted map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp)), &extracted); err != nil {
		return child.Args, fmt.Errorf("executor: decoding extracted arguments for %s: %w", child.ID, err)
	}
	if extracted == nil {
		return child.Args, nil
	}
	return extracted, nil
}

// runNode invokes n's capability, optionally behind a per-capability
// circuit breaker, and records timing.
func (e *Executor) runNode(ctx context.Context, n *plan.Node, parentResult string) *plan.NodeResult {
	start := time.Now()
	ctx, span := e.telemetry.StartSpan(ctx, "executor.runNode")
	defer span.End()
	span.SetAttribute("node_id", n.ID)
	span.SetAttribute("capability", n.Capability)

	c, ok := e.registry.Get(n.Capability)
	if !ok {
		err := conductorerr.New("executor.runNode", "capability", conductorerr.ErrCapabilityNotFound).WithID(n.Capability)
		return failResult(n.ID, start, err)
	}

	args := n.Args
	if parentResult != "" {
		if args == nil {
			args = map[string]interface{}{}
		} else {
			merged := make(map[string]interface{}, len(args)+1)
			for k, v := range args {
				merged[k] = v
			}
			args = merged
		}
		args["_parentResult"] = parentResult
	}

	execute := func() (string, error) {
		return c.Execute(ctx, n.Function, args)
	}

	var output string
	var err error
	if breaker := e.breakerFor(c); breaker != nil {
		execErr := breaker.Execute(ctx, func() error {
			var innerErr error
			output, innerErr = execute()
			return innerErr
		})
		err = execErr
	} else {
		output, err = execute()
	}

	if err != nil {
		span.RecordError(err)
		e.telemetry.RecordMetric("executor.node.failures_total", 1, map[string]string{"capability": n.Capability})
		return failResult(n.ID, start, err)
	}

	e.telemetry.RecordMetric("executor.node.duration_ms", float64(time.Since(start).Milliseconds()), map[string]string{"capability": n.Capability})
	return &plan.NodeResult{
		NodeID:    n.ID,
		Status:    plan.StatusSuccess,
		Output:    output,
		StartedAt: start,
		EndedAt:   time.Now(),
		Duration:  time.Since(start),
	}
}

func failResult(nodeID string, start time.Time, err error) *plan.NodeResult {
	return &plan.NodeResult{
		NodeID:    nodeID,
		Status:    plan.StatusFailed,
		Err:       err.Error(),
		StartedAt: start,
		EndedAt:   time.Now(),
		Duration:  time.Since(start),
	}
}

// breakerFor returns the shared circuit breaker for c if it opts in via
// capability.CircuitBreakerOption, lazily creating one on first use.
func (e *Executor) breakerFor(c capability.Capability) *resilience.CircuitBreaker {
	opt, ok := c.(capability.CircuitBreakerOption)
	if !ok || !opt.CircuitBreakerConfig().Enabled {
		return nil
	}
	e.breakersMu.Lock()
	defer e.breakersMu.Unlock()
	if b, ok := e.breakers[c.Name()]; ok {
		return b
	}
	b := resilience.New(resilience.DefaultConfig(c.Name()))
	e.breakers[c.Name()] = b
	return b
}
