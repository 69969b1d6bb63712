// Package planner is the coordinator: it drives one request through
// INIT -> PLANNING -> VALIDATING -> EXECUTING -> EVALUATING, looping back
// to PLANNING on a recoverable failure up to a configured retry budget,
// and reports DONE, RETRYING, or ABORTED to the history manager and event
// publisher at every transition.
package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/fluxweave/conductor/capability"
	"github.com/fluxweave/conductor/conductorerr"
	"github.com/fluxweave/conductor/core"
	"github.com/fluxweave/conductor/execctx"
	"github.com/fluxweave/conductor/executor"
	"github.com/fluxweave/conductor/history"
	"github.com/fluxweave/conductor/llm"
	"github.com/fluxweave/conductor/plan"
	"github.com/fluxweave/conductor/validator"
)

// State names one stage of the coordinator's state machine, surfaced only
// through logging and telemetry — callers only ever see the final Outcome.
type State string

const (
	StateInit       State = "INIT"
	StatePlanning   State = "PLANNING"
	StateValidating State = "VALIDATING"
	StateExecuting  State = "EXECUTING"
	StateEvaluating State = "EVALUATING"
	StateDone       State = "DONE"
	StateRetrying   State = "RETRYING"
	StateAborted    State = "ABORTED"
)

// Metrics declares per-Planner request counters. Planner neither updates
// nor exposes a Metrics value.
type Metrics struct {
	TotalRequests int64
	Succeeded     int64
	Failed        int64
	TotalAttempts int64
}

// Outcome is the final result of one request, successful or not.
type Outcome struct {
	RequestID string
	Answer    string
	Attempts  int
	Status    history.Status
	Err       error
}

// Planner coordinates planning, validation, execution, and evaluation for
// one request at a time, retrying with LLM-suggested repair strategies up
// to MaxAttempts.
type Planner struct {
	registry  *capability.Registry
	router    *llm.Router
	validator *validator.Validator
	history   *history.Manager
	publisher *history.Publisher
	logger    core.Logger
	telemetry core.Telemetry

	maxAttempts int
}

// Option configures a Planner at construction time.
type Option func(*Planner)

func WithLogger(logger core.Logger) Option  { return func(p *Planner) { p.logger = logger } }
func WithTelemetry(t core.Telemetry) Option { return func(p *Planner) { p.telemetry = t } }
func WithMaxAttempts(n int) Option          { return func(p *Planner) { p.maxAttempts = n } }

// New builds a Planner wired to the given capability registry, LLM router,
// and shared history manager/event publisher.
func New(registry *capability.Registry, router *llm.Router, hist *history.Manager, pub *history.Publisher, maxDepth int, opts ...Option) *Planner {
	p := &Planner{
		registry:    registry,
		router:      router,
		validator:   validator.New(registry, &core.NoOpLogger{}, maxDepth),
		history:     hist,
		publisher:   pub,
		logger:      &core.NoOpLogger{},
		telemetry:   &core.NoOpTelemetry{},
		maxAttempts: 5,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle runs query through the full planning/validation/execution/
// evaluation loop, retrying up to p.maxAttempts times, and returns the
// final Outcome. A history entry is created immediately and kept updated
// throughout, and every transition is published as a history.Event so a
// subscriber can watch the request progress live.
func (p *Planner) Handle(ctx context.Context, query string) *Outcome {
	requestID := p.history.Start(query)
	ctx, span := p.telemetry.StartSpan(ctx, "planner.Handle")
	defer span.End()
	span.SetAttribute("request_id", requestID)

	var lastAnswer string
	var lastErr error
	var logLines []string
	var previousTree *plan.Tree
	var previousResult string

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if attempt > 1 {
			p.publish(requestID, "retrying", map[string]interface{}{"attempt": attempt})
			p.history.Update(requestID, history.StatusRetrying, "", fmt.Sprintf("attempt %d: retrying", attempt))
		}

		tree, err := p.plan(ctx, query, lastAnswer, lastErr)
		if err != nil {
			lastErr = err
			logLines = append(logLines, fmt.Sprintf("attempt %d: planning failed: %v", attempt, err))
			if conductorerr.IsTerminal(err) {
				return p.abort(ctx, requestID, attempt, err, logLines)
			}
			continue
		}

		valResult := p.validator.Validate(tree)
		if !valResult.IsValid {
			lastErr = fmt.Errorf("%s: %w", strings.Join(valResult.Errors, "; "), conductorerr.ErrPlanValidationFailed)
			logLines = append(logLines, fmt.Sprintf("attempt %d: validation failed", attempt))
			continue
		}
		if valResult.Fixed != nil {
			tree = valResult.Fixed
		}
		for _, w := range valResult.Warnings {
			logLines = append(logLines, "warning: "+w)
		}

		ec := execctx.New(tree)
		resultText, execErr := p.runExecution(ctx, requestID, tree, ec)

		answer, evalErr := p.evaluate(ctx, query, resultText, ec, execErr)
		if evalErr == nil {
			p.history.Update(requestID, history.StatusDone, answer, logLines...)
			p.publish(requestID, "done", map[string]interface{}{"answer": answer})
			return &Outcome{RequestID: requestID, Answer: answer, Attempts: attempt, Status: history.StatusDone}
		}

		lastAnswer, lastErr = answer, evalErr
		logLines = append(logLines, fmt.Sprintf("attempt %d: evaluation rejected result: %v", attempt, evalErr))
		if conductorerr.IsTerminal(evalErr) {
			return p.abort(ctx, requestID, attempt, evalErr, logLines)
		}

		if attempt < p.maxAttempts && previousTree != nil {
			different, cmpErr := p.compare(ctx, query, previousTree, previousResult, tree, resultText)
			if cmpErr != nil {
				logLines = append(logLines, fmt.Sprintf("attempt %d: comparison against previous attempt unavailable: %v", attempt, cmpErr))
			} else if !different {
				noProgress := fmt.Errorf("%w: attempt produced no significant change from the previous one", conductorerr.ErrNoSignificantProgress)
				logLines = append(logLines, fmt.Sprintf("attempt %d: %v", attempt, noProgress))
				return p.abort(ctx, requestID, attempt, noProgress, logLines)
			}
		}
		previousTree, previousResult = tree, resultText
	}

	return p.abort(ctx, requestID, p.maxAttempts, fmt.Errorf("%w after %d attempts", conductorerr.ErrMaxAttemptsReached, p.maxAttempts), logLines)
}

// plan produces an ExecutionTree for query: it checks feasibility first,
// then asks the LLM for a retry strategy if a previous attempt failed, and
// only then issues the full tree-creation call.
func (p *Planner) plan(ctx context.Context, query, lastAnswer string, lastErr error) (*plan.Tree, error) {
	if p.router == nil {
		return nil, conductorerr.New("planner.plan", "llm", conductorerr.ErrLLMUnavailable)
	}

	feasible, err := p.router.Dispatch(ctx, llm.OpFeasibility, query)
	if err != nil {
		return nil, err
	}
	if strings.Contains(strings.ToLower(feasible), "infeasible") {
		return nil, conductorerr.New("planner.plan", "planner", conductorerr.ErrRequestInfeasible)
	}

	prompt := query
	if lastErr != nil {
		strategy, stratErr := p.router.Dispatch(ctx, llm.OpRetryStrategy, fmt.Sprintf(
			"Original request: %s\nPrevious attempt failed: %v\nSuggest a corrected plan.", query, lastErr))
		if stratErr != nil {
			return nil, fmt.Errorf("%w: %v", conductorerr.ErrRetryStrategyUnavailable, stratErr)
		}
		prompt = fmt.Sprintf("%s\n\nRetry guidance: %s", query, strategy)
	}

	raw, err := p.router.Dispatch(ctx, llm.OpCreateTree, fmt.Sprintf(
		"Available capabilities:\n%s\n\nRequest: %s", p.registry.DescribeForLLM(), prompt))
	if err != nil {
		return nil, err
	}
	return parseTree(raw)
}

// runExecution runs tree through the executor, publishing a node_complete
// event for every node as it finishes, and returns the tree's effective
// result text (the newline join of every root's aggregated result).
func (p *Planner) runExecution(ctx context.Context, requestID string, tree *plan.Tree, ec *execctx.ExecutionContext) (string, error) {
	exec := executor.New(p.registry,
		executor.WithRouter(p.router),
		executor.WithLogger(p.logger),
		executor.WithTelemetry(p.telemetry),
		executor.WithNodeComplete(func(result *plan.NodeResult) {
			p.publish(requestID, "node_complete", result)
		}),
	)
	return exec.Run(ctx, tree, ec)
}

// evaluate asks the LLM whether the executed tree satisfied the request,
// returning the final natural-language answer on success.
func (p *Planner) evaluate(ctx context.Context, query, resultText string, ec *execctx.ExecutionContext, execErr error) (string, error) {
	succeeded, failed, skipped := ec.Counts()
	if failed > 0 && succeeded == 0 {
		return "", fmt.Errorf("every node failed: %w", conductorerr.ErrNoSignificantProgress)
	}

	var summary strings.Builder
	for id, r := range ec.AllResults() {
		fmt.Fprintf(&summary, "%s: %s %s\n", id, r.Status, r.Output)
	}

	verdict, err := p.router.Dispatch(ctx, llm.OpEvaluate, fmt.Sprintf(
		"Request: %s\n\nResult: %s\n\nExecution summary (%d succeeded, %d failed, %d skipped):\n%s",
		query, resultText, succeeded, failed, skipped, summary.String()))
	if err != nil {
		return "", err
	}
	if strings.Contains(strings.ToLower(verdict), "insufficient") {
		return "", fmt.Errorf("evaluation judged the result insufficient: %s", verdict)
	}

	answer, err := p.router.Dispatch(ctx, llm.OpGenerateAnswer, fmt.Sprintf("Request: %s\n\nResults:\n%s", query, summary.String()))
	if err != nil {
		return "", err
	}
	return answer, nil
}

// compare asks the LLM whether the current attempt made significant
// progress over the previous one, so the coordinator can abort early
// with ErrNoSignificantProgress instead of burning the remaining retry
// budget on attempts that keep producing the same outcome. On a dispatch
// error it reports the attempt as significantly different so a flaky LLM
// call doesn't itself trigger a premature abort.
func (p *Planner) compare(ctx context.Context, query string, previousTree *plan.Tree, previousResult string, tree *plan.Tree, result string) (bool, error) {
	prevJSON, err := plan.MarshalTreeJSON(previousTree)
	if err != nil {
		return true, err
	}
	curJSON, err := plan.MarshalTreeJSON(tree)
	if err != nil {
		return true, err
	}

	verdict, err := p.router.Dispatch(ctx, llm.OpCompare, fmt.Sprintf(
		"Request: %s\n\nPrevious attempt's plan:\n%s\nPrevious attempt's result: %s\n\n"+
			"Latest attempt's plan:\n%s\nLatest attempt's result: %s\n\n"+
			"Did the latest attempt make significant progress over the previous one?",
		query, prevJSON, previousResult, curJSON, result))
	if err != nil {
		return true, err
	}
	lower := strings.ToLower(verdict)
	if strings.Contains(lower, "not significantly different") || strings.Contains(lower, "no significant difference") ||
		strings.Contains(lower, "no significant progress") {
		return false, nil
	}
	return true, nil
}

func (p *Planner) abort(ctx context.Context, requestID string, attempts int, err error, logLines []string) *Outcome {
	p.history.Update(requestID, history.StatusAborted, "", append(logLines, err.Error())...)
	p.publish(requestID, "aborted", map[string]interface{}{"error": err.Error()})
	return &Outcome{RequestID: requestID, Attempts: attempts, Status: history.StatusAborted, Err: err}
}

func (p *Planner) publish(requestID, kind string, payload interface{}) {
	if p.publisher == nil {
		return
	}
	p.publisher.Publish(history.Event{ExecutionID: requestID, Kind: kind, Payload: payload})
}

// parseTree decodes the LLM's tree-creation response. A real deployment
// parses the provider's JSON tree payload; that wire format is provider-
// specific and untestable without a live model, so this kernel accepts an
// already-structured plan.Tree JSON body and returns ErrLLMResponseInvalid
// for anything else rather than guessing at a malformed payload.
func parseTree(raw string) (*plan.Tree, error) {
	tree, err := plan.ParseTreeJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", conductorerr.ErrLLMResponseInvalid, err)
	}
	if len(tree.Roots) == 0 {
		return nil, conductorerr.ErrEmptyPlan
	}
	return tree, nil
}
