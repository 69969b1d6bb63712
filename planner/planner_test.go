package planner

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxweave/conductor/capability"
	"github.com/fluxweave/conductor/conductorerr"
	"github.com/fluxweave/conductor/history"
	"github.com/fluxweave/conductor/llm"
)

type scriptedResponse struct {
	text string
	err  error
}

// scriptedClient answers each Operation from a per-operation queue of
// canned responses, clamping to the last entry once a queue is exhausted so
// a single-entry script still serves repeated calls across retries.
type scriptedClient struct {
	mu     sync.Mutex
	calls  map[llm.Operation]int
	script map[llm.Operation][]scriptedResponse
}

func newScriptedClient(script map[llm.Operation][]scriptedResponse) *scriptedClient {
	return &scriptedClient{calls: make(map[llm.Operation]int), script: script}
}

func (c *scriptedClient) Complete(ctx context.Context, op llm.Operation, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.script[op]
	if len(list) == 0 {
		return "", nil
	}
	idx := c.calls[op]
	if idx >= len(list) {
		idx = len(list) - 1
	}
	c.calls[op]++
	return list[idx].text, list[idx].err
}

func newTestRouter(client llm.Client) *llm.Router {
	return llm.NewRouter(map[llm.Tier]llm.Client{
		llm.TierSimple:  client,
		llm.TierMedium:  client,
		llm.TierComplex: client,
	})
}

type fakeCapability struct {
	name   string
	output string
}

func (f *fakeCapability) Name() string        { return f.name }
func (f *fakeCapability) Description() string { return "fake" }
func (f *fakeCapability) Functions() []capability.FunctionSpec {
	return []capability.FunctionSpec{{Name: "lookup"}}
}
func (f *fakeCapability) Execute(ctx context.Context, function string, args map[string]interface{}) (string, error) {
	return f.output, nil
}

func newTestRegistry() *capability.Registry {
	r := capability.NewRegistry(nil)
	_ = r.Register(&fakeCapability{name: "weather", output: "sunny"})
	return r
}

const validTreeJSON = `{"roots":[{"id":"root","capability":"weather","function":"lookup"}]}`

// cycleTreeJSON repeats the same (capability, function) pair along a
// single root-to-leaf path, which the validator rejects outright — unlike
// an unresolvable capability or function name, which it now repairs by
// substitution rather than failing.
const cycleTreeJSON = `{"roots":[{"id":"a","capability":"weather","function":"lookup","children":[{"id":"b","capability":"weather","function":"lookup"}]}]}`

func TestHandleHappyPath(t *testing.T) {
	client := newScriptedClient(map[llm.Operation][]scriptedResponse{
		llm.OpFeasibility:    {{text: "feasible"}},
		llm.OpCreateTree:     {{text: validTreeJSON}},
		llm.OpEvaluate:       {{text: "satisfied"}},
		llm.OpGenerateAnswer: {{text: "it is sunny"}},
	})
	p := New(newTestRegistry(), newTestRouter(client), history.NewManager(), history.NewPublisher(), 10)

	outcome := p.Handle(context.Background(), "what's the weather?")

	require.NotNil(t, outcome)
	assert.Equal(t, history.StatusDone, outcome.Status)
	assert.Equal(t, "it is sunny", outcome.Answer)
	assert.Equal(t, 1, outcome.Attempts)
	assert.NoError(t, outcome.Err)
}

func TestHandleRetriesAfterValidationFailure(t *testing.T) {
	client := newScriptedClient(map[llm.Operation][]scriptedResponse{
		llm.OpFeasibility:    {{text: "feasible"}},
		llm.OpCreateTree:     {{text: cycleTreeJSON}, {text: validTreeJSON}},
		llm.OpRetryStrategy:  {{text: "use the weather capability instead"}},
		llm.OpEvaluate:       {{text: "satisfied"}},
		llm.OpGenerateAnswer: {{text: "it is sunny"}},
	})
	p := New(newTestRegistry(), newTestRouter(client), history.NewManager(), history.NewPublisher(), 10)

	outcome := p.Handle(context.Background(), "what's the weather?")

	require.NotNil(t, outcome)
	assert.Equal(t, history.StatusDone, outcome.Status)
	assert.Equal(t, 2, outcome.Attempts)
}

func TestHandleShortCircuitsOnInfeasibleRequest(t *testing.T) {
	client := newScriptedClient(map[llm.Operation][]scriptedResponse{
		llm.OpFeasibility: {{text: "this request is infeasible"}},
	})
	p := New(newTestRegistry(), newTestRouter(client), history.NewManager(), history.NewPublisher(), 10, WithMaxAttempts(5))

	outcome := p.Handle(context.Background(), "do something impossible")

	require.NotNil(t, outcome)
	assert.Equal(t, history.StatusAborted, outcome.Status)
	assert.Equal(t, 1, outcome.Attempts)
	require.Error(t, outcome.Err)
}

func TestHandleExhaustsMaxAttemptsOnPersistentValidationFailure(t *testing.T) {
	client := newScriptedClient(map[llm.Operation][]scriptedResponse{
		llm.OpFeasibility:   {{text: "feasible"}},
		llm.OpCreateTree:    {{text: cycleTreeJSON}},
		llm.OpRetryStrategy: {{text: "try again"}},
	})
	p := New(newTestRegistry(), newTestRouter(client), history.NewManager(), history.NewPublisher(), 10, WithMaxAttempts(2))

	outcome := p.Handle(context.Background(), "what's the weather?")

	require.NotNil(t, outcome)
	assert.Equal(t, history.StatusAborted, outcome.Status)
	assert.Equal(t, 2, outcome.Attempts)
	require.Error(t, outcome.Err)
	assert.ErrorIs(t, outcome.Err, conductorerr.ErrMaxAttemptsReached)
}

func TestHandleAbortsWhenComparisonFindsNoSignificantProgress(t *testing.T) {
	// OpEvaluate fails with a plain (non-terminal) dispatch error every time,
	// so the loop keeps retrying until the comparison against the previous
	// attempt's tree and result says nothing has changed.
	client := newScriptedClient(map[llm.Operation][]scriptedResponse{
		llm.OpFeasibility: {{text: "feasible"}},
		llm.OpCreateTree:  {{text: validTreeJSON}},
		llm.OpEvaluate:    {{err: errors.New("evaluator unavailable")}},
		llm.OpCompare:     {{text: "not significantly different from the previous attempt"}},
	})
	p := New(newTestRegistry(), newTestRouter(client), history.NewManager(), history.NewPublisher(), 10, WithMaxAttempts(5))

	outcome := p.Handle(context.Background(), "what's the weather?")

	require.NotNil(t, outcome)
	assert.Equal(t, history.StatusAborted, outcome.Status)
	// Attempt 1 has no previous attempt to compare against and simply
	// retries; attempt 2 does, and the comparison aborts it there.
	assert.Equal(t, 2, outcome.Attempts)
	require.Error(t, outcome.Err)
	assert.ErrorIs(t, outcome.Err, conductorerr.ErrNoSignificantProgress)
}

func TestHandleContinuesRetryingWhenComparisonFindsSignificantProgress(t *testing.T) {
	client := newScriptedClient(map[llm.Operation][]scriptedResponse{
		llm.OpFeasibility: {{text: "feasible"}},
		llm.OpCreateTree:  {{text: validTreeJSON}},
		llm.OpEvaluate: {
			{err: errors.New("evaluator unavailable")},
			{err: errors.New("evaluator unavailable")},
			{text: "satisfied"},
		},
		llm.OpCompare:        {{text: "significant progress was made"}},
		llm.OpGenerateAnswer: {{text: "it is sunny"}},
	})
	p := New(newTestRegistry(), newTestRouter(client), history.NewManager(), history.NewPublisher(), 10, WithMaxAttempts(5))

	outcome := p.Handle(context.Background(), "what's the weather?")

	require.NotNil(t, outcome)
	assert.Equal(t, history.StatusDone, outcome.Status)
	assert.Equal(t, 3, outcome.Attempts)
}

func TestHandlePublishesLifecycleEvents(t *testing.T) {
	client := newScriptedClient(map[llm.Operation][]scriptedResponse{
		llm.OpFeasibility:    {{text: "feasible"}},
		llm.OpCreateTree:     {{text: validTreeJSON}},
		llm.OpEvaluate:       {{text: "satisfied"}},
		llm.OpGenerateAnswer: {{text: "it is sunny"}},
	})
	pub := history.NewPublisher()
	p := New(newTestRegistry(), newTestRouter(client), history.NewManager(), pub, 10)

	outcome := p.Handle(context.Background(), "what's the weather?")
	require.NotNil(t, outcome)

	ch, unsubscribe := pub.Subscribe(outcome.RequestID)
	defer unsubscribe()

	select {
	case evt := <-ch:
		assert.Equal(t, "done", evt.Kind)
	default:
		t.Fatal("expected a replayed done event")
	}
}
