package execctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxweave/conductor/plan"
)

func testTree() *plan.Tree {
	return &plan.Tree{
		Roots: []*plan.Node{
			{
				ID:         "root",
				Capability: "weather",
				Function:   "lookup",
				Children: []*plan.Node{
					{ID: "child-a", Capability: "translate", Function: "toFrench"},
					{ID: "child-b", Capability: "translate", Function: "toSpanish",
						Children: []*plan.Node{
							{ID: "grandchild", Capability: "format", Function: "bold"},
						}},
				},
			},
		},
	}
}

func TestNewInitializesEveryNodeAsPending(t *testing.T) {
	ec := New(testTree())
	for _, id := range []string{"root", "child-a", "child-b", "grandchild"} {
		r := ec.Result(id)
		require.NotNil(t, r, id)
		assert.Equal(t, plan.StatusPending, r.Status)
	}
}

func TestRecordResultUpdatesCounts(t *testing.T) {
	ec := New(testTree())
	ec.RecordResult(&plan.NodeResult{NodeID: "root", Status: plan.StatusSuccess})

	succeeded, failed, skipped := ec.Counts()
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 0, skipped)
}

func TestRecordResultOverwritePreviousAdjustsCounts(t *testing.T) {
	ec := New(testTree())
	ec.RecordResult(&plan.NodeResult{NodeID: "root", Status: plan.StatusFailed})
	ec.RecordResult(&plan.NodeResult{NodeID: "root", Status: plan.StatusSuccess})

	succeeded, failed, _ := ec.Counts()
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, failed)
}

func TestCanExecuteGatesOnParentSuccess(t *testing.T) {
	ec := New(testTree())
	assert.True(t, ec.CanExecute(""))
	assert.False(t, ec.CanExecute("root"))

	ec.RecordResult(&plan.NodeResult{NodeID: "root", Status: plan.StatusFailed})
	assert.False(t, ec.CanExecute("root"))

	ec.RecordResult(&plan.NodeResult{NodeID: "root", Status: plan.StatusSuccess})
	assert.True(t, ec.CanExecute("root"))
}

func TestMarkSkippedCascadesThroughSubtree(t *testing.T) {
	tree := testTree()
	ec := New(tree)

	ec.MarkSkipped(tree.Roots[0].Children[1])

	assert.Equal(t, plan.StatusSkipped, ec.Result("child-b").Status)
	assert.Equal(t, plan.StatusSkipped, ec.Result("grandchild").Status)
	assert.Equal(t, plan.StatusPending, ec.Result("child-a").Status)

	_, _, skipped := ec.Counts()
	assert.Equal(t, 2, skipped)
}

func TestFindRetryStartPointReturnsImmediateParentID(t *testing.T) {
	ec := New(testTree())

	assert.Equal(t, "child-b", ec.FindRetryStartPoint("grandchild"))
	assert.Equal(t, "root", ec.FindRetryStartPoint("child-a"))
}

func TestFindRetryStartPointReturnsEmptyForRoot(t *testing.T) {
	ec := New(testTree())
	assert.Equal(t, "", ec.FindRetryStartPoint("root"))
}

func TestFindRetryStartPointReturnsEmptyForUnknownNode(t *testing.T) {
	ec := New(testTree())
	assert.Equal(t, "", ec.FindRetryStartPoint("missing"))
}

func TestAllResultsReturnsEveryNode(t *testing.T) {
	ec := New(testTree())
	ec.RecordResult(&plan.NodeResult{NodeID: "root", Status: plan.StatusSuccess})

	snapshot := ec.AllResults()
	require.Len(t, snapshot, 4)
	assert.Equal(t, plan.StatusSuccess, snapshot["root"].Status)
}

func TestAllResultsMapIsIndependentOfInternalState(t *testing.T) {
	ec := New(testTree())
	ec.RecordResult(&plan.NodeResult{NodeID: "root", Status: plan.StatusSuccess})

	snapshot := ec.AllResults()
	delete(snapshot, "root")

	assert.NotNil(t, ec.Result("root"), "deleting from the returned map must not affect internal state")
}

func TestIsCompleteRequiresEveryNodeTerminal(t *testing.T) {
	ec := New(testTree())
	assert.False(t, ec.IsComplete())

	for _, id := range []string{"root", "child-a", "child-b", "grandchild"} {
		ec.RecordResult(&plan.NodeResult{NodeID: id, Status: plan.StatusSuccess})
	}
	assert.True(t, ec.IsComplete())
}
