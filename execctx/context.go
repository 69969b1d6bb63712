// Package execctx holds the mutable execution state for one plan run: an
// id-keyed arena of NodeResult outcomes plus the dependency-gating logic
// the executor uses to decide whether a node can run.
package execctx

import (
	"sync"

	"github.com/fluxweave/conductor/plan"
)

// ExecutionContext tracks every node's outcome for a single plan run,
// keyed by node ID, plus cached aggregate counts that Counts returns
// without walking the whole map.
type ExecutionContext struct {
	mu      sync.RWMutex
	results map[string]*plan.NodeResult

	tree *plan.Tree

	succeeded int
	failed    int
	skipped   int
}

// New creates an ExecutionContext for tree with every node initialized to
// PENDING.
func New(tree *plan.Tree) *ExecutionContext {
	ec := &ExecutionContext{
		results: make(map[string]*plan.NodeResult),
		tree:    tree,
	}
	tree.Walk(func(n *plan.Node, depth int) bool {
		ec.results[n.ID] = &plan.NodeResult{NodeID: n.ID, Status: plan.StatusPending}
		return true
	})
	return ec
}

// Result returns the current outcome for nodeID, or nil if unknown.
func (ec *ExecutionContext) Result(nodeID string) *plan.NodeResult {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return ec.results[nodeID]
}

// RecordResult stores a node's outcome, updating cached aggregate counts.
// Calling RecordResult for a node that already has a terminal result
// overwrites it — used by the retry loop to re-record a node on a repeat
// attempt.
func (ec *ExecutionContext) RecordResult(result *plan.NodeResult) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	if prev, ok := ec.results[result.NodeID]; ok {
		ec.adjustCounts(prev.Status, -1)
	}
	ec.results[result.NodeID] = result
	ec.adjustCounts(result.Status, 1)
}

func (ec *ExecutionContext) adjustCounts(status plan.Status, delta int) {
	switch status {
	case plan.StatusSuccess:
		ec.succeeded += delta
	case plan.StatusFailed:
		ec.failed += delta
	case plan.StatusSkipped:
		ec.skipped += delta
	}
}

// CanExecute reports whether the node identified by parentNodeID completed
// successfully, which gates whether a child may run: a parent that failed
// or was skipped means every descendant is SKIPPED.
func (ec *ExecutionContext) CanExecute(parentNodeID string) bool {
	if parentNodeID == "" {
		return true
	}
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	parent, ok := ec.results[parentNodeID]
	return ok && parent.Status == plan.StatusSuccess
}

// MarkSkipped records a node and its full subtree as SKIPPED in one pass,
// used when a parent fails and its children must be cascaded without ever
// running.
func (ec *ExecutionContext) MarkSkipped(n *plan.Node) {
	var walk func(node *plan.Node)
	walk = func(node *plan.Node) {
		ec.RecordResult(&plan.NodeResult{NodeID: node.ID, Status: plan.StatusSkipped})
		for _, child := range node.Children {
			walk(child)
		}
	}
	walk(n)
}

// Counts returns the current succeeded/failed/skipped totals.
func (ec *ExecutionContext) Counts() (succeeded, failed, skipped int) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return ec.succeeded, ec.failed, ec.skipped
}

// AllResults returns a snapshot of every recorded result, keyed by node ID.
func (ec *ExecutionContext) AllResults() map[string]*plan.NodeResult {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	out := make(map[string]*plan.NodeResult, len(ec.results))
	for k, v := range ec.results {
		out[k] = v
	}
	return out
}

// FindRetryStartPoint returns the ID of failedNodeID's immediate parent, the
// node a retry must re-validate from since everything below it is now
// suspect. Returns "" if failedNodeID is a root (no parent, matching
// CanExecute's convention that "" means no gating parent) or isn't in the
// tree at all.
func (ec *ExecutionContext) FindRetryStartPoint(failedNodeID string) string {
	for _, root := range ec.tree.Roots {
		if root.ID == failedNodeID {
			return ""
		}
		if parentID, found := findParent(root, failedNodeID); found {
			return parentID
		}
	}
	return ""
}

// findParent searches n's subtree for childID and returns the ID of its
// direct parent within that subtree.
func findParent(n *plan.Node, childID string) (string, bool) {
	for _, c := range n.Children {
		if c.ID == childID {
			return n.ID, true
		}
		if parentID, found := findParent(c, childID); found {
			return parentID, true
		}
	}
	return "", false
}

// IsComplete reports whether every node in the tree has a terminal result
// (SUCCESS, FAILED, or SKIPPED).
func (ec *ExecutionContext) IsComplete() bool {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	for _, r := range ec.results {
		if r.Status == plan.StatusPending || r.Status == plan.StatusRunning {
			return false
		}
	}
	return true
}
