// Package validator checks a plan.Tree for structural soundness before the
// executor runs it, repairing minor mistakes (a near-miss capability name,
// a wrong function name) and flagging the rest.
package validator

import (
	"fmt"

	"github.com/fluxweave/conductor/capability"
	"github.com/fluxweave/conductor/core"
	"github.com/fluxweave/conductor/plan"
)

// Result is the outcome of validating a tree: whether it's usable as-is or
// after repair, plus the hard errors and soft warnings collected along the
// way.
type Result struct {
	IsValid  bool
	Errors   []string
	Warnings []string
	Fixed    *plan.Tree
}

// Validator checks plans against a capability registry.
type Validator struct {
	registry *capability.Registry
	logger   core.Logger
	maxDepth int
}

// New builds a Validator bound to registry. maxDepth <= 0 uses 10.
func New(registry *capability.Registry, logger core.Logger, maxDepth int) *Validator {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if maxDepth <= 0 {
		maxDepth = 10
	}
	return &Validator{registry: registry, logger: logger, maxDepth: maxDepth}
}

// Validate checks tree for depth violations, cycles, and capability/
// function names, repairing near-miss names in place on a cloned tree.
// IsValid is false only for defects Validate cannot repair: depth
// violation, cycle, empty plan, an empty registry, or a capability that
// declares no functions. Any other unresolved name is substituted with a
// warning (see repairNode).
func (v *Validator) Validate(tree *plan.Tree) *Result {
	result := &Result{IsValid: true}

	if len(tree.Roots) == 0 {
		result.IsValid = false
		result.Errors = append(result.Errors, "plan has no root nodes")
		return result
	}

	if depth := tree.Depth(); depth > v.maxDepth {
		result.IsValid = false
		result.Errors = append(result.Errors, fmt.Sprintf("plan depth %d exceeds maximum %d", depth, v.maxDepth))
		return result
	}

	fixed := tree.Clone()

	if cycle := v.findCycle(fixed); cycle != "" {
		result.IsValid = false
		result.Errors = append(result.Errors, fmt.Sprintf("cycle detected: %s", cycle))
		return result
	}

	fixed.Walk(func(n *plan.Node, depth int) bool {
		v.repairNode(n, result)
		if n.Parallel && len(n.Children) < 2 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("node %s marked parallel with fewer than 2 children", n.ID))
		}
		return true
	})

	if !result.IsValid {
		return result
	}

	result.Fixed = fixed
	return result
}

// repairNode resolves n.Capability and n.Function against the registry.
// A fuzzy match is substituted with a warning; a name that doesn't even
// fuzzy-match falls back to the first registered capability, or the first
// declared function on the now-resolved capability, again with a warning.
// The plan only goes invalid here when there's nothing to substitute at
// all — an empty registry, or a capability with no functions.
func (v *Validator) repairNode(n *plan.Node, result *Result) {
	c, ok := v.registry.FindByName(n.Capability)
	if !ok {
		names := v.registry.Names()
		if len(names) == 0 {
			result.IsValid = false
			result.Errors = append(result.Errors, fmt.Sprintf("node %s: capability %q not found and no capabilities are registered", n.ID, n.Capability))
			return
		}
		first, _ := v.registry.Get(names[0])
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("node %s: unresolved capability %q substituted with first registered capability %q", n.ID, n.Capability, first.Name()))
		c = first
		n.Capability = c.Name()
	} else if c.Name() != n.Capability {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("node %s: hallucinated_capability %q repaired to %q", n.ID, n.Capability, c.Name()))
		n.Capability = c.Name()
	}

	var functionNames []string
	for _, f := range c.Functions() {
		functionNames = append(functionNames, f.Name)
		if f.Name == n.Function {
			return
		}
	}
	for _, name := range functionNames {
		if name == n.Function {
			return
		}
	}
	// No exact match; try a case-insensitive fallback before substituting.
	for _, name := range functionNames {
		if equalFold(name, n.Function) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("node %s: function %q repaired to %q", n.ID, n.Function, name))
			n.Function = name
			return
		}
	}
	if len(functionNames) == 0 {
		result.IsValid = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("node %s: capability %q declares no functions", n.ID, n.Capability))
		return
	}
	result.Warnings = append(result.Warnings,
		fmt.Sprintf("node %s: unresolved function %q substituted with first declared function %q", n.ID, n.Function, functionNames[0]))
	n.Function = functionNames[0]
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// findCycle detects a repeated (capability, function) pair along any
// single root-to-leaf path via DFS — the only possible "cycle" in a tree,
// since a tree has no back edges across branches.
func (v *Validator) findCycle(tree *plan.Tree) string {
	var walk func(n *plan.Node, seen map[string]bool) string
	walk = func(n *plan.Node, seen map[string]bool) string {
		key := n.Capability + "." + n.Function
		if seen[key] {
			return key
		}
		seen[key] = true
		for _, child := range n.Children {
			next := make(map[string]bool, len(seen)+1)
			for k := range seen {
				next[k] = true
			}
			if cyc := walk(child, next); cyc != "" {
				return cyc
			}
		}
		return ""
	}
	for _, root := range tree.Roots {
		if cyc := walk(root, map[string]bool{}); cyc != "" {
			return cyc
		}
	}
	return ""
}
