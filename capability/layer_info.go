package capability

import (
	"context"
	"fmt"
)

// LayerInfo is a built-in capability that reports on the registry's own
// contents — which capabilities and functions are available right now.
// Useful as a default when the planner needs to answer "what can you do"
// without the caller wiring a domain-specific capability for it.
type LayerInfo struct {
	registry *Registry
}

// NewLayerInfo builds the layer-info capability bound to registry. Register
// it against the same registry it introspects.
func NewLayerInfo(registry *Registry) *LayerInfo {
	return &LayerInfo{registry: registry}
}

func (l *LayerInfo) Name() string { return "layer-info" }

func (l *LayerInfo) Description() string {
	return "Reports which capabilities and functions are currently registered."
}

func (l *LayerInfo) Functions() []FunctionSpec {
	return []FunctionSpec{
		{Name: "list", Description: "List every registered capability name."},
		{Name: "describe", Description: "Describe every registered capability and its functions."},
	}
}

func (l *LayerInfo) Execute(ctx context.Context, function string, args map[string]interface{}) (string, error) {
	switch function {
	case "list":
		names := l.registry.Names()
		out := ""
		for i, n := range names {
			if i > 0 {
				out += ", "
			}
			out += n
		}
		return out, nil
	case "describe":
		return l.registry.DescribeForLLM(), nil
	default:
		return "", fmt.Errorf("layer-info: unknown function %q", function)
	}
}
