package plan

import (
	"encoding/json"
	"fmt"
)

// ParseTreeJSON decodes an LLM tree-creation response into a Tree. The
// expected shape is {"roots": [...]} matching Tree's own JSON tags, so a
// provider that echoes back the schema it was given round-trips directly.
func ParseTreeJSON(raw string) (*Tree, error) {
	var tree Tree
	if err := json.Unmarshal([]byte(raw), &tree); err != nil {
		return nil, fmt.Errorf("plan: decoding tree: %w", err)
	}
	return &tree, nil
}

// MarshalTreeJSON encodes tree back into the same {"roots": [...]} shape
// ParseTreeJSON reads, used to hand a previous attempt's plan to an LLM
// call (e.g. cross-attempt comparison) as structured context.
func MarshalTreeJSON(tree *Tree) (string, error) {
	out, err := json.Marshal(tree)
	if err != nil {
		return "", fmt.Errorf("plan: encoding tree: %w", err)
	}
	return string(out), nil
}
