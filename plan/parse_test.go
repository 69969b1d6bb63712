package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTreeJSONRoundTrips(t *testing.T) {
	raw := `{"roots":[{"id":"root","capability":"weather","function":"lookup","parallel":false,"children":[{"id":"child","capability":"translate","function":"toFrench"}]}]}`

	tree, err := ParseTreeJSON(raw)
	require.NoError(t, err)
	require.Len(t, tree.Roots, 1)
	assert.Equal(t, "weather", tree.Roots[0].Capability)
	require.Len(t, tree.Roots[0].Children, 1)
	assert.Equal(t, "translate", tree.Roots[0].Children[0].Capability)
}

func TestParseTreeJSONRejectsMalformedInput(t *testing.T) {
	_, err := ParseTreeJSON("not json")
	assert.Error(t, err)
}

func TestMarshalTreeJSONRoundTripsThroughParseTreeJSON(t *testing.T) {
	tree := &Tree{Roots: []*Node{
		{ID: "root", Capability: "weather", Function: "lookup", Children: []*Node{
			{ID: "child", Capability: "translate", Function: "toFrench"},
		}},
	}}

	raw, err := MarshalTreeJSON(tree)
	require.NoError(t, err)

	parsed, err := ParseTreeJSON(raw)
	require.NoError(t, err)
	require.Len(t, parsed.Roots, 1)
	assert.Equal(t, "weather", parsed.Roots[0].Capability)
	require.Len(t, parsed.Roots[0].Children, 1)
	assert.Equal(t, "translate", parsed.Roots[0].Children[0].Capability)
}
