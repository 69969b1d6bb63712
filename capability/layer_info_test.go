package capability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayerInfoListAndDescribe(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(newFake("weather", "lookup")))
	require.NoError(t, r.Register(NewLayerInfo(r)))

	li, ok := r.Get("layer-info")
	require.True(t, ok)

	list, err := li.Execute(context.Background(), "list", nil)
	require.NoError(t, err)
	assert.Contains(t, list, "weather")
	assert.Contains(t, list, "layer-info")

	described, err := li.Execute(context.Background(), "describe", nil)
	require.NoError(t, err)
	assert.Contains(t, described, "weather")
	assert.Contains(t, described, "lookup")
}

func TestLayerInfoUnknownFunction(t *testing.T) {
	r := NewRegistry(nil)
	li := NewLayerInfo(r)
	_, err := li.Execute(context.Background(), "bogus", nil)
	assert.Error(t, err)
}
