package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/flowgate/types"
)

func TestUsageCollectorFillsNodeIdentity(t *testing.T) {
	c := NewUsageCollector()
	c.Record("n1", "node one", types.NodeUsage{Model: "gpt-4o", InputTokens: 7, OutputTokens: 3})
	c.Record("n2", "node two", types.NodeUsage{NodeID: "custom", NodeName: "kept", TotalPoints: 2})

	usages := c.Finalize()
	require.Len(t, usages, 2)
	assert.Equal(t, "n1", usages[0].NodeID)
	assert.Equal(t, "node one", usages[0].NodeName)
	// Pre-set identity is preserved.
	assert.Equal(t, "custom", usages[1].NodeID)
	assert.Equal(t, "kept", usages[1].NodeName)
}

func TestUsageCollectorFinalizeCopies(t *testing.T) {
	c := NewUsageCollector()
	c.Record("n1", "one", types.NodeUsage{TotalPoints: 1})

	snapshot := c.Finalize()
	c.Record("n2", "two", types.NodeUsage{TotalPoints: 2})
	assert.Len(t, snapshot, 1)
	assert.Equal(t, 2, c.Count())
}

func TestSumUsages(t *testing.T) {
	tokens, points := types.SumUsages([]types.NodeUsage{
		{InputTokens: 10, OutputTokens: 5, TotalPoints: 1.5},
		{InputTokens: 2, OutputTokens: 1, TotalPoints: 0.25},
	})
	assert.Equal(t, 18, tokens)
	assert.InDelta(t, 1.75, points, 1e-9)
}
