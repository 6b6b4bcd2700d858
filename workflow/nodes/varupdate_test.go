package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/flowgate/workflow"
)

func TestVariableUpdateWritesGlobals(t *testing.T) {
	r := NewRegistry(Services{})
	res, err := r.runVariableUpdate(context.Background(), testPayload(
		testNode("update", workflow.NodeTypeVariableUpdate),
		map[string]any{InputUpdateList: []any{
			map[string]any{"variable": "counter", "value": "5", "valueType": "number"},
			map[string]any{
				"variable": []any{workflow.VariableNodeID, "mode"},
				"value":    "strict",
			},
		}},
	))
	require.NoError(t, err)

	assert.Equal(t, float64(5), res.GlobalUpdates["counter"])
	assert.Equal(t, "strict", res.GlobalUpdates["mode"])
}

func TestVariableUpdateResolvesReferenceValues(t *testing.T) {
	r := NewRegistry(Services{})
	p := testPayload(
		testNode("update", workflow.NodeTypeVariableUpdate),
		map[string]any{InputUpdateList: []any{
			map[string]any{"variable": "answer", "value": []any{"llm", "answerText"}},
		}},
	)
	p.Lookup = func(ref [2]string) (any, bool) {
		if ref == [2]string{"llm", "answerText"} {
			return "resolved", true
		}
		return nil, false
	}

	res, err := r.runVariableUpdate(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "resolved", res.GlobalUpdates["answer"])
}

func TestVariableUpdateRejectsNonGlobalTarget(t *testing.T) {
	r := NewRegistry(Services{})
	_, err := r.runVariableUpdate(context.Background(), testPayload(
		testNode("update", workflow.NodeTypeVariableUpdate),
		map[string]any{InputUpdateList: []any{
			// A reference pair targeting a node output is not a writable global.
			map[string]any{"variable": []any{"llm", "answerText"}, "value": "x"},
		}},
	))
	require.Error(t, err)
}

func TestVariableUpdateEmptyListIsNoop(t *testing.T) {
	r := NewRegistry(Services{})
	res, err := r.runVariableUpdate(context.Background(), testPayload(
		testNode("update", workflow.NodeTypeVariableUpdate), nil))
	require.NoError(t, err)
	assert.Empty(t, res.GlobalUpdates)
}
