package nodes

import (
	"context"

	"github.com/BaSui01/flowgate/types"
	"github.com/BaSui01/flowgate/workflow"
)

// Input keys of the variable update node.
const (
	InputUpdateList = "updateList"
)

// runVariableUpdate writes values into the global variable scope. Each
// update names a global and its new value; values may reference outputs of
// upstream nodes.
func (r *Registry) runVariableUpdate(ctx context.Context, p *workflow.NodePayload) (*workflow.NodeResult, error) {
	updates := make(map[string]any)
	for _, raw := range sliceParam(p.Params, InputUpdateList) {
		item, _ := raw.(map[string]any)
		if item == nil {
			continue
		}
		key := updateTargetKey(item["variable"])
		if key == "" {
			return nil, types.NewError(types.ErrNodeExecution, "variable update missing target").WithNode(p.Node.ID)
		}
		value := item["value"]
		if pair, ok := asPair(value); ok {
			value, _ = p.Lookup(pair)
		}
		if t := types.ValueType(stringParam(item, "valueType")); t != "" {
			value = types.FormatValue(value, t)
		}
		updates[key] = value
	}
	return &workflow.NodeResult{GlobalUpdates: updates}, nil
}

// updateTargetKey accepts either a bare global name or a
// [VARIABLE_NODE_ID, name] reference pair.
func updateTargetKey(raw any) string {
	if pair, ok := asPair(raw); ok {
		if pair[0] == workflow.VariableNodeID {
			return pair[1]
		}
		return ""
	}
	if s, ok := raw.(string); ok {
		return s
	}
	return ""
}
