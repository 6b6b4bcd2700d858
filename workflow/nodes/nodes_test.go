package nodes

import (
	"github.com/BaSui01/flowgate/workflow"
)

// testPayload builds a minimal payload for exercising one executor.
func testPayload(node *workflow.RuntimeNode, params map[string]any) *workflow.NodePayload {
	if params == nil {
		params = map[string]any{}
	}
	return &workflow.NodePayload{
		Node:      node,
		Params:    params,
		Dispatch:  &workflow.DispatchContext{Query: "test query", Stream: true},
		Variables: map[string]any{},
		Lookup:    func(ref [2]string) (any, bool) { return nil, false },
		Delta:     func(string) {},
	}
}

func testNode(id string, t workflow.NodeType) *workflow.RuntimeNode {
	return &workflow.RuntimeNode{NodeDefinition: workflow.NodeDefinition{ID: id, Name: id, Type: t}}
}
