package nodes

import (
	"context"

	"github.com/BaSui01/flowgate/workflow"
)

// Output keys of the start node.
const (
	OutputQuery = "userChatInput"
)

// runStart publishes the trigger query so downstream nodes can reference
// it like any other node output.
func (r *Registry) runStart(ctx context.Context, p *workflow.NodePayload) (*workflow.NodeResult, error) {
	query := stringParam(p.Params, OutputQuery)
	if query == "" {
		query = p.Dispatch.Query
	}
	return &workflow.NodeResult{
		Outputs: map[string]any{OutputQuery: query},
	}, nil
}
