package nodes

import (
	"context"

	"github.com/BaSui01/flowgate/types"
	"github.com/BaSui01/flowgate/workflow"
)

// Input/output keys of the answer node.
const (
	InputText  = "text"
	OutputText = "text"
)

// runAnswer emits static or referenced text to the caller. Template
// variables were already expanded by input resolution.
func (r *Registry) runAnswer(ctx context.Context, p *workflow.NodePayload) (*workflow.NodeResult, error) {
	raw, ok := p.Params[InputText]
	if !ok {
		return &workflow.NodeResult{}, nil
	}
	text := types.ValueToString(raw)
	p.Delta(text)
	return &workflow.NodeResult{
		Outputs:    map[string]any{OutputText: text},
		AnswerText: text,
	}, nil
}
