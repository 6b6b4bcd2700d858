package nodes

import (
	"context"

	"github.com/BaSui01/flowgate/types"
	"github.com/BaSui01/flowgate/workflow"
)

// Input/output keys of the user input node.
const (
	InputFormFields     = "inputForm"
	InputDescription    = "description"
	OutputFormSubmitted = "submitted"
)

// runInteractive checks whether every required form field has a value. A
// complete form passes through as outputs; an incomplete one suspends the
// run until the caller resumes with the missing values.
func (r *Registry) runInteractive(ctx context.Context, p *workflow.NodePayload) (*workflow.NodeResult, error) {
	fields, err := parseFormFields(sliceParam(p.Params, InputFormFields))
	if err != nil {
		return nil, types.AsError(err, types.ErrNodeExecution).WithNode(p.Node.ID)
	}

	outputs := make(map[string]any, len(fields)+1)
	complete := true
	for i := range fields {
		f := &fields[i]
		if v, ok := p.Params[f.Key]; ok && v != nil {
			f.Value = v
		}
		if f.Value == nil && f.Required {
			complete = false
			continue
		}
		outputs[f.Key] = f.Value
	}

	if !complete {
		return &workflow.NodeResult{
			Interactive: &workflow.InteractiveSignal{Form: fields},
		}, nil
	}

	outputs[OutputFormSubmitted] = true
	return &workflow.NodeResult{Outputs: outputs}, nil
}

func parseFormFields(raw []any) ([]workflow.FormField, error) {
	fields := make([]workflow.FormField, 0, len(raw))
	for _, item := range raw {
		m, _ := item.(map[string]any)
		if m == nil {
			continue
		}
		key := stringParam(m, "key")
		if key == "" {
			return nil, types.NewError(types.ErrNodeExecution, "form field missing key")
		}
		fields = append(fields, workflow.FormField{
			Key:      key,
			Label:    stringParam(m, "label"),
			Type:     stringParam(m, "type"),
			Required: boolParam(m, "required", false),
			Value:    m["value"],
		})
	}
	return fields, nil
}
