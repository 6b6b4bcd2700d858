package nodes

import (
	"context"

	"github.com/BaSui01/flowgate/types"
	"github.com/BaSui01/flowgate/workflow"
)

// Input/output keys of the code node.
const (
	InputCodeSource = "code"
	InputCodeLang   = "codeType"
	OutputCodeData  = "data"
	OutputCodeLog   = "log"
)

// CodeRunner executes user code in a sandbox and returns its result map.
type CodeRunner interface {
	Run(ctx context.Context, lang, source string, inputs map[string]any) (map[string]any, string, error)
}

// runCode hands the node's source and resolved inputs to the sandbox.
// Custom params (anything beyond the code itself) become sandbox inputs.
func (r *Registry) runCode(ctx context.Context, p *workflow.NodePayload) (*workflow.NodeResult, error) {
	if r.svc.Code == nil {
		return nil, types.NewError(types.ErrServiceUnavailable, "code runner not configured").WithNode(p.Node.ID)
	}

	source := stringParam(p.Params, InputCodeSource)
	if source == "" {
		return nil, types.NewError(types.ErrNodeExecution, "code node has no source").WithNode(p.Node.ID)
	}
	lang := stringParam(p.Params, InputCodeLang)
	if lang == "" {
		lang = "js"
	}

	inputs := make(map[string]any)
	for k, v := range p.Params {
		if k == InputCodeSource || k == InputCodeLang {
			continue
		}
		inputs[k] = v
	}

	data, logText, err := r.svc.Code.Run(ctx, lang, source, inputs)
	if err != nil {
		return nil, types.AsError(err, types.ErrNodeExecution).WithNode(p.Node.ID)
	}

	outputs := map[string]any{
		OutputCodeData: data,
		OutputCodeLog:  logText,
	}
	// Sandbox result keys surface as first-class outputs for referencing.
	for k, v := range data {
		if _, taken := outputs[k]; !taken {
			outputs[k] = v
		}
	}
	return &workflow.NodeResult{Outputs: outputs}, nil
}
