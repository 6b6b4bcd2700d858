package workflow

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/BaSui01/flowgate/types"
)

// VariableScope holds the values visible to a node at its turn: global
// variables seeded at run start and the outputs of nodes that causally
// precede it. The scope is owned by the single in-flight dispatch call;
// only the scheduler goroutine writes to it.
type VariableScope struct {
	globals     map[string]any
	nodeOutputs map[string]map[string]any
}

// NewVariableScope creates a scope seeded with global variables.
func NewVariableScope(globals map[string]any) *VariableScope {
	s := &VariableScope{
		globals:     make(map[string]any, len(globals)),
		nodeOutputs: make(map[string]map[string]any),
	}
	for k, v := range globals {
		s.globals[k] = v
	}
	return s
}

// Global returns a global variable.
func (s *VariableScope) Global(key string) (any, bool) {
	v, ok := s.globals[key]
	return v, ok
}

// SetGlobal sets a global variable.
func (s *VariableScope) SetGlobal(key string, value any) {
	s.globals[key] = value
}

// Globals returns a copy of the global variables.
func (s *VariableScope) Globals() map[string]any {
	out := make(map[string]any, len(s.globals))
	for k, v := range s.globals {
		out[k] = v
	}
	return out
}

// SetNodeOutput records one produced output of a node.
func (s *VariableScope) SetNodeOutput(nodeID, key string, value any) {
	m := s.nodeOutputs[nodeID]
	if m == nil {
		m = make(map[string]any)
		s.nodeOutputs[nodeID] = m
	}
	m[key] = value
}

// NodeOutput looks up a prior node output.
func (s *VariableScope) NodeOutput(nodeID, key string) (any, bool) {
	m, ok := s.nodeOutputs[nodeID]
	if !ok {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}

// NodeOutputs returns the outputs recorded for a node.
func (s *VariableScope) NodeOutputs(nodeID string) map[string]any {
	return s.nodeOutputs[nodeID]
}

// ResolveInputs materializes a node's declared inputs into concrete values.
// Literals pass through, references are map lookups against the scope, and
// string values get template replacement. A missing required input is a
// resolution error owned by the node.
func (s *VariableScope) ResolveInputs(node *RuntimeNode, g *RuntimeGraph) (map[string]any, error) {
	params := make(map[string]any, len(node.Inputs))
	for i := range node.Inputs {
		input := node.Inputs[i]
		raw, _ := node.InputValue(input.Key)

		var val any
		if input.RenderType == RenderReference {
			val = s.resolveReference(raw, g)
		} else {
			val = raw
		}
		if text, ok := val.(string); ok {
			val = s.ReplaceTemplates(text, g)
		}
		val = types.FormatValue(val, input.ValueType)

		if val == nil {
			if input.DefaultValue != nil {
				val = types.FormatValue(input.DefaultValue, input.ValueType)
			} else if input.Required {
				return nil, types.NewError(types.ErrResolution,
					fmt.Sprintf("required input %q of node %q has no value", input.Key, node.ID)).
					WithNode(node.ID)
			}
		}
		params[input.Key] = val
	}

	// Injected values without a matching declaration still surface: resumed
	// form fields are declared inside the form list, not as node inputs.
	for key, raw := range node.Overrides() {
		if _, declared := params[key]; declared {
			continue
		}
		if text, ok := raw.(string); ok {
			params[key] = s.ReplaceTemplates(text, g)
			continue
		}
		params[key] = raw
	}
	return params, nil
}

// resolveReference resolves a [nodeId, outputKey] pair or a list of pairs.
// A list flattens its element values and drops unresolved entries, matching
// the fan-in contract: outputs of skipped branches simply do not appear.
func (s *VariableScope) resolveReference(raw any, g *RuntimeGraph) any {
	if pair, ok := asReferencePair(raw); ok {
		v, _ := s.lookupReference(pair, g)
		return v
	}
	list, ok := raw.([]any)
	if !ok {
		return raw
	}
	var out []any
	for _, item := range list {
		pair, ok := asReferencePair(item)
		if !ok {
			return raw
		}
		v, resolved := s.lookupReference(pair, g)
		if !resolved || v == nil {
			continue
		}
		if arr, isArr := v.([]any); isArr {
			out = append(out, arr...)
		} else {
			out = append(out, v)
		}
	}
	return out
}

func (s *VariableScope) lookupReference(ref [2]string, g *RuntimeGraph) (any, bool) {
	if ref[0] == VariableNodeID {
		return s.Global(ref[1])
	}
	key := ref[1]
	if g != nil {
		if node, ok := g.Node(ref[0]); ok {
			if _, byKey := node.Output(key); !byKey {
				if out, byID := outputByID(node, ref[1]); byID {
					key = out.Key
				}
			}
		}
	}
	return s.NodeOutput(ref[0], key)
}

var (
	globalVarPattern = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)
	nodeVarPattern   = regexp.MustCompile(`\{\{\$([^.{}$]+)\.([^{}$]+)\$\}\}`)
)

// maxTemplateDepth bounds nested variable expansion.
const maxTemplateDepth = 10

// ReplaceTemplates expands {{var}} globals and {{$nodeId.outputKey$}} node
// output references inside a string input.
func (s *VariableScope) ReplaceTemplates(text string, g *RuntimeGraph) string {
	return s.replaceTemplates(text, g, 0)
}

func (s *VariableScope) replaceTemplates(text string, g *RuntimeGraph, depth int) string {
	if text == "" || depth > maxTemplateDepth {
		return text
	}

	replaced := globalVarPattern.ReplaceAllStringFunc(text, func(match string) string {
		key := match[2 : len(match)-2]
		if v, ok := s.globals[key]; ok {
			return types.ValueToString(v)
		}
		return match
	})

	replaced = nodeVarPattern.ReplaceAllStringFunc(replaced, func(match string) string {
		sub := nodeVarPattern.FindStringSubmatch(match)
		if sub == nil {
			return match
		}
		v, ok := s.lookupReference([2]string{sub[1], sub[2]}, g)
		if !ok {
			return match
		}
		return types.ValueToString(v)
	})

	if replaced != text && strings.Contains(replaced, "{{") {
		return s.replaceTemplates(replaced, g, depth+1)
	}
	return replaced
}
