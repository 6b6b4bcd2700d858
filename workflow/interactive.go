package workflow

import (
	"encoding/json"

	"github.com/BaSui01/flowgate/types"
)

// FormField is one user-supplied field an interactive node is waiting for.
type FormField struct {
	Key      string `json:"key"`
	Label    string `json:"label,omitempty"`
	Type     string `json:"type,omitempty"`
	Required bool   `json:"required,omitempty"`
	Value    any    `json:"value,omitempty"`
}

// EdgeSnapshot is a serialized runtime edge status.
type EdgeSnapshot struct {
	Source       string     `json:"source"`
	Target       string     `json:"target"`
	SourceHandle string     `json:"sourceHandle,omitempty"`
	TargetHandle string     `json:"targetHandle,omitempty"`
	Status       EdgeStatus `json:"status"`
}

// OutputSnapshot is one persisted node output value.
type OutputSnapshot struct {
	NodeID string `json:"nodeId"`
	Key    string `json:"key"`
	Value  any    `json:"value"`
}

// InteractiveState is the serializable snapshot captured when an
// interactive node suspends the run. It is the only state that survives
// the boundary of a paused dispatch call; resumption is a pure function of
// (compiled graph, InteractiveState, new user input).
type InteractiveState struct {
	PausedNodeID string           `json:"pausedNodeId"`
	Form         []FormField      `json:"form"`
	EntryNodeIDs []string         `json:"entryNodeIds"`
	Edges        []EdgeSnapshot   `json:"memoryEdges"`
	NodeOutputs  []OutputSnapshot `json:"nodeOutputs"`
	Variables    map[string]any   `json:"variables,omitempty"`
}

// Marshal serializes the state for persistence alongside the chat record.
func (s *InteractiveState) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalInteractiveState parses a persisted snapshot.
func UnmarshalInteractiveState(data []byte) (*InteractiveState, error) {
	var s InteractiveState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "invalid interactive state").WithCause(err)
	}
	return &s, nil
}

// snapshotInteractive captures the run state at the moment an interactive
// node pauses: edge statuses, every node output produced so far, and the
// accumulated global variables.
func snapshotInteractive(g *RuntimeGraph, scope *VariableScope, pausedNodeID string, form []FormField) *InteractiveState {
	st := &InteractiveState{
		PausedNodeID: pausedNodeID,
		Form:         form,
		EntryNodeIDs: []string{pausedNodeID},
		Variables:    scope.Globals(),
	}
	for _, e := range g.Edges() {
		st.Edges = append(st.Edges, EdgeSnapshot{
			Source:       e.Source,
			Target:       e.Target,
			SourceHandle: e.SourceHandle,
			TargetHandle: e.TargetHandle,
			Status:       e.Status,
		})
	}
	for _, node := range g.Nodes() {
		for key, val := range scope.NodeOutputs(node.ID) {
			st.NodeOutputs = append(st.NodeOutputs, OutputSnapshot{NodeID: node.ID, Key: key, Value: val})
		}
	}
	return st
}

// applyInteractive restores a per-run graph and scope from a snapshot and
// injects the submitted form values into the paused node. Submitted values
// come from the filled form first, then from the request variables.
func applyInteractive(g *RuntimeGraph, scope *VariableScope, st *InteractiveState, variables map[string]any) error {
	paused, ok := g.Node(st.PausedNodeID)
	if !ok {
		return types.NewError(types.ErrInvalidRequest, "paused node no longer exists in the graph").
			WithNode(st.PausedNodeID)
	}

	for k, v := range st.Variables {
		scope.SetGlobal(k, v)
	}
	for _, out := range st.NodeOutputs {
		scope.SetNodeOutput(out.NodeID, out.Key, out.Value)
	}

	edgeKey := func(source, target, handle string) string { return source + "\x00" + target + "\x00" + handle }
	saved := make(map[string]EdgeStatus, len(st.Edges))
	for _, e := range st.Edges {
		saved[edgeKey(e.Source, e.Target, e.SourceHandle)] = e.Status
	}
	for _, e := range g.Edges() {
		if status, ok := saved[edgeKey(e.Source, e.Target, e.SourceHandle)]; ok {
			e.Status = status
		}
	}

	for _, field := range st.Form {
		val := field.Value
		if val == nil {
			val = variables[field.Key]
		}
		if val != nil {
			paused.SetInput(field.Key, val)
		}
	}
	paused.IsEntry = true
	return nil
}
