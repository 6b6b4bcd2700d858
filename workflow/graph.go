package workflow

import (
	"github.com/BaSui01/flowgate/types"
)

// NodeType identifies a node executor. Unknown types are rejected at
// compile time, never at run time.
type NodeType string

const (
	// NodeTypeStart is the workflow entry; it publishes the user query.
	NodeTypeStart NodeType = "workflowStart"
	// NodeTypeAnswer emits static or referenced text to the caller.
	NodeTypeAnswer NodeType = "answer"
	// NodeTypeChat calls an LLM, streaming tokens as they arrive.
	NodeTypeChat NodeType = "chatNode"
	// NodeTypeDatasetSearch queries the dataset service for ranked passages.
	NodeTypeDatasetSearch NodeType = "datasetSearch"
	// NodeTypeDatasetConcat merges several quote lists into one.
	NodeTypeDatasetConcat NodeType = "datasetConcat"
	// NodeTypeHTTPTool invokes an external HTTP tool.
	NodeTypeHTTPTool NodeType = "httpTool"
	// NodeTypeBranch selects one outgoing handle and prunes the rest.
	NodeTypeBranch NodeType = "ifElse"
	// NodeTypeInteractive suspends the run until the user submits a form.
	NodeTypeInteractive NodeType = "userInput"
	// NodeTypeCode runs user code in an external sandbox.
	NodeTypeCode NodeType = "codeRun"
	// NodeTypeVariableUpdate writes values into the global variable scope.
	NodeTypeVariableUpdate NodeType = "variableUpdate"
)

// InputRender is the editor-side render hint of an input. The engine only
// cares about RenderReference, which marks reference-bound values.
type InputRender string

const (
	RenderInput     InputRender = "input"
	RenderReference InputRender = "reference"
	RenderTextarea  InputRender = "textarea"
	RenderSwitch    InputRender = "switch"
	RenderJSON      InputRender = "JSONEditor"
)

// VariableNodeID is the pseudo node id that reference values use to address
// the global variable scope instead of a real node's outputs.
const VariableNodeID = "VARIABLE_NODE_ID"

// Branch source handles shared by branch-like nodes.
const (
	HandleIf      = "if"
	HandleElse    = "else"
	HandleSuccess = "success"
	HandleError   = "error"
)

// NodeInput is one declared input of a node. Value holds either a literal
// or, when RenderType is RenderReference, a [nodeId, outputKey] pair (or a
// list of such pairs) resolved at the node's turn.
type NodeInput struct {
	Key          string          `json:"key"`
	RenderType   InputRender     `json:"renderType,omitempty"`
	ValueType    types.ValueType `json:"valueType,omitempty"`
	Value        any             `json:"value,omitempty"`
	DefaultValue any             `json:"defaultValue,omitempty"`
	Required     bool            `json:"required,omitempty"`
}

// NodeOutput is one declared output of a node. Memory-tagged outputs are
// extracted at run end and persisted across chat turns.
type NodeOutput struct {
	ID           string          `json:"id"`
	Key          string          `json:"key"`
	ValueType    types.ValueType `json:"valueType,omitempty"`
	Required     bool            `json:"required,omitempty"`
	DefaultValue any             `json:"defaultValue,omitempty"`
	Memory       bool            `json:"memory,omitempty"`
}

// NodeDefinition is the immutable, published form of a node.
type NodeDefinition struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Type         NodeType     `json:"type"`
	Version      string       `json:"version,omitempty"`
	CatchError   bool         `json:"catchError,omitempty"`
	FatalOnError bool         `json:"fatalOnError,omitempty"`
	Inputs       []NodeInput  `json:"inputs"`
	Outputs      []NodeOutput `json:"outputs"`
}

// EdgeDefinition is a directed link from a source node's output handle to a
// target node's input handle.
type EdgeDefinition struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle"`
	TargetHandle string `json:"targetHandle"`
}

// EdgeStatus is the per-run state of an edge.
type EdgeStatus string

const (
	// EdgeWaiting means the source node has not decided this edge yet.
	EdgeWaiting EdgeStatus = "waiting"
	// EdgeActive means the source node ran and selected this edge.
	EdgeActive EdgeStatus = "active"
	// EdgeSkipped means the edge was pruned by branch selection or error.
	EdgeSkipped EdgeStatus = "skipped"
)

// RuntimeNode binds a NodeDefinition to a single run. It exists only for
// the lifetime of one dispatch call and is never shared across runs.
type RuntimeNode struct {
	NodeDefinition

	IsEntry bool `json:"isEntry,omitempty"`
	// RunCount counts executions of this node within the current run
	// (loop-back edges may revisit a node).
	RunCount int `json:"-"`

	// inputOverrides are per-run injected input values (entry params,
	// resumed interactive form values). They shadow the published value.
	inputOverrides map[string]any
}

// SetInput injects a per-run input value, shadowing the published one.
func (n *RuntimeNode) SetInput(key string, value any) {
	if n.inputOverrides == nil {
		n.inputOverrides = make(map[string]any)
	}
	n.inputOverrides[key] = value
}

// Overrides returns the per-run injected input values. Callers must not
// mutate the returned map.
func (n *RuntimeNode) Overrides() map[string]any {
	return n.inputOverrides
}

// InputValue returns the effective raw value of an input and whether the
// input is declared at all.
func (n *RuntimeNode) InputValue(key string) (any, bool) {
	if v, ok := n.inputOverrides[key]; ok {
		return v, true
	}
	for i := range n.Inputs {
		if n.Inputs[i].Key == key {
			return n.Inputs[i].Value, true
		}
	}
	return nil, false
}

// Output looks up a declared output by key.
func (n *RuntimeNode) Output(key string) (NodeOutput, bool) {
	for i := range n.Outputs {
		if n.Outputs[i].Key == key {
			return n.Outputs[i], true
		}
	}
	return NodeOutput{}, false
}

// IsBranchNode reports whether the node decides among outgoing handles.
// Error-catching nodes are branch nodes: their success/error handles are
// mutually exclusive.
func (n *RuntimeNode) IsBranchNode() bool {
	return n.Type == NodeTypeBranch || n.CatchError
}

// RuntimeEdge is an EdgeDefinition plus its per-run status.
type RuntimeEdge struct {
	EdgeDefinition
	Status EdgeStatus `json:"status"`
}

// RuntimeGraph is the executable form of a published workflow. The compiled
// graph is immutable; Instantiate clones it per dispatch call.
type RuntimeGraph struct {
	nodes    map[string]*RuntimeNode
	order    []string // node ids in definition order, for deterministic walks
	edges    []*RuntimeEdge
	entryIDs []string

	inEdges  map[string][]*RuntimeEdge
	outEdges map[string][]*RuntimeEdge
}

// Node returns a node by id.
func (g *RuntimeGraph) Node(id string) (*RuntimeNode, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes in definition order.
func (g *RuntimeGraph) Nodes() []*RuntimeNode {
	out := make([]*RuntimeNode, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Edges returns all runtime edges.
func (g *RuntimeGraph) Edges() []*RuntimeEdge { return g.edges }

// EntryIDs returns the compiled entry node ids.
func (g *RuntimeGraph) EntryIDs() []string { return g.entryIDs }

// InEdges returns the edges targeting a node.
func (g *RuntimeGraph) InEdges(nodeID string) []*RuntimeEdge { return g.inEdges[nodeID] }

// OutEdges returns the edges leaving a node.
func (g *RuntimeGraph) OutEdges(nodeID string) []*RuntimeEdge { return g.outEdges[nodeID] }

// Instantiate deep-copies the graph for one run, resetting every edge to
// waiting and every node's per-run state.
func (g *RuntimeGraph) Instantiate() *RuntimeGraph {
	clone := &RuntimeGraph{
		nodes:    make(map[string]*RuntimeNode, len(g.nodes)),
		order:    append([]string(nil), g.order...),
		edges:    make([]*RuntimeEdge, 0, len(g.edges)),
		entryIDs: append([]string(nil), g.entryIDs...),
		inEdges:  make(map[string][]*RuntimeEdge),
		outEdges: make(map[string][]*RuntimeEdge),
	}
	for _, id := range g.order {
		src := g.nodes[id]
		n := &RuntimeNode{NodeDefinition: src.NodeDefinition, IsEntry: src.IsEntry}
		clone.nodes[id] = n
	}
	for _, e := range g.edges {
		re := &RuntimeEdge{EdgeDefinition: e.EdgeDefinition, Status: EdgeWaiting}
		clone.edges = append(clone.edges, re)
		clone.inEdges[re.Target] = append(clone.inEdges[re.Target], re)
		clone.outEdges[re.Source] = append(clone.outEdges[re.Source], re)
	}
	return clone
}
