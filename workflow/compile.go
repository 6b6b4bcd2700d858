package workflow

import (
	"fmt"

	"github.com/BaSui01/flowgate/types"
)

// TypeChecker reports whether a node type has a registered executor.
// Satisfied by *nodes.Registry.
type TypeChecker interface {
	Has(t NodeType) bool
}

// Compile converts a published node/edge list into an executable
// RuntimeGraph. It fails closed: dangling edge endpoints, unknown node
// types and unresolvable input references are compile-time errors surfaced
// to the app editor, never runtime errors.
func Compile(defs []NodeDefinition, edges []EdgeDefinition, checker TypeChecker) (*RuntimeGraph, error) {
	if len(defs) == 0 {
		return nil, types.NewError(types.ErrCompile, "workflow has no nodes")
	}

	g := &RuntimeGraph{
		nodes:    make(map[string]*RuntimeNode, len(defs)),
		inEdges:  make(map[string][]*RuntimeEdge),
		outEdges: make(map[string][]*RuntimeEdge),
	}

	for i := range defs {
		def := defs[i]
		if def.ID == "" {
			return nil, types.NewError(types.ErrCompile, "node without id")
		}
		if _, dup := g.nodes[def.ID]; dup {
			return nil, types.NewError(types.ErrCompile, fmt.Sprintf("duplicate node id %q", def.ID))
		}
		if checker != nil && !checker.Has(def.Type) {
			return nil, types.NewError(types.ErrCompile,
				fmt.Sprintf("node %q has unknown type %q", def.ID, def.Type)).WithNode(def.ID)
		}
		g.nodes[def.ID] = &RuntimeNode{NodeDefinition: def}
		g.order = append(g.order, def.ID)
	}

	for i := range edges {
		e := edges[i]
		src, ok := g.nodes[e.Source]
		if !ok {
			return nil, types.NewError(types.ErrCompile,
				fmt.Sprintf("edge references missing source node %q", e.Source))
		}
		if _, ok := g.nodes[e.Target]; !ok {
			return nil, types.NewError(types.ErrCompile,
				fmt.Sprintf("edge references missing target node %q", e.Target))
		}
		if e.SourceHandle != "" && !src.IsBranchNode() {
			if _, ok := src.Output(e.SourceHandle); !ok {
				return nil, types.NewError(types.ErrCompile,
					fmt.Sprintf("edge source handle %q not declared on node %q", e.SourceHandle, e.Source)).
					WithNode(e.Source)
			}
		}
		re := &RuntimeEdge{EdgeDefinition: e, Status: EdgeWaiting}
		g.edges = append(g.edges, re)
		g.inEdges[e.Target] = append(g.inEdges[e.Target], re)
		g.outEdges[e.Source] = append(g.outEdges[e.Source], re)
	}

	if err := resolveEntries(g); err != nil {
		return nil, err
	}
	if err := checkReferences(g); err != nil {
		return nil, err
	}
	return g, nil
}

// resolveEntries marks entry nodes: explicit start nodes when present,
// otherwise every node without incoming edges.
func resolveEntries(g *RuntimeGraph) error {
	for _, id := range g.order {
		if g.nodes[id].Type == NodeTypeStart {
			g.nodes[id].IsEntry = true
			g.entryIDs = append(g.entryIDs, id)
		}
	}
	if len(g.entryIDs) == 0 {
		for _, id := range g.order {
			if len(g.inEdges[id]) == 0 {
				g.nodes[id].IsEntry = true
				g.entryIDs = append(g.entryIDs, id)
			}
		}
	}
	if len(g.entryIDs) == 0 {
		return types.NewError(types.ErrCompile, "workflow has no entry node")
	}
	return nil
}

// checkReferences verifies that every reference-bound input names a global
// variable or an output key declared on an upstream-reachable node.
func checkReferences(g *RuntimeGraph) error {
	for _, id := range g.order {
		node := g.nodes[id]
		upstream := upstreamSet(g, id)
		for _, input := range node.Inputs {
			if input.RenderType != RenderReference {
				continue
			}
			for _, ref := range referencePairs(input.Value) {
				if ref[0] == VariableNodeID {
					continue
				}
				srcNode, ok := g.nodes[ref[0]]
				if !ok {
					return types.NewError(types.ErrCompile,
						fmt.Sprintf("node %q input %q references missing node %q", id, input.Key, ref[0])).
						WithNode(id)
				}
				if _, ok := srcNode.Output(ref[1]); !ok {
					if _, byID := outputByID(srcNode, ref[1]); !byID {
						return types.NewError(types.ErrCompile,
							fmt.Sprintf("node %q input %q references missing output %q.%q",
								id, input.Key, ref[0], ref[1])).WithNode(id)
					}
				}
				if ref[0] != id && !upstream[ref[0]] {
					return types.NewError(types.ErrCompile,
						fmt.Sprintf("node %q input %q references node %q which is not upstream",
							id, input.Key, ref[0])).WithNode(id)
				}
			}
		}
	}
	return nil
}

func outputByID(n *RuntimeNode, id string) (NodeOutput, bool) {
	for i := range n.Outputs {
		if n.Outputs[i].ID == id {
			return n.Outputs[i], true
		}
	}
	return NodeOutput{}, false
}

// upstreamSet walks edges backward from a node, collecting every node that
// can causally precede it (cycles included).
func upstreamSet(g *RuntimeGraph, nodeID string) map[string]bool {
	seen := make(map[string]bool)
	stack := []string{nodeID}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range g.inEdges[cur] {
			if seen[e.Source] {
				continue
			}
			seen[e.Source] = true
			stack = append(stack, e.Source)
		}
	}
	return seen
}

// referencePairs extracts [nodeId, outputKey] pairs from a raw input value.
// Supports a single pair and a list of pairs; anything else is a literal.
func referencePairs(value any) [][2]string {
	if pair, ok := asReferencePair(value); ok {
		return [][2]string{pair}
	}
	list, ok := value.([]any)
	if !ok {
		return nil
	}
	var out [][2]string
	for _, item := range list {
		pair, ok := asReferencePair(item)
		if !ok {
			return nil
		}
		out = append(out, pair)
	}
	return out
}

func asReferencePair(value any) ([2]string, bool) {
	switch v := value.(type) {
	case [2]string:
		return v, true
	case []string:
		if len(v) == 2 {
			return [2]string{v[0], v[1]}, true
		}
	case []any:
		if len(v) == 2 {
			a, aok := v[0].(string)
			b, bok := v[1].(string)
			if aok && bok {
				return [2]string{a, b}, true
			}
		}
	}
	return [2]string{}, false
}
