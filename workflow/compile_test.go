package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/flowgate/types"
)

func TestCompileRejectsEmptyWorkflow(t *testing.T) {
	_, err := Compile(nil, nil, newEchoRegistry())
	require.Error(t, err)
	assert.Equal(t, types.ErrCompile, types.GetErrorCode(err))
}

func TestCompileRejectsDuplicateNodeID(t *testing.T) {
	_, err := Compile(
		[]NodeDefinition{startNode(), startNode()},
		nil,
		newEchoRegistry(),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate node id")
}

func TestCompileRejectsUnknownNodeType(t *testing.T) {
	_, err := Compile(
		[]NodeDefinition{{ID: "x", Name: "x", Type: "mystery"}},
		nil,
		newEchoRegistry(),
	)
	require.Error(t, err)
	assert.Equal(t, types.ErrCompile, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "unknown type")
}

func TestCompileRejectsDanglingEdges(t *testing.T) {
	_, err := Compile(
		[]NodeDefinition{startNode()},
		[]EdgeDefinition{edge("start", "ghost")},
		newEchoRegistry(),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing target node")

	_, err = Compile(
		[]NodeDefinition{startNode()},
		[]EdgeDefinition{edge("ghost", "start")},
		newEchoRegistry(),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing source node")
}

func TestCompileRejectsUndeclaredSourceHandle(t *testing.T) {
	_, err := Compile(
		[]NodeDefinition{startNode(), echoNode("reply", "hi", RenderInput)},
		[]EdgeDefinition{branchEdge("start", "nope", "reply")},
		newEchoRegistry(),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source handle")
}

func TestCompileBranchNodeHandlesAreFree(t *testing.T) {
	reg := newEchoRegistry()
	reg.executors[NodeTypeBranch] = func(ctx context.Context, p *NodePayload) (*NodeResult, error) {
		return nil, nil
	}

	_, err := Compile(
		[]NodeDefinition{
			startNode(),
			{ID: "gate", Name: "gate", Type: NodeTypeBranch},
			echoNode("a", "A", RenderInput),
		},
		[]EdgeDefinition{
			edge("start", "gate"),
			branchEdge("gate", HandleIf, "a"),
		},
		reg,
	)
	require.NoError(t, err)
}

func TestCompileEntryResolution(t *testing.T) {
	// Explicit start node wins.
	g, err := Compile(
		[]NodeDefinition{startNode(), echoNode("reply", "hi", RenderInput)},
		[]EdgeDefinition{edge("start", "reply")},
		newEchoRegistry(),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"start"}, g.EntryIDs())

	// Without one, no-in-edge nodes are entries.
	g, err = Compile(
		[]NodeDefinition{echoNode("a", "A", RenderInput), echoNode("b", "B", RenderInput)},
		[]EdgeDefinition{edge("a", "b")},
		newEchoRegistry(),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, g.EntryIDs())
}

func TestCompileRejectsMissingReference(t *testing.T) {
	_, err := Compile(
		[]NodeDefinition{
			startNode(),
			echoNode("reply", []any{"ghost", "text"}, RenderReference),
		},
		[]EdgeDefinition{edge("start", "reply")},
		newEchoRegistry(),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing node")

	_, err = Compile(
		[]NodeDefinition{
			startNode(),
			echoNode("reply", []any{"start", "noSuchOutput"}, RenderReference),
		},
		[]EdgeDefinition{edge("start", "reply")},
		newEchoRegistry(),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing output")
}

func TestCompileRejectsNonUpstreamReference(t *testing.T) {
	// b references a, but a is not on any path into b.
	_, err := Compile(
		[]NodeDefinition{
			startNode(),
			echoNode("a", "A", RenderInput),
			echoNode("b", []any{"a", "text"}, RenderReference),
		},
		[]EdgeDefinition{edge("start", "a"), edge("start", "b")},
		newEchoRegistry(),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not upstream")
}

func TestCompileAcceptsGlobalReference(t *testing.T) {
	_, err := Compile(
		[]NodeDefinition{
			startNode(),
			echoNode("reply", []any{VariableNodeID, "customVar"}, RenderReference),
		},
		[]EdgeDefinition{edge("start", "reply")},
		newEchoRegistry(),
	)
	require.NoError(t, err)
}

func TestCompileLiteralPairIsNotAReference(t *testing.T) {
	// A two-element string array on a non-reference input stays a literal.
	n := echoNode("reply", []any{"ghost", "text"}, RenderInput)
	_, err := Compile(
		[]NodeDefinition{startNode(), n},
		[]EdgeDefinition{edge("start", "reply")},
		newEchoRegistry(),
	)
	require.NoError(t, err)
}

func TestInstantiateIsolatesRuns(t *testing.T) {
	g, err := Compile(
		[]NodeDefinition{startNode(), echoNode("reply", "hi", RenderInput)},
		[]EdgeDefinition{edge("start", "reply")},
		newEchoRegistry(),
	)
	require.NoError(t, err)

	a := g.Instantiate()
	b := g.Instantiate()
	a.Edges()[0].Status = EdgeActive
	na, _ := a.Node("reply")
	na.SetInput("text", "mutated")

	assert.Equal(t, EdgeWaiting, b.Edges()[0].Status)
	nb, _ := b.Node("reply")
	v, _ := nb.InputValue("text")
	assert.Equal(t, "hi", v)
}
