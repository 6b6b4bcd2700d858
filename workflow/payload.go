package workflow

import (
	"context"

	"github.com/BaSui01/flowgate/types"
)

// ExecutorRegistry runs node executors by type. Side effects (LLM calls,
// dataset queries, tool invocations, sandboxed code) are confined to the
// registry's executors; the scheduler never performs I/O itself.
type ExecutorRegistry interface {
	TypeChecker
	Run(ctx context.Context, p *NodePayload) (*NodeResult, error)
}

// NodePayload is everything an executor receives for one node turn.
type NodePayload struct {
	Node   *RuntimeNode
	Params map[string]any
	// Dispatch is the per-run immutable configuration. Executors must not
	// mutate it.
	Dispatch *DispatchContext
	// Variables is a read-only copy of the current global scope.
	Variables map[string]any
	// Lookup resolves a [nodeId, outputKey] reference against the scope
	// visible to this wave. Always non-nil.
	Lookup func(ref [2]string) (any, bool)
	// Delta forwards one chunk of assistant text to the response stream.
	// Always non-nil.
	Delta func(text string)
}

// InteractiveSignal is returned by an interactive node that cannot proceed
// without new user input. The scheduler turns it into a suspension.
type InteractiveSignal struct {
	Form []FormField
}

// NodeResult is what a node executor produces.
type NodeResult struct {
	// Outputs keyed by declared output key; merged into the variable scope.
	Outputs map[string]any
	// Usages are the node's billing entries.
	Usages []types.NodeUsage
	// AnswerText is assistant text contributed by this node. Streaming
	// nodes forward it incrementally through Delta as well.
	AnswerText string
	// SkipHandles lists outgoing source handles pruned by branch selection.
	SkipHandles []string
	// GlobalUpdates are writes into the global variable scope.
	GlobalUpdates map[string]any
	// Interactive, when set, suspends the run at this node.
	Interactive *InteractiveSignal
}
