// Package nodes implements the node executor registry: one executor per
// node type, each a function from resolved inputs and dispatch context to
// outputs, usage entries and stream deltas. All engine side effects (LLM
// calls, dataset queries, tool invocations, sandboxed code) live here.
package nodes
