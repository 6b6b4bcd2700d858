// Package workflow implements the dispatch engine that answers one chat
// turn by executing an app's stored node/edge graph.
//
// The pieces, leaves first: Compile turns a published node/edge list into a
// RuntimeGraph; VariableScope resolves each node's declared inputs against
// prior outputs and globals; an ExecutorRegistry (package workflow/nodes)
// performs the actual node work; the Dispatcher walks the graph in
// deterministic readiness order, running independent ready nodes
// concurrently, pruning unselected branches, suspending at interactive
// nodes, and accounting per-node usage for billing. Termination of cyclic
// graphs is enforced solely by the run-count ceiling.
package workflow
