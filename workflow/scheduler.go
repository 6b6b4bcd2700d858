package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/flowgate/types"
)

// run holds the mutable state of one dispatch call. Only the scheduler
// goroutine touches it; node executors receive copies.
type run struct {
	dispatcher *Dispatcher
	logger     *zap.Logger
	graph      *RuntimeGraph
	req        *DispatchRequest
	dctx       *DispatchContext

	scope    *VariableScope
	usage    *UsageCollector
	streamer *ResponseStreamer

	responses []NodeResponse
	assistant []types.AssistantContent
	remaining int
	suspended *InteractiveState

	// skippedOnce dedups skip propagation per node. Without it, two
	// mutually-referencing pruned nodes in a loop body would re-skip each
	// other forever once the exit branch fires.
	skippedOnce map[string]bool

	// pendingPause is set mid-wave by an interactive node; the snapshot is
	// taken only after the whole wave has been applied, so sibling outputs
	// survive into the resumed run.
	pendingPause *pausedNode
}

type pausedNode struct {
	node *RuntimeNode
	form []FormField
}

// nodeRunStatus is the readiness decision for a candidate node.
type nodeRunStatus int

const (
	statusWait nodeRunStatus = iota
	statusRun
	statusSkip
)

// waveItem is one node scheduled in the current wave, in readiness order.
type waveItem struct {
	node   *RuntimeNode
	slot   *StreamSlot
	params map[string]any
	result *NodeResult
	err    error
	dur    float64
}

// execute walks the graph from the entry nodes until no ready node
// remains, a fatal error occurs, or an interactive node suspends the run.
func (r *run) execute(ctx context.Context, entryIDs []string) error {
	queue := append([]string(nil), entryIDs...)

	// Entry nodes run unconditionally on their first visit: a resumed
	// interactive node's incoming edges were already consumed before the
	// pause, so the readiness check alone would leave it waiting forever.
	forced := make(map[string]bool, len(entryIDs))
	for _, id := range entryIDs {
		forced[id] = true
	}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return canceledError(err)
		}

		var wave []*RuntimeNode
		var requeue []string
		seen := make(map[string]bool, len(queue))

		for _, id := range queue {
			if seen[id] {
				continue
			}
			seen[id] = true
			node, ok := r.graph.Node(id)
			if !ok {
				return types.NewError(types.ErrInternalInconsistency,
					fmt.Sprintf("scheduled node %q not in graph", id))
			}
			status := checkNodeRunStatus(r.graph, node)
			if forced[id] {
				status = statusRun
				delete(forced, id)
			}
			switch status {
			case statusRun:
				wave = append(wave, node)
			case statusSkip:
				if r.skippedOnce == nil {
					r.skippedOnce = make(map[string]bool)
				}
				if r.skippedOnce[id] {
					continue
				}
				r.skippedOnce[id] = true
				requeue = append(requeue, r.skipNode(node)...)
			case statusWait:
				// Re-examined when another incoming edge resolves.
			}
		}

		if len(wave) == 0 {
			queue = requeue
			continue
		}

		next, err := r.executeWave(ctx, wave)
		if err != nil {
			return err
		}
		queue = append(requeue, next...)

		if r.pendingPause != nil {
			r.suspended = snapshotInteractive(r.graph, r.scope, r.pendingPause.node.ID, r.pendingPause.form)
			return nil
		}
	}
	return nil
}

// executeWave runs the ready nodes of one wave. Inputs are resolved
// sequentially in readiness order before anything launches, independent
// nodes then execute concurrently, and results are applied back in
// readiness order so the observable ordering is deterministic.
func (r *run) executeWave(ctx context.Context, wave []*RuntimeNode) ([]string, error) {
	items := make([]*waveItem, 0, len(wave))
	for _, node := range wave {
		if r.remaining <= 0 {
			return nil, types.NewError(types.ErrRunLimitExceeded,
				fmt.Sprintf("run limit of %d node executions exceeded", r.dctx.MaxRunTimes)).
				WithNode(node.ID)
		}
		r.remaining--
		node.RunCount++
		node.IsEntry = false

		// Consume the incoming edges so a loop-back edge can re-trigger
		// this node later.
		for _, e := range r.graph.InEdges(node.ID) {
			e.Status = EdgeWaiting
		}

		item := &waveItem{node: node, slot: r.streamer.OpenSlot(node.ID, node.Name)}
		item.params, item.err = r.scope.ResolveInputs(node, r.graph)
		items = append(items, item)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, item := range items {
		if item.err != nil {
			item.slot.Close()
			continue
		}
		item := item
		g.Go(func() error {
			defer item.slot.Close()
			started := time.Now()
			item.result, item.err = r.runNode(gctx, item)
			item.dur = time.Since(started).Seconds()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, canceledError(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, canceledError(err)
	}

	var next []string
	for _, item := range items {
		targets, err := r.applyResult(item)
		if err != nil {
			return nil, err
		}
		next = append(next, targets...)
	}
	return next, nil
}

// runNode invokes the registry executor under the per-node timeout and a
// tracing span.
func (r *run) runNode(ctx context.Context, item *waveItem) (*NodeResult, error) {
	node := item.node
	ctx, cancel := context.WithTimeout(ctx, r.req.nodeTimeout())
	defer cancel()

	ctx, span := r.dispatcher.tracer.Start(ctx, "workflow.node", trace.WithAttributes(
		attribute.String("node_id", node.ID),
		attribute.String("node_type", string(node.Type)),
	))
	defer span.End()

	r.logger.Debug("executing node",
		zap.String("node_id", node.ID),
		zap.String("node_type", string(node.Type)),
		zap.Int("run_count", node.RunCount),
	)

	res, err := r.dispatcher.registry.Run(ctx, &NodePayload{
		Node:      node,
		Params:    item.params,
		Dispatch:  r.dctx,
		Variables: r.scope.Globals(),
		Lookup: func(ref [2]string) (any, bool) {
			return r.scope.lookupReference(ref, r.graph)
		},
		Delta: item.slot.Delta,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = types.NewError(types.ErrTimeout,
				fmt.Sprintf("node %q timed out after %s", node.ID, r.req.nodeTimeout())).
				WithNode(node.ID).WithCause(err)
		}
		span.RecordError(err)
		return res, err
	}
	if res == nil {
		res = &NodeResult{}
	}
	return res, nil
}

// applyResult merges one node's outcome into the run: scope, responses,
// usage ledger, edge statuses. Returns the follow-up node ids to schedule.
func (r *run) applyResult(item *waveItem) ([]string, error) {
	node := item.node
	res := item.result
	if res == nil {
		res = &NodeResult{}
	}

	resp := NodeResponse{
		NodeID:      node.ID,
		NodeName:    node.Name,
		NodeType:    node.Type,
		Outputs:     res.Outputs,
		Usages:      res.Usages,
		RunningTime: item.dur,
	}

	// Usage is recorded win or lose: partial work already has real cost.
	r.usage.Record(node.ID, node.Name, res.Usages...)
	r.observeNode(node, item)

	if item.err != nil {
		resp.ErrorMsg = item.err.Error()
		r.responses = append(r.responses, resp)
		r.logger.Warn("node execution failed",
			zap.String("node_id", node.ID),
			zap.String("node_type", string(node.Type)),
			zap.Error(item.err),
		)
		if node.FatalOnError {
			return nil, types.AsError(item.err, types.ErrNodeExecution).WithNode(node.ID)
		}
		if node.CatchError {
			r.scope.SetNodeOutput(node.ID, HandleError, item.err.Error())
			return r.routeEdges(node, []string{HandleSuccess}), nil
		}
		// No error branch declared: prune everything downstream of this
		// node that is not reachable another way.
		return r.routeEdges(node, allSourceHandles(r.graph, node)), nil
	}

	if res.Interactive != nil {
		if r.pendingPause != nil {
			return nil, types.NewError(types.ErrInternalInconsistency,
				"two interactive nodes suspended in the same dispatch call").WithNode(node.ID)
		}
		r.pendingPause = &pausedNode{node: node, form: res.Interactive.Form}
		// The node did not execute; its response and edges stay pending
		// until the resumed call.
		return nil, nil
	}

	for key, val := range res.Outputs {
		r.scope.SetNodeOutput(node.ID, key, val)
	}
	for i := range node.Outputs {
		out := node.Outputs[i]
		if !out.Required {
			continue
		}
		if _, ok := res.Outputs[out.Key]; ok {
			continue
		}
		r.scope.SetNodeOutput(node.ID, out.Key, types.FormatValue(out.DefaultValue, out.ValueType))
	}
	for k, v := range res.GlobalUpdates {
		r.scope.SetGlobal(k, v)
	}
	if res.AnswerText != "" {
		r.assistant = append(r.assistant, types.TextAssistantContent(res.AnswerText))
	}

	r.responses = append(r.responses, resp)
	if node.CatchError {
		// Success path: the error handle is pruned.
		return r.routeEdges(node, []string{HandleError}), nil
	}
	return r.routeEdges(node, res.SkipHandles), nil
}

// routeEdges sets the node's outgoing edges active except for the pruned
// handles, and returns all target ids so skips propagate.
func (r *run) routeEdges(node *RuntimeNode, skipHandles []string) []string {
	skip := make(map[string]bool, len(skipHandles))
	for _, h := range skipHandles {
		skip[h] = true
	}
	var targets []string
	for _, e := range r.graph.OutEdges(node.ID) {
		if skip[e.SourceHandle] {
			e.Status = EdgeSkipped
		} else {
			e.Status = EdgeActive
		}
		targets = append(targets, e.Target)
	}
	return targets
}

// skipNode prunes a node without executing it: all outgoing edges are
// skipped and its targets re-examined, unless they remain reachable via
// another active path.
func (r *run) skipNode(node *RuntimeNode) []string {
	r.logger.Debug("skipping node", zap.String("node_id", node.ID))
	for _, e := range r.graph.InEdges(node.ID) {
		e.Status = EdgeWaiting
	}
	var targets []string
	for _, e := range r.graph.OutEdges(node.ID) {
		e.Status = EdgeSkipped
		targets = append(targets, e.Target)
	}
	return targets
}

func (r *run) observeNode(node *RuntimeNode, item *waveItem) {
	if r.dispatcher.metrics == nil {
		return
	}
	status := "ok"
	if item.err != nil {
		status = "error"
	}
	r.dispatcher.metrics.ObserveNode(string(node.Type), status, item.dur)
	if item.result != nil {
		for _, u := range item.result.Usages {
			r.dispatcher.metrics.AddTokens(u.Model, u.InputTokens, u.OutputTokens)
		}
	}
}

func allSourceHandles(g *RuntimeGraph, node *RuntimeNode) []string {
	var handles []string
	seen := make(map[string]bool)
	for _, e := range g.OutEdges(node.ID) {
		if !seen[e.SourceHandle] {
			seen[e.SourceHandle] = true
			handles = append(handles, e.SourceHandle)
		}
	}
	return handles
}

// checkNodeRunStatus decides whether a candidate node runs, skips, or keeps
// waiting. Incoming edges split into common edges (paths from the entry)
// and recursive groups (loop-back paths, grouped by the nearest upstream
// branch handle). A node runs when any group has at least one active edge
// and none waiting; it skips when any non-empty group is fully skipped.
func checkNodeRunStatus(g *RuntimeGraph, node *RuntimeNode) nodeRunStatus {
	common, groups := splitNodeEdges(g, node)

	if len(common) == 0 && len(groups) == 0 {
		return statusRun // entry node
	}

	someActive := func(edges []*RuntimeEdge) bool {
		for _, e := range edges {
			if e.Status == EdgeActive {
				return true
			}
		}
		return false
	}
	noneWaiting := func(edges []*RuntimeEdge) bool {
		for _, e := range edges {
			if e.Status == EdgeWaiting {
				return false
			}
		}
		return true
	}
	allSkipped := func(edges []*RuntimeEdge) bool {
		for _, e := range edges {
			if e.Status != EdgeSkipped {
				return false
			}
		}
		return true
	}

	if len(common) > 0 && someActive(common) && noneWaiting(common) {
		return statusRun
	}
	for _, group := range groups {
		if someActive(group) && noneWaiting(group) {
			return statusRun
		}
	}

	if len(common) > 0 && allSkipped(common) {
		return statusSkip
	}
	for _, group := range groups {
		if len(group) > 0 && allSkipped(group) {
			return statusSkip
		}
	}
	return statusWait
}

// splitNodeEdges classifies a node's incoming edges into common edges and
// recursive edge groups keyed by the nearest upstream branch handle.
// Loop-back edges with no branch node anywhere on the cycle can never
// terminate and are dropped entirely.
func splitNodeEdges(g *RuntimeGraph, node *RuntimeNode) (common []*RuntimeEdge, groups [][]*RuntimeEdge) {
	groupIndex := make(map[string]int)
	for _, edge := range g.InEdges(node.ID) {
		handle, isRecursive := edgeLastBranchHandle(g, node, edge)
		switch {
		case isRecursive && handle == "":
			// Unbranched dead loop; ignore the edge.
		case isRecursive:
			idx, ok := groupIndex[handle]
			if !ok {
				idx = len(groups)
				groupIndex[handle] = idx
				groups = append(groups, nil)
			}
			groups[idx] = append(groups[idx], edge)
		default:
			common = append(common, edge)
		}
	}
	return common, groups
}

// edgeLastBranchHandle walks backward from an incoming edge looking for a
// cycle through the node itself. It returns the handle of the nearest
// branch node on that cycle and true; an empty handle with true marks a
// cycle with no branch at all. False means the edge is a plain path from
// the entry.
func edgeLastBranchHandle(g *RuntimeGraph, node *RuntimeNode, start *RuntimeEdge) (string, bool) {
	type frame struct {
		edge       *RuntimeEdge
		visited    map[string]bool
		lastBranch string
		hasBranch  bool
	}

	stack := []frame{{edge: start, visited: map[string]bool{node.ID: true}}}
	const maxDepth = 3000

	for iterations := 0; len(stack) > 0 && iterations < maxDepth; iterations++ {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.edge.Source == node.ID {
			src, ok := g.Node(f.edge.Source)
			if ok && src.IsBranchNode() {
				return f.edge.SourceHandle, true
			}
			if f.hasBranch {
				return f.lastBranch, true
			}
			return "", true
		}

		if f.visited[f.edge.Source] {
			continue
		}
		visited := make(map[string]bool, len(f.visited)+1)
		for k := range f.visited {
			visited[k] = true
		}
		visited[f.edge.Source] = true

		for _, prev := range g.InEdges(f.edge.Source) {
			through, ok := g.Node(prev.Target)
			if !ok {
				continue
			}
			lastBranch, hasBranch := f.lastBranch, f.hasBranch
			if through.IsBranchNode() {
				lastBranch, hasBranch = f.edge.SourceHandle, true
			}
			stack = append(stack, frame{edge: prev, visited: visited, lastBranch: lastBranch, hasBranch: hasBranch})
		}
	}
	return "", false
}
