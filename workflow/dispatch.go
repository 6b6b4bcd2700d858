package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/flowgate/internal/metrics"
	"github.com/BaSui01/flowgate/types"
)

// Default run limits applied when the request leaves them unset.
const (
	DefaultMaxRunTimes = 500
	DefaultNodeTimeout = 10 * time.Minute
)

// ChatConfig carries the app-level execution knobs of a run.
type ChatConfig struct {
	// NodeTimeout bounds each node executor call. Exceeding it is a
	// node-level error, not a whole-run abort.
	NodeTimeout time.Duration `json:"nodeTimeout,omitempty"`
}

// DispatchRequest is one chat-turn dispatch call.
type DispatchRequest struct {
	ChatID   string `json:"chatId"`
	AppID    string `json:"appId"`
	TeamID   string `json:"teamId"`
	TmbID    string `json:"tmbId"`
	Timezone string `json:"timezone,omitempty"`

	Variables map[string]any   `json:"variables,omitempty"`
	Query     string           `json:"query"`
	Histories []types.ChatItem `json:"histories,omitempty"`
	// Memories are node-scoped values persisted from the previous turn.
	Memories map[string]any `json:"memories,omitempty"`

	ChatConfig  ChatConfig `json:"chatConfig"`
	Stream      bool       `json:"stream"`
	MaxRunTimes int        `json:"maxRunTimes"`

	// ExternalProvider holds caller-scoped provider settings (API keys,
	// workflow variables from an external account).
	ExternalProvider map[string]string `json:"externalProvider,omitempty"`

	// ResumeState resumes a previously suspended run.
	ResumeState *InteractiveState `json:"resumeState,omitempty"`

	// StreamHandler receives ordered output events. May be nil.
	StreamHandler StreamHandler `json:"-"`
}

// DispatchContext is the per-run immutable configuration passed by
// reference to every node executor.
type DispatchContext struct {
	RunID    string
	ChatID   string
	AppID    string
	TeamID   string
	TmbID    string
	Timezone string

	Stream      bool
	MaxRunTimes int

	Query            string
	Histories        []types.ChatItem
	ExternalProvider map[string]string
}

// NodeResponse is the per-node execution record persisted alongside the
// chat turn.
type NodeResponse struct {
	NodeID      string            `json:"nodeId"`
	NodeName    string            `json:"nodeName"`
	NodeType    NodeType          `json:"nodeType"`
	Outputs     map[string]any    `json:"outputs,omitempty"`
	Usages      []types.NodeUsage `json:"usages,omitempty"`
	ErrorMsg    string            `json:"errorMsg,omitempty"`
	RunningTime float64           `json:"runningTime"`
}

// DispatchResult is the outcome of one dispatch call. On fatal errors and
// suspensions the accumulated partial responses and usages are still
// returned for billing and audit.
type DispatchResult struct {
	FlowResponses      []NodeResponse           `json:"flowResponses"`
	FlowUsages         []types.NodeUsage        `json:"flowUsages"`
	AssistantResponses []types.AssistantContent `json:"assistantResponses"`
	DurationSeconds    float64                  `json:"durationSeconds"`
	SystemMemories     map[string]any           `json:"system_memories,omitempty"`
	Interactive        *InteractiveState        `json:"interactiveState,omitempty"`
}

// Dispatcher executes compiled workflow graphs. It is safe for concurrent
// use; all per-run state lives in the run, never on the dispatcher.
type Dispatcher struct {
	registry ExecutorRegistry
	logger   *zap.Logger
	metrics  *metrics.Collector
	tracer   trace.Tracer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMetrics attaches a prometheus collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(d *Dispatcher) { d.metrics = c }
}

// WithTracer overrides the default otel tracer.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// NewDispatcher creates a dispatcher over an executor registry.
func NewDispatcher(registry ExecutorRegistry, logger *zap.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		registry: registry,
		logger:   logger.With(zap.String("component", "dispatcher")),
		tracer:   otel.Tracer("flowgate/workflow"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch executes one chat turn over the compiled graph. The graph itself
// is never mutated; a per-run instance is created. On a fatal error the
// partial result is returned together with the error; node-level failures
// are recorded on their NodeResponse and do not fail the call.
func (d *Dispatcher) Dispatch(ctx context.Context, graph *RuntimeGraph, req *DispatchRequest) (*DispatchResult, error) {
	if graph == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "graph cannot be nil")
	}
	if req == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "request cannot be nil")
	}

	start := time.Now()
	dctx := &DispatchContext{
		RunID:            uuid.NewString(),
		ChatID:           req.ChatID,
		AppID:            req.AppID,
		TeamID:           req.TeamID,
		TmbID:            req.TmbID,
		Timezone:         req.Timezone,
		Stream:           req.Stream,
		MaxRunTimes:      req.MaxRunTimes,
		Query:            req.Query,
		Histories:        req.Histories,
		ExternalProvider: req.ExternalProvider,
	}
	if dctx.MaxRunTimes <= 0 {
		dctx.MaxRunTimes = DefaultMaxRunTimes
	}

	ctx, span := d.tracer.Start(ctx, "workflow.dispatch", trace.WithAttributes(
		attribute.String("run_id", dctx.RunID),
		attribute.String("app_id", dctx.AppID),
		attribute.String("chat_id", dctx.ChatID),
	))
	defer span.End()

	logger := d.logger.With(zap.String("run_id", dctx.RunID), zap.String("chat_id", dctx.ChatID))
	logger.Info("starting dispatch",
		zap.Int("nodes", len(graph.Nodes())),
		zap.Bool("stream", req.Stream),
		zap.Bool("resume", req.ResumeState != nil),
	)

	r := &run{
		dispatcher: d,
		logger:     logger,
		graph:      graph.Instantiate(),
		req:        req,
		dctx:       dctx,
		scope:      seedScope(req, start),
		usage:      NewUsageCollector(),
		streamer:   NewResponseStreamer(req.StreamHandler, req.Stream),
		remaining:  dctx.MaxRunTimes,
	}

	entries := r.graph.EntryIDs()
	if req.ResumeState != nil {
		if err := applyInteractive(r.graph, r.scope, req.ResumeState, req.Variables); err != nil {
			return nil, err
		}
		entries = req.ResumeState.EntryNodeIDs
	}

	runErr := r.execute(ctx, entries)

	result := &DispatchResult{
		FlowResponses:      r.responses,
		FlowUsages:         r.usage.Finalize(),
		AssistantResponses: types.MergeAssistantContents(r.assistant),
		DurationSeconds:    time.Since(start).Seconds(),
		Interactive:        r.suspended,
	}
	if r.suspended == nil && runErr == nil {
		result.SystemMemories = extractMemories(r.graph, r.scope)
	}

	switch {
	case runErr != nil:
		span.RecordError(runErr)
		r.streamer.Close(StreamEvent{Text: runErr.Error()})
		d.observeDispatch("failed", result.DurationSeconds)
		logger.Error("dispatch failed", zap.Error(runErr), zap.Int("responses", len(r.responses)))
		return result, runErr
	case r.suspended != nil:
		r.streamer.Emit(StreamEvent{Type: EventInteractive, NodeID: r.suspended.PausedNodeID, Payload: r.suspended})
		r.streamer.Close(StreamEvent{})
		d.observeDispatch("suspended", result.DurationSeconds)
		logger.Info("dispatch suspended", zap.String("paused_node", r.suspended.PausedNodeID))
		return result, nil
	default:
		r.streamer.Close(StreamEvent{})
		d.observeDispatch("completed", result.DurationSeconds)
		logger.Info("dispatch completed",
			zap.Int("responses", len(r.responses)),
			zap.Float64("duration_seconds", result.DurationSeconds),
		)
		return result, nil
	}
}

func (d *Dispatcher) observeDispatch(status string, seconds float64) {
	if d.metrics != nil {
		d.metrics.ObserveDispatch(status, seconds)
	}
}

// nodeTimeout returns the effective per-node timeout of a request.
func (req *DispatchRequest) nodeTimeout() time.Duration {
	if req.ChatConfig.NodeTimeout > 0 {
		return req.ChatConfig.NodeTimeout
	}
	return DefaultNodeTimeout
}

// canceledError wraps a context cancellation as the run's terminal error.
func canceledError(err error) *types.Error {
	return types.NewError(types.ErrServiceUnavailable, fmt.Sprintf("dispatch aborted: %v", err)).WithCause(err)
}
