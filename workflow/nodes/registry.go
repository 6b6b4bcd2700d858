package nodes

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/flowgate/llm"
	"github.com/BaSui01/flowgate/llm/tokenizer"
	"github.com/BaSui01/flowgate/types"
	"github.com/BaSui01/flowgate/workflow"
)

// Executor runs one node type.
type Executor func(ctx context.Context, p *workflow.NodePayload) (*workflow.NodeResult, error)

// Services are the external collaborators node executors depend on.
// Unconfigured services make the owning node type fail at its turn, not
// the whole engine.
type Services struct {
	Chat    llm.ChatClient
	Dataset DatasetSearcher
	Code    CodeRunner

	// HTTPClient is used by the HTTP tool node. Defaults to a client with
	// a 30s timeout.
	HTTPClient *http.Client
	// ToolRate limits HTTP tool calls per host. Zero disables limiting.
	ToolRate  rate.Limit
	ToolBurst int

	// Tokenizer estimates token usage when the provider reports none.
	// Defaults to the character estimator.
	Tokenizer tokenizer.Tokenizer
	// PointsPerKiloTokens prices LLM usage for the billing ledger.
	PointsPerKiloTokens float64

	Logger *zap.Logger
}

// Registry maps node types to executors. The compiler validates node types
// against it so an unknown type is a compile error, never a runtime panic.
type Registry struct {
	executors map[workflow.NodeType]Executor
	svc       Services
	limiters  *hostLimiters
	logger    *zap.Logger
}

var _ workflow.ExecutorRegistry = (*Registry)(nil)

// NewRegistry creates a registry with all builtin executors registered.
func NewRegistry(svc Services) *Registry {
	if svc.Logger == nil {
		svc.Logger = zap.NewNop()
	}
	if svc.HTTPClient == nil {
		svc.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if svc.Tokenizer == nil {
		svc.Tokenizer = tokenizer.NewEstimator()
	}
	if svc.PointsPerKiloTokens <= 0 {
		svc.PointsPerKiloTokens = 1
	}

	r := &Registry{
		executors: make(map[workflow.NodeType]Executor),
		svc:       svc,
		limiters:  newHostLimiters(svc.ToolRate, svc.ToolBurst),
		logger:    svc.Logger.With(zap.String("component", "node_registry")),
	}

	r.Register(workflow.NodeTypeStart, r.runStart)
	r.Register(workflow.NodeTypeAnswer, r.runAnswer)
	r.Register(workflow.NodeTypeChat, r.runChat)
	r.Register(workflow.NodeTypeDatasetSearch, r.runDatasetSearch)
	r.Register(workflow.NodeTypeDatasetConcat, r.runDatasetConcat)
	r.Register(workflow.NodeTypeHTTPTool, r.runHTTPTool)
	r.Register(workflow.NodeTypeBranch, r.runBranch)
	r.Register(workflow.NodeTypeInteractive, r.runInteractive)
	r.Register(workflow.NodeTypeCode, r.runCode)
	r.Register(workflow.NodeTypeVariableUpdate, r.runVariableUpdate)
	return r
}

// Register adds or replaces an executor for a node type.
func (r *Registry) Register(t workflow.NodeType, ex Executor) {
	r.executors[t] = ex
}

// Has implements workflow.TypeChecker.
func (r *Registry) Has(t workflow.NodeType) bool {
	_, ok := r.executors[t]
	return ok
}

// Run implements workflow.ExecutorRegistry.
func (r *Registry) Run(ctx context.Context, p *workflow.NodePayload) (*workflow.NodeResult, error) {
	ex, ok := r.executors[p.Node.Type]
	if !ok {
		// Compile-time validation makes this unreachable for compiled graphs.
		return nil, types.NewError(types.ErrInternalInconsistency,
			fmt.Sprintf("no executor for node type %q", p.Node.Type)).WithNode(p.Node.ID)
	}
	return ex(ctx, p)
}
