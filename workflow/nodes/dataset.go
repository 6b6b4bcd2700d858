package nodes

import (
	"context"

	"github.com/BaSui01/flowgate/types"
	"github.com/BaSui01/flowgate/workflow"
)

// Input/output keys of the dataset nodes.
const (
	InputDatasets      = "datasets"
	InputSimilarity    = "similarity"
	InputSearchLimit   = "limit"
	InputUsingReRank   = "usingReRank"
	InputConcatQuotes  = "quotes"
	OutputSearchQuotes = "quoteQA"
	OutputSearchEmpty  = "isEmpty"
)

// Quote is one retrieved passage with its ranking score.
type Quote struct {
	ID         string  `json:"id"`
	Q          string  `json:"q"`
	A          string  `json:"a"`
	SourceName string  `json:"sourceName"`
	Score      float64 `json:"score"`
}

// SearchRequest describes one semantic retrieval call.
type SearchRequest struct {
	DatasetIDs []string
	Query      string
	Similarity float64
	Limit      int
	UsingReRank bool
	TeamID     string
}

// SearchResult carries the ranked quotes plus the tokens the embedding
// (and optional rerank) calls consumed.
type SearchResult struct {
	Quotes         []Quote
	EmbeddingModel string
	InputTokens    int
	OutputTokens   int
}

// DatasetSearcher retrieves passages for a query. Implementations own the
// embedding provider and vector store.
type DatasetSearcher interface {
	Search(ctx context.Context, req *SearchRequest) (*SearchResult, error)
}

// runDatasetSearch queries the configured retriever and exposes the ranked
// quotes. Retrieval token spend lands on the usage ledger like LLM calls.
func (r *Registry) runDatasetSearch(ctx context.Context, p *workflow.NodePayload) (*workflow.NodeResult, error) {
	if r.svc.Dataset == nil {
		return nil, types.NewError(types.ErrServiceUnavailable, "dataset searcher not configured").WithNode(p.Node.ID)
	}

	query := stringParam(p.Params, OutputQuery)
	if query == "" {
		query = p.Dispatch.Query
	}

	var datasetIDs []string
	for _, v := range sliceParam(p.Params, InputDatasets) {
		switch d := v.(type) {
		case string:
			datasetIDs = append(datasetIDs, d)
		case map[string]any:
			if id := stringParam(d, "datasetId"); id != "" {
				datasetIDs = append(datasetIDs, id)
			}
		}
	}

	result, err := r.svc.Dataset.Search(ctx, &SearchRequest{
		DatasetIDs:  datasetIDs,
		Query:       query,
		Similarity:  floatParam(p.Params, InputSimilarity, 0),
		Limit:       intParam(p.Params, InputSearchLimit, 5),
		UsingReRank: boolParam(p.Params, InputUsingReRank, false),
		TeamID:      p.Dispatch.TeamID,
	})
	if err != nil {
		return nil, types.AsError(err, types.ErrUpstreamError).WithNode(p.Node.ID)
	}

	res := &workflow.NodeResult{
		Outputs: map[string]any{
			OutputSearchQuotes: quotesToValues(result.Quotes),
			OutputSearchEmpty:  len(result.Quotes) == 0,
		},
	}
	if result.InputTokens > 0 || result.OutputTokens > 0 {
		res.Usages = []types.NodeUsage{{
			Model:        result.EmbeddingModel,
			InputTokens:  result.InputTokens,
			OutputTokens: result.OutputTokens,
			TotalPoints:  float64(result.InputTokens+result.OutputTokens) / 1000 * r.svc.PointsPerKiloTokens,
		}}
	}
	return res, nil
}

// runDatasetConcat merges quote lists from several search nodes, dropping
// duplicate passage ids while keeping first-seen order.
func (r *Registry) runDatasetConcat(ctx context.Context, p *workflow.NodePayload) (*workflow.NodeResult, error) {
	seen := make(map[string]bool)
	var merged []any
	for _, item := range sliceParam(p.Params, InputConcatQuotes) {
		q, _ := item.(map[string]any)
		if q == nil {
			continue
		}
		id := stringParam(q, "id")
		if id != "" && seen[id] {
			continue
		}
		if id != "" {
			seen[id] = true
		}
		merged = append(merged, q)
	}
	return &workflow.NodeResult{
		Outputs: map[string]any{OutputSearchQuotes: merged},
	}, nil
}

func quotesToValues(quotes []Quote) []any {
	out := make([]any, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, map[string]any{
			"id":         q.ID,
			"q":          q.Q,
			"a":          q.A,
			"sourceName": q.SourceName,
			"score":      q.Score,
		})
	}
	return out
}
