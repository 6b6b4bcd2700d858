package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/flowgate/types"
	"github.com/BaSui01/flowgate/workflow"
)

type stubSearcher struct {
	lastRequest *SearchRequest
	result      *SearchResult
	err         error
}

func (s *stubSearcher) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	s.lastRequest = req
	return s.result, s.err
}

func TestDatasetSearchReturnsQuotes(t *testing.T) {
	searcher := &stubSearcher{result: &SearchResult{
		Quotes: []Quote{
			{ID: "q1", Q: "what is go", A: "a language", SourceName: "faq", Score: 0.91},
		},
		EmbeddingModel: "text-embedding-3-small",
		InputTokens:    12,
	}}
	r := NewRegistry(Services{Dataset: searcher, PointsPerKiloTokens: 1})

	res, err := r.runDatasetSearch(context.Background(), testPayload(
		testNode("search", workflow.NodeTypeDatasetSearch),
		map[string]any{
			InputDatasets:    []any{"ds-1", map[string]any{"datasetId": "ds-2"}},
			InputSimilarity:  0.5,
			InputSearchLimit: 3,
		},
	))
	require.NoError(t, err)

	assert.Equal(t, []string{"ds-1", "ds-2"}, searcher.lastRequest.DatasetIDs)
	assert.Equal(t, "test query", searcher.lastRequest.Query)
	assert.Equal(t, 3, searcher.lastRequest.Limit)

	quotes, ok := res.Outputs[OutputSearchQuotes].([]any)
	require.True(t, ok)
	require.Len(t, quotes, 1)
	assert.Equal(t, "q1", quotes[0].(map[string]any)["id"])
	assert.Equal(t, false, res.Outputs[OutputSearchEmpty])

	require.Len(t, res.Usages, 1)
	assert.Equal(t, "text-embedding-3-small", res.Usages[0].Model)
	assert.Equal(t, 12, res.Usages[0].InputTokens)
}

func TestDatasetSearchEmptyResult(t *testing.T) {
	searcher := &stubSearcher{result: &SearchResult{}}
	r := NewRegistry(Services{Dataset: searcher})

	res, err := r.runDatasetSearch(context.Background(), testPayload(
		testNode("search", workflow.NodeTypeDatasetSearch),
		map[string]any{InputDatasets: []any{"ds-1"}},
	))
	require.NoError(t, err)
	assert.Equal(t, true, res.Outputs[OutputSearchEmpty])
	assert.Empty(t, res.Usages)
}

func TestDatasetSearchWithoutSearcher(t *testing.T) {
	r := NewRegistry(Services{})
	_, err := r.runDatasetSearch(context.Background(), testPayload(
		testNode("search", workflow.NodeTypeDatasetSearch), nil))
	require.Error(t, err)
	assert.Equal(t, types.ErrServiceUnavailable, types.GetErrorCode(err))
}

func TestDatasetConcatDeduplicatesByID(t *testing.T) {
	r := NewRegistry(Services{})
	res, err := r.runDatasetConcat(context.Background(), testPayload(
		testNode("concat", workflow.NodeTypeDatasetConcat),
		map[string]any{InputConcatQuotes: []any{
			map[string]any{"id": "a", "q": "first"},
			map[string]any{"id": "b", "q": "second"},
			map[string]any{"id": "a", "q": "duplicate"},
		}},
	))
	require.NoError(t, err)

	merged, ok := res.Outputs[OutputSearchQuotes].([]any)
	require.True(t, ok)
	require.Len(t, merged, 2)
	assert.Equal(t, "first", merged[0].(map[string]any)["q"])
	assert.Equal(t, "second", merged[1].(map[string]any)["q"])
}
