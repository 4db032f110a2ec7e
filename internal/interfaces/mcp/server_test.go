package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrysn/kmti-icad-hub/internal/application/retrieval"
	"github.com/imrysn/kmti-icad-hub/internal/domain/entity"
)

type stubSearcher struct {
	resp    *retrieval.SearchResponse
	stats   *retrieval.CollectionStats
	err     error
	queries []string
}

func (s *stubSearcher) Search(_ context.Context, query string) (*retrieval.SearchResponse, error) {
	s.queries = append(s.queries, query)
	return s.resp, s.err
}

func (s *stubSearcher) Stats(_ context.Context) (*retrieval.CollectionStats, error) {
	return s.stats, s.err
}

func callTool(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func TestSearchTool_ReturnsResultsWithMedia(t *testing.T) {
	score := 0.87
	searcher := &stubSearcher{resp: &retrieval.SearchResponse{
		Query: "hex bolt",
		Results: []retrieval.EnrichedResult{{
			RetrievedHit: retrieval.RetrievedHit{ID: "bolts_row_0", Content: "hex bolt M8", Source: "bolts.xlsx", Score: &score},
			Media: []retrieval.MediaAsset{{
				MediaType: entity.MediaTypeVideo,
				MediaURL:  "https://cdn.example.com/bolt.mp4",
			}},
		}},
	}}

	result, err := searchTool(Deps{Searcher: searcher})(context.Background(), callTool(ToolSearch, map[string]any{"query": "hex bolt"}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))
	assert.Equal(t, []string{"hex bolt"}, searcher.queries)

	var body struct {
		Results []struct {
			Source string `json:"source"`
			Media  []struct {
				MediaURL string `json:"media_url"`
			} `json:"media"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &body))
	require.Len(t, body.Results, 1)
	assert.Equal(t, "bolts.xlsx", body.Results[0].Source)
	require.Len(t, body.Results[0].Media, 1)
	assert.Equal(t, "https://cdn.example.com/bolt.mp4", body.Results[0].Media[0].MediaURL)
}

func TestSearchTool_MissingQuery(t *testing.T) {
	searcher := &stubSearcher{}
	result, err := searchTool(Deps{Searcher: searcher})(context.Background(), callTool(ToolSearch, map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Empty(t, searcher.queries)
}

func TestSearchTool_HidesUnderlyingError(t *testing.T) {
	searcher := &stubSearcher{err: errors.New("dial tcp 10.0.0.7:19530: connection refused")}
	result, err := searchTool(Deps{Searcher: searcher})(context.Background(), callTool(ToolSearch, map[string]any{"query": "bolt"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.NotContains(t, resultText(t, result), "10.0.0.7")
}

func TestStatsTool(t *testing.T) {
	searcher := &stubSearcher{stats: &retrieval.CollectionStats{
		DocumentCount:  42,
		CollectionName: "icad_knowledge_base",
		Backend:        "sqlite",
	}}
	result, err := statsTool(Deps{Searcher: searcher})(context.Background(), callTool(ToolStats, nil))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), `"total_documents":42`)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "service unavailable: vector store is not configured", describe(retrieval.ErrVectorDisabled))
	assert.Equal(t, "unknown error", describe(errors.New("boom")))
}
