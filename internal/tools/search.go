package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/m0rfeo/ragbox/internal/search"
)

// DocumentSearcher is the slice of the search service this tool needs.
// Abstracting it lets tests inject a fake without a real store or embedder.
type DocumentSearcher interface {
	SearchSimilar(ctx context.Context, query string, limit int, filters map[string]string, rerank bool) ([]search.Result, error)
}

// SearchTool exposes similarity search over the stored documents to the
// agent. Results come back reranked so near-tied candidates favour lexical
// overlap with the query.
type SearchTool struct {
	searcher DocumentSearcher
}

// searchInput is the JSON-serialisable input schema for SearchTool.
type searchInput struct {
	// Query is the natural-language search text.
	Query string `json:"query"`

	// Limit caps the number of results (default 5).
	Limit int `json:"limit,omitempty"`
}

// searchHit is one result as serialised back to the model.
type searchHit struct {
	Text     string  `json:"text"`
	Document string  `json:"document"`
	Score    float64 `json:"score"`
}

// NewSearchTool constructs a SearchTool over the given searcher.
func NewSearchTool(searcher DocumentSearcher) *SearchTool {
	return &SearchTool{searcher: searcher}
}

// Name returns the tool name registered with the agent.
func (t *SearchTool) Name() string { return "search_documents" }

// Description returns the LLM-facing description of this tool.
func (t *SearchTool) Description() string {
	return "Searches the stored documents for passages semantically similar to the query. " +
		"Use this to ground answers in the user's uploaded documents."
}

// Info returns the Eino tool metadata including the JSON input schema.
func (t *SearchTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: t.Name(),
		Desc: t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "Natural-language text to search the documents for.",
				Required: true,
			},
			"limit": {
				Type: schema.Integer,
				Desc: "Maximum number of passages to return (default 5).",
			},
		}),
	}, nil
}

// InvokableRun executes a similarity search and returns the hits as a JSON
// array. Store failures come back as a ToolError payload, not a Go error, so
// the conversation continues.
func (t *SearchTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	var input searchInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return (&ToolError{Kind: "invalid_arguments", Message: err.Error()}).JSON(), nil
	}
	if input.Query == "" {
		return (&ToolError{Kind: "invalid_arguments", Message: "query is required"}).JSON(), nil
	}
	if input.Limit <= 0 {
		input.Limit = 5
	}

	results, err := t.searcher.SearchSimilar(ctx, input.Query, input.Limit, nil, true)
	if err != nil {
		return (&ToolError{Kind: "search_failed", Message: err.Error()}).JSON(), nil
	}

	hits := make([]searchHit, len(results))
	for i, r := range results {
		hits[i] = searchHit{Text: r.Text, Document: r.Document, Score: r.Score}
	}
	data, err := json.Marshal(hits)
	if err != nil {
		return "", fmt.Errorf("search_documents: marshal results: %w", err)
	}
	return string(data), nil
}
