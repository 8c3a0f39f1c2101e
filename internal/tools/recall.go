package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/m0rfeo/ragbox/internal/history"
)

// defaultRecallLimit caps how many past turns one recall returns.
const defaultRecallLimit = 10

// RecallTool lets the agent look up earlier conversation turns from the
// persistent history store, optionally filtered by keywords.
type RecallTool struct {
	store history.TurnStore
}

// recallInput is the JSON-serialisable input schema for RecallTool.
type recallInput struct {
	// Query holds optional keywords; empty recalls the newest turns.
	Query string `json:"query,omitempty"`
}

// recalledTurn is one history entry as serialised back to the model.
type recalledTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	When    string `json:"when"`
}

// NewRecallTool constructs a RecallTool over the given history store.
func NewRecallTool(store history.TurnStore) *RecallTool {
	return &RecallTool{store: store}
}

// Name returns the tool name registered with the agent.
func (t *RecallTool) Name() string { return "recall_conversation" }

// Description returns the LLM-facing description of this tool.
func (t *RecallTool) Description() string {
	return "Recalls earlier conversation turns from persistent history. " +
		"Provide keywords to search past discussions, or omit them for the most recent turns."
}

// Info returns the Eino tool metadata including the JSON input schema.
func (t *RecallTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: t.Name(),
		Desc: t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type: schema.String,
				Desc: "Keywords to search past turns for. Empty returns the most recent turns.",
			},
		}),
	}, nil
}

// InvokableRun searches the history store and returns matching turns as a
// JSON array, newest first.
func (t *RecallTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	var input recallInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return (&ToolError{Kind: "invalid_arguments", Message: err.Error()}).JSON(), nil
	}

	turns, err := t.store.SearchContent(ctx, input.Query, defaultRecallLimit)
	if err != nil {
		return (&ToolError{Kind: "recall_failed", Message: err.Error()}).JSON(), nil
	}

	out := make([]recalledTurn, len(turns))
	for i, turn := range turns {
		out[i] = recalledTurn{
			Role:    string(turn.Role),
			Content: turn.Content,
			When:    turn.CreatedAt.UTC().Format("2006-01-02 15:04"),
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("recall_conversation: marshal results: %w", err)
	}
	return string(data), nil
}
