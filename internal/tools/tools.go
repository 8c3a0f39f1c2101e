// Package tools defines the tool contract the agent loop dispatches on and
// the built-in retrieval tools. Each tool satisfies Eino's tool.InvokableTool
// interface plus Name/Description accessors so the loop can route calls by
// name without type assertions.
package tools

import (
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
)

// Tool is the contract every dispatchable tool must satisfy. It extends the
// Eino invokable tool with accessors the registry and the loop use for
// routing and logging.
type Tool interface {
	tool.InvokableTool

	// Name returns the unique tool name registered with the agent.
	Name() string

	// Description returns a human-readable description of what the tool does.
	// This text is sent to the LLM as part of the tool schema.
	Description() string
}

// ToolError is a structured tool failure. It is serialised as JSON and fed
// back to the model as the tool result, so the conversation continues rather
// than aborting the turn.
type ToolError struct {
	// Kind is a stable machine-readable category such as "unknown_tool",
	// "invalid_arguments", "search_failed", or "tool_panic".
	Kind string `json:"error"`

	// Message is the human-readable detail.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	return fmt.Sprintf("tools: %s: %s", e.Kind, e.Message)
}

// JSON renders the error as the payload handed back to the model.
func (e *ToolError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		// The struct is two strings; marshalling cannot realistically fail.
		return fmt.Sprintf(`{"error":%q,"message":"unserialisable"}`, e.Kind)
	}
	return string(data)
}
