package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
)

// toolCall is one normalised tool dispatch request, whether it arrived as a
// native tool call on the response or as a JSON payload in the content.
type toolCall struct {
	// id is the provider call ID, or a synthetic one for content payloads.
	id string

	// name is the requested tool name.
	name string

	// arguments is the JSON-encoded argument object.
	arguments string
}

// contentPayload is the legacy content-embedded tool call format:
// {"tool": "<name>", "arguments": {...}}.
type contentPayload struct {
	Tool      *string         `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
}

// detectToolCalls inspects a model response for tool dispatch requests.
//
// Native ToolCalls on the message win, and every one of them is returned:
// OpenAI-compatible backends may request several tools in a single response,
// and each call ID needs a paired result. Otherwise, content that is a JSON
// object mentioning a "tool" key is treated as the content-embedded format;
// such an object missing either required field is a malformed payload and
// returns an error so the loop can feed the problem back to the model.
// Content that is not a tool payload at all returns (nil, nil): a plain
// answer.
func detectToolCalls(msg *schema.Message) ([]*toolCall, error) {
	if len(msg.ToolCalls) > 0 {
		calls := make([]*toolCall, len(msg.ToolCalls))
		for i, tc := range msg.ToolCalls {
			calls[i] = &toolCall{
				id:        tc.ID,
				name:      tc.Function.Name,
				arguments: tc.Function.Arguments,
			}
		}
		return calls, nil
	}

	content := strings.TrimSpace(msg.Content)
	if !strings.HasPrefix(content, "{") {
		return nil, nil
	}

	var payload contentPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, nil
	}
	if payload.Tool == nil && payload.Arguments == nil {
		// A JSON object, but not the tool-call shape. Plain answer.
		return nil, nil
	}
	if payload.Tool == nil || *payload.Tool == "" {
		return nil, fmt.Errorf("tool payload missing %q field", "tool")
	}
	if payload.Arguments == nil {
		return nil, fmt.Errorf("tool payload missing %q field", "arguments")
	}

	return []*toolCall{{
		id:        syntheticCallID,
		name:      *payload.Tool,
		arguments: string(payload.Arguments),
	}}, nil
}

// syntheticCallID marks tool results whose request arrived embedded in
// content rather than as a native tool call.
const syntheticCallID = "content-tool-call"
