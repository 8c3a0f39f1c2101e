package agent

import (
	"testing"

	"github.com/cloudwego/eino/schema"
)

func Test_DetectToolCalls_NativeWins(t *testing.T) {
	t.Parallel()
	msg := schema.AssistantMessage(`{"tool": "ignored", "arguments": {}}`, []schema.ToolCall{{
		ID:       "abc",
		Function: schema.FunctionCall{Name: "search_documents", Arguments: `{"query":"x"}`},
	}})

	calls, err := detectToolCalls(msg)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(calls) != 1 || calls[0].name != "search_documents" || calls[0].id != "abc" {
		t.Errorf("native tool call must take precedence, got %+v", calls)
	}
}

func Test_DetectToolCalls_AllNativeCallsReturned(t *testing.T) {
	t.Parallel()
	msg := schema.AssistantMessage("", []schema.ToolCall{
		{ID: "call-a", Function: schema.FunctionCall{Name: "search_documents", Arguments: `{"query":"a"}`}},
		{ID: "call-b", Function: schema.FunctionCall{Name: "recall_conversation", Arguments: `{"query":"b"}`}},
	})

	calls, err := detectToolCalls(msg)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("every native call must be returned, got %d", len(calls))
	}
	if calls[0].id != "call-a" || calls[1].id != "call-b" {
		t.Errorf("calls must keep response order, got %q then %q", calls[0].id, calls[1].id)
	}
	if calls[1].name != "recall_conversation" {
		t.Errorf("second call lost its name, got %q", calls[1].name)
	}
}

func Test_DetectToolCalls_ContentPayload(t *testing.T) {
	t.Parallel()
	msg := schema.AssistantMessage(`  {"tool": "echo", "arguments": {"q": "hi"}}  `, nil)

	calls, err := detectToolCalls(msg)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(calls) != 1 || calls[0].name != "echo" {
		t.Fatalf("want content payload detected, got %+v", calls)
	}
	if calls[0].arguments != `{"q": "hi"}` {
		t.Errorf("arguments must be forwarded raw, got %q", calls[0].arguments)
	}
}

func Test_DetectToolCalls_PlainTextIsAnswer(t *testing.T) {
	t.Parallel()
	for _, content := range []string{
		"just a normal answer",
		"{not valid json",
		`{"answer": "a JSON object that is not a tool call"}`,
		"",
	} {
		calls, err := detectToolCalls(schema.AssistantMessage(content, nil))
		if err != nil {
			t.Errorf("content %q: want plain answer, got error %v", content, err)
		}
		if len(calls) != 0 {
			t.Errorf("content %q: want no tool call, got %+v", content, calls)
		}
	}
}

func Test_DetectToolCalls_MalformedPayload(t *testing.T) {
	t.Parallel()
	for _, content := range []string{
		`{"tool": "echo"}`,              // arguments missing
		`{"arguments": {"q": "x"}}`,     // tool missing
		`{"tool": "", "arguments": {}}`, // empty tool name
	} {
		calls, err := detectToolCalls(schema.AssistantMessage(content, nil))
		if err == nil {
			t.Errorf("content %q: want malformed-payload error, got calls %+v", content, calls)
		}
	}
}
