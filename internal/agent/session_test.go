package agent

import (
	"testing"

	"github.com/cloudwego/eino/schema"
)

func Test_SessionAppend_EvictsOldestPastWindow(t *testing.T) {
	t.Parallel()
	s := &Session{ID: "s1", window: 2}

	s.append(schema.UserMessage("one"))
	s.append(schema.UserMessage("two"))
	s.append(schema.UserMessage("three"))

	got := s.snapshot()
	if len(got) != 2 {
		t.Fatalf("want window of 2, got %d", len(got))
	}
	if got[0].Content != "two" || got[1].Content != "three" {
		t.Errorf("want oldest evicted, got %q then %q", got[0].Content, got[1].Content)
	}
}

func Test_SessionAppend_EvictionNeverOrphansToolResults(t *testing.T) {
	t.Parallel()
	s := &Session{ID: "s1", window: 2}

	s.append(schema.AssistantMessage("", []schema.ToolCall{{
		ID:       "c1",
		Function: schema.FunctionCall{Name: "echo", Arguments: `{}`},
	}}))
	s.append(schema.ToolMessage("result", "c1"))

	// The window is full; appending forces eviction of the tool-call request,
	// which must take its paired result along rather than leave it at the head.
	s.append(schema.AssistantMessage("done", nil))

	got := s.snapshot()
	if len(got) == 0 || got[0].Role == schema.Tool {
		t.Fatalf("window must not open on a tool result, got %+v", got)
	}
	if len(got) != 1 || got[0].Content != "done" {
		t.Errorf("want only the final answer retained, got %+v", got)
	}
}
