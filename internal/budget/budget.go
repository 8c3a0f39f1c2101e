// Package budget estimates token usage and trims conversation history so a
// turn's prompt fits the model's context window. The engine talks to several
// LLM backends with different tokenizers, so estimation uses a conservative
// character heuristic: 1 token ≈ 4 characters, deliberately under-estimating
// to leave headroom for model-specific overhead.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English and code.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input context budget in tokens.
	// Conservative enough to fit 8k-context models while leaving room for
	// the tool catalog and the output.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values. Tool-call requests carry their serialised arguments,
// and tool results carry their content, so both sides of a dispatch count.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
		for _, tc := range m.ToolCalls {
			total += Estimate(tc.Function.Name)
			total += Estimate(tc.Function.Arguments)
		}
	}
	return total
}

// TrimHistory removes the oldest messages from history until the total
// estimated token count of fixed + history fits within maxTokens. fixed
// contains messages that must never be trimmed (system prompt, current user
// message); history contains prior turns that may be dropped oldest-first.
// Tool-result messages orphaned by a drop are removed along with it.
//
// If even an empty history exceeds the budget the empty slice is returned;
// fixed messages are never dropped here.
func TrimHistory(fixed, history []*schema.Message, maxTokens int) []*schema.Message {
	if len(history) == 0 {
		return history
	}

	fixedTokens := EstimateMessages(fixed)

	// History rarely exceeds the session cap, so a linear scan dropping the
	// oldest message at a time is clear and fast enough.
	for len(history) > 0 {
		if fixedTokens+EstimateMessages(history) <= maxTokens {
			break
		}
		history = history[1:]
		// Dropping an assistant tool-call message takes its paired results
		// with it: strict providers reject a leading tool message.
		for len(history) > 0 && history[0].Role == schema.Tool {
			history = history[1:]
		}
	}
	return history
}
