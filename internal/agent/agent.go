// Package agent implements the bounded tool-dispatch loop at the heart of the
// engine. Each turn appends the user message to its session window, generates
// with the tool catalog attached, dispatches any requested tool, feeds the
// result back, and repeats until the model answers in plain text or the
// per-turn tool budget runs out.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/m0rfeo/ragbox/internal/budget"
	"github.com/m0rfeo/ragbox/internal/history"
	"github.com/m0rfeo/ragbox/internal/logging"
	"github.com/m0rfeo/ragbox/internal/tools"
)

// ErrGenerationUnavailable reports that the LLM backend failed to produce a
// response. The turn is abandoned but the session keeps the user message and
// any completed tool exchanges, so a retry can build on them.
var ErrGenerationUnavailable = errors.New("agent: generation unavailable")

// DefaultMaxToolCalls bounds tool dispatches within a single turn.
const DefaultMaxToolCalls = 5

// defaultSystemPrompt establishes the assistant persona when the operator
// does not configure one.
const defaultSystemPrompt = `You are a helpful research assistant with access to the user's document
collection and past conversations. Ground your answers in retrieved passages
whenever the question concerns the user's documents, and cite the document
names you drew from. If retrieval returns nothing useful, say so instead of
guessing.`

// Config holds the dependencies required to construct a Loop.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel model.ToolCallingChatModel

	// Registry holds the tools available for dispatch.
	Registry *tools.Registry

	// History is the optional persistent turn store. Completed turns are
	// written through; failures are logged, never fatal.
	History history.TurnStore

	// SystemPrompt overrides the default assistant persona.
	SystemPrompt string

	// MaxToolCalls bounds tool dispatches per turn. Defaults to 5.
	MaxToolCalls int

	// HistoryWindow is the FIFO cap on messages per session. Defaults to 50.
	HistoryWindow int

	// MaxContextTokens is the estimated prompt token budget; older history
	// is trimmed from the prompt (not the session) to fit. Defaults to
	// budget.DefaultMaxContextTokens.
	MaxContextTokens int
}

// Loop is the tool-dispatch state machine. Safe for concurrent use; turns on
// the same session serialise on the session mutex.
type Loop struct {
	toolModel  model.ToolCallingChatModel
	plainModel model.ToolCallingChatModel
	registry   *tools.Registry
	history    history.TurnStore
	sessions   *sessions

	systemPrompt     string
	maxToolCalls     int
	maxContextTokens int
}

// New constructs a Loop, binding the registry's tool catalog to the model.
func New(ctx context.Context, cfg *Config) (*Loop, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("agent: ChatModel must not be nil")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("agent: Registry must not be nil")
	}

	infos, err := cfg.Registry.Infos(ctx)
	if err != nil {
		return nil, err
	}
	toolModel := cfg.ChatModel
	if len(infos) > 0 {
		toolModel, err = cfg.ChatModel.WithTools(infos)
		if err != nil {
			return nil, fmt.Errorf("agent: bind tools: %w", err)
		}
	}

	maxCalls := cfg.MaxToolCalls
	if maxCalls <= 0 {
		maxCalls = DefaultMaxToolCalls
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}
	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt
	}

	return &Loop{
		toolModel:        toolModel,
		plainModel:       cfg.ChatModel,
		registry:         cfg.Registry,
		history:          cfg.History,
		sessions:         newSessions(cfg.HistoryWindow),
		systemPrompt:     prompt + toolCatalog(cfg.Registry),
		maxToolCalls:     maxCalls,
		maxContextTokens: maxCtx,
	}, nil
}

// toolCatalog renders the registered tools into the system prompt so models
// without native tool calling can still dispatch via the JSON content format.
func toolCatalog(registry *tools.Registry) string {
	list := registry.List()
	if len(list) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\n\nYou can call the following tools. To call one, respond with ONLY a JSON object\n")
	sb.WriteString(`of the form {"tool": "<name>", "arguments": {...}} and nothing else.` + "\n\nTools:\n")
	for _, t := range list {
		fmt.Fprintf(&sb, "- %s: %s\n", t.Name(), t.Description())
	}
	return sb.String()
}

// HandleMessage runs one full turn for the session and returns the final
// answer. On generation failure it returns ErrGenerationUnavailable; the
// session retains the user message and every fully-appended tool exchange.
func (l *Loop) HandleMessage(ctx context.Context, sessionID, text string) (string, error) {
	log := logging.FromContext(ctx)
	sess := l.sessions.get(sessionID)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.append(schema.UserMessage(text))

	var gathered []string
	for used := 0; used < l.maxToolCalls; {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
		}

		resp, err := l.toolModel.Generate(ctx, l.prompt(sess))
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
		}

		calls, parseErr := detectToolCalls(resp)
		if parseErr != nil {
			// Malformed payload: tell the model what was wrong and let it
			// try again within the same turn budget.
			log.Warn("agent: malformed tool payload", slog.Any("error", parseErr))
			sess.append(resp, schema.ToolMessage(
				(&tools.ToolError{Kind: "invalid_tool_payload", Message: parseErr.Error()}).JSON(),
				syntheticCallID))
			used++
			continue
		}
		if len(calls) == 0 {
			// Plain answer: the turn is complete.
			l.finishTurn(ctx, sess, text, resp.Content)
			sess.append(resp)
			return resp.Content, nil
		}

		// Every call in the response is dispatched, even when that runs past
		// the budget: a call ID left without a paired tool result makes the
		// whole window invalid for strict providers.
		msgs := make([]*schema.Message, 0, len(calls)+1)
		msgs = append(msgs, resp)
		for _, call := range calls {
			result := l.dispatch(ctx, call)
			gathered = append(gathered, result)
			msgs = append(msgs, schema.ToolMessage(result, call.id))
			used++
			log.Debug("agent: tool dispatched",
				slog.String("tool", call.name),
				slog.Int("turn_call", used))
		}
		sess.append(msgs...)
	}

	// Tool budget exhausted: one final generation without tools so the model
	// answers with what it has gathered.
	answer, err := l.answerAtBound(ctx, sess, gathered)
	if err != nil {
		return "", err
	}
	l.finishTurn(ctx, sess, text, answer)
	sess.append(schema.AssistantMessage(answer, nil))
	return answer, nil
}

// prompt assembles the generation input: the system prompt, the session
// window trimmed to the token budget, and the newest message kept unconditionally.
func (l *Loop) prompt(sess *Session) []*schema.Message {
	window := sess.snapshot()

	system := schema.SystemMessage(l.systemPrompt)
	if len(window) == 0 {
		return []*schema.Message{system}
	}

	latest := window[len(window)-1]
	older := window[:len(window)-1]
	older = budget.TrimHistory([]*schema.Message{system, latest}, older, l.maxContextTokens)

	out := make([]*schema.Message, 0, len(older)+2)
	out = append(out, system)
	out = append(out, older...)
	out = append(out, latest)
	return out
}

// dispatch resolves and runs one tool call. Unknown tools, tool errors, and
// tool panics all come back as ToolError payloads so the conversation
// continues instead of aborting the turn.
func (l *Loop) dispatch(ctx context.Context, call *toolCall) (result string) {
	defer func() {
		if r := recover(); r != nil {
			logging.FromContext(ctx).Error("agent: tool panicked",
				slog.String("tool", call.name),
				slog.Any("panic", r))
			result = (&tools.ToolError{
				Kind:    "tool_panic",
				Message: fmt.Sprintf("tool %s panicked: %v", call.name, r),
			}).JSON()
		}
	}()

	t, err := l.registry.Get(call.name)
	if err != nil {
		return (&tools.ToolError{
			Kind:    "unknown_tool",
			Message: fmt.Sprintf("no tool named %q is available", call.name),
		}).JSON()
	}

	out, err := t.InvokableRun(ctx, call.arguments)
	if err != nil {
		return (&tools.ToolError{Kind: "tool_failed", Message: err.Error()}).JSON()
	}
	return out
}

// answerAtBound produces the turn's answer once the tool budget is spent:
// a final generation without tools, or, if the backend fails, a best-effort
// digest of the gathered tool results.
func (l *Loop) answerAtBound(ctx context.Context, sess *Session, gathered []string) (string, error) {
	resp, err := l.plainModel.Generate(ctx, l.prompt(sess))
	if err == nil {
		return resp.Content, nil
	}

	logging.FromContext(ctx).Warn("agent: final generation failed, answering from tool results",
		slog.Any("error", err))
	if len(gathered) == 0 {
		return "", fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}
	return "I could not compose a final answer, but here is what the tools returned:\n\n" +
		strings.Join(gathered, "\n\n"), nil
}

// finishTurn persists the completed exchange to the durable history store.
// Persistence failures are logged and never affect the answer.
func (l *Loop) finishTurn(ctx context.Context, sess *Session, userText, answer string) {
	if l.history == nil {
		return
	}
	log := logging.FromContext(ctx)
	if err := l.history.Append(ctx, sess.ID, history.RoleUser, userText); err != nil {
		log.Warn("agent: failed to persist user turn", slog.Any("error", err))
	}
	if err := l.history.Append(ctx, sess.ID, history.RoleAssistant, answer); err != nil {
		log.Warn("agent: failed to persist assistant turn", slog.Any("error", err))
	}
}
