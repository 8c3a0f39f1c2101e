package agent

import (
	"sync"

	"github.com/cloudwego/eino/schema"
)

// DefaultHistoryWindow is the FIFO cap on messages kept per session.
const DefaultHistoryWindow = 50

// Session holds one conversation's in-memory message window. The window is a
// FIFO: once the cap is reached, the oldest message is evicted for each new
// append. Turns are serialised by mu, which HandleMessage holds for the whole
// turn, so concurrent callers on the same session queue up rather than
// interleave.
type Session struct {
	// ID is the caller-chosen session identifier.
	ID string

	mu       sync.Mutex
	window   int
	messages []*schema.Message
}

// append adds messages, evicting oldest-first past the window cap.
// Callers must hold mu.
func (s *Session) append(msgs ...*schema.Message) {
	s.messages = append(s.messages, msgs...)
	over := len(s.messages) - s.window
	if over <= 0 {
		return
	}
	// Evicting an assistant tool-call message takes its paired results with
	// it: strict providers reject a window that opens on a tool message.
	for over < len(s.messages) && s.messages[over].Role == schema.Tool {
		over++
	}
	s.messages = append(s.messages[:0:0], s.messages[over:]...)
}

// snapshot returns a copy of the current window. Callers must hold mu.
func (s *Session) snapshot() []*schema.Message {
	out := make([]*schema.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// sessions tracks live sessions by ID. Sessions are created on first use and
// never share state with each other.
type sessions struct {
	mu     sync.Mutex
	window int
	byID   map[string]*Session
}

func newSessions(window int) *sessions {
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	return &sessions{window: window, byID: make(map[string]*Session)}
}

// get returns the session for id, creating it if absent.
func (m *sessions) get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byID[id]
	if !ok {
		s = &Session{ID: id, window: m.window}
		m.byID[id] = s
	}
	return s
}
