// Package conversation maintains per-session dialogue state: a bounded
// message history with a pinned system prompt, and the reply generator that
// feeds that history to the language model.
package conversation

import (
	"sync"
	"time"

	"github.com/voicewire/voicewire/pkg/provider/llm"
)

// DefaultMaxTurns is the default cap on retained non-system turns.
const DefaultMaxTurns = 50

// Turn is one recorded conversation entry.
type Turn struct {
	Role    string
	Content string
	At      time.Time
}

// Memory is a bounded conversation history. The system prompt is pinned and
// never counted against or evicted by the turn cap; user/assistant turns are
// evicted in oldest-first pairs once the cap is exceeded, so the history
// always starts with a user turn.
//
// Safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	system   string
	turns    []Turn
	maxTurns int
}

// NewMemory creates a Memory with the given pinned system prompt. maxTurns
// caps the retained non-system turns; values < 2 fall back to
// DefaultMaxTurns.
func NewMemory(system string, maxTurns int) *Memory {
	if maxTurns < 2 {
		maxTurns = DefaultMaxTurns
	}
	return &Memory{system: system, maxTurns: maxTurns}
}

// AddUser appends a user turn and evicts if over cap.
func (m *Memory) AddUser(content string) {
	m.add(llm.RoleUser, content)
}

// AddAssistant appends an assistant turn and evicts if over cap.
func (m *Memory) AddAssistant(content string) {
	m.add(llm.RoleAssistant, content)
}

func (m *Memory) add(role, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, Turn{Role: role, Content: content, At: time.Now()})
	for len(m.turns) > m.maxTurns {
		// Drop the oldest pair so the window keeps starting on a user turn.
		drop := 2
		if drop > len(m.turns) {
			drop = len(m.turns)
		}
		m.turns = append(m.turns[:0], m.turns[drop:]...)
	}
}

// DropLast removes the most recent turn. Used to roll back a user turn whose
// reply generation failed, keeping failed turns out of the history.
func (m *Memory) DropLast() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.turns); n > 0 {
		m.turns = m.turns[:n-1]
	}
}

// Reset discards all turns. The system prompt stays pinned.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
}

// Len reports the number of retained non-system turns.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns)
}

// Messages returns the history as model input: the pinned system prompt
// followed by the retained turns, oldest first.
func (m *Memory) Messages() []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.Message, 0, len(m.turns)+1)
	if m.system != "" {
		out = append(out, llm.Message{Role: llm.RoleSystem, Content: m.system})
	}
	for _, t := range m.turns {
		out = append(out, llm.Message{Role: t.Role, Content: t.Content})
	}
	return out
}

// Turns returns a copy of the retained turns, oldest first.
func (m *Memory) Turns() []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

// RecentText joins the content of the most recent turns into one string,
// newest last, suitable as a transcription context hint.
func (m *Memory) RecentText(n int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > len(m.turns) {
		n = len(m.turns)
	}
	var s string
	for _, t := range m.turns[len(m.turns)-n:] {
		if s != "" {
			s += " "
		}
		s += t.Content
	}
	return s
}
