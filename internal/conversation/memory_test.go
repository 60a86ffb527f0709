package conversation

import (
	"fmt"
	"testing"

	"github.com/voicewire/voicewire/pkg/provider/llm"
)

func TestMemory_SystemPromptPinned(t *testing.T) {
	t.Parallel()

	m := NewMemory("be brief", 4)
	m.AddUser("hi")
	m.AddAssistant("hello")

	msgs := m.Messages()
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	if msgs[0].Role != llm.RoleSystem || msgs[0].Content != "be brief" {
		t.Errorf("first message = %+v, want pinned system prompt", msgs[0])
	}
	if m.Len() != 2 {
		t.Errorf("Len = %d, want 2 (system prompt not counted)", m.Len())
	}
}

func TestMemory_PairEviction(t *testing.T) {
	t.Parallel()

	m := NewMemory("sys", 4)
	for i := range 5 {
		m.AddUser(fmt.Sprintf("u%d", i))
		m.AddAssistant(fmt.Sprintf("a%d", i))
	}

	turns := m.Turns()
	if len(turns) != 4 {
		t.Fatalf("retained %d turns, want 4", len(turns))
	}
	// Oldest pairs evicted; window starts on a user turn.
	if turns[0].Role != llm.RoleUser || turns[0].Content != "u3" {
		t.Errorf("oldest retained turn = %+v, want u3", turns[0])
	}
	if turns[3].Content != "a4" {
		t.Errorf("newest turn = %+v, want a4", turns[3])
	}
}

func TestMemory_Reset(t *testing.T) {
	t.Parallel()

	m := NewMemory("sys", 10)
	m.AddUser("hi")
	m.AddAssistant("hello")
	m.Reset()

	if m.Len() != 0 {
		t.Errorf("Len after Reset = %d, want 0", m.Len())
	}
	msgs := m.Messages()
	if len(msgs) != 1 || msgs[0].Role != llm.RoleSystem {
		t.Errorf("Messages after Reset = %+v, want only the system prompt", msgs)
	}
}

func TestMemory_DropLast(t *testing.T) {
	t.Parallel()

	m := NewMemory("sys", 10)
	m.AddUser("kept")
	m.AddUser("rolled back")
	m.DropLast()

	turns := m.Turns()
	if len(turns) != 1 || turns[0].Content != "kept" {
		t.Errorf("turns = %+v, want only the first", turns)
	}
	m.DropLast()
	m.DropLast() // empty; must not panic
	if m.Len() != 0 {
		t.Errorf("Len = %d, want 0", m.Len())
	}
}

func TestMemory_RecentText(t *testing.T) {
	t.Parallel()

	m := NewMemory("sys", 10)
	m.AddUser("one")
	m.AddAssistant("two")
	m.AddUser("three")

	if got := m.RecentText(2); got != "two three" {
		t.Errorf("RecentText(2) = %q, want %q", got, "two three")
	}
	if got := m.RecentText(99); got != "one two three" {
		t.Errorf("RecentText(99) = %q", got)
	}
	if got := m.RecentText(0); got != "" {
		t.Errorf("RecentText(0) = %q, want empty", got)
	}
}

func TestMemory_DefaultCap(t *testing.T) {
	t.Parallel()

	m := NewMemory("sys", 0)
	for i := range DefaultMaxTurns + 10 {
		m.AddUser(fmt.Sprintf("u%d", i))
	}
	if m.Len() > DefaultMaxTurns {
		t.Errorf("Len = %d, want <= %d", m.Len(), DefaultMaxTurns)
	}
}
