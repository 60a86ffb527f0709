package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/voicewire/voicewire/pkg/provider/llm"
)

// DefaultSystemPrompt instructs the model to keep replies short enough for
// spoken delivery.
const DefaultSystemPrompt = "You are a helpful voice assistant. " +
	"Keep responses concise - no more than 2 short sentences."

// Apology is spoken in place of a reply when generation fails. The text is
// fixed so clients and tests can recognise the degraded path.
const Apology = "I'm sorry, I encountered an error while processing your request. Please try again."

// Option is a functional option for a Manager.
type Option func(*Manager)

// WithSystemPrompt overrides the pinned system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(c *Manager) {
		c.system = prompt
	}
}

// WithMaxTurns caps the retained non-system turns.
func WithMaxTurns(n int) Option {
	return func(c *Manager) {
		c.maxTurns = n
	}
}

// WithTemperature sets the sampling temperature for replies.
func WithTemperature(t float64) Option {
	return func(c *Manager) {
		c.temperature = t
	}
}

// WithMaxTokens caps reply length in tokens.
func WithMaxTokens(n int) Option {
	return func(c *Manager) {
		c.maxTokens = n
	}
}

// WithTimeout bounds each model call.
func WithTimeout(d time.Duration) Option {
	return func(c *Manager) {
		c.timeout = d
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(c *Manager) {
		c.log = log
	}
}

// Manager owns one session's dialogue: it records turns in a bounded Memory
// and generates replies through the model. Reply generation is serialised per
// Manager so concurrent turns cannot interleave their history updates; the
// memory lock is never held across the model call.
type Manager struct {
	model       llm.Provider
	memory      *Memory
	system      string
	maxTurns    int
	temperature float64
	maxTokens   int
	timeout     time.Duration
	log         *slog.Logger

	genMu chan struct{} // capacity 1; held for the span of a generation
}

// NewManager creates a Manager backed by model.
func NewManager(model llm.Provider, opts ...Option) *Manager {
	c := &Manager{
		model:       model,
		system:      DefaultSystemPrompt,
		maxTurns:    DefaultMaxTurns,
		temperature: 0.7,
		timeout:     30 * time.Second,
		log:         slog.Default(),
		genMu:       make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(c)
	}
	c.memory = NewMemory(c.system, c.maxTurns)
	return c
}

// Memory exposes the underlying history for inspection and reset.
func (c *Manager) Memory() *Memory {
	return c.memory
}

// Reply records userText as a user turn, generates the assistant reply, and
// records it. On model failure the user turn is rolled back, the canned
// Apology is returned, and degraded is true; err then carries the cause for
// logging. The caller speaks the returned text either way.
func (c *Manager) Reply(ctx context.Context, userText string) (text string, degraded bool, err error) {
	return c.ReplyFunc(ctx, userText, nil)
}

// ReplyFunc is Reply with a hook: recorded, if non-nil, runs after the user
// turn has been committed to memory and before the model call. Callers use it
// to emit progress events that must observe the user turn already in history.
func (c *Manager) ReplyFunc(ctx context.Context, userText string, recorded func()) (text string, degraded bool, err error) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return "", false, fmt.Errorf("conversation: empty user text")
	}

	select {
	case c.genMu <- struct{}{}:
		defer func() { <-c.genMu }()
	case <-ctx.Done():
		return "", false, fmt.Errorf("conversation: %w", ctx.Err())
	}

	c.memory.AddUser(userText)
	if recorded != nil {
		recorded()
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.model.Complete(callCtx, llm.Request{
		Messages:    c.memory.Messages(),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		c.memory.DropLast()
		c.log.Warn("reply generation failed", "error", err)
		return Apology, true, err
	}

	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		c.memory.DropLast()
		return Apology, true, fmt.Errorf("conversation: model returned empty reply")
	}

	c.memory.AddAssistant(reply)
	c.log.Debug("reply generated",
		"user_chars", len(userText),
		"reply_chars", len(reply),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return reply, false, nil
}
