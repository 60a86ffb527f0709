// Package llm defines the Provider interface for large language model
// backends.
//
// The gateway issues one completion per conversation turn and waits for the
// full reply, so the interface is a single blocking Complete call. Streaming
// token delivery is deliberately absent: the reply is synthesised to speech
// as a whole, and partial text would not reach the client any sooner.
//
// Implementations must be safe for concurrent use; turns from different
// sessions complete in parallel.
package llm

import "context"

// Message roles, matching the chat-completion convention all backends share.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a conversation history.
type Message struct {
	// Role is one of RoleSystem, RoleUser, RoleAssistant.
	Role string

	// Content is the message text.
	Content string
}

// Usage holds token accounting returned by the backend. Counts are in the
// model's native token unit.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Request carries everything the model needs to produce a reply. Messages
// must be non-empty; the last message drives the response.
type Request struct {
	// Messages is the ordered conversation history, system prompt included.
	Messages []Message

	// Temperature controls output randomness in [0.0, 2.0]. Zero means use
	// the provider default.
	Temperature float64

	// MaxTokens caps completion length. Zero means use the provider default.
	MaxTokens int
}

// Response is a completed reply.
type Response struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Failures carry a fault.Kind; ctx expiry maps to ProviderTimeout.
	Complete(ctx context.Context, req Request) (*Response, error)
}
