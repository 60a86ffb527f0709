// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider to return scripted replies and to verify the conversation
// history passed to the model.
//
// Example:
//
//	p := &mock.Provider{Replies: []string{"Hello there."}}
//	resp, _ := p.Complete(ctx, llm.Request{Messages: msgs})
package mock

import (
	"context"
	"sync"

	"github.com/voicewire/voicewire/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is a copy of the request, with the Messages slice duplicated.
	Req llm.Request
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Replies are returned in order, one per Complete call. When exhausted,
	// the last reply repeats.
	Replies []string

	// Err, if non-nil, is returned from every Complete call.
	Err error

	// Block, if non-nil, is received from before replying. Leave it open and
	// cancel ctx to simulate a timed-out model.
	Block <-chan struct{}

	// --- Call records ---

	// CompleteCalls records every call to Complete in order.
	CompleteCalls []CompleteCall

	n int
}

// Complete records the call and returns the next scripted reply.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	msgs := make([]llm.Message, len(req.Messages))
	copy(msgs, req.Messages)
	rec := req
	rec.Messages = msgs
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: rec})

	err := p.Err
	block := p.Block
	var reply string
	if len(p.Replies) > 0 {
		i := min(p.n, len(p.Replies)-1)
		reply = p.Replies[i]
		p.n++
	}
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &llm.Response{Content: reply}, nil
}

// Calls returns a snapshot of recorded Complete calls. Thread-safe.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]CompleteCall, len(p.CompleteCalls))
	copy(out, p.CompleteCalls)
	return out
}

// Reset clears all recorded calls and rewinds the reply script. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
	p.n = 0
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
