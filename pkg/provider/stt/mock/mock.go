// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to return scripted transcripts and to verify the payloads
// submitted for transcription.
//
// Example:
//
//	p := &mock.Provider{Result: stt.Result{Text: "hello"}}
//	res, _ := p.Transcribe(ctx, data, stt.FormatWAV)
package mock

import (
	"context"
	"sync"

	"github.com/voicewire/voicewire/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Data is a copy of the submitted audio payload.
	Data []byte
	// Format is the declared container format.
	Format stt.Format
	// Prompt is the per-call recognition hint, empty for plain Transcribe.
	Prompt string
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Result is returned by every Transcribe call when Err is nil.
	Result stt.Result

	// Err, if non-nil, is returned from every Transcribe call.
	Err error

	// Block, if non-nil, is received from before returning. Leave it open
	// and cancel ctx to simulate a slow backend.
	Block <-chan struct{}

	// --- Call records ---

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns Result, Err.
func (p *Provider) Transcribe(ctx context.Context, data []byte, format stt.Format) (stt.Result, error) {
	return p.TranscribeWithPrompt(ctx, data, format, "")
}

// TranscribeWithPrompt records the call, hint included, and returns
// Result, Err.
func (p *Provider) TranscribeWithPrompt(ctx context.Context, data []byte, format stt.Format, prompt string) (stt.Result, error) {
	p.mu.Lock()
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Data: dataCopy, Format: format, Prompt: prompt})
	res, err := p.Result, p.Err
	block := p.Block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return stt.Result{}, ctx.Err()
		}
	}
	return res, err
}

// Calls returns a snapshot of recorded Transcribe calls. Thread-safe.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TranscribeCall, len(p.TranscribeCalls))
	copy(out, p.TranscribeCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

// Ensure Provider implements the prompt-capable interface at compile time.
var _ stt.PromptTranscriber = (*Provider)(nil)
