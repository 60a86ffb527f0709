// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled PCM chunks to consumers and to verify the
// text and voice passed to the backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Chunks: [][]float32{{0.1, 0.2}, {0.3}},
//	}
//	s, _ := p.Synthesize(ctx, "hello", "voice-1")
package mock

import (
	"context"
	"sync"

	"github.com/voicewire/voicewire/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Text is the transcript passed to Synthesize.
	Text string
	// VoiceID is the voice identifier passed to Synthesize.
	VoiceID string
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Chunks is the sequence of PCM chunks emitted by each returned Stream.
	Chunks [][]float32

	// StartErr, if non-nil, is returned from Synthesize instead of a Stream.
	StartErr error

	// StreamErr, if non-nil, is reported by Stream.Err after all Chunks have
	// been emitted, simulating a mid-stream failure.
	StreamErr error

	// Delay, if non-nil, is received from before each chunk is emitted. Use a
	// time.After channel factory to simulate a slow backend.
	Delay func() <-chan struct{}

	// --- Call records ---

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and, if StartErr is nil, returns a Stream that
// emits Chunks then closes.
func (p *Provider) Synthesize(ctx context.Context, text, voiceID string) (tts.Stream, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Text: text, VoiceID: voiceID})
	if p.StartErr != nil {
		err := p.StartErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := make([][]float32, len(p.Chunks))
	copy(chunks, p.Chunks)
	streamErr := p.StreamErr
	delay := p.Delay
	p.mu.Unlock()

	s := &stream{chunks: make(chan []float32, len(chunks))}
	go func() {
		defer close(s.chunks)
		for _, c := range chunks {
			if delay != nil {
				select {
				case <-delay():
				case <-ctx.Done():
					return
				}
			}
			select {
			case s.chunks <- c:
			case <-ctx.Done():
				return
			}
		}
		s.err = streamErr
	}()
	return s, nil
}

// Calls returns a snapshot of recorded Synthesize calls. Thread-safe.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.SynthesizeCalls))
	copy(out, p.SynthesizeCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}

type stream struct {
	chunks chan []float32
	err    error
}

func (s *stream) Chunks() <-chan []float32 { return s.chunks }
func (s *stream) Err() error               { return s.err }

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
