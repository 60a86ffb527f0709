// Package tts defines the Provider interface for text-to-speech backends.
//
// Synthesis is lazy and cancellable: a Provider returns a Stream whose chunk
// channel fills as audio arrives from the backend, so playback can begin
// before the full utterance is synthesised. Cancelling the context passed to
// Synthesize tears the stream down; the backend must release its connection
// promptly.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Stream is a live synthesis job.
type Stream interface {
	// Chunks returns the channel of float PCM chunks at 22050 Hz mono. The
	// channel is closed when synthesis completes, fails, or is cancelled.
	// Callers must drain it.
	Chunks() <-chan []float32

	// Err reports why the stream ended. It is valid once Chunks is closed:
	// nil on normal completion or cancellation, otherwise an error carrying a
	// fault.Kind.
	Err() error
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize starts a synthesis job for text using the given voice.
	// Returns an error if the job cannot be started at all; failures after
	// the first chunk surface through Stream.Err.
	Synthesize(ctx context.Context, text, voiceID string) (Stream, error)
}
