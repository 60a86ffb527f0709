// Package stt defines the Provider interface for speech-to-text backends.
//
// Unlike a live streaming recogniser, the gateway submits one complete
// utterance per call: the client buffers microphone audio, sends it as a
// single payload, and waits for the transcript. Implementations receive the
// raw container bytes plus the declared format and are responsible for any
// preprocessing their backend needs.
//
// Implementations must be safe for concurrent use; the gateway transcribes
// utterances from different sessions in parallel.
package stt

import (
	"context"

	"github.com/voicewire/voicewire/internal/fault"
)

// Format identifies the container of a submitted audio payload.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatWebM Format = "webm"
	FormatMP3  Format = "mp3"
	FormatM4A  Format = "m4a"
	FormatMP4  Format = "mp4"
)

// ParseFormat validates a client-supplied format string. Unknown formats
// return a fault.AudioUnsupported error.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatWAV, FormatWebM, FormatMP3, FormatM4A, FormatMP4:
		return f, nil
	default:
		return "", fault.New(fault.AudioUnsupported, "stt: unsupported audio format %q", s)
	}
}

// Result is a committed transcription.
type Result struct {
	// Text is the transcribed speech, whitespace-trimmed.
	Text string

	// Language is the detected language code, if the backend reports one.
	Language string

	// Duration is the length of the recognised audio in seconds, if the
	// backend reports one. Kept as seconds to match what recognisers return.
	Duration float64
}

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Transcribe submits one utterance and blocks until the transcript is
	// available or ctx expires. Failures carry a fault.Kind: AudioEmpty for
	// payloads with no usable speech energy, AudioUnsupported for containers
	// the backend cannot parse, and the Provider* kinds for backend failures.
	Transcribe(ctx context.Context, data []byte, format Format) (Result, error)
}

// PromptTranscriber is implemented by backends that accept a per-call
// recognition hint, typically the tail of the recent conversation. The hint
// is scoped to the single call; implementations must not let one caller's
// hint leak into another's request.
type PromptTranscriber interface {
	Provider

	// TranscribeWithPrompt is Transcribe with a context hint for this call
	// only. An empty prompt behaves exactly like Transcribe.
	TranscribeWithPrompt(ctx context.Context, data []byte, format Format, prompt string) (Result, error)
}
