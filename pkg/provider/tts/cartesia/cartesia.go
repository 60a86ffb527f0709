// Package cartesia provides a Cartesia-backed TTS provider using the Cartesia
// streaming WebSocket API. It implements the tts.Provider interface.
//
// Audio is requested as raw pcm_f32le at 22050 Hz mono, so chunks can be fed
// to the frame scheduler without format conversion.
package cartesia

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/voicewire/voicewire/internal/fault"
	"github.com/voicewire/voicewire/pkg/provider/tts"
)

const (
	defaultEndpoint = "wss://api.cartesia.ai/tts/websocket"
	defaultModel    = "sonic-2"
	defaultLanguage = "en"
	apiVersion      = "2024-06-10"

	// outputSampleRate matches the wire rate the scheduler frames at.
	outputSampleRate = 22050
)

// Compile-time assertion that Provider implements tts.Provider.
var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Cartesia Provider.
type Option func(*Provider)

// WithModel sets the Cartesia model ID (e.g., "sonic-2", "sonic-english").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the synthesis language code. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithEndpoint overrides the WebSocket endpoint, e.g. for a test server.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements tts.Provider backed by the Cartesia streaming API.
type Provider struct {
	apiKey   string
	endpoint string
	model    string
	language string
}

// New creates a new Cartesia Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("cartesia: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		model:    defaultModel,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- WebSocket message types ----

// request is the JSON payload sent to Cartesia to start a synthesis context.
type request struct {
	ContextID    string       `json:"context_id"`
	ModelID      string       `json:"model_id"`
	Transcript   string       `json:"transcript"`
	Voice        voiceRef     `json:"voice"`
	OutputFormat outputFormat `json:"output_format"`
	Language     string       `json:"language"`
}

type voiceRef struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type outputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

// response is a JSON message received from Cartesia over the WebSocket.
type response struct {
	Type      string `json:"type"` // "chunk", "done", "error"
	ContextID string `json:"context_id"`
	Data      string `json:"data,omitempty"` // base64 pcm_f32le
	Error     string `json:"error,omitempty"`
}

// Synthesize opens a WebSocket to Cartesia, submits the transcript, and
// returns a Stream whose chunk channel fills as audio messages arrive.
func (p *Provider) Synthesize(ctx context.Context, text, voiceID string) (tts.Stream, error) {
	if voiceID == "" {
		return nil, errors.New("cartesia: voiceID must not be empty")
	}

	wsURL := fmt.Sprintf("%s?api_key=%s&cartesia_version=%s",
		p.endpoint, url.QueryEscape(p.apiKey), apiVersion)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fault.Wrap(fault.ProviderUnavailable, fmt.Errorf("cartesia: dial: %w", err))
	}

	req := request{
		ContextID:  uuid.NewString(),
		ModelID:    p.model,
		Transcript: text,
		Voice:      voiceRef{Mode: "id", ID: voiceID},
		OutputFormat: outputFormat{
			Container:  "raw",
			Encoding:   "pcm_f32le",
			SampleRate: outputSampleRate,
		},
		Language: p.language,
	}
	reqBytes, _ := json.Marshal(req)
	if err := conn.Write(ctx, websocket.MessageText, reqBytes); err != nil {
		conn.Close(websocket.StatusInternalError, "failed to send request")
		return nil, fault.Wrap(fault.ProviderUnavailable, fmt.Errorf("cartesia: send request: %w", err))
	}

	s := &stream{
		chunks: make(chan []float32, 64),
	}
	go s.readLoop(ctx, conn, req.ContextID)
	return s, nil
}

// stream is a live Cartesia synthesis job. It implements tts.Stream.
type stream struct {
	chunks chan []float32
	err    error // written by readLoop before chunks is closed
}

func (s *stream) Chunks() <-chan []float32 { return s.chunks }

func (s *stream) Err() error { return s.err }

// readLoop receives messages until done, error, or cancellation. Sample bytes
// that straddle a message boundary are carried into the next message.
func (s *stream) readLoop(ctx context.Context, conn *websocket.Conn, contextID string) {
	defer close(s.chunks)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	dec := newChunkDecoder()
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				// Cancellation is a normal way for a stream to end.
				return
			}
			s.err = fault.Wrap(fault.ProviderUnavailable, fmt.Errorf("cartesia: read: %w", err))
			return
		}

		var resp response
		if err := json.Unmarshal(msg, &resp); err != nil {
			s.err = fault.Wrap(fault.ProviderRejected, fmt.Errorf("cartesia: parse message: %w", err))
			return
		}
		if resp.ContextID != "" && resp.ContextID != contextID {
			continue
		}

		switch resp.Type {
		case "chunk":
			samples, err := dec.decode(resp.Data)
			if err != nil {
				s.err = fault.Wrap(fault.ProviderRejected, fmt.Errorf("cartesia: %w", err))
				return
			}
			if len(samples) == 0 {
				continue
			}
			select {
			case s.chunks <- samples:
			case <-ctx.Done():
				return
			}
		case "done":
			return
		case "error":
			s.err = fault.New(fault.ProviderRejected, "cartesia: %s", resp.Error)
			return
		}
	}
}

// ---- chunk decoding ----

// chunkDecoder turns base64 pcm_f32le payloads into float32 samples. Payloads
// are not guaranteed to align to 4-byte sample boundaries, so up to three
// leftover bytes are carried between calls.
type chunkDecoder struct {
	carry []byte
}

func newChunkDecoder() *chunkDecoder {
	return &chunkDecoder{}
}

func (d *chunkDecoder) decode(data string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode chunk: %w", err)
	}
	buf := raw
	if len(d.carry) > 0 {
		buf = append(d.carry, raw...)
	}

	n := len(buf) / 4
	samples := make([]float32, n)
	for i := range n {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}

	if rem := len(buf) % 4; rem != 0 {
		d.carry = append([]byte(nil), buf[len(buf)-rem:]...)
	} else {
		d.carry = nil
	}
	return samples, nil
}
