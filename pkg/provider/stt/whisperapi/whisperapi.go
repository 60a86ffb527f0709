// Package whisperapi provides an STT provider backed by the hosted Whisper
// transcription REST API (POST /v1/audio/transcriptions).
//
// WAV payloads are normalised locally before upload: decoded, downmixed to
// mono, resampled to 16 kHz, and gated on RMS energy so that silent buffers
// never reach the network. Compressed containers (webm, mp3, m4a, mp4) are
// forwarded as-is; the service decodes those itself.
//
// Usage:
//
//	p, err := whisperapi.New(apiKey,
//	    whisperapi.WithModel("whisper-1"),
//	    whisperapi.WithPrompt("Previous conversation context"),
//	)
//	res, err := p.Transcribe(ctx, wavBytes, stt.FormatWAV)
package whisperapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/voicewire/voicewire/internal/fault"
	"github.com/voicewire/voicewire/pkg/audio"
	"github.com/voicewire/voicewire/pkg/provider/stt"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "whisper-1"

	// uploadSampleRate is the rate WAV audio is resampled to before upload.
	// Whisper models are trained on 16 kHz mono input.
	uploadSampleRate = 16000

	// rmsThreshold is the RMS energy (in 16-bit PCM units, max 32767) below
	// which a WAV payload is treated as silence and rejected without upload.
	rmsThreshold = 300.0

	// maxPromptLen caps the context prompt; the service truncates the prompt
	// to its final 224 tokens, so longer hints waste the earlier portion.
	maxPromptLen = 224
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.PromptTranscriber = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the transcription model identifier. Defaults to "whisper-1".
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL overrides the API base URL, e.g. to point at a compatible
// self-hosted endpoint or a test server.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithPrompt sets a context hint sent with every request, typically the tail
// of the recent conversation. Prompts longer than 224 characters are
// truncated from the front so the most recent text survives.
func WithPrompt(prompt string) Option {
	return func(p *Provider) {
		p.prompt = TrimPrompt(prompt)
	}
}

// Provider implements stt.Provider against the Whisper REST API.
type Provider struct {
	apiKey     string
	baseURL    string
	model      string
	prompt     string
	httpClient *http.Client
}

// New creates a Provider authenticated with apiKey. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("whisperapi: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe submits one utterance and returns the committed transcript. The
// prompt configured with WithPrompt, if any, is sent as the context hint.
func (p *Provider) Transcribe(ctx context.Context, data []byte, format stt.Format) (stt.Result, error) {
	return p.transcribe(ctx, data, format, p.prompt)
}

// TranscribeWithPrompt is Transcribe with a context hint scoped to this call.
// It overrides any prompt configured with WithPrompt; long hints are trimmed
// from the front like TrimPrompt.
func (p *Provider) TranscribeWithPrompt(ctx context.Context, data []byte, format stt.Format, prompt string) (stt.Result, error) {
	return p.transcribe(ctx, data, format, TrimPrompt(prompt))
}

func (p *Provider) transcribe(ctx context.Context, data []byte, format stt.Format, prompt string) (stt.Result, error) {
	if len(data) == 0 {
		return stt.Result{}, fault.New(fault.AudioEmpty, "whisperapi: empty payload")
	}

	upload := data
	filename := "audio." + string(format)
	if format == stt.FormatWAV {
		pcm, err := prepareWAV(data)
		if err != nil {
			return stt.Result{}, err
		}
		upload = audio.EncodeWAV(pcm, uploadSampleRate)
		filename = "audio.wav"
	}

	res, err := p.infer(ctx, upload, filename, prompt)
	if err != nil {
		return stt.Result{}, err
	}
	return res, nil
}

// prepareWAV decodes, downmixes, resamples, and energy-gates a WAV payload.
func prepareWAV(data []byte) ([]byte, error) {
	w, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, fault.Wrap(fault.AudioUnsupported, fmt.Errorf("whisperapi: decode wav: %w", err))
	}
	mono, err := w.Mono()
	if err != nil {
		return nil, fault.Wrap(fault.AudioUnsupported, fmt.Errorf("whisperapi: %w", err))
	}
	pcm := audio.ResampleMono16(mono, w.SampleRate, uploadSampleRate)

	if len(pcm) == 0 || audio.RMS(pcm) < rmsThreshold {
		return nil, fault.New(fault.AudioEmpty, "whisperapi: payload carries no speech energy")
	}
	return pcm, nil
}

// infer POSTs the payload to the transcription endpoint as multipart form
// data and parses the verbose JSON response.
func (p *Provider) infer(ctx context.Context, payload []byte, filename, prompt string) (stt.Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisperapi: create form file: %w", err)
	}
	if _, err := fw.Write(payload); err != nil {
		return stt.Result{}, fmt.Errorf("whisperapi: write payload: %w", err)
	}

	fields := map[string]string{
		"model":           p.model,
		"response_format": "verbose_json",
		"temperature":     "0",
	}
	if prompt != "" {
		fields["prompt"] = prompt
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return stt.Result{}, fmt.Errorf("whisperapi: write field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return stt.Result{}, fmt.Errorf("whisperapi: close multipart writer: %w", err)
	}

	endpoint := p.baseURL + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisperapi: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return stt.Result{}, fault.Wrap(fault.ProviderTimeout, fmt.Errorf("whisperapi: request: %w", err))
		}
		return stt.Result{}, fault.Wrap(fault.ProviderUnavailable, fmt.Errorf("whisperapi: request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Result{}, fault.Wrap(fault.ProviderUnavailable, fmt.Errorf("whisperapi: read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return stt.Result{}, fault.New(fault.ProviderRejected, "whisperapi: HTTP %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var result struct {
		Text     string  `json:"text"`
		Language string  `json:"language"`
		Duration float64 `json:"duration"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return stt.Result{}, fault.Wrap(fault.ProviderRejected, fmt.Errorf("whisperapi: parse response: %w", err))
	}

	return stt.Result{
		Text:     strings.TrimSpace(result.Text),
		Language: result.Language,
		Duration: result.Duration,
	}, nil
}

// TrimPrompt shortens a context prompt to the trailing maxPromptLen
// characters at a word boundary where possible.
func TrimPrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if len(prompt) <= maxPromptLen {
		return prompt
	}
	cut := prompt[len(prompt)-maxPromptLen:]
	if i := strings.IndexByte(cut, ' '); i >= 0 && i < len(cut)-1 {
		cut = cut[i+1:]
	}
	return cut
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
