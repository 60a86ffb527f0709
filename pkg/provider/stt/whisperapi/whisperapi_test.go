package whisperapi

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/voicewire/voicewire/internal/fault"
	"github.com/voicewire/voicewire/pkg/audio"
	"github.com/voicewire/voicewire/pkg/provider/stt"
)

// toneWAV builds a mono 16-bit WAV holding a 440 Hz tone loud enough to pass
// the energy gate.
func toneWAV(t *testing.T, sampleRate int, d time.Duration) []byte {
	t.Helper()
	n := int(float64(sampleRate) * d.Seconds())
	pcm := make([]byte, n*2)
	for i := range n {
		s := int16(10000 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return audio.EncodeWAV(pcm, sampleRate)
}

func TestTranscribe_WAV(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("response_format"); got != "verbose_json" {
			t.Errorf("response_format = %q", got)
		}
		if got := r.FormValue("temperature"); got != "0" {
			t.Errorf("temperature = %q", got)
		}

		f, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		raw, err := io.ReadAll(f)
		if err != nil {
			t.Fatalf("read upload: %v", err)
		}
		w16, err := audio.DecodeWAV(raw)
		if err != nil {
			t.Fatalf("uploaded payload is not WAV: %v", err)
		}
		if w16.SampleRate != 16000 {
			t.Errorf("uploaded sample rate = %d, want 16000", w16.SampleRate)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":" hello world ","language":"en","duration":1.5}`))
	}))
	defer srv.Close()

	p, err := New("test-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := p.Transcribe(context.Background(), toneWAV(t, 22050, time.Second), stt.FormatWAV)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "hello world" {
		t.Errorf("Text = %q, want trimmed %q", res.Text, "hello world")
	}
	if res.Language != "en" {
		t.Errorf("Language = %q, want en", res.Language)
	}
	if res.Duration != 1.5 {
		t.Errorf("Duration = %v, want 1.5 seconds", res.Duration)
	}
}

func TestTranscribeWithPrompt_SendsHintPerCall(t *testing.T) {
	t.Parallel()

	prompts := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		prompts <- r.FormValue("prompt")
		w.Write([]byte(`{"text":"ok"}`))
	}))
	defer srv.Close()

	p, _ := New("test-key", WithBaseURL(srv.URL))
	wav := toneWAV(t, 16000, time.Second)

	if _, err := p.TranscribeWithPrompt(context.Background(), wav, stt.FormatWAV, "User: call Ada back"); err != nil {
		t.Fatalf("TranscribeWithPrompt: %v", err)
	}
	if got := <-prompts; got != "User: call Ada back" {
		t.Errorf("prompt field = %q, want the per-call hint", got)
	}

	// The hint must not stick to the provider: a plain Transcribe after it
	// sends no prompt field.
	if _, err := p.Transcribe(context.Background(), wav, stt.FormatWAV); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got := <-prompts; got != "" {
		t.Errorf("prompt leaked into the next call: %q", got)
	}
}

func TestTranscribe_SilenceRejectedLocally(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("silent payload reached the network")
	}))
	defer srv.Close()

	p, _ := New("test-key", WithBaseURL(srv.URL))
	silence := audio.EncodeWAV(make([]byte, 22050*2), 22050)
	_, err := p.Transcribe(context.Background(), silence, stt.FormatWAV)
	if !fault.Is(err, fault.AudioEmpty) {
		t.Errorf("got %v, want AudioEmpty", err)
	}
}

func TestTranscribe_EmptyPayload(t *testing.T) {
	t.Parallel()

	p, _ := New("test-key")
	if _, err := p.Transcribe(context.Background(), nil, stt.FormatWAV); !fault.Is(err, fault.AudioEmpty) {
		t.Errorf("got %v, want AudioEmpty", err)
	}
}

func TestTranscribe_GarbageWAV(t *testing.T) {
	t.Parallel()

	p, _ := New("test-key")
	_, err := p.Transcribe(context.Background(), []byte("not-audio"), stt.FormatWAV)
	if !fault.Is(err, fault.AudioUnsupported) {
		t.Errorf("got %v, want AudioUnsupported", err)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, _ := New("bad-key", WithBaseURL(srv.URL))
	_, err := p.Transcribe(context.Background(), toneWAV(t, 16000, time.Second), stt.FormatWAV)
	if !fault.Is(err, fault.ProviderRejected) {
		t.Errorf("got %v, want ProviderRejected", err)
	}
}

func TestTranscribe_CompressedPassthrough(t *testing.T) {
	t.Parallel()

	var uploadedName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		_, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		uploadedName = hdr.Filename
		w.Write([]byte(`{"text":"ok"}`))
	}))
	defer srv.Close()

	p, _ := New("test-key", WithBaseURL(srv.URL))
	// Opaque bytes: webm is not decoded locally.
	if _, err := p.Transcribe(context.Background(), []byte{0x1a, 0x45, 0xdf, 0xa3, 1, 2, 3}, stt.FormatWebM); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if uploadedName != "audio.webm" {
		t.Errorf("uploaded filename = %q, want audio.webm", uploadedName)
	}
}

func TestTrimPrompt(t *testing.T) {
	t.Parallel()

	if got := TrimPrompt("  short  "); got != "short" {
		t.Errorf("TrimPrompt(short) = %q", got)
	}

	long := strings.Repeat("word ", 100) // 500 chars
	got := TrimPrompt(long)
	if len(got) > maxPromptLen {
		t.Errorf("len = %d, want <= %d", len(got), maxPromptLen)
	}
	if strings.HasPrefix(got, "ord") || strings.HasPrefix(got, "rd") {
		t.Errorf("trim did not land on a word boundary: %q", got[:10])
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"wav", "webm", "mp3", "m4a", "mp4"} {
		if _, err := stt.ParseFormat(s); err != nil {
			t.Errorf("ParseFormat(%q): %v", s, err)
		}
	}
	if _, err := stt.ParseFormat("flac"); !fault.Is(err, fault.AudioUnsupported) {
		t.Errorf("ParseFormat(flac): got %v, want AudioUnsupported", err)
	}
}
