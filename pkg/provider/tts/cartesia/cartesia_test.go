package cartesia

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"math"
	"testing"
)

func f32le(samples ...float32) []byte {
	b := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(s))
	}
	return b
}

func TestChunkDecoder_Aligned(t *testing.T) {
	t.Parallel()

	d := newChunkDecoder()
	samples, err := d.decode(base64.StdEncoding.EncodeToString(f32le(0.25, -0.5, 1)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []float32{0.25, -0.5, 1}
	if len(samples) != len(want) {
		t.Fatalf("len = %d, want %d", len(samples), len(want))
	}
	for i := range want {
		if samples[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, samples[i], want[i])
		}
	}
}

func TestChunkDecoder_CarriesPartialSample(t *testing.T) {
	t.Parallel()

	raw := f32le(0.1, 0.2, 0.3)
	d := newChunkDecoder()

	// Split mid-sample: 7 bytes then the remaining 5.
	first, err := d.decode(base64.StdEncoding.EncodeToString(raw[:7]))
	if err != nil {
		t.Fatalf("decode first: %v", err)
	}
	if len(first) != 1 || first[0] != 0.1 {
		t.Fatalf("first part: got %v, want [0.1]", first)
	}

	second, err := d.decode(base64.StdEncoding.EncodeToString(raw[7:]))
	if err != nil {
		t.Fatalf("decode second: %v", err)
	}
	if len(second) != 2 || second[0] != 0.2 || second[1] != 0.3 {
		t.Fatalf("second part: got %v, want [0.2 0.3]", second)
	}
	if d.carry != nil {
		t.Errorf("carry not cleared after aligned tail: %v", d.carry)
	}
}

func TestChunkDecoder_BadBase64(t *testing.T) {
	t.Parallel()

	d := newChunkDecoder()
	if _, err := d.decode("!!not base64!!"); err == nil {
		t.Error("bad base64 decoded without error")
	}
}

func TestRequestShape(t *testing.T) {
	t.Parallel()

	req := request{
		ContextID:  "ctx-1",
		ModelID:    defaultModel,
		Transcript: "hello",
		Voice:      voiceRef{Mode: "id", ID: "voice-1"},
		OutputFormat: outputFormat{
			Container:  "raw",
			Encoding:   "pcm_f32le",
			SampleRate: outputSampleRate,
		},
		Language: defaultLanguage,
	}
	b, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	of, ok := m["output_format"].(map[string]any)
	if !ok {
		t.Fatal("output_format missing")
	}
	if of["encoding"] != "pcm_f32le" {
		t.Errorf("encoding = %v, want pcm_f32le", of["encoding"])
	}
	if of["sample_rate"] != float64(22050) {
		t.Errorf("sample_rate = %v, want 22050", of["sample_rate"])
	}
	voice, ok := m["voice"].(map[string]any)
	if !ok || voice["mode"] != "id" || voice["id"] != "voice-1" {
		t.Errorf("voice = %v", m["voice"])
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Error("New(\"\") succeeded, want error")
	}
	p, err := New("key", WithModel("sonic-english"), WithLanguage("de"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != "sonic-english" || p.language != "de" {
		t.Errorf("options not applied: model=%q language=%q", p.model, p.language)
	}
}
