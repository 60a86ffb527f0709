package gateway

import (
	"encoding/base64"
	"encoding/json"
	"testing"
)

func TestDecodeEnvelope_Canonical(t *testing.T) {
	t.Parallel()

	env, err := DecodeEnvelope([]byte(`{"event":"start_tts","data":{"text":"hi"}}`))
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if env.Event != EvStartTTS {
		t.Errorf("event = %q", env.Event)
	}
	var p StartTTSPayload
	if err := json.Unmarshal(env.Data, &p); err != nil || p.Text != "hi" {
		t.Errorf("payload = %+v, err = %v", p, err)
	}
}

func TestDecodeEnvelope_LegacyAliases(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"audio_chunk":              EvVoiceChunk,
		"user_message":             EvTextInput,
		"client_heartbeat":         EvHeartbeat,
		"start_voice_conversation": EvStartVoiceRecording,
	}
	for legacy, want := range cases {
		env, err := DecodeEnvelope([]byte(`{"event":"` + legacy + `"}`))
		if err != nil {
			t.Fatalf("DecodeEnvelope(%s): %v", legacy, err)
		}
		if env.Event != want {
			t.Errorf("%s routed to %q, want %q", legacy, env.Event, want)
		}
	}
}

func TestDecodeEnvelope_Malformed(t *testing.T) {
	t.Parallel()

	if _, err := DecodeEnvelope([]byte(`not json`)); err == nil {
		t.Error("malformed JSON accepted")
	}
	if _, err := DecodeEnvelope([]byte(`{"data":{}}`)); err == nil {
		t.Error("nameless event accepted")
	}
}

func TestAudioPayload_Base64(t *testing.T) {
	t.Parallel()

	raw := base64.StdEncoding.EncodeToString([]byte{0x01, 0x02, 0xff})
	var p AudioPayload
	if err := json.Unmarshal([]byte(`{"data":"`+raw+`","format":"wav"}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(p.Data) != 3 || p.Data[2] != 0xff || p.Format != "wav" {
		t.Errorf("payload = %+v", p)
	}
}

func TestEncodeEvent_RoundTrip(t *testing.T) {
	t.Parallel()

	raw, err := EncodeEvent(EvTTSCompleted, TTSCompletedPayload{Frames: 3, Bytes: 2646, DurationMS: 48})
	if err != nil {
		t.Fatalf("EncodeEvent: %v", err)
	}
	env, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	var p TTSCompletedPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Frames != 3 || p.Bytes != 2646 || p.DurationMS != 48 {
		t.Errorf("payload = %+v", p)
	}
}
