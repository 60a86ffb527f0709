package gateway

import (
	"encoding/json"
	"fmt"
)

// Inbound event names (client → gateway).
const (
	EvStartVoiceRecording = "start_voice_recording"
	EvVoiceChunk          = "voice_chunk"
	EvVoiceData           = "voice_data"
	EvStopVoiceRecording  = "stop_voice_recording"
	EvCancelVoiceInput    = "cancel_voice_input"
	EvTextInput           = "conversation_text_input"
	EvStartTTS            = "start_tts"
	EvStopTTS             = "stop_tts"
	EvBufferStatus        = "audio_buffer_status"
	EvHeartbeat           = "heartbeat"
	EvClearConversation   = "clear_conversation"
)

// Outbound event names (gateway → client). PCM frames are raw binary
// messages and carry no name on the wire.
const (
	EvVoiceRecordingStarted = "voice_recording_started"
	EvTranscriptionStarted  = "transcription_started"
	EvTranscriptionComplete = "transcription_complete"
	EvTranscriptionError    = "transcription_error"
	EvUserMessage           = "user_message"
	EvAIThinking            = "ai_thinking"
	EvAIResponseComplete    = "ai_response_complete"
	EvTTSStarted            = "tts_started"
	EvTTSCompleted          = "tts_completed"
	EvTTSError              = "tts_error"
	EvHeartbeatAck          = "heartbeat_ack"
	EvConversationCleared   = "conversation_cleared"
)

// aliases maps legacy inbound event names, kept for older clients, to their
// canonical names. Resolved once at the router edge; handlers only ever see
// canonical names.
var aliases = map[string]string{
	"audio_chunk":              EvVoiceChunk,
	"user_message":             EvTextInput,
	"client_heartbeat":         EvHeartbeat,
	"start_voice_conversation": EvStartVoiceRecording,
}

// canonical resolves a possibly-legacy event name.
func canonical(name string) string {
	if c, ok := aliases[name]; ok {
		return c
	}
	return name
}

// Envelope is the JSON wire form of a named text event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// DecodeEnvelope parses one inbound text message.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("gateway: malformed event: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("gateway: event without a name")
	}
	env.Event = canonical(env.Event)
	return env, nil
}

// EncodeEvent builds the wire bytes for an outbound text event.
func EncodeEvent(name string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("gateway: encode %s payload: %w", name, err)
	}
	raw, err := json.Marshal(Envelope{Event: name, Data: data})
	if err != nil {
		return nil, fmt.Errorf("gateway: encode %s: %w", name, err)
	}
	return raw, nil
}

// --- Inbound payloads ---

// AudioPayload carries audio bytes for voice_chunk and voice_data. Data is
// base64 in the JSON wire form. IsFinal is honoured on the legacy audio_chunk
// alias: a final chunk implies stop_voice_recording.
type AudioPayload struct {
	Data    []byte `json:"data"`
	Format  string `json:"format"`
	IsFinal bool   `json:"is_final,omitempty"`
}

// TextPayload carries conversation_text_input.
type TextPayload struct {
	Text string `json:"text"`
}

// StartTTSPayload carries start_tts.
type StartTTSPayload struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id,omitempty"`
}

// BufferStatusPayload carries audio_buffer_status.
type BufferStatusPayload struct {
	BufferFrames  int `json:"buffer_frames"`
	UnderrunCount int `json:"underrun_count"`
}

// HeartbeatPayload carries heartbeat and heartbeat_ack.
type HeartbeatPayload struct {
	T int64 `json:"t"`
}

// --- Outbound payloads ---

// TranscriptPayload carries transcription_complete. Duration and Language are
// included when the provider reports them.
type TranscriptPayload struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// ErrorPayload carries transcription_error and tts_error.
type ErrorPayload struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// TTSCompletedPayload carries tts_completed.
type TTSCompletedPayload struct {
	Frames     int   `json:"frames"`
	Bytes      int   `json:"bytes"`
	DurationMS int64 `json:"duration_ms"`
}

// Empty is the payload of events that carry no fields.
type Empty struct{}
