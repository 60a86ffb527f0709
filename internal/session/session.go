// Package session holds per-client state: the conversation phase, the audio
// ingestion buffer, the active outbound stream handle, and the client's
// reported playback buffer depth.
//
// A Session serialises its own mutations with an internal mutex, but phase
// transitions are expected to be driven by a single goroutine per session;
// the mutex exists so heartbeat updates and diagnostic reads can come from
// other goroutines without tearing.
package session

import (
	"sync"
	"time"

	"github.com/voicewire/voicewire/internal/fault"
)

// Phase is a session's position in the turn lifecycle.
type Phase string

const (
	Idle         Phase = "idle"
	Listening    Phase = "listening"
	Transcribing Phase = "transcribing"
	Thinking     Phase = "thinking"
	Speaking     Phase = "speaking"
	Errored      Phase = "error"
)

// DefaultBufferFrames is assumed until the client reports its real playback
// buffer depth.
const DefaultBufferFrames = 60

// StreamHandle is the scheduler-owned handle to an active outbound stream.
type StreamHandle interface {
	// Cancel requests cooperative stream termination.
	Cancel()

	// Done is closed once the stream has fully stopped emitting.
	Done() <-chan struct{}
}

// Session is one connected client's state.
type Session struct {
	// ID is the stable opaque session identifier.
	ID string

	mu           sync.Mutex
	phase        Phase
	audioIn      []byte
	audioFormat  string
	stream       StreamHandle
	bufferFrames int
	underruns    int
	createdAt    time.Time
	lastActivity time.Time
}

// New creates a Session in Idle.
func New(id string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		phase:        Idle,
		bufferFrames: DefaultBufferFrames,
		createdAt:    now,
		lastActivity: now,
	}
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) invalid(op string) error {
	return fault.New(fault.InvalidState, "session %s: %s not allowed in phase %s", s.ID, op, s.phase)
}

// StartListening transitions Idle → Listening and clears the audio buffer.
func (s *Session) StartListening() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != Idle {
		return s.invalid("start_voice_recording")
	}
	s.phase = Listening
	s.audioIn = nil
	s.audioFormat = ""
	s.lastActivity = time.Now()
	return nil
}

// AppendAudio appends a chunk to the ingestion buffer. Only valid while
// Listening. The first chunk fixes the format; later chunks must match.
func (s *Session) AppendAudio(data []byte, format string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != Listening {
		return s.invalid("voice_chunk")
	}
	if s.audioFormat == "" {
		s.audioFormat = format
	} else if format != "" && format != s.audioFormat {
		return fault.New(fault.AudioUnsupported, "session %s: chunk format %q does not match buffer format %q", s.ID, format, s.audioFormat)
	}
	s.audioIn = append(s.audioIn, data...)
	s.lastActivity = time.Now()
	return nil
}

// SubmitAudio replaces the ingestion buffer with a complete utterance and
// transitions to Transcribing. Accepted from Idle (one-shot submission) or
// Listening (replaces whatever was chunked so far). Returns the buffer.
func (s *Session) SubmitAudio(data []byte, format string) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != Idle && s.phase != Listening {
		return nil, "", s.invalid("voice_data")
	}
	s.phase = Transcribing
	s.audioIn = nil
	s.audioFormat = ""
	s.lastActivity = time.Now()
	return data, format, nil
}

// StopListening transitions Listening → Transcribing and returns the
// accumulated buffer, which is cleared from the session.
func (s *Session) StopListening() ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != Listening {
		return nil, "", s.invalid("stop_voice_recording")
	}
	data, format := s.audioIn, s.audioFormat
	s.phase = Transcribing
	s.audioIn = nil
	s.audioFormat = ""
	s.lastActivity = time.Now()
	return data, format, nil
}

// CancelListening transitions Listening → Idle, discarding the buffer.
func (s *Session) CancelListening() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != Listening {
		return s.invalid("cancel_voice_input")
	}
	s.phase = Idle
	s.audioIn = nil
	s.audioFormat = ""
	s.lastActivity = time.Now()
	return nil
}

// BeginThinking transitions Idle → Thinking (text turn) or
// Transcribing → Thinking (voice turn after a transcript).
func (s *Session) BeginThinking() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != Idle && s.phase != Transcribing {
		return s.invalid("begin_thinking")
	}
	s.phase = Thinking
	s.lastActivity = time.Now()
	return nil
}

// CanSpeak reports whether a new outbound stream may start in the current
// phase, without transitioning. Callers check it before committing synthesis
// resources; BeginSpeaking revalidates when the handle attaches.
func (s *Session) CanSpeak() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.phase {
	case Thinking, Idle, Speaking:
		return nil
	default:
		return s.invalid("start_tts")
	}
}

// BeginSpeaking attaches the active stream handle and enters Speaking.
// Valid from Thinking (turn flow) and from Idle or Speaking (direct TTS;
// the caller is responsible for cancelling any predecessor stream first).
func (s *Session) BeginSpeaking(h StreamHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.phase {
	case Thinking, Idle, Speaking:
	default:
		return s.invalid("start_tts")
	}
	s.phase = Speaking
	s.stream = h
	s.lastActivity = time.Now()
	return nil
}

// EndSpeaking releases the stream handle and returns to Idle if the given
// handle is still the active one. A stale handle (already replaced by a newer
// stream) is ignored, so a finished predecessor cannot clobber its successor.
func (s *Session) EndSpeaking(h StreamHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != h {
		return
	}
	s.stream = nil
	if s.phase == Speaking {
		s.phase = Idle
	}
	s.lastActivity = time.Now()
}

// Fail marks the session Errored. The error phase is transient: once the
// failure has been reported to the client, Recover returns the session to
// Idle. No inbound acknowledgement exists on the wire.
func (s *Session) Fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = Errored
	s.audioIn = nil
	s.audioFormat = ""
	s.lastActivity = time.Now()
}

// Recover transitions Errored → Idle.
func (s *Session) Recover() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == Errored {
		s.phase = Idle
	}
}

// Stream returns the active stream handle, nil unless Speaking.
func (s *Session) Stream() StreamHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

// UpdateBufferStatus records the client-reported playback buffer depth and
// underrun counter. Returns true if underruns increased, which the scheduler
// treats as a signal to slow down.
func (s *Session) UpdateBufferStatus(frames, underruns int) (underrunGrew bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	underrunGrew = underruns > s.underruns
	s.bufferFrames = frames
	s.underruns = underruns
	s.lastActivity = time.Now()
	return underrunGrew
}

// BufferFrames returns the last reported client buffer depth.
func (s *Session) BufferFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bufferFrames
}

// Touch updates the activity timestamp. Heartbeats call this.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// Snapshot is a point-in-time copy of a session's state for diagnostics.
type Snapshot struct {
	ID           string    `json:"id"`
	Phase        Phase     `json:"phase"`
	AudioBytes   int       `json:"audio_bytes"`
	AudioFormat  string    `json:"audio_format,omitempty"`
	Streaming    bool      `json:"streaming"`
	BufferFrames int       `json:"buffer_frames"`
	Underruns    int       `json:"underruns"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:           s.ID,
		Phase:        s.phase,
		AudioBytes:   len(s.audioIn),
		AudioFormat:  s.audioFormat,
		Streaming:    s.stream != nil,
		BufferFrames: s.bufferFrames,
		Underruns:    s.underruns,
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
	}
}

// LastActivity returns the most recent activity timestamp.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}
