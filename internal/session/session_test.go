package session

import (
	"testing"

	"github.com/voicewire/voicewire/internal/fault"
)

type fakeHandle struct {
	cancelled bool
	done      chan struct{}
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{done: make(chan struct{})}
}

func (h *fakeHandle) Cancel()               { h.cancelled = true }
func (h *fakeHandle) Done() <-chan struct{} { return h.done }

func TestVoiceTurnPhaseFlow(t *testing.T) {
	t.Parallel()

	s := New("s1")
	if s.Phase() != Idle {
		t.Fatalf("initial phase = %s, want idle", s.Phase())
	}

	if err := s.StartListening(); err != nil {
		t.Fatalf("StartListening: %v", err)
	}
	if err := s.AppendAudio([]byte("abc"), "wav"); err != nil {
		t.Fatalf("AppendAudio: %v", err)
	}
	if err := s.AppendAudio([]byte("def"), "wav"); err != nil {
		t.Fatalf("AppendAudio: %v", err)
	}

	data, format, err := s.StopListening()
	if err != nil {
		t.Fatalf("StopListening: %v", err)
	}
	if string(data) != "abcdef" || format != "wav" {
		t.Errorf("buffer = (%q, %q), want accumulated chunks", data, format)
	}
	if s.Phase() != Transcribing {
		t.Errorf("phase = %s, want transcribing", s.Phase())
	}

	if err := s.BeginThinking(); err != nil {
		t.Fatalf("BeginThinking: %v", err)
	}
	h := newFakeHandle()
	if err := s.BeginSpeaking(h); err != nil {
		t.Fatalf("BeginSpeaking: %v", err)
	}
	if s.Stream() == nil {
		t.Error("stream handle nil while speaking")
	}

	s.EndSpeaking(h)
	if s.Phase() != Idle || s.Stream() != nil {
		t.Errorf("after EndSpeaking: phase=%s stream=%v, want idle/nil", s.Phase(), s.Stream())
	}
}

func TestCanSpeak_ByPhase(t *testing.T) {
	t.Parallel()

	s := New("s1")
	if err := s.CanSpeak(); err != nil {
		t.Errorf("CanSpeak from idle: %v", err)
	}

	if err := s.StartListening(); err != nil {
		t.Fatal(err)
	}
	if err := s.CanSpeak(); !fault.Is(err, fault.InvalidState) {
		t.Errorf("CanSpeak while listening: got %v, want InvalidState", err)
	}
	if s.Phase() != Listening {
		t.Errorf("CanSpeak mutated the phase: %s", s.Phase())
	}

	if _, _, err := s.StopListening(); err != nil {
		t.Fatal(err)
	}
	if err := s.CanSpeak(); !fault.Is(err, fault.InvalidState) {
		t.Errorf("CanSpeak while transcribing: got %v, want InvalidState", err)
	}

	if err := s.BeginThinking(); err != nil {
		t.Fatal(err)
	}
	if err := s.CanSpeak(); err != nil {
		t.Errorf("CanSpeak from thinking: %v", err)
	}

	if err := s.BeginSpeaking(newFakeHandle()); err != nil {
		t.Fatal(err)
	}
	if err := s.CanSpeak(); err != nil {
		t.Errorf("CanSpeak while speaking: %v", err)
	}
}

func TestAppendAudio_RejectedOutsideListening(t *testing.T) {
	t.Parallel()

	s := New("s1")
	err := s.AppendAudio([]byte("x"), "wav")
	if !fault.Is(err, fault.InvalidState) {
		t.Errorf("got %v, want InvalidState", err)
	}
	if s.Phase() != Idle {
		t.Errorf("phase changed on rejected event: %s", s.Phase())
	}
}

func TestAppendAudio_FormatMismatch(t *testing.T) {
	t.Parallel()

	s := New("s1")
	if err := s.StartListening(); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendAudio([]byte("x"), "wav"); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendAudio([]byte("y"), "mp3"); !fault.Is(err, fault.AudioUnsupported) {
		t.Errorf("got %v, want AudioUnsupported", err)
	}
}

func TestSubmitAudio_FromIdleAndListening(t *testing.T) {
	t.Parallel()

	s := New("s1")
	data, format, err := s.SubmitAudio([]byte("blob"), "webm")
	if err != nil {
		t.Fatalf("SubmitAudio from idle: %v", err)
	}
	if string(data) != "blob" || format != "webm" {
		t.Errorf("got (%q, %q)", data, format)
	}
	if s.Phase() != Transcribing {
		t.Errorf("phase = %s, want transcribing", s.Phase())
	}

	// Not accepted while transcribing.
	if _, _, err := s.SubmitAudio([]byte("x"), "wav"); !fault.Is(err, fault.InvalidState) {
		t.Errorf("got %v, want InvalidState", err)
	}
}

func TestCancelListening_DiscardsBuffer(t *testing.T) {
	t.Parallel()

	s := New("s1")
	s.StartListening()
	s.AppendAudio([]byte("x"), "wav")
	if err := s.CancelListening(); err != nil {
		t.Fatalf("CancelListening: %v", err)
	}
	if s.Phase() != Idle {
		t.Errorf("phase = %s, want idle", s.Phase())
	}
	if snap := s.Snapshot(); snap.AudioBytes != 0 {
		t.Errorf("buffer retained %d bytes after cancel", snap.AudioBytes)
	}
}

func TestFailRecover(t *testing.T) {
	t.Parallel()

	s := New("s1")
	s.StartListening()
	s.Fail()
	if s.Phase() != Errored {
		t.Fatalf("phase = %s, want error", s.Phase())
	}
	s.Recover()
	if s.Phase() != Idle {
		t.Errorf("phase = %s, want idle after recover", s.Phase())
	}
}

func TestEndSpeaking_StaleHandleIgnored(t *testing.T) {
	t.Parallel()

	s := New("s1")
	old := newFakeHandle()
	if err := s.BeginSpeaking(old); err != nil {
		t.Fatal(err)
	}
	// Direct TTS replaces the stream.
	replacement := newFakeHandle()
	if err := s.BeginSpeaking(replacement); err != nil {
		t.Fatal(err)
	}

	// The predecessor finishing must not end the successor's Speaking phase.
	s.EndSpeaking(old)
	if s.Phase() != Speaking || s.Stream() != StreamHandle(replacement) {
		t.Errorf("stale EndSpeaking clobbered the active stream: phase=%s", s.Phase())
	}

	s.EndSpeaking(replacement)
	if s.Phase() != Idle {
		t.Errorf("phase = %s, want idle", s.Phase())
	}
}

func TestUpdateBufferStatus(t *testing.T) {
	t.Parallel()

	s := New("s1")
	if s.BufferFrames() != DefaultBufferFrames {
		t.Errorf("default buffer frames = %d, want %d", s.BufferFrames(), DefaultBufferFrames)
	}
	if grew := s.UpdateBufferStatus(120, 0); grew {
		t.Error("underrunGrew = true with zero underruns")
	}
	if s.BufferFrames() != 120 {
		t.Errorf("BufferFrames = %d, want 120", s.BufferFrames())
	}
	if grew := s.UpdateBufferStatus(0, 3); !grew {
		t.Error("underrunGrew = false after counter increase")
	}
}

func TestStore(t *testing.T) {
	t.Parallel()

	st := NewStore()
	a, existed := st.GetOrCreate("a")
	if existed {
		t.Error("fresh session reported as existing")
	}
	if again, existed := st.GetOrCreate("a"); !existed || again != a {
		t.Error("GetOrCreate did not return the same session")
	}
	if st.Len() != 1 {
		t.Errorf("Len = %d, want 1", st.Len())
	}

	h := newFakeHandle()
	a.BeginSpeaking(h)
	st.Destroy("a")
	if !h.cancelled {
		t.Error("Destroy did not cancel the active stream")
	}
	if st.Get("a") != nil {
		t.Error("session still present after Destroy")
	}
	st.Destroy("a") // idempotent
}
