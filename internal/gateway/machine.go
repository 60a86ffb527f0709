// Package gateway exposes the voice pipeline over a persistent event socket:
// it routes inbound client events to the per-session turn machine and fans
// outbound events and PCM frames back to the originating client.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/voicewire/voicewire/internal/archive"
	"github.com/voicewire/voicewire/internal/conversation"
	"github.com/voicewire/voicewire/internal/fault"
	"github.com/voicewire/voicewire/internal/observe"
	"github.com/voicewire/voicewire/internal/scheduler"
	"github.com/voicewire/voicewire/internal/session"
	"github.com/voicewire/voicewire/pkg/provider/llm"
	"github.com/voicewire/voicewire/pkg/provider/stt"
)

// Worker-pool defaults. Provider calls block on the network and must never
// run on the socket read loop; these bound how many run at once.
const (
	defaultSTTWorkers = 4
	defaultLLMWorkers = 8
)

// promptContextTurns is how many recent turns prime the transcriber's
// recognition hint.
const promptContextTurns = 3

// MachineOption is a functional option for a Machine.
type MachineOption func(*Machine)

// WithSTTTimeout bounds each transcription call.
func WithSTTTimeout(d time.Duration) MachineOption {
	return func(m *Machine) { m.sttTimeout = d }
}

// WithVoiceID sets the default synthesis voice.
func WithVoiceID(id string) MachineOption {
	return func(m *Machine) { m.voiceID = id }
}

// WithArchive enables asynchronous turn persistence.
func WithArchive(a *archive.Archive) MachineOption {
	return func(m *Machine) { m.archive = a }
}

// WithConversationOptions sets the options applied to each new per-session
// conversation manager.
func WithConversationOptions(opts ...conversation.Option) MachineOption {
	return func(m *Machine) { m.convOpts = opts }
}

// WithWorkers overrides the STT and LLM worker-pool sizes.
func WithWorkers(sttWorkers, llmWorkers int64) MachineOption {
	return func(m *Machine) {
		m.sttSem = semaphore.NewWeighted(sttWorkers)
		m.llmSem = semaphore.NewWeighted(llmWorkers)
	}
}

// WithMachineLogger sets the structured logger. Defaults to slog.Default.
func WithMachineLogger(log *slog.Logger) MachineOption {
	return func(m *Machine) { m.log = log }
}

// WithMachineMetrics sets the metrics instance. Defaults to
// observe.DefaultMetrics.
func WithMachineMetrics(met *observe.Metrics) MachineOption {
	return func(m *Machine) { m.metrics = met }
}

// Machine drives conversation turns: transcription, reply generation, and
// speech synthesis. One Machine serves all sessions; per-session state lives
// on the [Client] handles it creates.
type Machine struct {
	transcriber stt.Provider
	model       llm.Provider
	sched       *scheduler.Scheduler

	voiceID    string
	sttTimeout time.Duration
	convOpts   []conversation.Option
	archive    *archive.Archive

	sttSem *semaphore.Weighted
	llmSem *semaphore.Weighted

	log     *slog.Logger
	metrics *observe.Metrics

	// managers holds each session's conversation history, keyed by session
	// ID, so history survives a socket reconnect to the same session.
	mu       sync.Mutex
	managers map[string]*conversation.Manager
}

// NewMachine creates a Machine over the three providers and the frame
// scheduler.
func NewMachine(transcriber stt.Provider, model llm.Provider, sched *scheduler.Scheduler, opts ...MachineOption) *Machine {
	m := &Machine{
		transcriber: transcriber,
		model:       model,
		sched:       sched,
		sttTimeout:  30 * time.Second,
		sttSem:      semaphore.NewWeighted(defaultSTTWorkers),
		llmSem:      semaphore.NewWeighted(defaultLLMWorkers),
		log:         slog.Default(),
		metrics:     nil,
		managers:    make(map[string]*conversation.Manager),
	}
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	return m
}

// Client binds one session to its transport and conversation history. All
// event handlers run on the session's worker goroutine, so they never race
// each other; only Heartbeat and BufferStatus may be called concurrently.
type Client struct {
	m    *Machine
	sess *session.Session
	mgr  *conversation.Manager
	tr   Transport
	log  *slog.Logger
}

// NewClient creates the per-session handle for sess, speaking over tr. A
// reconnect to the same session ID reuses the session's conversation history.
func (m *Machine) NewClient(sess *session.Session, tr Transport) *Client {
	return &Client{
		m:    m,
		sess: sess,
		mgr:  m.manager(sess.ID),
		tr:   tr,
		log:  m.log.With("session_id", sess.ID),
	}
}

// manager returns the session's conversation manager, creating it on first
// attach.
func (m *Machine) manager(sessionID string) *conversation.Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mgr, ok := m.managers[sessionID]; ok {
		return mgr
	}
	mgr := conversation.NewManager(m.model, m.convOpts...)
	m.managers[sessionID] = mgr
	return mgr
}

// Forget releases a destroyed session's conversation history.
func (m *Machine) Forget(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.managers, sessionID)
}

// send delivers an outbound event, logging delivery failures. A failed event
// send is not fatal to the session; the read loop notices a dead socket.
func (c *Client) send(ctx context.Context, event string, payload any) {
	if err := c.tr.Send(ctx, event, payload); err != nil {
		c.log.Warn("event send failed", "event", event, "error", err)
	}
}

// rejectInvalid acknowledges an event that is not valid in the current phase.
// The session's phase does not change.
func (c *Client) rejectInvalid(ctx context.Context, err error) {
	c.send(ctx, EvTranscriptionError, ErrorPayload{
		Error: err.Error(),
		Kind:  string(fault.KindOf(err)),
	})
}

// failTurn reports a turn failure on event, returns the session to Idle, and
// records metrics.
func (c *Client) failTurn(ctx context.Context, event, input string, err error) {
	kind := fault.KindOf(err)
	c.log.Warn("turn failed", "input", input, "kind", kind, "error", err)
	c.send(ctx, event, ErrorPayload{Error: err.Error(), Kind: string(kind)})
	c.sess.Fail()
	c.sess.Recover()
	c.m.metrics.RecordTurn(ctx, input, "error")
}

// StartRecording handles start_voice_recording.
func (c *Client) StartRecording(ctx context.Context) {
	if err := c.sess.StartListening(); err != nil {
		c.rejectInvalid(ctx, err)
		return
	}
	c.send(ctx, EvVoiceRecordingStarted, Empty{})
}

// VoiceChunk handles voice_chunk. A legacy final chunk also closes the
// recording.
func (c *Client) VoiceChunk(ctx context.Context, p AudioPayload) {
	if err := c.sess.AppendAudio(p.Data, p.Format); err != nil {
		c.rejectInvalid(ctx, err)
		return
	}
	if p.IsFinal {
		c.StopRecording(ctx)
	}
}

// StopRecording handles stop_voice_recording: it closes the buffer and runs
// the voice turn.
func (c *Client) StopRecording(ctx context.Context) {
	data, format, err := c.sess.StopListening()
	if err != nil {
		c.rejectInvalid(ctx, err)
		return
	}
	c.voiceTurn(ctx, data, format)
}

// VoiceData handles voice_data: a complete utterance in one event.
func (c *Client) VoiceData(ctx context.Context, p AudioPayload) {
	data, format, err := c.sess.SubmitAudio(p.Data, p.Format)
	if err != nil {
		c.rejectInvalid(ctx, err)
		return
	}
	c.voiceTurn(ctx, data, format)
}

// CancelVoiceInput handles cancel_voice_input. The buffered audio is
// discarded and no transcription event follows.
func (c *Client) CancelVoiceInput(ctx context.Context) {
	if err := c.sess.CancelListening(); err != nil {
		c.rejectInvalid(ctx, err)
	}
}

// TextInput handles conversation_text_input.
func (c *Client) TextInput(ctx context.Context, p TextPayload) {
	text := strings.TrimSpace(p.Text)
	if text == "" {
		c.rejectInvalid(ctx, fault.New(fault.AudioEmpty, "gateway: empty text input"))
		return
	}
	if err := c.sess.BeginThinking(); err != nil {
		c.rejectInvalid(ctx, err)
		return
	}
	c.converse(ctx, "text", text)
}

// StartTTS handles start_tts: literal text straight to synthesis, bypassing
// conversation memory.
func (c *Client) StartTTS(ctx context.Context, p StartTTSPayload) {
	text := strings.TrimSpace(p.Text)
	if text == "" {
		c.send(ctx, EvTTSError, ErrorPayload{
			Error: "gateway: empty tts text",
			Kind:  string(fault.AudioEmpty),
		})
		return
	}
	voice := p.VoiceID
	if voice == "" {
		voice = c.m.voiceID
	}
	c.speak(ctx, text, voice)
}

// StopTTS handles stop_tts. The stream terminates silently; the session
// returns to Idle once the stream handle reports done.
func (c *Client) StopTTS(ctx context.Context) {
	c.m.sched.Stop(c.sess.ID)
}

// ClearConversation handles clear_conversation: history resets, the system
// prompt stays pinned.
func (c *Client) ClearConversation(ctx context.Context) {
	c.mgr.Memory().Reset()
	c.send(ctx, EvConversationCleared, Empty{})
}

// Heartbeat handles heartbeat. Safe to call from the read loop directly.
func (c *Client) Heartbeat(ctx context.Context, p HeartbeatPayload) {
	c.sess.Touch()
	c.send(ctx, EvHeartbeatAck, HeartbeatPayload{T: p.T})
}

// BufferStatus handles audio_buffer_status. Safe to call from the read loop
// directly; the report mutates session backpressure state atomically and is
// never surfaced to turn logic. An empty buffer with a growing underrun
// counter forces the active stream to the slowest pacing tier; a buffer
// refilled past the fast-tier threshold lifts the override.
func (c *Client) BufferStatus(ctx context.Context, p BufferStatusPayload) {
	grew := c.sess.UpdateBufferStatus(p.BufferFrames, p.UnderrunCount)
	switch {
	case p.BufferFrames == 0 && grew:
		c.m.sched.NoteUnderrun(c.sess.ID)
	case p.BufferFrames > 100:
		c.m.sched.NoteRecovered(c.sess.ID)
	}
}

// Shutdown cancels any active stream for the client. Called on detach.
func (c *Client) Shutdown() {
	c.m.sched.Stop(c.sess.ID)
}

// voiceTurn runs transcription and, on success, the conversation turn. The
// session is already Transcribing.
func (c *Client) voiceTurn(ctx context.Context, data []byte, formatName string) {
	c.send(ctx, EvTranscriptionStarted, Empty{})

	res, err := c.transcribe(ctx, data, formatName)
	if err != nil {
		c.m.metrics.RecordProviderError(ctx, "stt", string(fault.KindOf(err)))
		c.failTurn(ctx, EvTranscriptionError, "voice", err)
		return
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		c.failTurn(ctx, EvTranscriptionError, "voice",
			fault.New(fault.AudioEmpty, "gateway: transcription produced no text"))
		return
	}

	c.send(ctx, EvTranscriptionComplete, TranscriptPayload{
		Text:     text,
		Language: res.Language,
		Duration: res.Duration,
	})

	if err := c.sess.BeginThinking(); err != nil {
		c.rejectInvalid(ctx, err)
		return
	}
	c.converse(ctx, "voice", text)
}

// transcribe dispatches one STT call under the worker pool and the STT time
// budget.
func (c *Client) transcribe(ctx context.Context, data []byte, formatName string) (stt.Result, error) {
	if len(data) == 0 {
		return stt.Result{}, fault.New(fault.AudioEmpty, "gateway: no audio recorded")
	}
	format, err := stt.ParseFormat(formatName)
	if err != nil {
		return stt.Result{}, err
	}

	if err := c.m.sttSem.Acquire(ctx, 1); err != nil {
		return stt.Result{}, fmt.Errorf("gateway: stt queue: %w", err)
	}
	defer c.m.sttSem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, c.m.sttTimeout)
	defer cancel()

	started := time.Now()
	var res stt.Result
	if pt, ok := c.m.transcriber.(stt.PromptTranscriber); ok {
		// Recent dialogue primes the recogniser with names and topics already
		// in play. The hint is scoped to this call.
		hint := c.mgr.Memory().RecentText(promptContextTurns)
		res, err = pt.TranscribeWithPrompt(callCtx, data, format, hint)
	} else {
		res, err = c.m.transcriber.Transcribe(callCtx, data, format)
	}
	c.m.metrics.STTDuration.Record(ctx, time.Since(started).Seconds())
	if err != nil {
		return stt.Result{}, err
	}
	c.log.Debug("transcription complete",
		"chars", len(res.Text), "language", res.Language, "audio_s", res.Duration)
	return res, nil
}

// converse generates the reply for userText and speaks it. The session is
// already Thinking. input tags metrics as "voice" or "text".
func (c *Client) converse(ctx context.Context, input, userText string) {
	c.send(ctx, EvUserMessage, TextPayload{Text: userText})

	if err := c.m.llmSem.Acquire(ctx, 1); err != nil {
		c.failTurn(ctx, EvTranscriptionError, input, fmt.Errorf("gateway: llm queue: %w", err))
		return
	}

	started := time.Now()
	reply, degraded, err := c.mgr.ReplyFunc(ctx, userText, func() {
		c.send(ctx, EvAIThinking, Empty{})
	})
	c.m.llmSem.Release(1)
	c.m.metrics.LLMDuration.Record(ctx, time.Since(started).Seconds())

	if err != nil && !degraded {
		// Reply never entered generation (cancelled context or blank input).
		c.failTurn(ctx, EvTranscriptionError, input, err)
		return
	}

	status := "ok"
	if degraded {
		status = "degraded"
		c.m.metrics.RecordProviderError(ctx, "llm", string(fault.KindOf(err)))
	}
	c.m.metrics.RecordTurn(ctx, input, status)

	c.send(ctx, EvAIResponseComplete, TextPayload{Text: reply})

	if !degraded && c.m.archive != nil {
		now := time.Now()
		c.m.archive.Store(archive.Record{SessionID: c.sess.ID, Role: "user", Content: userText, CreatedAt: now})
		c.m.archive.Store(archive.Record{SessionID: c.sess.ID, Role: "assistant", Content: reply, CreatedAt: now})
	}

	// The reply is always spoken, apology included: clients get the text
	// event above as an advisory and the PCM stream as the primary output.
	c.speak(ctx, reply, c.m.voiceID)
}

// speak starts (or replaces) the outbound stream for text and parks a monitor
// that returns the session to Idle when the stream stops. The phase is
// checked before any synthesis starts, so a rejected request emits nothing.
func (c *Client) speak(ctx context.Context, text, voiceID string) {
	if err := c.sess.CanSpeak(); err != nil {
		c.rejectInvalid(ctx, err)
		return
	}
	h := c.m.sched.Start(ctx, scheduler.Request{
		SessionID:    c.sess.ID,
		Text:         text,
		VoiceID:      voiceID,
		BufferFrames: c.sess.BufferFrames,
		Sink:         &clientSink{c: c, ctx: ctx},
	})
	if err := c.sess.BeginSpeaking(h); err != nil {
		h.Cancel()
		c.rejectInvalid(ctx, err)
		return
	}
	go func() {
		<-h.Done()
		c.sess.EndSpeaking(h)
	}()
}

// clientSink routes one stream's output to the owning client's transport.
type clientSink struct {
	c   *Client
	ctx context.Context // connection lifetime; bounds event sends
}

var _ scheduler.Sink = (*clientSink)(nil)

func (s *clientSink) TTSStarted() {
	s.c.send(s.ctx, EvTTSStarted, Empty{})
}

func (s *clientSink) SendFrame(ctx context.Context, frame []byte) error {
	return s.c.tr.SendBinary(ctx, frame)
}

func (s *clientSink) TTSCompleted(frames, bytes int, duration time.Duration) {
	s.c.send(s.ctx, EvTTSCompleted, TTSCompletedPayload{
		Frames:     frames,
		Bytes:      bytes,
		DurationMS: duration.Milliseconds(),
	})
}

func (s *clientSink) TTSError(err error) {
	s.c.send(s.ctx, EvTTSError, ErrorPayload{
		Error: err.Error(),
		Kind:  string(fault.KindOf(err)),
	})
}
