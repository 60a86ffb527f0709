// Package scheduler emits outbound PCM frames at a wall-clock-accurate
// cadence, adapting its pace to the client's reported playback buffer depth.
//
// One goroutine runs per active stream. The loop tracks an absolute emit
// deadline rather than sleeping a fixed interval, so per-frame jitter does
// not accumulate; if the loop falls more than two base delays behind, the
// deadline snaps back to the present and a drift reset is recorded.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/voicewire/voicewire/internal/fault"
	"github.com/voicewire/voicewire/internal/observe"
	"github.com/voicewire/voicewire/pkg/audio"
	"github.com/voicewire/voicewire/pkg/dsp"
	"github.com/voicewire/voicewire/pkg/provider/tts"
)

// Pacing tiers. The 16 ms default compensates for roughly 4 ms of emit-path
// overhead, yielding a true ~20 ms inter-arrival time at the client.
const (
	delayFast    = 14 * time.Millisecond // client buffer > 100 frames
	delayDefault = 16 * time.Millisecond // client buffer 40–100 frames
	delaySlow    = 20 * time.Millisecond // client buffer < 40 frames

	// DefaultFirstChunkTimeout bounds the wait for the first synthesis chunk.
	DefaultFirstChunkTimeout = 10 * time.Second
)

// baseDelay maps a client buffer depth to the pacing tier.
func baseDelay(bufferFrames int) time.Duration {
	switch {
	case bufferFrames > 100:
		return delayFast
	case bufferFrames >= 40:
		return delayDefault
	default:
		return delaySlow
	}
}

// Outcome is the terminal state of a stream.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeErrored   Outcome = "errored"
	OutcomeCancelled Outcome = "cancelled"
)

// Sink receives everything a stream emits. Implementations route to the
// originating session's transport. SendFrame must deliver the frame or fail
// within the deadline on ctx; a blocked transport is how stalls are detected.
type Sink interface {
	// TTSStarted signals that frames are about to flow.
	TTSStarted()

	// SendFrame delivers one fixed-size binary frame.
	SendFrame(ctx context.Context, frame []byte) error

	// TTSCompleted signals normal end of stream with emission counters.
	TTSCompleted(frames, bytes int, duration time.Duration)

	// TTSError signals abnormal end of stream. err carries a fault.Kind.
	TTSError(err error)
}

// Request describes a stream to start.
type Request struct {
	// SessionID identifies the owning session.
	SessionID string

	// Text is the transcript to synthesise.
	Text string

	// VoiceID selects the synthesis voice.
	VoiceID string

	// BufferFrames reports the client's current playback buffer depth. Called
	// once per frame; must be fast and safe for concurrent use.
	BufferFrames func() int

	// Sink receives frames and stream lifecycle events.
	Sink Sink
}

// Option is a functional option for a Scheduler.
type Option func(*Scheduler)

// WithFirstChunkTimeout overrides the first-chunk wait bound.
func WithFirstChunkTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		s.firstChunkTimeout = d
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(s *Scheduler) {
		s.log = log
	}
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// Scheduler starts and tracks outbound streams, one active stream per
// session. Safe for concurrent use.
type Scheduler struct {
	synth             tts.Provider
	firstChunkTimeout time.Duration
	log               *slog.Logger
	metrics           *observe.Metrics

	mu      sync.Mutex
	streams map[string]*Stream // active stream per session
}

// New creates a Scheduler backed by the given TTS provider.
func New(synth tts.Provider, opts ...Option) *Scheduler {
	s := &Scheduler{
		synth:             synth,
		firstChunkTimeout: DefaultFirstChunkTimeout,
		log:               slog.Default(),
		metrics:           nil,
		streams:           make(map[string]*Stream),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Start begins a new stream for the request's session. If the session already
// has an active stream it is cancelled, and Start waits for it to fully stop
// before the new stream emits its first frame. The returned Stream is already
// running.
func (s *Scheduler) Start(ctx context.Context, req Request) *Stream {
	streamCtx, cancel := context.WithCancel(ctx)
	st := &Stream{
		sessionID: req.SessionID,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	prev := s.streams[req.SessionID]
	s.streams[req.SessionID] = st
	s.mu.Unlock()

	go func() {
		if prev != nil {
			prev.Cancel()
			<-prev.Done()
		}
		s.run(streamCtx, st, req)
	}()
	return st
}

// Stop cancels the session's active stream, if any. Idempotent. It does not
// wait for the stream to stop.
func (s *Scheduler) Stop(sessionID string) {
	s.mu.Lock()
	st := s.streams[sessionID]
	s.mu.Unlock()
	if st != nil {
		st.Cancel()
	}
}

// NoteUnderrun forces the session's active stream to the slowest pacing tier
// until NoteRecovered is called. Called when a heartbeat reports an empty
// client buffer with a growing underrun counter.
func (s *Scheduler) NoteUnderrun(sessionID string) {
	s.mu.Lock()
	st := s.streams[sessionID]
	s.mu.Unlock()
	if st == nil {
		return
	}
	st.mu.Lock()
	forced := st.forceSlow
	st.forceSlow = true
	st.mu.Unlock()
	if !forced {
		s.metrics.PacingSlow.Add(context.Background(), 1)
		s.log.Info("pacing forced slow", "session_id", sessionID)
	}
}

// NoteRecovered lifts a forced-slow override once the client buffer has
// refilled, letting pacing follow the reported depth again.
func (s *Scheduler) NoteRecovered(sessionID string) {
	s.mu.Lock()
	st := s.streams[sessionID]
	s.mu.Unlock()
	if st == nil {
		return
	}
	st.mu.Lock()
	forced := st.forceSlow
	st.forceSlow = false
	st.mu.Unlock()
	if forced {
		s.log.Info("pacing override lifted", "session_id", sessionID)
	}
}

// release removes st from the active map if it is still the current entry.
func (s *Scheduler) release(st *Stream) {
	s.mu.Lock()
	if s.streams[st.sessionID] == st {
		delete(s.streams, st.sessionID)
	}
	s.mu.Unlock()
}

// run owns the full stream lifecycle: synthesis, conditioning, pacing, and
// the terminating event.
func (s *Scheduler) run(ctx context.Context, st *Stream, req Request) {
	defer close(st.done)
	defer s.release(st)

	ctxBg := context.Background()
	s.metrics.ActiveStreams.Add(ctxBg, 1)
	defer s.metrics.ActiveStreams.Add(ctxBg, -1)

	log := s.log.With("session_id", req.SessionID)
	started := time.Now()

	finishErr := func(err error) {
		st.setOutcome(OutcomeErrored)
		s.metrics.RecordProviderError(ctxBg, "tts", string(fault.KindOf(err)))
		log.Warn("stream errored", "error", err, "frames", st.Frames())
		req.Sink.TTSError(err)
	}

	synth, err := s.synth.Synthesize(ctx, req.Text, req.VoiceID)
	if err != nil {
		if ctx.Err() != nil {
			st.setOutcome(OutcomeCancelled)
			return
		}
		finishErr(err)
		return
	}
	// On exit, cancel the stream context first (LIFO) so the provider closes
	// its chunk channel, then drain whatever it still had buffered.
	defer audio.Drain(synth.Chunks())
	defer st.cancel()

	// Synthesis is committed; tts_started precedes every frame and every
	// terminating event, including a zero-frame completion.
	req.Sink.TTSStarted()
	log.Debug("stream started", "voice_id", req.VoiceID, "text_chars", len(req.Text))

	// The first chunk gets its own timeout; afterwards the provider's own
	// cadence governs.
	firstChunk, ok, err := s.awaitFirstChunk(ctx, synth)
	if err != nil {
		finishErr(err)
		return
	}
	if !ok {
		// Cancelled, or the provider produced nothing and closed cleanly.
		if ctx.Err() != nil {
			st.setOutcome(OutcomeCancelled)
			return
		}
		st.setOutcome(OutcomeCompleted)
		req.Sink.TTSCompleted(0, 0, time.Since(started))
		return
	}
	s.metrics.TTSFirstChunk.Record(ctxBg, time.Since(started).Seconds())

	framer := dsp.NewFramer()
	nextDeadline := time.Now().Add(st.delay(req.BufferFrames))

	emitAll := func(frames [][]byte) bool {
		for _, frame := range frames {
			if !s.emit(ctx, st, req, frame, &nextDeadline) {
				return false
			}
		}
		return true
	}

	if !emitAll(framer.Push(firstChunk)) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			st.setOutcome(OutcomeCancelled)
			log.Debug("stream cancelled", "frames", st.Frames())
			return
		case chunk, open := <-synth.Chunks():
			if !open {
				if err := synth.Err(); err != nil {
					finishErr(err)
					return
				}
				if tail, ok := framer.Flush(); ok {
					if !s.emit(ctx, st, req, tail, &nextDeadline) {
						return
					}
				}
				st.setOutcome(OutcomeCompleted)
				elapsed := time.Since(started)
				frames, bytes := st.Frames(), st.Bytes()
				s.metrics.StreamDuration.Record(ctxBg, elapsed.Seconds())
				s.metrics.RecordTurn(ctxBg, "tts", "ok")
				log.Debug("stream completed", "frames", frames, "bytes", bytes, "duration", elapsed)
				req.Sink.TTSCompleted(frames, bytes, elapsed)
				return
			}
			if !emitAll(framer.Push(chunk)) {
				return
			}
		}
	}
}

// awaitFirstChunk waits for the provider's first chunk under the first-chunk
// timeout. ok is false if the stream ended (cancel or clean close) before any
// audio arrived.
func (s *Scheduler) awaitFirstChunk(ctx context.Context, synth tts.Stream) ([]float32, bool, error) {
	timer := time.NewTimer(s.firstChunkTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, false, nil
	case <-timer.C:
		return nil, false, fault.New(fault.ProviderTimeout, "scheduler: no audio within %s", s.firstChunkTimeout)
	case chunk, open := <-synth.Chunks():
		if !open {
			if err := synth.Err(); err != nil {
				return nil, false, err
			}
			return nil, false, nil
		}
		return chunk, true, nil
	}
}

// emit sends one frame at its deadline. Returns false if the stream must
// stop; the terminating event has then already been sent (or the stream was
// cancelled, which terminates silently).
func (s *Scheduler) emit(ctx context.Context, st *Stream, req Request, frame []byte, nextDeadline *time.Time) bool {
	delay := st.delay(req.BufferFrames)

	if wait := time.Until(*nextDeadline); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			st.setOutcome(OutcomeCancelled)
			return false
		case <-timer.C:
		}
	}

	writeCtx, cancel := context.WithTimeout(ctx, 2*delay)
	err := req.Sink.SendFrame(writeCtx, frame)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			st.setOutcome(OutcomeCancelled)
			return false
		}
		st.setOutcome(OutcomeErrored)
		s.metrics.TransportStalls.Add(context.Background(), 1)
		stallErr := fault.New(fault.TransportStalled, "scheduler: frame write blocked beyond %s", 2*delay)
		s.log.Warn("transport stalled", "session_id", req.SessionID, "frames", st.Frames())
		req.Sink.TTSError(stallErr)
		return false
	}

	st.mu.Lock()
	st.framesEmitted++
	st.bytesEmitted += len(frame)
	st.mu.Unlock()
	s.metrics.FramesEmitted.Add(context.Background(), 1)

	*nextDeadline = nextDeadline.Add(delay)
	if now := time.Now(); nextDeadline.Before(now.Add(-2 * delay)) {
		// Fallen too far behind; snap back instead of bursting to catch up.
		*nextDeadline = now.Add(delay)
		s.metrics.PacingDriftResets.Add(context.Background(), 1)
	}
	return true
}

// Stream is the handle to one outbound stream. It satisfies the session
// store's stream-handle contract.
type Stream struct {
	sessionID string
	cancel    context.CancelFunc
	done      chan struct{}

	mu            sync.Mutex
	outcome       Outcome
	forceSlow     bool
	framesEmitted int
	bytesEmitted  int
}

// Cancel requests cooperative termination. Safe to call repeatedly.
func (st *Stream) Cancel() {
	st.cancel()
}

// Done is closed once the stream has fully stopped.
func (st *Stream) Done() <-chan struct{} {
	return st.done
}

// Outcome reports the terminal state. Valid once Done is closed.
func (st *Stream) Outcome() Outcome {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.outcome
}

// Frames reports frames emitted so far. Exact once Done is closed.
func (st *Stream) Frames() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.framesEmitted
}

// Bytes reports frame bytes emitted so far. Exact once Done is closed.
func (st *Stream) Bytes() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.bytesEmitted
}

func (st *Stream) setOutcome(o Outcome) {
	st.mu.Lock()
	st.outcome = o
	st.mu.Unlock()
}

// delay resolves the current pacing tier.
func (st *Stream) delay(bufferFrames func() int) time.Duration {
	st.mu.Lock()
	forced := st.forceSlow
	st.mu.Unlock()
	if forced {
		return delaySlow
	}
	if bufferFrames == nil {
		return delayDefault
	}
	return baseDelay(bufferFrames())
}
