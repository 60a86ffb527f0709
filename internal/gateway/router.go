package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/coder/websocket"

	"github.com/voicewire/voicewire/internal/fault"
)

// taskQueueSize bounds queued inbound events per session. A full queue blocks
// the read loop, which is the backpressure signal to the client.
const taskQueueSize = 64

// Router demultiplexes inbound events to client handlers. Turn events run in
// receive order on one worker goroutine per connection, so blocking provider
// calls never run on the read loop. Heartbeat, buffer-status, and stream
// cancellation are handled inline: they must stay live while a turn is in
// flight.
type Router struct {
	machine *Machine
	log     *slog.Logger
}

// NewRouter creates a Router over machine.
func NewRouter(machine *Machine, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{machine: machine, log: log}
}

// Serve runs the event loop for one connection until ctx ends or the socket
// closes. It returns nil on a clean client close.
func (r *Router) Serve(ctx context.Context, conn *websocket.Conn, client *Client) error {
	tasks := make(chan func(), taskQueueSize)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		for task := range tasks {
			task()
		}
	}()
	defer func() {
		close(tasks)
		<-workerDone
		client.Shutdown()
	}()

	for {
		typ, raw, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("gateway: read: %w", err)
		}
		if typ != websocket.MessageText {
			r.log.Warn("ignoring binary inbound message", "session_id", client.sess.ID, "bytes", len(raw))
			continue
		}

		env, err := DecodeEnvelope(raw)
		if err != nil {
			r.log.Warn("malformed inbound event", "session_id", client.sess.ID, "error", err)
			continue
		}
		r.dispatch(ctx, client, env, tasks)
	}
}

// dispatch routes one decoded event. Enqueueing blocks when the session's
// worker is saturated.
func (r *Router) dispatch(ctx context.Context, c *Client, env Envelope, tasks chan<- func()) {
	switch env.Event {
	case EvHeartbeat:
		p, err := decode[HeartbeatPayload](env)
		if err != nil {
			c.rejectInvalid(ctx, err)
			return
		}
		c.Heartbeat(ctx, p)

	case EvBufferStatus:
		p, err := decode[BufferStatusPayload](env)
		if err != nil {
			c.rejectInvalid(ctx, err)
			return
		}
		c.BufferStatus(ctx, p)

	case EvStopTTS:
		c.StopTTS(ctx)

	case EvStartVoiceRecording:
		tasks <- func() { c.StartRecording(ctx) }

	case EvVoiceChunk:
		p, err := decode[AudioPayload](env)
		if err != nil {
			c.rejectInvalid(ctx, err)
			return
		}
		tasks <- func() { c.VoiceChunk(ctx, p) }

	case EvVoiceData:
		p, err := decode[AudioPayload](env)
		if err != nil {
			c.rejectInvalid(ctx, err)
			return
		}
		tasks <- func() { c.VoiceData(ctx, p) }

	case EvStopVoiceRecording:
		tasks <- func() { c.StopRecording(ctx) }

	case EvCancelVoiceInput:
		tasks <- func() { c.CancelVoiceInput(ctx) }

	case EvTextInput:
		p, err := decode[TextPayload](env)
		if err != nil {
			c.rejectInvalid(ctx, err)
			return
		}
		tasks <- func() { c.TextInput(ctx, p) }

	case EvStartTTS:
		p, err := decode[StartTTSPayload](env)
		if err != nil {
			c.rejectInvalid(ctx, err)
			return
		}
		tasks <- func() { c.StartTTS(ctx, p) }

	case EvClearConversation:
		tasks <- func() { c.ClearConversation(ctx) }

	default:
		r.log.Warn("unknown inbound event", "session_id", c.sess.ID, "event", env.Event)
	}
}

// decode parses an event payload into its typed form. A missing payload
// decodes to the zero value.
func decode[T any](env Envelope) (T, error) {
	var p T
	if len(env.Data) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(env.Data, &p); err != nil {
		var zero T
		return zero, fault.Wrap(fault.InvalidState,
			fmt.Errorf("gateway: bad %s payload: %w", env.Event, err))
	}
	return p, nil
}
