package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/websocket"
)

// Transport delivers outbound events to one connected client. Implementations
// must be safe for concurrent use: the turn machine and the frame scheduler
// write from different goroutines.
type Transport interface {
	// Send delivers a named text event with a JSON payload.
	Send(ctx context.Context, event string, payload any) error

	// SendBinary delivers one raw binary message. A PCM frame is always a
	// single message, never split.
	SendBinary(ctx context.Context, data []byte) error
}

// wsTransport is the production Transport over a websocket connection. A
// mutex serialises writes; the websocket package forbids concurrent writers.
type wsTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

var _ Transport = (*wsTransport)(nil)

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Send(ctx context.Context, event string, payload any) error {
	raw, err := EncodeEvent(event, payload)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.conn.Write(ctx, websocket.MessageText, raw); err != nil {
		return fmt.Errorf("gateway: write %s: %w", event, err)
	}
	return nil
}

func (t *wsTransport) SendBinary(ctx context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.conn.Write(ctx, websocket.MessageBinary, data); err != nil {
		return fmt.Errorf("gateway: write frame: %w", err)
	}
	return nil
}
