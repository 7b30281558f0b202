package stager

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// Bridge is the websocket transport behind the side channel. It dials the
// companion endpoint that actually downloads or decodes files, writes
// outbound envelopes, and pumps inbound messages into a dispatcher. The
// correlation core never touches the socket directly.
type Bridge struct {
	endpoint string
	mu       sync.Mutex
	conn     *websocket.Conn
}

// NewBridge builds a bridge for the given ws:// or wss:// endpoint.
func NewBridge(endpoint string) *Bridge {
	return &Bridge{endpoint: endpoint}
}

// Connect dials the companion endpoint. Reconnecting replaces any previous
// connection.
func (b *Bridge) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial side channel %s: %w", b.endpoint, err)
	}

	b.mu.Lock()
	old := b.conn
	b.conn = conn
	b.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	log.Printf("side channel connected to %s", b.endpoint)
	return nil
}

// Send writes one envelope. Fails when the bridge is not connected; the
// stager treats that as a resolved-empty staging attempt.
func (b *Bridge) Send(env Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return errors.New("side channel not connected")
	}
	return b.conn.WriteJSON(env)
}

// Pump reads inbound envelopes until the connection closes or ctx ends,
// handing each to dispatch. Malformed frames end the pump; correlation-level
// filtering happens in the dispatcher.
func (b *Bridge) Pump(ctx context.Context, dispatch func(Envelope)) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return errors.New("side channel not connected")
	}

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("side channel read: %w", err)
		}
		dispatch(env)
	}
}

// Close tears the connection down.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}
