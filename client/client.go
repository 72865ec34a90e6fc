// Package client is a websocket connection to an arena server, used by the
// terminal client and the bots.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brensch/snekarena/arena"
	"github.com/brensch/snekarena/game"
)

const writeWait = 5 * time.Second

// GameStarted is delivered when a round begins.
type GameStarted struct{}

// Disconnected is the last frame delivered. Err is nil on a clean close.
type Disconnected struct {
	Err error
}

// Client is one player connection. Frames are decoded into arena payload
// types (arena.Connected, game.Snapshot, arena.GameOver, ...).
type Client struct {
	conn   *websocket.Conn
	frames chan any
	// done is closed by Close so readLoop never blocks on an unread frames
	// channel.
	done      chan struct{}
	closeOnce sync.Once
	// stopped is closed when readLoop returns.
	stopped chan struct{}

	mu sync.Mutex
}

// Dial connects to the arena websocket at url.
func Dial(ctx context.Context, url string, timeout time.Duration) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	c := &Client{conn: conn, frames: make(chan any, 64), done: make(chan struct{}), stopped: make(chan struct{})}
	go c.readLoop()
	return c, nil
}

// Frames returns decoded server frames. The channel is closed after a
// Disconnected frame, or once Close has been called.
func (c *Client) Frames() <-chan any {
	return c.frames
}

// Send writes one event envelope.
func (c *Client) Send(typ string, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(arena.Event{Type: typ, Data: data})
}

// Join asks to play in gameID.
func (c *Client) Join(gameID, name string) error {
	return c.Send(arena.EventJoinGame, map[string]string{"gameId": gameID, "playerName": name})
}

// Steer requests a heading change.
func (c *Client) Steer(d game.Direction) error {
	return c.Send(arena.EventChangeDirection, map[string]string{"direction": string(d)})
}

// Close sends a close frame, closes the connection and waits for the read
// loop to stop. Frames not yet read are dropped.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	c.mu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	err := c.conn.Close()
	c.mu.Unlock()
	<-c.stopped
	return err
}

func (c *Client) readLoop() {
	defer close(c.stopped)
	defer close(c.frames)
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = nil
			}
			c.deliver(Disconnected{Err: err})
			return
		}
		v, err := Decode(message)
		if err != nil || v == nil {
			continue
		}
		if !c.deliver(v) {
			return
		}
	}
}

func (c *Client) deliver(v any) bool {
	select {
	case c.frames <- v:
		return true
	case <-c.done:
		return false
	}
}

// Decode maps a server envelope to its payload type. Unknown event types
// decode to nil.
func Decode(b []byte) (any, error) {
	var env arena.InboundEvent
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case arena.EventConnected:
		return decodeAs[arena.Connected](env)
	case arena.EventGameCreated:
		return decodeAs[arena.GameCreated](env)
	case arena.EventGameState:
		return decodeAs[game.Snapshot](env)
	case arena.EventPlayerJoined:
		return decodeAs[arena.PlayerJoined](env)
	case arena.EventPlayerLeft:
		return decodeAs[arena.PlayerLeft](env)
	case arena.EventDirectionChanged:
		return decodeAs[arena.DirectionChanged](env)
	case arena.EventGameOver:
		return decodeAs[arena.GameOver](env)
	case arena.EventError:
		return decodeAs[arena.ErrorMessage](env)
	case arena.EventGameStarted:
		return GameStarted{}, nil
	}
	return nil, nil
}

func decodeAs[T any](env arena.InboundEvent) (any, error) {
	var v T
	if len(env.Data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return v, nil
}
