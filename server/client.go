package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brensch/snekarena/arena"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendQueueDepth = 256
)

// client is one websocket connection. Its id is the player id in every
// session it joins.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	// room is guarded by Hub.mu.
	room string

	closeOnce sync.Once
}

func newClient(id string, conn *websocket.Conn) *client {
	return &client{
		id:   id,
		conn: conn,
		send: make(chan []byte, sendQueueDepth),
	}
}

func (c *client) closeConn() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

// readPump forwards inbound frames to the arena until the connection fails.
// It reports the disconnect exactly once.
func (s *Server) readPump(c *client) {
	defer func() {
		s.hub.unregister(c)
		s.arena.Disconnect(c.id)
		c.closeConn()
		s.log.Info("connection closed", "conn", c.id)
	}()

	c.conn.SetReadLimit(s.opts.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("websocket read error", "conn", c.id, "err", err)
			}
			return
		}

		var ev arena.InboundEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			s.log.Debug("malformed frame dropped", "conn", c.id, "err", err)
			continue
		}
		if ev.Type == "" {
			continue
		}
		if !s.arena.Deliver(c.id, ev) {
			return
		}
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConn()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.log.Debug("websocket write error", "conn", c.id, "err", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
