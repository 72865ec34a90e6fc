package server

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/brensch/snekarena/arena"
)

// Hub tracks live websocket clients and the session room each one is
// subscribed to. It implements arena.Publisher.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[string]*client
	rooms   map[string]map[string]*client
}

var _ arena.Publisher = (*Hub)(nil)

// NewHub returns an empty hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log,
		clients: make(map[string]*client),
		rooms:   make(map[string]map[string]*client),
	}
}

// Send delivers ev to a single connection. Unknown connections are ignored.
func (h *Hub) Send(connID string, ev arena.Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("marshal event", "type", ev.Type, "err", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.clients[connID]; ok {
		h.push(c, b)
	}
}

// Broadcast delivers ev to every connection in the session room. The payload
// is marshalled once.
func (h *Hub) Broadcast(sessionID string, ev arena.Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("marshal event", "type", ev.Type, "err", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[sessionID] {
		h.push(c, b)
	}
}

// Subscribe moves a connection into the room for sessionID.
func (h *Hub) Subscribe(connID, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	h.leaveRoomLocked(c)
	room, ok := h.rooms[sessionID]
	if !ok {
		room = make(map[string]*client)
		h.rooms[sessionID] = room
	}
	room[c.id] = c
	c.room = sessionID
}

// Unsubscribe takes a connection out of its room. The connection stays
// registered for direct sends.
func (h *Hub) Unsubscribe(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[connID]; ok {
		h.leaveRoomLocked(c)
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of clients subscribed to sessionID.
func (h *Hub) RoomSize(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}

// CloseAll closes every client connection. Their read pumps then report the
// disconnects.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.closeConn()
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

// unregister removes the client and closes its send queue, which stops the
// write pump.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	h.leaveRoomLocked(c)
	delete(h.clients, c.id)
	close(c.send)
}

func (h *Hub) leaveRoomLocked(c *client) {
	if c.room == "" {
		return
	}
	if room, ok := h.rooms[c.room]; ok {
		delete(room, c.id)
		if len(room) == 0 {
			delete(h.rooms, c.room)
		}
	}
	c.room = ""
}

// push queues b without blocking. A client that cannot keep up is
// disconnected; its read pump then reports the disconnect to the arena.
// Callers hold h.mu.
func (h *Hub) push(c *client, b []byte) {
	select {
	case c.send <- b:
	default:
		h.log.Warn("client send queue full; closing", "conn", c.id)
		c.closeConn()
	}
}
