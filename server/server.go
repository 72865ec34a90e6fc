// Package server exposes the arena over websockets and a small JSON API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/brensch/snekarena/arena"
)

const defaultMaxMessageSize = 4096

// Options configures the HTTP surface.
type Options struct {
	// AllowedOrigins restricts websocket upgrades by Origin host. Empty
	// allows every origin.
	AllowedOrigins []string
	MaxMessageSize int64
	RequestTimeout time.Duration
}

// Server holds shared state for HTTP handlers.
type Server struct {
	arena    *arena.Arena
	hub      *Hub
	log      *slog.Logger
	opts     Options
	upgrader websocket.Upgrader
}

// New creates a Server. hub must be the publisher the arena was built with.
func New(a *arena.Arena, hub *Hub, log *slog.Logger, opts Options) *Server {
	if log == nil {
		log = slog.Default()
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = defaultMaxMessageSize
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	s := &Server{
		arena: a,
		hub:   hub,
		log:   log,
		opts:  opts,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// RegisterRoutes sets up all routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /game/{id}", s.handleGame)
	mux.HandleFunc("GET /api/sessions", s.handleSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSession)
	mux.HandleFunc("GET /healthz", s.handleHealth)
}

// Handler returns a mux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.log.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := newClient(uuid.NewString(), conn)
	s.hub.register(c)
	s.log.Info("connection opened", "conn", c.id, "remote", r.RemoteAddr)

	go s.writePump(c)
	s.hub.Send(c.id, arena.Event{Type: arena.EventConnected, Data: arena.Connected{ID: c.id}})
	go s.readPump(c)
}

// handleGame resolves a share link. The session is created when missing.
func (s *Server) handleGame(w http.ResponseWriter, r *http.Request) {
	withCORS(w, r)
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		http.Error(w, "missing game id", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()

	created, err := s.arena.Ensure(ctx, id)
	if err != nil {
		s.writeArenaError(w, err)
		return
	}
	writeJSON(w, GameResponse{GameID: id, Created: created})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	withCORS(w, r)
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()

	sessions, err := s.arena.Sessions(ctx)
	if err != nil {
		s.writeArenaError(w, err)
		return
	}
	if sessions == nil {
		sessions = []arena.SessionSummary{}
	}
	writeJSON(w, SessionsResponse{Total: len(sessions), Sessions: sessions, Connections: s.hub.Len()})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	withCORS(w, r)
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()

	snap, ok, err := s.arena.Snapshot(ctx, r.PathValue("id"))
	if err != nil {
		s.writeArenaError(w, err)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, snap)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) writeArenaError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, arena.ErrClosed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
	default:
		s.log.Error("arena query failed", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if strings.EqualFold(strings.TrimSpace(allowed), u.Host) {
			return true
		}
	}
	return false
}
