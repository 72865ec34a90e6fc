package arena

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/brensch/snekarena/game"
)

// recreatedMessage is sent when a connection asks for a session that no
// longer exists.
const recreatedMessage = "game was recreated; join again to continue"

func (a *Arena) handleInbound(connID string, ev InboundEvent) {
	_, span := a.tracer.Start(context.Background(), "arena.event."+ev.Type,
		trace.WithAttributes(attribute.String("conn.id", connID)),
	)
	defer span.End()

	switch ev.Type {
	case EventCreateGame:
		a.handleCreate(connID, ev.Data)
	case EventJoinGame:
		a.handleJoin(connID, ev.Data)
	case EventStartGame:
		a.handleStart(connID)
	case EventChangeDirection:
		a.handleDirection(connID, ev.Data)
	case EventRequestGameState:
		a.handleResync(connID)
	default:
		a.log.Debug("unknown event", "conn", connID, "type", ev.Type)
	}
}

func (a *Arena) handleCreate(connID string, data json.RawMessage) {
	var req createRequest
	if err := decodeLoose(data, &req.PlayerName, &req); err != nil {
		a.log.Debug("bad createGame payload", "conn", connID, "err", err)
	}
	s := a.registry.Create()
	a.log.Info("session created", "session", s.ID, "via", "create", "conn", connID, "by", req.PlayerName)
	a.send(connID, EventGameCreated, GameCreated{GameID: s.ID})
}

func (a *Arena) handleJoin(connID string, data json.RawMessage) {
	var req joinRequest
	if err := decode(data, &req); err != nil {
		a.log.Debug("bad joinGame payload", "conn", connID, "err", err)
		return
	}
	if req.GameID == "" {
		return
	}

	// A connection plays in one session at a time.
	if prev, ok := a.conns[connID]; ok && prev != req.GameID {
		a.pub.Unsubscribe(connID)
		delete(a.conns, connID)
		a.leave(prev, connID)
	}

	s, created := a.registry.GetOrCreate(req.GameID)
	if created {
		a.log.Info("session created", "session", s.ID, "via", "join")
	}

	p, joined := s.Join(connID, req.PlayerName)
	if !joined {
		a.log.Debug("player already joined", "session", s.ID, "player", connID)
		a.send(connID, EventGameState, s.Snapshot())
		return
	}

	a.conns[connID] = s.ID
	a.pub.Subscribe(connID, s.ID)
	a.log.Info("player joined", "session", s.ID, "player", connID, "name", p.Name, "players", s.PlayerCount())

	a.broadcast(s.ID, EventGameState, s.Snapshot())
	a.broadcast(s.ID, EventPlayerJoined, PlayerJoined{Player: p.Clone(), Players: s.PlayersSnapshot()})

	if s.PlayerCount() >= 2 && !s.Active {
		a.startRound(s)
	}
}

func (a *Arena) handleStart(connID string) {
	s, ok := a.boundSession(connID)
	if !ok {
		return
	}
	if s.Active {
		a.log.Debug("start ignored; round in progress", "session", s.ID, "conn", connID)
		return
	}
	if s.PlayerCount() == 0 {
		return
	}
	a.startRound(s)
}

func (a *Arena) handleDirection(connID string, data json.RawMessage) {
	var req directionRequest
	if err := decodeLoose(data, &req.Direction, &req); err != nil {
		a.log.Debug("bad changeDirection payload", "conn", connID, "err", err)
		return
	}
	d, ok := game.ParseDirection(req.Direction)
	if !ok {
		return
	}
	s, ok := a.boundSession(connID)
	if !ok {
		return
	}
	if !s.SetDirection(connID, d) {
		return
	}
	a.broadcast(s.ID, EventDirectionChanged, DirectionChanged{PlayerID: connID, Direction: d})
}

func (a *Arena) handleResync(connID string) {
	id, bound := a.conns[connID]
	if !bound {
		return
	}
	if s, ok := a.registry.Lookup(id); ok {
		a.send(connID, EventGameState, s.Snapshot())
		return
	}

	// The recreated session is empty; the client must join it again.
	delete(a.conns, connID)
	a.registry.GetOrCreate(id)
	a.log.Warn("bound session missing; recreated", "session", id, "conn", connID)
	a.send(connID, EventError, ErrorMessage{Message: recreatedMessage})
}

func (a *Arena) handleDisconnect(connID string) {
	id, bound := a.conns[connID]
	delete(a.conns, connID)
	if !bound {
		return
	}
	a.leave(id, connID)
}

// leave removes connID from the session, destroying the session when it
// empties and ending an active round when a single player remains.
func (a *Arena) leave(sessionID, connID string) {
	s, ok := a.registry.Lookup(sessionID)
	if !ok {
		return
	}
	p, ok := s.Remove(connID)
	if !ok {
		return
	}
	a.log.Info("player left", "session", s.ID, "player", connID, "name", p.Name, "players", s.PlayerCount())

	if s.PlayerCount() == 0 {
		a.stopLoop(s.ID, nil)
		s.Active = false
		a.registry.Remove(s.ID)
		a.log.Info("session destroyed", "session", s.ID)
		return
	}

	a.broadcast(s.ID, EventPlayerLeft, PlayerLeft{PlayerID: connID, Players: s.PlayersSnapshot()})

	if s.PlayerCount() == 1 && s.Active {
		for _, last := range s.Players {
			a.endRound(s, last)
		}
	}
}

func (a *Arena) boundSession(connID string) (*game.Session, bool) {
	id, ok := a.conns[connID]
	if !ok {
		return nil, false
	}
	return a.registry.Lookup(id)
}
