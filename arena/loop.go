package arena

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/brensch/snekarena/game"
	"github.com/brensch/snekarena/rules"
)

// Clock schedules the next tick of a session.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable pending tick.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// loop is the tick handle of one active session. A session is active exactly
// while it has a loop in Arena.loops.
type loop struct {
	gen   uint64
	timer Timer
	ticks int
	span  trace.Span
}

// Ticking reports whether a tick timer is armed for the session.
func (a *Arena) ticking(sessionID string) bool {
	_, ok := a.loops[sessionID]
	return ok
}

// startRound activates s. It is a no-op when the session is already active.
func (a *Arena) startRound(s *game.Session) bool {
	if s.Active {
		return false
	}
	// Clear any handle left behind so two timers never run for one session.
	a.stopLoop(s.ID, nil)

	respawned := s.Respawn()
	s.ResetFood()
	s.Active = true

	a.gen++
	l := &loop{gen: a.gen}
	_, l.span = a.tracer.Start(context.Background(), "arena.round",
		trace.WithAttributes(
			attribute.String("session.id", s.ID),
			attribute.Int("session.players", s.PlayerCount()),
		),
	)
	a.loops[s.ID] = l
	a.arm(s.ID, l)

	a.log.Info("round started", "session", s.ID, "players", s.PlayerCount(), "respawned", respawned, "food", len(s.Food))
	a.broadcast(s.ID, EventGameStarted, nil)
	return true
}

func (a *Arena) arm(sessionID string, l *loop) {
	gen := l.gen
	l.timer = a.clock.AfterFunc(a.cfg.TickInterval, func() {
		a.enqueue(tickMsg{session: sessionID, gen: gen})
	})
}

// stopLoop cancels the pending tick of a session and forgets its handle. A
// tick already queued is discarded by onTick because its generation no
// longer matches.
func (a *Arena) stopLoop(sessionID string, winner *game.Player) {
	l, ok := a.loops[sessionID]
	if !ok {
		return
	}
	if l.timer != nil {
		l.timer.Stop()
	}
	delete(a.loops, sessionID)

	if l.span != nil {
		attrs := []attribute.KeyValue{attribute.Int("round.ticks", l.ticks)}
		if winner != nil {
			attrs = append(attrs, attribute.String("round.winner", winner.ID))
		}
		l.span.SetAttributes(attrs...)
		l.span.End()
	}
}

// endRound stops the loop, deactivates s and announces the result.
func (a *Arena) endRound(s *game.Session, winner *game.Player) {
	a.stopLoop(s.ID, winner)
	s.Active = false

	var w *game.Player
	if winner != nil {
		w = winner.Clone()
		a.log.Info("round over", "session", s.ID, "winner", winner.ID, "name", winner.Name, "score", winner.Score)
	} else {
		a.log.Info("round over", "session", s.ID, "winner", nil)
	}
	a.broadcast(s.ID, EventGameOver, GameOver{Winner: w})
}

func (a *Arena) onTick(sessionID string, gen uint64) {
	l, ok := a.loops[sessionID]
	if !ok || l.gen != gen {
		a.log.Debug("stale tick dropped", "session", sessionID, "gen", gen)
		return
	}
	s, ok := a.registry.Lookup(sessionID)
	if !ok {
		a.log.Warn("tick for missing session; stopping loop", "session", sessionID)
		a.stopLoop(sessionID, nil)
		return
	}

	l.ticks++
	res := rules.Advance(s)
	for _, d := range res.Deaths {
		name := ""
		if p, ok := s.Players[d.PlayerID]; ok {
			name = p.Name
		}
		a.log.Info("player died", "session", s.ID, "player", d.PlayerID, "name", name, "cause", d.Cause, "other", d.Other)
	}
	a.broadcast(s.ID, EventGameState, s.Snapshot())

	if over, winner := rules.RoundOver(s); over {
		a.endRound(s, winner)
		return
	}
	a.arm(sessionID, l)
}
