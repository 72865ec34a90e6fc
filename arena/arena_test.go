package arena

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/brensch/snekarena/game"
)

type fakeTimer struct {
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	live := !t.stopped && !t.fired
	t.stopped = true
	return live
}

// fakeClock records scheduled ticks; tests fire them explicitly.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(_ time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) pending() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fire runs every pending timer once.
func (c *fakeClock) fire() int {
	timers := c.pending()
	for _, t := range timers {
		t.fired = true
		t.f()
	}
	return len(timers)
}

type delivery struct {
	conn    string
	session string
	ev      Event
	// to is the room membership when a broadcast was made.
	to map[string]bool
}

type recorder struct {
	mu   sync.Mutex
	out  []delivery
	subs map[string]string
}

func newRecorder() *recorder {
	return &recorder{subs: make(map[string]string)}
}

func (r *recorder) Send(connID string, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = append(r.out, delivery{conn: connID, ev: ev})
}

func (r *recorder) Broadcast(sessionID string, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	to := make(map[string]bool)
	for conn, room := range r.subs {
		if room == sessionID {
			to[conn] = true
		}
	}
	r.out = append(r.out, delivery{session: sessionID, ev: ev, to: to})
}

func (r *recorder) Subscribe(connID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[connID] = sessionID
}

func (r *recorder) Unsubscribe(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, connID)
}

// recipients returns who was in the room for each broadcast of typ.
func (r *recorder) recipients(sessionID, typ string) []map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []map[string]bool
	for _, d := range r.out {
		if d.session == sessionID && d.ev.Type == typ {
			out = append(out, d.to)
		}
	}
	return out
}

func (r *recorder) broadcasts(sessionID, typ string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, d := range r.out {
		if d.session == sessionID && d.ev.Type == typ {
			out = append(out, d.ev)
		}
	}
	return out
}

func (r *recorder) sends(connID, typ string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, d := range r.out {
		if d.conn == connID && d.ev.Type == typ {
			out = append(out, d.ev)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = nil
}

func newTestArena(t *testing.T) (*Arena, *recorder, *fakeClock) {
	t.Helper()
	rec := newRecorder()
	clk := &fakeClock{}
	a := New(rec, DefaultConfig(),
		WithClock(clk),
		WithRand(rand.New(rand.NewSource(42))),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return a, rec, clk
}

// drain dispatches every queued message on the test goroutine.
func drain(a *Arena) {
	for {
		select {
		case m := <-a.queue:
			a.dispatch(m)
		default:
			return
		}
	}
}

func deliver(t *testing.T, a *Arena, connID, typ string, data any) {
	t.Helper()
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			t.Fatalf("marshal %s payload: %v", typ, err)
		}
		raw = b
	}
	if !a.Deliver(connID, InboundEvent{Type: typ, Data: raw}) {
		t.Fatalf("deliver %s rejected", typ)
	}
	drain(a)
	checkActiveTicking(t, a)
}

func join(t *testing.T, a *Arena, connID, gameID string) {
	t.Helper()
	deliver(t, a, connID, EventJoinGame, map[string]string{"gameId": gameID, "playerName": connID})
}

func disconnect(t *testing.T, a *Arena, connID string) {
	t.Helper()
	a.Disconnect(connID)
	drain(a)
	checkActiveTicking(t, a)
}

func tick(t *testing.T, a *Arena, clk *fakeClock) {
	t.Helper()
	clk.fire()
	drain(a)
	checkActiveTicking(t, a)
}

// checkActiveTicking asserts a session is active exactly when its tick loop
// is armed.
func checkActiveTicking(t *testing.T, a *Arena) {
	t.Helper()
	for _, id := range a.registry.IDs() {
		s, _ := a.registry.Lookup(id)
		if s.Active != a.ticking(id) {
			t.Fatalf("session %s active=%v ticking=%v", id, s.Active, a.ticking(id))
		}
	}
	for id := range a.loops {
		if _, ok := a.registry.Lookup(id); !ok {
			t.Fatalf("loop armed for unregistered session %s", id)
		}
	}
}

func mustSession(t *testing.T, a *Arena, id string) *game.Session {
	t.Helper()
	s, ok := a.registry.Lookup(id)
	if !ok {
		t.Fatalf("session %s not registered", id)
	}
	return s
}

func place(s *game.Session, id string, dir game.Direction, cells ...game.Point) {
	p := s.Players[id]
	p.Segments = cells
	p.Direction = dir
	p.Alive = true
}

func cell(s *game.Session, x, y int) game.Point {
	return game.Point{X: x * s.GridSize, Y: y * s.GridSize}
}

func TestScenarioA_TwoPlayersAutoStartAndMove(t *testing.T) {
	a, rec, clk := newTestArena(t)

	join(t, a, "c1", "abc")
	s := mustSession(t, a, "abc")
	if s.Active {
		t.Fatalf("one player must not start the round")
	}
	join(t, a, "c2", "abc")
	if !s.Active || !a.ticking("abc") {
		t.Fatalf("second join should auto-start")
	}
	if n := len(rec.broadcasts("abc", EventGameStarted)); n != 1 {
		t.Fatalf("gameStarted broadcast %d times", n)
	}
	if len(clk.pending()) != 1 {
		t.Fatalf("pending ticks = %d, want 1", len(clk.pending()))
	}

	before := map[string]game.Point{}
	for id, p := range s.Players {
		before[id] = p.Head()
	}
	rec.reset()
	tick(t, a, clk)

	for id, p := range s.Players {
		if !p.Alive {
			t.Fatalf("player %s died on the first tick", id)
		}
		want := p.Direction.Step(before[id], s.GridSize)
		if p.Head() != want || p.Direction != game.Right {
			t.Fatalf("player %s head %+v, want %+v", id, p.Head(), want)
		}
	}
	if n := len(rec.broadcasts("abc", EventGameState)); n != 1 {
		t.Fatalf("gameState broadcast %d times after a tick", n)
	}
	if len(clk.pending()) != 1 {
		t.Fatalf("next tick not armed")
	}
}

func TestScenarioB_WallDeathEndsRound(t *testing.T) {
	a, rec, clk := newTestArena(t)
	join(t, a, "c1", "abc")
	join(t, a, "c2", "abc")
	s := mustSession(t, a, "abc")

	cols := s.Dimensions().Cols()
	place(s, "c1", game.Right, cell(s, cols-1, 0), cell(s, cols-2, 0), cell(s, cols-3, 0))
	place(s, "c2", game.Right, cell(s, 5, 10), cell(s, 4, 10), cell(s, 3, 10))
	s.Food = []game.Point{cell(s, 0, 20)}

	tick(t, a, clk)

	if s.Players["c1"].Alive {
		t.Fatalf("c1 should be dead after hitting the wall")
	}
	over := rec.broadcasts("abc", EventGameOver)
	if len(over) != 1 {
		t.Fatalf("gameOver broadcast %d times", len(over))
	}
	winner := over[0].Data.(GameOver).Winner
	if winner == nil || winner.ID != "c2" {
		t.Fatalf("winner = %+v, want c2", winner)
	}
	if s.Active || a.ticking("abc") || len(clk.pending()) != 0 {
		t.Fatalf("round should be stopped: active=%v ticking=%v pending=%d", s.Active, a.ticking("abc"), len(clk.pending()))
	}
}

func TestScenarioC_LastDisconnectDestroysSession(t *testing.T) {
	a, _, _ := newTestArena(t)
	join(t, a, "c1", "abc")
	old := mustSession(t, a, "abc")

	disconnect(t, a, "c1")
	if _, ok := a.registry.Lookup("abc"); ok {
		t.Fatalf("session should be removed")
	}

	s, created := a.registry.GetOrCreate("abc")
	if !created || s == old {
		t.Fatalf("lookup should build a new session")
	}
	if s.PlayerCount() != 0 || s.Active {
		t.Fatalf("new session not empty: players=%d active=%v", s.PlayerCount(), s.Active)
	}
}

func TestScenarioD_EatingFood(t *testing.T) {
	a, _, clk := newTestArena(t)
	join(t, a, "c1", "abc")
	join(t, a, "c2", "abc")
	s := mustSession(t, a, "abc")

	place(s, "c1", game.Right, cell(s, 5, 2), cell(s, 4, 2), cell(s, 3, 2))
	place(s, "c2", game.Right, cell(s, 5, 10), cell(s, 4, 10), cell(s, 3, 10))
	s.Food = []game.Point{cell(s, 6, 2), cell(s, 0, 25)}

	tick(t, a, clk)

	p := s.Players["c1"]
	if p.Score != 10 || len(p.Segments) != 4 {
		t.Fatalf("score=%d len=%d, want 10/4", p.Score, len(p.Segments))
	}
	if len(s.Food) != 2 {
		t.Fatalf("food count %d, want 2", len(s.Food))
	}
}

func TestStrayTickAfterTeardownIsDropped(t *testing.T) {
	a, rec, clk := newTestArena(t)
	join(t, a, "c1", "abc")
	join(t, a, "c2", "abc")

	stale := clk.pending()
	if len(stale) != 1 {
		t.Fatalf("expected one armed tick")
	}

	disconnect(t, a, "c1")
	disconnect(t, a, "c2")
	if _, ok := a.registry.Lookup("abc"); ok {
		t.Fatalf("session should be destroyed")
	}
	if !stale[0].stopped {
		t.Fatalf("timer should be stopped on teardown")
	}

	// The timer fires anyway, as time.AfterFunc may after Stop loses a race.
	rec.reset()
	stale[0].f()
	drain(a)
	checkActiveTicking(t, a)

	if len(rec.out) != 0 {
		t.Fatalf("stale tick produced output: %+v", rec.out)
	}
	if _, ok := a.registry.Lookup("abc"); ok {
		t.Fatalf("stale tick resurrected the session")
	}

	// A fresh session under the same id must not be advanced by the old tick.
	join(t, a, "c3", "abc")
	deliver(t, a, "c3", EventStartGame, nil)
	s := mustSession(t, a, "abc")
	head := s.Players["c3"].Head()

	stale[0].f()
	drain(a)
	if got := s.Players["c3"].Head(); got != head {
		t.Fatalf("stale tick moved the new session: %+v -> %+v", head, got)
	}
}

func TestStartGameIsIdempotent(t *testing.T) {
	a, rec, clk := newTestArena(t)
	join(t, a, "c1", "solo")

	deliver(t, a, "c1", EventStartGame, nil)
	deliver(t, a, "c1", EventStartGame, nil)

	if n := len(rec.broadcasts("solo", EventGameStarted)); n != 1 {
		t.Fatalf("gameStarted broadcast %d times", n)
	}
	if n := len(clk.pending()); n != 1 {
		t.Fatalf("pending ticks = %d, want exactly 1", n)
	}
}

func TestStartFromUnboundConnectionIgnored(t *testing.T) {
	a, rec, clk := newTestArena(t)
	deliver(t, a, "nobody", EventStartGame, nil)
	if len(rec.out) != 0 || len(clk.pending()) != 0 {
		t.Fatalf("unbound start should do nothing")
	}
}

func TestSoloPlayerDeathKeepsTicking(t *testing.T) {
	a, rec, clk := newTestArena(t)
	join(t, a, "c1", "solo")
	deliver(t, a, "c1", EventStartGame, nil)
	s := mustSession(t, a, "solo")

	place(s, "c1", game.Up, cell(s, 4, 0), cell(s, 4, 1), cell(s, 4, 2))
	rec.reset()
	tick(t, a, clk)

	if s.Players["c1"].Alive {
		t.Fatalf("player should have hit the top wall")
	}
	if !s.Active || !a.ticking("solo") {
		t.Fatalf("solo session stopped after its only player died")
	}
	if n := len(clk.pending()); n != 1 {
		t.Fatalf("want one pending tick, got %d", n)
	}
	if over := rec.broadcasts("solo", EventGameOver); len(over) != 0 {
		t.Fatalf("unexpected gameOver: %+v", over)
	}
	if states := rec.broadcasts("solo", EventGameState); len(states) != 1 {
		t.Fatalf("want one gameState, got %d", len(states))
	}
}

func TestRestartRespawnsDeadPlayers(t *testing.T) {
	a, _, clk := newTestArena(t)
	join(t, a, "c1", "abc")
	join(t, a, "c2", "abc")
	s := mustSession(t, a, "abc")

	cols := s.Dimensions().Cols()
	place(s, "c1", game.Right, cell(s, cols-1, 0), cell(s, cols-2, 0), cell(s, cols-3, 0))
	place(s, "c2", game.Right, cell(s, 5, 10), cell(s, 4, 10), cell(s, 3, 10))
	s.Players["c2"].Score = 30
	tick(t, a, clk)
	if s.Active {
		t.Fatalf("round should be over")
	}

	deliver(t, a, "c1", EventStartGame, nil)
	if !s.Active {
		t.Fatalf("startGame should begin a new round")
	}
	if p := s.Players["c1"]; !p.Alive || len(p.Segments) != game.InitialLength {
		t.Fatalf("dead player not respawned: %+v", p)
	}
	if s.Players["c2"].Score != 30 {
		t.Fatalf("scores should carry over")
	}
}

func TestJoinTwiceDoesNotDuplicate(t *testing.T) {
	a, rec, _ := newTestArena(t)
	join(t, a, "c1", "abc")
	join(t, a, "c1", "abc")

	s := mustSession(t, a, "abc")
	if s.PlayerCount() != 1 {
		t.Fatalf("players = %d, want 1", s.PlayerCount())
	}
	if n := len(rec.broadcasts("abc", EventPlayerJoined)); n != 1 {
		t.Fatalf("playerJoined broadcast %d times", n)
	}
	if n := len(rec.sends("c1", EventGameState)); n != 1 {
		t.Fatalf("repeat join should resend state, got %d", n)
	}
	if rec.subs["c1"] != "abc" {
		t.Fatalf("connection not subscribed to room")
	}
}

func TestJoinWithoutGameIDIgnored(t *testing.T) {
	a, rec, _ := newTestArena(t)
	deliver(t, a, "c1", EventJoinGame, map[string]string{"playerName": "x"})
	if a.registry.Len() != 0 || len(rec.out) != 0 {
		t.Fatalf("join without game id should be dropped")
	}
}

func TestJoinAnotherSessionLeavesThePrevious(t *testing.T) {
	a, _, _ := newTestArena(t)
	join(t, a, "c1", "first")
	join(t, a, "c1", "second")

	if _, ok := a.registry.Lookup("first"); ok {
		t.Fatalf("empty previous session should be destroyed")
	}
	if _, ok := mustSession(t, a, "second").Players["c1"]; !ok {
		t.Fatalf("player missing from the new session")
	}
}

func TestSwitchingSessionsLeavesTheOldRoomFirst(t *testing.T) {
	a, rec, _ := newTestArena(t)
	join(t, a, "c1", "first")
	join(t, a, "c2", "first")
	rec.reset()

	join(t, a, "c1", "second")

	left := rec.recipients("first", EventPlayerLeft)
	if len(left) != 1 {
		t.Fatalf("want one playerLeft in the old session, got %d", len(left))
	}
	if left[0]["c1"] || !left[0]["c2"] {
		t.Fatalf("playerLeft recipients = %v, want only c2", left[0])
	}
	for _, to := range rec.recipients("first", EventGameOver) {
		if to["c1"] {
			t.Fatalf("leaving connection got the old session's gameOver")
		}
	}
	if rec.subs["c1"] != "second" {
		t.Fatalf("c1 subscribed to %q", rec.subs["c1"])
	}
}

func TestCreateGame(t *testing.T) {
	a, rec, _ := newTestArena(t)
	deliver(t, a, "c1", EventCreateGame, "alice")

	created := rec.sends("c1", EventGameCreated)
	if len(created) != 1 {
		t.Fatalf("gameCreated sent %d times", len(created))
	}
	id := created[0].Data.(GameCreated).GameID
	if len(id) != 6 {
		t.Fatalf("game id %q", id)
	}
	s := mustSession(t, a, id)
	if s.PlayerCount() != 0 {
		t.Fatalf("creator must join explicitly")
	}
}

func TestChangeDirection(t *testing.T) {
	a, rec, _ := newTestArena(t)
	join(t, a, "c1", "abc")
	s := mustSession(t, a, "abc")

	deliver(t, a, "c1", EventChangeDirection, map[string]string{"direction": "left"})
	if s.Players["c1"].Direction != game.Right {
		t.Fatalf("reversal should be ignored")
	}
	if n := len(rec.broadcasts("abc", EventDirectionChanged)); n != 0 {
		t.Fatalf("ignored change was broadcast")
	}

	deliver(t, a, "c1", EventChangeDirection, map[string]string{"direction": "up"})
	if s.Players["c1"].Direction != game.Up {
		t.Fatalf("direction = %s, want up", s.Players["c1"].Direction)
	}

	// Bare string payloads are accepted too.
	deliver(t, a, "c1", EventChangeDirection, "left")
	if s.Players["c1"].Direction != game.Left {
		t.Fatalf("direction = %s, want left", s.Players["c1"].Direction)
	}

	deliver(t, a, "c1", EventChangeDirection, "sideways")
	if s.Players["c1"].Direction != game.Left {
		t.Fatalf("invalid direction changed heading")
	}
	if n := len(rec.broadcasts("abc", EventDirectionChanged)); n != 2 {
		t.Fatalf("directionChanged broadcast %d times, want 2", n)
	}
}

func TestRequestGameState(t *testing.T) {
	a, rec, _ := newTestArena(t)

	deliver(t, a, "c1", EventRequestGameState, nil)
	if len(rec.out) != 0 {
		t.Fatalf("unbound resync should be ignored, got %+v", rec.out)
	}

	join(t, a, "c1", "abc")
	rec.reset()
	deliver(t, a, "c1", EventRequestGameState, nil)
	if n := len(rec.sends("c1", EventGameState)); n != 1 {
		t.Fatalf("gameState sent %d times", n)
	}

	// The bound session vanished: it is recreated and the client told.
	a.registry.Remove("abc")
	rec.reset()
	deliver(t, a, "c1", EventRequestGameState, nil)
	errs := rec.sends("c1", EventError)
	if len(errs) != 1 || errs[0].Data.(ErrorMessage).Message != recreatedMessage {
		t.Fatalf("expected recreate error, got %+v", rec.out)
	}
	s := mustSession(t, a, "abc")
	if s.PlayerCount() != 0 || s.Active {
		t.Fatalf("recreated session should be empty and inactive")
	}

	// The connection is no longer bound, so it cannot start the empty session.
	if _, bound := a.conns["c1"]; bound {
		t.Fatalf("binding to the recreated session should be dropped")
	}
	rec.reset()
	deliver(t, a, "c1", EventStartGame, nil)
	if s.Active || a.ticking("abc") {
		t.Fatalf("startGame activated an empty session")
	}
	if len(rec.out) != 0 {
		t.Fatalf("startGame after recreate emitted %+v", rec.out)
	}
	deliver(t, a, "c1", EventRequestGameState, nil)
	if len(rec.out) != 0 {
		t.Fatalf("unbound resync emitted %+v", rec.out)
	}

	join(t, a, "c1", "abc")
	if s.PlayerCount() != 1 {
		t.Fatalf("rejoin should land in the recreated session")
	}
}

func TestLeaveDuringRoundEndsIt(t *testing.T) {
	a, rec, clk := newTestArena(t)
	join(t, a, "c1", "abc")
	join(t, a, "c2", "abc")

	disconnect(t, a, "c2")

	left := rec.broadcasts("abc", EventPlayerLeft)
	if len(left) != 1 || left[0].Data.(PlayerLeft).PlayerID != "c2" {
		t.Fatalf("playerLeft = %+v", left)
	}
	over := rec.broadcasts("abc", EventGameOver)
	if len(over) != 1 || over[0].Data.(GameOver).Winner.ID != "c1" {
		t.Fatalf("gameOver = %+v", over)
	}
	if len(clk.pending()) != 0 {
		t.Fatalf("timer still armed")
	}
}

func TestDisconnectUnboundIsHarmless(t *testing.T) {
	a, rec, _ := newTestArena(t)
	disconnect(t, a, "ghost")
	if len(rec.out) != 0 || a.registry.Len() != 0 {
		t.Fatalf("unbound disconnect should do nothing")
	}
}

func TestQueriesThroughDispatcher(t *testing.T) {
	a, _, _ := newTestArena(t)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- a.Run(ctx) }()

	qctx, qcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer qcancel()

	created, err := a.Ensure(qctx, "share")
	if err != nil || !created {
		t.Fatalf("Ensure = %v, %v; want created", created, err)
	}
	created, err = a.Ensure(qctx, "share")
	if err != nil || created {
		t.Fatalf("second Ensure = %v, %v; want existing", created, err)
	}

	sessions, err := a.Sessions(qctx)
	if err != nil || len(sessions) != 1 || sessions[0].ID != "share" {
		t.Fatalf("Sessions = %+v, %v", sessions, err)
	}
	snap, ok, err := a.Snapshot(qctx, "share")
	if err != nil || !ok || snap.ID != "share" || snap.Active {
		t.Fatalf("Snapshot = %+v, %v, %v", snap, ok, err)
	}
	if _, ok, _ := a.Snapshot(qctx, "missing"); ok {
		t.Fatalf("missing session reported present")
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop")
	}

	if _, err := a.Ensure(context.Background(), "late"); !errors.Is(err, ErrClosed) {
		t.Fatalf("query after shutdown = %v, want ErrClosed", err)
	}
	if a.Deliver("c1", InboundEvent{Type: EventStartGame}) {
		t.Fatalf("deliver after shutdown should fail")
	}
}
