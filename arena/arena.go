// Package arena runs multiplayer snake sessions.
//
// All session state is owned by a single dispatcher goroutine (Run). Client
// events, simulation ticks and queries are queued as messages and handled
// one at a time, so a handler never observes a half-finished tick.
package arena

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/brensch/snekarena/game"
)

// ErrClosed is returned by queries made after the dispatcher has stopped.
var ErrClosed = errors.New("arena: closed")

// DefaultTickInterval is the simulation period of an active session.
const DefaultTickInterval = 200 * time.Millisecond

const defaultQueueSize = 1024

// Publisher delivers outbound events. Implementations must not block: they
// are called from the dispatcher goroutine.
type Publisher interface {
	// Send delivers ev to one connection.
	Send(connID string, ev Event)
	// Broadcast delivers ev to every connection subscribed to sessionID.
	Broadcast(sessionID string, ev Event)
	// Subscribe binds a connection to a session room, leaving any previous one.
	Subscribe(connID, sessionID string)
	// Unsubscribe removes a connection from its session room, if any.
	Unsubscribe(connID string)
}

// Config controls session defaults and pacing.
type Config struct {
	TickInterval time.Duration
	Dimensions   game.Dimensions
	QueueSize    int
}

// DefaultConfig returns the 200ms, 800x600 arena.
func DefaultConfig() Config {
	return Config{
		TickInterval: DefaultTickInterval,
		Dimensions:   game.DefaultDimensions,
		QueueSize:    defaultQueueSize,
	}
}

// Arena is the session registry plus the dispatcher that serialises all
// access to it.
type Arena struct {
	cfg    Config
	log    *slog.Logger
	pub    Publisher
	clock  Clock
	tracer trace.Tracer
	rng    *rand.Rand

	registry *Registry
	// conns remembers which session each joined connection is bound to.
	conns map[string]string
	loops map[string]*loop
	gen   uint64

	queue chan message
	done  chan struct{}
}

// Option customises an Arena.
type Option func(*Arena)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Arena) { a.log = l }
}

// WithClock replaces the tick scheduler.
func WithClock(c Clock) Option {
	return func(a *Arena) { a.clock = c }
}

// WithTracer replaces the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(a *Arena) { a.tracer = t }
}

// WithRand seeds session ids, spawn points and food placement.
func WithRand(rng *rand.Rand) Option {
	return func(a *Arena) { a.rng = rng }
}

// New builds an arena. Call Run to start the dispatcher.
func New(pub Publisher, cfg Config, opts ...Option) *Arena {
	def := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.Dimensions.Width <= 0 || cfg.Dimensions.Height <= 0 || cfg.Dimensions.GridSize <= 0 {
		cfg.Dimensions = def.Dimensions
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}

	a := &Arena{
		cfg:   cfg,
		log:   slog.Default(),
		pub:   pub,
		clock: realClock{},
		conns: make(map[string]string),
		loops: make(map[string]*loop),
		queue: make(chan message, cfg.QueueSize),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.tracer == nil {
		a.tracer = otel.Tracer("github.com/brensch/snekarena/arena")
	}
	a.registry = NewRegistry(cfg.Dimensions, a.rng)
	return a
}

// Run processes queued messages until ctx is cancelled. It must be called
// at most once.
func (a *Arena) Run(ctx context.Context) error {
	defer close(a.done)
	a.log.Info("arena dispatcher started", "tick", a.cfg.TickInterval)
	for {
		select {
		case <-ctx.Done():
			a.shutdown()
			return nil
		case m := <-a.queue:
			a.dispatch(m)
		}
	}
}

// Deliver queues an inbound client event for connID.
func (a *Arena) Deliver(connID string, ev InboundEvent) bool {
	return a.enqueue(inboundMsg{conn: connID, ev: ev})
}

// Disconnect queues the transport-level disconnect for connID. The transport
// calls it exactly once per connection.
func (a *Arena) Disconnect(connID string) bool {
	return a.enqueue(disconnectMsg{conn: connID})
}

// Ensure resolves a session id, creating the session when it is unknown so
// share links always work.
func (a *Arena) Ensure(ctx context.Context, id string) (bool, error) {
	var created bool
	if err := a.do(ctx, func() {
		_, created = a.registry.GetOrCreate(id)
		if created {
			a.log.Info("session created", "session", id, "via", "lookup")
		}
	}); err != nil {
		return false, err
	}
	return created, nil
}

// SessionSummary describes a session for listings.
type SessionSummary struct {
	ID      string `json:"id"`
	Players int    `json:"players"`
	Alive   int    `json:"alive"`
	Active  bool   `json:"active"`
}

// Sessions lists registered sessions in id order.
func (a *Arena) Sessions(ctx context.Context) ([]SessionSummary, error) {
	var out []SessionSummary
	if err := a.do(ctx, func() {
		for _, id := range a.registry.IDs() {
			s, _ := a.registry.Lookup(id)
			out = append(out, SessionSummary{
				ID:      id,
				Players: s.PlayerCount(),
				Alive:   len(s.AlivePlayers()),
				Active:  s.Active,
			})
		}
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// Snapshot returns a copy of the session state, or ok=false when absent.
func (a *Arena) Snapshot(ctx context.Context, id string) (game.Snapshot, bool, error) {
	var (
		snap  game.Snapshot
		found bool
	)
	if err := a.do(ctx, func() {
		if s, ok := a.registry.Lookup(id); ok {
			snap, found = s.Snapshot(), true
		}
	}); err != nil {
		return game.Snapshot{}, false, err
	}
	return snap, found, nil
}

type message interface {
	kind() string
}

type inboundMsg struct {
	conn string
	ev   InboundEvent
}

type disconnectMsg struct {
	conn string
}

type tickMsg struct {
	session string
	gen     uint64
}

type queryMsg struct {
	fn   func()
	done chan struct{}
}

func (inboundMsg) kind() string    { return "inbound" }
func (disconnectMsg) kind() string { return "disconnect" }
func (tickMsg) kind() string       { return "tick" }
func (queryMsg) kind() string      { return "query" }

func (a *Arena) enqueue(m message) bool {
	select {
	case <-a.done:
		return false
	default:
	}
	select {
	case a.queue <- m:
		return true
	case <-a.done:
		return false
	}
}

func (a *Arena) do(ctx context.Context, fn func()) error {
	q := queryMsg{fn: fn, done: make(chan struct{})}
	select {
	case <-a.done:
		return ErrClosed
	default:
	}
	select {
	case a.queue <- q:
	case <-a.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-q.done:
		return nil
	case <-a.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Arena) dispatch(m message) {
	switch m := m.(type) {
	case inboundMsg:
		a.handleInbound(m.conn, m.ev)
	case disconnectMsg:
		a.handleDisconnect(m.conn)
	case tickMsg:
		a.onTick(m.session, m.gen)
	case queryMsg:
		m.fn()
		close(m.done)
	}
}

// shutdown cancels every armed tick.
func (a *Arena) shutdown() {
	for id := range a.loops {
		a.stopLoop(id, nil)
		if s, ok := a.registry.Lookup(id); ok {
			s.Active = false
		}
	}
	a.log.Info("arena dispatcher stopped", "sessions", a.registry.Len())
}

func (a *Arena) broadcast(sessionID, typ string, data any) {
	a.pub.Broadcast(sessionID, Event{Type: typ, Data: data})
}

func (a *Arena) send(connID, typ string, data any) {
	a.pub.Send(connID, Event{Type: typ, Data: data})
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
