// Package game defines the arena session state shared by the rules engine
// and the connection router.
//
// A Session is not safe for concurrent use. The arena dispatcher is its only
// writer, so every mutation runs to completion before the next one starts.
package game

import (
	"math/rand"
	"sort"
)

// Board defaults used when a session is created without explicit dimensions.
const (
	DefaultWidth    = 800
	DefaultHeight   = 600
	DefaultGridSize = 20

	// FoodScore is added to a player's score for each food eaten.
	FoodScore = 10
)

// Point is a pixel coordinate aligned to the session grid.
// (0,0) is the top-left corner; y grows downwards.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Player is one snake in a session. Id equals the owning connection id.
type Player struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	Segments  []Point   `json:"segments"`
	Direction Direction `json:"direction"`
	Score     int       `json:"score"`
	Alive     bool      `json:"alive"`
}

// Head returns the first segment.
func (p *Player) Head() Point {
	return p.Segments[0]
}

// Clone performs a deep copy of the player.
func (p *Player) Clone() *Player {
	if p == nil {
		return nil
	}
	out := *p
	out.Segments = append([]Point(nil), p.Segments...)
	return &out
}

// Dimensions fixes the board size of a session.
type Dimensions struct {
	Width    int
	Height   int
	GridSize int
}

// DefaultDimensions is the 800x600 board with 20px cells.
var DefaultDimensions = Dimensions{Width: DefaultWidth, Height: DefaultHeight, GridSize: DefaultGridSize}

// Cols is the number of grid columns.
func (d Dimensions) Cols() int { return d.Width / d.GridSize }

// Rows is the number of grid rows.
func (d Dimensions) Rows() int { return d.Height / d.GridSize }

// Session owns one arena: its players, food and activity flag.
type Session struct {
	ID       string
	Players  map[string]*Player
	Food     []Point
	Active   bool
	Width    int
	Height   int
	GridSize int

	// Joined counts distinct players that ever joined; it never decreases.
	Joined int

	rng *rand.Rand
}

// NewSession returns an empty, inactive session. A nil rng falls back to a
// time-seeded source.
func NewSession(id string, dims Dimensions, rng *rand.Rand) *Session {
	if dims.Width <= 0 || dims.Height <= 0 || dims.GridSize <= 0 {
		dims = DefaultDimensions
	}
	if rng == nil {
		rng = newRand()
	}
	return &Session{
		ID:       id,
		Players:  make(map[string]*Player),
		Food:     []Point{},
		Width:    dims.Width,
		Height:   dims.Height,
		GridSize: dims.GridSize,
		rng:      rng,
	}
}

// Dimensions returns the session board size.
func (s *Session) Dimensions() Dimensions {
	return Dimensions{Width: s.Width, Height: s.Height, GridSize: s.GridSize}
}

// Rand exposes the session's random source to the rules engine.
func (s *Session) Rand() *rand.Rand {
	return s.rng
}

// PlayerCount returns the number of players currently in the session.
func (s *Session) PlayerCount() int {
	return len(s.Players)
}

// PlayerIDs returns the player ids in sorted order. Tick processing and
// broadcasts iterate in this order so a tick is reproducible.
func (s *Session) PlayerIDs() []string {
	ids := make([]string, 0, len(s.Players))
	for id := range s.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AlivePlayers returns alive players in player-id order.
func (s *Session) AlivePlayers() []*Player {
	var out []*Player
	for _, id := range s.PlayerIDs() {
		if p := s.Players[id]; p.Alive {
			out = append(out, p)
		}
	}
	return out
}

// InBounds reports whether p lies on the board.
func (s *Session) InBounds(p Point) bool {
	return p.X >= 0 && p.X < s.Width && p.Y >= 0 && p.Y < s.Height
}

// Snapshot is the wire form of a session, broadcast as gameState.
type Snapshot struct {
	ID       string             `json:"id"`
	Players  map[string]*Player `json:"players"`
	Food     []Point            `json:"food"`
	Active   bool               `json:"active"`
	Width    int                `json:"width"`
	Height   int                `json:"height"`
	GridSize int                `json:"gridSize"`
}

// Snapshot performs a deep copy of the session state for publishing. The
// copy is safe to marshal on another goroutine.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ID:       s.ID,
		Players:  s.PlayersSnapshot(),
		Food:     append([]Point{}, s.Food...),
		Active:   s.Active,
		Width:    s.Width,
		Height:   s.Height,
		GridSize: s.GridSize,
	}
}

// PlayersSnapshot deep copies the player map.
func (s *Session) PlayersSnapshot() map[string]*Player {
	out := make(map[string]*Player, len(s.Players))
	for id, p := range s.Players {
		out[id] = p.Clone()
	}
	return out
}
