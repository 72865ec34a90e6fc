package game

import "strings"

// InitialLength is the number of segments a snake spawns with.
const InitialLength = 3

// spawnAttempts bounds the search for an unobstructed starting row.
const spawnAttempts = 32

// Join adds a player for connID. Joining again with a registered connID
// returns the existing player and joined=false.
func (s *Session) Join(connID, name string) (*Player, bool) {
	if p, ok := s.Players[connID]; ok {
		return p, false
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultPlayerName(connID)
	}

	p := &Player{
		ID:    connID,
		Name:  name,
		Color: ColorFor(len(s.Players)),
	}
	s.spawn(p)
	s.Players[connID] = p
	s.Joined++
	return p, true
}

// Remove deletes the player for connID and reports whether it existed.
func (s *Session) Remove(connID string) (*Player, bool) {
	p, ok := s.Players[connID]
	if !ok {
		return nil, false
	}
	delete(s.Players, connID)
	return p, true
}

// SetDirection changes the heading of a player. A 180 degree turn is
// rejected because the head would immediately hit the neck.
func (s *Session) SetDirection(connID string, d Direction) bool {
	p, ok := s.Players[connID]
	if !ok {
		return false
	}
	if _, valid := ParseDirection(string(d)); !valid {
		return false
	}
	if d == p.Direction.Opposite() {
		return false
	}
	p.Direction = d
	return true
}

// Respawn resets every dead player to a fresh body so a finished session can
// play another round. Scores are kept.
func (s *Session) Respawn() int {
	n := 0
	for _, id := range s.PlayerIDs() {
		if p := s.Players[id]; !p.Alive {
			s.spawn(p)
			n++
		}
	}
	return n
}

// spawn places a 3-segment body heading right. The head column is kept in
// [2, cols-3] so the tail fits on the board and the snake has room to move.
func (s *Session) spawn(p *Player) {
	dims := s.Dimensions()
	cols, rows := dims.Cols(), dims.Rows()

	occupied := s.occupied()
	var head Point
	for attempt := 0; attempt < spawnAttempts; attempt++ {
		head = Point{
			X: (InitialLength - 1 + randSpan(s.rng, cols-2*InitialLength+2)) * s.GridSize,
			Y: randSpan(s.rng, rows) * s.GridSize,
		}
		if !bodyBlocked(head, s.GridSize, occupied) {
			break
		}
	}

	p.Segments = make([]Point, InitialLength)
	for i := range p.Segments {
		p.Segments[i] = Point{X: head.X - i*s.GridSize, Y: head.Y}
	}
	p.Direction = Right
	p.Alive = true
}

func (s *Session) occupied() map[Point]struct{} {
	occ := make(map[Point]struct{})
	for _, p := range s.Players {
		if !p.Alive {
			continue
		}
		for _, seg := range p.Segments {
			occ[seg] = struct{}{}
		}
	}
	return occ
}

func bodyBlocked(head Point, grid int, occupied map[Point]struct{}) bool {
	// The cells in front of the head and behind the tail are checked too.
	for i := -1; i <= InitialLength; i++ {
		if _, ok := occupied[Point{X: head.X - i*grid, Y: head.Y}]; ok {
			return true
		}
	}
	return false
}

func randSpan(rng interface{ Intn(int) int }, n int) int {
	if n <= 1 {
		return 0
	}
	return rng.Intn(n)
}
