// Package rules advances arena sessions by one tick.
package rules

import (
	"github.com/brensch/snekarena/game"
)

// Cause explains why a snake died.
type Cause string

const (
	CauseWall  Cause = "wall"
	CauseSelf  Cause = "self"
	CauseSnake Cause = "snake"
)

// Death records one elimination during a tick.
type Death struct {
	PlayerID string
	Cause    Cause
	// Other is the player whose body was hit when Cause is CauseSnake.
	Other string
}

// Result summarises what happened during a tick.
type Result struct {
	Deaths []Death
	// Ate lists players that ate food this tick.
	Ate []string
}

// Advance moves every alive player one cell.
//
// Collisions are evaluated against the bodies as they stood before the tick,
// so the outcome does not depend on the order players are processed in. Two
// heads entering the same empty cell are both allowed.
func Advance(s *game.Session) Result {
	var res Result

	ids := s.PlayerIDs()
	before := make(map[string][]game.Point, len(ids))
	for _, id := range ids {
		if p := s.Players[id]; p.Alive {
			before[id] = append([]game.Point(nil), p.Segments...)
		}
	}

	for _, id := range ids {
		p := s.Players[id]
		body, ok := before[id]
		if !ok {
			continue
		}
		head := p.Direction.Step(body[0], s.GridSize)

		if d, dead := collide(s, id, head, body, before, ids); dead {
			p.Alive = false
			res.Deaths = append(res.Deaths, d)
			continue
		}

		p.Segments = append([]game.Point{head}, p.Segments...)
		if s.EatFoodAt(head) {
			p.Score += game.FoodScore
			res.Ate = append(res.Ate, id)
			continue
		}
		p.Segments = p.Segments[:len(p.Segments)-1]
	}

	return res
}

func collide(s *game.Session, id string, head game.Point, body []game.Point, before map[string][]game.Point, ids []string) (Death, bool) {
	if !s.InBounds(head) {
		return Death{PlayerID: id, Cause: CauseWall}, true
	}
	for _, seg := range body[1:] {
		if seg == head {
			return Death{PlayerID: id, Cause: CauseSelf}, true
		}
	}
	for _, other := range ids {
		if other == id {
			continue
		}
		for _, seg := range before[other] {
			if seg == head {
				return Death{PlayerID: id, Cause: CauseSnake, Other: other}, true
			}
		}
	}
	return Death{}, false
}

// RoundOver reports whether the round has ended and who won. A round ends
// once more than one player has joined and at most one is still alive; a
// lone player keeps going after dying until someone else joins or it leaves.
// winner is nil when nobody survived.
func RoundOver(s *game.Session) (over bool, winner *game.Player) {
	if s.Joined <= 1 {
		return false, nil
	}
	alive := s.AlivePlayers()
	switch len(alive) {
	case 0:
		return true, nil
	case 1:
		return true, alive[0]
	}
	return false, nil
}
