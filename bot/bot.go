// Package bot picks headings for computer-controlled players.
package bot

import (
	"github.com/brensch/snekarena/game"
	"github.com/brensch/snekarena/rules"
)

// Choose returns the heading for playerID: the safe move that gets closest
// to the nearest food, preferring the current heading on ties. ok is false
// when the player is absent, dead or boxed in.
func Choose(snap game.Snapshot, playerID string) (d game.Direction, ok bool) {
	moves := rules.LegalMoves(snap, playerID)
	if len(moves) == 0 {
		return "", false
	}
	you := snap.Players[playerID]
	head := you.Head()

	var best game.Direction
	bestScore := 0
	for i, m := range moves {
		// Ties keep the snake going straight.
		score := 2 * distanceToFood(snap, m.Step(head, snap.GridSize))
		if m != you.Direction {
			score++
		}
		if i == 0 || score < bestScore {
			best, bestScore = m, score
		}
	}
	return best, true
}

// distanceToFood is the grid distance from p to the nearest food, or 0 when
// there is none.
func distanceToFood(snap game.Snapshot, p game.Point) int {
	best := -1
	for _, f := range snap.Food {
		d := (abs(f.X-p.X) + abs(f.Y-p.Y)) / snap.GridSize
		if best < 0 || d < best {
			best = d
		}
	}
	if best < 0 {
		return 0
	}
	return best
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
