package rules

import "github.com/brensch/snekarena/game"

// Directions lists headings in the order LegalMoves reports them.
var Directions = []game.Direction{game.Up, game.Down, game.Left, game.Right}

// LegalMoves returns the headings that keep playerID alive for one more tick,
// assuming every other snake stays put. Tails count as solid because it is
// not known whether their owners eat this tick.
func LegalMoves(snap game.Snapshot, playerID string) []game.Direction {
	you, ok := snap.Players[playerID]
	if !ok || !you.Alive || len(you.Segments) == 0 {
		return nil
	}

	var moves []game.Direction
	for _, d := range Directions {
		if d == you.Direction.Opposite() {
			continue
		}
		if isSafe(snap, d.Step(you.Head(), snap.GridSize)) {
			moves = append(moves, d)
		}
	}
	return moves
}

func isSafe(snap game.Snapshot, p game.Point) bool {
	if p.X < 0 || p.X >= snap.Width || p.Y < 0 || p.Y >= snap.Height {
		return false
	}
	for _, s := range snap.Players {
		if !s.Alive {
			continue
		}
		for _, bp := range s.Segments {
			if bp == p {
				return false
			}
		}
	}
	return true
}
