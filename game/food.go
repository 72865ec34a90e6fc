// food.go implements food placement for arena sessions.

package game

// ResetFood replaces the food list with max(1, playerCount) items.
func (s *Session) ResetFood() {
	n := len(s.Players)
	if n < 1 {
		n = 1
	}
	s.Food = s.Food[:0]
	for i := 0; i < n; i++ {
		s.Food = append(s.Food, s.RandomFreeCell())
	}
}

// EatFoodAt removes the food at p, appends one replacement and reports
// whether anything was eaten. The food count is unchanged either way.
func (s *Session) EatFoodAt(p Point) bool {
	for i, f := range s.Food {
		if f != p {
			continue
		}
		s.Food = append(s.Food[:i], s.Food[i+1:]...)
		s.Food = append(s.Food, s.RandomFreeCell())
		return true
	}
	return false
}

// RandomFreeCell picks a grid-aligned cell not covered by an alive snake or
// existing food. When the board is full any cell is returned.
func (s *Session) RandomFreeCell() Point {
	dims := s.Dimensions()
	cols, rows := dims.Cols(), dims.Rows()

	occupied := s.occupied()
	for _, f := range s.Food {
		occupied[f] = struct{}{}
	}

	available := make([]Point, 0, max(0, cols*rows-len(occupied)))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			p := Point{X: x * s.GridSize, Y: y * s.GridSize}
			if _, ok := occupied[p]; ok {
				continue
			}
			available = append(available, p)
		}
	}
	if len(available) == 0 {
		return Point{X: randSpan(s.rng, cols) * s.GridSize, Y: randSpan(s.rng, rows) * s.GridSize}
	}
	return available[s.rng.Intn(len(available))]
}
