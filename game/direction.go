package game

// Direction is the heading of a snake.
type Direction string

const (
	Up    Direction = "up"
	Down  Direction = "down"
	Left  Direction = "left"
	Right Direction = "right"
)

// ParseDirection validates a direction received from a client.
func ParseDirection(s string) (Direction, bool) {
	switch d := Direction(s); d {
	case Up, Down, Left, Right:
		return d, true
	}
	return "", false
}

// Opposite returns the reverse heading.
func (d Direction) Opposite() Direction {
	switch d {
	case Up:
		return Down
	case Down:
		return Up
	case Left:
		return Right
	case Right:
		return Left
	}
	return ""
}

// Step returns p moved one cell of size grid towards d.
func (d Direction) Step(p Point, grid int) Point {
	switch d {
	case Up:
		p.Y -= grid
	case Down:
		p.Y += grid
	case Left:
		p.X -= grid
	case Right:
		p.X += grid
	}
	return p
}
