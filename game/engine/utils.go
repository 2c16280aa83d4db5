package engine

// ManhattanDistance calculates the Manhattan distance between two positions
func ManhattanDistance(from, to Position) int {
	return abs(from.X-to.X) + abs(from.Y-to.Y)
}

// IsStraightLine reports whether the move from -> to is purely horizontal or
// purely vertical. Zero displacement is not a straight line.
func IsStraightLine(from, to Position) bool {
	dx, dy := to.X-from.X, to.Y-from.Y
	return (dx == 0 && dy != 0) || (dy == 0 && dx != 0)
}

// SharesAxis reports whether two positions lie on the same row or column
func SharesAxis(a, b Position) bool {
	return a.X == b.X || a.Y == b.Y
}

// SegmentCells returns the cells strictly between from and to on a straight
// segment. It returns nil when the segment is not straight.
func SegmentCells(from, to Position) []Position {
	if !IsStraightLine(from, to) {
		return nil
	}
	step := Position{X: sign(to.X - from.X), Y: sign(to.Y - from.Y)}
	var cells []Position
	for p := (Position{X: from.X + step.X, Y: from.Y + step.Y}); p != to; p = (Position{X: p.X + step.X, Y: p.Y + step.Y}) {
		cells = append(cells, p)
	}
	return cells
}

// PathLength returns the number of cells travelled along a waypoint path
func PathLength(path []Position) int {
	total := 0
	for i := 1; i < len(path); i++ {
		total += ManhattanDistance(path[i-1], path[i])
	}
	return total
}

func clonePath(path []Position) []Position {
	if path == nil {
		return nil
	}
	return append([]Position(nil), path...)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func sign(x int) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
