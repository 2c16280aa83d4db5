package engine

import "math"

// Grid converts between world space and integer grid coordinates. Each cell
// is the closed-open square [origin+x*size, origin+(x+1)*size).
type Grid struct {
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	CellSize float64 `json:"cell_size"`
	Center   Vec2    `json:"center"`
}

// NewGrid creates a grid. A non-positive cell size defaults to 1.
func NewGrid(width, height int, cellSize float64, center Vec2) Grid {
	if cellSize <= 0 {
		cellSize = 1
	}
	return Grid{Width: width, Height: height, CellSize: cellSize, Center: center}
}

// DefaultCenter places cell (0,0) at the world origin.
func DefaultCenter(width, height int, cellSize float64) Vec2 {
	if cellSize <= 0 {
		cellSize = 1
	}
	return Vec2{
		X: float64(width-1) * cellSize / 2,
		Y: float64(height-1) * cellSize / 2,
	}
}

func (g Grid) halfExtent() Vec2 {
	return Vec2{
		X: float64(g.Width) * g.CellSize / 2,
		Y: float64(g.Height) * g.CellSize / 2,
	}
}

// WorldToGrid returns the cell containing a world position
func (g Grid) WorldToGrid(world Vec2) Position {
	half := g.halfExtent()
	x := (world.X - g.Center.X + half.X) / g.CellSize
	y := (world.Y - g.Center.Y + half.Y) / g.CellSize
	return Position{X: int(math.Floor(x)), Y: int(math.Floor(y))}
}

// GridToWorld returns the world position of a cell's center
func (g Grid) GridToWorld(pos Position) Vec2 {
	half := g.halfExtent()
	return Vec2{
		X: g.Center.X - half.X + (float64(pos.X)+0.5)*g.CellSize,
		Y: g.Center.Y - half.Y + (float64(pos.Y)+0.5)*g.CellSize,
	}
}

// InBounds checks whether pos lies inside the grid
func (g Grid) InBounds(pos Position) bool {
	return pos.X >= 0 && pos.X < g.Width && pos.Y >= 0 && pos.Y < g.Height
}
