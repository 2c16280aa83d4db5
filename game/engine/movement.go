package engine

import "math"

// arrivalEpsilonSq is the squared distance under which an agent snaps onto
// its target cell.
const arrivalEpsilonSq = 0.0001

// DefaultMoveSpeed is in world units per second
const DefaultMoveSpeed = 2.0

// Mover is the motion model of a single agent. It is Idle until StartMoving
// pops a target, Moving while interpolating, and Idle again once its queue is
// exhausted or it is force stopped.
type Mover struct {
	grid   Grid
	speed  float64
	pos    Vec2
	cell   Position
	target Position
	queue  []Position
	moving bool
}

// NewMover places a mover exactly on the center of cell
func NewMover(grid Grid, cell Position, speed float64) *Mover {
	if speed <= 0 {
		speed = DefaultMoveSpeed
	}
	return &Mover{
		grid:   grid,
		speed:  speed,
		pos:    grid.GridToWorld(cell),
		cell:   cell,
		target: cell,
	}
}

// SetPath replaces the pending queue. The queue excludes the start cell.
func (m *Mover) SetPath(waypoints []Position) {
	m.queue = clonePath(waypoints)
}

// StartMoving pops the next target if idle and the queue is non-empty
func (m *Mover) StartMoving() {
	if m.moving || len(m.queue) == 0 {
		return
	}
	m.popTarget()
}

func (m *Mover) popTarget() {
	m.target = m.queue[0]
	m.queue = m.queue[1:]
	m.moving = true
}

// Advance moves toward the current target by speed*dt seconds. Arrival
// snaps onto the target cell and pops the next one; travel left over in the
// arriving step is discarded.
func (m *Mover) Advance(dt float64) {
	if !m.moving || dt <= 0 {
		return
	}

	goal := m.grid.GridToWorld(m.target)
	m.pos = moveTowards(m.pos, goal, m.speed*dt)

	dx, dy := m.pos.X-goal.X, m.pos.Y-goal.Y
	if dx*dx+dy*dy < arrivalEpsilonSq {
		m.pos = goal
		m.cell = m.target
		m.moving = false
		if len(m.queue) > 0 {
			m.popTarget()
		}
	}
}

// ForceStop clears the queue and freezes the mover where it is. The current
// cell is recomputed from the true interpolated position.
func (m *Mover) ForceStop() {
	m.queue = nil
	m.moving = false
	m.cell = m.grid.WorldToGrid(m.pos)
	m.target = m.cell
}

// IsMoving reports whether the mover is interpolating toward a target
func (m *Mover) IsMoving() bool {
	return m.moving
}

// CurrentCell is updated only on arrival or force stop
func (m *Mover) CurrentCell() Position {
	return m.cell
}

// OccupiedCell is the cell under the continuous position
func (m *Mover) OccupiedCell() Position {
	return m.grid.WorldToGrid(m.pos)
}

// Position returns the continuous world position
func (m *Mover) Position() Vec2 {
	return m.pos
}

// Target returns the cell currently being approached
func (m *Mover) Target() Position {
	return m.target
}

// Pending returns a copy of the queued waypoints
func (m *Mover) Pending() []Position {
	return clonePath(m.queue)
}

func moveTowards(from, to Vec2, maxDelta float64) Vec2 {
	dx, dy := to.X-from.X, to.Y-from.Y
	distSq := dx*dx + dy*dy
	if distSq == 0 || (maxDelta >= 0 && distSq <= maxDelta*maxDelta) {
		return to
	}
	dist := math.Sqrt(distSq)
	return Vec2{
		X: from.X + dx/dist*maxDelta,
		Y: from.Y + dy/dist*maxDelta,
	}
}
