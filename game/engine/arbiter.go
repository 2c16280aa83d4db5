package engine

import (
	"sort"
	"time"
)

// OccupancyMode selects which cell an agent is considered to occupy when
// the arbiter samples a tick.
type OccupancyMode string

const (
	// OccupancyWaypoint samples the last cell the agent arrived at
	OccupancyWaypoint OccupancyMode = "waypoint"
	// OccupancyContinuous samples the cell under the interpolated position
	OccupancyContinuous OccupancyMode = "continuous"
)

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultFrameStep    = time.Second / 60
)

// ArbiterOptions tune simulation timing
type ArbiterOptions struct {
	PollInterval time.Duration
	FrameStep    time.Duration
	MoveSpeed    float64
	Occupancy    OccupancyMode
}

func (o ArbiterOptions) withDefaults() ArbiterOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.FrameStep <= 0 {
		o.FrameStep = DefaultFrameStep
	}
	if o.MoveSpeed <= 0 {
		o.MoveSpeed = DefaultMoveSpeed
	}
	if o.Occupancy == "" {
		o.Occupancy = OccupancyWaypoint
	}
	return o
}

// Arbiter drives every agent's motion, samples occupancy at a fixed poll
// interval and decides the terminal outcome of a simulation.
type Arbiter struct {
	opts  ArbiterOptions
	grid  Grid
	order []int
	goals map[int]Position

	movers map[int]*Mover
	routes map[int][]Position

	active    bool
	pending   time.Duration
	sincePoll time.Duration
	elapsed   time.Duration
	ticks     int
	outcome   *Outcome

	occupancy map[Position][]int
}

// NewArbiter creates an idle arbiter with one mover per agent
func NewArbiter(grid Grid, agents []AgentSpec, opts ArbiterOptions) *Arbiter {
	a := &Arbiter{
		opts:      opts.withDefaults(),
		grid:      grid,
		goals:     make(map[int]Position, len(agents)),
		occupancy: make(map[Position][]int, len(agents)),
	}
	for _, spec := range agents {
		a.order = append(a.order, spec.PlayerID)
		a.goals[spec.PlayerID] = spec.Goal
	}
	sort.Ints(a.order)
	a.Reset(agents)
	return a
}

// Reset puts every mover back on its start cell and clears all queues
func (a *Arbiter) Reset(agents []AgentSpec) {
	a.movers = make(map[int]*Mover, len(agents))
	for _, spec := range agents {
		a.movers[spec.PlayerID] = NewMover(a.grid, spec.Start, a.opts.MoveSpeed)
	}
	a.routes = make(map[int][]Position)
	a.active = false
	a.pending = 0
	a.sincePoll = 0
	a.elapsed = 0
	a.ticks = 0
	a.outcome = nil
}

// Start queues each committed path, minus its start cell, and sets every
// agent moving.
func (a *Arbiter) Start(paths map[int][]Position) {
	a.routes = make(map[int][]Position, len(paths))
	for _, id := range a.order {
		path := paths[id]
		a.routes[id] = clonePath(path)
		m := a.movers[id]
		if len(path) > 1 {
			m.SetPath(path[1:])
			m.StartMoving()
		}
	}
	a.active = true
	a.pending = 0
	a.sincePoll = 0
	a.elapsed = 0
	a.ticks = 0
	a.outcome = nil
}

// Advance moves all agents in fixed frame steps and polls occupancy every
// poll interval. It returns the outcome when the simulation terminates
// during this call.
func (a *Arbiter) Advance(dt time.Duration) *Outcome {
	if !a.active || dt <= 0 {
		return nil
	}

	a.pending += dt
	step := a.opts.FrameStep.Seconds()
	for a.pending >= a.opts.FrameStep {
		a.pending -= a.opts.FrameStep
		a.elapsed += a.opts.FrameStep

		for _, id := range a.order {
			a.movers[id].Advance(step)
		}

		a.sincePoll += a.opts.FrameStep
		for a.sincePoll >= a.opts.PollInterval {
			a.sincePoll -= a.opts.PollInterval
			if outcome := a.Poll(); outcome != nil {
				a.pending = 0
				return outcome
			}
		}
	}
	return nil
}

// Poll evaluates one tick. Collisions are checked before completion so a
// same-tick arrival and collision is reported as a collision.
func (a *Arbiter) Poll() *Outcome {
	if !a.active {
		return nil
	}
	a.ticks++

	clear(a.occupancy)
	for _, id := range a.order {
		cell := a.sampleCell(a.movers[id])
		a.occupancy[cell] = append(a.occupancy[cell], id)
	}

	var collided []Position
	for cell, ids := range a.occupancy {
		if len(ids) >= 2 {
			collided = append(collided, cell)
		}
	}
	if len(collided) > 0 {
		sort.Slice(collided, func(i, j int) bool {
			if collided[i].Y != collided[j].Y {
				return collided[i].Y < collided[j].Y
			}
			return collided[i].X < collided[j].X
		})
		cell := collided[0]
		ids := append([]int(nil), a.occupancy[cell]...)
		sort.Ints(ids)
		a.StopAll()
		return a.finish(&Outcome{Kind: OutcomeCollision, Cell: &cell, AgentIDs: ids, Tick: a.ticks})
	}

	for _, id := range a.order {
		if a.movers[id].IsMoving() {
			return nil
		}
	}

	for _, id := range a.order {
		if a.movers[id].CurrentCell() != a.goals[id] {
			return a.finish(&Outcome{Kind: OutcomeStoppedShortOfGoal, Tick: a.ticks})
		}
	}
	return a.finish(&Outcome{Kind: OutcomeAllReachedGoal, Tick: a.ticks})
}

func (a *Arbiter) sampleCell(m *Mover) Position {
	if a.opts.Occupancy == OccupancyContinuous {
		return m.OccupiedCell()
	}
	return m.CurrentCell()
}

func (a *Arbiter) finish(outcome *Outcome) *Outcome {
	a.active = false
	a.outcome = outcome
	return outcome
}

// StopAll force stops every agent
func (a *Arbiter) StopAll() {
	for _, id := range a.order {
		a.movers[id].ForceStop()
	}
}

// Active reports whether a simulation is running
func (a *Arbiter) Active() bool {
	return a.active
}

// Outcome returns the terminal outcome of the last simulation
func (a *Arbiter) Outcome() *Outcome {
	return a.outcome
}

// Ticks returns the number of polls evaluated in the current simulation
func (a *Arbiter) Ticks() int {
	return a.ticks
}

// Elapsed returns the simulated time consumed by frame steps
func (a *Arbiter) Elapsed() time.Duration {
	return a.elapsed
}

// Mover returns the motion model of playerID
func (a *Arbiter) Mover(playerID int) (*Mover, bool) {
	m, ok := a.movers[playerID]
	return m, ok
}

// Route returns the path being executed by playerID
func (a *Arbiter) Route(playerID int) []Position {
	return clonePath(a.routes[playerID])
}

// Options returns the effective timing options
func (a *Arbiter) Options() ArbiterOptions {
	return a.opts
}
