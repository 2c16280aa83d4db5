package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runArbiter advances a until it reports an outcome or limit elapses
func runArbiter(t *testing.T, a *Arbiter, limit time.Duration) *Outcome {
	t.Helper()
	step := a.Options().FrameStep
	for elapsed := time.Duration(0); elapsed < limit; elapsed += step {
		if outcome := a.Advance(step); outcome != nil {
			return outcome
		}
	}
	t.Fatalf("no outcome after %s", limit)
	return nil
}

func crossingAgents() []AgentSpec {
	return []AgentSpec{
		agentSpec(1, Position{X: 0, Y: 5}, Position{X: 3, Y: 9}, 2),
		agentSpec(2, Position{X: 3, Y: 2}, Position{X: 6, Y: 5}, 2),
	}
}

func crossingPaths() map[int][]Position {
	return map[int][]Position{
		1: {{X: 0, Y: 5}, {X: 3, Y: 5}, {X: 3, Y: 9}},
		2: {{X: 3, Y: 2}, {X: 3, Y: 5}, {X: 6, Y: 5}},
	}
}

func TestArbiter_AllReachedGoal(t *testing.T) {
	agents := []AgentSpec{
		agentSpec(1, Position{X: 2, Y: 2}, Position{X: 2, Y: 8}, 1),
		agentSpec(2, Position{X: 4, Y: 2}, Position{X: 4, Y: 8}, 1),
	}
	a := NewArbiter(testGrid(), agents, ArbiterOptions{})
	a.Start(map[int][]Position{
		1: {{X: 2, Y: 2}, {X: 2, Y: 8}},
		2: {{X: 4, Y: 2}, {X: 4, Y: 8}},
	})
	require.True(t, a.Active())

	outcome := runArbiter(t, a, 10*time.Second)
	assert.Equal(t, OutcomeAllReachedGoal, outcome.Kind)
	assert.True(t, outcome.Success())
	assert.Nil(t, outcome.Cell)
	assert.False(t, a.Active())
	assert.Same(t, outcome, a.Outcome())

	// 6 cells at 2 units per second takes 3s
	assert.InDelta(t, 3*time.Second, a.Elapsed(), float64(200*time.Millisecond))
	assert.Nil(t, a.Advance(time.Second), "no ticks run after termination")
}

func TestArbiter_Collision(t *testing.T) {
	a := NewArbiter(NewGrid(8, 10, 1, DefaultCenter(8, 10, 1)), crossingAgents(), ArbiterOptions{})
	a.Start(crossingPaths())

	outcome := runArbiter(t, a, 10*time.Second)
	require.Equal(t, OutcomeCollision, outcome.Kind)
	require.NotNil(t, outcome.Cell)
	assert.Equal(t, Position{X: 3, Y: 5}, *outcome.Cell)
	assert.Equal(t, []int{1, 2}, outcome.AgentIDs)
	assert.False(t, outcome.Success())

	for _, id := range []int{1, 2} {
		m, ok := a.Mover(id)
		require.True(t, ok)
		assert.False(t, m.IsMoving(), "collision force stops agent %d", id)
		assert.Empty(t, m.Pending())
	}
}

func TestArbiter_CollisionBeforeCompletion(t *testing.T) {
	// Both agents end on the same tick, one of them on another's cell
	agents := []AgentSpec{
		agentSpec(1, Position{X: 0, Y: 0}, Position{X: 2, Y: 0}, 1),
		agentSpec(2, Position{X: 2, Y: 2}, Position{X: 2, Y: 3}, 1),
	}
	a := NewArbiter(testGrid(), agents, ArbiterOptions{})
	a.Start(map[int][]Position{
		1: {{X: 0, Y: 0}, {X: 2, Y: 0}},
		2: {{X: 2, Y: 2}, {X: 2, Y: 0}},
	})

	outcome := runArbiter(t, a, 5*time.Second)
	assert.Equal(t, OutcomeCollision, outcome.Kind)
	assert.Equal(t, Position{X: 2, Y: 0}, *outcome.Cell)
}

func TestArbiter_StoppedShortOfGoal(t *testing.T) {
	agents := []AgentSpec{
		agentSpec(1, Position{X: 2, Y: 2}, Position{X: 2, Y: 8}, 2),
	}
	a := NewArbiter(testGrid(), agents, ArbiterOptions{})
	a.Start(map[int][]Position{1: {{X: 2, Y: 2}, {X: 2, Y: 5}}})

	outcome := runArbiter(t, a, 5*time.Second)
	assert.Equal(t, OutcomeStoppedShortOfGoal, outcome.Kind)
}

func TestArbiter_ForcedStopIsShortOfGoal(t *testing.T) {
	agents := []AgentSpec{
		agentSpec(1, Position{X: 2, Y: 2}, Position{X: 2, Y: 8}, 1),
	}
	a := NewArbiter(testGrid(), agents, ArbiterOptions{})
	a.Start(map[int][]Position{1: {{X: 2, Y: 2}, {X: 2, Y: 8}}})
	assert.Nil(t, a.Advance(500*time.Millisecond))

	a.StopAll()
	outcome := a.Poll()
	require.NotNil(t, outcome)
	assert.Equal(t, OutcomeStoppedShortOfGoal, outcome.Kind)
}

func TestArbiter_PollIntervalIndependentOfFrameRate(t *testing.T) {
	agents := []AgentSpec{
		agentSpec(1, Position{X: 2, Y: 2}, Position{X: 2, Y: 8}, 1),
	}
	a := NewArbiter(testGrid(), agents, ArbiterOptions{FrameStep: 10 * time.Millisecond})
	a.Start(map[int][]Position{1: {{X: 2, Y: 2}, {X: 2, Y: 8}}})

	a.Advance(time.Second)
	assert.Equal(t, 10, a.Ticks())
}

func TestArbiter_CoarseFramesKeepPollRate(t *testing.T) {
	agents := []AgentSpec{
		agentSpec(1, Position{X: 2, Y: 2}, Position{X: 2, Y: 8}, 1),
	}
	a := NewArbiter(testGrid(), agents, ArbiterOptions{
		FrameStep:    250 * time.Millisecond,
		PollInterval: 100 * time.Millisecond,
	})
	a.Start(map[int][]Position{1: {{X: 2, Y: 2}, {X: 2, Y: 8}}})

	a.Advance(time.Second)
	assert.Equal(t, 10, a.Ticks())
}

func TestArbiter_WaypointOccupancyMissesPassThrough(t *testing.T) {
	// Agent 1 runs through (3,5) without stopping there; agent 2 ends on it
	// later. In waypoint mode only arrival cells are sampled.
	agents := []AgentSpec{
		agentSpec(1, Position{X: 0, Y: 5}, Position{X: 6, Y: 5}, 1),
		agentSpec(2, Position{X: 3, Y: 2}, Position{X: 3, Y: 5}, 1),
	}
	paths := map[int][]Position{
		1: {{X: 0, Y: 5}, {X: 6, Y: 5}},
		2: {{X: 3, Y: 2}, {X: 3, Y: 5}},
	}
	grid := NewGrid(8, 10, 1, DefaultCenter(8, 10, 1))

	a := NewArbiter(grid, agents, ArbiterOptions{Occupancy: OccupancyWaypoint})
	a.Start(paths)
	assert.Equal(t, OutcomeAllReachedGoal, runArbiter(t, a, 10*time.Second).Kind)

	c := NewArbiter(grid, agents, ArbiterOptions{Occupancy: OccupancyContinuous})
	c.Start(paths)
	outcome := runArbiter(t, c, 10*time.Second)
	require.Equal(t, OutcomeCollision, outcome.Kind)
	assert.Equal(t, Position{X: 3, Y: 5}, *outcome.Cell)
}

func TestArbiter_ResetAndRoutes(t *testing.T) {
	a := NewArbiter(NewGrid(8, 10, 1, DefaultCenter(8, 10, 1)), crossingAgents(), ArbiterOptions{})
	a.Start(crossingPaths())
	assert.Equal(t, crossingPaths()[1], a.Route(1))

	a.Advance(time.Second)
	a.Reset(crossingAgents())

	assert.False(t, a.Active())
	assert.Zero(t, a.Ticks())
	assert.Nil(t, a.Outcome())
	assert.Nil(t, a.Route(1))
	m, _ := a.Mover(1)
	assert.Equal(t, Position{X: 0, Y: 5}, m.CurrentCell())
}

func TestArbiter_DefaultOptions(t *testing.T) {
	a := NewArbiter(testGrid(), nil, ArbiterOptions{})
	opts := a.Options()
	assert.Equal(t, DefaultPollInterval, opts.PollInterval)
	assert.Equal(t, DefaultFrameStep, opts.FrameStep)
	assert.Equal(t, DefaultMoveSpeed, opts.MoveSpeed)
	assert.Equal(t, OccupancyWaypoint, opts.Occupancy)
}
