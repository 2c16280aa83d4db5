package engine

import "fmt"

const (
	// Validation constants
	MinGridSize   = 2
	MaxGridSize   = 64
	MinBudget     = 1
	MaxAgents     = 16
	DefaultBudget = 3

	// Layout characters
	TileWalkable = '.'
	TileBlocked  = '#'
	TileStart    = 'S'
	TileGoal     = 'G'
)

// Position is an integer grid coordinate. All planning and collision logic
// operates on Positions only.
type Position struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// Vec2 is a continuous world-space position.
type Vec2 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// AgentSpec is the per-level definition of one player's piece.
type AgentSpec struct {
	PlayerID        int      `json:"player_id" yaml:"player_id"`
	Start           Position `json:"start" yaml:"start"`
	Goal            Position `json:"goal" yaml:"goal"`
	SelectionBudget int      `json:"selection_budget" yaml:"selection_budget"`
	Color           string   `json:"color,omitempty" yaml:"color,omitempty"`
}

// LevelConfig represents a level definition loaded from JSON or YAML
type LevelConfig struct {
	ID             int         `json:"id" yaml:"id"`
	Name           string      `json:"name" yaml:"name"`
	Description    string      `json:"description,omitempty" yaml:"description,omitempty"`
	Width          int         `json:"width" yaml:"width"`
	Height         int         `json:"height" yaml:"height"`
	CellSize       float64     `json:"cell_size,omitempty" yaml:"cell_size,omitempty"`
	Center         *Vec2       `json:"center,omitempty" yaml:"center,omitempty"`
	Layout         []string    `json:"layout" yaml:"layout"`
	Agents         []AgentSpec `json:"agents" yaml:"agents"`
	StrictSegments bool        `json:"strict_segments,omitempty" yaml:"strict_segments,omitempty"`
}

// Agent is one player's piece for the lifetime of a loaded level.
type Agent struct {
	PlayerID        int        `json:"player_id"`
	Start           Position   `json:"start"`
	Goal            Position   `json:"goal"`
	SelectionBudget int        `json:"selection_budget"`
	Color           string     `json:"color,omitempty"`
	CurrentCell     Position   `json:"current_cell"`
	CommittedPath   []Position `json:"committed_path,omitempty"`
}

func newAgent(spec AgentSpec) *Agent {
	return &Agent{
		PlayerID:        spec.PlayerID,
		Start:           spec.Start,
		Goal:            spec.Goal,
		SelectionBudget: spec.SelectionBudget,
		Color:           spec.Color,
		CurrentCell:     spec.Start,
	}
}

// HasCompletePath reports whether the committed path ends on the agent's goal.
func (a *Agent) HasCompletePath() bool {
	n := len(a.CommittedPath)
	return n > 0 && a.CommittedPath[n-1] == a.Goal
}

// State is the game session phase
type State string

const (
	StatePlanning   State = "planning"
	StateSimulating State = "simulating"
	StateGameOver   State = "game_over"
	StateLevelClear State = "level_clear"
)

// RejectReason explains why a candidate waypoint was refused. The empty
// reason means the candidate was accepted.
type RejectReason string

const (
	ReasonNone                 RejectReason = ""
	ReasonTileMissing          RejectReason = "tile_missing"
	ReasonNotStraightLine      RejectReason = "not_straight_line"
	ReasonForeignGoal          RejectReason = "foreign_goal"
	ReasonForeignStart         RejectReason = "foreign_start"
	ReasonBudgetExhausted      RejectReason = "budget_exhausted"
	ReasonDuplicatePoint       RejectReason = "duplicate_point"
	ReasonGoalUnreachableAfter RejectReason = "goal_unreachable_after"
	ReasonSegmentBlocked       RejectReason = "segment_blocked"
	ReasonNoAgentSelected      RejectReason = "no_agent_selected"
)

// Describe returns a human readable explanation of the reason
func (r RejectReason) Describe() string {
	switch r {
	case ReasonNone:
		return "accepted"
	case ReasonTileMissing:
		return "no walkable tile at that cell"
	case ReasonNotStraightLine:
		return "waypoints must be on the same row or column as the previous point"
	case ReasonForeignGoal:
		return "cell is another player's goal"
	case ReasonForeignStart:
		return "cell is another player's start"
	case ReasonBudgetExhausted:
		return "no selections left"
	case ReasonDuplicatePoint:
		return "cell is already the last waypoint"
	case ReasonGoalUnreachableAfter:
		return "goal would be unreachable with the remaining selections"
	case ReasonSegmentBlocked:
		return "segment crosses a blocked cell"
	case ReasonNoAgentSelected:
		return "no agent selected"
	default:
		return string(r)
	}
}

// OutcomeKind is the terminal result of a simulation
type OutcomeKind string

const (
	OutcomeAllReachedGoal     OutcomeKind = "all_reached_goal"
	OutcomeCollision          OutcomeKind = "collision"
	OutcomeStoppedShortOfGoal OutcomeKind = "stopped_short_of_goal"
)

// Outcome describes how a simulation terminated. Cell and AgentIDs are only
// set for collisions.
type Outcome struct {
	Kind     OutcomeKind `json:"kind"`
	Cell     *Position   `json:"cell,omitempty"`
	AgentIDs []int       `json:"agent_ids,omitempty"`
	Tick     int         `json:"tick"`
}

// Success reports whether the outcome clears the level
func (o *Outcome) Success() bool {
	return o != nil && o.Kind == OutcomeAllReachedGoal
}

func (o *Outcome) String() string {
	if o == nil {
		return "none"
	}
	if o.Kind == OutcomeCollision && o.Cell != nil {
		return fmt.Sprintf("%s at %s agents=%v tick=%d", o.Kind, o.Cell, o.AgentIDs, o.Tick)
	}
	return fmt.Sprintf("%s tick=%d", o.Kind, o.Tick)
}
