package engine

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownAgent = errors.New("unknown agent")
)

// PlanRules are level-wide switches for waypoint validation
type PlanRules struct {
	// StrictSegments additionally rejects segments whose intermediate cells
	// are not walkable. Endpoints are always validated.
	StrictSegments bool
}

// CheckWaypoint validates one candidate waypoint for agent given the current
// draft. It is a pure function of its arguments. The checks run in a fixed
// order and stop at the first failure.
func CheckWaypoint(geom Geometry, agent AgentSpec, candidate Position, draft []Position, rules PlanRules) RejectReason {
	if !geom.IsWalkable(candidate) {
		return ReasonTileMissing
	}

	last := agent.Start
	if len(draft) > 0 {
		last = draft[len(draft)-1]
	}
	if !IsStraightLine(last, candidate) {
		return ReasonNotStraightLine
	}

	for _, other := range geom.Agents() {
		if other.PlayerID != agent.PlayerID && other.Goal == candidate {
			return ReasonForeignGoal
		}
	}
	for _, other := range geom.Agents() {
		if other.PlayerID != agent.PlayerID && other.Start == candidate {
			return ReasonForeignStart
		}
	}

	maxPoints := agent.SelectionBudget + 1
	if len(draft) >= maxPoints {
		return ReasonBudgetExhausted
	}

	if len(draft) > 0 && draft[len(draft)-1] == candidate {
		return ReasonDuplicatePoint
	}

	remaining := maxPoints - (len(draft) + 1)
	switch {
	case remaining == 0 && candidate != agent.Goal:
		return ReasonGoalUnreachableAfter
	case remaining == 1 && !SharesAxis(candidate, agent.Goal):
		return ReasonGoalUnreachableAfter
	}

	if rules.StrictSegments {
		for _, cell := range SegmentCells(last, candidate) {
			if !geom.IsWalkable(cell) {
				return ReasonSegmentBlocked
			}
		}
	}

	return ReasonNone
}

// SelectResult describes what a selection command did
type SelectResult string

const (
	SelectOpened  SelectResult = "opened"  // a new draft was started
	SelectAborted SelectResult = "aborted" // the active agent was re-selected, its draft discarded
	SelectBusy    SelectResult = "busy"    // another agent has an open draft
)

// ProposeResult is the outcome of one proposed waypoint
type ProposeResult struct {
	PlayerID  int          `json:"player_id,omitempty"`
	Candidate Position     `json:"candidate"`
	Accepted  bool         `json:"accepted"`
	Reason    RejectReason `json:"reason,omitempty"`
	Completed bool         `json:"completed,omitempty"`
	Draft     []Position   `json:"draft,omitempty"`
	Remaining int          `json:"remaining"`
}

// Planner builds draft paths one waypoint at a time. At most one agent has
// an open draft at any time.
type Planner struct {
	geom      Geometry
	rules     PlanRules
	agents    map[int]AgentSpec
	order     []int
	committed map[int][]Position

	selected    int
	hasSelected bool
	draft       []Position
}

// NewPlanner creates a planner for the agents of geom
func NewPlanner(geom Geometry, rules PlanRules) *Planner {
	p := &Planner{
		geom:      geom,
		rules:     rules,
		agents:    make(map[int]AgentSpec),
		committed: make(map[int][]Position),
	}
	for _, a := range geom.Agents() {
		p.agents[a.PlayerID] = a
		p.order = append(p.order, a.PlayerID)
	}
	return p
}

// Select opens, aborts or refuses a planning draft for playerID
func (p *Planner) Select(playerID int) (SelectResult, error) {
	if _, ok := p.agents[playerID]; !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownAgent, playerID)
	}

	if p.hasSelected {
		if p.selected == playerID {
			p.clearSelection()
			return SelectAborted, nil
		}
		return SelectBusy, nil
	}

	p.selected = playerID
	p.hasSelected = true
	p.draft = []Position{p.agents[playerID].Start}
	return SelectOpened, nil
}

// Deselect closes the open draft, if any. Committed paths are kept.
func (p *Planner) Deselect() bool {
	if !p.hasSelected {
		return false
	}
	p.clearSelection()
	return true
}

// Propose validates candidate for the selected agent and appends it to the
// draft when accepted. Reaching the agent's goal commits the draft.
func (p *Planner) Propose(candidate Position) ProposeResult {
	if !p.hasSelected {
		return ProposeResult{Candidate: candidate, Reason: ReasonNoAgentSelected}
	}

	agent := p.agents[p.selected]
	result := ProposeResult{PlayerID: agent.PlayerID, Candidate: candidate}

	if reason := CheckWaypoint(p.geom, agent, candidate, p.draft, p.rules); reason != ReasonNone {
		result.Reason = reason
		result.Draft = clonePath(p.draft)
		result.Remaining = p.remaining(agent, p.draft)
		return result
	}

	p.draft = append(p.draft, candidate)
	result.Accepted = true
	result.Draft = clonePath(p.draft)
	result.Remaining = p.remaining(agent, p.draft)

	if candidate == agent.Goal {
		p.committed[agent.PlayerID] = clonePath(p.draft)
		p.clearSelection()
		result.Completed = true
	}

	return result
}

// Selected returns the agent with the open draft
func (p *Planner) Selected() (int, bool) {
	return p.selected, p.hasSelected
}

// Draft returns a copy of the open draft
func (p *Planner) Draft() []Position {
	return clonePath(p.draft)
}

// Committed returns a copy of an agent's committed path
func (p *Planner) Committed(playerID int) []Position {
	return clonePath(p.committed[playerID])
}

// Remaining returns how many waypoints playerID can still choose. Agents
// without an open draft report their full budget unless already committed.
func (p *Planner) Remaining(playerID int) int {
	agent, ok := p.agents[playerID]
	if !ok {
		return 0
	}
	if p.hasSelected && p.selected == playerID {
		return p.remaining(agent, p.draft)
	}
	if path, ok := p.committed[playerID]; ok {
		return p.remaining(agent, path)
	}
	return agent.SelectionBudget
}

func (p *Planner) remaining(agent AgentSpec, draft []Position) int {
	used := len(draft) - 1
	if used < 0 {
		used = 0
	}
	return agent.SelectionBudget - used
}

// AreAllComplete reports whether every agent has a committed path ending on
// its own goal.
func (p *Planner) AreAllComplete() bool {
	if len(p.order) == 0 {
		return false
	}
	for _, id := range p.order {
		path := p.committed[id]
		if len(path) == 0 || path[len(path)-1] != p.agents[id].Goal {
			return false
		}
	}
	return true
}

// TakeCommitted returns every committed path and clears planner state.
// Execution consumes committed paths exactly once.
func (p *Planner) TakeCommitted() map[int][]Position {
	paths := p.committed
	p.committed = make(map[int][]Position)
	p.clearSelection()
	return paths
}

// Reset drops every draft and committed path
func (p *Planner) Reset() {
	p.committed = make(map[int][]Position)
	p.clearSelection()
}

func (p *Planner) clearSelection() {
	p.selected = 0
	p.hasSelected = false
	p.draft = nil
}
