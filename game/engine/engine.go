package engine

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	ErrNotPlanning       = errors.New("not in planning state")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrSessionFinished   = errors.New("all levels complete")
)

// DefaultCompletionHideDelay is how long a completed path stays visible
const DefaultCompletionHideDelay = time.Second

// Engine provides the main interface for game operations
type Engine interface {
	// Planning
	SelectAgent(playerID int) (SelectResult, error)
	Deselect() bool
	ProposeWaypoint(candidate Position) (ProposeResult, error)
	PointerDown(world Vec2) (PointerResult, error)
	AreAllComplete() bool

	// Simulation
	StartSimulation() bool
	Advance(dt time.Duration) *Outcome
	Halt() (*Outcome, error)

	// Level flow
	RestartLevel() error
	AdvanceLevel() error

	// State
	State() State
	Level() *Level
	LevelIndex() int
	LevelCount() int
	Agents() []Agent
	Outcome() *Outcome
	IsFinished() bool
	Snapshot() Snapshot
	Events() *EventBus
}

// Settings tune the timing of a game engine
type Settings struct {
	PollInterval        time.Duration
	FrameStep           time.Duration
	MoveSpeed           float64
	CompletionHideDelay time.Duration
	Occupancy           OccupancyMode
}

// DefaultSettings returns the reference timing
func DefaultSettings() Settings {
	return Settings{
		PollInterval:        DefaultPollInterval,
		FrameStep:           DefaultFrameStep,
		MoveSpeed:           DefaultMoveSpeed,
		CompletionHideDelay: DefaultCompletionHideDelay,
		Occupancy:           OccupancyWaypoint,
	}
}

func (s Settings) arbiterOptions() ArbiterOptions {
	return ArbiterOptions{
		PollInterval: s.PollInterval,
		FrameStep:    s.FrameStep,
		MoveSpeed:    s.MoveSpeed,
		Occupancy:    s.Occupancy,
	}
}

// GameEngine implements the Engine interface. It is not safe for concurrent
// use; callers serialize access.
type GameEngine struct {
	settings Settings
	levels   []*Level
	index    int
	level    *Level

	state    State
	finished bool
	outcome  *Outcome

	planner *Planner
	arbiter *Arbiter
	agents  map[int]*Agent
	order   []int

	hideTimers map[int]time.Duration
	hidden     map[int]bool

	bus *EventBus
}

// Option configures a GameEngine
type Option func(*GameEngine)

// WithEventBus publishes to bus instead of a private one. Handlers already
// subscribed to bus see the first level_loaded and state_changed events.
func WithEventBus(bus *EventBus) Option {
	return func(e *GameEngine) {
		if bus != nil {
			e.bus = bus
		}
	}
}

// NewEngine creates a game engine playing levels in order. Every level is
// validated up front.
func NewEngine(levels []*LevelConfig, settings Settings, opts ...Option) (*GameEngine, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("%w: no levels", ErrInvalidLevel)
	}

	built := make([]*Level, 0, len(levels))
	for i, cfg := range levels {
		lvl, err := NewLevel(cfg)
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", i, err)
		}
		built = append(built, lvl)
	}

	if settings.CompletionHideDelay < 0 {
		settings.CompletionHideDelay = 0
	}

	e := &GameEngine{
		settings: settings,
		levels:   built,
		bus:      NewEventBus(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.loadLevel(0)
	return e, nil
}

// NewEngineWithDefaults creates a game engine with the built-in level
func NewEngineWithDefaults() *GameEngine {
	e, err := NewEngine([]*LevelConfig{DefaultLevelConfig()}, DefaultSettings())
	if err != nil {
		panic(fmt.Sprintf("default level is invalid: %v", err))
	}
	return e
}

// loadLevel recreates agents, planner and arbiter for level i and enters
// Planning.
func (e *GameEngine) loadLevel(i int) {
	e.index = i
	e.level = e.levels[i]
	e.outcome = nil
	e.planner = NewPlanner(e.level, PlanRules{StrictSegments: e.level.StrictSegments()})
	e.arbiter = NewArbiter(e.level.Grid(), e.level.Agents(), e.settings.arbiterOptions())

	e.agents = make(map[int]*Agent)
	e.order = e.order[:0]
	for _, spec := range e.level.Agents() {
		e.agents[spec.PlayerID] = newAgent(spec)
		e.order = append(e.order, spec.PlayerID)
	}
	sort.Ints(e.order)

	e.hideTimers = make(map[int]time.Duration)
	e.hidden = make(map[int]bool)

	ref := e.levelRef()
	e.bus.Publish(Event{Type: EventLevelLoaded, Level: &ref})
	e.setState(StatePlanning)
}

func (e *GameEngine) levelRef() LevelRef {
	return LevelRef{Index: e.index, ID: e.level.ID(), Name: e.level.Name()}
}

func (e *GameEngine) setState(s State) {
	e.state = s
	e.bus.Publish(Event{Type: EventStateChanged, State: s})
}

func (e *GameEngine) checkPlanning() error {
	if e.finished {
		return ErrSessionFinished
	}
	if e.state != StatePlanning {
		return fmt.Errorf("%w: state is %s", ErrNotPlanning, e.state)
	}
	return nil
}

// SelectAgent opens a planning draft for playerID. Re-selecting the agent
// with the open draft discards that draft.
func (e *GameEngine) SelectAgent(playerID int) (SelectResult, error) {
	if err := e.checkPlanning(); err != nil {
		return "", err
	}

	result, err := e.planner.Select(playerID)
	if err != nil {
		return "", err
	}

	switch result {
	case SelectOpened:
		e.bus.Publish(Event{
			Type:      EventAgentSelected,
			PlayerID:  intPtr(playerID),
			Cell:      posPtr(e.agents[playerID].Start),
			Remaining: intPtr(e.planner.Remaining(playerID)),
		})
	case SelectAborted:
		e.bus.Publish(Event{Type: EventAgentSelected})
	}
	return result, nil
}

// Deselect closes the open draft. Committed paths are kept.
func (e *GameEngine) Deselect() bool {
	if e.state != StatePlanning || !e.planner.Deselect() {
		return false
	}
	e.bus.Publish(Event{Type: EventAgentSelected})
	return true
}

// ProposeWaypoint offers candidate as the next waypoint of the selected agent
func (e *GameEngine) ProposeWaypoint(candidate Position) (ProposeResult, error) {
	if err := e.checkPlanning(); err != nil {
		return ProposeResult{}, err
	}

	result := e.planner.Propose(candidate)
	var player *int
	if result.Reason != ReasonNoAgentSelected {
		player = intPtr(result.PlayerID)
	}

	if !result.Accepted {
		e.bus.Publish(Event{
			Type:     EventWaypointRejected,
			PlayerID: player,
			Cell:     posPtr(candidate),
			Reason:   result.Reason,
		})
		return result, nil
	}

	e.bus.Publish(Event{
		Type:      EventWaypointAccepted,
		PlayerID:  player,
		Cell:      posPtr(candidate),
		Path:      clonePath(result.Draft),
		Remaining: intPtr(result.Remaining),
	})

	if result.Completed {
		agent := e.agents[result.PlayerID]
		agent.CommittedPath = clonePath(result.Draft)
		e.hidden[agent.PlayerID] = false
		e.hideTimers[agent.PlayerID] = e.settings.CompletionHideDelay

		e.bus.Publish(Event{
			Type:     EventAgentCompleted,
			PlayerID: player,
			Path:     clonePath(result.Draft),
		})
		e.bus.Publish(Event{Type: EventAgentSelected})
	}
	return result, nil
}

// PointerAction is what a pointer press resolved to
type PointerAction string

const (
	PointerIgnored  PointerAction = "ignored"
	PointerSelected PointerAction = "selected"
	PointerProposed PointerAction = "proposed"
)

// PointerResult describes the effect of a pointer press
type PointerResult struct {
	Cell    Position       `json:"cell"`
	Action  PointerAction  `json:"action"`
	Select  SelectResult   `json:"select,omitempty"`
	Propose *ProposeResult `json:"propose,omitempty"`
}

// PointerDown resolves a press at a world position. An agent standing on the
// pressed cell is selected; otherwise the cell is proposed for the selected
// agent. With nothing selected the press is ignored.
func (e *GameEngine) PointerDown(world Vec2) (PointerResult, error) {
	if err := e.checkPlanning(); err != nil {
		return PointerResult{}, err
	}

	cell := e.level.Grid().WorldToGrid(world)
	result := PointerResult{Cell: cell, Action: PointerIgnored}

	for _, id := range e.order {
		if e.agents[id].CurrentCell != cell {
			continue
		}
		sel, err := e.SelectAgent(id)
		if err != nil {
			return result, err
		}
		result.Action = PointerSelected
		result.Select = sel
		return result, nil
	}

	if _, ok := e.planner.Selected(); !ok {
		return result, nil
	}

	proposed, err := e.ProposeWaypoint(cell)
	if err != nil {
		return result, err
	}
	result.Action = PointerProposed
	result.Propose = &proposed
	return result, nil
}

// AreAllComplete reports whether every agent has a committed path
func (e *GameEngine) AreAllComplete() bool {
	return e.planner.AreAllComplete()
}

// StartSimulation consumes every committed path and enters Simulating. It
// is a no-op returning false unless planning is complete.
func (e *GameEngine) StartSimulation() bool {
	if e.finished || e.state != StatePlanning || !e.planner.AreAllComplete() {
		return false
	}

	_, hadSelection := e.planner.Selected()
	paths := e.planner.TakeCommitted()
	for _, agent := range e.agents {
		agent.CommittedPath = nil
	}
	e.hideTimers = make(map[int]time.Duration)
	if hadSelection {
		e.bus.Publish(Event{Type: EventAgentSelected})
	}

	e.outcome = nil
	e.arbiter.Reset(e.level.Agents())
	e.arbiter.Start(paths)

	e.bus.Publish(Event{Type: EventSimulationStarted, Level: ptrLevelRef(e.levelRef())})
	e.setState(StateSimulating)
	return true
}

// Advance is the single time input of the engine. It fires pending path
// hide timers and, while Simulating, steps the arbiter. It returns the
// outcome when the simulation terminates during this call.
func (e *GameEngine) Advance(dt time.Duration) *Outcome {
	if dt <= 0 {
		return nil
	}
	e.advanceHideTimers(dt)

	if e.state != StateSimulating {
		return nil
	}

	outcome := e.arbiter.Advance(dt)
	e.syncAgents()
	if outcome != nil {
		e.conclude(outcome)
	}
	return outcome
}

func (e *GameEngine) advanceHideTimers(dt time.Duration) {
	if len(e.hideTimers) == 0 {
		return
	}
	var due []int
	for id, left := range e.hideTimers {
		left -= dt
		if left <= 0 {
			due = append(due, id)
			continue
		}
		e.hideTimers[id] = left
	}
	sort.Ints(due)
	for _, id := range due {
		delete(e.hideTimers, id)
		e.hidden[id] = true
		e.bus.Publish(Event{Type: EventPathHidden, PlayerID: intPtr(id)})
	}
}

// Halt force stops every agent and evaluates the simulation immediately
func (e *GameEngine) Halt() (*Outcome, error) {
	if e.state != StateSimulating {
		return nil, fmt.Errorf("%w: cannot halt in %s", ErrInvalidTransition, e.state)
	}
	e.arbiter.StopAll()
	outcome := e.arbiter.Poll()
	e.syncAgents()
	if outcome != nil {
		e.conclude(outcome)
	}
	return outcome, nil
}

func (e *GameEngine) syncAgents() {
	for id, agent := range e.agents {
		if m, ok := e.arbiter.Mover(id); ok {
			agent.CurrentCell = m.CurrentCell()
		}
	}
}

func (e *GameEngine) conclude(outcome *Outcome) {
	e.outcome = outcome
	e.bus.Publish(Event{Type: EventSimulationOutcome, Outcome: outcome})
	if outcome.Success() {
		e.setState(StateLevelClear)
	} else {
		e.setState(StateGameOver)
	}
}

func (e *GameEngine) checkTerminal(action string) error {
	if e.finished {
		return ErrSessionFinished
	}
	if e.state != StateGameOver && e.state != StateLevelClear {
		return fmt.Errorf("%w: cannot %s in %s", ErrInvalidTransition, action, e.state)
	}
	return nil
}

// RestartLevel reloads the current level
func (e *GameEngine) RestartLevel() error {
	if err := e.checkTerminal("restart"); err != nil {
		return err
	}
	e.loadLevel(e.index)
	return nil
}

// AdvanceLevel loads the next level. Advancing past the last level ends the
// session.
func (e *GameEngine) AdvanceLevel() error {
	if err := e.checkTerminal("advance"); err != nil {
		return err
	}
	if e.index+1 >= len(e.levels) {
		e.finished = true
		e.bus.Publish(Event{Type: EventAllLevelsComplete, Level: ptrLevelRef(e.levelRef())})
		return nil
	}
	e.loadLevel(e.index + 1)
	return nil
}

// State returns the current phase
func (e *GameEngine) State() State {
	return e.state
}

// Level returns the level being played
func (e *GameEngine) Level() *Level {
	return e.level
}

// LevelIndex returns the position of the current level in the sequence
func (e *GameEngine) LevelIndex() int {
	return e.index
}

// LevelCount returns the length of the level sequence
func (e *GameEngine) LevelCount() int {
	return len(e.levels)
}

// Agents returns copies of the agents ordered by player ID
func (e *GameEngine) Agents() []Agent {
	out := make([]Agent, 0, len(e.order))
	for _, id := range e.order {
		a := *e.agents[id]
		a.CommittedPath = clonePath(a.CommittedPath)
		out = append(out, a)
	}
	return out
}

// Outcome returns the outcome of the last simulation on this level
func (e *GameEngine) Outcome() *Outcome {
	return e.outcome
}

// IsFinished reports whether every level has been played
func (e *GameEngine) IsFinished() bool {
	return e.finished
}

// Events returns the engine's event bus
func (e *GameEngine) Events() *EventBus {
	return e.bus
}

// Settings returns the timing in use
func (e *GameEngine) Settings() Settings {
	return e.settings
}

func ptrLevelRef(r LevelRef) *LevelRef {
	return &r
}
