package engine

// AgentView is the presentation view of one agent
type AgentView struct {
	PlayerID        int        `json:"player_id"`
	Color           string     `json:"color,omitempty"`
	Start           Position   `json:"start"`
	Goal            Position   `json:"goal"`
	SelectionBudget int        `json:"selection_budget"`
	Remaining       int        `json:"remaining"`
	CurrentCell     Position   `json:"current_cell"`
	Position        Vec2       `json:"position"`
	Moving          bool       `json:"moving"`
	Completed       bool       `json:"completed"`
	CommittedPath   []Position `json:"committed_path,omitempty"`
	PathVisible     bool       `json:"path_visible"`
	Route           []Position `json:"route,omitempty"`
}

// Snapshot is a JSON serialisable view of the whole engine
type Snapshot struct {
	State       State       `json:"state"`
	Level       LevelRef    `json:"level"`
	LevelCount  int         `json:"level_count"`
	Width       int         `json:"width"`
	Height      int         `json:"height"`
	Layout      []string    `json:"layout"`
	Agents      []AgentView `json:"agents"`
	Selected    *int        `json:"selected,omitempty"`
	Draft       []Position  `json:"draft,omitempty"`
	AllComplete bool        `json:"all_complete"`
	Outcome     *Outcome    `json:"outcome,omitempty"`
	Ticks       int         `json:"ticks"`
	ElapsedMS   int64       `json:"elapsed_ms"`
	Finished    bool        `json:"finished"`
}

// Snapshot captures the current state for presentation
func (e *GameEngine) Snapshot() Snapshot {
	cfg := e.level.Config()
	snap := Snapshot{
		State:       e.state,
		Level:       e.levelRef(),
		LevelCount:  len(e.levels),
		Width:       cfg.Width,
		Height:      cfg.Height,
		Layout:      cfg.Layout,
		AllComplete: e.planner.AreAllComplete(),
		Outcome:     e.outcome,
		Ticks:       e.arbiter.Ticks(),
		ElapsedMS:   e.arbiter.Elapsed().Milliseconds(),
		Finished:    e.finished,
	}

	if id, ok := e.planner.Selected(); ok {
		snap.Selected = intPtr(id)
		snap.Draft = e.planner.Draft()
	}

	for _, id := range e.order {
		agent := e.agents[id]
		view := AgentView{
			PlayerID:        agent.PlayerID,
			Color:           agent.Color,
			Start:           agent.Start,
			Goal:            agent.Goal,
			SelectionBudget: agent.SelectionBudget,
			Remaining:       e.planner.Remaining(id),
			CurrentCell:     agent.CurrentCell,
			Completed:       agent.HasCompletePath(),
			CommittedPath:   clonePath(agent.CommittedPath),
			PathVisible:     len(agent.CommittedPath) > 0 && !e.hidden[id],
			Route:           e.arbiter.Route(id),
		}
		if m, ok := e.arbiter.Mover(id); ok {
			view.Position = m.Position()
			view.Moving = m.IsMoving()
		}
		snap.Agents = append(snap.Agents, view)
	}
	return snap
}
