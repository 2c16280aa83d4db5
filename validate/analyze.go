package validate

import (
	"fmt"
	"io"

	"github.com/wricardo/pathpath/game/engine"
)

// AgentAnalysis summarizes one agent's shortest waypoint route
type AgentAnalysis struct {
	PlayerID   int
	Start      engine.Position
	Goal       engine.Position
	Distance   int
	Budget     int
	Selections int // -1 when the goal is unreachable
	Route      []engine.Position
	Cells      []engine.Position
}

// Conflict is a cell two agents occupy on the same step when both follow
// their shortest routes at equal speed
type Conflict struct {
	Players [2]int
	Cell    engine.Position
	Step    int
}

// Analysis is a heuristic summary of a level
type Analysis struct {
	Name      string
	Width     int
	Height    int
	Walkable  int
	Agents    []AgentAnalysis
	Conflicts []Conflict
}

// Analyze computes shortest routes for every agent and the conflicts
// between them. Agents that finish early keep occupying their goal.
func Analyze(cfg *engine.LevelConfig) (*Analysis, error) {
	level, err := engine.NewLevel(cfg)
	if err != nil {
		return nil, err
	}

	analysis := &Analysis{
		Name:     cfg.Name,
		Width:    cfg.Width,
		Height:   cfg.Height,
		Walkable: level.WalkableCount(),
	}

	for _, agent := range cfg.Agents {
		a := AgentAnalysis{
			PlayerID:   agent.PlayerID,
			Start:      agent.Start,
			Goal:       agent.Goal,
			Distance:   engine.ManhattanDistance(agent.Start, agent.Goal),
			Budget:     agent.SelectionBudget,
			Selections: -1,
		}
		if route, ok := ShortestRoute(level, agent); ok {
			a.Selections = len(route) - 1
			a.Route = route
			a.Cells = Expand(route)
		}
		analysis.Agents = append(analysis.Agents, a)
	}

	for i := 0; i < len(analysis.Agents); i++ {
		for j := i + 1; j < len(analysis.Agents); j++ {
			if c, ok := firstConflict(analysis.Agents[i], analysis.Agents[j]); ok {
				analysis.Conflicts = append(analysis.Conflicts, c)
			}
		}
	}

	return analysis, nil
}

func cellAt(cells []engine.Position, step int) engine.Position {
	if step >= len(cells) {
		return cells[len(cells)-1]
	}
	return cells[step]
}

// meet returns the first step at which two walks occupy the same cell or
// swap cells head-on. Walks that have ended stay on their last cell.
func meet(a, b []engine.Position) (engine.Position, int, bool) {
	if len(a) == 0 || len(b) == 0 {
		return engine.Position{}, 0, false
	}
	steps := len(a)
	if len(b) > steps {
		steps = len(b)
	}
	for step := 0; step < steps; step++ {
		if cell := cellAt(a, step); cell == cellAt(b, step) {
			return cell, step, true
		}
		if step+1 < steps && cellAt(a, step) == cellAt(b, step+1) && cellAt(b, step) == cellAt(a, step+1) {
			return cellAt(a, step+1), step + 1, true
		}
	}
	return engine.Position{}, 0, false
}

func firstConflict(a, b AgentAnalysis) (Conflict, bool) {
	cell, step, ok := meet(a.Cells, b.Cells)
	if !ok {
		return Conflict{}, false
	}
	return Conflict{Players: [2]int{a.PlayerID, b.PlayerID}, Cell: cell, Step: step}, true
}

// WriteAnalysis prints a human-readable analysis of the level file at path
func WriteAnalysis(w io.Writer, path string) error {
	cfg, err := engine.LoadLevelFile(path)
	if err != nil {
		return err
	}

	analysis, err := Analyze(cfg)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Name: %s\n", analysis.Name)
	fmt.Fprintf(w, "Grid Size: %d x %d\n", analysis.Width, analysis.Height)
	fmt.Fprintf(w, "Walkable Cells: %d\n", analysis.Walkable)
	fmt.Fprintf(w, "Agents: %d\n", len(analysis.Agents))

	for _, a := range analysis.Agents {
		if a.Selections < 0 {
			fmt.Fprintf(w, "⚠️  CRITICAL: player %d cannot reach %s from %s\n", a.PlayerID, a.Goal, a.Start)
			continue
		}
		status := "✅"
		if a.Selections > a.Budget {
			status = "⚠️ "
		}
		fmt.Fprintf(w, "%s Player %d: %s -> %s, distance %d, %d/%d selections, %d steps via %s\n",
			status, a.PlayerID, a.Start, a.Goal, a.Distance, a.Selections, a.Budget, len(a.Cells)-1, formatRoute(a.Route))
	}

	if len(analysis.Conflicts) == 0 {
		fmt.Fprintln(w, "✅ Shortest routes never share a cell on the same step")
		return nil
	}
	for _, c := range analysis.Conflicts {
		fmt.Fprintf(w, "⚠️  Players %d and %d meet at %s on step %d of their shortest routes\n",
			c.Players[0], c.Players[1], c.Cell, c.Step)
	}
	return nil
}
