package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/wricardo/pathpath/game/engine"
	"github.com/wricardo/pathpath/game/service"
	"github.com/wricardo/pathpath/validate"
)

var errRejected = errors.New("waypoint rejected")

// Solver plans every agent's route offline, submits the plan through the
// API and lets the server's simulation decide. Plans whose simulated run
// fails are replaced by the next candidate plan.
type Solver struct {
	client     *Client
	strict     map[int]bool
	candidates int
	attempts   int
	keepGoing  bool
	verbose    bool
}

// LevelResult records how one level went
type LevelResult struct {
	Name     string
	Cleared  bool
	Attempts int
	Outcome  *engine.Outcome
}

// levelFromSnapshot rebuilds the level a snapshot shows. Snapshots do not
// carry the segment rule, so strict comes from the level listing.
func levelFromSnapshot(snap *engine.Snapshot, strict bool) (*engine.Level, error) {
	cfg := &engine.LevelConfig{
		ID:             snap.Level.ID,
		Name:           snap.Level.Name,
		Width:          snap.Width,
		Height:         snap.Height,
		Layout:         snap.Layout,
		StrictSegments: strict,
	}
	for _, a := range snap.Agents {
		cfg.Agents = append(cfg.Agents, engine.AgentSpec{
			PlayerID:        a.PlayerID,
			Start:           a.Start,
			Goal:            a.Goal,
			SelectionBudget: a.SelectionBudget,
			Color:           a.Color,
		})
	}
	return engine.NewLevel(cfg)
}

// Solve plays from snap until every level is done or a level cannot be
// cleared.
func (s *Solver) Solve(ctx context.Context, snap *engine.Snapshot) ([]LevelResult, error) {
	var results []LevelResult
	var err error

	for !snap.Finished {
		switch snap.State {
		case engine.StateLevelClear:
			if snap, err = s.client.Advance(ctx); err != nil {
				return results, err
			}
			continue
		case engine.StateSimulating:
			return results, fmt.Errorf("session %s is simulating", s.client.sessionID)
		}

		var result LevelResult
		snap, result, err = s.SolveLevel(ctx, snap)
		if err != nil {
			return results, err
		}
		results = append(results, result)

		if !result.Cleared {
			if !s.keepGoing || snap.State == engine.StatePlanning {
				break
			}
		}
		if snap, err = s.client.Advance(ctx); err != nil {
			return results, err
		}
	}
	return results, nil
}

// SolveLevel tries candidate plans for the current level until one clears
// it or the attempt limit is reached.
func (s *Solver) SolveLevel(ctx context.Context, snap *engine.Snapshot) (*engine.Snapshot, LevelResult, error) {
	result := LevelResult{Name: snap.Level.Name}

	level, err := levelFromSnapshot(snap, s.strict[snap.Level.ID])
	if err != nil {
		return snap, result, fmt.Errorf("rebuild level %q: %w", snap.Level.Name, err)
	}
	log.Printf("📊 Level %d/%d: %s (%dx%d, %d agents)",
		snap.Level.Index+1, snap.LevelCount, snap.Level.Name, snap.Width, snap.Height, len(snap.Agents))

	var runErr error
	try := func(plan validate.Plan) bool {
		if snap.State != engine.StatePlanning {
			next, err := s.client.Restart(ctx)
			if err != nil {
				runErr = err
				return false
			}
			snap = next
		}

		result.Attempts++
		log.Printf("=== 🎮 Attempt %d/%d ===", result.Attempts, s.attempts)

		sim, err := s.submit(ctx, level, plan)
		if errors.Is(err, errRejected) {
			log.Printf("⚠️  %v, trying next plan", err)
			return result.Attempts < s.attempts
		}
		if err != nil {
			runErr = err
			return false
		}

		snap = sim.State
		result.Outcome = sim.Outcome
		if sim.Outcome.Success() {
			result.Cleared = true
			log.Printf("✅ %s", sim.Message)
			return false
		}
		log.Printf("❌ %s", sim.Message)
		return result.Attempts < s.attempts
	}

	validate.Plans(level, s.candidates, try)

	if runErr == nil && result.Attempts == 0 {
		// No plan keeps the walks apart; let the server judge the shortest one
		log.Printf("⚠️  No collision-free plan found, falling back to shortest routes")
		plan := validate.Plan{}
		for _, agent := range level.Agents() {
			route, ok := validate.ShortestRoute(level, agent)
			if !ok {
				log.Printf("❌ Player %d cannot reach its goal", agent.PlayerID)
				return snap, result, nil
			}
			plan[agent.PlayerID] = route
		}
		try(plan)
	}

	return snap, result, runErr
}

// submit enters plan through the planner endpoints and runs the simulation
func (s *Solver) submit(ctx context.Context, level *engine.Level, plan validate.Plan) (*service.SimulationResult, error) {
	for _, agent := range level.Agents() {
		route := plan[agent.PlayerID]

		sel, err := s.client.Select(ctx, agent.PlayerID)
		if err != nil {
			return nil, err
		}
		if sel.Result != engine.SelectOpened {
			return nil, fmt.Errorf("select player %d: %s", agent.PlayerID, sel.Result)
		}

		for _, wp := range route[1:] {
			res, err := s.client.Waypoint(ctx, wp)
			if err != nil {
				return nil, err
			}
			if !res.Accepted {
				if err := s.client.Deselect(ctx); err != nil {
					return nil, err
				}
				return nil, fmt.Errorf("%w: player %d at %s (%s)", errRejected, agent.PlayerID, wp, res.Reason)
			}
		}
		if s.verbose {
			log.Printf("Player %d: %s", agent.PlayerID, formatRoute(route))
		}
	}

	sim, err := s.client.Run(ctx)
	if err != nil {
		return nil, err
	}
	if !sim.Started && sim.Outcome == nil {
		return nil, fmt.Errorf("simulation did not start: %s", sim.Message)
	}
	return sim, nil
}

func formatRoute(route []engine.Position) string {
	out := ""
	for i, p := range route {
		if i > 0 {
			out += "→"
		}
		out += p.String()
	}
	return out
}
