package validate

import (
	"sort"

	"github.com/wricardo/pathpath/game/engine"
)

// maxDrafts bounds how many partial drafts a route search expands
const maxDrafts = 50000

// Routes enumerates waypoint paths the planner accepts for agent, shortest
// walk first, ties broken by fewer selections. At most limit paths are
// returned. Every path starts with the agent's start and ends on its goal.
func Routes(level *engine.Level, agent engine.AgentSpec, limit int) [][]engine.Position {
	rules := engine.PlanRules{StrictSegments: level.StrictSegments()}
	width, height := level.Bounds()

	var found [][]engine.Position
	explored := 0

	var walk func(draft []engine.Position)
	walk = func(draft []engine.Position) {
		if explored >= maxDrafts {
			return
		}
		explored++

		last := draft[len(draft)-1]
		for _, next := range lineCells(last, width, height) {
			if engine.CheckWaypoint(level, agent, next, draft, rules) != engine.ReasonNone {
				continue
			}
			path := append(append([]engine.Position(nil), draft...), next)
			if next == agent.Goal {
				found = append(found, path)
				continue
			}
			walk(path)
		}
	}
	walk([]engine.Position{agent.Start})

	sort.SliceStable(found, func(i, j int) bool {
		li, lj := engine.PathLength(found[i]), engine.PathLength(found[j])
		if li != lj {
			return li < lj
		}
		return len(found[i]) < len(found[j])
	})
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	return found
}

// lineCells lists every in-bounds cell sharing a row or column with from
func lineCells(from engine.Position, width, height int) []engine.Position {
	cells := make([]engine.Position, 0, width+height-2)
	for x := 0; x < width; x++ {
		if x != from.X {
			cells = append(cells, engine.Position{X: x, Y: from.Y})
		}
	}
	for y := 0; y < height; y++ {
		if y != from.Y {
			cells = append(cells, engine.Position{X: from.X, Y: y})
		}
	}
	return cells
}

// Plan maps each player ID to a waypoint path
type Plan map[int][]engine.Position

// Plans searches combinations of per-agent routes whose walks never meet,
// trying at most perAgent candidates for each agent. yield receives each
// plan in search order; returning false stops the search.
func Plans(level *engine.Level, perAgent int, yield func(Plan) bool) {
	agents := level.Agents()
	if len(agents) == 0 {
		return
	}

	candidates := make([][][]engine.Position, len(agents))
	for i, agent := range agents {
		candidates[i] = Routes(level, agent, perAgent)
		if len(candidates[i]) == 0 {
			return
		}
	}

	walks := make([][]engine.Position, len(agents))
	plan := make(Plan, len(agents))
	explored := 0

	var assign func(i int) bool
	assign = func(i int) bool {
		if i == len(agents) {
			out := make(Plan, len(plan))
			for id, route := range plan {
				out[id] = route
			}
			return yield(out)
		}

		id := agents[i].PlayerID
		for _, route := range candidates[i] {
			if explored >= maxDrafts {
				return false
			}
			explored++

			cells := Expand(route)
			free := true
			for j := 0; j < i; j++ {
				if _, _, hit := meet(walks[j], cells); hit {
					free = false
					break
				}
			}
			if !free {
				continue
			}

			walks[i] = cells
			plan[id] = route
			if !assign(i + 1) {
				return false
			}
		}
		delete(plan, id)
		return true
	}
	assign(0)
}
