// Package validate checks level files beyond the structural validation the
// engine performs on load. It checks:
//   - Decoding (JSON or YAML) and engine.ValidateLevel
//   - Every agent can reach its goal with straight-line waypoints within
//     its selection budget
//   - Layout S/G markers agree with the agent definitions
//   - Level IDs are unique across a directory
//
// It also produces a short analysis of each level: shortest waypoint routes
// and cells where two agents would arrive on the same step.
package validate

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wricardo/pathpath/game/engine"
)

// Result captures the outcome of validating a single file. Errors is empty
// when Valid is true; Info always carries a summary of what was checked.
type Result struct {
	File   string
	Level  *engine.LevelConfig
	Valid  bool
	Errors []string
	Info   []string
}

func (r *Result) fail(format string, args ...interface{}) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) info(format string, args ...interface{}) {
	r.Info = append(r.Info, fmt.Sprintf(format, args...))
}

// File loads and validates a single level file
func File(path string) Result {
	result := Result{
		File:  filepath.Base(path),
		Valid: true,
	}

	format, ok := engine.FormatFromPath(path)
	if !ok {
		result.fail("Unsupported file extension %q", filepath.Ext(path))
		return result
	}

	data, err := os.ReadFile(path)
	if err != nil {
		result.fail("Failed to read file: %v", err)
		return result
	}

	cfg, err := engine.DecodeLevel(data, format)
	if err != nil {
		result.fail("Invalid %s: %v", strings.ToUpper(string(format)), err)
		return result
	}
	result.Level = cfg

	Level(cfg, &result)
	return result
}

// Level validates a decoded level, appending problems and info to result
func Level(cfg *engine.LevelConfig, result *Result) {
	if err := engine.ValidateLevel(cfg); err != nil {
		result.fail("%v", err)
		return
	}

	level, err := engine.NewLevel(cfg)
	if err != nil {
		result.fail("%v", err)
		return
	}

	checkMarkers(cfg, result)

	// Reachability within budget
	for _, agent := range cfg.Agents {
		route, ok := ShortestRoute(level, agent)
		if !ok {
			result.fail("Player %d cannot reach goal %s from %s with straight-line waypoints", agent.PlayerID, agent.Goal, agent.Start)
			continue
		}
		needed := len(route) - 1
		if needed > agent.SelectionBudget {
			result.fail("Player %d needs %d selections to reach %s but has a budget of %d",
				agent.PlayerID, needed, agent.Goal, agent.SelectionBudget)
			continue
		}
		result.info("✓ Player %d: %d/%d selections via %s", agent.PlayerID, needed, agent.SelectionBudget, formatRoute(route))
	}

	if result.Valid {
		result.info("✓ Name: %s (id %d)", cfg.Name, cfg.ID)
		result.info("✓ Grid: %dx%d, %d walkable", cfg.Width, cfg.Height, level.WalkableCount())
		result.info("✓ Agents: %d", len(cfg.Agents))
		if cfg.StrictSegments {
			result.info("✓ Strict segments")
		}
	}
}

// checkMarkers compares layout S/G markers with the agent definitions. The
// markers are cosmetic, so a mismatch is reported as a problem only when a
// marker has no matching agent.
func checkMarkers(cfg *engine.LevelConfig, result *Result) {
	starts := map[engine.Position]bool{}
	goals := map[engine.Position]bool{}
	for _, a := range cfg.Agents {
		starts[a.Start] = true
		goals[a.Goal] = true
	}

	for row, line := range cfg.Layout {
		y := cfg.Height - 1 - row
		for x, ch := range line {
			pos := engine.Position{X: x, Y: y}
			switch ch {
			case engine.TileStart:
				if !starts[pos] {
					result.fail("Layout marks a start at %s but no agent starts there", pos)
				}
			case engine.TileGoal:
				if !goals[pos] {
					result.fail("Layout marks a goal at %s but no agent's goal is there", pos)
				}
			}
		}
	}
}

// ShortestRoute finds a waypoint path from the agent's start to its goal
// using the fewest selections. The returned path starts with the start
// cell. Waypoints follow the planner's rules: walkable, straight-line from
// the previous point and never another agent's start or goal.
func ShortestRoute(level *engine.Level, agent engine.AgentSpec) ([]engine.Position, bool) {
	width, height := level.Bounds()

	forbidden := map[engine.Position]bool{}
	for _, other := range level.Agents() {
		if other.PlayerID != agent.PlayerID {
			forbidden[other.Start] = true
			forbidden[other.Goal] = true
		}
	}

	parent := map[engine.Position]engine.Position{}
	visited := map[engine.Position]bool{agent.Start: true}
	queue := []engine.Position{agent.Start}
	directions := []engine.Position{{X: 0, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: -1}, {X: -1, Y: 0}}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current == agent.Goal {
			path := []engine.Position{current}
			for current != agent.Start {
				current = parent[current]
				path = append(path, current)
			}
			for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
				path[i], path[j] = path[j], path[i]
			}
			return path, true
		}

		for _, dir := range directions {
			for step := 1; ; step++ {
				next := engine.Position{X: current.X + dir.X*step, Y: current.Y + dir.Y*step}
				if next.X < 0 || next.Y < 0 || next.X >= width || next.Y >= height {
					break
				}
				if !level.IsWalkable(next) {
					if level.StrictSegments() {
						break
					}
					continue
				}
				if forbidden[next] || visited[next] {
					continue
				}
				visited[next] = true
				parent[next] = current
				queue = append(queue, next)
			}
		}
	}

	return nil, false
}

// Expand turns a waypoint path into the cell-by-cell route an agent walks
func Expand(path []engine.Position) []engine.Position {
	if len(path) == 0 {
		return nil
	}
	route := []engine.Position{path[0]}
	for i := 1; i < len(path); i++ {
		route = append(route, engine.SegmentCells(path[i-1], path[i])...)
		route = append(route, path[i])
	}
	return route
}

func formatRoute(path []engine.Position) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = p.String()
	}
	return strings.Join(parts, "→")
}

// Dir validates every level file in dir, sorted by file name, and flags
// duplicate level IDs.
func Dir(dir string) ([]Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read level directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !engine.IsLevelFile(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)

	results := make([]Result, 0, len(files))
	ids := map[int]string{}
	stems := map[string]string{}
	for _, file := range files {
		result := File(file)
		stem := strings.TrimSuffix(result.File, filepath.Ext(result.File))
		if other, ok := stems[stem]; ok {
			result.fail("Level name %q is already used by %s", stem, other)
		} else {
			stems[stem] = result.File
		}
		if result.Level != nil {
			if other, ok := ids[result.Level.ID]; ok {
				result.fail("Level id %d is already used by %s", result.Level.ID, other)
			} else {
				ids[result.Level.ID] = result.File
			}
		}
		results = append(results, result)
	}
	return results, nil
}

// Report prints results in a concise form and reports whether all were
// valid.
func Report(w io.Writer, results []Result) bool {
	allValid := true
	for _, result := range results {
		fmt.Fprintf(w, "\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Fprintln(w, "✅ VALID")
			for _, info := range result.Info {
				fmt.Fprintln(w, "  "+info)
			}
		} else {
			fmt.Fprintln(w, "❌ INVALID")
			allValid = false
			for _, err := range result.Errors {
				fmt.Fprintln(w, "  ❌ "+err)
			}
		}
	}

	fmt.Fprintf(w, "\n%s\n", strings.Repeat("=", 40))
	if len(results) == 0 {
		fmt.Fprintln(w, "No level files found")
	} else if allValid {
		fmt.Fprintln(w, "✅ All levels are valid!")
	} else {
		fmt.Fprintln(w, "❌ Some levels have errors")
	}
	return allValid
}
