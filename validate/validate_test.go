package validate

import (
	"bytes"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wricardo/pathpath/game/engine"
)

func wallLevel(budget int, strict bool) *engine.LevelConfig {
	return &engine.LevelConfig{
		ID:     1,
		Name:   "Wall",
		Width:  5,
		Height: 5,
		Layout: []string{
			"..G..",
			".###.",
			".....",
			".###.",
			"..S..",
		},
		Agents: []engine.AgentSpec{
			{PlayerID: 1, Start: engine.Position{X: 2, Y: 0}, Goal: engine.Position{X: 2, Y: 4}, SelectionBudget: budget},
		},
		StrictSegments: strict,
	}
}

func crossingLevel() *engine.LevelConfig {
	return &engine.LevelConfig{
		ID:     2,
		Name:   "Cross",
		Width:  5,
		Height: 5,
		Layout: []string{".....", ".....", ".....", ".....", "....."},
		Agents: []engine.AgentSpec{
			{PlayerID: 1, Start: engine.Position{X: 0, Y: 2}, Goal: engine.Position{X: 4, Y: 2}, SelectionBudget: 2},
			{PlayerID: 2, Start: engine.Position{X: 2, Y: 0}, Goal: engine.Position{X: 2, Y: 4}, SelectionBudget: 2},
		},
	}
}

func writeLevel(t *testing.T, dir, name string, cfg *engine.LevelConfig) string {
	t.Helper()
	format, ok := engine.FormatFromPath(name)
	if !ok {
		t.Fatalf("bad level file name %s", name)
	}
	data, err := engine.EncodeLevel(cfg, format)
	if err != nil {
		t.Fatalf("Failed to encode level: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write level: %v", err)
	}
	return path
}

func TestShortestRoute(t *testing.T) {
	tests := []struct {
		name       string
		cfg        *engine.LevelConfig
		player     int
		selections int
		reachable  bool
	}{
		{"Endpoints only, jumps the wall", wallLevel(3, false), 1, 1, true},
		{"Strict segments go around", wallLevel(3, true), 1, 3, true},
		{"Open crossing", crossingLevel(), 2, 1, true},
		{
			name: "Goal sealed off",
			cfg: &engine.LevelConfig{
				Name: "Sealed", Width: 3, Height: 3,
				Layout: []string{"G##", "#..", "#.S"},
				Agents: []engine.AgentSpec{
					{PlayerID: 1, Start: engine.Position{X: 2, Y: 0}, Goal: engine.Position{X: 0, Y: 2}, SelectionBudget: 5},
				},
			},
			player:    1,
			reachable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, err := engine.NewLevel(tt.cfg)
			if err != nil {
				t.Fatalf("NewLevel failed: %v", err)
			}

			var agent engine.AgentSpec
			for _, a := range tt.cfg.Agents {
				if a.PlayerID == tt.player {
					agent = a
				}
			}

			route, ok := ShortestRoute(level, agent)
			if ok != tt.reachable {
				t.Fatalf("Expected reachable=%v, got %v (route %v)", tt.reachable, ok, route)
			}
			if !ok {
				return
			}
			if len(route)-1 != tt.selections {
				t.Errorf("Expected %d selections, got %d: %v", tt.selections, len(route)-1, route)
			}
			if route[0] != agent.Start || route[len(route)-1] != agent.Goal {
				t.Errorf("Route must run from start to goal: %v", route)
			}
			for i := 1; i < len(route); i++ {
				if !engine.IsStraightLine(route[i-1], route[i]) {
					t.Errorf("Segment %v -> %v is not straight", route[i-1], route[i])
				}
				if !level.IsWalkable(route[i]) {
					t.Errorf("Waypoint %v is not walkable", route[i])
				}
			}
		})
	}
}

func TestShortestRouteAvoidsForeignPoints(t *testing.T) {
	cfg := &engine.LevelConfig{
		Name: "Blocked lane", Width: 5, Height: 2,
		Layout: []string{".....", "....."},
		Agents: []engine.AgentSpec{
			{PlayerID: 1, Start: engine.Position{X: 0, Y: 0}, Goal: engine.Position{X: 4, Y: 0}, SelectionBudget: 3},
			{PlayerID: 2, Start: engine.Position{X: 2, Y: 1}, Goal: engine.Position{X: 3, Y: 1}, SelectionBudget: 3},
		},
	}
	level, err := engine.NewLevel(cfg)
	if err != nil {
		t.Fatalf("NewLevel failed: %v", err)
	}

	route, ok := ShortestRoute(level, cfg.Agents[0])
	if !ok {
		t.Fatal("Expected a route")
	}
	for _, p := range route {
		if p == cfg.Agents[1].Start || p == cfg.Agents[1].Goal {
			t.Errorf("Route uses a foreign point %v: %v", p, route)
		}
	}
}

func TestExpand(t *testing.T) {
	path := []engine.Position{{X: 0, Y: 0}, {X: 0, Y: 2}, {X: 2, Y: 2}}
	expected := []engine.Position{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 0, Y: 2}, {X: 1, Y: 2}, {X: 2, Y: 2}}

	got := Expand(path)
	if len(got) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("Cell %d: expected %v, got %v", i, expected[i], got[i])
		}
	}

	if Expand(nil) != nil {
		t.Error("Expected nil for empty path")
	}
}

func TestFile(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		setup    func() string
		valid    bool
		contains string
	}{
		{
			name:  "Valid JSON level",
			setup: func() string { return writeLevel(t, dir, "wall.json", wallLevel(3, false)) },
			valid: true,
		},
		{
			name:  "Valid YAML level",
			setup: func() string { return writeLevel(t, dir, "strict.yaml", wallLevel(3, true)) },
			valid: true,
		},
		{
			name:     "Budget too small",
			setup:    func() string { return writeLevel(t, dir, "tight.json", wallLevel(2, true)) },
			contains: "needs 3 selections",
		},
		{
			name: "Marker without agent",
			setup: func() string {
				cfg := wallLevel(3, false)
				cfg.Layout[4] = "S.S.."
				return writeLevel(t, dir, "marker.json", cfg)
			},
			contains: "no agent starts there",
		},
		{
			name: "Engine validation failure",
			setup: func() string {
				cfg := wallLevel(3, false)
				cfg.Name = ""
				return writeLevel(t, dir, "noname.json", cfg)
			},
			contains: "name is required",
		},
		{
			name: "Invalid JSON",
			setup: func() string {
				path := filepath.Join(dir, "broken.json")
				os.WriteFile(path, []byte(`{"name": "test", invalid json}`), 0644)
				return path
			},
			contains: "Invalid JSON",
		},
		{
			name:     "Missing file",
			setup:    func() string { return filepath.Join(dir, "missing.json") },
			contains: "Failed to read file",
		},
		{
			name:     "Unsupported extension",
			setup:    func() string { return filepath.Join(dir, "level.txt") },
			contains: "Unsupported file extension",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := File(tt.setup())

			if result.Valid != tt.valid {
				t.Fatalf("Expected valid=%v, got %v: %v", tt.valid, result.Valid, result.Errors)
			}
			if tt.valid {
				if len(result.Errors) != 0 {
					t.Errorf("Valid result should carry no errors: %v", result.Errors)
				}
				if len(result.Info) == 0 {
					t.Error("Expected info lines for a valid level")
				}
				return
			}

			found := false
			for _, err := range result.Errors {
				if strings.Contains(err, tt.contains) {
					found = true
				}
			}
			if !found {
				t.Errorf("Expected an error containing %q, got %v", tt.contains, result.Errors)
			}
		})
	}
}

func TestDir(t *testing.T) {
	dir := t.TempDir()
	writeLevel(t, dir, "a_wall.json", wallLevel(3, false))
	writeLevel(t, dir, "b_cross.yml", crossingLevel())
	dup := crossingLevel()
	dup.Name = "Duplicate"
	writeLevel(t, dir, "c_dup.json", dup)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644)

	results, err := Dir(dir)
	if err != nil {
		t.Fatalf("Dir failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}

	if !results[0].Valid || !results[1].Valid {
		t.Errorf("Expected the first two levels to be valid: %v %v", results[0].Errors, results[1].Errors)
	}
	if results[2].Valid {
		t.Fatal("Expected duplicate id to be reported")
	}
	if !strings.Contains(results[2].Errors[0], "already used by b_cross.yml") {
		t.Errorf("Unexpected error: %v", results[2].Errors)
	}

	var out bytes.Buffer
	if Report(&out, results) {
		t.Error("Report should return false when a level is invalid")
	}
	if !strings.Contains(out.String(), "❌ INVALID") || !strings.Contains(out.String(), "✅ VALID") {
		t.Errorf("Unexpected report:\n%s", out.String())
	}

	if _, err := Dir(filepath.Join(dir, "missing")); err == nil {
		t.Error("Expected error for a missing directory")
	}
}

func TestDirSameStem(t *testing.T) {
	dir := t.TempDir()
	writeLevel(t, dir, "twin.json", wallLevel(3, false))
	other := crossingLevel()
	other.ID = 99
	writeLevel(t, dir, "twin.yaml", other)

	results, err := Dir(dir)
	if err != nil {
		t.Fatalf("Dir failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if !results[0].Valid {
		t.Errorf("Expected twin.json to be valid: %v", results[0].Errors)
	}
	if results[1].Valid {
		t.Fatal("Expected the shared level name to be reported")
	}
	if !strings.Contains(results[1].Errors[0], "already used by twin.json") {
		t.Errorf("Unexpected error: %v", results[1].Errors)
	}
}

func TestAnalyzeConflicts(t *testing.T) {
	analysis, err := Analyze(crossingLevel())
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if analysis.Walkable != 25 {
		t.Errorf("Expected 25 walkable cells, got %d", analysis.Walkable)
	}
	if len(analysis.Agents) != 2 {
		t.Fatalf("Expected 2 agents, got %d", len(analysis.Agents))
	}
	for _, a := range analysis.Agents {
		if a.Selections != 1 || a.Distance != 4 {
			t.Errorf("Player %d: expected 1 selection over distance 4, got %d over %d", a.PlayerID, a.Selections, a.Distance)
		}
	}

	if len(analysis.Conflicts) != 1 {
		t.Fatalf("Expected 1 conflict, got %v", analysis.Conflicts)
	}
	c := analysis.Conflicts[0]
	if c.Cell != (engine.Position{X: 2, Y: 2}) || c.Step != 2 || c.Players != [2]int{1, 2} {
		t.Errorf("Unexpected conflict %+v", c)
	}
}

func TestAnalyzeNoConflicts(t *testing.T) {
	analysis, err := Analyze(engine.DefaultLevelConfig())
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(analysis.Conflicts) != 0 {
		t.Errorf("Expected separate lanes to have no conflicts, got %v", analysis.Conflicts)
	}
}

func TestWriteAnalysis(t *testing.T) {
	dir := t.TempDir()
	path := writeLevel(t, dir, "cross.json", crossingLevel())

	var out bytes.Buffer
	if err := WriteAnalysis(&out, path); err != nil {
		t.Fatalf("WriteAnalysis failed: %v", err)
	}

	for _, want := range []string{"Name: Cross", "Grid Size: 5 x 5", "Players 1 and 2 meet at (2,2) on step 2"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Expected %q in output:\n%s", want, out.String())
		}
	}

	if err := WriteAnalysis(&out, filepath.Join(dir, "missing.json")); err == nil {
		t.Error("Expected error for a missing file")
	}
}

func TestRoutes(t *testing.T) {
	cfg := wallLevel(3, true)
	level, err := engine.NewLevel(cfg)
	if err != nil {
		t.Fatalf("NewLevel failed: %v", err)
	}
	agent := cfg.Agents[0]

	routes := Routes(level, agent, 0)
	if len(routes) == 0 {
		t.Fatal("Expected at least one route")
	}
	for i, route := range routes {
		if route[0] != agent.Start || route[len(route)-1] != agent.Goal {
			t.Errorf("Route %d must run from start to goal: %v", i, route)
		}
		if len(route)-1 > agent.SelectionBudget {
			t.Errorf("Route %d exceeds the budget: %v", i, route)
		}
		draft := route[:1]
		for _, wp := range route[1:] {
			if reason := engine.CheckWaypoint(level, agent, wp, draft, engine.PlanRules{StrictSegments: true}); reason != engine.ReasonNone {
				t.Errorf("Route %d waypoint %v rejected: %s", i, wp, reason)
			}
			draft = append(append([]engine.Position(nil), draft...), wp)
		}
		if i > 0 && engine.PathLength(routes[i-1]) > engine.PathLength(route) {
			t.Errorf("Routes should be ordered by walking distance")
		}
	}

	if limited := Routes(level, agent, 1); len(limited) != 1 {
		t.Errorf("Expected limit to cap results, got %d", len(limited))
	}
}

func TestPlansAvoidCrossing(t *testing.T) {
	cfg := crossingLevel()
	cfg.Agents[0].SelectionBudget = 3
	cfg.Agents[1].SelectionBudget = 3
	level, err := engine.NewLevel(cfg)
	if err != nil {
		t.Fatalf("NewLevel failed: %v", err)
	}

	var plans []Plan
	Plans(level, 20, func(p Plan) bool {
		plans = append(plans, p)
		return len(plans) < 3
	})
	if len(plans) == 0 {
		t.Fatal("Expected a plan that avoids the crossing")
	}
	if len(plans) > 3 {
		t.Errorf("Search should stop when yield returns false, got %d plans", len(plans))
	}

	for _, p := range plans {
		a, b := Expand(p[1]), Expand(p[2])
		if cell, step, hit := meet(a, b); hit {
			t.Errorf("Plan %v meets at %v on step %d", p, cell, step)
		}
	}
}

func TestMeetDetectsSwap(t *testing.T) {
	a := []engine.Position{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}}
	b := []engine.Position{{X: 2, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 0}}
	if _, step, hit := meet(a, b); !hit || step != 1 {
		t.Errorf("Expected a same-step meeting on step 1, got hit=%v step=%d", hit, step)
	}

	c := []engine.Position{{X: 0, Y: 0}, {X: 1, Y: 0}}
	d := []engine.Position{{X: 1, Y: 0}, {X: 0, Y: 0}}
	if _, step, hit := meet(c, d); !hit || step != 1 {
		t.Errorf("Expected a head-on swap on step 1, got hit=%v step=%d", hit, step)
	}
}

// Route search is offline tooling; the game runtime must not link it
func TestRuntimePackagesDoNotImportValidate(t *testing.T) {
	const self = "github.com/wricardo/pathpath/validate"
	dirs := []string{
		"../game/engine",
		"../game/service",
		"../game/session",
		"../game/config",
		"../api",
		"../transport/websocket",
		"../transport/mcp",
	}

	fset := token.NewFileSet()
	for _, dir := range dirs {
		files, err := filepath.Glob(filepath.Join(dir, "*.go"))
		if err != nil {
			t.Fatalf("Glob %s: %v", dir, err)
		}
		if len(files) == 0 {
			t.Fatalf("No Go files in %s", dir)
		}
		for _, file := range files {
			if strings.HasSuffix(file, "_test.go") {
				continue
			}
			f, err := parser.ParseFile(fset, file, nil, parser.ImportsOnly)
			if err != nil {
				t.Fatalf("Parse %s: %v", file, err)
			}
			for _, imp := range f.Imports {
				if strings.Trim(imp.Path.Value, `"`) == self {
					t.Errorf("%s imports %s", file, self)
				}
			}
		}
	}
}
