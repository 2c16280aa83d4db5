package engine

import (
	"errors"
	"fmt"
)

// ErrInvalidLevel is wrapped by every level validation failure
var ErrInvalidLevel = errors.New("invalid level")

// Geometry is the per-level view the planner and arbiter consume
type Geometry interface {
	IsWalkable(pos Position) bool
	Agents() []AgentSpec
	Bounds() (width, height int)
}

// Level is a validated, immutable level ready to be played
type Level struct {
	config   LevelConfig
	grid     Grid
	walkable [][]bool // [y][x], y=0 is the bottom row
}

// NewLevel validates cfg and builds its walkable lookup
func NewLevel(cfg *LevelConfig) (*Level, error) {
	if err := ValidateLevel(cfg); err != nil {
		return nil, err
	}
	return buildLevel(cfg), nil
}

func buildLevel(cfg *LevelConfig) *Level {
	walkable := make([][]bool, cfg.Height)
	for y := range walkable {
		walkable[y] = make([]bool, cfg.Width)
	}
	for row, line := range cfg.Layout {
		y := cfg.Height - 1 - row
		for x, ch := range line {
			walkable[y][x] = ch != TileBlocked
		}
	}

	center := DefaultCenter(cfg.Width, cfg.Height, cfg.CellSize)
	if cfg.Center != nil {
		center = *cfg.Center
	}

	copied := *cfg
	copied.Agents = append([]AgentSpec(nil), cfg.Agents...)
	copied.Layout = append([]string(nil), cfg.Layout...)

	return &Level{
		config:   copied,
		grid:     NewGrid(cfg.Width, cfg.Height, cfg.CellSize, center),
		walkable: walkable,
	}
}

// IsWalkable reports whether pos is an in-bounds walkable tile
func (l *Level) IsWalkable(pos Position) bool {
	if !l.grid.InBounds(pos) {
		return false
	}
	return l.walkable[pos.Y][pos.X]
}

// Agents returns a copy of the agent definitions
func (l *Level) Agents() []AgentSpec {
	return append([]AgentSpec(nil), l.config.Agents...)
}

// Bounds returns the grid dimensions
func (l *Level) Bounds() (int, int) {
	return l.config.Width, l.config.Height
}

// Grid returns the coordinate system of the level
func (l *Level) Grid() Grid {
	return l.grid
}

// Config returns a copy of the level definition
func (l *Level) Config() LevelConfig {
	cfg := l.config
	cfg.Agents = append([]AgentSpec(nil), l.config.Agents...)
	cfg.Layout = append([]string(nil), l.config.Layout...)
	return cfg
}

// ID returns the level ordering key
func (l *Level) ID() int {
	return l.config.ID
}

// Name returns the level display name
func (l *Level) Name() string {
	return l.config.Name
}

// StrictSegments reports whether intermediate segment cells are validated
func (l *Level) StrictSegments() bool {
	return l.config.StrictSegments
}

// WalkableCount returns the number of walkable tiles
func (l *Level) WalkableCount() int {
	count := 0
	for _, row := range l.walkable {
		for _, ok := range row {
			if ok {
				count++
			}
		}
	}
	return count
}

// ValidateLevel validates a level definition for correctness and playability
func ValidateLevel(cfg *LevelConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: level is nil", ErrInvalidLevel)
	}
	if cfg.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidLevel)
	}

	if cfg.Width < MinGridSize || cfg.Width > MaxGridSize {
		return fmt.Errorf("%w: width must be between %d and %d, got %d", ErrInvalidLevel, MinGridSize, MaxGridSize, cfg.Width)
	}
	if cfg.Height < MinGridSize || cfg.Height > MaxGridSize {
		return fmt.Errorf("%w: height must be between %d and %d, got %d", ErrInvalidLevel, MinGridSize, MaxGridSize, cfg.Height)
	}
	if cfg.CellSize < 0 {
		return fmt.Errorf("%w: cell_size must not be negative, got %g", ErrInvalidLevel, cfg.CellSize)
	}

	if len(cfg.Layout) != cfg.Height {
		return fmt.Errorf("%w: layout must have %d rows to match height, got %d", ErrInvalidLevel, cfg.Height, len(cfg.Layout))
	}
	for i, row := range cfg.Layout {
		if len(row) != cfg.Width {
			return fmt.Errorf("%w: row %d must have %d characters to match width, got %d",
				ErrInvalidLevel, i+1, cfg.Width, len(row))
		}
		for j, ch := range row {
			switch ch {
			case TileWalkable, TileBlocked, TileStart, TileGoal:
			default:
				return fmt.Errorf("%w: invalid character '%c' at row %d, col %d", ErrInvalidLevel, ch, i+1, j+1)
			}
		}
	}

	if len(cfg.Agents) == 0 {
		return fmt.Errorf("%w: at least one agent is required", ErrInvalidLevel)
	}
	if len(cfg.Agents) > MaxAgents {
		return fmt.Errorf("%w: at most %d agents are allowed, got %d", ErrInvalidLevel, MaxAgents, len(cfg.Agents))
	}

	// Geometry checks run against a partially built level so the walkable
	// lookup matches exactly what the planner will see.
	lvl := buildLevel(cfg)

	ids := make(map[int]bool)
	starts := make(map[Position]int)
	goals := make(map[Position]int)
	for _, a := range cfg.Agents {
		if ids[a.PlayerID] {
			return fmt.Errorf("%w: duplicate player_id %d", ErrInvalidLevel, a.PlayerID)
		}
		ids[a.PlayerID] = true

		if a.SelectionBudget < MinBudget {
			return fmt.Errorf("%w: player %d selection_budget must be at least %d, got %d",
				ErrInvalidLevel, a.PlayerID, MinBudget, a.SelectionBudget)
		}
		if !lvl.IsWalkable(a.Start) {
			return fmt.Errorf("%w: player %d start %s is not a walkable tile", ErrInvalidLevel, a.PlayerID, a.Start)
		}
		if !lvl.IsWalkable(a.Goal) {
			return fmt.Errorf("%w: player %d goal %s is not a walkable tile", ErrInvalidLevel, a.PlayerID, a.Goal)
		}
		if a.Start == a.Goal {
			return fmt.Errorf("%w: player %d goal equals its start %s", ErrInvalidLevel, a.PlayerID, a.Start)
		}
		if other, ok := starts[a.Start]; ok {
			return fmt.Errorf("%w: players %d and %d share start %s", ErrInvalidLevel, other, a.PlayerID, a.Start)
		}
		starts[a.Start] = a.PlayerID
		if other, ok := goals[a.Goal]; ok {
			return fmt.Errorf("%w: players %d and %d share goal %s", ErrInvalidLevel, other, a.PlayerID, a.Goal)
		}
		goals[a.Goal] = a.PlayerID
	}

	for _, a := range cfg.Agents {
		if owner, ok := starts[a.Goal]; ok && owner != a.PlayerID {
			return fmt.Errorf("%w: player %d goal %s is player %d's start", ErrInvalidLevel, a.PlayerID, a.Goal, owner)
		}
	}

	return nil
}

// DefaultLevelConfig returns the built-in two player level used when no
// level files are available.
func DefaultLevelConfig() *LevelConfig {
	return &LevelConfig{
		ID:          1,
		Name:        "Two Lanes",
		Description: "Two players walk straight up their own columns",
		Width:       6,
		Height:      12,
		CellSize:    1,
		Layout: []string{
			"......",
			"......",
			"......",
			"..G.G.",
			"......",
			"......",
			"......",
			"......",
			"......",
			"..S.S.",
			"......",
			"......",
		},
		Agents: []AgentSpec{
			{PlayerID: 1, Start: Position{X: 2, Y: 2}, Goal: Position{X: 2, Y: 8}, SelectionBudget: DefaultBudget, Color: "red"},
			{PlayerID: 2, Start: Position{X: 4, Y: 2}, Goal: Position{X: 4, Y: 8}, SelectionBudget: DefaultBudget, Color: "blue"},
		},
	}
}
