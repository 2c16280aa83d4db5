package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/wricardo/pathpath/game/engine"
)

// Settings holds the server configuration read from the environment
type Settings struct {
	Host     string `env:"PATHPATH_HOST"      envDefault:"localhost"`
	Port     int    `env:"PATHPATH_PORT"      envDefault:"8080"`
	LevelDir string `env:"PATHPATH_LEVEL_DIR" envDefault:"levels"`

	PollInterval        time.Duration `env:"PATHPATH_POLL_INTERVAL" envDefault:"100ms"`
	FrameStep           time.Duration `env:"PATHPATH_FRAME_STEP"`
	MoveSpeed           float64       `env:"PATHPATH_MOVE_SPEED"    envDefault:"2"`
	CompletionHideDelay time.Duration `env:"PATHPATH_HIDE_DELAY"    envDefault:"1s"`
	Occupancy           string        `env:"PATHPATH_OCCUPANCY"     envDefault:"waypoint"`
	Realtime            bool          `env:"PATHPATH_REALTIME"      envDefault:"true"`

	SessionExpiry time.Duration `env:"PATHPATH_SESSION_EXPIRY" envDefault:"24h"`
	OTELEndpoint  string        `env:"PATHPATH_OTEL_ENDPOINT"`
}

// LoadSettings parses Settings from the environment
func LoadSettings() (Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return s, fmt.Errorf("parse env: %w", err)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Validate rejects settings the engine cannot run with
func (s Settings) Validate() error {
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", s.Port)
	}
	if s.PollInterval < 0 || s.FrameStep < 0 || s.CompletionHideDelay < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if s.MoveSpeed < 0 {
		return fmt.Errorf("move speed must not be negative, got %g", s.MoveSpeed)
	}
	switch engine.OccupancyMode(s.Occupancy) {
	case "", engine.OccupancyWaypoint, engine.OccupancyContinuous:
	default:
		return fmt.Errorf("unknown occupancy mode %q", s.Occupancy)
	}
	if eng := s.Engine(); eng.FrameStep > eng.PollInterval {
		return fmt.Errorf("frame step %s must not exceed poll interval %s", eng.FrameStep, eng.PollInterval)
	}
	return nil
}

// Engine converts the settings to engine timing. Zero values keep the
// engine defaults, except the hide delay where zero hides completed paths
// at once.
func (s Settings) Engine() engine.Settings {
	out := engine.DefaultSettings()
	if s.PollInterval > 0 {
		out.PollInterval = s.PollInterval
	}
	if s.FrameStep > 0 {
		out.FrameStep = s.FrameStep
	}
	if s.MoveSpeed > 0 {
		out.MoveSpeed = s.MoveSpeed
	}
	out.CompletionHideDelay = s.CompletionHideDelay
	if s.Occupancy != "" {
		out.Occupancy = engine.OccupancyMode(s.Occupancy)
	}
	return out
}

// Addr returns the listen address
func (s Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
