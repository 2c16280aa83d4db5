package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wricardo/pathpath/game/engine"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrLevelNotFound   = errors.New("level not found")
)

// GameService defines all game-related operations
type GameService interface {
	// Session Management
	CreateSession(ctx context.Context, levelName string) (*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Planning
	SelectAgent(ctx context.Context, sessionID string, playerID int) (*SelectResult, error)
	Deselect(ctx context.Context, sessionID string) (*CommandResult, error)
	ProposeWaypoint(ctx context.Context, sessionID string, cell engine.Position) (*WaypointResult, error)
	PointerDown(ctx context.Context, sessionID string, world engine.Vec2) (*PointerResult, error)

	// Simulation
	StartSimulation(ctx context.Context, sessionID string) (*SimulationResult, error)
	StepSimulation(ctx context.Context, sessionID string, dt time.Duration) (*SimulationResult, error)
	RunSimulation(ctx context.Context, sessionID string) (*SimulationResult, error)
	Halt(ctx context.Context, sessionID string) (*SimulationResult, error)

	// Level flow
	RestartLevel(ctx context.Context, sessionID string) (*engine.Snapshot, error)
	AdvanceLevel(ctx context.Context, sessionID string) (*engine.Snapshot, error)

	// Game State
	GetGameState(ctx context.Context, sessionID string) (*engine.Snapshot, error)
	GetEventHistory(ctx context.Context, sessionID string, opts HistoryOptions) (*HistoryResponse, error)

	// Levels
	ListLevels(ctx context.Context) ([]*LevelInfo, error)
	LoadLevel(ctx context.Context, name string) (*engine.LevelConfig, error)
	SaveLevel(ctx context.Context, name string, level *engine.LevelConfig) error
}

// SessionManager defines session storage operations
type SessionManager interface {
	Create(id string, levels []*engine.LevelConfig, settings engine.Settings, opts ...engine.Option) (*Session, error)
	Get(id string) (*Session, error)
	List() []*Session
	Delete(id string) error
}

// ConfigManager handles level loading
type ConfigManager interface {
	LoadLevel(name string) (*engine.LevelConfig, error)
	ListLevels() ([]*LevelInfo, error)
	Sequence(from string) ([]*engine.LevelConfig, error)
	GetDefault() *engine.LevelConfig
	SaveLevel(name string, level *engine.LevelConfig) error
}

// Notifier receives engine output for a session. The websocket hub
// implements it.
type Notifier interface {
	BroadcastEvent(sessionID string, evt engine.Event)
	BroadcastState(sessionID string, snap *engine.Snapshot)
}

// Session represents an active game session
type Session struct {
	ID             string
	Engine         *engine.GameEngine
	LevelName      string
	CreatedAt      time.Time
	LastAccessedAt time.Time // guarded by mu once the session is shared

	// mu serializes every engine call for this session
	mu     sync.Mutex
	events []engine.Event
	subID  string
	stop   context.CancelFunc
	closed bool
}

// LastAccessed returns when the session last served a request. It blocks
// while a command holds the session.
func (s *Session) LastAccessed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.LastAccessedAt
}
