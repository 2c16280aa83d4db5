package service

import (
	"time"

	"github.com/wricardo/pathpath/game/engine"
)

// SessionInfo provides information about a game session
type SessionInfo struct {
	ID             string           `json:"id"`
	LevelName      string           `json:"level_name"`
	CreatedAt      time.Time        `json:"created_at"`
	LastAccessedAt time.Time        `json:"last_accessed_at"`
	Running        bool             `json:"running"`
	State          *engine.Snapshot `json:"state"`
}

// SelectResult contains the result of an agent selection
type SelectResult struct {
	PlayerID int                 `json:"player_id"`
	Result   engine.SelectResult `json:"result"`
	Message  string              `json:"message"`
	State    *engine.Snapshot    `json:"state"`
}

// WaypointResult contains the result of a proposed waypoint
type WaypointResult struct {
	engine.ProposeResult
	Message string           `json:"message"`
	State   *engine.Snapshot `json:"state"`
}

// PointerResult contains the result of a pointer press
type PointerResult struct {
	engine.PointerResult
	Message string           `json:"message"`
	State   *engine.Snapshot `json:"state"`
}

// CommandResult is returned by commands with no payload of their own
type CommandResult struct {
	Changed bool             `json:"changed"`
	Message string           `json:"message"`
	State   *engine.Snapshot `json:"state"`
}

// SimulationResult describes the simulation after a simulation command
type SimulationResult struct {
	Started bool             `json:"started"`
	Running bool             `json:"running"`
	Outcome *engine.Outcome  `json:"outcome,omitempty"`
	Message string           `json:"message"`
	State   *engine.Snapshot `json:"state"`
}

// HistoryOptions configures event history retrieval
type HistoryOptions struct {
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
	Order string           `json:"order"` // "asc" or "desc"
	Type  engine.EventType `json:"type,omitempty"`
}

// HistoryResponse contains paginated event history
type HistoryResponse struct {
	Events      []engine.Event `json:"events"`
	TotalEvents int            `json:"total_events"`
	Page        int            `json:"page"`
	PageSize    int            `json:"page_size"`
	TotalPages  int            `json:"total_pages"`
	HasNext     bool           `json:"has_next"`
	HasPrevious bool           `json:"has_previous"`
}

// LevelInfo provides information about a level file
type LevelInfo struct {
	Filename       string `json:"filename"`
	LevelID        string `json:"level_id"` // The identifier to use for session creation
	ID             int    `json:"id"`
	Name           string `json:"name"` // Display name
	Description    string `json:"description"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Agents         int    `json:"agents"`
	StrictSegments bool   `json:"strict_segments,omitempty"`
}
