package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wricardo/pathpath/game/engine"
	"github.com/wricardo/pathpath/game/service"
	"github.com/wricardo/pathpath/transport/websocket"
)

// MockGameService implements service.GameService for testing
type MockGameService struct {
	CreateSessionFunc   func(ctx context.Context, levelName string) (*service.SessionInfo, error)
	GetSessionFunc      func(ctx context.Context, sessionID string) (*service.SessionInfo, error)
	ListSessionsFunc    func(ctx context.Context) ([]*service.SessionInfo, error)
	DeleteSessionFunc   func(ctx context.Context, sessionID string) error
	SelectAgentFunc     func(ctx context.Context, sessionID string, playerID int) (*service.SelectResult, error)
	DeselectFunc        func(ctx context.Context, sessionID string) (*service.CommandResult, error)
	ProposeWaypointFunc func(ctx context.Context, sessionID string, cell engine.Position) (*service.WaypointResult, error)
	PointerDownFunc     func(ctx context.Context, sessionID string, world engine.Vec2) (*service.PointerResult, error)
	StartSimulationFunc func(ctx context.Context, sessionID string) (*service.SimulationResult, error)
	StepSimulationFunc  func(ctx context.Context, sessionID string, dt time.Duration) (*service.SimulationResult, error)
	RunSimulationFunc   func(ctx context.Context, sessionID string) (*service.SimulationResult, error)
	HaltFunc            func(ctx context.Context, sessionID string) (*service.SimulationResult, error)
	RestartLevelFunc    func(ctx context.Context, sessionID string) (*engine.Snapshot, error)
	AdvanceLevelFunc    func(ctx context.Context, sessionID string) (*engine.Snapshot, error)
	GetGameStateFunc    func(ctx context.Context, sessionID string) (*engine.Snapshot, error)
	GetEventHistoryFunc func(ctx context.Context, sessionID string, opts service.HistoryOptions) (*service.HistoryResponse, error)
	ListLevelsFunc      func(ctx context.Context) ([]*service.LevelInfo, error)
	LoadLevelFunc       func(ctx context.Context, name string) (*engine.LevelConfig, error)
	SaveLevelFunc       func(ctx context.Context, name string, level *engine.LevelConfig) error
}

func testSnapshot() *engine.Snapshot {
	snap := engine.NewEngineWithDefaults().Snapshot()
	return &snap
}

// Session Management
func (m *MockGameService) CreateSession(ctx context.Context, levelName string) (*service.SessionInfo, error) {
	if m.CreateSessionFunc != nil {
		return m.CreateSessionFunc(ctx, levelName)
	}
	return &service.SessionInfo{ID: "ab12", LevelName: "Two Lanes", CreatedAt: time.Now()}, nil
}

func (m *MockGameService) GetSession(ctx context.Context, sessionID string) (*service.SessionInfo, error) {
	if m.GetSessionFunc != nil {
		return m.GetSessionFunc(ctx, sessionID)
	}
	return &service.SessionInfo{ID: sessionID, LevelName: "Two Lanes"}, nil
}

func (m *MockGameService) ListSessions(ctx context.Context) ([]*service.SessionInfo, error) {
	if m.ListSessionsFunc != nil {
		return m.ListSessionsFunc(ctx)
	}
	return []*service.SessionInfo{}, nil
}

func (m *MockGameService) DeleteSession(ctx context.Context, sessionID string) error {
	if m.DeleteSessionFunc != nil {
		return m.DeleteSessionFunc(ctx, sessionID)
	}
	return nil
}

// Planning
func (m *MockGameService) SelectAgent(ctx context.Context, sessionID string, playerID int) (*service.SelectResult, error) {
	if m.SelectAgentFunc != nil {
		return m.SelectAgentFunc(ctx, sessionID, playerID)
	}
	return &service.SelectResult{PlayerID: playerID, Result: engine.SelectOpened}, nil
}

func (m *MockGameService) Deselect(ctx context.Context, sessionID string) (*service.CommandResult, error) {
	if m.DeselectFunc != nil {
		return m.DeselectFunc(ctx, sessionID)
	}
	return &service.CommandResult{}, nil
}

func (m *MockGameService) ProposeWaypoint(ctx context.Context, sessionID string, cell engine.Position) (*service.WaypointResult, error) {
	if m.ProposeWaypointFunc != nil {
		return m.ProposeWaypointFunc(ctx, sessionID, cell)
	}
	return &service.WaypointResult{ProposeResult: engine.ProposeResult{Candidate: cell, Accepted: true}}, nil
}

func (m *MockGameService) PointerDown(ctx context.Context, sessionID string, world engine.Vec2) (*service.PointerResult, error) {
	if m.PointerDownFunc != nil {
		return m.PointerDownFunc(ctx, sessionID, world)
	}
	return &service.PointerResult{PointerResult: engine.PointerResult{Action: engine.PointerIgnored}}, nil
}

// Simulation
func (m *MockGameService) StartSimulation(ctx context.Context, sessionID string) (*service.SimulationResult, error) {
	if m.StartSimulationFunc != nil {
		return m.StartSimulationFunc(ctx, sessionID)
	}
	return &service.SimulationResult{Started: true}, nil
}

func (m *MockGameService) StepSimulation(ctx context.Context, sessionID string, dt time.Duration) (*service.SimulationResult, error) {
	if m.StepSimulationFunc != nil {
		return m.StepSimulationFunc(ctx, sessionID, dt)
	}
	return &service.SimulationResult{}, nil
}

func (m *MockGameService) RunSimulation(ctx context.Context, sessionID string) (*service.SimulationResult, error) {
	if m.RunSimulationFunc != nil {
		return m.RunSimulationFunc(ctx, sessionID)
	}
	return &service.SimulationResult{}, nil
}

func (m *MockGameService) Halt(ctx context.Context, sessionID string) (*service.SimulationResult, error) {
	if m.HaltFunc != nil {
		return m.HaltFunc(ctx, sessionID)
	}
	return &service.SimulationResult{}, nil
}

// Level flow
func (m *MockGameService) RestartLevel(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	if m.RestartLevelFunc != nil {
		return m.RestartLevelFunc(ctx, sessionID)
	}
	return testSnapshot(), nil
}

func (m *MockGameService) AdvanceLevel(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	if m.AdvanceLevelFunc != nil {
		return m.AdvanceLevelFunc(ctx, sessionID)
	}
	return testSnapshot(), nil
}

// Game State
func (m *MockGameService) GetGameState(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	if m.GetGameStateFunc != nil {
		return m.GetGameStateFunc(ctx, sessionID)
	}
	return testSnapshot(), nil
}

func (m *MockGameService) GetEventHistory(ctx context.Context, sessionID string, opts service.HistoryOptions) (*service.HistoryResponse, error) {
	if m.GetEventHistoryFunc != nil {
		return m.GetEventHistoryFunc(ctx, sessionID, opts)
	}
	return &service.HistoryResponse{
		Events:     []engine.Event{},
		Page:       opts.Page,
		PageSize:   opts.Limit,
		TotalPages: 1,
	}, nil
}

// Levels
func (m *MockGameService) ListLevels(ctx context.Context) ([]*service.LevelInfo, error) {
	if m.ListLevelsFunc != nil {
		return m.ListLevelsFunc(ctx)
	}
	return []*service.LevelInfo{}, nil
}

func (m *MockGameService) LoadLevel(ctx context.Context, name string) (*engine.LevelConfig, error) {
	if m.LoadLevelFunc != nil {
		return m.LoadLevelFunc(ctx, name)
	}
	return engine.DefaultLevelConfig(), nil
}

func (m *MockGameService) SaveLevel(ctx context.Context, name string, level *engine.LevelConfig) error {
	if m.SaveLevelFunc != nil {
		return m.SaveLevelFunc(ctx, name, level)
	}
	return nil
}

// Test helpers
func setupTestServer(mockService *MockGameService) *Server {
	hub := websocket.NewHub()
	go hub.Run()
	return NewServer(mockService, hub)
}

func makeRequest(method, path string, body interface{}) *http.Request {
	var bodyBytes []byte
	if body != nil {
		bodyBytes, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewBuffer(bodyBytes))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder, target interface{}) {
	if err := json.Unmarshal(w.Body.Bytes(), target); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
}

func serve(server *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	return w
}

// Session Management Tests

func TestCreateSession(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    map[string]string
		setupMock      func(*MockGameService)
		expectedStatus int
		validateResp   func(*testing.T, *httptest.ResponseRecorder)
	}{
		{
			name:        "Create session with default level",
			requestBody: nil,
			setupMock: func(m *MockGameService) {
				m.CreateSessionFunc = func(ctx context.Context, levelName string) (*service.SessionInfo, error) {
					if levelName != "" {
						t.Errorf("Expected empty level name, got %s", levelName)
					}
					return &service.SessionInfo{ID: "ab12", LevelName: "Two Lanes", CreatedAt: time.Now()}, nil
				}
			},
			expectedStatus: http.StatusCreated,
			validateResp: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp service.SessionInfo
				parseResponse(t, w, &resp)
				if resp.ID != "ab12" {
					t.Errorf("Expected session ID ab12, got %s", resp.ID)
				}
			},
		},
		{
			name:        "Create session with level_id",
			requestBody: map[string]string{"level_id": "crossing"},
			setupMock: func(m *MockGameService) {
				m.CreateSessionFunc = func(ctx context.Context, levelName string) (*service.SessionInfo, error) {
					if levelName != "crossing" {
						t.Errorf("Expected level 'crossing', got %s", levelName)
					}
					return &service.SessionInfo{ID: "cd34", LevelName: "Crossing"}, nil
				}
			},
			expectedStatus: http.StatusCreated,
			validateResp: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp service.SessionInfo
				parseResponse(t, w, &resp)
				if resp.LevelName != "Crossing" {
					t.Errorf("Expected level name 'Crossing', got %s", resp.LevelName)
				}
			},
		},
		{
			name:        "Unknown level",
			requestBody: map[string]string{"level": "nope"},
			setupMock: func(m *MockGameService) {
				m.CreateSessionFunc = func(ctx context.Context, levelName string) (*service.SessionInfo, error) {
					return nil, fmt.Errorf("%w: '%s'", service.ErrLevelNotFound, levelName)
				}
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:        "Handle service error",
			requestBody: nil,
			setupMock: func(m *MockGameService) {
				m.CreateSessionFunc = func(ctx context.Context, levelName string) (*service.SessionInfo, error) {
					return nil, fmt.Errorf("service error")
				}
			},
			expectedStatus: http.StatusInternalServerError,
			validateResp: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp map[string]string
				parseResponse(t, w, &resp)
				if resp["error"] != "service error" {
					t.Errorf("Expected error message 'service error', got %s", resp["error"])
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockGameService{}
			if tt.setupMock != nil {
				tt.setupMock(mockService)
			}

			server := setupTestServer(mockService)
			w := serve(server, makeRequest("POST", "/api/sessions", tt.requestBody))

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}

			if tt.validateResp != nil {
				tt.validateResp(t, w)
			}
		})
	}
}

func TestCreateSessionInvalidBody(t *testing.T) {
	server := setupTestServer(&MockGameService{})
	req := httptest.NewRequest("POST", "/api/sessions", strings.NewReader("{not json"))

	w := serve(server, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestListSessions(t *testing.T) {
	now := time.Now()
	sessions := func() []*service.SessionInfo {
		return []*service.SessionInfo{
			{ID: "old", CreatedAt: now.Add(-2 * time.Hour), LastAccessedAt: now.Add(-time.Minute)},
			{ID: "mid", CreatedAt: now.Add(-time.Hour), LastAccessedAt: now.Add(-time.Hour)},
			{ID: "new", CreatedAt: now, LastAccessedAt: now.Add(-30 * time.Minute)},
		}
	}

	tests := []struct {
		name        string
		query       string
		expectedIDs []string
	}{
		{"Default sorts by access desc", "", []string{"old", "new", "mid"}},
		{"Created ascending", "?sort=created&order=asc", []string{"old", "mid", "new"}},
		{"Created descending with limit", "?sort=created&limit=2", []string{"new", "mid"}},
		{"Limit larger than total", "?limit=10", []string{"old", "new", "mid"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockGameService{
				ListSessionsFunc: func(ctx context.Context) ([]*service.SessionInfo, error) {
					return sessions(), nil
				},
			}
			server := setupTestServer(mockService)
			w := serve(server, makeRequest("GET", "/api/sessions"+tt.query, nil))

			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", w.Code)
			}

			var resp struct {
				Count    int                    `json:"count"`
				Total    int                    `json:"total"`
				Sessions []*service.SessionInfo `json:"sessions"`
			}
			parseResponse(t, w, &resp)

			if resp.Total != 3 {
				t.Errorf("Expected total 3, got %d", resp.Total)
			}
			if resp.Count != len(tt.expectedIDs) {
				t.Fatalf("Expected count %d, got %d", len(tt.expectedIDs), resp.Count)
			}
			for i, id := range tt.expectedIDs {
				if resp.Sessions[i].ID != id {
					t.Errorf("Position %d: expected %s, got %s", i, id, resp.Sessions[i].ID)
				}
			}
		})
	}
}

func TestListSessionsError(t *testing.T) {
	mockService := &MockGameService{
		ListSessionsFunc: func(ctx context.Context) ([]*service.SessionInfo, error) {
			return nil, fmt.Errorf("storage error")
		},
	}
	server := setupTestServer(mockService)

	w := serve(server, makeRequest("GET", "/api/sessions", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
}

func TestGetAndDeleteSession(t *testing.T) {
	deleted := ""
	mockService := &MockGameService{
		GetSessionFunc: func(ctx context.Context, sessionID string) (*service.SessionInfo, error) {
			if sessionID == "missing" {
				return nil, service.ErrSessionNotFound
			}
			return &service.SessionInfo{ID: sessionID}, nil
		},
		DeleteSessionFunc: func(ctx context.Context, sessionID string) error {
			if sessionID == "missing" {
				return service.ErrSessionNotFound
			}
			deleted = sessionID
			return nil
		},
	}
	server := setupTestServer(mockService)

	w := serve(server, makeRequest("GET", "/api/sessions/ab12", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	w = serve(server, makeRequest("GET", "/api/sessions/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	w = serve(server, makeRequest("DELETE", "/api/sessions/ab12", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if deleted != "ab12" {
		t.Errorf("Expected ab12 to be deleted, got %q", deleted)
	}

	w = serve(server, makeRequest("DELETE", "/api/sessions/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

// Planning Tests

func TestSelectAgent(t *testing.T) {
	tests := []struct {
		name           string
		body           interface{}
		setupMock      func(*MockGameService)
		expectedStatus int
	}{
		{
			name: "Select opens draft",
			body: map[string]int{"player_id": 2},
			setupMock: func(m *MockGameService) {
				m.SelectAgentFunc = func(ctx context.Context, sessionID string, playerID int) (*service.SelectResult, error) {
					if playerID != 2 {
						t.Errorf("Expected player 2, got %d", playerID)
					}
					return &service.SelectResult{PlayerID: playerID, Result: engine.SelectOpened}, nil
				}
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Missing player_id",
			body:           map[string]int{},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "Unknown agent",
			body: map[string]int{"player_id": 9},
			setupMock: func(m *MockGameService) {
				m.SelectAgentFunc = func(ctx context.Context, sessionID string, playerID int) (*service.SelectResult, error) {
					return nil, fmt.Errorf("%w: %d", engine.ErrUnknownAgent, playerID)
				}
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name: "Not planning",
			body: map[string]int{"player_id": 1},
			setupMock: func(m *MockGameService) {
				m.SelectAgentFunc = func(ctx context.Context, sessionID string, playerID int) (*service.SelectResult, error) {
					return nil, engine.ErrNotPlanning
				}
			},
			expectedStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockGameService{}
			if tt.setupMock != nil {
				tt.setupMock(mockService)
			}
			server := setupTestServer(mockService)

			w := serve(server, makeRequest("POST", "/api/sessions/ab12/select", tt.body))
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestDeselect(t *testing.T) {
	mockService := &MockGameService{
		DeselectFunc: func(ctx context.Context, sessionID string) (*service.CommandResult, error) {
			return &service.CommandResult{Changed: true, Message: "Draft discarded"}, nil
		},
	}
	server := setupTestServer(mockService)

	w := serve(server, makeRequest("POST", "/api/sessions/ab12/deselect", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp service.CommandResult
	parseResponse(t, w, &resp)
	if !resp.Changed {
		t.Error("Expected changed to be true")
	}
}

func TestProposeWaypoint(t *testing.T) {
	tests := []struct {
		name           string
		body           interface{}
		expectedStatus int
		expectedCell   engine.Position
		accepted       bool
	}{
		{"Accepted waypoint", map[string]int{"x": 2, "y": 5}, http.StatusOK, engine.Position{X: 2, Y: 5}, true},
		{"Rejected waypoint", map[string]int{"x": 3, "y": 4}, http.StatusOK, engine.Position{X: 3, Y: 4}, false},
		{"Zero coordinates are valid", map[string]int{"x": 0, "y": 0}, http.StatusOK, engine.Position{}, true},
		{"Missing y", map[string]int{"x": 1}, http.StatusBadRequest, engine.Position{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got engine.Position
			mockService := &MockGameService{
				ProposeWaypointFunc: func(ctx context.Context, sessionID string, cell engine.Position) (*service.WaypointResult, error) {
					got = cell
					result := engine.ProposeResult{Candidate: cell, Accepted: cell.X != 3}
					if !result.Accepted {
						result.Reason = engine.ReasonNotStraightLine
					}
					return &service.WaypointResult{ProposeResult: result}, nil
				},
			}
			server := setupTestServer(mockService)

			w := serve(server, makeRequest("POST", "/api/sessions/ab12/waypoint", tt.body))
			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.expectedStatus != http.StatusOK {
				return
			}

			if got != tt.expectedCell {
				t.Errorf("Expected cell %v, got %v", tt.expectedCell, got)
			}

			var resp service.WaypointResult
			parseResponse(t, w, &resp)
			if resp.Accepted != tt.accepted {
				t.Errorf("Expected accepted=%v, got %v", tt.accepted, resp.Accepted)
			}
			if !tt.accepted && resp.Reason != engine.ReasonNotStraightLine {
				t.Errorf("Expected reason %s, got %s", engine.ReasonNotStraightLine, resp.Reason)
			}
		})
	}
}

func TestPointerDown(t *testing.T) {
	var got engine.Vec2
	mockService := &MockGameService{
		PointerDownFunc: func(ctx context.Context, sessionID string, world engine.Vec2) (*service.PointerResult, error) {
			got = world
			return &service.PointerResult{PointerResult: engine.PointerResult{
				Cell:   engine.Position{X: 2, Y: 2},
				Action: engine.PointerSelected,
			}}, nil
		},
	}
	server := setupTestServer(mockService)

	w := serve(server, makeRequest("POST", "/api/sessions/ab12/pointer", map[string]float64{"x": 2.3, "y": 1.6}))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if got.X != 2.3 || got.Y != 1.6 {
		t.Errorf("Expected world point (2.3, 1.6), got %+v", got)
	}

	var resp service.PointerResult
	parseResponse(t, w, &resp)
	if resp.Action != engine.PointerSelected {
		t.Errorf("Expected action %s, got %s", engine.PointerSelected, resp.Action)
	}

	w = serve(server, makeRequest("POST", "/api/sessions/ab12/pointer", map[string]float64{"x": 1}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 without y, got %d", w.Code)
	}
}

// Simulation Tests

func TestStartSimulation(t *testing.T) {
	tests := []struct {
		name           string
		result         *service.SimulationResult
		err            error
		expectedStatus int
	}{
		{"Started", &service.SimulationResult{Started: true}, nil, http.StatusOK},
		{"Not all paths complete", &service.SimulationResult{Started: false, Message: "Every agent needs a complete path"}, nil, http.StatusConflict},
		{"Session finished", nil, engine.ErrSessionFinished, http.StatusConflict},
		{"Missing session", nil, service.ErrSessionNotFound, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockGameService{
				StartSimulationFunc: func(ctx context.Context, sessionID string) (*service.SimulationResult, error) {
					return tt.result, tt.err
				},
			}
			server := setupTestServer(mockService)

			w := serve(server, makeRequest("POST", "/api/sessions/ab12/start", nil))
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestStepSimulation(t *testing.T) {
	tests := []struct {
		name           string
		body           interface{}
		expectedDt     time.Duration
		expectedStatus int
	}{
		{"Default frame", nil, 0, http.StatusOK},
		{"Explicit step", map[string]int64{"dt_ms": 250}, 250 * time.Millisecond, http.StatusOK},
		{"Capped step", map[string]int64{"dt_ms": 10 * 60 * 1000}, maxStep, http.StatusOK},
		{"Negative step", map[string]int64{"dt_ms": -5}, 0, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got time.Duration
			mockService := &MockGameService{
				StepSimulationFunc: func(ctx context.Context, sessionID string, dt time.Duration) (*service.SimulationResult, error) {
					got = dt
					return &service.SimulationResult{}, nil
				},
			}
			server := setupTestServer(mockService)

			w := serve(server, makeRequest("POST", "/api/sessions/ab12/step", tt.body))
			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.expectedStatus == http.StatusOK && got != tt.expectedDt {
				t.Errorf("Expected dt %v, got %v", tt.expectedDt, got)
			}
		})
	}
}

func TestStepWhileRunning(t *testing.T) {
	mockService := &MockGameService{
		StepSimulationFunc: func(ctx context.Context, sessionID string, dt time.Duration) (*service.SimulationResult, error) {
			return nil, service.ErrSimulationRunning
		},
	}
	server := setupTestServer(mockService)

	w := serve(server, makeRequest("POST", "/api/sessions/ab12/step", nil))
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
}

func TestRunAndHalt(t *testing.T) {
	collision := engine.Position{X: 4, Y: 5}
	mockService := &MockGameService{
		RunSimulationFunc: func(ctx context.Context, sessionID string) (*service.SimulationResult, error) {
			return &service.SimulationResult{
				Started: true,
				Outcome: &engine.Outcome{Kind: engine.OutcomeCollision, Cell: &collision, AgentIDs: []int{1, 2}},
			}, nil
		},
		HaltFunc: func(ctx context.Context, sessionID string) (*service.SimulationResult, error) {
			return nil, engine.ErrInvalidTransition
		},
	}
	server := setupTestServer(mockService)

	w := serve(server, makeRequest("POST", "/api/sessions/ab12/run", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp service.SimulationResult
	parseResponse(t, w, &resp)
	if resp.Outcome == nil || resp.Outcome.Kind != engine.OutcomeCollision {
		t.Fatalf("Expected collision outcome, got %+v", resp.Outcome)
	}
	if *resp.Outcome.Cell != collision {
		t.Errorf("Expected collision at %v, got %v", collision, *resp.Outcome.Cell)
	}

	w = serve(server, makeRequest("POST", "/api/sessions/ab12/halt", nil))
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
}

// Level Flow Tests

func TestRestartAndAdvance(t *testing.T) {
	mockService := &MockGameService{
		AdvanceLevelFunc: func(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
			snap := testSnapshot()
			snap.Finished = true
			return snap, nil
		},
	}
	server := setupTestServer(mockService)

	w := serve(server, makeRequest("POST", "/api/sessions/ab12/restart", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	w = serve(server, makeRequest("POST", "/api/sessions/ab12/advance", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp struct {
		Message string           `json:"message"`
		State   *engine.Snapshot `json:"state"`
	}
	parseResponse(t, w, &resp)
	if resp.Message != "All levels complete" {
		t.Errorf("Unexpected message %q", resp.Message)
	}
	if !resp.State.Finished {
		t.Error("Expected finished state")
	}
}

func TestRestartFromPlanning(t *testing.T) {
	mockService := &MockGameService{
		RestartLevelFunc: func(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
			return nil, fmt.Errorf("%w: restart from planning", engine.ErrInvalidTransition)
		},
	}
	server := setupTestServer(mockService)

	w := serve(server, makeRequest("POST", "/api/sessions/ab12/restart", nil))
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
}

func TestGetGameState(t *testing.T) {
	server := setupTestServer(&MockGameService{})

	w := serve(server, makeRequest("GET", "/api/sessions/ab12/state", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var snap engine.Snapshot
	parseResponse(t, w, &snap)
	if snap.State != engine.StatePlanning {
		t.Errorf("Expected planning state, got %s", snap.State)
	}
	if len(snap.Agents) != 2 {
		t.Errorf("Expected 2 agents, got %d", len(snap.Agents))
	}
}

func TestGetEvents(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected service.HistoryOptions
	}{
		{"Defaults", "", service.HistoryOptions{Page: 1, Limit: 20, Order: "desc"}},
		{"Explicit", "?page=2&limit=5&order=asc", service.HistoryOptions{Page: 2, Limit: 5, Order: "asc"}},
		{"Invalid values fall back", "?page=-1&limit=abc&order=sideways", service.HistoryOptions{Page: 1, Limit: 20, Order: "desc"}},
		{"Type filter", "?type=waypoint_rejected", service.HistoryOptions{Page: 1, Limit: 20, Order: "desc", Type: engine.EventWaypointRejected}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got service.HistoryOptions
			mockService := &MockGameService{
				GetEventHistoryFunc: func(ctx context.Context, sessionID string, opts service.HistoryOptions) (*service.HistoryResponse, error) {
					got = opts
					return &service.HistoryResponse{Events: []engine.Event{}}, nil
				},
			}
			server := setupTestServer(mockService)

			w := serve(server, makeRequest("GET", "/api/sessions/ab12/events"+tt.query, nil))
			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", w.Code)
			}
			if got != tt.expected {
				t.Errorf("Expected options %+v, got %+v", tt.expected, got)
			}
		})
	}
}

// Level Tests

func TestListLevels(t *testing.T) {
	mockService := &MockGameService{
		ListLevelsFunc: func(ctx context.Context) ([]*service.LevelInfo, error) {
			return []*service.LevelInfo{
				{LevelID: "lanes", Name: "Two Lanes", Width: 6, Height: 12, Agents: 2},
				{LevelID: "crossing", Name: "Crossing", Width: 8, Height: 10, Agents: 2},
			}, nil
		},
	}
	server := setupTestServer(mockService)

	w := serve(server, makeRequest("GET", "/api/levels", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var levels []*service.LevelInfo
	parseResponse(t, w, &levels)
	if len(levels) != 2 || levels[1].LevelID != "crossing" {
		t.Errorf("Unexpected levels: %+v", levels)
	}
}

func TestGetLevel(t *testing.T) {
	mockService := &MockGameService{
		LoadLevelFunc: func(ctx context.Context, name string) (*engine.LevelConfig, error) {
			if name != "lanes" {
				return nil, fmt.Errorf("%w: %s", service.ErrLevelNotFound, name)
			}
			return engine.DefaultLevelConfig(), nil
		},
	}
	server := setupTestServer(mockService)

	w := serve(server, makeRequest("GET", "/api/levels/lanes", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var level engine.LevelConfig
	parseResponse(t, w, &level)
	if level.Name != "Two Lanes" {
		t.Errorf("Expected 'Two Lanes', got %s", level.Name)
	}

	w = serve(server, makeRequest("GET", "/api/levels/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestCreateLevel(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		level          *engine.LevelConfig
		saveErr        error
		expectedStatus int
		expectedFile   string
	}{
		{
			name:           "Name derived from level",
			path:           "/api/levels",
			level:          &engine.LevelConfig{Name: "My Level #2", Width: 4, Height: 4},
			expectedStatus: http.StatusCreated,
			expectedFile:   "my_level_2",
		},
		{
			name:           "Explicit file name",
			path:           "/api/levels?file=custom",
			level:          &engine.LevelConfig{Name: "Anything", Width: 4, Height: 4},
			expectedStatus: http.StatusCreated,
			expectedFile:   "custom",
		},
		{
			name:           "Missing name",
			path:           "/api/levels",
			level:          &engine.LevelConfig{Width: 4, Height: 4},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Invalid level",
			path:           "/api/levels",
			level:          &engine.LevelConfig{Name: "Broken"},
			saveErr:        fmt.Errorf("%w: grid must be at least 1x1", engine.ErrInvalidLevel),
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			saved := ""
			mockService := &MockGameService{
				SaveLevelFunc: func(ctx context.Context, name string, level *engine.LevelConfig) error {
					if tt.saveErr != nil {
						return tt.saveErr
					}
					saved = name
					return nil
				},
			}
			server := setupTestServer(mockService)

			w := serve(server, makeRequest("POST", tt.path, tt.level))
			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if saved != tt.expectedFile {
				t.Errorf("Expected file %q, got %q", tt.expectedFile, saved)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	server := setupTestServer(&MockGameService{})

	w := serve(server, makeRequest("GET", "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp map[string]string
	parseResponse(t, w, &resp)
	if resp["status"] != "healthy" {
		t.Errorf("Expected healthy, got %s", resp["status"])
	}
}

func TestWebSocketRequiresSession(t *testing.T) {
	mockService := &MockGameService{
		GetGameStateFunc: func(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
			return nil, service.ErrSessionNotFound
		},
	}
	server := setupTestServer(mockService)

	w := serve(server, makeRequest("GET", "/ws", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 without session, got %d", w.Code)
	}

	w = serve(server, makeRequest("GET", "/ws?session=missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown session, got %d", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err      error
		expected int
	}{
		{service.ErrSessionNotFound, http.StatusNotFound},
		{fmt.Errorf("wrap: %w", service.ErrLevelNotFound), http.StatusNotFound},
		{engine.ErrUnknownAgent, http.StatusNotFound},
		{engine.ErrInvalidTransition, http.StatusConflict},
		{engine.ErrNotPlanning, http.StatusConflict},
		{engine.ErrSessionFinished, http.StatusConflict},
		{service.ErrSimulationRunning, http.StatusConflict},
		{engine.ErrInvalidLevel, http.StatusBadRequest},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.expected {
			t.Errorf("statusFor(%v) = %d, expected %d", tt.err, got, tt.expected)
		}
	}
}

func TestLevelFileName(t *testing.T) {
	tests := map[string]string{
		"Two Lanes":       "two_lanes",
		"  Crossing!  ":   "crossing",
		"Level-3 (final)": "level-3_final",
		"???":             "",
	}
	for in, expected := range tests {
		if got := levelFileName(in); got != expected {
			t.Errorf("levelFileName(%q) = %q, expected %q", in, got, expected)
		}
	}
}
