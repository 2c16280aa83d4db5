package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/pathpath/game/engine"
	"github.com/wricardo/pathpath/game/service"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			// run_simulation blocks until an outcome
			Timeout: 5*time.Minute + 10*time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Pathpath",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Pathpath - MCP Interface

This is a thin client that proxies all requests to the REST API server.

GAME OBJECTIVE:
Draw a path for every agent from its start (S) to its goal (G), then run the
simulation. The level is cleared when every agent reaches its goal without
two agents ever standing in the same cell at the same time.

AVAILABLE TOOLS:
- create_session / list_sessions / get_session: Session management
- game_state: Current grid, agents, drafts and outcome
- describe_cell: What is at a grid cell
- select_agent / deselect: Open or discard an agent's draft path
- propose_waypoint: Add one waypoint to the open draft - requires intent explanation
- plan_path: Select an agent and propose a list of waypoints - requires intent explanation
- start_simulation / step_simulation / run_simulation / halt_simulation
- restart_level / advance_level: Continue after an outcome
- event_history: Past events
- list_levels: Available levels
- game_instructions: Full rules

NOTE: The 'intent' parameter on propose_waypoint/plan_path serves as rubber duck debugging - explain your reasoning!`),
	)

	// Register all tools
	c.registerTools()
}

func sessionProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Session ID",
	}
}

func sessionOnly() mcp.ToolInputSchema {
	return mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"session_id": sessionProperty(),
		},
		Required: []string{"session_id"},
	}
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Session management
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a new game session, optionally starting at a specific level",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"level_id": map[string]interface{}{
					"type":        "string",
					"description": "Level to start at (optional, see list_levels)",
				},
			},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List all active game sessions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get details of a specific session",
		InputSchema: sessionOnly(),
	}, c.handleGetSession)

	// Game state
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_state",
		Description: "Get the current game state",
		InputSchema: sessionOnly(),
	}, c.handleGameState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "describe_cell",
		Description: "Describe a grid cell: walkability, starts, goals, agents and paths on it",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProperty(),
				"x":          map[string]interface{}{"type": "integer", "description": "Column, 0 is the left edge"},
				"y":          map[string]interface{}{"type": "integer", "description": "Row, 0 is the bottom edge"},
			},
			Required: []string{"session_id", "x", "y"},
		},
	}, c.handleDescribeCell)

	// Planning
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "select_agent",
		Description: "Select an agent and open a draft path at its start cell",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProperty(),
				"player_id":  map[string]interface{}{"type": "integer", "description": "Agent to select"},
			},
			Required: []string{"session_id", "player_id"},
		},
	}, c.handleSelectAgent)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "deselect",
		Description: "Discard the open draft path",
		InputSchema: sessionOnly(),
	}, c.handleDeselect)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "propose_waypoint",
		Description: "Propose the next waypoint for the selected agent. Waypoints must share a row or column with the previous one.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProperty(),
				"x":          map[string]interface{}{"type": "integer", "description": "Column"},
				"y":          map[string]interface{}{"type": "integer", "description": "Row"},
				"intent": map[string]interface{}{
					"type":        "string",
					"description": "Brief explanation of the intent behind this waypoint (serves as a rubber duck to help explain your reasoning)",
				},
			},
			Required: []string{"session_id", "x", "y"},
		},
	}, c.handleProposeWaypoint)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "plan_path",
		Description: "Select an agent and propose waypoints in order, stopping at the first rejection",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProperty(),
				"player_id":  map[string]interface{}{"type": "integer", "description": "Agent to plan"},
				"waypoints": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"x": map[string]interface{}{"type": "integer"},
							"y": map[string]interface{}{"type": "integer"},
						},
						"required": []string{"x", "y"},
					},
					"description": "Waypoints after the start cell, ending at the goal",
				},
				"intent": map[string]interface{}{
					"type":        "string",
					"description": "Brief explanation of the intent behind this path (serves as a rubber duck to help explain your reasoning)",
				},
			},
			Required: []string{"session_id", "player_id", "waypoints"},
		},
	}, c.handlePlanPath)

	// Simulation
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "start_simulation",
		Description: "Start the simulation once every agent has a complete path",
		InputSchema: sessionOnly(),
	}, c.handleStartSimulation)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "step_simulation",
		Description: "Advance a running simulation by a time step",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProperty(),
				"dt_ms":      map[string]interface{}{"type": "integer", "description": "Milliseconds to advance (default one frame)"},
			},
			Required: []string{"session_id"},
		},
	}, c.handleStepSimulation)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "run_simulation",
		Description: "Start if needed and run the simulation until an outcome",
		InputSchema: sessionOnly(),
	}, c.handleRunSimulation)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "halt_simulation",
		Description: "Stop the simulation and evaluate the outcome now",
		InputSchema: sessionOnly(),
	}, c.handleHaltSimulation)

	// Level flow
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "restart_level",
		Description: "Replay the current level after an outcome",
		InputSchema: sessionOnly(),
	}, c.handleRestartLevel)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "advance_level",
		Description: "Move to the next level after a clear",
		InputSchema: sessionOnly(),
	}, c.handleAdvanceLevel)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "event_history",
		Description: "View past game events with pagination",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProperty(),
				"page":       map[string]interface{}{"type": "integer", "description": "Page number (default 1)"},
				"limit":      map[string]interface{}{"type": "integer", "description": "Events per page (default 20)"},
				"type":       map[string]interface{}{"type": "string", "description": "Only events of this type, e.g. waypoint_rejected"},
			},
			Required: []string{"session_id"},
		},
	}, c.handleEventHistory)

	// Levels
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_levels",
		Description: "List available levels",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListLevels)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_instructions",
		Description: "Get comprehensive game instructions and rules",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleGameInstructions)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"].(string); ok {
			return fmt.Errorf("%s", msg)
		}
		if msg, ok := errResp["message"].(string); ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func sessionPath(sessionID, action string) string {
	path := "/api/sessions/" + url.PathEscape(sessionID)
	if action != "" {
		path += "/" + action
	}
	return path
}

// intArg reads a JSON number argument
func intArg(args map[string]interface{}, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}

// Tool handlers

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	levelID, _ := args["level_id"].(string)

	body := map[string]string{}
	if levelID != "" {
		body["level_id"] = levelID
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, "POST", "/api/sessions", body, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Created session: %s\nLevel: %s\n\n%s", session.ID, session.LevelName, formatGameState(session.State))
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count    int                   `json:"count"`
		Sessions []service.SessionInfo `json:"sessions"`
	}

	if err := c.apiCall(ctx, "GET", "/api/sessions", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var result strings.Builder
	fmt.Fprintf(&result, "Active Sessions (%d):\n\n", response.Count)
	for _, s := range response.Sessions {
		state := "unknown"
		if s.State != nil {
			state = string(s.State.State)
		}
		fmt.Fprintf(&result, "- %s (Level: %s, State: %s, Created: %s)\n",
			s.ID, s.LevelName, state, s.CreatedAt.Format("15:04:05"))
	}

	return mcp.NewToolResultText(result.String()), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := request.GetArguments()["session_id"].(string)

	var session service.SessionInfo
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, ""), nil, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionInfo(&session)), nil
}

func (c *Client) handleGameState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := request.GetArguments()["session_id"].(string)

	var state engine.Snapshot
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, "state"), nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatGameState(&state)), nil
}

func (c *Client) handleDescribeCell(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sessionID, _ := args["session_id"].(string)
	x, okX := intArg(args, "x")
	y, okY := intArg(args, "y")
	if !okX || !okY {
		return mcp.NewToolResultError("x and y are required integers"), nil
	}

	var state engine.Snapshot
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, "state"), nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if x < 0 || y < 0 || x >= state.Width || y >= state.Height {
		return mcp.NewToolResultError(fmt.Sprintf("Coordinates (%d, %d) are out of bounds. Grid size is %dx%d (x 0-%d, y 0-%d)",
			x, y, state.Width, state.Height, state.Width-1, state.Height-1)), nil
	}

	return mcp.NewToolResultText(describeCell(&state, engine.Position{X: x, Y: y})), nil
}

func (c *Client) handleSelectAgent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sessionID, _ := args["session_id"].(string)
	playerID, ok := intArg(args, "player_id")
	if !ok {
		return mcp.NewToolResultError("player_id is required"), nil
	}

	var result service.SelectResult
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "select"), map[string]int{"player_id": playerID}, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("%s\n\n%s", result.Message, formatGameState(result.State))), nil
}

func (c *Client) handleDeselect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := request.GetArguments()["session_id"].(string)

	var result service.CommandResult
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "deselect"), nil, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(result.Message), nil
}

func (c *Client) handleProposeWaypoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sessionID, _ := args["session_id"].(string)
	x, okX := intArg(args, "x")
	y, okY := intArg(args, "y")
	if !okX || !okY {
		return mcp.NewToolResultError("x and y are required integers"), nil
	}

	// Intent parameter serves as rubber duck debugging - we don't need to process it further
	_, _ = args["intent"].(string)

	var result service.WaypointResult
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "waypoint"), map[string]int{"x": x, "y": y}, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatWaypointResult(&result)), nil
}

func (c *Client) handlePlanPath(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sessionID, _ := args["session_id"].(string)
	playerID, ok := intArg(args, "player_id")
	if !ok {
		return mcp.NewToolResultError("player_id is required"), nil
	}
	raw, _ := args["waypoints"].([]interface{})

	// Convert waypoints to positions
	waypoints := make([]engine.Position, 0, len(raw))
	for i, w := range raw {
		point, ok := w.(map[string]interface{})
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("waypoint %d must be an object with x and y", i+1)), nil
		}
		x, okX := intArg(point, "x")
		y, okY := intArg(point, "y")
		if !okX || !okY {
			return mcp.NewToolResultError(fmt.Sprintf("waypoint %d must have integer x and y", i+1)), nil
		}
		waypoints = append(waypoints, engine.Position{X: x, Y: y})
	}
	if len(waypoints) == 0 {
		return mcp.NewToolResultError("at least one waypoint is required"), nil
	}

	var selected service.SelectResult
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "select"), map[string]int{"player_id": playerID}, &selected); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if selected.Result != engine.SelectOpened {
		return mcp.NewToolResultError(selected.Message), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Planning agent %d (%d waypoints requested)\n\n", playerID, len(waypoints))

	var last service.WaypointResult
	for i, wp := range waypoints {
		last = service.WaypointResult{}
		if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "waypoint"), map[string]int{"x": wp.X, "y": wp.Y}, &last); err != nil {
			fmt.Fprintf(&b, "%d. %s error: %v\n", i+1, wp, err)
			return mcp.NewToolResultText(b.String()), nil
		}
		if !last.Accepted {
			fmt.Fprintf(&b, "%d. %s ✗ rejected (%s)\n", i+1, wp, last.Reason)
			fmt.Fprintf(&b, "\nStopped at waypoint %d. The draft is still open with %d selections remaining.\n", i+1, last.Remaining)
			return mcp.NewToolResultText(b.String()), nil
		}
		fmt.Fprintf(&b, "%d. %s ✓ (remaining: %d)\n", i+1, wp, last.Remaining)
		if last.Completed {
			if i < len(waypoints)-1 {
				fmt.Fprintf(&b, "\nGoal reached after %d waypoints; %d extra waypoints ignored.\n", i+1, len(waypoints)-i-1)
			}
			break
		}
	}

	b.WriteString("\n" + last.Message + "\n\n")
	b.WriteString(formatGameState(last.State))
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) simulationCall(ctx context.Context, sessionID, action string, body interface{}) (*mcp.CallToolResult, error) {
	var result service.SimulationResult
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, action), body, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSimulationResult(&result)), nil
}

func (c *Client) handleStartSimulation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := request.GetArguments()["session_id"].(string)
	return c.simulationCall(ctx, sessionID, "start", nil)
}

func (c *Client) handleStepSimulation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sessionID, _ := args["session_id"].(string)

	var body interface{}
	if dt, ok := intArg(args, "dt_ms"); ok {
		body = map[string]int{"dt_ms": dt}
	}
	return c.simulationCall(ctx, sessionID, "step", body)
}

func (c *Client) handleRunSimulation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := request.GetArguments()["session_id"].(string)
	return c.simulationCall(ctx, sessionID, "run", nil)
}

func (c *Client) handleHaltSimulation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := request.GetArguments()["session_id"].(string)
	return c.simulationCall(ctx, sessionID, "halt", nil)
}

func (c *Client) levelFlowCall(ctx context.Context, sessionID, action string) (*mcp.CallToolResult, error) {
	var response struct {
		Message string           `json:"message"`
		State   *engine.Snapshot `json:"state"`
	}

	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, action), nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("%s\n\n%s", response.Message, formatGameState(response.State))), nil
}

func (c *Client) handleRestartLevel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := request.GetArguments()["session_id"].(string)
	return c.levelFlowCall(ctx, sessionID, "restart")
}

func (c *Client) handleAdvanceLevel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := request.GetArguments()["session_id"].(string)
	return c.levelFlowCall(ctx, sessionID, "advance")
}

func (c *Client) handleEventHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sessionID, _ := args["session_id"].(string)

	params := url.Values{}
	if page, ok := intArg(args, "page"); ok {
		params.Set("page", strconv.Itoa(page))
	}
	if limit, ok := intArg(args, "limit"); ok {
		params.Set("limit", strconv.Itoa(limit))
	}
	if eventType, _ := args["type"].(string); eventType != "" {
		params.Set("type", eventType)
	}

	path := sessionPath(sessionID, "events")
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var history service.HistoryResponse
	if err := c.apiCall(ctx, "GET", path, nil, &history); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatHistory(&history)), nil
}

func (c *Client) handleListLevels(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var levels []service.LevelInfo
	if err := c.apiCall(ctx, "GET", "/api/levels", nil, &levels); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var result strings.Builder
	result.WriteString("Available Levels:\n\n")
	for _, level := range levels {
		fmt.Fprintf(&result, "• %s (level_id: %s)\n  %s\n  Grid: %dx%d, Agents: %d\n\n",
			level.Name, level.LevelID, level.Description, level.Width, level.Height, level.Agents)
	}

	return mcp.NewToolResultText(result.String()), nil
}

func (c *Client) handleGameInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instructions := `Pathpath - Complete Instructions

GAME OBJECTIVE:
Every agent has a start (S) and a goal (G). Plan a path for each agent, then
run the simulation. All agents walk their paths at the same time. The level is
cleared when every agent reaches its goal with no collision.

COORDINATES:
• x is the column, 0 is the left edge
• y is the row, 0 is the bottom edge (game_state prints the top row first)
• '#' cells are blocked, '.' cells are walkable

PLANNING:
• select_agent opens a draft path at the agent's start cell
• Each waypoint must be on the same row or the same column as the previous one
• A waypoint must be on a walkable cell inside the grid
• Another agent's start or goal cannot be used as a waypoint
• Every accepted waypoint spends one selection from the agent's budget
• The draft completes when a waypoint lands on the agent's goal
• Only one agent can have an open draft; deselect discards it
• Re-planning an agent keeps its old path until the new one completes

REJECTION REASONS:
• no_agent_selected: select an agent first
• tile_missing: the cell is outside the grid or blocked
• not_straight_line: the waypoint shares neither row nor column with the last one
• foreign_goal / foreign_start: the cell belongs to another agent
• budget_exhausted: the agent has no selections left
• goal_unreachable_after: with the selections left the goal could no longer be reached
• segment_blocked: strict levels only, a cell between waypoints is blocked

SIMULATION:
• start_simulation requires a complete path for every agent
• Agents move cell by cell along their expanded routes at the same speed
• Two agents in the same cell at the same time is a collision: game over
• Agents that stop before their goal end the run: game over
• Every agent at its goal: level clear

AFTER AN OUTCOME:
• restart_level replays the level with fresh budgets
• advance_level loads the next level after a clear

STRATEGY TIPS:
1. Look at where paths cross and make agents pass those cells at different times
2. Longer detours delay an agent, which can avoid a crossing
3. Use describe_cell to check for blocked tiles before proposing
4. Count your budget: a path with N turns needs N+1 waypoints`

	return mcp.NewToolResultText(instructions), nil
}

// Formatting helpers

func formatSessionInfo(session *service.SessionInfo) string {
	running := ""
	if session.Running {
		running = " (simulation running)"
	}
	return fmt.Sprintf("Session: %s%s\nLevel: %s\nCreated: %s\n\n%s",
		session.ID, running, session.LevelName,
		session.CreatedAt.Format("2006-01-02 15:04:05"),
		formatGameState(session.State))
}

// agentMark is the character used for an agent on the grid
func agentMark(playerID int) string {
	if playerID >= 0 && playerID < 36 {
		return strconv.FormatInt(int64(playerID), 36)
	}
	return "@"
}

func formatGameState(state *engine.Snapshot) string {
	if state == nil {
		return "No game state available"
	}

	var result strings.Builder

	// Header
	fmt.Fprintf(&result, "Level %d/%d: %s | State: %s | Ticks: %d\n",
		state.Level.Index+1, state.LevelCount, state.Level.Name, state.State, state.Ticks)
	if state.Selected != nil {
		fmt.Fprintf(&result, "Selected: agent %d, draft %s\n", *state.Selected, formatPath(state.Draft))
	}
	result.WriteString("\n")

	// Grid, top row first
	marks := map[engine.Position]string{}
	for _, p := range state.Draft {
		marks[p] = "*"
	}
	for _, a := range state.Agents {
		marks[a.CurrentCell] = agentMark(a.PlayerID)
	}

	for y := state.Height - 1; y >= 0; y-- {
		row := state.Height - 1 - y
		fmt.Fprintf(&result, "%2d ", y)
		for x := 0; x < state.Width; x++ {
			if mark, ok := marks[engine.Position{X: x, Y: y}]; ok {
				result.WriteString(mark)
				continue
			}
			if row < len(state.Layout) && x < len(state.Layout[row]) {
				result.WriteByte(state.Layout[row][x])
			} else {
				result.WriteString(".")
			}
		}
		result.WriteString("\n")
	}

	// Agents
	result.WriteString("\nAgents:\n")
	for _, a := range state.Agents {
		status := "no path"
		if a.Completed {
			status = "path " + formatPath(a.CommittedPath)
		}
		if a.Moving {
			status += ", moving"
		}
		fmt.Fprintf(&result, "  %s: %s -> %s at %s, %d/%d selections left, %s\n",
			agentMark(a.PlayerID), a.Start, a.Goal, a.CurrentCell, a.Remaining, a.SelectionBudget, status)
	}

	// Status
	if state.Outcome != nil {
		fmt.Fprintf(&result, "\nOutcome: %s\n", state.Outcome)
	}
	switch state.State {
	case engine.StateLevelClear:
		result.WriteString("\n🎉 LEVEL CLEAR!")
	case engine.StateGameOver:
		result.WriteString("\n💀 GAME OVER")
	case engine.StatePlanning:
		if state.AllComplete {
			result.WriteString("\nAll paths complete. Ready to start the simulation.")
		}
	}
	if state.Finished {
		result.WriteString("\nAll levels complete.")
	}

	return result.String()
}

func formatPath(path []engine.Position) string {
	if len(path) == 0 {
		return "[]"
	}
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = p.String()
	}
	return strings.Join(parts, "→")
}

func formatWaypointResult(result *service.WaypointResult) string {
	var b strings.Builder
	if result.Accepted {
		fmt.Fprintf(&b, "✓ Waypoint %s accepted for agent %d (remaining: %d)\n", result.Candidate, result.PlayerID, result.Remaining)
	} else {
		fmt.Fprintf(&b, "✗ Waypoint %s rejected: %s (remaining: %d)\n", result.Candidate, result.Reason, result.Remaining)
	}
	if result.Completed {
		b.WriteString("Path complete.\n")
	}
	if result.Message != "" {
		b.WriteString(result.Message + "\n")
	}
	if result.State != nil {
		b.WriteString("\n" + formatGameState(result.State))
	}
	return b.String()
}

func formatSimulationResult(result *service.SimulationResult) string {
	var b strings.Builder
	if result.Message != "" {
		b.WriteString(result.Message + "\n")
	}
	if result.Running {
		b.WriteString("Simulation running in real time. Poll game_state for the outcome.\n")
	}
	if result.State != nil {
		b.WriteString("\n" + formatGameState(result.State))
	}
	return b.String()
}

func describeCell(state *engine.Snapshot, cell engine.Position) string {
	var b strings.Builder
	row := state.Height - 1 - cell.Y

	tile := byte('.')
	if row < len(state.Layout) && cell.X < len(state.Layout[row]) {
		tile = state.Layout[row][cell.X]
	}

	fmt.Fprintf(&b, "Cell %s\n", cell)
	if tile == engine.TileBlocked {
		b.WriteString("Tile: '#' blocked\n")
	} else {
		fmt.Fprintf(&b, "Tile: '%c' walkable\n", tile)
	}

	for _, a := range state.Agents {
		mark := agentMark(a.PlayerID)
		if a.Start == cell {
			fmt.Fprintf(&b, "Start of agent %s\n", mark)
		}
		if a.Goal == cell {
			fmt.Fprintf(&b, "Goal of agent %s\n", mark)
		}
		if a.CurrentCell == cell {
			fmt.Fprintf(&b, "Agent %s is here\n", mark)
		}
		for _, p := range a.Route {
			if p == cell {
				fmt.Fprintf(&b, "On the route of agent %s\n", mark)
				break
			}
		}
	}
	for _, p := range state.Draft {
		if p == cell {
			b.WriteString("In the open draft\n")
			break
		}
	}

	return b.String()
}

func formatHistory(history *service.HistoryResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Event History (Page %d/%d) | Total: %d\n\n",
		history.Page, history.TotalPages, history.TotalEvents)

	for _, evt := range history.Events {
		fmt.Fprintf(&b, "#%d %s", evt.Seq, evt.Type)
		if evt.PlayerID != nil {
			fmt.Fprintf(&b, " agent=%d", *evt.PlayerID)
		}
		if evt.Cell != nil {
			fmt.Fprintf(&b, " cell=%s", evt.Cell)
		}
		if evt.Reason != "" {
			fmt.Fprintf(&b, " reason=%s", evt.Reason)
		}
		if len(evt.Path) > 0 {
			fmt.Fprintf(&b, " path=%s", formatPath(evt.Path))
		}
		if evt.State != "" {
			fmt.Fprintf(&b, " state=%s", evt.State)
		}
		if evt.Outcome != nil {
			fmt.Fprintf(&b, " outcome=%q", evt.Outcome.String())
		}
		if evt.Level != nil {
			fmt.Fprintf(&b, " level=%q", evt.Level.Name)
		}
		b.WriteString("\n")
	}

	if history.HasNext {
		fmt.Fprintf(&b, "\nMore events on page %d.\n", history.Page+1)
	}
	return b.String()
}
