package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wricardo/pathpath/game/engine"
	"github.com/wricardo/pathpath/game/service"
)

// Client plays one session through the REST API
type Client struct {
	baseURL   string
	sessionID string
	client    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			// Run blocks until the simulation ends
			Timeout: 5*time.Minute + 10*time.Second,
		},
	}
}

type stateResponse struct {
	Message string           `json:"message"`
	State   *engine.Snapshot `json:"state"`
}

func (c *Client) call(ctx context.Context, method, path string, body, result interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s failed: %s - %s", method, path, resp.Status, apiErr.Error)
		}
		return fmt.Errorf("%s %s failed: %s - %s", method, path, resp.Status, string(data))
	}

	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("parse %s response: %w", path, err)
		}
	}
	return nil
}

func (c *Client) sessionPath(action string) string {
	return fmt.Sprintf("/api/sessions/%s/%s", c.sessionID, action)
}

func (c *Client) CreateSession(ctx context.Context, level string) (*engine.Snapshot, error) {
	var body interface{}
	if level != "" {
		body = map[string]string{"level_id": level}
	}

	var info service.SessionInfo
	if err := c.call(ctx, http.MethodPost, "/api/sessions", body, &info); err != nil {
		return nil, err
	}
	c.sessionID = info.ID
	return info.State, nil
}

// Resume attaches to an existing session
func (c *Client) Resume(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	c.sessionID = sessionID
	var snap engine.Snapshot
	if err := c.call(ctx, http.MethodGet, c.sessionPath("state"), nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) Levels(ctx context.Context) ([]*service.LevelInfo, error) {
	var levels []*service.LevelInfo
	if err := c.call(ctx, http.MethodGet, "/api/levels", nil, &levels); err != nil {
		return nil, err
	}
	return levels, nil
}

func (c *Client) Select(ctx context.Context, playerID int) (*service.SelectResult, error) {
	var result service.SelectResult
	err := c.call(ctx, http.MethodPost, c.sessionPath("select"), map[string]int{"player_id": playerID}, &result)
	return &result, err
}

func (c *Client) Deselect(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, c.sessionPath("deselect"), nil, nil)
}

func (c *Client) Waypoint(ctx context.Context, cell engine.Position) (*service.WaypointResult, error) {
	var result service.WaypointResult
	err := c.call(ctx, http.MethodPost, c.sessionPath("waypoint"), map[string]int{"x": cell.X, "y": cell.Y}, &result)
	return &result, err
}

func (c *Client) Run(ctx context.Context) (*service.SimulationResult, error) {
	var result service.SimulationResult
	err := c.call(ctx, http.MethodPost, c.sessionPath("run"), nil, &result)
	return &result, err
}

func (c *Client) Restart(ctx context.Context) (*engine.Snapshot, error) {
	var resp stateResponse
	if err := c.call(ctx, http.MethodPost, c.sessionPath("restart"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.State, nil
}

func (c *Client) Advance(ctx context.Context) (*engine.Snapshot, error) {
	var resp stateResponse
	if err := c.call(ctx, http.MethodPost, c.sessionPath("advance"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.State, nil
}
