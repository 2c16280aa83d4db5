package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/wricardo/pathpath/game/engine"
	"github.com/wricardo/pathpath/game/service"
	"github.com/wricardo/pathpath/transport/websocket"
)

// maxStep caps a single /step request
const maxStep = time.Minute

// Server represents the REST API server
type Server struct {
	service service.GameService
	hub     *websocket.Hub
	router  *mux.Router
}

// NewServer creates a new API server
func NewServer(gameService service.GameService, hub *websocket.Hub) *Server {
	s := &Server{
		service: gameService,
		hub:     hub,
		router:  mux.NewRouter(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Session management
	api.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods("DELETE")

	// Planning
	api.HandleFunc("/sessions/{id}/state", s.handleGetGameState).Methods("GET")
	api.HandleFunc("/sessions/{id}/select", s.handleSelect).Methods("POST")
	api.HandleFunc("/sessions/{id}/deselect", s.handleDeselect).Methods("POST")
	api.HandleFunc("/sessions/{id}/waypoint", s.handleWaypoint).Methods("POST")
	api.HandleFunc("/sessions/{id}/pointer", s.handlePointer).Methods("POST")

	// Simulation
	api.HandleFunc("/sessions/{id}/start", s.handleStart).Methods("POST")
	api.HandleFunc("/sessions/{id}/step", s.handleStep).Methods("POST")
	api.HandleFunc("/sessions/{id}/run", s.handleRun).Methods("POST")
	api.HandleFunc("/sessions/{id}/halt", s.handleHalt).Methods("POST")

	// Level flow
	api.HandleFunc("/sessions/{id}/restart", s.handleRestart).Methods("POST")
	api.HandleFunc("/sessions/{id}/advance", s.handleAdvance).Methods("POST")
	api.HandleFunc("/sessions/{id}/events", s.handleGetEvents).Methods("GET")

	// Levels
	api.HandleFunc("/levels", s.handleListLevels).Methods("GET")
	api.HandleFunc("/levels", s.handleCreateLevel).Methods("POST")
	api.HandleFunc("/levels/{name}", s.handleGetLevel).Methods("GET")

	// WebSocket
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps service and engine errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrLevelNotFound),
		errors.Is(err, engine.ErrUnknownAgent):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidTransition),
		errors.Is(err, engine.ErrNotPlanning),
		errors.Is(err, engine.ErrSessionFinished),
		errors.Is(err, service.ErrSimulationRunning):
		return http.StatusConflict
	case errors.Is(err, engine.ErrInvalidLevel):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func respondServiceError(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), err.Error())
}

// decodeBody decodes an optional JSON body into v. An empty body is not an
// error.
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Session Handlers

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Level   string `json:"level,omitempty"`
		LevelID string `json:"level_id,omitempty"`
	}

	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	level := req.LevelID
	if level == "" {
		level = req.Level
	}

	session, err := s.service.CreateSession(r.Context(), level)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.service.ListSessions(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	// Parse query parameters
	query := r.URL.Query()
	sortBy := query.Get("sort")    // "created", "accessed" (default)
	order := query.Get("order")    // "asc", "desc" (default: "desc")
	limitStr := query.Get("limit") // number of sessions to return

	// Set defaults
	if sortBy == "" {
		sortBy = "accessed"
	}
	if order == "" {
		order = "desc"
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		var ti, tj time.Time
		if sortBy == "created" {
			ti, tj = sessions[i].CreatedAt, sessions[j].CreatedAt
		} else { // "accessed"
			ti, tj = sessions[i].LastAccessedAt, sessions[j].LastAccessedAt
		}

		if order == "asc" {
			return ti.Before(tj)
		}
		return ti.After(tj) // desc
	})

	total := len(sessions)
	limit := total
	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < total {
			limit = l
		}
	}
	sessions = sessions[:limit]

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(sessions),
		"total":    total,
		"sessions": sessions,
		"sort":     sortBy,
		"order":    order,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.service.GetSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, session)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := s.service.DeleteSession(r.Context(), sessionID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Session %s deleted", sessionID),
	})
}

// Planning Handlers

func (s *Server) handleGetGameState(w http.ResponseWriter, r *http.Request) {
	state, err := s.service.GetGameState(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID *int `json:"player_id"`
	}

	if err := decodeBody(r, &req); err != nil || req.PlayerID == nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: player_id is required")
		return
	}

	result, err := s.service.SelectAgent(r.Context(), mux.Vars(r)["id"], *req.PlayerID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleDeselect(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.Deselect(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleWaypoint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		X *int `json:"x"`
		Y *int `json:"y"`
	}

	if err := decodeBody(r, &req); err != nil || req.X == nil || req.Y == nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: x and y are required")
		return
	}

	cell := engine.Position{X: *req.X, Y: *req.Y}
	result, err := s.service.ProposeWaypoint(r.Context(), mux.Vars(r)["id"], cell)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handlePointer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
	}

	if err := decodeBody(r, &req); err != nil || req.X == nil || req.Y == nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: x and y are required")
		return
	}

	world := engine.Vec2{X: *req.X, Y: *req.Y}
	result, err := s.service.PointerDown(r.Context(), mux.Vars(r)["id"], world)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Simulation Handlers

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.StartSimulation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	status := http.StatusOK
	if !result.Started {
		status = http.StatusConflict
	}
	respondJSON(w, status, result)
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DtMS int64 `json:"dt_ms,omitempty"`
	}

	if err := decodeBody(r, &req); err != nil || req.DtMS < 0 {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	dt := time.Duration(req.DtMS) * time.Millisecond
	if dt > maxStep {
		dt = maxStep
	}

	result, err := s.service.StepSimulation(r.Context(), mux.Vars(r)["id"], dt)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.RunSimulation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleHalt(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.Halt(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Level Flow Handlers

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	state, err := s.service.RestartLevel(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Level restarted",
		"state":   state,
	})
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	state, err := s.service.AdvanceLevel(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	message := fmt.Sprintf("Advanced to level %d: %s", state.Level.Index+1, state.Level.Name)
	if state.Finished {
		message = "All levels complete"
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": message,
		"state":   state,
	})
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	// Parse query parameters
	opts := service.HistoryOptions{
		Page:  1,
		Limit: 20,
		Order: "desc",
	}

	query := r.URL.Query()
	if pageStr := query.Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			opts.Page = p
		}
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			opts.Limit = l
		}
	}

	if order := query.Get("order"); order == "asc" || order == "desc" {
		opts.Order = order
	}

	opts.Type = engine.EventType(query.Get("type"))

	history, err := s.service.GetEventHistory(r.Context(), mux.Vars(r)["id"], opts)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, history)
}

// Level Handlers

func (s *Server) handleListLevels(w http.ResponseWriter, r *http.Request) {
	levels, err := s.service.ListLevels(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, levels)
}

func (s *Server) handleGetLevel(w http.ResponseWriter, r *http.Request) {
	level, err := s.service.LoadLevel(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, level)
}

var nonFileChars = regexp.MustCompile(`[^a-z0-9_-]+`)

// levelFileName derives a file name from a level's display name
func levelFileName(name string) string {
	slug := nonFileChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
	return strings.Trim(slug, "_")
}

func (s *Server) handleCreateLevel(w http.ResponseWriter, r *http.Request) {
	var level engine.LevelConfig

	if err := json.NewDecoder(r.Body).Decode(&level); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if level.Name == "" {
		respondError(w, http.StatusBadRequest, "Level name is required")
		return
	}

	name := r.URL.Query().Get("file")
	if name == "" {
		name = levelFileName(level.Name)
	}
	if name == "" {
		respondError(w, http.StatusBadRequest, "Level name has no usable characters for a file name")
		return
	}

	if err := s.service.SaveLevel(r.Context(), name, &level); err != nil {
		status := statusFor(err)
		respondError(w, status, fmt.Sprintf("Failed to save level: %v", err))
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message":  "Level saved successfully",
		"level_id": name,
	})
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session parameter required", http.StatusBadRequest)
		return
	}
	if s.hub == nil {
		http.Error(w, "WebSocket not available", http.StatusServiceUnavailable)
		return
	}

	// Verify session exists and send its state on connect
	state, err := s.service.GetGameState(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "Invalid session", http.StatusNotFound)
		return
	}

	s.hub.ServeWS(w, r, sessionID, state)
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
