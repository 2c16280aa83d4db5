package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wricardo/pathpath/game/engine"
)

// ErrSimulationRunning is returned when a manual simulation command races
// the realtime runner.
var ErrSimulationRunning = errors.New("simulation is running in realtime")

// DefaultRunLimit caps the simulated time of RunSimulation and StepSimulation
const DefaultRunLimit = 5 * time.Minute

const tracerName = "github.com/wricardo/pathpath/game/service"

// Option configures the game service
type Option func(*gameServiceImpl)

// WithSettings sets the engine timing used for new sessions
func WithSettings(settings engine.Settings) Option {
	return func(s *gameServiceImpl) { s.settings = settings }
}

// WithRealtime makes StartSimulation drive the engine from a ticker
func WithRealtime(enabled bool) Option {
	return func(s *gameServiceImpl) { s.realtime = enabled }
}

// WithRunLimit caps simulated time per RunSimulation call
func WithRunLimit(limit time.Duration) Option {
	return func(s *gameServiceImpl) {
		if limit > 0 {
			s.runLimit = limit
		}
	}
}

// WithNotifier forwards engine events and snapshots to n
func WithNotifier(n Notifier) Option {
	return func(s *gameServiceImpl) { s.notifier = n }
}

// WithTracer overrides the tracer taken from the global provider
func WithTracer(t trace.Tracer) Option {
	return func(s *gameServiceImpl) { s.tracer = t }
}

// WithContext bounds the lifetime of realtime runners
func WithContext(ctx context.Context) Option {
	return func(s *gameServiceImpl) { s.root = ctx }
}

// gameServiceImpl implements the GameService interface
type gameServiceImpl struct {
	sessions SessionManager
	configs  ConfigManager
	settings engine.Settings
	realtime bool
	runLimit time.Duration
	notifier Notifier
	tracer   trace.Tracer
	root     context.Context
	mu       sync.RWMutex
}

// NewGameService creates a new game service instance
func NewGameService(sessions SessionManager, configs ConfigManager, opts ...Option) GameService {
	s := &gameServiceImpl{
		sessions: sessions,
		configs:  configs,
		settings: engine.DefaultSettings(),
		runLimit: DefaultRunLimit,
		tracer:   otel.Tracer(tracerName),
		root:     context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *gameServiceImpl) span(ctx context.Context, op, sessionID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{}
	if sessionID != "" {
		attrs = append(attrs, attribute.String("session.id", sessionID))
	}
	return s.tracer.Start(ctx, "GameService."+op, trace.WithAttributes(attrs...))
}

func recordErr(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// withSession runs fn with exclusive access to the session's engine
func (s *gameServiceImpl) withSession(ctx context.Context, op, sessionID string, fn func(sess *Session) error) error {
	_, span := s.span(ctx, op, sessionID)
	defer span.End()

	s.mu.RLock()
	sess, err := s.sessions.Get(sessionID)
	s.mu.RUnlock()
	if err != nil {
		return recordErr(span, fmt.Errorf("session %s: %w", sessionID, err))
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return recordErr(span, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound))
	}
	sess.LastAccessedAt = time.Now()

	if err := fn(sess); err != nil {
		return recordErr(span, err)
	}
	span.SetAttributes(attribute.String("game.state", string(sess.Engine.State())))
	return nil
}

// CreateSession creates a new game session starting at levelName, or at
// the first level when levelName is empty.
func (s *gameServiceImpl) CreateSession(ctx context.Context, levelName string) (*SessionInfo, error) {
	_, span := s.span(ctx, "CreateSession", "")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	levels, err := s.configs.Sequence(levelName)
	if err != nil {
		if errors.Is(err, ErrLevelNotFound) {
			available, listErr := s.configs.ListLevels()
			if listErr == nil && len(available) > 0 {
				var ids []string
				for _, lvl := range available {
					ids = append(ids, lvl.LevelID)
				}
				return nil, recordErr(span, fmt.Errorf("%w: '%s'. Available levels: %v", ErrLevelNotFound, levelName, ids))
			}
			return nil, recordErr(span, fmt.Errorf("%w: '%s'. Use /api/levels to list available levels", ErrLevelNotFound, levelName))
		}
		return nil, recordErr(span, fmt.Errorf("failed to load levels: %w", err))
	}
	if len(levels) == 0 {
		levels = []*engine.LevelConfig{s.configs.GetDefault()}
	}

	// The log subscribes before the engine loads its first level. Events
	// published during Create land in early until sess is set.
	bus := engine.NewEventBus()
	var sess *Session
	var early []engine.Event
	subID := bus.Subscribe(func(evt engine.Event) {
		if sess == nil {
			early = append(early, evt)
			return
		}
		sess.events = append(sess.events, evt)
		if s.notifier != nil {
			s.notifier.BroadcastEvent(sess.ID, evt)
		}
	})

	// Let session manager generate a proper 4-character ID
	created, err := s.sessions.Create("", levels, s.settings, engine.WithEventBus(bus))
	if err != nil {
		return nil, recordErr(span, fmt.Errorf("failed to create session: %w", err))
	}

	created.mu.Lock()
	defer created.mu.Unlock()
	created.LevelName = levelName
	if created.LevelName == "" {
		created.LevelName = levels[0].Name
	}
	created.subID = subID
	created.events = early
	sess = created

	span.SetAttributes(attribute.String("session.id", sess.ID), attribute.Int("levels", len(levels)))
	log.Printf("[SESSION] created %s level=%q levels=%d", sess.ID, sess.LevelName, len(levels))
	return s.info(sess), nil
}

// info must be called with sess.mu held
func (s *gameServiceImpl) info(sess *Session) *SessionInfo {
	snap := sess.Engine.Snapshot()
	return &SessionInfo{
		ID:             sess.ID,
		LevelName:      sess.LevelName,
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccessedAt,
		Running:        sess.stop != nil,
		State:          &snap,
	}
}

// snapshot must be called with sess.mu held. It also pushes the snapshot to
// the notifier.
func (s *gameServiceImpl) snapshot(sess *Session) *engine.Snapshot {
	snap := sess.Engine.Snapshot()
	if s.notifier != nil {
		s.notifier.BroadcastState(sess.ID, &snap)
	}
	return &snap
}

// GetSession retrieves session information
func (s *gameServiceImpl) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	var info *SessionInfo
	err := s.withSession(ctx, "GetSession", sessionID, func(sess *Session) error {
		info = s.info(sess)
		return nil
	})
	return info, err
}

// ListSessions returns all active sessions, oldest first
func (s *gameServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	_, span := s.span(ctx, "ListSessions", "")
	defer span.End()

	s.mu.RLock()
	sessions := s.sessions.List()
	s.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})

	result := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		sess.mu.Lock()
		if !sess.closed {
			result = append(result, s.info(sess))
		}
		sess.mu.Unlock()
	}
	return result, nil
}

// DeleteSession stops any realtime runner and removes the session
func (s *gameServiceImpl) DeleteSession(ctx context.Context, sessionID string) error {
	_, span := s.span(ctx, "DeleteSession", sessionID)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return recordErr(span, fmt.Errorf("session %s: %w", sessionID, err))
	}

	sess.mu.Lock()
	sess.closed = true
	s.stopRunner(sess)
	if sess.subID != "" {
		sess.Engine.Events().Unsubscribe(sess.subID)
		sess.subID = ""
	}
	sess.mu.Unlock()

	log.Printf("[SESSION] deleted %s", sessionID)
	return recordErr(span, s.sessions.Delete(sessionID))
}

// SelectAgent opens, aborts or refuses a planning draft
func (s *gameServiceImpl) SelectAgent(ctx context.Context, sessionID string, playerID int) (*SelectResult, error) {
	var result *SelectResult
	err := s.withSession(ctx, "SelectAgent", sessionID, func(sess *Session) error {
		res, err := sess.Engine.SelectAgent(playerID)
		if err != nil {
			return err
		}
		log.Printf("[SELECT] session=%s agent=%d %s", sess.ID, playerID, res)

		result = &SelectResult{
			PlayerID: playerID,
			Result:   res,
			Message:  selectMessage(playerID, res, sess.Engine),
			State:    s.snapshot(sess),
		}
		return nil
	})
	return result, err
}

func selectMessage(playerID int, res engine.SelectResult, eng *engine.GameEngine) string {
	switch res {
	case engine.SelectOpened:
		snap := eng.Snapshot()
		return fmt.Sprintf("Agent %d selected, %d selections available", playerID, remainingFor(snap, playerID))
	case engine.SelectAborted:
		return fmt.Sprintf("Agent %d deselected, draft discarded", playerID)
	case engine.SelectBusy:
		if current := eng.Snapshot().Selected; current != nil {
			return fmt.Sprintf("Agent %d is still planning; finish or deselect it first", *current)
		}
	}
	return string(res)
}

func remainingFor(snap engine.Snapshot, playerID int) int {
	for _, a := range snap.Agents {
		if a.PlayerID == playerID {
			return a.Remaining
		}
	}
	return 0
}

// Deselect closes the open draft
func (s *gameServiceImpl) Deselect(ctx context.Context, sessionID string) (*CommandResult, error) {
	var result *CommandResult
	err := s.withSession(ctx, "Deselect", sessionID, func(sess *Session) error {
		changed := sess.Engine.Deselect()
		msg := "No agent was selected"
		if changed {
			msg = "Draft discarded"
		}
		result = &CommandResult{Changed: changed, Message: msg, State: s.snapshot(sess)}
		return nil
	})
	return result, err
}

// ProposeWaypoint offers the next waypoint of the selected agent
func (s *gameServiceImpl) ProposeWaypoint(ctx context.Context, sessionID string, cell engine.Position) (*WaypointResult, error) {
	var result *WaypointResult
	err := s.withSession(ctx, "ProposeWaypoint", sessionID, func(sess *Session) error {
		res, err := sess.Engine.ProposeWaypoint(cell)
		if err != nil {
			return err
		}
		logWaypoint(sess.ID, res)
		result = &WaypointResult{
			ProposeResult: res,
			Message:       waypointMessage(res),
			State:         s.snapshot(sess),
		}
		return nil
	})
	return result, err
}

func logWaypoint(sessionID string, res engine.ProposeResult) {
	if res.Accepted {
		log.Printf("[WAYPOINT] session=%s agent=%d %s accepted remaining=%d completed=%v",
			sessionID, res.PlayerID, res.Candidate, res.Remaining, res.Completed)
		return
	}
	log.Printf("[WAYPOINT] session=%s agent=%d %s rejected: %s", sessionID, res.PlayerID, res.Candidate, res.Reason)
}

func waypointMessage(res engine.ProposeResult) string {
	switch {
	case res.Completed:
		return fmt.Sprintf("Agent %d path complete: %s", res.PlayerID, formatPath(res.Draft))
	case res.Accepted:
		return fmt.Sprintf("Waypoint %s accepted, %d selections left", res.Candidate, res.Remaining)
	default:
		return fmt.Sprintf("Waypoint %s rejected: %s", res.Candidate, res.Reason.Describe())
	}
}

func formatPath(path []engine.Position) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = p.String()
	}
	return strings.Join(parts, " -> ")
}

// PointerDown resolves a press at a world position
func (s *gameServiceImpl) PointerDown(ctx context.Context, sessionID string, world engine.Vec2) (*PointerResult, error) {
	var result *PointerResult
	err := s.withSession(ctx, "PointerDown", sessionID, func(sess *Session) error {
		res, err := sess.Engine.PointerDown(world)
		if err != nil {
			return err
		}

		var msg string
		switch res.Action {
		case engine.PointerSelected:
			msg = fmt.Sprintf("Pointer on %s selected an agent: %s", res.Cell, res.Select)
		case engine.PointerProposed:
			logWaypoint(sess.ID, *res.Propose)
			msg = waypointMessage(*res.Propose)
		default:
			msg = fmt.Sprintf("Pointer on %s ignored: no agent selected", res.Cell)
		}

		result = &PointerResult{PointerResult: res, Message: msg, State: s.snapshot(sess)}
		return nil
	})
	return result, err
}

// StartSimulation begins executing every committed path. It is not an
// error to call it before planning is complete; Started reports false.
func (s *gameServiceImpl) StartSimulation(ctx context.Context, sessionID string) (*SimulationResult, error) {
	var result *SimulationResult
	err := s.withSession(ctx, "StartSimulation", sessionID, func(sess *Session) error {
		result = s.start(sess)
		if result.Started && s.realtime {
			s.startRunner(sess)
			result.Running = true
		}
		result.State = s.snapshot(sess)
		return nil
	})
	return result, err
}

func (s *gameServiceImpl) start(sess *Session) *SimulationResult {
	if !sess.Engine.StartSimulation() {
		msg := "Every agent needs a complete path before the simulation can start"
		if state := sess.Engine.State(); state != engine.StatePlanning {
			msg = fmt.Sprintf("Cannot start a simulation in state %s", state)
		}
		return &SimulationResult{Message: msg}
	}
	log.Printf("[SIM] session=%s level=%q started", sess.ID, sess.Engine.Level().Name())
	return &SimulationResult{Started: true, Message: "Simulation started"}
}

// StepSimulation advances a running simulation by dt of simulated time
func (s *gameServiceImpl) StepSimulation(ctx context.Context, sessionID string, dt time.Duration) (*SimulationResult, error) {
	var result *SimulationResult
	err := s.withSession(ctx, "StepSimulation", sessionID, func(sess *Session) error {
		if sess.stop != nil {
			return ErrSimulationRunning
		}
		if state := sess.Engine.State(); state != engine.StateSimulating {
			return fmt.Errorf("%w: cannot step in %s", engine.ErrInvalidTransition, state)
		}
		if dt <= 0 {
			dt = sess.Engine.Settings().FrameStep
		}
		if dt > s.runLimit {
			dt = s.runLimit
		}

		outcome := sess.Engine.Advance(dt)
		result = &SimulationResult{
			Running: outcome == nil,
			Outcome: outcome,
			Message: simulationMessage(outcome),
		}
		if outcome != nil {
			logOutcome(sess.ID, outcome)
		}
		result.State = s.snapshot(sess)
		return nil
	})
	return result, err
}

// RunSimulation starts the simulation if needed and advances it until a
// terminal outcome. A simulation still moving after the run limit is
// halted.
func (s *gameServiceImpl) RunSimulation(ctx context.Context, sessionID string) (*SimulationResult, error) {
	var result *SimulationResult
	err := s.withSession(ctx, "RunSimulation", sessionID, func(sess *Session) error {
		if sess.stop != nil {
			return ErrSimulationRunning
		}

		result = &SimulationResult{}
		if sess.Engine.State() == engine.StatePlanning {
			result = s.start(sess)
			if !result.Started {
				result.State = s.snapshot(sess)
				return nil
			}
		}
		if state := sess.Engine.State(); state != engine.StateSimulating {
			return fmt.Errorf("%w: cannot run in %s", engine.ErrInvalidTransition, state)
		}

		step := sess.Engine.Settings().FrameStep
		var outcome *engine.Outcome
		for elapsed := time.Duration(0); outcome == nil && elapsed < s.runLimit; elapsed += step {
			if err := ctx.Err(); err != nil {
				return err
			}
			outcome = sess.Engine.Advance(step)
		}
		if outcome == nil {
			log.Printf("[SIM] session=%s still moving after %s, halting", sess.ID, s.runLimit)
			halted, err := sess.Engine.Halt()
			if err != nil {
				return err
			}
			outcome = halted
		}

		logOutcome(sess.ID, outcome)
		result.Outcome = outcome
		result.Message = simulationMessage(outcome)
		result.State = s.snapshot(sess)
		return nil
	})
	return result, err
}

// Halt force stops every agent of a running simulation
func (s *gameServiceImpl) Halt(ctx context.Context, sessionID string) (*SimulationResult, error) {
	var result *SimulationResult
	err := s.withSession(ctx, "Halt", sessionID, func(sess *Session) error {
		s.stopRunner(sess)
		outcome, err := sess.Engine.Halt()
		if err != nil {
			return err
		}
		logOutcome(sess.ID, outcome)
		result = &SimulationResult{
			Outcome: outcome,
			Message: "Halted: " + simulationMessage(outcome),
			State:   s.snapshot(sess),
		}
		return nil
	})
	return result, err
}

func logOutcome(sessionID string, outcome *engine.Outcome) {
	log.Printf("[SIM] session=%s outcome: %s", sessionID, outcome)
}

func simulationMessage(outcome *engine.Outcome) string {
	if outcome == nil {
		return "Simulation running"
	}
	switch outcome.Kind {
	case engine.OutcomeAllReachedGoal:
		return "Level clear! Every agent reached its goal"
	case engine.OutcomeCollision:
		return fmt.Sprintf("Collision at %s between agents %v", outcome.Cell, outcome.AgentIDs)
	default:
		return "Agents stopped short of their goals"
	}
}

// startRunner must be called with sess.mu held
func (s *gameServiceImpl) startRunner(sess *Session) {
	s.stopRunner(sess)
	ctx, cancel := context.WithCancel(s.root)
	sess.stop = cancel
	go s.run(ctx, sess, sess.Engine.Settings().FrameStep)
}

// stopRunner must be called with sess.mu held
func (s *gameServiceImpl) stopRunner(sess *Session) {
	if sess.stop != nil {
		sess.stop()
		sess.stop = nil
	}
}

// run drives the engine in real time until the simulation ends, the
// session is deleted or ctx is cancelled.
func (s *gameServiceImpl) run(ctx context.Context, sess *Session, step time.Duration) {
	if step <= 0 {
		step = engine.DefaultFrameStep
	}
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		sess.mu.Lock()
		if ctx.Err() != nil || sess.closed {
			sess.mu.Unlock()
			return
		}
		if sess.Engine.State() != engine.StateSimulating {
			s.stopRunner(sess)
			sess.mu.Unlock()
			return
		}

		outcome := sess.Engine.Advance(step)
		if outcome != nil {
			logOutcome(sess.ID, outcome)
			s.stopRunner(sess)
		}
		s.snapshot(sess)
		sess.mu.Unlock()

		if outcome != nil {
			return
		}
	}
}

// RestartLevel reloads the current level after a finished simulation
func (s *gameServiceImpl) RestartLevel(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	var snap *engine.Snapshot
	err := s.withSession(ctx, "RestartLevel", sessionID, func(sess *Session) error {
		if err := sess.Engine.RestartLevel(); err != nil {
			return err
		}
		log.Printf("[LEVEL] session=%s restarted %q", sess.ID, sess.Engine.Level().Name())
		snap = s.snapshot(sess)
		return nil
	})
	return snap, err
}

// AdvanceLevel loads the next level after a finished simulation
func (s *gameServiceImpl) AdvanceLevel(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	var snap *engine.Snapshot
	err := s.withSession(ctx, "AdvanceLevel", sessionID, func(sess *Session) error {
		if err := sess.Engine.AdvanceLevel(); err != nil {
			return err
		}
		if sess.Engine.IsFinished() {
			log.Printf("[LEVEL] session=%s all levels complete", sess.ID)
		} else {
			log.Printf("[LEVEL] session=%s advanced to %q", sess.ID, sess.Engine.Level().Name())
		}
		snap = s.snapshot(sess)
		return nil
	})
	return snap, err
}

// GetGameState returns the current snapshot
func (s *gameServiceImpl) GetGameState(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	var snap *engine.Snapshot
	err := s.withSession(ctx, "GetGameState", sessionID, func(sess *Session) error {
		state := sess.Engine.Snapshot()
		snap = &state
		return nil
	})
	return snap, err
}

// GetEventHistory returns paginated engine events
func (s *gameServiceImpl) GetEventHistory(ctx context.Context, sessionID string, opts HistoryOptions) (*HistoryResponse, error) {
	var history []engine.Event
	err := s.withSession(ctx, "GetEventHistory", sessionID, func(sess *Session) error {
		for _, evt := range sess.events {
			if opts.Type == "" || evt.Type == opts.Type {
				history = append(history, evt)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Set defaults
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit < 1 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}

	total := len(history)
	totalPages := (total + opts.Limit - 1) / opts.Limit
	if totalPages == 0 {
		totalPages = 1
	}

	start := (opts.Page - 1) * opts.Limit
	end := start + opts.Limit
	if end > total {
		end = total
	}

	var events []engine.Event
	if opts.Order == "desc" {
		// Most recent first
		for i := total - 1 - start; i >= 0 && i >= total-end; i-- {
			events = append(events, history[i])
		}
	} else if start < total {
		events = history[start:end]
	}

	if events == nil {
		events = []engine.Event{}
	}

	return &HistoryResponse{
		Events:      events,
		TotalEvents: total,
		Page:        opts.Page,
		PageSize:    opts.Limit,
		TotalPages:  totalPages,
		HasNext:     opts.Page < totalPages,
		HasPrevious: opts.Page > 1,
	}, nil
}

// ListLevels returns the available levels
func (s *gameServiceImpl) ListLevels(ctx context.Context) ([]*LevelInfo, error) {
	_, span := s.span(ctx, "ListLevels", "")
	defer span.End()
	levels, err := s.configs.ListLevels()
	return levels, recordErr(span, err)
}

// LoadLevel loads a specific level
func (s *gameServiceImpl) LoadLevel(ctx context.Context, name string) (*engine.LevelConfig, error) {
	_, span := s.span(ctx, "LoadLevel", "")
	defer span.End()
	span.SetAttributes(attribute.String("level.name", name))
	level, err := s.configs.LoadLevel(name)
	return level, recordErr(span, err)
}

// SaveLevel validates and stores a level
func (s *gameServiceImpl) SaveLevel(ctx context.Context, name string, level *engine.LevelConfig) error {
	_, span := s.span(ctx, "SaveLevel", "")
	defer span.End()
	span.SetAttributes(attribute.String("level.name", name))
	return recordErr(span, s.configs.SaveLevel(name, level))
}
