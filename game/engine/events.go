package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType names an output event
type EventType string

const (
	EventAgentSelected     EventType = "agent_selected"
	EventWaypointAccepted  EventType = "waypoint_accepted"
	EventWaypointRejected  EventType = "waypoint_rejected"
	EventAgentCompleted    EventType = "agent_completed"
	EventPathHidden        EventType = "path_hidden"
	EventSimulationStarted EventType = "simulation_started"
	EventSimulationOutcome EventType = "simulation_outcome"
	EventStateChanged      EventType = "state_changed"
	EventLevelLoaded       EventType = "level_loaded"
	EventAllLevelsComplete EventType = "all_levels_complete"
)

// Event is one notification produced by the engine. Only the fields that
// apply to Type are set.
type Event struct {
	ID        string       `json:"id"`
	Seq       int64        `json:"seq"`
	Type      EventType    `json:"type"`
	Time      time.Time    `json:"time"`
	PlayerID  *int         `json:"player_id,omitempty"`
	Cell      *Position    `json:"cell,omitempty"`
	Reason    RejectReason `json:"reason,omitempty"`
	Path      []Position   `json:"path,omitempty"`
	Remaining *int         `json:"remaining,omitempty"`
	State     State        `json:"state,omitempty"`
	Outcome   *Outcome     `json:"outcome,omitempty"`
	Level     *LevelRef    `json:"level,omitempty"`
}

// LevelRef identifies a level inside a session's sequence
type LevelRef struct {
	Index int    `json:"index"`
	ID    int    `json:"id"`
	Name  string `json:"name"`
}

// Handler receives events synchronously
type Handler func(Event)

type subscription struct {
	id      string
	handler Handler
}

// EventBus is an ordered observer list. Handlers run synchronously on the
// publishing goroutine in subscription order.
type EventBus struct {
	mu    sync.Mutex
	subs  []subscription
	seq   int64
	clock func() time.Time
}

// NewEventBus creates an empty bus
func NewEventBus() *EventBus {
	return &EventBus{clock: time.Now}
}

// Subscribe registers handler and returns its subscription ID
func (b *EventBus) Subscribe(handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	b.subs = append(b.subs, subscription{id: id, handler: handler})
	return id
}

// Unsubscribe removes a subscription. Unknown IDs are ignored.
func (b *EventBus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of subscribers
func (b *EventBus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish stamps evt and delivers it to every subscriber
func (b *EventBus) Publish(evt Event) Event {
	b.mu.Lock()
	b.seq++
	evt.Seq = b.seq
	evt.ID = uuid.NewString()
	if evt.Time.IsZero() {
		evt.Time = b.clock()
	}
	subs := append([]subscription(nil), b.subs...)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.handler(evt)
	}
	return evt
}

func intPtr(v int) *int {
	return &v
}

func posPtr(p Position) *Position {
	return &p
}
