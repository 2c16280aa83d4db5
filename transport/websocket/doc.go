// Package websocket provides WebSocket push for game sessions.
//
// The websocket package implements:
//   - Session-aware WebSocket connections
//   - State snapshots pushed after every command and simulation frame
//   - Engine events pushed as they are published
//   - Connection lifecycle management
//
// Architecture:
//
// The package uses a hub-and-spoke model where a central Hub manages all
// WebSocket connections. Each client connection is handled by a dedicated
// pair of goroutines that read and write, and cleanup runs through the
// hub's event loop.
//
// Hub implements service.Notifier. Broadcasts are queued without blocking
// because the game service calls them while holding a session lock; when
// the queue is full the message is dropped and logged.
//
// Message Protocol:
//
// Outgoing messages are JSON objects, one per frame:
//   - {"session_id": "ab12", "type": "state", "state": {...snapshot...}}
//   - {"session_id": "ab12", "type": "event", "event": {...engine event...}}
//
// Commands are not accepted over the socket; clients use the REST API.
//
// Usage:
//
//	hub := websocket.NewHub()
//	go hub.Run()
//	defer hub.Stop()
//
//	svc := service.NewGameService(sessions, levels, service.WithNotifier(hub))
//	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
//		hub.ServeWS(w, r, r.URL.Query().Get("session"), nil)
//	})
package websocket
