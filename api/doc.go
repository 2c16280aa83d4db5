// Package api provides HTTP REST API handlers for the routing puzzle.
//
// Endpoints:
//
// Session Management:
//   - POST /api/sessions - Create a session ({"level_id": "lanes"}, optional)
//   - GET /api/sessions - List sessions (sort=created|accessed, order, limit)
//   - GET /api/sessions/{id} - Get a session
//   - DELETE /api/sessions/{id} - Delete a session and stop its simulation
//
// Planning:
//   - GET /api/sessions/{id}/state - Current snapshot
//   - POST /api/sessions/{id}/select - {"player_id": 1}
//   - POST /api/sessions/{id}/deselect - Discard the open draft
//   - POST /api/sessions/{id}/waypoint - {"x": 2, "y": 5} grid cell
//   - POST /api/sessions/{id}/pointer - {"x": 2.3, "y": 5.1} world point
//
// Simulation:
//   - POST /api/sessions/{id}/start - Start when every agent has a complete path
//   - POST /api/sessions/{id}/step - {"dt_ms": 100}, manual mode only
//   - POST /api/sessions/{id}/run - Run to an outcome
//   - POST /api/sessions/{id}/halt - Stop and evaluate now
//
// Level Flow:
//   - POST /api/sessions/{id}/restart - Replay the level after an outcome
//   - POST /api/sessions/{id}/advance - Next level after a clear
//   - GET /api/sessions/{id}/events - Event history (page, limit, order, type)
//
// Levels:
//   - GET /api/levels - List level files
//   - GET /api/levels/{name} - Load a level
//   - POST /api/levels - Save a level (?file=name overrides the derived name)
//
// Other:
//   - GET /api/health
//   - GET /ws?session={id} - WebSocket push of snapshots and events
//
// Errors are returned as JSON with an HTTP status derived from the
// service error:
//
//	{"error": "session not found"}
//
// Missing sessions, levels and agents map to 404. Commands issued in the
// wrong state map to 409. Invalid bodies and levels map to 400.
package api
