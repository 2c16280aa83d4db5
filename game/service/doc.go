// Package service provides the business logic layer for the routing puzzle.
//
// The service package implements:
//   - Multi-session game management
//   - Level sequence loading
//   - Planning commands (select, propose, pointer presses)
//   - Simulation control, manual stepping or a realtime runner
//   - Event history tracking
//
// Core Interfaces:
//
// GameService is the main service interface providing high-level game operations.
// SessionManager handles session creation, retrieval, and lifecycle.
// ConfigManager loads level files and resolves level sequences.
// Notifier receives every engine event and state snapshot of a session.
//
// Architecture:
//
// The service layer sits between the transport layer (HTTP/WebSocket/MCP) and
// the game engine. Each session owns one engine instance; every call into it
// holds the session lock, so the engine itself needs no synchronisation.
// Every operation is traced through the global OpenTelemetry tracer.
//
// Usage:
//
//	sessionMgr := session.NewManager()
//	configMgr, _ := config.NewManager("levels")
//	gameService := service.NewGameService(sessionMgr, configMgr,
//		service.WithRealtime(true),
//		service.WithNotifier(hub),
//	)
//
//	info, err := gameService.CreateSession(ctx, "")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	gameService.SelectAgent(ctx, info.ID, 1)
//	gameService.ProposeWaypoint(ctx, info.ID, engine.Position{X: 2, Y: 8})
package service
