// Package mcp provides a Model Context Protocol server for the routing
// puzzle.
//
// The server is a thin proxy: every tool calls the REST API of a running
// game server, so MCP agents and browser clients share the same sessions.
//
// MCP Tools:
//   - create_session, list_sessions, get_session: session management
//   - game_state, describe_cell: read the grid, agents and drafts
//   - select_agent, deselect, propose_waypoint: build a path waypoint by waypoint
//   - plan_path: select an agent and propose a whole list of waypoints
//   - start_simulation, step_simulation, run_simulation, halt_simulation
//   - restart_level, advance_level: continue after an outcome
//   - event_history: paginated engine events
//   - list_levels, game_instructions
//
// Transport Modes:
//   - Stdio: server.ServeStdio(client.GetMCPServer()) for local MCP clients
//   - HTTP: the game server mounts the same MCP server at /mcp
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	if err := server.ServeStdio(client.GetMCPServer()); err != nil {
//		log.Fatal(err)
//	}
package mcp
