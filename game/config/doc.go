// Package config provides level management and server settings.
//
// The config package handles:
//   - Loading level files (JSON or YAML) from a directory
//   - Level validation and caching
//   - Ordered level sequences for a session
//   - Hot reloading when level files change
//   - Server settings from the environment
//
// Level Format:
//
// Each file defines one level: a grid layout where '.' is walkable and '#'
// is blocked ('S' and 'G' mark starts and goals and are walkable), the
// agents with their start, goal and selection budget, and an optional
// strict_segments flag. layout[0] is the top row.
//
//	id: 1
//	name: Two Lanes
//	width: 6
//	height: 12
//	layout: ["......", ...]
//	agents:
//	  - player_id: 1
//	    start: {x: 2, y: 2}
//	    goal: {x: 2, y: 8}
//	    selection_budget: 3
//
// Usage:
//
//	manager, err := config.NewManager("levels")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	level, err := manager.LoadLevel("two_lanes")
//	levels, err := manager.Sequence("")
//
//	watcher, err := config.NewWatcher(manager)
//	defer watcher.Close()
//
// Settings:
//
// LoadSettings reads PATHPATH_* environment variables (host, port, level
// directory, engine timing, realtime mode, session expiry, OTEL endpoint).
package config
