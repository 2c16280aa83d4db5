// Package engine provides the core rules of the waypoint routing puzzle.
//
// Each player owns one agent with a start cell, a goal cell and a selection
// budget. Players pick axis-aligned waypoints one at a time; the Planner
// accepts or rejects every candidate with a RejectReason. Once every agent
// has a committed path ending on its goal, all paths execute at the same
// time and the Arbiter samples occupancy at a fixed poll interval. Two
// agents in the same cell on one tick is a collision.
//
// Core Types:
//
// Grid converts between world space and integer Positions. Level is a
// validated LevelConfig and implements Geometry. Mover is the motion model
// of one agent. GameEngine sequences Planning, Simulating, GameOver and
// LevelClear, and publishes every change on its EventBus.
//
// Usage:
//
//	eng, err := engine.NewEngine([]*engine.LevelConfig{engine.DefaultLevelConfig()}, engine.DefaultSettings())
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	eng.SelectAgent(1)
//	eng.ProposeWaypoint(engine.Position{X: 2, Y: 8})
//	eng.SelectAgent(2)
//	eng.ProposeWaypoint(engine.Position{X: 4, Y: 8})
//
//	if eng.StartSimulation() {
//		for eng.State() == engine.StateSimulating {
//			eng.Advance(engine.DefaultFrameStep)
//		}
//	}
//
// The engine owns no goroutines and no clock. Time only moves through
// Advance, so the same inputs always produce the same outcome.
package engine
