// Package agent contains the display agent's core logic: registration
// with the coordinator, sequential command dispatch, and acknowledgment
// publishing.
//
// The Controller supervises three long-running goroutines (bus session,
// registration loop, dispatch loop) under a single errgroup. Commands
// are processed strictly one at a time in arrival order; every decoded
// command produces exactly one acknowledgment, success or failure.
package agent
