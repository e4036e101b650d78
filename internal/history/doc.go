// Package history keeps a local log of processed commands in SQLite.
//
// The log exists for field debugging: a display stuck on an old image
// can be diagnosed from the device itself without coordinator access.
// Like telemetry, history is optional and nil-receiver safe.
package history
